package pipeline

import (
	"github.com/clj-embed/cloj/internal/analyzer"
	"github.com/clj-embed/cloj/internal/namespace"
	"github.com/clj-embed/cloj/internal/reader"
	"github.com/clj-embed/cloj/internal/treewalk"
	"github.com/clj-embed/cloj/internal/vm"
)

// ReaderProcessor turns ctx.Source into ctx.Forms, mirroring the
// teacher's LexerProcessor+ParserProcessor pair collapsed into one
// stage since this dialect's reader does both jobs at once.
type ReaderProcessor struct {
	Env *namespace.Env
}

func (rp *ReaderProcessor) Process(ctx *Context) *Context {
	r := reader.New(ctx.FilePath, ctx.Source, reader.WithFeatures(rp.Env), reader.WithDataReaders(rp.Env))
	forms, err := r.ReadAll()
	ctx.Forms = forms
	if err != nil {
		ctx.addError(err)
	}
	return ctx
}

// AnalyzerProcessor turns ctx.Forms into ctx.Nodes, per spec.md §4.3.
// It stops at the first form that fails to analyze: later forms in the
// same source may reference names or macros the failed form was
// supposed to define, so analyzing them would only produce cascading
// noise rather than independent diagnostics.
type AnalyzerProcessor struct {
	Analyzer *analyzer.Analyzer
}

func (ap *AnalyzerProcessor) Process(ctx *Context) *Context {
	if len(ctx.Forms) == 0 {
		return ctx
	}
	for _, f := range ctx.Forms {
		n, err := ap.Analyzer.Analyze(f)
		if err != nil {
			ctx.addError(err)
			return ctx
		}
		ctx.Nodes = append(ctx.Nodes, n)
	}
	return ctx
}

// EvalProcessor runs ctx.Nodes through a tree-walking Interp in order,
// keeping the value of the last node evaluated (a file or REPL entry's
// result), per spec.md §4.4's top-level Eval contract.
type EvalProcessor struct {
	Interp *treewalk.Interp
}

func (ep *EvalProcessor) Process(ctx *Context) *Context {
	if len(ctx.Errors) > 0 || len(ctx.Nodes) == 0 {
		return ctx
	}
	for _, n := range ctx.Nodes {
		v, err := ep.Interp.Eval(n)
		if err != nil {
			ctx.addError(err)
			return ctx
		}
		ctx.Value = v
	}
	return ctx
}

// VMEvalProcessor is EvalProcessor's bytecode-backend counterpart: same
// per-node loop, same last-value-wins contract, but each node.Node is
// compiled to a value.FnProto and run on vm.Interp's stack machine
// instead of walked directly (spec.md §4.5/§6.3, Invariant 2's
// tree-walker/VM equivalence).
type VMEvalProcessor struct {
	Interp *vm.Interp
}

func (ep *VMEvalProcessor) Process(ctx *Context) *Context {
	if len(ctx.Errors) > 0 || len(ctx.Nodes) == 0 {
		return ctx
	}
	for _, n := range ctx.Nodes {
		v, err := ep.Interp.Eval(n)
		if err != nil {
			ctx.addError(err)
			return ctx
		}
		ctx.Value = v
	}
	return ctx
}
