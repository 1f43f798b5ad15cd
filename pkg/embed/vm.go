// Package embed's VMInterpreter is Interpreter's bytecode-backend twin:
// same host-facing shape (New/EvalString/LoadFile), but wired to
// internal/vm instead of internal/treewalk as both the analyzer's macro
// Caller and the pipeline's Eval stage. It exists so a host, or
// internal/evaltest's scenario table, can run the exact same source
// through either backend and compare results (spec.md §8.1's Invariant
// 2: the two backends must agree on every scenario).
package embed

import (
	"fmt"
	"os"

	"github.com/clj-embed/cloj/internal/alloc"
	"github.com/clj-embed/cloj/internal/analyzer"
	"github.com/clj-embed/cloj/internal/namespace"
	"github.com/clj-embed/cloj/internal/pipeline"
	"github.com/clj-embed/cloj/internal/stdlib"
	"github.com/clj-embed/cloj/internal/vm"
)

// VMInterpreter is one embedding session backed by the bytecode VM.
type VMInterpreter struct {
	Env    *namespace.Env
	Alloc  *alloc.Allocator
	Interp *vm.Interp

	analyzer *analyzer.Analyzer
	pipeline *pipeline.Pipeline
}

// NewVM builds a VMInterpreter with cloj.core installed and ready to eval.
func NewVM() *VMInterpreter {
	env := namespace.NewEnv()
	al := alloc.New()
	it := vm.New(env, al)
	a := analyzer.New(env, it)

	coreNs, _ := env.Namespace("cloj.core")
	stdlib.Install(coreNs, it)
	userNs, _ := env.Namespace("user")
	for name, v := range coreNs.Vars() {
		userNs.AddRefer(name, v)
	}

	interp := &VMInterpreter{Env: env, Alloc: al, Interp: it, analyzer: a}
	interp.pipeline = pipeline.New(
		&pipeline.ReaderProcessor{Env: env},
		&pipeline.AnalyzerProcessor{Analyzer: a},
		&pipeline.VMEvalProcessor{Interp: it},
	)
	return interp
}

// TraceGC installs a sink for the allocator's GC trace lines.
func (i *VMInterpreter) TraceGC(fn func(string)) { i.Alloc.Trace(fn) }

// EvalString runs source through Read -> Analyze -> Compile -> Run and
// returns the last top-level form's value, or the first diagnostic any
// stage hit.
func (i *VMInterpreter) EvalString(source string) (value interface{}, err error) {
	ctx := pipeline.NewContext(source)
	ctx = i.pipeline.Run(ctx)
	if len(ctx.Errors) > 0 {
		return nil, ctx.Errors[0]
	}
	return ctx.Value, nil
}

// LoadFile reads, analyzes and evaluates every top-level form in path in
// order, in the file's own source-relative error reporting.
func (i *VMInterpreter) LoadFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	ctx := pipeline.NewContext(string(content))
	ctx.FilePath = path
	ctx = i.pipeline.Run(ctx)
	if len(ctx.Errors) > 0 {
		return fmt.Errorf("%s: %s", path, ctx.Errors[0].Error())
	}
	return nil
}
