// Package embed is the host-facing embedding API: a single Interpreter
// wires together a namespace.Env, an alloc.Allocator, a treewalk.Interp
// and the internal/pipeline stages, the way the teacher's pkg/embed
// wraps its VM/marshaller pair behind New/Eval/LoadFile/Bind/Call.
package embed

import (
	"fmt"
	"os"

	"github.com/clj-embed/cloj/internal/alloc"
	"github.com/clj-embed/cloj/internal/analyzer"
	"github.com/clj-embed/cloj/internal/namespace"
	"github.com/clj-embed/cloj/internal/pipeline"
	"github.com/clj-embed/cloj/internal/stdlib"
	"github.com/clj-embed/cloj/internal/treewalk"
)

// Interpreter is one embedding session: its own Env (namespaces/Vars),
// its own Allocator (Scratch/Persistent arenas), and the tree-walking
// backend wired as both the analyzer's macro Caller and the pipeline's
// Eval stage.
type Interpreter struct {
	Env    *namespace.Env
	Alloc  *alloc.Allocator
	Interp *treewalk.Interp

	analyzer *analyzer.Analyzer
	pipeline *pipeline.Pipeline
}

// New builds an Interpreter with cloj.core installed and ready to eval.
func New() *Interpreter {
	env := namespace.NewEnv()
	al := alloc.New()
	it := treewalk.New(env, al)
	a := analyzer.New(env, it)

	coreNs, _ := env.Namespace("cloj.core")
	stdlib.Install(coreNs, it)
	userNs, _ := env.Namespace("user")
	for name, v := range coreNs.Vars() {
		userNs.AddRefer(name, v)
	}

	interp := &Interpreter{Env: env, Alloc: al, Interp: it, analyzer: a}
	interp.pipeline = pipeline.New(
		&pipeline.ReaderProcessor{Env: env},
		&pipeline.AnalyzerProcessor{Analyzer: a},
		&pipeline.EvalProcessor{Interp: it},
	)
	return interp
}

// TraceGC installs a sink for the allocator's GC trace lines, e.g.
// os.Stderr-backed logging in a CLI host.
func (i *Interpreter) TraceGC(fn func(string)) { i.Alloc.Trace(fn) }

// EvalString runs source through Read -> Analyze -> Eval and returns the
// last top-level form's value, or the first diagnostic any stage hit.
func (i *Interpreter) EvalString(source string) (value interface{}, err error) {
	ctx := pipeline.NewContext(source)
	ctx = i.pipeline.Run(ctx)
	if len(ctx.Errors) > 0 {
		return nil, ctx.Errors[0]
	}
	return ctx.Value, nil
}

// LoadFile reads, analyzes and evaluates every top-level form in path in
// order, in the file's own source-relative error reporting.
func (i *Interpreter) LoadFile(path string) error {
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
