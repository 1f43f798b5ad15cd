package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clj-embed/cloj/internal/alloc"
	"github.com/clj-embed/cloj/internal/analyzer"
	"github.com/clj-embed/cloj/internal/namespace"
	"github.com/clj-embed/cloj/internal/pipeline"
	"github.com/clj-embed/cloj/internal/stdlib"
	"github.com/clj-embed/cloj/internal/treewalk"
	"github.com/clj-embed/cloj/internal/value"
)

func newPipeline(env *namespace.Env) (*pipeline.Pipeline, *treewalk.Interp) {
	al := alloc.New()
	it := treewalk.New(env, al)
	coreNs, _ := env.Namespace("cloj.core")
	stdlib.Install(coreNs, it)
	userNs, _ := env.Namespace("user")
	for name, v := range coreNs.Vars() {
		userNs.AddRefer(name, v)
	}
	a := analyzer.New(env, it)
	p := pipeline.New(
		&pipeline.ReaderProcessor{Env: env},
		&pipeline.AnalyzerProcessor{Analyzer: a},
		&pipeline.EvalProcessor{Interp: it},
	)
	return p, it
}

func Test_Pipeline_RunsThroughAllStages(t *testing.T) {
	env := namespace.NewEnv()
	p, _ := newPipeline(env)

	ctx := pipeline.NewContext("(+ 1 2)")
	ctx = p.Run(ctx)

	require.Empty(t, ctx.Errors)
	assert.Equal(t, value.Int(3), ctx.Value)
}

func Test_Pipeline_ReaderErrorStopsLaterStages(t *testing.T) {
	env := namespace.NewEnv()
	p, _ := newPipeline(env)

	ctx := pipeline.NewContext("(+ 1 ")
	ctx = p.Run(ctx)

	require.NotEmpty(t, ctx.Errors)
	assert.Nil(t, ctx.Nodes)
	assert.Nil(t, ctx.Value)
}

func Test_Pipeline_EvalErrorIsCollected(t *testing.T) {
	env := namespace.NewEnv()
	p, _ := newPipeline(env)

	ctx := pipeline.NewContext("(/ 1 0)")
	ctx = p.Run(ctx)

	require.NotEmpty(t, ctx.Errors)
}
