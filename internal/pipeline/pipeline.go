// Package pipeline chains Read/Analyze/Eval into named stages over a
// shared Context, so a host (pkg/embed) or a future LSP can run
// one source text through every stage and inspect whichever errors each stage
// produced, instead of stopping at the first one.
package pipeline

// Processor is one pipeline stage.
type Processor interface {
	Process(ctx *Context) *Context
}

// Pipeline is an ordered sequence of Processors.
type Pipeline struct {
	processors []Processor
}

func New(processors ...Processor) *Pipeline {
	return &Pipeline{processors: processors}
}

// Run threads ctx through every stage in order. Stages continue to run
// after one reports an error: a reader error shouldn't hide whatever an
// analyzer stage could still say about the forms that did read, which
// matters for a caller collecting diagnostics rather than aborting on
// the first failure.
func (p *Pipeline) Run(initialCtx *Context) *Context {
	ctx := initialCtx
	for _, processor := range p.processors {
		ctx = processor.Process(ctx)
	}
	return ctx
}
