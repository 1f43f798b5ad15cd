package pipeline

import (
	"github.com/clj-embed/cloj/internal/diagnostics"
	"github.com/clj-embed/cloj/internal/form"
	"github.com/clj-embed/cloj/internal/node"
	"github.com/clj-embed/cloj/internal/value"
)

// Context carries one unit of source text through Read, Analyze and Eval,
// accumulating whatever each stage produced (or failed to).
type Context struct {
	FilePath string
	Source   string

	Forms []form.Form
	Nodes []node.Node
	Value value.Value

	Errors []*diagnostics.Error
}

// NewContext starts a fresh Context for a block of source text.
func NewContext(source string) *Context {
	return &Context{Source: source}
}

func (c *Context) addError(err error) {
	if err == nil {
		return
	}
	if de, ok := err.(*diagnostics.Error); ok {
		c.Errors = append(c.Errors, de)
		return
	}
	c.Errors = append(c.Errors, diagnostics.New(diagnostics.InternalError, diagnostics.PhaseEval, diagnostics.Loc{File: c.FilePath}, "%s", err.Error()))
}
