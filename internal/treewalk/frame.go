// Package treewalk is the direct tree-walking evaluator over
// analyzer.Node (spec.md §4.4): it implements value.Forcer so it doubles
// as the macro-expansion Caller and as the engine behind force'd
// LazySeq steps, without either of those call sites knowing which
// backend is active.
package treewalk

import (
	"github.com/clj-embed/cloj/internal/node"
	"github.com/clj-embed/cloj/internal/value"
)

// frame is one lexical activation: a sparse slot map plus a link to the
// enclosing lexical frame. Slot indices are assigned by the analyzer's
// scope counter (internal/analyzer/scope.go) and are globally unique
// within a single top-level Analyze call, even across nested fn bodies
// (analyzeFnArity pushes a child scope rather than resetting the
// counter, specifically so a closure's LocalRef indices still resolve
// through the frame chain instead of needing a separate depth field).
// A map keyed by that absolute index sidesteps ever having to know a
// frame's size up front.
type frame struct {
	slots  map[int]value.Value
	parent *frame
}

func newFrame(parent *frame) *frame {
	return &frame{slots: map[int]value.Value{}, parent: parent}
}

func (f *frame) get(idx int) (value.Value, bool) {
	for fr := f; fr != nil; fr = fr.parent {
		if v, ok := fr.slots[idx]; ok {
			return v, true
		}
	}
	return nil, false
}

func (f *frame) set(idx int, v value.Value) {
	f.slots[idx] = v
}

// fnBody is what a treewalk-produced value.Fn stores in value.Arity.Body:
// the analyzed body plus the frame it closed over. value.Fn's own
// Closure field is left empty by this backend — capture lives here
// instead, since a sparse frame chain (rather than a flat slice) is what
// lets a nested fn's absolute slot indices resolve without a depth field.
type fnBody struct {
	node  node.Node
	frame *frame
}
