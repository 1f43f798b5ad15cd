// Package alloc implements the two-allocator memory model (spec.md §5):
// a Scratch arena reset between top-level expressions, and a Persistent
// arena that outlives them (captured closures, interned Vars/Symbols,
// top-level def'd values). Both are simple bump allocators over an
// object-count/byte-estimate pool; a MarkSweep pass over the Persistent
// arena's accounting runs when a byte threshold trips, logging its
// before/after footprint with github.com/dustin/go-humanize.
package alloc

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/clj-embed/cloj/internal/value"
)

// entry is one bump-allocated slot: the Value itself plus its estimated
// footprint, so the arena can report humanized byte totals without a
// real heap to inspect.
type entry struct {
	v     value.Value
	bytes uint64
}

// Arena is a bump allocator: Alloc only ever appends, Reset only ever
// truncates. Nothing is freed piecemeal — Go's own GC reclaims an
// entry's backing memory once nothing (including this arena, after a
// Reset or MarkSweep sweep) still references it.
type Arena struct {
	name    string
	entries []entry
	bytes   uint64
}

func newArena(name string) *Arena {
	return &Arena{name: name}
}

// Alloc records v as live in the arena and returns it unchanged, so
// call sites can wrap a constructor: `x := scratch.Alloc(value.NewList(...))`.
func (a *Arena) Alloc(v value.Value) value.Value {
	sz := sizeOf(v)
	a.entries = append(a.entries, entry{v: v, bytes: sz})
	a.bytes += sz
	return v
}

// Bytes reports the arena's current estimated footprint.
func (a *Arena) Bytes() uint64 { return a.bytes }

// Count reports how many live entries the arena is tracking.
func (a *Arena) Count() int { return len(a.entries) }

// Reset discards every entry the Scratch arena is tracking — called
// between top-level expressions per spec.md §5 so per-expression
// garbage never accumulates in the first place.
func (a *Arena) Reset() {
	a.entries = a.entries[:0]
	a.bytes = 0
}

// Allocator bundles the Scratch/Persistent pair an evaluator session
// threads through Analyze/Eval calls.
type Allocator struct {
	Scratch    *Arena
	Persistent *Arena

	// gcThreshold is the Persistent-arena byte count that triggers the
	// next MarkSweep pass; after each GC it is reset to the surviving
	// byte count plus defaultGCThreshold, so a session that keeps growing
	// doesn't GC on every single def.
	gcThreshold uint64
	trace       func(string)
}

const defaultGCThreshold = 1 << 20 // 1 MiB

// New builds an Allocator with a no-op trace sink; use Trace to wire one
// up to a logger.
func New() *Allocator {
	return &Allocator{
		Scratch:     newArena("scratch"),
		Persistent:  newArena("persistent"),
		gcThreshold: defaultGCThreshold,
		trace:       func(string) {},
	}
}

// Trace installs a sink for GC/arena trace lines (spec.md's ambient
// logging concern — the allocator reports its own numbers the way a
// teacher-style background component would, independent of any
// evaluation-level diagnostics).
func (al *Allocator) Trace(fn func(string)) { al.trace = fn }

// ResetScratch clears the Scratch arena; the evaluator calls this
// between top-level forms.
func (al *Allocator) ResetScratch() { al.Scratch.Reset() }

// MaybeGC runs MarkSweep over the Persistent arena if its footprint has
// crossed gcThreshold, and is safe to call after every top-level def.
func (al *Allocator) MaybeGC(roots []value.Value) {
	if al.Persistent.Bytes() < al.gcThreshold {
		return
	}
	before := al.Persistent.Bytes()
	beforeN := al.Persistent.Count()
	al.MarkSweep(roots)
	after := al.Persistent.Bytes()
	afterN := al.Persistent.Count()
	al.trace(fmt.Sprintf(
		"alloc: gc persistent arena: %s (%d objs) -> %s (%d objs)",
		humanize.Bytes(before), beforeN, humanize.Bytes(after), afterN,
	))
	// Back off so the next pass only runs once the survivors have grown
	// by another full threshold's worth, instead of re-scanning on every
	// subsequent allocation once a long-lived session plateaus near it.
	al.gcThreshold = after + defaultGCThreshold
}

// MarkSweep walks roots to find the Persistent arena's live set and
// drops every entry not reached, matching spec.md §5's "mark-sweep over
// the persistent arena" without requiring every Value kind to
// implement its own tracing method: container Values are walked via
// the Seqable/Map/Set accessors they already expose.
func (al *Allocator) MarkSweep(roots []value.Value) {
	live := map[value.Value]bool{}
	var mark func(v value.Value)
	mark = func(v value.Value) {
		if v == nil || live[v] {
			return
		}
		live[v] = true
		for _, child := range children(v) {
			mark(child)
		}
	}
	for _, r := range roots {
		mark(r)
	}

	kept := al.Persistent.entries[:0]
	var keptBytes uint64
	for _, e := range al.Persistent.entries {
		if live[e.v] {
			kept = append(kept, e)
			keptBytes += e.bytes
		}
	}
	al.Persistent.entries = kept
	al.Persistent.bytes = keptBytes
}

// children enumerates a Value's direct references, where known, so
// MarkSweep can transitively trace the persistent object graph.
func children(v value.Value) []value.Value {
	switch x := v.(type) {
	case *value.Fn:
		return append([]value.Value(nil), x.Closure...)
	case *value.Atom:
		return []value.Value{x.Deref()}
	case *value.Var:
		return []value.Value{x.Root()}
	case *value.MultiFn:
		out := append([]value.Value(nil), x.DispatchFn, x.Default)
		for _, fn := range x.Methods {
			out = append(out, fn)
		}
		return out
	case *value.Protocol:
		var out []value.Value
		for _, methods := range x.Impls {
			for _, fn := range methods {
				out = append(out, fn)
			}
		}
		return out
	case *value.ProtocolFn:
		return []value.Value{x.Protocol}
	case *value.FnProto:
		return append([]value.Value(nil), x.Constants...)
	case *value.PartialFn:
		return append([]value.Value{x.Fn}, x.Args...)
	case *value.CompFn:
		return append([]value.Value(nil), x.Fns...)
	case *value.Map:
		var out []value.Value
		x.Each(func(k, mv value.Value) { out = append(out, k, mv) })
		return out
	case *value.Set:
		return x.Items()
	case value.Seqable:
		var out []value.Value
		s := x
		for !s.IsEmpty() {
			out = append(out, s.First())
			rest := s.Rest()
			next, ok := rest.(value.Seqable)
			if !ok {
				break
			}
			s = next
		}
		return out
	default:
		return nil
	}
}

// sizeOf gives a rough, deliberately conservative byte estimate per
// Value kind — enough for humanized trace output to be meaningful, not
// a precise accounting of Go's actual heap layout.
func sizeOf(v value.Value) uint64 {
	switch x := v.(type) {
	case value.Nil:
		return 0
	case value.Bool:
		return 1
	case value.Int, value.Float, value.Char:
		return 8
	case value.String:
		return uint64(16 + len(string(x)))
	case *value.Keyword, *value.Symbol:
		return 32
	case *value.List:
		return uint64(24 + 16*x.Count())
	case *value.Vector:
		return uint64(24 + 16*x.Count())
	case *value.Map:
		return uint64(24 + 32*x.Count())
	case *value.Set:
		return uint64(24 + 16*x.Count())
	case *value.Fn:
		return uint64(48 + 8*len(x.Closure))
	case *value.Var:
		return 64
	default:
		return 32
	}
}
