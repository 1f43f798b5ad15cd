// Package builtin is the narrow plug-in surface spec.md §4.6.1 describes:
// a built-in is nothing more than a `value.BuiltinFunc` wrapped in a
// `value.Fn{Builtin: ...}`, so new built-ins can be added without
// touching the evaluator. internal/stdlib is the catalog that populates
// a Registry; this package only defines how one entry gets wired in.
package builtin

import (
	"github.com/clj-embed/cloj/internal/namespace"
	"github.com/clj-embed/cloj/internal/value"
)

// Entry is one named built-in, optionally carrying doc/arglists for
// host introspection (spec.md §6.2's Var metadata).
type Entry struct {
	Name     string
	Fn       value.BuiltinFunc
	Doc      string
	Arglists value.Value
}

// Registry accumulates Entry values before they're installed into a
// Namespace; internal/stdlib registers every catalog module
// (arithmetic, sequence, string, ...) into one Registry and Install
// interns its entries into the target Namespace.
type Registry struct {
	entries []Entry
}

func NewRegistry() *Registry { return &Registry{} }

// Register adds one built-in; it is the only mutation a catalog module
// needs to perform.
func (r *Registry) Register(name string, fn value.BuiltinFunc) {
	r.entries = append(r.entries, Entry{Name: name, Fn: fn})
}

// RegisterDoc is Register plus doc/arglists metadata for Vars that want
// to show up nicely under `(doc ...)`.
func (r *Registry) RegisterDoc(name string, fn value.BuiltinFunc, doc string, arglists value.Value) {
	r.entries = append(r.entries, Entry{Name: name, Fn: fn, Doc: doc, Arglists: arglists})
}

// Entries exposes the accumulated entries, e.g. for Install or tests
// that want to assert a name was registered.
func (r *Registry) Entries() []Entry { return r.entries }

// Install interns one Var per Entry into ns, rooted at a *value.Fn
// wrapping the built-in — the same shape as a user-defined Fn, so the
// evaluator never special-cases built-ins at call time (spec.md §4.6.1).
func Install(ns *namespace.Namespace, r *Registry) {
	for _, e := range r.entries {
		v := ns.Intern(e.Name)
		v.SetRoot(&value.Fn{Name: e.Name, Builtin: e.Fn})
		v.Doc = e.Doc
		v.Arglists = e.Arglists
	}
}
