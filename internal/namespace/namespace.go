// Package namespace implements the Namespace/Var registry and process-
// wide Env (spec.md §3.4): namespaces and Vars live in persistent memory
// for the life of the process; `def` interns/updates, there is no undef
// except by rebinding a Var's root to nil.
package namespace

import (
	"sync"

	"github.com/clj-embed/cloj/internal/reader"
	"github.com/clj-embed/cloj/internal/value"
)

// Namespace is `{name, mappings, aliases, refers}` per spec.md §3.4.
type Namespace struct {
	mu       sync.RWMutex
	Name     string
	mappings map[string]*value.Var
	aliases  map[string]*Namespace
	refers   map[string]*value.Var
}

func NewNamespace(name string) *Namespace {
	return &Namespace{
		Name:     name,
		mappings: map[string]*value.Var{},
		aliases:  map[string]*Namespace{},
		refers:   map[string]*value.Var{},
	}
}

// Intern is idempotent: a second intern of the same name returns the
// existing *Var (spec.md §3.4).
func (ns *Namespace) Intern(name string) *value.Var {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if v, ok := ns.mappings[name]; ok {
		return v
	}
	v := value.NewVar(ns.Name, name, nil)
	ns.mappings[name] = v
	return v
}

func (ns *Namespace) Lookup(name string) (*value.Var, bool) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	if v, ok := ns.mappings[name]; ok {
		return v, true
	}
	v, ok := ns.refers[name]
	return v, ok
}

func (ns *Namespace) AddRefer(name string, v *value.Var) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.refers[name] = v
}

func (ns *Namespace) AddAlias(alias string, target *Namespace) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.aliases[alias] = target
}

func (ns *Namespace) ResolveAlias(alias string) (*Namespace, bool) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	n, ok := ns.aliases[alias]
	return n, ok
}

func (ns *Namespace) Vars() map[string]*value.Var {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	out := make(map[string]*value.Var, len(ns.mappings))
	for k, v := range ns.mappings {
		out[k] = v
	}
	return out
}

// Env is the process-wide registry from spec.md §3.4: namespaces,
// current_ns, reader features and data_readers.
type Env struct {
	mu              sync.RWMutex
	namespaces      map[string]*Namespace
	currentNs       string
	features        map[string]bool
	dataReaders     map[string]reader.DataReaderFn
	defaultReader   reader.DataReaderFn
	hasDefaultReader bool
	Bindings        *value.BindingStack
}

func NewEnv() *Env {
	e := &Env{
		namespaces: map[string]*Namespace{},
		currentNs:  "user",
		features:   map[string]bool{},
		dataReaders: map[string]reader.DataReaderFn{},
		Bindings:   value.NewBindingStack(),
	}
	e.EnsureNamespace("user")
	e.EnsureNamespace("cloj.core")
	return e
}

func (e *Env) EnsureNamespace(name string) *Namespace {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ns, ok := e.namespaces[name]; ok {
		return ns
	}
	ns := NewNamespace(name)
	e.namespaces[name] = ns
	return ns
}

func (e *Env) Namespace(name string) (*Namespace, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ns, ok := e.namespaces[name]
	return ns, ok
}

// NamespaceNames lists every namespace the Env has ever ensured, for
// callers (e.g. a GC root-scan) that need to walk every Var in the process.
func (e *Env) NamespaceNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.namespaces))
	for name := range e.namespaces {
		names = append(names, name)
	}
	return names
}

func (e *Env) CurrentNamespace() *Namespace {
	e.mu.RLock()
	name := e.currentNs
	e.mu.RUnlock()
	return e.EnsureNamespace(name)
}

func (e *Env) SetCurrentNamespace(name string) {
	e.mu.Lock()
	e.currentNs = name
	e.mu.Unlock()
	e.EnsureNamespace(name)
}

// Has implements reader.Features: `(require-feature "go")`-style checks
// driven from reader conditionals `#?(:go …)`.
func (e *Env) Has(tag string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.features[tag]
}

func (e *Env) EnableFeature(tag string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.features[tag] = true
}

// Lookup/Default implement reader.DataReaders for `#tag form` dispatch.
func (e *Env) Lookup(tag string) (reader.DataReaderFn, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fn, ok := e.dataReaders[tag]
	return fn, ok
}

func (e *Env) Default() (reader.DataReaderFn, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.defaultReader, e.hasDefaultReader
}

func (e *Env) RegisterDataReader(tag string, fn reader.DataReaderFn) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dataReaders[tag] = fn
}

func (e *Env) SetDefaultDataReader(fn reader.DataReaderFn) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.defaultReader, e.hasDefaultReader = fn, true
}

// Resolve implements the unqualified/qualified symbol lookup rule from
// spec.md §4.3 step 1: current ns mappings, then refers, then (for
// qualified symbols) alias then direct namespace lookup.
func (e *Env) Resolve(ns, name string) (*value.Var, bool) {
	if ns == "" {
		cur := e.CurrentNamespace()
		return cur.Lookup(name)
	}
	cur := e.CurrentNamespace()
	if target, ok := cur.ResolveAlias(ns); ok {
		return target.Lookup(name)
	}
	if target, ok := e.Namespace(ns); ok {
		return target.Lookup(name)
	}
	return nil, false
}
