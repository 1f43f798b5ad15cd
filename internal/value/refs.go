package value

import (
	"fmt"
	"sync"
)

// Atom holds one Value; swap!/reset! mutate it, watches fire after a
// successful update (spec.md §4.6.4).
type Atom struct {
	mu      sync.Mutex
	val     Value
	watches map[string]func(key string, old, new Value)
}

func NewAtom(v Value) *Atom { return &Atom{val: v, watches: map[string]func(string, Value, Value){}} }

func (a *Atom) Kind() Kind     { return AtomKind }
func (a *Atom) String() string { return "#<atom " + a.Deref().String() + ">" }
func (a *Atom) Hash() uint32   { return fnv32(fmt.Sprintf("atom:%p", a)) }

func (a *Atom) Deref() Value {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.val
}

func (a *Atom) Reset(v Value) Value {
	a.mu.Lock()
	old := a.val
	a.val = v
	watches := a.snapshotWatches()
	a.mu.Unlock()
	a.fire(watches, old, v)
	return v
}

// Swap applies fn to the current value; fn is supplied by the caller
// (treewalk/vm) since Atom cannot invoke user Fns itself without the
// backend-agnostic call callback (spec.md §4.6.3).
func (a *Atom) Swap(fn func(Value) (Value, error)) (Value, error) {
	a.mu.Lock()
	old := a.val
	a.mu.Unlock()
	next, err := fn(old)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.val = next
	watches := a.snapshotWatches()
	a.mu.Unlock()
	a.fire(watches, old, next)
	return next, nil
}

func (a *Atom) AddWatch(key string, fn func(key string, old, new Value)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.watches[key] = fn
}

func (a *Atom) snapshotWatches() map[string]func(string, Value, Value) {
	out := make(map[string]func(string, Value, Value), len(a.watches))
	for k, v := range a.watches {
		out[k] = v
	}
	return out
}

func (a *Atom) fire(watches map[string]func(string, Value, Value), old, new Value) {
	for k, w := range watches {
		w(k, old, new)
	}
}

// Volatile is an Atom without watches, intended as a building block
// (spec.md §4.6.4).
type Volatile struct {
	mu  sync.Mutex
	val Value
}

func NewVolatile(v Value) *Volatile { return &Volatile{val: v} }

func (v *Volatile) Kind() Kind     { return VolatileKind }
func (v *Volatile) String() string { return "#<volatile " + v.Deref().String() + ">" }
func (v *Volatile) Hash() uint32   { return fnv32(fmt.Sprintf("volatile:%p", v)) }

func (v *Volatile) Deref() Value {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.val
}

func (v *Volatile) Reset(nv Value) Value {
	v.mu.Lock()
	v.val = nv
	v.mu.Unlock()
	return nv
}

// Delay is a thunk + realized flag + cache; force evaluates once
// (spec.md §4.6.4).
type Delay struct {
	mu       sync.Mutex
	thunk    func() (Value, error)
	realized bool
	cached   Value
	err      error
}

func NewDelay(thunk func() (Value, error)) *Delay { return &Delay{thunk: thunk} }

func (d *Delay) Kind() Kind     { return DelayKind }
func (d *Delay) String() string { return "#<delay>" }
func (d *Delay) Hash() uint32   { return fnv32(fmt.Sprintf("delay:%p", d)) }

func (d *Delay) Realized() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.realized
}

func (d *Delay) Force() (Value, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.realized {
		d.cached, d.err = d.thunk()
		d.realized = true
		d.thunk = nil
	}
	return d.cached, d.err
}

// Promise is one-shot: deliver sets, deref reads. Since execution is
// single-threaded-cooperative (spec.md §5), a deref before deliver is an
// error rather than a block.
type Promise struct {
	mu        sync.Mutex
	delivered bool
	val       Value
}

func NewPromise() *Promise { return &Promise{} }

func (p *Promise) Kind() Kind     { return PromiseKind }
func (p *Promise) String() string { return "#<promise>" }
func (p *Promise) Hash() uint32   { return fnv32(fmt.Sprintf("promise:%p", p)) }

func (p *Promise) Deliver(v Value) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.delivered {
		return false
	}
	p.val = v
	p.delivered = true
	return true
}

func (p *Promise) Deref() (Value, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.val, p.delivered
}

// Reduced wraps a value that `reduce` treats as an early-termination
// signal (spec.md §4.6.4).
type Reduced struct {
	Val Value
}

func (r *Reduced) Kind() Kind     { return ReducedKind }
func (r *Reduced) String() string { return "#<reduced " + r.Val.String() + ">" }
func (r *Reduced) Hash() uint32   { return fnv32("reduced") }
