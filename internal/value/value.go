// Package value implements the runtime Value model: the tagged sum of
// primitives, persistent collections, callables and reference cells that
// both the tree walker and the VM operate on (spec.md §3.3).
package value

import (
	"fmt"
	"math"
)

// Kind identifies a Value's runtime tag, mirroring the teacher's
// ObjectType string-const scheme (evaluator/object.go).
type Kind string

const (
	NilKind      Kind = "nil"
	BoolKind     Kind = "bool"
	IntKind      Kind = "int"
	FloatKind    Kind = "float"
	CharKind     Kind = "char"
	StringKind   Kind = "string"
	KeywordKind  Kind = "keyword"
	SymbolKind   Kind = "symbol"
	ListKind     Kind = "list"
	VectorKind   Kind = "vector"
	MapKind      Kind = "map"
	SetKind      Kind = "set"
	FnKind       Kind = "fn"
	PartialKind  Kind = "partial"
	CompKind     Kind = "comp"
	MultiFnKind  Kind = "multifn"
	ProtoKind    Kind = "protocol"
	ProtoFnKind  Kind = "protocol-fn"
	FnProtoKind  Kind = "fn-proto"
	LazySeqKind  Kind = "lazy-seq"
	VarKind      Kind = "var"
	AtomKind     Kind = "atom"
	DelayKind    Kind = "delay"
	VolatileKind Kind = "volatile"
	ReducedKind  Kind = "reduced"
	TransientKind Kind = "transient"
	PromiseKind  Kind = "promise"
	PatternKind  Kind = "pattern"
	MatcherKind  Kind = "matcher"
)

// Value is satisfied by every runtime tag. Kind() drives dispatch in the
// evaluator, multimethods and protocols; Hash()/Equal() back §3.3's
// equality invariants; String() is the display form (string and char
// contents print unquoted).
type Value interface {
	Kind() Kind
	String() string
	Hash() uint32
}

// Seqable is implemented by every Value that first/rest/seq/count can
// walk directly: List, Vector, Map, Set and the empty seq. LazySeq (which
// needs a Forcer to step) and Nil do not implement it.
type Seqable interface {
	Value
	First() Value
	Rest() Value
	IsEmpty() bool
}

// Counted is implemented by collections with O(1) or O(log n) count.
type Counted interface {
	Value
	Count() int
}

// ---- nil ----

type Nil struct{}

var NilValue = Nil{}

func (Nil) Kind() Kind     { return NilKind }
func (Nil) String() string { return "nil" }
func (Nil) Hash() uint32   { return 0 }

// ---- bool ----

type Bool bool

func (b Bool) Kind() Kind { return BoolKind }
func (b Bool) String() string {
	if b {
		return "true"
	}
	return "false"
}
func (b Bool) Hash() uint32 {
	if b {
		return 1231
	}
	return 1237
}

// ---- int64 ----

type Int int64

func (i Int) Kind() Kind     { return IntKind }
func (i Int) String() string { return fmt.Sprintf("%d", int64(i)) }
func (i Int) Hash() uint32   { return hashFloat(float64(i)) }

// ---- float64 ----

type Float float64

func (f Float) Kind() Kind { return FloatKind }
func (f Float) String() string {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return "##NaN"
	case math.IsInf(v, 1):
		return "##Inf"
	case math.IsInf(v, -1):
		return "##-Inf"
	}
	return fmt.Sprintf("%g", v)
}
func (f Float) Hash() uint32 { return hashFloat(float64(f)) }

// hashFloat unifies int/float hashing so `(int 1) == (float 1.0)` implies
// equal hashes, per spec.md §8.1 invariant 4.
func hashFloat(v float64) uint32 {
	bits := math.Float64bits(v)
	return uint32(bits ^ (bits >> 32))
}

// ---- char ----

type Char rune

func (c Char) Kind() Kind     { return CharKind }
func (c Char) String() string { return string(rune(c)) }
func (c Char) Hash() uint32   { return uint32(c) }

// ---- string ----

type String string

func (s String) Kind() Kind     { return StringKind }
func (s String) String() string { return string(s) }
func (s String) Hash() uint32   { return fnv32(string(s)) }

func fnv32(s string) uint32 {
	const prime = 16777619
	h := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime
	}
	return h
}

// Truthy implements spec.md §4.4's `If` semantics: everything is truthy
// except nil and false.
func Truthy(v Value) bool {
	switch t := v.(type) {
	case nil:
		return false
	case Nil:
		return false
	case Bool:
		return bool(t)
	default:
		return true
	}
}

// Equal implements the structural/reference equality split from
// spec.md §3.3, including numeric collapse of integral floats.
func Equal(a, b Value) bool {
	if a == nil {
		a = NilValue
	}
	if b == nil {
		b = NilValue
	}
	switch x := a.(type) {
	case Int:
		switch y := b.(type) {
		case Int:
			return x == y
		case Float:
			return float64(x) == float64(y)
		}
		return false
	case Float:
		switch y := b.(type) {
		case Int:
			return float64(x) == float64(y)
		case Float:
			return x == y
		}
		return false
	case Nil:
		_, ok := b.(Nil)
		return ok
	case Bool:
		y, ok := b.(Bool)
		return ok && x == y
	case Char:
		y, ok := b.(Char)
		return ok && x == y
	case String:
		y, ok := b.(String)
		return ok && x == y
	case *Keyword:
		y, ok := b.(*Keyword)
		return ok && x == y
	case *Symbol:
		y, ok := b.(*Symbol)
		return ok && x == y
	case *List:
		return seqEqual(x, b)
	case *Vector:
		return seqEqual(x, b)
	case *Map:
		return mapEqual(x, b)
	case *Set:
		return setEqual(x, b)
	default:
		return a == b
	}
}

// seqEqual compares List/Vector element-wise regardless of concrete
// collection kind, per spec.md §3.3: "list and vector are equal iff same
// length and element-wise equal".
func seqEqual(a Seqable, bv Value) bool {
	b, ok := bv.(Seqable)
	if !ok {
		return false
	}
	for {
		aEmpty, bEmpty := a.IsEmpty(), b.IsEmpty()
		if aEmpty != bEmpty {
			return false
		}
		if aEmpty {
			return true
		}
		if !Equal(a.First(), b.First()) {
			return false
		}
		a, ok = a.Rest().(Seqable)
		if !ok {
			return false
		}
		b, ok = b.Rest().(Seqable)
		if !ok {
			return false
		}
	}
}
