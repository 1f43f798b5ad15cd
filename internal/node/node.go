// Package node is the analyzer's output data model (spec.md §3.2): a
// tagged sum with one variant per special form plus leaf nodes. Nodes
// are plain Go values that internal/alloc does not track; only runtime
// Values an evaluator builds from them (a Fn closure, a def'd value)
// are registered with the persistent arena.
package node

import (
	"github.com/clj-embed/cloj/internal/diagnostics"
	"github.com/clj-embed/cloj/internal/value"
)

type Node interface {
	isNode()
	Loc() diagnostics.Loc
}

type base struct{ loc diagnostics.Loc }

func (b base) Loc() diagnostics.Loc { return b.loc }

type Constant struct {
	base
	Value value.Value
}

type VarRef struct {
	base
	Var *value.Var
}

// LocalRef is a de-Bruijn-like slot reference (spec.md §3.2/§4.3): Index
// is the absolute slot the analyzer's scope counter assigned, counted
// across the whole top-level form (nested fn bodies continue the same
// count); Name is kept only for diagnostics.
type LocalRef struct {
	base
	Name  string
	Index int
}

type If struct {
	base
	Test, Then, Else Node
}

type Do struct {
	base
	Stmts []Node
}

// Binding pairs a destructured name with its init expression. Index is
// the slot the analyzer's scope counter assigned it (spec.md §4.3), so
// an evaluator can bind the same absolute index a LocalRef elsewhere in
// the tree will look up.
type Binding struct {
	Name  string
	Init  Node
	Index int
}

type Let struct {
	base
	Bindings []Binding
	Body     Node
}

// LetfnBinding pairs a name with the Fn node that becomes its closure;
// all bindings in a Letfn capture the same extended context (spec.md §4.4).
type LetfnBinding struct {
	Name  string
	Fn    *Fn
	Index int
}

type Letfn struct {
	base
	Bindings []LetfnBinding
	Body     Node
}

// Loop is a Let that is additionally a valid Recur target.
type Loop struct {
	base
	Bindings []Binding
	Body     Node
}

type Recur struct {
	base
	Args []Node
}

// Arity is one parameter signature of a Fn. SelfIndex is the slot a
// named fn's own name is bound to within its own body, for recursive
// self-reference without going through a Var lookup (-1 when the fn is
// anonymous).
type Arity struct {
	Params    []string
	Variadic  bool
	NumParams int
	Body      Node
	SelfIndex int
}

type Fn struct {
	base
	Name    string // "" for anonymous
	Arities []Arity
}

type Call struct {
	base
	Fn   Node
	Args []Node
}

type Def struct {
	base
	Name      string
	Init      Node // nil for a bare `(def x)`
	IsMacro   bool
	IsDynamic bool
	Doc       string
	Arglists  value.Value
}

type Quote struct {
	base
	Form value.Value
}

type Throw struct {
	base
	Expr Node
}

type Catch struct {
	Binding string
	Index   int
	Body    Node
}

type Try struct {
	base
	Body    Node
	Catch   *Catch
	Finally Node // nil if absent
}

type Defmulti struct {
	base
	Name       string
	DispatchFn Node
}

type Defmethod struct {
	base
	Name         string
	DispatchVal  Node
	MethodFn     *Fn
}

type ProtoMethodSig struct {
	Name  string
	Arity int
}

type Defprotocol struct {
	base
	Name       string
	MethodSigs []ProtoMethodSig
}

type ExtensionMethod struct {
	Name string
	Fn   *Fn
}

type Extension struct {
	ProtocolName string
	Methods      []ExtensionMethod
}

type ExtendType struct {
	base
	TypeName   string
	Extensions []Extension
}

type LazySeq struct {
	base
	Body Node
}

func (Constant) isNode()    {}
func (VarRef) isNode()      {}
func (LocalRef) isNode()    {}
func (If) isNode()          {}
func (Do) isNode()          {}
func (Let) isNode()         {}
func (Letfn) isNode()       {}
func (Loop) isNode()        {}
func (Recur) isNode()       {}
func (Fn) isNode()          {}
func (Call) isNode()        {}
func (Def) isNode()         {}
func (Quote) isNode()       {}
func (Throw) isNode()       {}
func (Try) isNode()         {}
func (Defmulti) isNode()    {}
func (Defmethod) isNode()   {}
func (Defprotocol) isNode() {}
func (ExtendType) isNode()  {}
func (LazySeq) isNode()     {}

func NewConstant(v value.Value, loc diagnostics.Loc) Constant { return Constant{base{loc}, v} }
func NewVarRef(v *value.Var, loc diagnostics.Loc) VarRef       { return VarRef{base{loc}, v} }
func NewLocalRef(name string, idx int, loc diagnostics.Loc) LocalRef {
	return LocalRef{base{loc}, name, idx}
}

func NewIf(test, then, els Node, loc diagnostics.Loc) If {
	return If{base{loc}, test, then, els}
}
func NewDo(stmts []Node, loc diagnostics.Loc) Do { return Do{base{loc}, stmts} }
func NewLet(bindings []Binding, body Node, loc diagnostics.Loc) Let {
	return Let{base{loc}, bindings, body}
}
func NewLetfn(bindings []LetfnBinding, body Node, loc diagnostics.Loc) Letfn {
	return Letfn{base{loc}, bindings, body}
}
func NewLoop(bindings []Binding, body Node, loc diagnostics.Loc) Loop {
	return Loop{base{loc}, bindings, body}
}
func NewRecur(args []Node, loc diagnostics.Loc) Recur { return Recur{base{loc}, args} }
func NewFn(name string, arities []Arity, loc diagnostics.Loc) *Fn {
	return &Fn{base{loc}, name, arities}
}
func NewCall(fn Node, args []Node, loc diagnostics.Loc) Call {
	return Call{base{loc}, fn, args}
}
func NewDef(name string, init Node, isMacro, isDynamic bool, doc string, arglists value.Value, loc diagnostics.Loc) Def {
	return Def{base{loc}, name, init, isMacro, isDynamic, doc, arglists}
}
func NewQuote(f value.Value, loc diagnostics.Loc) Quote { return Quote{base{loc}, f} }
func NewThrow(expr Node, loc diagnostics.Loc) Throw      { return Throw{base{loc}, expr} }
func NewTry(body Node, catch *Catch, finally Node, loc diagnostics.Loc) Try {
	return Try{base{loc}, body, catch, finally}
}
func NewDefmulti(name string, dispatchFn Node, loc diagnostics.Loc) Defmulti {
	return Defmulti{base{loc}, name, dispatchFn}
}
func NewDefmethod(name string, dispatchVal Node, methodFn *Fn, loc diagnostics.Loc) Defmethod {
	return Defmethod{base{loc}, name, dispatchVal, methodFn}
}
func NewDefprotocol(name string, sigs []ProtoMethodSig, loc diagnostics.Loc) Defprotocol {
	return Defprotocol{base{loc}, name, sigs}
}
func NewExtendType(typeName string, exts []Extension, loc diagnostics.Loc) ExtendType {
	return ExtendType{base{loc}, typeName, exts}
}
func NewLazySeq(body Node, loc diagnostics.Loc) LazySeq { return LazySeq{base{loc}, body} }
