// Package treewalk evaluates node.Node directly against an
// internal/namespace.Env, per spec.md §4.4. It is one of two interpreter
// backends (the other being internal/vm); both satisfy value.Forcer so
// the analyzer's macro expander and value.LazySeq's force step can use
// whichever is active without depending on it.
package treewalk

import (
	"strings"

	"github.com/clj-embed/cloj/internal/alloc"
	"github.com/clj-embed/cloj/internal/diagnostics"
	"github.com/clj-embed/cloj/internal/namespace"
	"github.com/clj-embed/cloj/internal/node"
	"github.com/clj-embed/cloj/internal/value"
)

// Interp is one evaluation session: an Env to resolve/intern Vars
// against and an Allocator to route Scratch/Persistent values through
// (spec.md §5). Fn construction and Def both hand their result to
// Alloc.Persistent so a closure or top-level binding outlives the
// Scratch arena's next reset.
type Interp struct {
	Env   *namespace.Env
	Alloc *alloc.Allocator
}

func New(env *namespace.Env, al *alloc.Allocator) *Interp {
	return &Interp{Env: env, Alloc: al}
}

// recurSignal is returned in place of a real error by a Recur node; Loop
// and the Fn/Call self-tail-call site are the only two places that
// recognize and consume it (spec.md §4.4's "the only form of self-tail-
// call"). Anything else that sees one bubbling up is a bug in the
// analyzer's tail-position check, since analysis rejects a `recur` that
// isn't already in tail position.
type recurSignal struct {
	values []value.Value
}

func (r *recurSignal) Error() string { return "recur outside loop/fn (should have been caught by the analyzer)" }

// Eval runs one top-level node against the namespace's current frame
// (no parent — top-level forms have no enclosing lexical scope), then
// resets Scratch and runs MaybeGC, mirroring spec.md §5's per-expression
// lifecycle.
func (it *Interp) Eval(n node.Node) (value.Value, error) {
	v, err := it.eval(n, newFrame(nil))
	it.Alloc.ResetScratch()
	it.Alloc.MaybeGC(it.gcRoots())
	return v, err
}

// gcRoots hands MarkSweep every currently-interned Var's root across
// every namespace — the simplest sound root set for a process-wide
// persistent arena, since any top-level def could be holding the only
// reference to a closure.
func (it *Interp) gcRoots() []value.Value {
	var roots []value.Value
	for _, nsName := range it.Env.NamespaceNames() {
		ns, ok := it.Env.Namespace(nsName)
		if !ok {
			continue
		}
		for _, v := range ns.Vars() {
			roots = append(roots, v)
		}
	}
	return roots
}

func (it *Interp) eval(n node.Node, fr *frame) (value.Value, error) {
	switch x := n.(type) {
	case node.Constant:
		return x.Value, nil
	case node.VarRef:
		return x.Var.Deref(it.Env.Bindings), nil
	case node.LocalRef:
		v, ok := fr.get(x.Index)
		if !ok {
			return nil, diagnostics.New(diagnostics.UndefinedSymbol, diagnostics.PhaseEval, x.Loc(), "undefined local %s", x.Name)
		}
		return v, nil
	case node.If:
		return it.evalIf(x, fr)
	case node.Do:
		return it.evalDo(x, fr)
	case node.Let:
		return it.evalLet(x, fr)
	case node.Letfn:
		return it.evalLetfn(x, fr)
	case node.Loop:
		return it.evalLoop(x, fr)
	case node.Recur:
		return it.evalRecur(x, fr)
	case *node.Fn:
		return it.evalFn(x, fr), nil
	case node.Call:
		return it.evalCall(x, fr)
	case node.Def:
		return it.evalDef(x, fr)
	case node.Quote:
		return x.Form, nil
	case node.Throw:
		return it.evalThrow(x, fr)
	case node.Try:
		return it.evalTry(x, fr)
	case node.Defmulti:
		return it.evalDefmulti(x, fr)
	case node.Defmethod:
		return it.evalDefmethod(x, fr)
	case node.Defprotocol:
		return it.evalDefprotocol(x, fr)
	case node.ExtendType:
		return it.evalExtendType(x, fr)
	case node.LazySeq:
		return it.evalLazySeq(x, fr), nil
	default:
		return nil, diagnostics.New(diagnostics.InternalError, diagnostics.PhaseEval, n.Loc(), "unhandled node %T", n)
	}
}

func (it *Interp) evalIf(x node.If, fr *frame) (value.Value, error) {
	test, err := it.eval(x.Test, fr)
	if err != nil {
		return nil, err
	}
	if value.Truthy(test) {
		return it.eval(x.Then, fr)
	}
	if x.Else == nil {
		return value.NilValue, nil
	}
	return it.eval(x.Else, fr)
}

func (it *Interp) evalDo(x node.Do, fr *frame) (value.Value, error) {
	if len(x.Stmts) == 0 {
		return value.NilValue, nil
	}
	for _, s := range x.Stmts[:len(x.Stmts)-1] {
		if _, err := it.eval(s, fr); err != nil {
			return nil, err
		}
	}
	return it.eval(x.Stmts[len(x.Stmts)-1], fr)
}

func (it *Interp) evalLet(x node.Let, fr *frame) (value.Value, error) {
	child := newFrame(fr)
	for _, b := range x.Bindings {
		v, err := it.eval(b.Init, child)
		if err != nil {
			return nil, err
		}
		child.set(b.Index, v)
	}
	return it.eval(x.Body, child)
}

func (it *Interp) evalLetfn(x node.Letfn, fr *frame) (value.Value, error) {
	child := newFrame(fr)
	for _, b := range x.Bindings {
		child.set(b.Index, it.evalFn(b.Fn, child))
	}
	return it.eval(x.Body, child)
}

func (it *Interp) evalLoop(x node.Loop, fr *frame) (value.Value, error) {
	child := newFrame(fr)
	idxs := make([]int, len(x.Bindings))
	for i, b := range x.Bindings {
		v, err := it.eval(b.Init, child)
		if err != nil {
			return nil, err
		}
		child.set(b.Index, v)
		idxs[i] = b.Index
	}
	for {
		result, err := it.eval(x.Body, child)
		if rs, ok := err.(*recurSignal); ok {
			for i, idx := range idxs {
				child.set(idx, rs.values[i])
			}
			continue
		}
		return result, err
	}
}

func (it *Interp) evalRecur(x node.Recur, fr *frame) (value.Value, error) {
	vals := make([]value.Value, len(x.Args))
	for i, a := range x.Args {
		v, err := it.eval(a, fr)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return nil, &recurSignal{values: vals}
}

// evalFn builds a value.Fn that closes over fr: each arity's Body is
// wrapped in an fnBody pairing the analyzed node with the frame it
// captured, so a later Call can recreate the right lexical chain no
// matter how many times (or recursively) the Fn is invoked.
func (it *Interp) evalFn(x *node.Fn, fr *frame) *value.Fn {
	arities := make([]value.Arity, len(x.Arities))
	for i, a := range x.Arities {
		arities[i] = value.Arity{
			Params:    a.Params,
			Variadic:  a.Variadic,
			NumParams: a.NumParams,
			Body:      &fnBody{node: a.Body, frame: fr},
			SelfIndex: a.SelfIndex,
		}
	}
	fn := &value.Fn{Name: x.Name, Arities: arities}
	it.Alloc.Persistent.Alloc(fn)
	return fn
}

func (it *Interp) evalDef(x node.Def, fr *frame) (value.Value, error) {
	v := it.Env.CurrentNamespace().Intern(x.Name)
	v.Doc = x.Doc
	v.Arglists = x.Arglists
	v.Macro = x.IsMacro
	v.Dynamic = x.IsDynamic
	if x.Init == nil {
		return v, nil
	}
	val, err := it.eval(x.Init, fr)
	if err != nil {
		return nil, err
	}
	it.Alloc.Persistent.Alloc(val)
	v.SetRoot(val)
	return v, nil
}

func (it *Interp) evalThrow(x node.Throw, fr *frame) (value.Value, error) {
	v, err := it.eval(x.Expr, fr)
	if err != nil {
		return nil, err
	}
	e := diagnostics.New(diagnostics.UserException, diagnostics.PhaseEval, x.Loc(), "%s", v.String())
	e.Thrown = v
	return nil, e
}

func (it *Interp) evalTry(x node.Try, fr *frame) (result value.Value, rerr error) {
	if x.Finally != nil {
		defer func() {
			if _, ferr := it.eval(x.Finally, fr); ferr != nil && rerr == nil {
				rerr = ferr
			}
		}()
	}
	result, err := it.eval(x.Body, fr)
	if err == nil {
		return result, nil
	}
	if _, ok := err.(*recurSignal); ok {
		return nil, err
	}
	if x.Catch == nil {
		return nil, err
	}
	caught := errorToValue(err)
	child := newFrame(fr)
	child.set(x.Catch.Index, caught)
	result, err = it.eval(x.Catch.Body, child)
	return result, err
}

// errorToValue implements spec.md §4.4's try/catch delivery rule: a
// user_exception delivers its raw Thrown value, anything else is
// converted to a `{:type kw, :message str}` map so `catch` always binds
// a Value, never a Go error.
func errorToValue(err error) value.Value {
	de, ok := err.(*diagnostics.Error)
	if !ok {
		return value.NewMap(value.InternKeyword("", "type"), value.InternKeyword("", "internal-error"),
			value.InternKeyword("", "message"), value.String(err.Error()))
	}
	if de.Catchable() {
		if v, ok := de.Thrown.(value.Value); ok {
			return v
		}
	}
	return value.NewMap(
		value.InternKeyword("", "type"), value.InternKeyword("", kindKeywordName(de.Kind)),
		value.InternKeyword("", "message"), value.String(de.Message),
	)
}

// kindKeywordName turns a diagnostics.Kind's snake_case tag (e.g.
// "division_by_zero") into the kebab-case keyword name dialect code
// expects to match against, e.g. :division-by-zero.
func kindKeywordName(k diagnostics.Kind) string {
	return strings.ReplaceAll(string(k), "_", "-")
}

func (it *Interp) evalCall(x node.Call, fr *frame) (value.Value, error) {
	fnVal, err := it.eval(x.Fn, fr)
	if err != nil {
		return nil, err
	}
	args := make([]value.Value, len(x.Args))
	for i, a := range x.Args {
		v, err := it.eval(a, fr)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return it.Call(fnVal, args)
}

// Call implements value.Forcer, dispatching on callee variant per
// spec.md §4.6.3/§4.5's call protocol: Builtin, user Fn (with in-place
// self-tail-call on recur), PartialFn, CompFn, keyword-as-accessor,
// MultiFn, ProtocolFn and Var (redirected through its current value).
func (it *Interp) Call(callee value.Value, args []value.Value) (value.Value, error) {
	switch fn := callee.(type) {
	case *value.Fn:
		return it.callFn(fn, args)
	case *value.PartialFn:
		return it.Call(fn.Fn, append(append([]value.Value(nil), fn.Args...), args...))
	case *value.CompFn:
		return it.callComp(fn, args)
	case *value.Keyword:
		return callKeyword(fn, args)
	case *value.MultiFn:
		return it.callMulti(fn, args)
	case *value.ProtocolFn:
		return it.callProtocol(fn, args)
	case *value.Var:
		return it.Call(fn.Deref(it.Env.Bindings), args)
	default:
		return nil, diagnostics.New(diagnostics.TypeError, diagnostics.PhaseEval, diagnostics.Loc{}, "%s is not callable", describeCallee(callee))
	}
}

func describeCallee(v value.Value) string {
	if v == nil {
		return "nil"
	}
	return v.String()
}

// Force implements value.Forcer's other half: invoking a nullary thunk,
// used by value.LazySeq to realize one step.
func (it *Interp) Force(fn value.Value) (value.Value, error) {
	return it.Call(fn, nil)
}

func (it *Interp) callFn(fn *value.Fn, args []value.Value) (value.Value, error) {
	if fn.Builtin != nil {
		return fn.Builtin(args)
	}
	arity, ok := fn.MatchArity(len(args))
	if !ok {
		return nil, diagnostics.New(diagnostics.InvalidArity, diagnostics.PhaseEval, diagnostics.Loc{}, "%s: no matching arity for %d args", fn.String(), len(args))
	}
	body, ok := arity.Body.(*fnBody)
	if !ok {
		return nil, diagnostics.New(diagnostics.InternalError, diagnostics.PhaseEval, diagnostics.Loc{}, "fn body missing treewalk closure")
	}
	call := newFrame(body.frame)
	if arity.SelfIndex >= 0 {
		call.set(arity.SelfIndex, fn)
	}
	bindArgs(call, arity, args)
	for {
		result, err := it.eval(body.node, call)
		if rs, ok := err.(*recurSignal); ok {
			bindArgs(call, arity, rs.values)
			continue
		}
		return result, err
	}
}

// bindArgs binds positional params 0..NumParams-2 (or NumParams-1 for a
// fixed arity) and, for a variadic arity, packs the remaining args into
// a List bound to the last param slot, per spec.md §4.6.1's variadic
// call convention.
func bindArgs(fr *frame, arity value.Arity, args []value.Value) {
	fixed := arity.NumParams
	if arity.Variadic {
		fixed--
	}
	for i := 0; i < fixed; i++ {
		fr.set(i, args[i])
	}
	if arity.Variadic {
		rest := value.Value(value.EmptyList)
		for i := len(args) - 1; i >= fixed; i-- {
			rest = rest.(*value.List).Conj(args[i])
		}
		fr.set(fixed, rest)
	}
}

func (it *Interp) callComp(c *value.CompFn, args []value.Value) (value.Value, error) {
	if len(c.Fns) == 0 {
		if len(args) == 1 {
			return args[0], nil
		}
		return nil, diagnostics.New(diagnostics.InvalidArity, diagnostics.PhaseEval, diagnostics.Loc{}, "comp of no functions requires exactly 1 arg")
	}
	result, err := it.Call(c.Fns[len(c.Fns)-1], args)
	if err != nil {
		return nil, err
	}
	for i := len(c.Fns) - 2; i >= 0; i-- {
		result, err = it.Call(c.Fns[i], []value.Value{result})
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

func callKeyword(kw *value.Keyword, args []value.Value) (value.Value, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, diagnostics.New(diagnostics.InvalidArity, diagnostics.PhaseEval, diagnostics.Loc{}, "keyword invoked as fn takes 1 or 2 args")
	}
	var notFound value.Value = value.NilValue
	if len(args) == 2 {
		notFound = args[1]
	}
	switch coll := args[0].(type) {
	case *value.Map:
		if v, ok := coll.Get(kw); ok {
			return v, nil
		}
		return notFound, nil
	case *value.Set:
		if coll.Contains(kw) {
			return kw, nil
		}
		return notFound, nil
	case value.Nil:
		return notFound, nil
	default:
		return notFound, nil
	}
}

func (it *Interp) callMulti(m *value.MultiFn, args []value.Value) (value.Value, error) {
	dispatchVal, err := it.Call(m.DispatchFn, args)
	if err != nil {
		return nil, err
	}
	fn, ok := m.Resolve(dispatchVal)
	if !ok {
		return nil, diagnostics.New(diagnostics.TypeError, diagnostics.PhaseEval, diagnostics.Loc{}, "no method in multimethod %s for dispatch value %s", m.Name, dispatchVal.String())
	}
	return it.Call(fn, args)
}

func (it *Interp) callProtocol(p *value.ProtocolFn, args []value.Value) (value.Value, error) {
	if len(args) < 1 {
		return nil, diagnostics.New(diagnostics.InvalidArity, diagnostics.PhaseEval, diagnostics.Loc{}, "protocol method %s requires a receiver", p.Method)
	}
	fn, ok := p.Resolve(args[0])
	if !ok {
		return nil, diagnostics.New(diagnostics.TypeError, diagnostics.PhaseEval, diagnostics.Loc{}, "no implementation of %s for %s", p.Method, value.TypeKeyword(args[0]))
	}
	return it.Call(fn, args)
}

func (it *Interp) evalDefmulti(x node.Defmulti, fr *frame) (value.Value, error) {
	dispatchFn, err := it.eval(x.DispatchFn, fr)
	if err != nil {
		return nil, err
	}
	v := it.Env.CurrentNamespace().Intern(x.Name)
	mf := value.NewMultiFn(x.Name, dispatchFn)
	it.Alloc.Persistent.Alloc(mf)
	v.SetRoot(mf)
	return v, nil
}

func (it *Interp) evalDefmethod(x node.Defmethod, fr *frame) (value.Value, error) {
	v, ok := it.Env.CurrentNamespace().Lookup(x.Name)
	if !ok {
		return nil, diagnostics.New(diagnostics.UndefinedSymbol, diagnostics.PhaseEval, x.Loc(), "defmethod on undefined multimethod %s", x.Name)
	}
	mf, ok := v.Root().(*value.MultiFn)
	if !ok {
		return nil, diagnostics.New(diagnostics.TypeError, diagnostics.PhaseEval, x.Loc(), "%s is not a multimethod", x.Name)
	}
	dispatchVal, err := it.eval(x.DispatchVal, fr)
	if err != nil {
		return nil, err
	}
	fn := it.evalFn(x.MethodFn, fr)
	if kw, ok := dispatchVal.(*value.Keyword); ok && kw.Ns == "" && kw.Name == "default" {
		mf.Default = fn
	} else {
		mf.AddMethod(dispatchVal, fn)
	}
	return v, nil
}

func (it *Interp) evalDefprotocol(x node.Defprotocol, fr *frame) (value.Value, error) {
	proto := value.NewProtocol(x.Name)
	for _, sig := range x.MethodSigs {
		proto.MethodSigs = append(proto.MethodSigs, value.ProtocolMethodSig{Name: sig.Name, Arity: sig.Arity})
	}
	it.Alloc.Persistent.Alloc(proto)
	ns := it.Env.CurrentNamespace()
	protoVar := ns.Intern(x.Name)
	protoVar.SetRoot(proto)
	for _, sig := range proto.MethodSigs {
		mv := ns.Intern(sig.Name)
		mv.SetRoot(&value.ProtocolFn{Protocol: proto, Method: sig.Name})
	}
	return protoVar, nil
}

func (it *Interp) evalExtendType(x node.ExtendType, fr *frame) (value.Value, error) {
	typeKey := typeKeywordForName(x.TypeName)
	for _, ext := range x.Extensions {
		v, ok := it.Env.Resolve("", ext.ProtocolName)
		if !ok {
			return nil, diagnostics.New(diagnostics.UndefinedSymbol, diagnostics.PhaseEval, x.Loc(), "extend-type references undefined protocol %s", ext.ProtocolName)
		}
		proto, ok := v.Root().(*value.Protocol)
		if !ok {
			return nil, diagnostics.New(diagnostics.TypeError, diagnostics.PhaseEval, x.Loc(), "%s is not a protocol", ext.ProtocolName)
		}
		for _, m := range ext.Methods {
			fn := it.evalFn(m.Fn, fr)
			proto.ExtendType(typeKey, m.Name, fn)
		}
	}
	return value.NilValue, nil
}

// typeKeywordForName maps an extend-type type symbol (as written in
// source, e.g. "String"/"Integer") onto the same lower-case type-keyword
// vocabulary value.TypeKeyword produces for runtime values, so a
// ProtocolFn's args[0] lookup and an extend-type's registration land on
// the same key.
func typeKeywordForName(name string) string {
	switch name {
	case "String":
		return "string"
	case "Integer", "Long":
		return "integer"
	case "Float", "Double":
		return "float"
	case "Boolean":
		return "boolean"
	case "Character", "Char":
		return "char"
	case "Keyword":
		return "keyword"
	case "Symbol":
		return "symbol"
	case "List":
		return "list"
	case "Vector":
		return "vector"
	case "Map":
		return "map"
	case "Set":
		return "set"
	case "Fn", "Function":
		return "function"
	case "nil", "Nil":
		return "nil"
	default:
		return name
	}
}

func (it *Interp) evalLazySeq(x node.LazySeq, fr *frame) value.Value {
	thunkFn := &value.Fn{Arities: []value.Arity{{Body: &fnBody{node: x.Body, frame: fr}, NumParams: 0, SelfIndex: -1}}}
	return value.NewUnrealizedSeq(thunkFn)
}
