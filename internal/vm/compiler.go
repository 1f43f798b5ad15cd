package vm

import (
	"github.com/clj-embed/cloj/internal/diagnostics"
	"github.com/clj-embed/cloj/internal/node"
	"github.com/clj-embed/cloj/internal/value"
)

// Compiler lowers one node.Node tree to a Chunk plus a nested
// value.FnProto per Fn arity encountered (spec.md §4.5). It carries no
// symbol table: local slot numbers are the analyzer's own absolute
// LocalRef/Binding indices (internal/analyzer/scope.go), so the
// compiler only ever transcribes an index already computed upstream —
// the same scheme internal/treewalk's frame.go keys its sparse slot map
// by, which is what lets recur/closure semantics agree between backends
// without the compiler doing its own scope resolution pass.
type Compiler struct {
	chunk *Chunk
}

// Compile lowers one top-level node to a value.FnProto the VM can call
// through as if it were a zero-argument Fn — unifying top-level Eval and
// ordinary function invocation onto the same call/return machinery.
func Compile(n node.Node) (*value.FnProto, error) {
	c := &Compiler{chunk: newChunk()}
	if err := c.compile(n); err != nil {
		return nil, err
	}
	c.chunk.emit(OpRet, 0)
	return c.chunk.toProto("", 0, false, 0), nil
}

func (c *Compiler) compile(n node.Node) error {
	switch x := n.(type) {
	case node.Constant:
		return c.compileConstant(x.Value)
	case node.VarRef:
		idx := c.chunk.addConstant(x.Var)
		c.chunk.emit(OpVarLoad, idx)
		return nil
	case node.LocalRef:
		c.chunk.emit(OpLocalLoad, encodeIndex(x.Index))
		return nil
	case node.If:
		return c.compileIf(x)
	case node.Do:
		return c.compileDo(x)
	case node.Let:
		return c.compileLet(x)
	case node.Letfn:
		return c.compileLetfn(x)
	case node.Loop:
		return c.compileLoop(x)
	case node.Recur:
		return c.compileRecur(x)
	case *node.Fn:
		return c.compileFn(x)
	case node.Call:
		return c.compileCall(x)
	case node.Def:
		return c.compileDef(x)
	case node.Quote:
		idx := c.chunk.addConstant(x.Form)
		c.chunk.emit(OpConstLoad, idx)
		return nil
	case node.Throw:
		return c.compileThrow(x)
	case node.Try:
		return c.compileTry(x)
	case node.Defmulti:
		return c.compileDefmulti(x)
	case node.Defmethod:
		return c.compileDefmethod(x)
	case node.Defprotocol:
		return c.compileDefprotocol(x)
	case node.ExtendType:
		return c.compileExtendType(x)
	case node.LazySeq:
		return c.compileLazySeq(x)
	default:
		return diagnostics.New(diagnostics.InternalError, diagnostics.PhaseEval, n.Loc(), "vm: unhandled node %T", n)
	}
}

// encodeIndex bit-casts a local index into the instruction's u16
// operand (spec.md §4.5: "signed operands are interpreted via
// bit-casting"); the analyzer's counter never produces a negative
// index, so every real LocalRef round-trips as a positive value.
func encodeIndex(i int) uint16 { return uint16(int16(i)) }
func decodeIndex(u uint16) int { return int(int16(u)) }

func (c *Compiler) compileConstant(v value.Value) error {
	switch v.(type) {
	case nil, value.Nil:
		c.chunk.emit(OpNilVal, 0)
		return nil
	case value.Bool:
		if value.Truthy(v) {
			c.chunk.emit(OpTrueVal, 0)
		} else {
			c.chunk.emit(OpFalseVal, 0)
		}
		return nil
	}
	if n, ok := v.(value.Int); ok {
		switch n {
		case 0:
			c.chunk.emit(OpInt0, 0)
			return nil
		case 1:
			c.chunk.emit(OpInt1, 0)
			return nil
		case -1:
			c.chunk.emit(OpIntNeg1, 0)
			return nil
		}
	}
	idx := c.chunk.addConstant(v)
	c.chunk.emit(OpConstLoad, idx)
	return nil
}

func (c *Compiler) compileIf(x node.If) error {
	if err := c.compile(x.Test); err != nil {
		return err
	}
	jElse := c.chunk.emit(OpJumpIfFalse, 0)
	if err := c.compile(x.Then); err != nil {
		return err
	}
	jEnd := c.chunk.emit(OpJump, 0)
	c.chunk.patch(jElse, encodeIndex(c.chunk.here()))
	if x.Else == nil {
		c.chunk.emit(OpNilVal, 0)
	} else if err := c.compile(x.Else); err != nil {
		return err
	}
	c.chunk.patch(jEnd, encodeIndex(c.chunk.here()))
	return nil
}

func (c *Compiler) compileDo(x node.Do) error {
	if len(x.Stmts) == 0 {
		c.chunk.emit(OpNilVal, 0)
		return nil
	}
	for _, s := range x.Stmts[:len(x.Stmts)-1] {
		if err := c.compile(s); err != nil {
			return err
		}
		c.chunk.emit(OpPop, 0)
	}
	return c.compile(x.Stmts[len(x.Stmts)-1])
}

// compileLet pushes a bare lexical scope (loop_start with the "no
// recur target" sentinel operand), evaluates each binding's init
// against that same scope so later bindings can see earlier ones (spec.md
// §4.3, matching treewalk.evalLet's `child`-against-`child` evaluation),
// then pops the scope with scope_exit while leaving the body's result on
// the stack.
func (c *Compiler) compileLet(x node.Let) error {
	c.chunk.emit(OpLoopStart, noRecurSentinel)
	for _, b := range x.Bindings {
		if err := c.compile(b.Init); err != nil {
			return err
		}
		c.chunk.emit(OpLocalStore, encodeIndex(b.Index))
	}
	if err := c.compile(x.Body); err != nil {
		return err
	}
	c.chunk.emit(OpScopeExit, 0)
	return nil
}

func (c *Compiler) compileLetfn(x node.Letfn) error {
	c.chunk.emit(OpLoopStart, noRecurSentinel)
	for _, b := range x.Bindings {
		if err := c.compileFnInto(b.Fn, b.Index); err != nil {
			return err
		}
		c.chunk.emit(OpLocalStore, encodeIndex(b.Index))
	}
	if err := c.compile(x.Body); err != nil {
		return err
	}
	c.chunk.emit(OpScopeExit, 0)
	return nil
}

// compileLoop arms loop_start's recur target once the body's bytecode
// offset and binding indices are known, by patching the operand after
// the fact — the same forward-patch technique used for jump targets.
func (c *Compiler) compileLoop(x node.Loop) error {
	loopStartAt := c.chunk.emit(OpLoopStart, 0)
	for _, b := range x.Bindings {
		if err := c.compile(b.Init); err != nil {
			return err
		}
		c.chunk.emit(OpLocalStore, encodeIndex(b.Index))
	}
	bodyIP := c.chunk.here()
	indices := make([]value.Value, len(x.Bindings)+1)
	indices[0] = value.Int(bodyIP)
	for i, b := range x.Bindings {
		indices[i+1] = value.Int(b.Index)
	}
	idx := c.chunk.addConstant(value.NewVector(indices...))
	c.chunk.patch(loopStartAt, idx)
	if err := c.compile(x.Body); err != nil {
		return err
	}
	c.chunk.emit(OpScopeExit, 0)
	return nil
}

// compileRecur emits each arg (left to right) then pops them back into
// the nearest recur target's slots (right to left, since the stack is
// LIFO), exactly mirroring value order in node.Recur; the opcode itself
// only carries argc, since the target (indices/variadic-ness/jump
// point) is resolved dynamically at run time by walking env.parent for
// the nearest armed scope (vm.go's (*env).findRecur) — an env chain
// mirrors lexical nesting one-to-one, so this reaches the same target
// the analyzer's own tail-position check already validated statically.
func (c *Compiler) compileRecur(x node.Recur) error {
	for _, a := range x.Args {
		if err := c.compile(a); err != nil {
			return err
		}
	}
	c.chunk.emit(OpRecur, encodeIndex(len(x.Args)))
	return nil
}

// compileFn builds one value.FnProto per arity and wires them into a
// single *value.Fn value at runtime: for a single arity, `closure`
// pushes a ready-to-call Fn directly; for multiple arities,
// `closure_multi` gathers the N preceding closures (each built by its
// own nested `closure`) into one multi-arity Fn.
func (c *Compiler) compileFn(x *node.Fn) error {
	for _, a := range x.Arities {
		if err := c.compileArity(x.Name, a); err != nil {
			return err
		}
	}
	if len(x.Arities) == 1 {
		return nil
	}
	c.chunk.emit(OpClosureMulti, encodeIndex(len(x.Arities)))
	return nil
}

// compileFnInto compiles a letfn binding's Fn the same way compileFn
// does, but is named separately since a future letfn-specific fixup
// (self-reference across siblings via letfn_fixup) would hook in here.
func (c *Compiler) compileFnInto(fn *node.Fn, _ int) error {
	return c.compileFn(fn)
}

func (c *Compiler) compileArity(name string, a node.Arity) error {
	sub := &Compiler{chunk: newChunk()}
	if err := sub.compile(a.Body); err != nil {
		return err
	}
	sub.chunk.emit(OpRet, 0)
	proto := sub.chunk.toProto(name, a.NumParams, a.Variadic, a.NumParams)
	protoConst := c.chunk.addConstant(proto)
	selfConst := c.chunk.addConstant(value.Int(a.SelfIndex))
	c.chunk.emit(OpConstLoad, protoConst)
	c.chunk.emit(OpConstLoad, selfConst)
	c.chunk.emit(OpClosure, 0)
	return nil
}

func (c *Compiler) compileCall(x node.Call) error {
	if err := c.compile(x.Fn); err != nil {
		return err
	}
	for _, a := range x.Args {
		if err := c.compile(a); err != nil {
			return err
		}
	}
	c.chunk.emit(OpCall, encodeIndex(len(x.Args)))
	return nil
}

func (c *Compiler) compileDef(x node.Def) error {
	hasInit := x.Init != nil
	if hasInit {
		if err := c.compile(x.Init); err != nil {
			return err
		}
	}
	meta := value.NewVector(
		value.String(x.Name),
		value.Bool(x.IsDynamic),
		value.Bool(hasInit),
		value.String(x.Doc),
		arglistsOrNil(x.Arglists),
	)
	idx := c.chunk.addConstant(meta)
	if x.IsMacro {
		c.chunk.emit(OpDefMacro, idx)
	} else {
		c.chunk.emit(OpDef, idx)
	}
	return nil
}

func arglistsOrNil(v value.Value) value.Value {
	if v == nil {
		return value.NilValue
	}
	return v
}

func (c *Compiler) compileThrow(x node.Throw) error {
	if err := c.compile(x.Expr); err != nil {
		return err
	}
	c.chunk.emit(OpThrowEx, 0)
	return nil
}

// compileTry implements spec.md §4.5's exception protocol: try_begin
// records a handler whose catch_ip is patched in once known; the
// normal path pops that handler with catch_begin and jumps past the
// catch routine; the catch routine (reached either by falling off the
// top on a real throw or by the VM's own unwind step converting an
// internal error into an error-info map) binds the caught value and
// runs Catch.Body. finally is compiled once, at the join point both
// paths reach, except when there is no catch clause: a `try` with only
// a `finally` must run it and then propagate the *original* error
// unchanged (its diagnostics.Kind, not a repackaged user_exception), so
// that branch discards the converted catch value and re-raises via
// throw_ex's rethrowPending operand instead of re-compiling Catch-style
// value delivery.
//
// A `try` with neither Catch nor Finally protects nothing, so it skips
// try_begin/catch_begin entirely and just compiles Body.
func (c *Compiler) compileTry(x node.Try) error {
	if x.Catch == nil && x.Finally == nil {
		return c.compile(x.Body)
	}

	tryAt := c.chunk.emit(OpTryBegin, 0)
	if err := c.compile(x.Body); err != nil {
		return err
	}
	c.chunk.emit(OpCatchBegin, 0)
	jOverCatch := c.chunk.emit(OpJump, 0)

	catchIP := c.chunk.here()
	c.chunk.patch(tryAt, encodeIndex(catchIP))
	if x.Catch != nil {
		c.chunk.emit(OpLocalStore, encodeIndex(x.Catch.Index))
		if err := c.compile(x.Catch.Body); err != nil {
			return err
		}
	} else {
		c.chunk.emit(OpPop, 0) // discard the converted value; we rethrow the original below
		if err := c.compile(x.Finally); err != nil {
			return err
		}
		c.chunk.emit(OpPop, 0)
		c.chunk.emit(OpThrowEx, rethrowPendingOperand)
	}

	c.chunk.patch(jOverCatch, encodeIndex(c.chunk.here()))
	if x.Finally != nil {
		if err := c.compile(x.Finally); err != nil {
			return err
		}
		c.chunk.emit(OpPop, 0)
	}
	return nil
}

func (c *Compiler) compileDefmulti(x node.Defmulti) error {
	if err := c.compile(x.DispatchFn); err != nil {
		return err
	}
	idx := c.chunk.addConstant(value.String(x.Name))
	c.chunk.emit(OpDefmulti, idx)
	return nil
}

func (c *Compiler) compileDefmethod(x node.Defmethod) error {
	if err := c.compile(x.DispatchVal); err != nil {
		return err
	}
	if err := c.compileFn(x.MethodFn); err != nil {
		return err
	}
	idx := c.chunk.addConstant(value.String(x.Name))
	c.chunk.emit(OpDefmethod, idx)
	return nil
}

func (c *Compiler) compileDefprotocol(x node.Defprotocol) error {
	sigs := make([]value.Value, len(x.MethodSigs))
	for i, s := range x.MethodSigs {
		sigs[i] = value.NewVector(value.String(s.Name), value.Int(s.Arity))
	}
	meta := value.NewVector(value.String(x.Name), value.NewVector(sigs...))
	idx := c.chunk.addConstant(meta)
	c.chunk.emit(OpDefprotocol, idx)
	return nil
}

func (c *Compiler) compileExtendType(x node.ExtendType) error {
	for _, ext := range x.Extensions {
		for _, m := range ext.Methods {
			if err := c.compileFn(m.Fn); err != nil {
				return err
			}
			meta := value.NewVector(value.String(x.TypeName), value.String(ext.ProtocolName), value.String(m.Name))
			idx := c.chunk.addConstant(meta)
			c.chunk.emit(OpExtendTypeMethod, idx)
		}
	}
	c.chunk.emit(OpNilVal, 0)
	return nil
}

func (c *Compiler) compileLazySeq(x node.LazySeq) error {
	thunk := node.NewFn("", []node.Arity{{NumParams: 0, Variadic: false, Body: x.Body, SelfIndex: -1}}, x.Loc())
	if err := c.compileArity("", thunk.Arities[0]); err != nil {
		return err
	}
	c.chunk.emit(OpLazySeq, 0)
	return nil
}
