package vm

import (
	"strings"

	"github.com/clj-embed/cloj/internal/alloc"
	"github.com/clj-embed/cloj/internal/diagnostics"
	"github.com/clj-embed/cloj/internal/namespace"
	"github.com/clj-embed/cloj/internal/node"
	"github.com/clj-embed/cloj/internal/value"
)

// maxStack/maxFrames/maxHandlers bound the VM's fixed-size stacks
// (spec.md §4.5's VM state), large enough for any realistic program
// this evaluator is asked to run; overrunning one is a genuine
// diagnostics.InternalError, not a panic, since it can be triggered by
// unbounded user recursion.
const (
	maxStack    = 16384
	maxFrames   = 64
	maxHandlers = 64

	// noRecurSentinel marks a loop_start with no armed recur target
	// (plain `let`/`letfn`): findRecur skips straight past it instead of
	// treating it as a candidate.
	noRecurSentinel = 0xffff

	// rethrowPendingOperand marks a throw_ex emitted for a catch-less
	// `try`/`finally`: instead of raising a value popped off the stack,
	// it re-raises whatever error is currently being unwound unchanged,
	// preserving the original diagnostics.Kind through the finally block
	// (compileTry).
	rethrowPendingOperand = 1
)

// env is the VM's lexical scope chain, directly mirroring
// internal/treewalk/frame.go's frame: a sparse slot map plus a parent
// link. Closures capture by holding a reference to the env chain in
// place at closure-creation time (closureBody.env), exactly as
// treewalk's fnBody does, so both backends resolve the same
// globally-unique LocalRef/Binding index the same way and can never
// diverge on capture semantics.
type env struct {
	slots  map[int]value.Value
	parent *env
	recur  *recurTarget
}

// recurTarget is armed on the env pushed by loop_start for a Loop (and
// a call frame's top-level call env for a Fn), and left nil for a bare
// `let`/`letfn` scope — recur dynamically walks parent links to find
// the nearest one, the same way a lexical analyzer would statically,
// since the env chain mirrors lexical nesting one-to-one.
type recurTarget struct {
	indices  []int
	fixed    int
	variadic bool
	bodyIP   int
	// env is the exact env object loop_start (or the call) armed this
	// target on. A recur found several lexical scopes deeper (nested
	// let/if inside the loop body) must resume iteration with this env
	// reinstated, not the deeper one it was actually evaluated in —
	// otherwise every iteration would chain another throwaway scope
	// onto the front, growing the lookup chain without bound.
	env *env
}

func newEnv(parent *env) *env {
	return &env{slots: map[int]value.Value{}, parent: parent}
}

func (e *env) get(idx int) (value.Value, bool) {
	for cur := e; cur != nil; cur = cur.parent {
		if v, ok := cur.slots[idx]; ok {
			return v, true
		}
	}
	return nil, false
}

// define always writes into this exact env, never an ancestor's slot —
// used the first time a slot is bound (loop_start's own bindings, a
// call's argument binding) so a shadowing name in an enclosing scope
// can never be mistaken for it.
func (e *env) define(idx int, v value.Value) { e.slots[idx] = v }

func (e *env) findRecur() *recurTarget {
	for cur := e; cur != nil; cur = cur.parent {
		if cur.recur != nil {
			return cur.recur
		}
	}
	return nil
}

// closureBody is the VM's counterpart to treewalk's fnBody: a compiled
// prototype plus the env chain in place when the closure was built.
// selfIndex mirrors node.Arity.SelfIndex (not part of value.FnProto,
// since FnProto's shape is spec.md §4.5's own and self-reference is a
// VM-call-time concern, not something the tree-walker's shape needs).
type closureBody struct {
	proto     *value.FnProto
	env       *env
	selfIndex int
}

type callFrame struct {
	proto *value.FnProto
	ip    int
	base  int // value-stack depth at call time, for frame-relative diagnostics
	env   *env
}

type handler struct {
	catchIP  int
	frameIdx int
	sp       int
}

// Interp is the VM's evaluation session, the stack-machine counterpart
// to internal/treewalk.Interp: same Env/Alloc, same value.Forcer
// contract, a fixed-size value stack and call-frame stack instead of Go
// call-stack recursion (spec.md §4.5).
type Interp struct {
	Env   *namespace.Env
	Alloc *alloc.Allocator

	stack    []value.Value
	sp       int
	frames   []*callFrame
	handlers []handler

	// pendingThrow is the raw error unwind last matched a handler
	// against; throw_ex's rethrowPendingOperand re-raises this directly
	// so a catch-less try/finally doesn't have to round-trip the error
	// through a Value and lose its diagnostics.Kind.
	pendingThrow error
}

func New(env *namespace.Env, al *alloc.Allocator) *Interp {
	return &Interp{
		Env:   env,
		Alloc: al,
		stack: make([]value.Value, maxStack),
	}
}

// Eval compiles n to a FnProto and calls through it with zero
// arguments, unifying top-level evaluation with ordinary function
// invocation; mirrors treewalk.Interp.Eval's per-expression Scratch
// reset + MaybeGC lifecycle (spec.md §5).
func (it *Interp) Eval(n node.Node) (value.Value, error) {
	proto, err := Compile(n)
	if err != nil {
		return nil, err
	}
	v, err := it.callProto(proto, newEnv(nil), nil, -1)
	it.Alloc.ResetScratch()
	it.Alloc.MaybeGC(it.gcRoots())
	return v, err
}

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

func (it *Interp) push(v value.Value) error {
	if it.sp >= len(it.stack) {
		return diagnostics.New(diagnostics.InternalError, diagnostics.PhaseEval, diagnostics.Loc{}, "vm: value stack overflow")
	}
	it.stack[it.sp] = v
	it.sp++
	return nil
}

func (it *Interp) pop() value.Value {
	it.sp--
	v := it.stack[it.sp]
	it.stack[it.sp] = nil
	return v
}

// callProto runs proto's bytecode in a fresh env chained off
// closureEnv (nil for a top-level Eval), with args already bound into
// that env by the caller, selfIndex (-1 if none) bound to self when
// self != nil — implementing spec.md §4.5's "user Fn" call protocol.
func (it *Interp) callProto(proto *value.FnProto, callEnv *env, self value.Value, selfIndex int) (value.Value, error) {
	if len(it.frames) >= maxFrames {
		return nil, diagnostics.New(diagnostics.InternalError, diagnostics.PhaseEval, diagnostics.Loc{}, "vm: call frame overflow")
	}
	if selfIndex >= 0 && self != nil {
		callEnv.define(selfIndex, self)
	}
	frame := &callFrame{proto: proto, base: it.sp}
	it.frames = append(it.frames, frame)
	frame.env = callEnv
	result, err := it.run(frame)
	it.frames = it.frames[:len(it.frames)-1]
	return result, err
}

// run executes frame's bytecode to completion (a ret opcode), handling
// recur by rebinding the target env's slots and jumping back rather
// than recursing, and converting any error surfacing mid-instruction
// into an exception-table lookup against it.handlers before giving up
// and returning it to the caller (spec.md §4.5's exception protocol).
func (it *Interp) run(frame *callFrame) (value.Value, error) {
	code := frame.proto.Code
	constants := frame.proto.Constants
	fr := frame.env
	for {
		if frame.ip >= len(code) {
			return value.NilValue, nil
		}
		op, operand := unpack(code[frame.ip])
		frame.ip++

		var stepErr error
		switch op {
		case OpConstLoad:
			stepErr = it.push(constants[operand])
		case OpNilVal:
			stepErr = it.push(value.NilValue)
		case OpTrueVal:
			stepErr = it.push(value.Bool(true))
		case OpFalseVal:
			stepErr = it.push(value.Bool(false))
		case OpInt0:
			stepErr = it.push(value.Int(0))
		case OpInt1:
			stepErr = it.push(value.Int(1))
		case OpIntNeg1:
			stepErr = it.push(value.Int(-1))

		case OpPop:
			it.pop()
		case OpDup:
			top := it.stack[it.sp-1]
			stepErr = it.push(top)
		case OpSwap:
			it.stack[it.sp-1], it.stack[it.sp-2] = it.stack[it.sp-2], it.stack[it.sp-1]
		case OpScopeExit:
			fr = fr.parent
			frame.env = fr

		case OpLocalLoad, OpLocalLoad0, OpLocalLoad1, OpLocalLoad2, OpLocalLoad3:
			idx := localFixedIndex(op, operand)
			v, ok := fr.get(idx)
			if !ok {
				stepErr = diagnostics.New(diagnostics.UndefinedSymbol, diagnostics.PhaseEval, diagnostics.Loc{}, "vm: undefined local slot %d", idx)
			} else {
				stepErr = it.push(v)
			}
		case OpLocalStore:
			fr.define(decodeIndex(operand), it.pop())

		case OpVarLoad, OpVarLoadDynamic:
			v := constants[operand].(*value.Var)
			stepErr = it.push(v.Deref(it.Env.Bindings))
		case OpDef, OpDefMacro:
			stepErr = it.execDef(op, constants[operand].(*value.Vector))

		case OpDefmulti:
			dispatchFn := it.pop()
			name := string(constants[operand].(value.String))
			stepErr = it.push(it.execDefmulti(name, dispatchFn))
		case OpDefmethod:
			methodFn := it.pop()
			dispatchVal := it.pop()
			name := string(constants[operand].(value.String))
			v, err := it.execDefmethod(name, dispatchVal, methodFn)
			if err != nil {
				stepErr = err
			} else {
				stepErr = it.push(v)
			}
		case OpDefprotocol:
			meta := constants[operand].(*value.Vector)
			stepErr = it.push(it.execDefprotocol(meta))
		case OpExtendTypeMethod:
			fn := it.pop()
			meta := constants[operand].(*value.Vector)
			stepErr = it.execExtendType(meta, fn)

		case OpJump:
			frame.ip = decodeIndex(operand)
		case OpJumpIfFalse:
			if !value.Truthy(it.pop()) {
				frame.ip = decodeIndex(operand)
			}
		case OpJumpIfTrue:
			if value.Truthy(it.pop()) {
				frame.ip = decodeIndex(operand)
			}
		case OpJumpIfNil:
			if _, isNil := it.pop().(value.Nil); isNil {
				frame.ip = decodeIndex(operand)
			}
		case OpJumpBack:
			frame.ip = decodeIndex(operand)

		case OpCall, OpCall0, OpCall1, OpCall2, OpCall3, OpTailCall:
			argc := callArgc(op, operand)
			args := make([]value.Value, argc)
			for i := argc - 1; i >= 0; i-- {
				args[i] = it.pop()
			}
			callee := it.pop()
			v, err := it.Call(callee, args)
			if err != nil {
				stepErr = err
			} else {
				stepErr = it.push(v)
			}
		case OpRet:
			return it.pop(), nil

		case OpClosure:
			selfConst := it.pop()
			proto := it.pop().(*value.FnProto)
			selfIdx := int(selfConst.(value.Int))
			fn := &value.Fn{
				Name: proto.Name,
				Arities: []value.Arity{{
					NumParams: proto.Arity,
					Variadic:  proto.Variadic,
					Body:      &closureBody{proto: proto, env: fr, selfIndex: selfIdx},
					SelfIndex: selfIdx,
				}},
			}
			it.Alloc.Persistent.Alloc(fn)
			stepErr = it.push(fn)
		case OpClosureMulti:
			n := int(decodeIndex(operand))
			built := make([]*value.Fn, n)
			for i := n - 1; i >= 0; i-- {
				built[i] = it.pop().(*value.Fn)
			}
			arities := make([]value.Arity, n)
			for i, f := range built {
				arities[i] = f.Arities[0]
			}
			fn := &value.Fn{Name: built[0].Name, Arities: arities}
			it.Alloc.Persistent.Alloc(fn)
			stepErr = it.push(fn)
		case OpLazySeq:
			proto := it.pop().(*value.FnProto)
			thunk := &value.Fn{Arities: []value.Arity{{
				NumParams: 0,
				Body:      &closureBody{proto: proto, env: fr, selfIndex: -1},
				SelfIndex: -1,
			}}}
			stepErr = it.push(value.NewUnrealizedSeq(thunk))

		case OpLoopStart:
			child := newEnv(fr)
			if operand != noRecurSentinel {
				spec := constants[operand].(*value.Vector)
				n := spec.Count() - 1
				indices := make([]int, n)
				for i := 0; i < n; i++ {
					v, _ := spec.Nth(i + 1)
					indices[i] = int(v.(value.Int))
				}
				bodyIP, _ := spec.Nth(0)
				child.recur = &recurTarget{
					indices: indices,
					fixed:   n,
					bodyIP:  int(bodyIP.(value.Int)),
					env:     child,
				}
			}
			fr = child
			frame.env = fr
		case OpRecur:
			argc := decodeIndex(operand)
			args := make([]value.Value, argc)
			for i := argc - 1; i >= 0; i-- {
				args[i] = it.pop()
			}
			rt := fr.findRecur()
			if rt == nil {
				stepErr = diagnostics.New(diagnostics.InternalError, diagnostics.PhaseEval, diagnostics.Loc{}, "vm: recur outside loop/fn")
			} else {
				packRecurArgs(rt.env, rt, args)
				fr = rt.env
				frame.env = fr
				frame.ip = rt.bodyIP
			}
		case OpLetfnFixup:
			// no-op: letfn bindings already see a shared env by
			// construction (compileLetfn stores each closure into the
			// same child env created by loop_start before the body runs).

		case OpTryBegin:
			it.handlers = append(it.handlers, handler{catchIP: decodeIndex(operand), frameIdx: len(it.frames) - 1, sp: it.sp})
		case OpCatchBegin:
			if len(it.handlers) > 0 {
				it.handlers = it.handlers[:len(it.handlers)-1]
			}
		case OpFinallyBegin, OpTryEnd:
			// markers only; compileTry never relies on the VM acting on
			// these directly, since the finally/rethrow bytecode is
			// inlined at compile time on both the normal and exceptional
			// paths.
		case OpThrowEx:
			if operand == rethrowPendingOperand {
				stepErr = it.pendingThrow
			} else {
				v := it.pop()
				e := diagnostics.New(diagnostics.UserException, diagnostics.PhaseEval, diagnostics.Loc{}, "%s", v.String())
				e.Thrown = v
				stepErr = e
			}

		case OpNop:
		case OpDebugPrint:
			_ = it.pop()

		default:
			stepErr = diagnostics.New(diagnostics.InternalError, diagnostics.PhaseEval, diagnostics.Loc{}, "vm: unimplemented opcode %s", op)
		}

		if stepErr != nil {
			v, catchIP, handled := it.unwind(stepErr, len(it.frames)-1)
			if !handled {
				// The nearest handler (if any) belongs to an outer,
				// already-running frame further down the Go call stack:
				// callProto always pops its frame before returning, so
				// propagating the plain error here lets that frame's own
				// run loop retry unwind() once control naturally returns
				// to it, at which point the frame depths will match.
				return nil, stepErr
			}
			frame.ip = catchIP
			if err := it.push(v); err != nil {
				return nil, err
			}
			continue
		}
	}
}

// unwind looks for a handler belonging to exactly myFrameIdx (the
// frame currently running this loop): on a hit it pops that handler,
// rewinds the value stack to its recorded depth, and returns the
// converted error value plus the catch_ip to resume at (spec.md
// §4.5's try/catch/finally protocol collapsed onto a flat handler
// stack, since handlers are always pushed/popped in strict LIFO
// alignment with their try region). A handler belonging to a shallower
// frame is left untouched for that frame to claim later.
func (it *Interp) unwind(stepErr error, myFrameIdx int) (value.Value, int, bool) {
	if len(it.handlers) == 0 {
		return nil, 0, false
	}
	h := it.handlers[len(it.handlers)-1]
	if h.frameIdx != myFrameIdx {
		return nil, 0, false
	}
	it.handlers = it.handlers[:len(it.handlers)-1]
	it.sp = h.sp
	it.pendingThrow = stepErr
	return errorToValue(stepErr), h.catchIP, true
}

func localFixedIndex(op Opcode, operand uint16) int {
	switch op {
	case OpLocalLoad0:
		return 0
	case OpLocalLoad1:
		return 1
	case OpLocalLoad2:
		return 2
	case OpLocalLoad3:
		return 3
	default:
		return decodeIndex(operand)
	}
}

func callArgc(op Opcode, operand uint16) int {
	switch op {
	case OpCall0:
		return 0
	case OpCall1:
		return 1
	case OpCall2:
		return 2
	case OpCall3:
		return 3
	default:
		return decodeIndex(operand)
	}
}

// packRecurArgs rebinds a recur target's slots in place, packing any
// trailing args into a List for the last slot when the target arity is
// variadic — the VM's counterpart to treewalk.bindArgs, applied on
// every recur instead of only the first call.
func packRecurArgs(fr *env, rt *recurTarget, args []value.Value) {
	fixed := rt.fixed
	variadic := rt.variadic
	if variadic {
		fixed--
	}
	for i := 0; i < fixed && i < len(rt.indices); i++ {
		fr.define(rt.indices[i], args[i])
	}
	if variadic {
		rest := value.Value(value.EmptyList)
		for i := len(args) - 1; i >= fixed; i-- {
			rest = rest.(*value.List).Conj(args[i])
		}
		fr.define(rt.indices[fixed], rest)
	}
}

func (it *Interp) execDef(op Opcode, meta *value.Vector) error {
	name := string(mustGet(meta, 0).(value.String))
	isDynamic := value.Truthy(mustGet(meta, 1))
	hasInit := value.Truthy(mustGet(meta, 2))
	doc := string(mustGet(meta, 3).(value.String))
	arglists := mustGet(meta, 4)

	v := it.Env.CurrentNamespace().Intern(name)
	v.Doc = doc
	v.Arglists = arglists
	v.Macro = op == OpDefMacro
	v.Dynamic = isDynamic
	if !hasInit {
		return it.push(v)
	}
	val := it.pop()
	it.Alloc.Persistent.Alloc(val)
	v.SetRoot(val)
	return it.push(v)
}

func mustGet(vec *value.Vector, i int) value.Value {
	v, _ := vec.Nth(i)
	return v
}

func (it *Interp) execDefmulti(name string, dispatchFn value.Value) value.Value {
	v := it.Env.CurrentNamespace().Intern(name)
	mf := value.NewMultiFn(name, dispatchFn)
	it.Alloc.Persistent.Alloc(mf)
	v.SetRoot(mf)
	return v
}

func (it *Interp) execDefmethod(name string, dispatchVal, methodFn value.Value) (value.Value, error) {
	v, ok := it.Env.CurrentNamespace().Lookup(name)
	if !ok {
		return nil, diagnostics.New(diagnostics.UndefinedSymbol, diagnostics.PhaseEval, diagnostics.Loc{}, "vm: defmethod on undefined multimethod %s", name)
	}
	mf, ok := v.Root().(*value.MultiFn)
	if !ok {
		return nil, diagnostics.New(diagnostics.TypeError, diagnostics.PhaseEval, diagnostics.Loc{}, "vm: %s is not a multimethod", name)
	}
	if kw, ok := dispatchVal.(*value.Keyword); ok && kw.Ns == "" && kw.Name == "default" {
		mf.Default = methodFn
	} else {
		mf.AddMethod(dispatchVal, methodFn)
	}
	return v, nil
}

func (it *Interp) execDefprotocol(meta *value.Vector) value.Value {
	name := string(mustGet(meta, 0).(value.String))
	sigsVec := mustGet(meta, 1).(*value.Vector)
	proto := value.NewProtocol(name)
	for i := 0; i < sigsVec.Count(); i++ {
		sv, _ := sigsVec.Nth(i)
		pair := sv.(*value.Vector)
		sname, _ := pair.Nth(0)
		sarity, _ := pair.Nth(1)
		proto.MethodSigs = append(proto.MethodSigs, value.ProtocolMethodSig{
			Name: string(sname.(value.String)), Arity: int(sarity.(value.Int)),
		})
	}
	it.Alloc.Persistent.Alloc(proto)
	ns := it.Env.CurrentNamespace()
	protoVar := ns.Intern(name)
	protoVar.SetRoot(proto)
	for _, sig := range proto.MethodSigs {
		mv := ns.Intern(sig.Name)
		mv.SetRoot(&value.ProtocolFn{Protocol: proto, Method: sig.Name})
	}
	return protoVar
}

func (it *Interp) execExtendType(meta *value.Vector, fn value.Value) error {
	typeName := string(mustGet(meta, 0).(value.String))
	protoName := string(mustGet(meta, 1).(value.String))
	methodName := string(mustGet(meta, 2).(value.String))
	v, ok := it.Env.Resolve("", protoName)
	if !ok {
		return diagnostics.New(diagnostics.UndefinedSymbol, diagnostics.PhaseEval, diagnostics.Loc{}, "vm: extend-type references undefined protocol %s", protoName)
	}
	proto, ok := v.Root().(*value.Protocol)
	if !ok {
		return diagnostics.New(diagnostics.TypeError, diagnostics.PhaseEval, diagnostics.Loc{}, "vm: %s is not a protocol", protoName)
	}
	proto.ExtendType(typeKeywordForName(typeName), methodName, fn)
	return nil
}

// typeKeywordForName duplicates treewalk's helper of the same name:
// internal/diagnostics deliberately never imports internal/value, so a
// shared home for this one small mapping would have to sit somewhere
// both backends import, which isn't worth a new package for 20 lines
// neither backend's semantics can safely share a mutable copy of.
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

// errorToValue duplicates treewalk.errorToValue for the same reason
// typeKeywordForName does: spec.md §4.4's try/catch delivery rule
// (deliver a user_exception's raw Thrown value, otherwise convert to a
// {:type kw :message str} map) is identical in both backends, but
// neither backend can import the other's unexported helper.
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

func kindKeywordName(k diagnostics.Kind) string {
	return strings.ReplaceAll(string(k), "_", "-")
}

// Call implements value.Forcer, mirroring treewalk.Interp.Call's
// dispatch across every callee variant (spec.md §4.5's call protocol)
// so internal/builtin and value.LazySeq can use either backend
// interchangeably.
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

// Force implements value.Forcer's other half: invoking a nullary thunk
// to realize one value.LazySeq step.
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
	body, ok := arity.Body.(*closureBody)
	if !ok {
		return nil, diagnostics.New(diagnostics.InternalError, diagnostics.PhaseEval, diagnostics.Loc{}, "fn body missing vm closure")
	}
	call := newEnv(body.env)
	bindFnArgs(call, arity, args)
	call.recur = &recurTarget{
		fixed:    arity.NumParams,
		variadic: arity.Variadic,
		bodyIP:   0,
		env:      call,
	}
	call.recur.indices = fnRecurIndices(body.proto)
	return it.callProto(body.proto, call, fn, body.selfIndex)
}

// fnRecurIndices gives recur's rebind step the absolute slot each
// positional param occupies; since the compiler's sub-Chunk for an
// arity body always binds its own params at call time into these exact
// indices via bindFnArgs, the slots a recur at its top level rebinds
// are the same ones the initial call bound.
func fnRecurIndices(proto *value.FnProto) []int {
	n := proto.Arity
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// bindFnArgs mirrors treewalk.bindArgs: fixed params land at slots
// 0..fixed-1, a variadic arity packs the remainder into a List at the
// last slot.
func bindFnArgs(fr *env, arity value.Arity, args []value.Value) {
	fixed := arity.NumParams
	if arity.Variadic {
		fixed--
	}
	for i := 0; i < fixed; i++ {
		fr.define(i, args[i])
	}
	if arity.Variadic {
		rest := value.Value(value.EmptyList)
		for i := len(args) - 1; i >= fixed; i-- {
			rest = rest.(*value.List).Conj(args[i])
		}
		fr.define(fixed, rest)
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
