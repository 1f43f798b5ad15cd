package analyzer

import (
	"github.com/clj-embed/cloj/internal/diagnostics"
	"github.com/clj-embed/cloj/internal/form"
	"github.com/clj-embed/cloj/internal/node"
	"github.com/clj-embed/cloj/internal/value"
)

func (a *Analyzer) analyzeSpecial(name string, lst form.List, sc *scope, rt *recurTarget, tail bool) (node.Node, error) {
	args := lst.Items[1:]
	loc := lst.Loc()
	switch name {
	case "quote":
		if len(args) != 1 {
			return nil, arityErr(loc, "quote")
		}
		return node.NewQuote(FormToValue(args[0]), loc), nil

	case "quasiquote":
		if len(args) != 1 {
			return nil, arityErr(loc, "quasiquote")
		}
		expanded := a.expandQuasiquote(args[0], 1)
		return a.analyze(expanded, sc, rt, tail)

	case "with-meta":
		if len(args) != 2 {
			return nil, arityErr(loc, "with-meta")
		}
		// Metadata is attached at read/analysis time only for documentation
		// purposes here; runtime values don't carry per-instance meta maps
		// beyond Vars, so with-meta reduces to its target.
		return a.analyze(args[0], sc, rt, tail)

	case "if":
		if len(args) != 2 && len(args) != 3 {
			return nil, arityErr(loc, "if")
		}
		testN, err := a.analyze(args[0], sc, nil, false)
		if err != nil {
			return nil, err
		}
		thenN, err := a.analyze(args[1], sc, rt, tail)
		if err != nil {
			return nil, err
		}
		var elseN node.Node = node.NewConstant(value.Nil{}, loc)
		if len(args) == 3 {
			elseN, err = a.analyze(args[2], sc, rt, tail)
			if err != nil {
				return nil, err
			}
		}
		return node.NewIf(testN, thenN, elseN, loc), nil

	case "do":
		stmts := make([]node.Node, len(args))
		for i, af := range args {
			n, err := a.analyze(af, sc, rt, tail && i == len(args)-1)
			if err != nil {
				return nil, err
			}
			stmts[i] = n
		}
		return node.NewDo(stmts, loc), nil

	case "and":
		return a.analyzeAndOr(args, loc, sc, true)
	case "or":
		return a.analyzeAndOr(args, loc, sc, false)

	case "when":
		if len(args) < 1 {
			return nil, arityErr(loc, "when")
		}
		testN, err := a.analyze(args[0], sc, nil, false)
		if err != nil {
			return nil, err
		}
		bodyN, err := a.analyzeImplicitDo(args[1:], loc, sc, rt, tail)
		if err != nil {
			return nil, err
		}
		return node.NewIf(testN, bodyN, node.NewConstant(value.Nil{}, loc), loc), nil

	case "unless":
		if len(args) < 1 {
			return nil, arityErr(loc, "unless")
		}
		testN, err := a.analyze(args[0], sc, nil, false)
		if err != nil {
			return nil, err
		}
		bodyN, err := a.analyzeImplicitDo(args[1:], loc, sc, rt, tail)
		if err != nil {
			return nil, err
		}
		return node.NewIf(testN, node.NewConstant(value.Nil{}, loc), bodyN, loc), nil

	case "let", "let*":
		return a.analyzeLet(args, loc, sc, rt, tail, false)
	case "loop", "loop*":
		return a.analyzeLet(args, loc, sc, rt, tail, true)

	case "recur":
		if rt == nil {
			return nil, diagnostics.New(diagnostics.InvalidArity, diagnostics.PhaseAnalysis, loc, "recur outside loop/fn")
		}
		if !tail {
			return nil, diagnostics.New(diagnostics.InvalidArity, diagnostics.PhaseAnalysis, loc, "recur not in tail position")
		}
		if len(args) != rt.arity {
			return nil, diagnostics.New(diagnostics.InvalidArity, diagnostics.PhaseAnalysis, loc, "recur called with %d args, expected %d", len(args), rt.arity)
		}
		argNodes := make([]node.Node, len(args))
		for i, af := range args {
			n, err := a.analyze(af, sc, nil, false)
			if err != nil {
				return nil, err
			}
			argNodes[i] = n
		}
		return node.NewRecur(argNodes, loc), nil

	case "fn", "fn*":
		return a.analyzeFn(args, loc, sc)

	case "letfn":
		return a.analyzeLetfn(args, loc, sc, rt, tail)

	case "def":
		return a.analyzeDef(args, loc, sc, false)
	case "defmacro":
		return a.analyzeDef(args, loc, sc, true)

	case "throw":
		if len(args) != 1 {
			return nil, arityErr(loc, "throw")
		}
		exprN, err := a.analyze(args[0], sc, nil, false)
		if err != nil {
			return nil, err
		}
		return node.NewThrow(exprN, loc), nil

	case "try":
		return a.analyzeTry(args, loc, sc, rt, tail)

	case "var":
		if len(args) != 1 {
			return nil, arityErr(loc, "var")
		}
		sym, ok := args[0].(form.Symbol)
		if !ok {
			return nil, diagnostics.New(diagnostics.InvalidBinding, diagnostics.PhaseAnalysis, loc, "var requires a symbol")
		}
		v, ok := a.Env.Resolve(sym.Ns, sym.Name)
		if !ok {
			return nil, diagnostics.New(diagnostics.UndefinedSymbol, diagnostics.PhaseAnalysis, loc, "undefined symbol %s", sym.Name)
		}
		return node.NewConstant(v, loc), nil

	case "lazy-seq":
		bodyN, err := a.analyzeImplicitDo(args, loc, sc, nil, true)
		if err != nil {
			return nil, err
		}
		return node.NewLazySeq(bodyN, loc), nil

	case "defmulti":
		return a.analyzeDefmulti(args, loc, sc)
	case "defmethod":
		return a.analyzeDefmethod(args, loc, sc)
	case "defprotocol":
		return a.analyzeDefprotocol(args, loc)
	case "extend-type":
		return a.analyzeExtendType(args, loc, sc)

	default:
		return nil, diagnostics.New(diagnostics.InternalError, diagnostics.PhaseAnalysis, loc, "unhandled special form %s", name)
	}
}

func arityErr(loc diagnostics.Loc, form string) error {
	return diagnostics.New(diagnostics.InvalidArity, diagnostics.PhaseAnalysis, loc, "invalid arity for %s", form)
}

func (a *Analyzer) analyzeImplicitDo(args []form.Form, loc diagnostics.Loc, sc *scope, rt *recurTarget, tail bool) (node.Node, error) {
	if len(args) == 0 {
		return node.NewConstant(value.Nil{}, loc), nil
	}
	stmts := make([]node.Node, len(args))
	for i, af := range args {
		n, err := a.analyze(af, sc, rt, tail && i == len(args)-1)
		if err != nil {
			return nil, err
		}
		stmts[i] = n
	}
	if len(stmts) == 1 {
		return stmts[0], nil
	}
	return node.NewDo(stmts, loc), nil
}

// analyzeAndOr desugars `and`/`or` into nested Ifs implementing
// short-circuit evaluation.
func (a *Analyzer) analyzeAndOr(args []form.Form, loc diagnostics.Loc, sc *scope, isAnd bool) (node.Node, error) {
	if len(args) == 0 {
		return node.NewConstant(value.Bool(isAnd), loc), nil
	}
	headN, err := a.analyze(args[0], sc, nil, false)
	if err != nil {
		return nil, err
	}
	if len(args) == 1 {
		return headN, nil
	}
	restN, err := a.analyzeAndOr(args[1:], loc, sc, isAnd)
	if err != nil {
		return nil, err
	}
	if isAnd {
		return node.NewIf(headN, restN, node.NewConstant(value.Bool(false), loc), loc), nil
	}
	return node.NewIf(headN, headN, restN, loc), nil
}

func (a *Analyzer) analyzeLet(args []form.Form, loc diagnostics.Loc, sc *scope, rt *recurTarget, tail, isLoop bool) (node.Node, error) {
	if len(args) < 1 {
		return nil, arityErr(loc, "let")
	}
	bindVec, ok := args[0].(form.Vector)
	if !ok {
		return nil, diagnostics.New(diagnostics.InvalidBinding, diagnostics.PhaseAnalysis, loc, "let requires a binding vector")
	}
	if len(bindVec.Items)%2 != 0 {
		return nil, diagnostics.New(diagnostics.InvalidBinding, diagnostics.PhaseAnalysis, loc, "odd number of let bindings")
	}
	inner := sc.push()
	var bindings []node.Binding
	bindCount := 0
	for i := 0; i+1 < len(bindVec.Items); i += 2 {
		pattern := bindVec.Items[i]
		initN, err := a.analyze(bindVec.Items[i+1], inner, nil, false)
		if err != nil {
			return nil, err
		}
		sub, err := a.destructure(pattern, initN, inner)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, sub...)
		bindCount++
	}
	var childRt *recurTarget
	if isLoop {
		childRt = &recurTarget{arity: bindCount}
	} else {
		childRt = rt
	}
	bodyN, err := a.analyzeImplicitDo(args[1:], loc, inner, childRt, tail)
	if err != nil {
		return nil, err
	}
	if isLoop {
		return node.NewLoop(bindings, bodyN, loc), nil
	}
	return node.NewLet(bindings, bodyN, loc), nil
}

func (a *Analyzer) analyzeFnArity(name string, argsForm []form.Form, loc diagnostics.Loc, parentScope *scope) (node.Arity, error) {
	// Pushing a frame (rather than childFn's fresh slot space) keeps the
	// enclosing lexical chain visible, so closures over outer let/letfn
	// bindings still resolve during analysis.
	fnScope := parentScope.push()
	selfIndex := -1
	if name != "" {
		selfIndex = fnScope.bind(name) // self-reference slot, populated after construction
	}
	if len(argsForm) < 1 {
		return node.Arity{}, arityErr(loc, "fn")
	}
	paramVec, ok := argsForm[0].(form.Vector)
	if !ok {
		return node.Arity{}, diagnostics.New(diagnostics.InvalidBinding, diagnostics.PhaseAnalysis, loc, "fn requires a parameter vector")
	}
	var params []string
	variadic := false
	for i := 0; i < len(paramVec.Items); i++ {
		sym, ok := paramVec.Items[i].(form.Symbol)
		if !ok {
			return node.Arity{}, diagnostics.New(diagnostics.InvalidBinding, diagnostics.PhaseAnalysis, loc, "fn parameters must be symbols (destructuring handled via nested let)")
		}
		if sym.Name == "&" {
			variadic = true
			continue
		}
		fnScope.bind(sym.Name)
		params = append(params, sym.Name)
	}
	rt := &recurTarget{arity: len(params)}
	bodyN, err := a.analyzeImplicitDo(argsForm[1:], loc, fnScope, rt, true)
	if err != nil {
		return node.Arity{}, err
	}
	return node.Arity{Params: params, Variadic: variadic, NumParams: len(params), Body: bodyN, SelfIndex: selfIndex}, nil
}

func (a *Analyzer) analyzeFn(args []form.Form, loc diagnostics.Loc, sc *scope) (node.Node, error) {
	if len(args) == 0 {
		return nil, arityErr(loc, "fn")
	}
	name := ""
	rest := args
	if sym, ok := args[0].(form.Symbol); ok {
		name = sym.Name
		rest = args[1:]
	}
	if len(rest) == 0 {
		return nil, arityErr(loc, "fn")
	}
	var arities []node.Arity
	if _, isVec := rest[0].(form.Vector); isVec {
		ar, err := a.analyzeFnArity(name, rest, loc, sc)
		if err != nil {
			return nil, err
		}
		arities = append(arities, ar)
	} else {
		for _, clause := range rest {
			cl, ok := clause.(form.List)
			if !ok {
				return nil, diagnostics.New(diagnostics.InvalidArity, diagnostics.PhaseAnalysis, loc, "invalid fn arity clause")
			}
			ar, err := a.analyzeFnArity(name, cl.Items, clause.Loc(), sc)
			if err != nil {
				return nil, err
			}
			arities = append(arities, ar)
		}
	}
	return node.NewFn(name, arities, loc), nil
}

func (a *Analyzer) analyzeLetfn(args []form.Form, loc diagnostics.Loc, sc *scope, rt *recurTarget, tail bool) (node.Node, error) {
	if len(args) < 1 {
		return nil, arityErr(loc, "letfn")
	}
	bindVec, ok := args[0].(form.Vector)
	if !ok {
		return nil, diagnostics.New(diagnostics.InvalidBinding, diagnostics.PhaseAnalysis, loc, "letfn requires a binding vector")
	}
	inner := sc.push()
	var names []string
	var fnForms []form.List
	for _, item := range bindVec.Items {
		lst, ok := item.(form.List)
		if !ok || len(lst.Items) < 1 {
			return nil, diagnostics.New(diagnostics.InvalidBinding, diagnostics.PhaseAnalysis, loc, "letfn entries must be (name [params] body...)")
		}
		sym, ok := lst.Items[0].(form.Symbol)
		if !ok {
			return nil, diagnostics.New(diagnostics.InvalidBinding, diagnostics.PhaseAnalysis, loc, "letfn name must be a symbol")
		}
		names = append(names, sym.Name)
		fnForms = append(fnForms, lst)
	}
	idxs := make([]int, len(names))
	for i, n := range names {
		idxs[i] = inner.bind(n)
	}
	var bindings []node.LetfnBinding
	for i, lst := range fnForms {
		fnNode, err := a.analyzeFn(append([]form.Form{form.NewSymbol("", names[i], loc)}, lst.Items[1:]...), loc, inner)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, node.LetfnBinding{Name: names[i], Fn: fnNode.(*node.Fn), Index: idxs[i]})
	}
	bodyN, err := a.analyzeImplicitDo(args[1:], loc, inner, rt, tail)
	if err != nil {
		return nil, err
	}
	return node.NewLetfn(bindings, bodyN, loc), nil
}

func (a *Analyzer) analyzeDef(args []form.Form, loc diagnostics.Loc, sc *scope, isMacro bool) (node.Node, error) {
	if len(args) < 1 {
		return nil, arityErr(loc, "def")
	}
	sym, ok := args[0].(form.Symbol)
	if !ok {
		return nil, diagnostics.New(diagnostics.InvalidBinding, diagnostics.PhaseAnalysis, loc, "def requires a symbol")
	}
	ns := a.Env.CurrentNamespace()
	v := ns.Intern(sym.Name)

	rest := args[1:]
	doc := ""
	if len(rest) > 1 {
		if s, ok := rest[0].(form.Str); ok {
			doc = s.Value
			rest = rest[1:]
		}
	}
	isDynamic := false
	if sym.Name != "" && len(sym.Name) > 2 && sym.Name[0] == '*' && sym.Name[len(sym.Name)-1] == '*' {
		isDynamic = true
	}
	v.Macro = isMacro
	v.Dynamic = isDynamic
	v.Doc = doc

	var initN node.Node
	if len(rest) >= 1 {
		n, err := a.analyze(rest[0], sc, nil, false)
		if err != nil {
			return nil, err
		}
		initN = n
	}
	return node.NewDef(sym.Name, initN, isMacro, isDynamic, doc, nil, loc), nil
}

func (a *Analyzer) analyzeTry(args []form.Form, loc diagnostics.Loc, sc *scope, rt *recurTarget, tail bool) (node.Node, error) {
	var bodyForms []form.Form
	var catchClause form.List
	hasCatch := false
	var finallyForms []form.Form
	hasFinally := false
	for _, a2 := range args {
		if lst, ok := a2.(form.List); ok && len(lst.Items) > 0 {
			if sym, ok := lst.Items[0].(form.Symbol); ok {
				if sym.Name == "catch" {
					catchClause = lst
					hasCatch = true
					continue
				}
				if sym.Name == "finally" {
					finallyForms = lst.Items[1:]
					hasFinally = true
					continue
				}
			}
		}
		bodyForms = append(bodyForms, a2)
	}
	bodyN, err := a.analyzeImplicitDo(bodyForms, loc, sc, nil, false)
	if err != nil {
		return nil, err
	}
	var catchN *node.Catch
	if hasCatch {
		// catch forms: (catch ClassSym binding body...) — ClassSym is
		// accepted but ignored (this dialect has one catchable value kind).
		if len(catchClause.Items) < 3 {
			return nil, arityErr(loc, "catch")
		}
		bindSym, ok := catchClause.Items[2].(form.Symbol)
		if !ok {
			return nil, diagnostics.New(diagnostics.InvalidBinding, diagnostics.PhaseAnalysis, loc, "catch binding must be a symbol")
		}
		inner := sc.push()
		catchIdx := inner.bind(bindSym.Name)
		catchBodyN, err := a.analyzeImplicitDo(catchClause.Items[3:], loc, inner, nil, false)
		if err != nil {
			return nil, err
		}
		catchN = &node.Catch{Binding: bindSym.Name, Index: catchIdx, Body: catchBodyN}
	}
	var finallyN node.Node
	if hasFinally {
		finallyN, err = a.analyzeImplicitDo(finallyForms, loc, sc, nil, false)
		if err != nil {
			return nil, err
		}
	}
	return node.NewTry(bodyN, catchN, finallyN, loc), nil
}

func (a *Analyzer) analyzeDefmulti(args []form.Form, loc diagnostics.Loc, sc *scope) (node.Node, error) {
	if len(args) < 2 {
		return nil, arityErr(loc, "defmulti")
	}
	sym, ok := args[0].(form.Symbol)
	if !ok {
		return nil, diagnostics.New(diagnostics.InvalidBinding, diagnostics.PhaseAnalysis, loc, "defmulti requires a symbol")
	}
	a.Env.CurrentNamespace().Intern(sym.Name)
	dispatchN, err := a.analyze(args[1], sc, nil, false)
	if err != nil {
		return nil, err
	}
	return node.NewDefmulti(sym.Name, dispatchN, loc), nil
}

func (a *Analyzer) analyzeDefmethod(args []form.Form, loc diagnostics.Loc, sc *scope) (node.Node, error) {
	if len(args) < 3 {
		return nil, arityErr(loc, "defmethod")
	}
	sym, ok := args[0].(form.Symbol)
	if !ok {
		return nil, diagnostics.New(diagnostics.InvalidBinding, diagnostics.PhaseAnalysis, loc, "defmethod requires a symbol")
	}
	dispatchValN, err := a.analyze(args[1], sc, nil, false)
	if err != nil {
		return nil, err
	}
	fnNode, err := a.analyzeFn(args[2:], loc, sc)
	if err != nil {
		return nil, err
	}
	return node.NewDefmethod(sym.Name, dispatchValN, fnNode.(*node.Fn), loc), nil
}

func (a *Analyzer) analyzeDefprotocol(args []form.Form, loc diagnostics.Loc) (node.Node, error) {
	if len(args) < 1 {
		return nil, arityErr(loc, "defprotocol")
	}
	sym, ok := args[0].(form.Symbol)
	if !ok {
		return nil, diagnostics.New(diagnostics.InvalidBinding, diagnostics.PhaseAnalysis, loc, "defprotocol requires a symbol")
	}
	var sigs []node.ProtoMethodSig
	for _, sigForm := range args[1:] {
		lst, ok := sigForm.(form.List)
		if !ok || len(lst.Items) < 2 {
			continue
		}
		nameSym, ok := lst.Items[0].(form.Symbol)
		if !ok {
			continue
		}
		paramVec, ok := lst.Items[1].(form.Vector)
		if !ok {
			continue
		}
		sigs = append(sigs, node.ProtoMethodSig{Name: nameSym.Name, Arity: len(paramVec.Items)})
	}
	return node.NewDefprotocol(sym.Name, sigs, loc), nil
}

func (a *Analyzer) analyzeExtendType(args []form.Form, loc diagnostics.Loc, sc *scope) (node.Node, error) {
	if len(args) < 1 {
		return nil, arityErr(loc, "extend-type")
	}
	sym, ok := args[0].(form.Symbol)
	if !ok {
		return nil, diagnostics.New(diagnostics.InvalidBinding, diagnostics.PhaseAnalysis, loc, "extend-type requires a type symbol")
	}
	var extensions []node.Extension
	rest := args[1:]
	for len(rest) > 0 {
		protoSym, ok := rest[0].(form.Symbol)
		if !ok {
			return nil, diagnostics.New(diagnostics.InvalidBinding, diagnostics.PhaseAnalysis, loc, "extend-type expects protocol symbol")
		}
		rest = rest[1:]
		var methods []node.ExtensionMethod
		for len(rest) > 0 {
			lst, ok := rest[0].(form.List)
			if !ok {
				break // next protocol symbol
			}
			if len(lst.Items) < 2 {
				return nil, diagnostics.New(diagnostics.InvalidArity, diagnostics.PhaseAnalysis, loc, "invalid extend-type method clause")
			}
			methodSym, ok := lst.Items[0].(form.Symbol)
			if !ok {
				return nil, diagnostics.New(diagnostics.InvalidBinding, diagnostics.PhaseAnalysis, loc, "method name must be a symbol")
			}
			fnNode, err := a.analyzeFn(lst.Items[1:], lst.Loc(), sc)
			if err != nil {
				return nil, err
			}
			methods = append(methods, node.ExtensionMethod{Name: methodSym.Name, Fn: fnNode.(*node.Fn)})
			rest = rest[1:]
		}
		extensions = append(extensions, node.Extension{ProtocolName: protoSym.Name, Methods: methods})
	}
	return node.NewExtendType(sym.Name, extensions, loc), nil
}
