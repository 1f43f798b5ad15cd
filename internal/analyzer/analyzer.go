// Package analyzer turns reader Forms into analyzer Nodes (spec.md
// §4.3): special-form dispatch, macro expansion, destructuring
// desugaring, scope/slot tracking and recur-tail-position verification.
package analyzer

import (
	"fmt"
	"strings"

	"github.com/clj-embed/cloj/internal/diagnostics"
	"github.com/clj-embed/cloj/internal/form"
	"github.com/clj-embed/cloj/internal/namespace"
	"github.com/clj-embed/cloj/internal/node"
	"github.com/clj-embed/cloj/internal/value"
	"github.com/google/uuid"
)

const maxMacroDepth = 256

var specialForms = map[string]bool{
	"if": true, "do": true, "let": true, "let*": true, "fn": true, "fn*": true,
	"loop": true, "loop*": true, "recur": true, "quote": true, "def": true,
	"defmacro": true, "try": true, "throw": true, "var": true,
	"defmulti": true, "defmethod": true, "defprotocol": true, "extend-type": true,
	"letfn": true, "lazy-seq": true, "quasiquote": true, "with-meta": true,
	"and": true, "or": true, "when": true, "unless": true,
}

// recurTarget describes the nearest enclosing Loop/Fn-arity that Recur
// may target (spec.md §4.3's tail-position/arity check).
type recurTarget struct {
	arity int
}

// Analyzer is one analysis session over an Env; Caller lets the macro
// expander invoke a macro Var's Fn without depending on a specific
// evaluation backend (spec.md §4.6.3's backend-agnostic call).
type Analyzer struct {
	Env        *namespace.Env
	Caller     value.Forcer
	macroDepth int
	gensymSeq  int
}

func New(env *namespace.Env, caller value.Forcer) *Analyzer {
	return &Analyzer{Env: env, Caller: caller}
}

// Gensym produces a unique symbol name for macro hygiene, paralleling
// Clojure's `gensym`. The sequence counter keeps expansions of the same
// macro call readable; the uuid suffix guarantees no collision across
// separate Analyze calls sharing one Analyzer (e.g. a REPL session).
func (a *Analyzer) Gensym(prefix string) string {
	a.gensymSeq++
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s__%d__%s__auto__", prefix, a.gensymSeq, id)
}

// Analyze is the single entry point (spec.md §6.2's `analyze(form, env)`).
func (a *Analyzer) Analyze(f form.Form) (node.Node, error) {
	return a.analyze(f, newScope(), nil, true)
}

func (a *Analyzer) analyze(f form.Form, sc *scope, rt *recurTarget, tail bool) (node.Node, error) {
	switch v := f.(type) {
	case form.Nil:
		return node.NewConstant(value.Nil{}, v.Loc()), nil
	case form.Bool:
		return node.NewConstant(value.Bool(v.Value), v.Loc()), nil
	case form.Int:
		return node.NewConstant(value.Int(v.Value), v.Loc()), nil
	case form.Float:
		return node.NewConstant(value.Float(v.Value), v.Loc()), nil
	case form.Char:
		return node.NewConstant(value.Char(v.Value), v.Loc()), nil
	case form.Str:
		return node.NewConstant(value.String(v.Value), v.Loc()), nil
	case form.Keyword:
		return node.NewConstant(value.InternKeyword(v.Ns, v.Name), v.Loc()), nil
	case form.Regex:
		p, err := value.NewPattern(v.Pattern.Source)
		if err != nil {
			return nil, err
		}
		return node.NewConstant(p, v.Loc()), nil
	case form.Tagged:
		return a.analyze(v.Form, sc, rt, tail)
	case form.Symbol:
		return a.analyzeSymbol(v, sc)
	case form.Vector:
		return a.analyzeCallLike("vector", v.Items, v.Loc(), sc)
	case form.SetForm:
		return a.analyzeCallLike("hash-set", v.Items, v.Loc(), sc)
	case form.MapForm:
		flat := make([]form.Form, 0, 2*len(v.Keys))
		for i := range v.Keys {
			flat = append(flat, v.Keys[i], v.Vals[i])
		}
		return a.analyzeCallLike("hash-map", flat, v.Loc(), sc)
	case form.List:
		return a.analyzeList(v, sc, rt, tail)
	default:
		return nil, diagnostics.New(diagnostics.InvalidToken, diagnostics.PhaseAnalysis, f.Loc(), "unanalyzable form")
	}
}

func (a *Analyzer) analyzeCallLike(fnName string, args []form.Form, loc diagnostics.Loc, sc *scope) (node.Node, error) {
	fnNode, err := a.resolveSymbol("", fnName, loc)
	if err != nil {
		return nil, err
	}
	argNodes := make([]node.Node, len(args))
	for i, af := range args {
		n, err := a.analyze(af, sc, nil, false)
		if err != nil {
			return nil, err
		}
		argNodes[i] = n
	}
	return node.NewCall(fnNode, argNodes, loc), nil
}

func (a *Analyzer) analyzeSymbol(sym form.Symbol, sc *scope) (node.Node, error) {
	if sym.Ns == "" {
		if idx, ok := sc.lookup(sym.Name); ok {
			return node.NewLocalRef(sym.Name, idx, sym.Loc()), nil
		}
	}
	return a.resolveSymbol(sym.Ns, sym.Name, sym.Loc())
}

func (a *Analyzer) resolveSymbol(ns, name string, loc diagnostics.Loc) (node.Node, error) {
	v, ok := a.Env.Resolve(ns, name)
	if !ok {
		qualified := name
		if ns != "" {
			qualified = ns + "/" + name
		}
		return nil, diagnostics.New(diagnostics.UndefinedSymbol, diagnostics.PhaseAnalysis, loc, "undefined symbol %s", qualified)
	}
	return node.NewVarRef(v, loc), nil
}

func (a *Analyzer) analyzeList(lst form.List, sc *scope, rt *recurTarget, tail bool) (node.Node, error) {
	if len(lst.Items) == 0 {
		return node.NewConstant(value.EmptyList, lst.Loc()), nil
	}
	head := lst.Items[0]
	if sym, ok := head.(form.Symbol); ok && sym.Ns == "" {
		if _, shadowed := sc.lookup(sym.Name); !shadowed {
			if specialForms[sym.Name] {
				return a.analyzeSpecial(sym.Name, lst, sc, rt, tail)
			}
			if v, ok := a.Env.Resolve("", sym.Name); ok && v.Macro {
				return a.expandMacro(v, lst, sc, rt, tail)
			}
		}
	}
	fnNode, err := a.analyze(head, sc, nil, false)
	if err != nil {
		return nil, err
	}
	args := make([]node.Node, len(lst.Items)-1)
	for i, af := range lst.Items[1:] {
		n, err := a.analyze(af, sc, nil, false)
		if err != nil {
			return nil, err
		}
		args[i] = n
	}
	return node.NewCall(fnNode, args, lst.Loc()), nil
}

func (a *Analyzer) expandMacro(v *value.Var, lst form.List, sc *scope, rt *recurTarget, tail bool) (node.Node, error) {
	a.macroDepth++
	defer func() { a.macroDepth-- }()
	if a.macroDepth > maxMacroDepth {
		return nil, diagnostics.New(diagnostics.MacroError, diagnostics.PhaseMacroexpand, lst.Loc(), "macro expansion exceeded depth limit")
	}
	fn, ok := v.Root().(*value.Fn)
	if !ok {
		return nil, diagnostics.New(diagnostics.MacroError, diagnostics.PhaseMacroexpand, lst.Loc(), "%s is not a function", v.Symbol)
	}
	args := make([]value.Value, len(lst.Items)-1)
	for i, af := range lst.Items[1:] {
		args[i] = FormToValue(af)
	}
	result, err := a.Caller.Call(fn, args)
	if err != nil {
		return nil, diagnostics.Wrap(diagnostics.MacroError, diagnostics.PhaseMacroexpand, lst.Loc(), err, "macro %s failed", v.Symbol)
	}
	expanded := ValueToForm(result, lst.Loc())
	return a.analyze(expanded, sc, rt, tail)
}
