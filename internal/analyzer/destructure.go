package analyzer

import (
	"github.com/clj-embed/cloj/internal/diagnostics"
	"github.com/clj-embed/cloj/internal/form"
	"github.com/clj-embed/cloj/internal/node"
	"github.com/clj-embed/cloj/internal/value"
)

// destructure desugars one binding-position pattern against an
// already-analyzed source Node into a linear sequence of Let bindings
// (spec.md §4.3's destructuring rule), binding each introduced name into
// sc as it goes so later bindings/the body can reference them.
func (a *Analyzer) destructure(pattern form.Form, source node.Node, sc *scope) ([]node.Binding, error) {
	switch pat := pattern.(type) {
	case form.Symbol:
		if pat.Ns != "" {
			return nil, diagnostics.New(diagnostics.InvalidBinding, diagnostics.PhaseAnalysis, pat.Loc(), "qualified symbol in binding position")
		}
		idx := sc.bind(pat.Name)
		return []node.Binding{{Name: pat.Name, Init: source, Index: idx}}, nil

	case form.Vector:
		return a.destructureSequential(pat, source, sc)

	case form.MapForm:
		return a.destructureAssociative(pat, source, sc)

	default:
		return nil, diagnostics.New(diagnostics.InvalidBinding, diagnostics.PhaseAnalysis, pattern.Loc(), "invalid binding form")
	}
}

func (a *Analyzer) bindTemp(prefix string, source node.Node, sc *scope, loc diagnostics.Loc) (node.Node, node.Binding) {
	name := a.Gensym(prefix)
	idx := sc.bind(name)
	return node.NewLocalRef(name, idx, loc), node.Binding{Name: name, Init: source, Index: idx}
}

func (a *Analyzer) callBuiltin(name string, args []node.Node, loc diagnostics.Loc) (node.Node, error) {
	fnNode, err := a.resolveSymbol("", name, loc)
	if err != nil {
		return nil, err
	}
	return node.NewCall(fnNode, args, loc), nil
}

// destructureSequential handles `[a b & rest :as all]` (spec.md §4.3).
func (a *Analyzer) destructureSequential(pat form.Vector, source node.Node, sc *scope) ([]node.Binding, error) {
	loc := pat.Loc()
	tempRef, tempBinding := a.bindTemp("vec", source, sc, loc)
	bindings := []node.Binding{tempBinding}

	items := pat.Items
	i := 0
	positional := 0
	for i < len(items) {
		sym, isSym := items[i].(form.Symbol)
		if isSym && sym.Ns == "" && sym.Name == "&" {
			i++
			if i >= len(items) {
				return nil, diagnostics.New(diagnostics.InvalidBinding, diagnostics.PhaseAnalysis, loc, "dangling & in binding vector")
			}
			restNode, err := a.callBuiltin("drop", []node.Node{node.NewConstant(value.Int(int64(positional)), loc), tempRef}, loc)
			if err != nil {
				return nil, err
			}
			sub, err := a.destructure(items[i], restNode, sc)
			if err != nil {
				return nil, err
			}
			bindings = append(bindings, sub...)
			i++
			continue
		}
		if kw, isKw := items[i].(form.Keyword); isKw && kw.Ns == "" && kw.Name == "as" {
			i++
			if i >= len(items) {
				return nil, diagnostics.New(diagnostics.InvalidBinding, diagnostics.PhaseAnalysis, loc, "dangling :as in binding vector")
			}
			asSym, ok := items[i].(form.Symbol)
			if !ok {
				return nil, diagnostics.New(diagnostics.InvalidBinding, diagnostics.PhaseAnalysis, loc, ":as target must be a symbol")
			}
			idx := sc.bind(asSym.Name)
			bindings = append(bindings, node.Binding{Name: asSym.Name, Init: tempRef, Index: idx})
			i++
			continue
		}
		nthNode, err := a.callBuiltin("nth", []node.Node{tempRef, node.NewConstant(value.Int(int64(positional)), loc), node.NewConstant(value.Nil{}, loc)}, loc)
		if err != nil {
			return nil, err
		}
		sub, err := a.destructure(items[i], nthNode, sc)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, sub...)
		positional++
		i++
	}
	return bindings, nil
}

// destructureAssociative handles `{a :x b :y :or {a 0} :as m :keys [p]
// :strs [q] :syms [r]}` (spec.md §4.3).
func (a *Analyzer) destructureAssociative(pat form.MapForm, source node.Node, sc *scope) ([]node.Binding, error) {
	loc := pat.Loc()
	tempRef, tempBinding := a.bindTemp("map", source, sc, loc)
	bindings := []node.Binding{tempBinding}

	defaults := map[string]form.Form{}
	var asName string
	type keyedName struct {
		name string
		key  form.Form // the key Form to `get` by (keyword/string/symbol)
	}
	var keyed []keyedName

	for i, k := range pat.Keys {
		kw, isKw := k.(form.Keyword)
		if isKw && kw.Ns == "" && kw.Name == "or" {
			if m, ok := pat.Vals[i].(form.MapForm); ok {
				for j, dk := range m.Keys {
					if s, ok := dk.(form.Symbol); ok {
						defaults[s.Name] = m.Vals[j]
					}
				}
			}
			continue
		}
		if isKw && kw.Ns == "" && kw.Name == "as" {
			if s, ok := pat.Vals[i].(form.Symbol); ok {
				asName = s.Name
			}
			continue
		}
		if isKw && kw.Ns == "" && (kw.Name == "keys" || kw.Name == "strs" || kw.Name == "syms") {
			vec, ok := pat.Vals[i].(form.Vector)
			if !ok {
				continue
			}
			for _, item := range vec.Items {
				sym, ok := item.(form.Symbol)
				if !ok {
					continue
				}
				switch kw.Name {
				case "keys":
					keyed = append(keyed, keyedName{sym.Name, form.NewKeyword("", sym.Name, loc)})
				case "strs":
					keyed = append(keyed, keyedName{sym.Name, form.NewStr(sym.Name, loc)})
				case "syms":
					keyed = append(keyed, keyedName{sym.Name, form.NewSymbol("", sym.Name, loc)})
				}
			}
			continue
		}
		// `a :x` — bind pattern k by key Form pat.Vals[i].
		sub, err := a.destructureKeyedPattern(k, pat.Vals[i], tempRef, defaults, sc, loc)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, sub...)
	}

	for _, kn := range keyed {
		var def node.Node = node.NewConstant(value.Nil{}, loc)
		if df, ok := defaults[kn.name]; ok {
			dn, err := a.analyze(df, sc, nil, false)
			if err != nil {
				return nil, err
			}
			def = dn
		}
		getNode, err := a.callBuiltin("get", []node.Node{tempRef, node.NewConstant(FormToValue(kn.key), loc), def}, loc)
		if err != nil {
			return nil, err
		}
		idx := sc.bind(kn.name)
		bindings = append(bindings, node.Binding{Name: kn.name, Init: getNode, Index: idx})
	}

	if asName != "" {
		idx := sc.bind(asName)
		bindings = append(bindings, node.Binding{Name: asName, Init: tempRef, Index: idx})
	}
	return bindings, nil
}

// destructureKeyedPattern handles the `pattern :key` associative-binding
// entries, where pattern may itself be a nested destructuring pattern.
func (a *Analyzer) destructureKeyedPattern(pattern, key form.Form, tempRef node.Node, defaults map[string]form.Form, sc *scope, loc diagnostics.Loc) ([]node.Binding, error) {
	var def node.Node = node.NewConstant(value.Nil{}, loc)
	if sym, ok := pattern.(form.Symbol); ok {
		if df, ok := defaults[sym.Name]; ok {
			dn, err := a.analyze(df, sc, nil, false)
			if err != nil {
				return nil, err
			}
			def = dn
		}
	}
	getNode, err := a.callBuiltin("get", []node.Node{tempRef, node.NewConstant(FormToValue(key), loc), def}, loc)
	if err != nil {
		return nil, err
	}
	return a.destructure(pattern, getNode, sc)
}
