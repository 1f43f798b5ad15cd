package analyzer

import (
	"github.com/clj-embed/cloj/internal/diagnostics"
	"github.com/clj-embed/cloj/internal/form"
	"github.com/clj-embed/cloj/internal/value"
)

// FormToValue converts a reader Form into a runtime Value — used for
// `quote`, for macro-call arguments, and for tagged/regex literals that
// reach the runtime untouched. Collections become persistent Vector/
// List/Map/Set instances so quoted data is ordinary immutable data.
func FormToValue(f form.Form) value.Value {
	switch v := f.(type) {
	case form.Nil:
		return value.Nil{}
	case form.Bool:
		return value.Bool(v.Value)
	case form.Int:
		return value.Int(v.Value)
	case form.Float:
		return value.Float(v.Value)
	case form.Char:
		return value.Char(v.Value)
	case form.Str:
		return value.String(v.Value)
	case form.Keyword:
		return value.InternKeyword(v.Ns, v.Name)
	case form.Symbol:
		return value.InternSymbol(v.Ns, v.Name)
	case form.List:
		items := make([]value.Value, len(v.Items))
		for i, it := range v.Items {
			items[i] = FormToValue(it)
		}
		return value.NewList(items...)
	case form.Vector:
		items := make([]value.Value, len(v.Items))
		for i, it := range v.Items {
			items[i] = FormToValue(it)
		}
		return value.NewVector(items...)
	case form.SetForm:
		items := make([]value.Value, len(v.Items))
		for i, it := range v.Items {
			items[i] = FormToValue(it)
		}
		return value.NewSet(items...)
	case form.MapForm:
		pairs := make([]value.Value, 0, 2*len(v.Keys))
		for i := range v.Keys {
			pairs = append(pairs, FormToValue(v.Keys[i]), FormToValue(v.Vals[i]))
		}
		return value.NewMap(pairs...)
	case form.Regex:
		p, err := value.NewPattern(v.Pattern.Source)
		if err != nil {
			return value.Nil{}
		}
		return p
	case form.Tagged:
		return FormToValue(v.Form)
	default:
		return value.Nil{}
	}
}

// ValueToForm converts a Value back into a Form — used to feed a
// macro-expansion result back into the analyzer for recursive analysis.
func ValueToForm(v value.Value, loc diagnostics.Loc) form.Form {
	switch x := v.(type) {
	case nil:
		return form.NewNil(loc)
	case value.Nil:
		return form.NewNil(loc)
	case value.Bool:
		return form.NewBool(bool(x), loc)
	case value.Int:
		return form.NewInt(int64(x), loc)
	case value.Float:
		return form.NewFloat(float64(x), loc)
	case value.Char:
		return form.NewChar(rune(x), loc)
	case value.String:
		return form.NewStr(string(x), loc)
	case *value.Keyword:
		return form.NewKeyword(x.Ns, x.Name, loc)
	case *value.Symbol:
		return form.NewSymbol(x.Ns, x.Name, loc)
	case value.Seqable:
		items := seqToForms(x, loc)
		switch x.(type) {
		case *value.Vector:
			return form.NewVector(items, loc)
		case *value.Set:
			return form.NewSet(items, loc)
		default:
			return form.NewList(items, loc)
		}
	case *value.Map:
		var keys, vals []form.Form
		x.Each(func(k, v value.Value) {
			keys = append(keys, ValueToForm(k, loc))
			vals = append(vals, ValueToForm(v, loc))
		})
		f, _ := form.NewMap(keys, vals, loc)
		return f
	default:
		return form.NewNil(loc)
	}
}

func seqToForms(s value.Seqable, loc diagnostics.Loc) []form.Form {
	var out []form.Form
	for !s.IsEmpty() {
		out = append(out, ValueToForm(s.First(), loc))
		rest := s.Rest()
		next, ok := rest.(value.Seqable)
		if !ok {
			break
		}
		s = next
	}
	return out
}
