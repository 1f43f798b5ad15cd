package analyzer

import (
	"github.com/clj-embed/cloj/internal/diagnostics"
	"github.com/clj-embed/cloj/internal/form"
)

// expandQuasiquote desugars a quasiquoted form into plain S-expressions
// built from list/concat/vec/hash-map/quote calls, which are then fed
// back through the ordinary analyzer (spec.md §4.3 leaves quasiquote
// expansion to the analyzer; the reader only wraps `` `x `` as
// `(quasiquote x)`). depth tracks nested quasiquote/unquote levels so
// an unquote only splices at the innermost level.
func (a *Analyzer) expandQuasiquote(f form.Form, depth int) form.Form {
	loc := f.Loc()
	switch v := f.(type) {
	case form.List:
		if isTaggedCall(v, "unquote") {
			if depth == 1 {
				return v.Items[1]
			}
			return wrapCall("list", []form.Form{wrapQuote(form.NewSymbol("", "unquote", loc), loc), a.expandQuasiquote(v.Items[1], depth-1)}, loc)
		}
		if isTaggedCall(v, "quasiquote") {
			return wrapCall("list", []form.Form{wrapQuote(form.NewSymbol("", "quasiquote", loc), loc), a.expandQuasiquote(v.Items[1], depth+1)}, loc)
		}
		parts := a.qqSeqParts(v.Items, depth, loc)
		return wrapCall("seq", []form.Form{wrapCall("concat", parts, loc)}, loc)

	case form.Vector:
		parts := a.qqSeqParts(v.Items, depth, loc)
		return wrapCall("vec", []form.Form{wrapCall("concat", parts, loc)}, loc)

	case form.SetForm:
		parts := a.qqSeqParts(v.Items, depth, loc)
		return wrapCall("set", []form.Form{wrapCall("concat", parts, loc)}, loc)

	case form.MapForm:
		flat := make([]form.Form, 0, 2*len(v.Keys))
		for i := range v.Keys {
			flat = append(flat, a.expandQuasiquote(v.Keys[i], depth), a.expandQuasiquote(v.Vals[i], depth))
		}
		return wrapCall("hash-map", flat, loc)

	case form.Symbol:
		return wrapQuote(v, loc)
	case form.Keyword:
		return wrapQuote(v, loc)

	default:
		// Self-evaluating literals (Nil/Bool/Int/Float/Char/Str/Regex/Tagged)
		// need no quoting.
		return f
	}
}

// qqSeqParts builds the `concat` arguments for a quasiquoted list/vector:
// each ordinary element becomes a singleton `(list elem)`, and an
// `unquote-splicing` element is spliced in directly.
func (a *Analyzer) qqSeqParts(items []form.Form, depth int, loc diagnostics.Loc) []form.Form {
	parts := make([]form.Form, 0, len(items))
	for _, it := range items {
		if lst, ok := it.(form.List); ok && isTaggedCall(lst, "unquote-splicing") {
			if depth == 1 {
				parts = append(parts, lst.Items[1])
				continue
			}
			spliced := wrapCall("list", []form.Form{wrapQuote(form.NewSymbol("", "unquote-splicing", loc), loc), a.expandQuasiquote(lst.Items[1], depth-1)}, loc)
			parts = append(parts, wrapCall("list", []form.Form{spliced}, loc))
			continue
		}
		expanded := a.expandQuasiquote(it, depth)
		parts = append(parts, wrapCall("list", []form.Form{expanded}, loc))
	}
	return parts
}

func isTaggedCall(lst form.List, name string) bool {
	if len(lst.Items) != 2 {
		return false
	}
	sym, ok := lst.Items[0].(form.Symbol)
	return ok && sym.Ns == "" && sym.Name == name
}

func wrapCall(name string, args []form.Form, loc diagnostics.Loc) form.Form {
	items := make([]form.Form, 0, len(args)+1)
	items = append(items, form.NewSymbol("", name, loc))
	items = append(items, args...)
	return form.NewList(items, loc)
}

func wrapQuote(f form.Form, loc diagnostics.Loc) form.Form {
	return wrapCall("quote", []form.Form{f}, loc)
}
