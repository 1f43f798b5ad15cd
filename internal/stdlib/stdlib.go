// Package stdlib is the illustrative built-in catalog spec.md §4.6.1
// calls out as deliberately small: enough arithmetic, comparison,
// sequence and I/O built-ins to run the §8.2 scenarios (there is no
// built-in for delays, volatiles, promises, reduced values or
// transients), not the full standard library (an
// explicit Non-goal). Each entry is registered through
// internal/builtin's narrow Registry/Install so adding one never
// touches the evaluator.
package stdlib

import (
	"fmt"

	"github.com/clj-embed/cloj/internal/builtin"
	"github.com/clj-embed/cloj/internal/diagnostics"
	"github.com/clj-embed/cloj/internal/namespace"
	"github.com/clj-embed/cloj/internal/regexp"
	"github.com/clj-embed/cloj/internal/value"
)

func typeErr(format string, args ...interface{}) error {
	return diagnostics.New(diagnostics.TypeError, diagnostics.PhaseEval, diagnostics.Loc{}, format, args...)
}

func arityErr(name string, n int) error {
	return diagnostics.New(diagnostics.InvalidArity, diagnostics.PhaseEval, diagnostics.Loc{}, "%s: wrong number of args (%d)", name, n)
}

// asNumber extracts a float64 from an Int or Float, the common numeric
// tower for the arithmetic built-ins (spec.md §3.3: int64/float64 only).
func asNumber(v value.Value) (f float64, isFloat bool, ok bool) {
	switch x := v.(type) {
	case value.Int:
		return float64(x), false, true
	case value.Float:
		return float64(x), true, true
	default:
		return 0, false, false
	}
}

func numericResult(acc float64, anyFloat bool) value.Value {
	if anyFloat {
		return value.Float(acc)
	}
	return value.Int(int64(acc))
}

// toSlice materializes any Seqable (or Map/Set/LazySeq) into a plain
// slice — the illustrative catalog forces eagerly rather than threading
// the lazy-seq machinery through every built-in. f forces whatever
// LazySeq steps need a user fn invoked (spec.md §4.6.2/§4.6.3); it is
// never consulted for a plain (non-lazy) Seqable.
func toSlice(f value.Forcer, v value.Value) ([]value.Value, error) {
	return toSliceLimit(f, v, -1)
}

// toSliceLimit is toSlice bounded to at most limit items (limit < 0
// means unbounded). take uses the bound to pull a finite prefix off an
// infinite generator (e.g. iterate) without forcing the rest.
func toSliceLimit(f value.Forcer, v value.Value, limit int) ([]value.Value, error) {
	switch x := v.(type) {
	case nil, value.Nil:
		return nil, nil
	case *value.Map:
		var out []value.Value
		x.Each(func(k, mv value.Value) { out = append(out, value.NewVector(k, mv)) })
		return out, nil
	case *value.Set:
		return x.Items(), nil
	case *value.LazySeq:
		var out []value.Value
		var cur value.Value = x
		for limit < 0 || len(out) < limit {
			ls, ok := cur.(*value.LazySeq)
			if !ok {
				rest, err := toSliceLimit(f, cur, negAdjust(limit, len(out)))
				if err != nil {
					return nil, err
				}
				out = append(out, rest...)
				break
			}
			empty, err := ls.IsEmptyWith(f)
			if err != nil {
				return nil, err
			}
			if empty {
				break
			}
			head, err := ls.First(f)
			if err != nil {
				return nil, err
			}
			rest, err := ls.RestSeq(f)
			if err != nil {
				return nil, err
			}
			out = append(out, head)
			cur = rest
		}
		return out, nil
	case value.Seqable:
		var out []value.Value
		s := x
		for !s.IsEmpty() {
			if limit >= 0 && len(out) >= limit {
				break
			}
			out = append(out, s.First())
			rest := s.Rest()
			next, ok := rest.(value.Seqable)
			if !ok {
				break
			}
			s = next
		}
		return out, nil
	default:
		return nil, typeErr("value is not seqable: %s", v.String())
	}
}

// negAdjust shrinks a remaining-items budget by however many have
// already been collected, keeping an unbounded (-1) budget unbounded.
func negAdjust(limit, taken int) int {
	if limit < 0 {
		return -1
	}
	return limit - taken
}

func isTruthy(v value.Value) bool {
	switch x := v.(type) {
	case nil, value.Nil:
		return false
	case value.Bool:
		return bool(x)
	default:
		return true
	}
}

// Install builds every catalog module's Registry and installs it into
// ns — callers typically pass the `cloj.core` Namespace. caller backs
// swap!, which must invoke a user Fn without Atom itself depending on
// any evaluator backend (spec.md §4.6.3/§4.6.4).
func Install(ns *namespace.Namespace, caller value.Forcer) {
	r := builtin.NewRegistry()
	registerArithmetic(r)
	registerComparison(r)
	registerPredicates(r)
	registerSeq(r, caller)
	registerIO(r)
	registerRegex(r)
	registerAtom(r, caller)
	builtin.Install(ns, r)
}

func registerArithmetic(r *builtin.Registry) {
	r.Register("+", func(args []value.Value) (value.Value, error) {
		acc, anyFloat := 0.0, false
		for _, a := range args {
			n, isFloat, ok := asNumber(a)
			if !ok {
				return nil, typeErr("+ requires numbers, got %s", a.String())
			}
			acc += n
			anyFloat = anyFloat || isFloat
		}
		return numericResult(acc, anyFloat), nil
	})
	r.Register("-", func(args []value.Value) (value.Value, error) {
		if len(args) == 0 {
			return nil, arityErr("-", 0)
		}
		first, anyFloat, ok := asNumber(args[0])
		if !ok {
			return nil, typeErr("- requires numbers, got %s", args[0].String())
		}
		if len(args) == 1 {
			return numericResult(-first, anyFloat), nil
		}
		acc := first
		for _, a := range args[1:] {
			n, isFloat, ok := asNumber(a)
			if !ok {
				return nil, typeErr("- requires numbers, got %s", a.String())
			}
			acc -= n
			anyFloat = anyFloat || isFloat
		}
		return numericResult(acc, anyFloat), nil
	})
	r.Register("*", func(args []value.Value) (value.Value, error) {
		acc, anyFloat := 1.0, false
		for _, a := range args {
			n, isFloat, ok := asNumber(a)
			if !ok {
				return nil, typeErr("* requires numbers, got %s", a.String())
			}
			acc *= n
			anyFloat = anyFloat || isFloat
		}
		return numericResult(acc, anyFloat), nil
	})
	r.Register("/", func(args []value.Value) (value.Value, error) {
		if len(args) == 0 {
			return nil, arityErr("/", 0)
		}
		first, anyFloat, ok := asNumber(args[0])
		if !ok {
			return nil, typeErr("/ requires numbers, got %s", args[0].String())
		}
		divisors := args[1:]
		if len(divisors) == 0 {
			if first == 0 {
				return nil, diagnostics.New(diagnostics.DivisionByZero, diagnostics.PhaseEval, diagnostics.Loc{}, "divide by zero")
			}
			return numericResult(1/first, true), nil
		}
		acc := first
		for _, a := range divisors {
			n, isFloat, ok := asNumber(a)
			if !ok {
				return nil, typeErr("/ requires numbers, got %s", a.String())
			}
			if n == 0 {
				return nil, diagnostics.New(diagnostics.DivisionByZero, diagnostics.PhaseEval, diagnostics.Loc{}, "divide by zero")
			}
			acc /= n
			anyFloat = anyFloat || isFloat
		}
		return numericResult(acc, anyFloat), nil
	})
	r.Register("inc", func(args []value.Value) (value.Value, error) {
		if len(args) != 1 {
			return nil, arityErr("inc", len(args))
		}
		n, isFloat, ok := asNumber(args[0])
		if !ok {
			return nil, typeErr("inc requires a number, got %s", args[0].String())
		}
		return numericResult(n+1, isFloat), nil
	})
	r.Register("dec", func(args []value.Value) (value.Value, error) {
		if len(args) != 1 {
			return nil, arityErr("dec", len(args))
		}
		n, isFloat, ok := asNumber(args[0])
		if !ok {
			return nil, typeErr("dec requires a number, got %s", args[0].String())
		}
		return numericResult(n-1, isFloat), nil
	})
}

func registerComparison(r *builtin.Registry) {
	cmp := func(name string, ok func(a, b float64) bool) value.BuiltinFunc {
		return func(args []value.Value) (value.Value, error) {
			if len(args) < 2 {
				return value.Bool(true), nil
			}
			for i := 0; i+1 < len(args); i++ {
				a, _, aok := asNumber(args[i])
				b, _, bok := asNumber(args[i+1])
				if !aok || !bok {
					return nil, typeErr("%s requires numbers", name)
				}
				if !ok(a, b) {
					return value.Bool(false), nil
				}
			}
			return value.Bool(true), nil
		}
	}
	r.Register("<", cmp("<", func(a, b float64) bool { return a < b }))
	r.Register(">", cmp(">", func(a, b float64) bool { return a > b }))
	r.Register("<=", cmp("<=", func(a, b float64) bool { return a <= b }))
	r.Register(">=", cmp(">=", func(a, b float64) bool { return a >= b }))
	r.Register("=", func(args []value.Value) (value.Value, error) {
		if len(args) < 2 {
			return value.Bool(true), nil
		}
		for i := 0; i+1 < len(args); i++ {
			if !valueEqual(args[i], args[i+1]) {
				return value.Bool(false), nil
			}
		}
		return value.Bool(true), nil
	})
}

func valueEqual(a, b value.Value) bool {
	if a == nil {
		a = value.NilValue
	}
	if b == nil {
		b = value.NilValue
	}
	if an, aok, _ := numericEqCheck(a); aok {
		if bn, bok, _ := numericEqCheck(b); bok {
			return an == bn
		}
	}
	return a.Kind() == b.Kind() && a.String() == b.String()
}

func numericEqCheck(v value.Value) (float64, bool, bool) {
	n, isFloat, ok := asNumber(v)
	return n, ok, isFloat
}

func registerPredicates(r *builtin.Registry) {
	r.Register("not", func(args []value.Value) (value.Value, error) {
		if len(args) != 1 {
			return nil, arityErr("not", len(args))
		}
		return value.Bool(!isTruthy(args[0])), nil
	})
	r.Register("identity", func(args []value.Value) (value.Value, error) {
		if len(args) != 1 {
			return nil, arityErr("identity", len(args))
		}
		return args[0], nil
	})
	r.Register("nil?", func(args []value.Value) (value.Value, error) {
		if len(args) != 1 {
			return nil, arityErr("nil?", len(args))
		}
		_, isNil := args[0].(value.Nil)
		return value.Bool(args[0] == nil || isNil), nil
	})
	r.Register("true?", typeCheckBool(func(v value.Value) bool { b, ok := v.(value.Bool); return ok && bool(b) }))
	r.Register("false?", typeCheckBool(func(v value.Value) bool { b, ok := v.(value.Bool); return ok && !bool(b) }))
	r.Register("symbol?", typeCheckBool(func(v value.Value) bool { _, ok := v.(*value.Symbol); return ok }))
	r.Register("keyword?", typeCheckBool(func(v value.Value) bool { _, ok := v.(*value.Keyword); return ok }))
	r.Register("fn?", typeCheckBool(func(v value.Value) bool { _, ok := v.(*value.Fn); return ok }))
	r.Register("map?", typeCheckBool(func(v value.Value) bool { _, ok := v.(*value.Map); return ok }))
	r.Register("vector?", typeCheckBool(func(v value.Value) bool { _, ok := v.(*value.Vector); return ok }))
	r.Register("list?", typeCheckBool(func(v value.Value) bool { _, ok := v.(*value.List); return ok }))
	r.Register("set?", typeCheckBool(func(v value.Value) bool { _, ok := v.(*value.Set); return ok }))
}

func typeCheckBool(pred func(value.Value) bool) value.BuiltinFunc {
	return func(args []value.Value) (value.Value, error) {
		if len(args) != 1 {
			return nil, arityErr("predicate", len(args))
		}
		return value.Bool(pred(args[0])), nil
	}
}

func registerSeq(r *builtin.Registry, caller value.Forcer) {
	r.Register("vector", func(args []value.Value) (value.Value, error) {
		return value.NewVector(args...), nil
	})
	r.Register("list", func(args []value.Value) (value.Value, error) {
		return value.NewList(args...), nil
	})
	r.Register("hash-set", func(args []value.Value) (value.Value, error) {
		return value.NewSet(args...), nil
	})
	r.Register("hash-map", func(args []value.Value) (value.Value, error) {
		if len(args)%2 != 0 {
			return nil, typeErr("hash-map requires an even number of args")
		}
		return value.NewMap(args...), nil
	})
	r.Register("seq", func(args []value.Value) (value.Value, error) {
		if len(args) != 1 {
			return nil, arityErr("seq", len(args))
		}
		items, err := toSlice(caller, args[0])
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return value.NilValue, nil
		}
		return value.NewList(items...), nil
	})
	r.Register("vec", func(args []value.Value) (value.Value, error) {
		if len(args) != 1 {
			return nil, arityErr("vec", len(args))
		}
		items, err := toSlice(caller, args[0])
		if err != nil {
			return nil, err
		}
		return value.NewVector(items...), nil
	})
	r.Register("set", func(args []value.Value) (value.Value, error) {
		if len(args) != 1 {
			return nil, arityErr("set", len(args))
		}
		items, err := toSlice(caller, args[0])
		if err != nil {
			return nil, err
		}
		return value.NewSet(items...), nil
	})
	r.Register("concat", func(args []value.Value) (value.Value, error) {
		var all []value.Value
		for _, a := range args {
			items, err := toSlice(caller, a)
			if err != nil {
				return nil, err
			}
			all = append(all, items...)
		}
		return value.NewList(all...), nil
	})
	r.Register("cons", func(args []value.Value) (value.Value, error) {
		if len(args) != 2 {
			return nil, arityErr("cons", len(args))
		}
		// A lazy tail stays lazy: forcing it here would defeat cons onto
		// an infinite generator such as (iterate inc 0).
		if ls, ok := args[1].(*value.LazySeq); ok {
			return value.NewConsSeq(args[0], ls), nil
		}
		items, err := toSlice(caller, args[1])
		if err != nil {
			return nil, err
		}
		return value.NewList(append([]value.Value{args[0]}, items...)...), nil
	})
	r.Register("conj", func(args []value.Value) (value.Value, error) {
		if len(args) < 1 {
			return nil, arityErr("conj", len(args))
		}
		coll := args[0]
		switch c := coll.(type) {
		case nil, value.Nil:
			return value.NewList(reverseValues(args[1:])...), nil
		case *value.List:
			out := c
			for _, a := range args[1:] {
				out = out.Conj(a)
			}
			return out, nil
		case *value.Vector:
			out := c
			for _, a := range args[1:] {
				out = out.Conj(a)
			}
			return out, nil
		case *value.Set:
			out := c
			for _, a := range args[1:] {
				out = out.Conj(a)
			}
			return out, nil
		default:
			return nil, typeErr("conj: not a collection: %s", coll.String())
		}
	})
	r.Register("disj", func(args []value.Value) (value.Value, error) {
		if len(args) < 1 {
			return nil, arityErr("disj", len(args))
		}
		s, ok := args[0].(*value.Set)
		if !ok {
			return nil, typeErr("disj requires a set, got %s", args[0].String())
		}
		for _, a := range args[1:] {
			s = s.Disj(a)
		}
		return s, nil
	})
	r.Register("count", func(args []value.Value) (value.Value, error) {
		if len(args) != 1 {
			return nil, arityErr("count", len(args))
		}
		items, err := toSlice(caller, args[0])
		if err != nil {
			return nil, err
		}
		return value.Int(int64(len(items))), nil
	})
	r.Register("first", func(args []value.Value) (value.Value, error) {
		if len(args) != 1 {
			return nil, arityErr("first", len(args))
		}
		items, err := toSlice(caller, args[0])
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return value.NilValue, nil
		}
		return items[0], nil
	})
	r.Register("rest", func(args []value.Value) (value.Value, error) {
		if len(args) != 1 {
			return nil, arityErr("rest", len(args))
		}
		items, err := toSlice(caller, args[0])
		if err != nil {
			return nil, err
		}
		if len(items) <= 1 {
			return value.EmptyList, nil
		}
		return value.NewList(items[1:]...), nil
	})
	r.Register("nth", func(args []value.Value) (value.Value, error) {
		if len(args) != 2 && len(args) != 3 {
			return nil, arityErr("nth", len(args))
		}
		items, err := toSlice(caller, args[0])
		if err != nil {
			return nil, err
		}
		idx, ok := args[1].(value.Int)
		if !ok {
			return nil, typeErr("nth index must be an int")
		}
		i := int(idx)
		if i < 0 || i >= len(items) {
			if len(args) == 3 {
				return args[2], nil
			}
			return nil, diagnostics.New(diagnostics.IndexOutOfBounds, diagnostics.PhaseEval, diagnostics.Loc{}, "index %d out of bounds", i)
		}
		return items[i], nil
	})
	r.Register("drop", func(args []value.Value) (value.Value, error) {
		if len(args) != 2 {
			return nil, arityErr("drop", len(args))
		}
		n, ok := args[0].(value.Int)
		if !ok {
			return nil, typeErr("drop count must be an int")
		}
		items, err := toSlice(caller, args[1])
		if err != nil {
			return nil, err
		}
		i := int(n)
		if i >= len(items) {
			return value.EmptyList, nil
		}
		if i < 0 {
			i = 0
		}
		return value.NewList(items[i:]...), nil
	})
	r.Register("take", func(args []value.Value) (value.Value, error) {
		if len(args) != 2 {
			return nil, arityErr("take", len(args))
		}
		n, ok := args[0].(value.Int)
		if !ok {
			return nil, typeErr("take count must be an int")
		}
		if n <= 0 {
			return value.EmptyList, nil
		}
		// Bounded: a plain toSlice would force an infinite generator
		// like (iterate inc 0) to completion and never return.
		items, err := toSliceLimit(caller, args[1], int(n))
		if err != nil {
			return nil, err
		}
		return value.NewList(items...), nil
	})
	r.Register("iterate", func(args []value.Value) (value.Value, error) {
		if len(args) != 2 {
			return nil, arityErr("iterate", len(args))
		}
		return value.NewGeneratorSeq(value.GenIterate, args[0], args[1], nil), nil
	})
	r.Register("get", func(args []value.Value) (value.Value, error) {
		if len(args) != 2 && len(args) != 3 {
			return nil, arityErr("get", len(args))
		}
		var notFound value.Value = value.NilValue
		if len(args) == 3 {
			notFound = args[2]
		}
		switch c := args[0].(type) {
		case *value.Map:
			if v, ok := c.Get(args[1]); ok {
				return v, nil
			}
			return notFound, nil
		case *value.Set:
			if c.Contains(args[1]) {
				return args[1], nil
			}
			return notFound, nil
		case *value.Vector:
			idx, ok := args[1].(value.Int)
			if !ok {
				return notFound, nil
			}
			if v, ok := c.Nth(int(idx)); ok {
				return v, nil
			}
			return notFound, nil
		case nil, value.Nil:
			return notFound, nil
		default:
			return notFound, nil
		}
	})
	r.Register("assoc", func(args []value.Value) (value.Value, error) {
		if len(args) < 3 || len(args)%2 != 1 {
			return nil, arityErr("assoc", len(args))
		}
		switch c := args[0].(type) {
		case *value.Map:
			out := c
			for i := 1; i+1 < len(args); i += 2 {
				out = out.Assoc(args[i], args[i+1])
			}
			return out, nil
		case nil, value.Nil:
			out := value.EmptyMap
			for i := 1; i+1 < len(args); i += 2 {
				out = out.Assoc(args[i], args[i+1])
			}
			return out, nil
		case *value.Vector:
			out := c
			for i := 1; i+1 < len(args); i += 2 {
				idx, ok := args[i].(value.Int)
				if !ok {
					return nil, typeErr("assoc index must be an int")
				}
				newOut, ok := out.Assoc(int(idx), args[i+1])
				if !ok {
					return nil, diagnostics.New(diagnostics.IndexOutOfBounds, diagnostics.PhaseEval, diagnostics.Loc{}, "index %d out of bounds", int(idx))
				}
				out = newOut
			}
			return out, nil
		default:
			return nil, typeErr("assoc: not associative: %s", args[0].String())
		}
	})
	r.Register("dissoc", func(args []value.Value) (value.Value, error) {
		if len(args) < 1 {
			return nil, arityErr("dissoc", len(args))
		}
		m, ok := args[0].(*value.Map)
		if !ok {
			return nil, typeErr("dissoc requires a map, got %s", args[0].String())
		}
		out := m
		for _, k := range args[1:] {
			out = out.Dissoc(k)
		}
		return out, nil
	})
}

func reverseValues(vs []value.Value) []value.Value {
	out := make([]value.Value, len(vs))
	for i, v := range vs {
		out[len(vs)-1-i] = v
	}
	return out
}

func registerIO(r *builtin.Registry) {
	r.Register("str", func(args []value.Value) (value.Value, error) {
		var b []byte
		for _, a := range args {
			if a == nil {
				continue
			}
			if _, isNil := a.(value.Nil); isNil {
				continue
			}
			if s, ok := a.(value.String); ok {
				b = append(b, string(s)...)
				continue
			}
			b = append(b, a.String()...)
		}
		return value.String(string(b)), nil
	})
	r.Register("print", func(args []value.Value) (value.Value, error) {
		fmt.Print(joinDisplay(args))
		return value.NilValue, nil
	})
	r.Register("println", func(args []value.Value) (value.Value, error) {
		fmt.Println(joinDisplay(args))
		return value.NilValue, nil
	})
	r.Register("throw", func(args []value.Value) (value.Value, error) {
		if len(args) != 1 {
			return nil, arityErr("throw", len(args))
		}
		e := diagnostics.New(diagnostics.UserException, diagnostics.PhaseEval, diagnostics.Loc{}, "%s", args[0].String())
		e.Thrown = args[0]
		return nil, e
	})
}

// registerRegex wires the #"..." literal (a *value.Pattern) to the
// handful of match operations spec.md's scenario table exercises —
// re-find returns the whole match plus its capture groups as a vector,
// matching Clojure's own "single match -> vector of strings" contract.
func registerRegex(r *builtin.Registry) {
	r.Register("re-pattern", func(args []value.Value) (value.Value, error) {
		if len(args) != 1 {
			return nil, arityErr("re-pattern", len(args))
		}
		s, ok := args[0].(value.String)
		if !ok {
			return nil, typeErr("re-pattern requires a string, got %s", args[0].String())
		}
		p, err := value.NewPattern(string(s))
		if err != nil {
			return nil, diagnostics.Wrap(diagnostics.InvalidRegex, diagnostics.PhaseEval, diagnostics.Loc{}, err, "invalid regex %q", string(s))
		}
		return p, nil
	})
	r.Register("re-find", func(args []value.Value) (value.Value, error) {
		if len(args) != 2 {
			return nil, arityErr("re-find", len(args))
		}
		p, subject, err := patternArgs("re-find", args)
		if err != nil {
			return nil, err
		}
		m, ok := p.Compiled.Find(subject, 0)
		if !ok {
			return value.NilValue, nil
		}
		return matchVector(m, subject), nil
	})
	r.Register("re-matches", func(args []value.Value) (value.Value, error) {
		if len(args) != 2 {
			return nil, arityErr("re-matches", len(args))
		}
		p, subject, err := patternArgs("re-matches", args)
		if err != nil {
			return nil, err
		}
		m, ok := p.Compiled.Matches(subject)
		if !ok {
			return value.NilValue, nil
		}
		return matchVector(m, subject), nil
	})
	r.Register("re-seq", func(args []value.Value) (value.Value, error) {
		if len(args) != 2 {
			return nil, arityErr("re-seq", len(args))
		}
		p, subject, err := patternArgs("re-seq", args)
		if err != nil {
			return nil, err
		}
		var out []value.Value
		it := p.Compiled.Iterate(subject)
		for {
			m, ok := it.Next()
			if !ok {
				break
			}
			out = append(out, matchVector(m, subject))
		}
		return value.NewList(out...), nil
	})
}

func patternArgs(name string, args []value.Value) (*value.Pattern, string, error) {
	p, ok := args[0].(*value.Pattern)
	if !ok {
		return nil, "", typeErr("%s requires a pattern, got %s", name, args[0].String())
	}
	s, ok := args[1].(value.String)
	if !ok {
		return nil, "", typeErr("%s requires a string subject, got %s", name, args[1].String())
	}
	return p, string(s), nil
}

// matchVector returns the whole match alone when the pattern has no
// capture groups, or `[whole group1 group2 ...]` when it does — an
// unmatched optional group comes back as nil, matching re-find's own
// group-vector shape.
func matchVector(m *regexp.MatchResult, subject string) value.Value {
	whole, _ := m.Group(0, subject)
	if m.Len() == 0 {
		return value.String(whole)
	}
	items := make([]value.Value, 0, m.Len()+1)
	items = append(items, value.String(whole))
	for i := 1; i <= m.Len(); i++ {
		g, ok := m.Group(i, subject)
		if !ok {
			items = append(items, value.NilValue)
			continue
		}
		items = append(items, value.String(g))
	}
	return value.NewVector(items...)
}

// registerAtom wires spec.md §4.6.4's mutable reference cell: atom,
// deref, reset! and swap! (the last needing caller to invoke the
// update fn, since Atom's own Swap takes a plain Go func).
func registerAtom(r *builtin.Registry, caller value.Forcer) {
	r.Register("atom", func(args []value.Value) (value.Value, error) {
		if len(args) != 1 {
			return nil, arityErr("atom", len(args))
		}
		return value.NewAtom(args[0]), nil
	})
	r.Register("deref", func(args []value.Value) (value.Value, error) {
		if len(args) != 1 {
			return nil, arityErr("deref", len(args))
		}
		switch x := args[0].(type) {
		case *value.Atom:
			return x.Deref(), nil
		default:
			return nil, typeErr("deref requires an atom, got %s", args[0].String())
		}
	})
	r.Register("reset!", func(args []value.Value) (value.Value, error) {
		if len(args) != 2 {
			return nil, arityErr("reset!", len(args))
		}
		a, ok := args[0].(*value.Atom)
		if !ok {
			return nil, typeErr("reset! requires an atom, got %s", args[0].String())
		}
		return a.Reset(args[1]), nil
	})
	r.Register("swap!", func(args []value.Value) (value.Value, error) {
		if len(args) < 2 {
			return nil, arityErr("swap!", len(args))
		}
		a, ok := args[0].(*value.Atom)
		if !ok {
			return nil, typeErr("swap! requires an atom, got %s", args[0].String())
		}
		fn := args[1]
		extra := args[2:]
		return a.Swap(func(old value.Value) (value.Value, error) {
			return caller.Call(fn, append([]value.Value{old}, extra...))
		})
	})
}

func joinDisplay(args []value.Value) string {
	parts := make([]string, len(args))
	for i, a := range args {
		if a == nil {
			parts[i] = "nil"
			continue
		}
		parts[i] = a.String()
	}
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out
}
