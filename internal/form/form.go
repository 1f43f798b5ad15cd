// Package form is the reader's output data model (spec.md §3.1): a
// syntactic value tree carrying source-location stamps, consumed by
// internal/analyzer. Forms live in the scratch arena (internal/alloc).
package form

import (
	"strconv"
	"strings"

	"github.com/clj-embed/cloj/internal/diagnostics"
	"github.com/clj-embed/cloj/internal/regexp"
)

// Form is a syntactic value: one variant per spec.md §3.1.
type Form interface {
	isForm()
	Loc() diagnostics.Loc
	String() string
}

type base struct {
	loc diagnostics.Loc
}

func (b base) Loc() diagnostics.Loc { return b.loc }

type Nil struct{ base }
type Bool struct {
	base
	Value bool
}
type Int struct {
	base
	Value int64
}
type Float struct {
	base
	Value float64
}
type Char struct {
	base
	Value rune
}
type Str struct {
	base
	Value string
}
type Keyword struct {
	base
	Ns, Name string
}
type Symbol struct {
	base
	Ns, Name string
}
type List struct {
	base
	Items []Form
}
type Vector struct {
	base
	Items []Form
}
type MapForm struct {
	base
	Keys, Vals []Form
}
type SetForm struct {
	base
	Items []Form
}
type Regex struct {
	base
	Pattern *regexp.Pattern
}
type Tagged struct {
	base
	Tag  string
	Form Form
}

func (Nil) isForm()     {}
func (Bool) isForm()    {}
func (Int) isForm()     {}
func (Float) isForm()   {}
func (Char) isForm()    {}
func (Str) isForm()     {}
func (Keyword) isForm() {}
func (Symbol) isForm()  {}
func (List) isForm()    {}
func (Vector) isForm()  {}
func (MapForm) isForm() {}
func (SetForm) isForm() {}
func (Regex) isForm()   {}
func (Tagged) isForm()  {}

func NewNil(loc diagnostics.Loc) Nil            { return Nil{base{loc}} }
func NewBool(v bool, loc diagnostics.Loc) Bool  { return Bool{base{loc}, v} }
func NewInt(v int64, loc diagnostics.Loc) Int   { return Int{base{loc}, v} }
func NewFloat(v float64, loc diagnostics.Loc) Float {
	return Float{base{loc}, v}
}
func NewChar(v rune, loc diagnostics.Loc) Char { return Char{base{loc}, v} }
func NewStr(v string, loc diagnostics.Loc) Str { return Str{base{loc}, v} }
func NewKeyword(ns, name string, loc diagnostics.Loc) Keyword {
	return Keyword{base{loc}, ns, name}
}
func NewSymbol(ns, name string, loc diagnostics.Loc) Symbol {
	return Symbol{base{loc}, ns, name}
}
func NewList(items []Form, loc diagnostics.Loc) List     { return List{base{loc}, items} }
func NewVector(items []Form, loc diagnostics.Loc) Vector { return Vector{base{loc}, items} }
func NewSet(items []Form, loc diagnostics.Loc) SetForm   { return SetForm{base{loc}, items} }
func NewTagged(tag string, f Form, loc diagnostics.Loc) Tagged {
	return Tagged{base{loc}, tag, f}
}
func NewRegex(p *regexp.Pattern, loc diagnostics.Loc) Regex { return Regex{base{loc}, p} }

// NewMap builds a map Form, rejecting duplicate keys per spec.md §3.1's
// "Map literals reject duplicate keys at parse time" invariant.
func NewMap(keys, vals []Form, loc diagnostics.Loc) (MapForm, error) {
	seen := map[string]bool{}
	for _, k := range keys {
		s := k.String()
		if seen[s] {
			return MapForm{}, diagnostics.New(diagnostics.DuplicateKey, diagnostics.PhaseParse, loc, "duplicate map key %s", s)
		}
		seen[s] = true
	}
	return MapForm{base{loc}, keys, vals}, nil
}

func (f Nil) String() string  { return "nil" }
func (f Bool) String() string { return strconv.FormatBool(f.Value) }
func (f Int) String() string  { return strconv.FormatInt(f.Value, 10) }
func (f Float) String() string {
	return strconv.FormatFloat(f.Value, 'g', -1, 64)
}
func (f Char) String() string { return "\\" + string(f.Value) }
func (f Str) String() string  { return strconv.Quote(f.Value) }
func (f Keyword) String() string {
	if f.Ns != "" {
		return ":" + f.Ns + "/" + f.Name
	}
	return ":" + f.Name
}
func (f Symbol) String() string {
	if f.Ns != "" {
		return f.Ns + "/" + f.Name
	}
	return f.Name
}
func (f List) String() string   { return "(" + joinForms(f.Items) + ")" }
func (f Vector) String() string { return "[" + joinForms(f.Items) + "]" }
func (f SetForm) String() string { return "#{" + joinForms(f.Items) + "}" }
func (f MapForm) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i := range f.Keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(f.Keys[i].String())
		b.WriteByte(' ')
		b.WriteString(f.Vals[i].String())
	}
	b.WriteByte('}')
	return b.String()
}
func (f Regex) String() string  { return "#\"" + f.Pattern.Source + "\"" }
func (f Tagged) String() string { return "#" + f.Tag + " " + f.Form.String() }

func joinForms(items []Form) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = it.String()
	}
	return strings.Join(parts, " ")
}

// PrStr pretty-prints a Form for REPL/error display (spec.md §6.1).
func PrStr(f Form) string {
	if f == nil {
		return "nil"
	}
	return f.String()
}
