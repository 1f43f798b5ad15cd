package value

import "github.com/clj-embed/cloj/internal/regexp"

// Pattern wraps a compiled regexp.Pattern so `#"…"` literals and
// `re-pattern`/`re-find`/`re-matches`/`re-seq` built-ins can carry it as
// an ordinary Value (spec.md §4.2, §4.6.4).
type Pattern struct {
	Compiled *regexp.Pattern
}

func NewPattern(source string) (*Pattern, error) {
	c, err := regexp.Compile(source)
	if err != nil {
		return nil, err
	}
	return &Pattern{Compiled: c}, nil
}

func (p *Pattern) Kind() Kind     { return PatternKind }
func (p *Pattern) String() string { return "#\"" + p.Compiled.Source + "\"" }
func (p *Pattern) Hash() uint32   { return fnv32("pattern:" + p.Compiled.Source) }

// Matcher wraps the stateful iteration handle returned by `re-seq`-style
// lazy consumption of a Pattern against a subject string.
type Matcher struct {
	Pattern *Pattern
	Subject string
	it      *regexp.Matcher
}

func NewMatcher(p *Pattern, subject string) *Matcher {
	return &Matcher{Pattern: p, Subject: subject, it: p.Compiled.Iterate(subject)}
}

func (m *Matcher) Kind() Kind     { return MatcherKind }
func (m *Matcher) String() string { return "#<matcher>" }
func (m *Matcher) Hash() uint32   { return fnv32("matcher:" + m.Subject) }

// Next advances the matcher and reports the next match, or (nil,false)
// when exhausted (spec.md §4.2's `iterate(subject)`).
func (m *Matcher) Next() (*regexp.MatchResult, bool) {
	return m.it.Next()
}

// Groups returns the whole-match plus captured group texts for a result,
// index 0 being the whole match (spec.md §4.6.4's `re-groups`).
func (m *Matcher) Groups(res *regexp.MatchResult) []Value {
	out := make([]Value, 0, res.Len()+1)
	whole, _ := res.Group(0, m.Subject)
	out = append(out, String(whole))
	for i := 1; i <= res.Len(); i++ {
		if g, ok := res.Group(i, m.Subject); ok {
			out = append(out, String(g))
		} else {
			out = append(out, Nil{})
		}
	}
	return out
}

