package value

// Set is a persistent hash set, implemented as a Map whose values are
// all Bool(true) (the same technique Clojure's own PersistentHashSet uses over
// its map).
type Set struct {
	m *Map
}

var EmptySet = &Set{m: EmptyMap}

func NewSet(items ...Value) *Set {
	s := EmptySet
	for _, it := range items {
		s = s.Conj(it)
	}
	return s
}

func (s *Set) Kind() Kind    { return SetKind }
func (s *Set) Count() int    { return s.m.Count() }
func (s *Set) IsEmpty() bool { return s.m.IsEmpty() }

func (s *Set) Contains(v Value) bool { return s.m.Contains(v) }

func (s *Set) Conj(v Value) *Set { return &Set{m: s.m.Assoc(v, Bool(true))} }

func (s *Set) Disj(v Value) *Set { return &Set{m: s.m.Dissoc(v)} }

func (s *Set) Items() []Value { return s.m.Keys() }

func (s *Set) First() Value {
	items := s.Items()
	if len(items) == 0 {
		return NilValue
	}
	return items[0]
}

func (s *Set) Rest() Value {
	items := s.Items()
	if len(items) <= 1 {
		return EmptySet
	}
	return NewSet(items[1:]...)
}

func (s *Set) String() string { return seqString("#{", "}", s) }

func (s *Set) Hash() uint32 {
	var h uint32
	for _, v := range s.Items() {
		h += elemHash(v)
	}
	return h
}

func setEqual(a *Set, bv Value) bool {
	b, ok := bv.(*Set)
	if !ok || a.Count() != b.Count() {
		return false
	}
	for _, v := range a.Items() {
		if !b.Contains(v) {
			return false
		}
	}
	return true
}
