package value

// List is a persistent singly-linked list: O(1) first/rest/conj-front,
// per spec.md §3.3's complexity contract.
type List struct {
	head  Value
	tail  *List
	count int
}

var EmptyList = &List{}

func NewList(items ...Value) *List {
	l := EmptyList
	for i := len(items) - 1; i >= 0; i-- {
		l = l.Conj(items[i])
	}
	return l
}

func (l *List) Kind() Kind { return ListKind }

func (l *List) IsEmpty() bool { return l.count == 0 }

func (l *List) Count() int { return l.count }

func (l *List) First() Value {
	if l.IsEmpty() {
		return NilValue
	}
	return l.head
}

func (l *List) Rest() Value {
	if l.IsEmpty() || l.tail == nil {
		return EmptyList
	}
	return l.tail
}

// Conj prepends, mirroring Clojure's `conj` on lists (front-consing).
func (l *List) Conj(v Value) *List {
	return &List{head: v, tail: l, count: l.count + 1}
}

func (l *List) String() string {
	return seqString("(", ")", l)
}

func (l *List) Hash() uint32 {
	return seqHash(l, 1)
}

func seqString(open, close string, s Seqable) string {
	out := open
	first := true
	for !s.IsEmpty() {
		if !first {
			out += " "
		}
		first = false
		out += s.First().String()
		next, ok := s.Rest().(Seqable)
		if !ok {
			break
		}
		s = next
	}
	return out + close
}

// seqHash is order-dependent, per spec.md §3.3's valueHash contract for
// lists/vectors (as opposed to maps/sets, which are order-independent).
func seqHash(s Seqable, seed uint32) uint32 {
	h := seed
	for !s.IsEmpty() {
		h = h*31 + elemHash(s.First())
		next, ok := s.Rest().(Seqable)
		if !ok {
			break
		}
		s = next
	}
	return h
}

// elemHash collapses integral floats to the same hash as the equal int,
// per spec.md §8.1 invariant 4.
func elemHash(v Value) uint32 {
	if f, ok := v.(Float); ok {
		if float64(f) == float64(int64(f)) {
			return Int(int64(f)).Hash()
		}
	}
	return v.Hash()
}
