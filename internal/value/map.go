package value

// Map is a persistent hash map backed by a HAMT (spec.md §3.3), giving
// O(log32 n) get/assoc/dissoc, grounded on the teacher's
// evaluator/persistent_map.go PersistentMap.
type Map struct {
	root  *hamtNode
	count int
}

var EmptyMap = &Map{}

func NewMap(pairs ...Value) *Map {
	m := EmptyMap
	for i := 0; i+1 < len(pairs); i += 2 {
		m = m.Assoc(pairs[i], pairs[i+1])
	}
	return m
}

func (m *Map) Kind() Kind  { return MapKind }
func (m *Map) Count() int  { return m.count }
func (m *Map) IsEmpty() bool { return m.count == 0 }

func (m *Map) Get(key Value) (Value, bool) {
	return m.root.get(hamtHash(key), key, 0)
}

func (m *Map) Contains(key Value) bool {
	_, ok := m.Get(key)
	return ok
}

func (m *Map) Assoc(key, val Value) *Map {
	newRoot, added := m.root.put(hamtHash(key), key, val, 0)
	count := m.count
	if added {
		count++
	}
	return &Map{root: newRoot, count: count}
}

func (m *Map) Dissoc(key Value) *Map {
	newRoot, removed := m.root.remove(hamtHash(key), key, 0)
	if !removed {
		return m
	}
	return &Map{root: newRoot, count: m.count - 1}
}

// Keys/Vals return collection snapshots; order is stable for a single Map
// value (HAMT walk order) but not meaningfully comparable across maps.
func (m *Map) Keys() []Value {
	out := make([]Value, 0, m.count)
	m.root.walk(func(k, _ Value) { out = append(out, k) })
	return out
}

func (m *Map) Vals() []Value {
	out := make([]Value, 0, m.count)
	m.root.walk(func(_, v Value) { out = append(out, v) })
	return out
}

func (m *Map) Each(fn func(k, v Value)) { m.root.walk(fn) }

// First/Rest satisfy Seqable by exposing map entries as 2-element Vectors.
func (m *Map) First() Value {
	if m.IsEmpty() {
		return NilValue
	}
	var k, v Value
	found := false
	m.root.walk(func(kk, vv Value) {
		if !found {
			k, v, found = kk, vv, true
		}
	})
	return NewVector(k, v)
}

func (m *Map) Rest() Value {
	if m.IsEmpty() {
		return EmptyMap
	}
	first := true
	var out *Map = EmptyMap
	var skipK Value
	m.root.walk(func(k, v Value) {
		if first {
			first = false
			skipK = k
			return
		}
		out = out.Assoc(k, v)
	})
	_ = skipK
	return out
}

func (m *Map) String() string {
	out := "{"
	first := true
	m.root.walk(func(k, v Value) {
		if !first {
			out += ", "
		}
		first = false
		out += k.String() + " " + v.String()
	})
	return out + "}"
}

// Hash is order-independent, per spec.md §3.3.
func (m *Map) Hash() uint32 {
	var h uint32
	m.root.walk(func(k, v Value) {
		h += elemHash(k)*31 ^ elemHash(v)
	})
	return h
}

func mapEqual(a *Map, bv Value) bool {
	b, ok := bv.(*Map)
	if !ok || a.count != b.count {
		return false
	}
	equal := true
	a.root.walk(func(k, v Value) {
		if !equal {
			return
		}
		bv, ok := b.Get(k)
		if !ok || !Equal(v, bv) {
			equal = false
		}
	})
	return equal
}
