package value

// Transient is the temporary mutable builder for Vector/Map/Set
// (spec.md §3.3, §4.6.4). It exposes the same logical operations as its
// persistent counterpart but mutates an internal scratch buffer in
// place; `persistent!` freezes it into a value indistinguishable from one
// built persistently.
type Transient struct {
	kind    Kind // VectorKind, MapKind or SetKind: which persistent type this builds
	vector  []Value
	mapM    *Map
	setM    *Map
	editable bool
}

func NewTransientVector(v *Vector) *Transient {
	items := make([]Value, 0, v.Count())
	for i := 0; i < v.Count(); i++ {
		val, _ := v.Nth(i)
		items = append(items, val)
	}
	return &Transient{kind: VectorKind, vector: items, editable: true}
}

func NewTransientMap(m *Map) *Transient {
	return &Transient{kind: MapKind, mapM: m, editable: true}
}

func NewTransientSet(s *Set) *Transient {
	return &Transient{kind: SetKind, setM: s.m, editable: true}
}

func (t *Transient) Kind() Kind { return TransientKind }
func (t *Transient) String() string {
	return "#<transient>"
}
func (t *Transient) Hash() uint32 { return fnv32("transient") }

func (t *Transient) mustEditable() {
	if !t.editable {
		panic("transient used after persistent!")
	}
}

// ConjBang appends/adds, mirroring `conj!`.
func (t *Transient) ConjBang(v Value) *Transient {
	t.mustEditable()
	switch t.kind {
	case VectorKind:
		t.vector = append(t.vector, v)
	case SetKind:
		t.setM = t.setM.Assoc(v, Bool(true))
	}
	return t
}

// AssocBang sets key->val (vector: index->val), mirroring `assoc!`.
func (t *Transient) AssocBang(key, val Value) *Transient {
	t.mustEditable()
	switch t.kind {
	case VectorKind:
		idx := int(key.(Int))
		if idx == len(t.vector) {
			t.vector = append(t.vector, val)
		} else {
			t.vector[idx] = val
		}
	case MapKind:
		t.mapM = t.mapM.Assoc(key, val)
	}
	return t
}

// Persistent freezes the transient, per `persistent!`. The transient
// becomes unusable afterward.
func (t *Transient) Persistent() Value {
	t.editable = false
	switch t.kind {
	case VectorKind:
		return NewVector(t.vector...)
	case MapKind:
		return t.mapM
	case SetKind:
		return &Set{m: t.setM}
	}
	return NilValue
}
