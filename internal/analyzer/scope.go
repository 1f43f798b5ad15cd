package analyzer

// scopeFrame is one level of the "mutable stack of {name -> slot_index}
// frames" from spec.md §4.3's scope-tracking rule.
type scopeFrame struct {
	vars   map[string]int
	parent *scopeFrame
}

// scope tracks lexical bindings within a single Fn/top-level frame;
// slotCounter is shared across all frames nested inside the same Fn so
// LocalRef.Index is an absolute slot index, not frame-relative.
type scope struct {
	top         *scopeFrame
	slotCounter *int
}

func newScope() *scope {
	n := 0
	return &scope{slotCounter: &n}
}

func (s *scope) push() *scope {
	return &scope{top: &scopeFrame{vars: map[string]int{}, parent: s.top}, slotCounter: s.slotCounter}
}

// childFn starts a fresh slot counter for a nested Fn — its LocalRefs
// are relative to its own frame, not the enclosing one.
func (s *scope) childFn() *scope {
	n := 0
	return &scope{slotCounter: &n}
}

func (s *scope) bind(name string) int {
	idx := *s.slotCounter
	*s.slotCounter++
	if s.top == nil {
		s.top = &scopeFrame{vars: map[string]int{}}
	}
	s.top.vars[name] = idx
	return idx
}

func (s *scope) lookup(name string) (int, bool) {
	for f := s.top; f != nil; f = f.parent {
		if idx, ok := f.vars[name]; ok {
			return idx, true
		}
	}
	return 0, false
}
