package value

import "sync"

// MultiFn implements user-programmable dispatch layered on the Value tag
// (spec.md §4.6.5): dispatch_fn picks a key, looked up by exact equality,
// then by hierarchy walk, then :default.
type MultiFn struct {
	Name        string
	DispatchFn  Value
	Methods     map[string]Value // keyed by dispatchKey, the dispatch value's String() (exact match)
	Default     Value
	PreferTable map[string]string // dispatch-key -> preferred dispatch-key on tie
}

func NewMultiFn(name string, dispatchFn Value) *MultiFn {
	return &MultiFn{Name: name, DispatchFn: dispatchFn, Methods: map[string]Value{}, PreferTable: map[string]string{}}
}

func (m *MultiFn) Kind() Kind     { return MultiFnKind }
func (m *MultiFn) String() string { return "#<multifn " + m.Name + ">" }
func (m *MultiFn) Hash() uint32   { return fnv32("multifn:" + m.Name) }

func dispatchKey(v Value) string {
	if v == nil {
		return "nil"
	}
	return v.String()
}

func (m *MultiFn) AddMethod(dispatchVal, fn Value) {
	m.Methods[dispatchKey(dispatchVal)] = fn
}

// globalHierarchy maps a tag to its ancestors, used by MultiFn's
// hierarchy-walk lookup step (spec.md §4.6.5). Defaults mirror the spec's
// examples (`integer -> number`, `vector -> sequential`).
var (
	hierarchyMu sync.Mutex
	hierarchy   = map[string][]string{
		"integer": {"number"},
		"float":  {"number"},
		"vector": {"sequential", "collection"},
		"list":   {"sequential", "collection"},
		"map":    {"collection"},
		"set":    {"collection"},
		"string": {"sequential"},
	}
)

func DeriveHierarchy(tag, parent string) {
	hierarchyMu.Lock()
	defer hierarchyMu.Unlock()
	hierarchy[tag] = append(hierarchy[tag], parent)
}

func Ancestors(tag string) []string {
	hierarchyMu.Lock()
	defer hierarchyMu.Unlock()
	seen := map[string]bool{}
	var out []string
	var walk func(string)
	walk = func(t string) {
		for _, p := range hierarchy[t] {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
				walk(p)
			}
		}
	}
	walk(tag)
	return out
}

// Resolve looks up the method for dispatchVal per §4.6.5's three-step
// rule: exact equality, hierarchy walk, then :default.
func (m *MultiFn) Resolve(dispatchVal Value) (Value, bool) {
	key := dispatchKey(dispatchVal)
	if fn, ok := m.Methods[key]; ok {
		return fn, true
	}
	for _, anc := range Ancestors(key) {
		if fn, ok := m.Methods[anc]; ok {
			return fn, true
		}
	}
	if m.Default != nil {
		return m.Default, true
	}
	return nil, false
}

// Protocol is `{name, method_sigs, impls}` per spec.md §4.6.5.
type Protocol struct {
	Name       string
	MethodSigs []ProtocolMethodSig
	Impls      map[string]map[string]Value // typeKeyword -> methodName -> fn
}

type ProtocolMethodSig struct {
	Name  string
	Arity int
}

func NewProtocol(name string) *Protocol {
	return &Protocol{Name: name, Impls: map[string]map[string]Value{}}
}

func (p *Protocol) Kind() Kind     { return ProtoKind }
func (p *Protocol) String() string { return "#<protocol " + p.Name + ">" }
func (p *Protocol) Hash() uint32   { return fnv32("protocol:" + p.Name) }

// ExtendType populates impls[typeKeyword(T)][m] = fn, per `extend-type`.
func (p *Protocol) ExtendType(typeKeyword, method string, fn Value) {
	if p.Impls[typeKeyword] == nil {
		p.Impls[typeKeyword] = map[string]Value{}
	}
	p.Impls[typeKeyword][method] = fn
}

// ProtocolFn looks up by args[0].TypeKeyword() in the protocol's impls
// table (spec.md §4.5's call protocol for ProtocolFn).
type ProtocolFn struct {
	Protocol *Protocol
	Method   string
}

func (f *ProtocolFn) Kind() Kind     { return ProtoFnKind }
func (f *ProtocolFn) String() string { return "#<protocol-fn " + f.Protocol.Name + "/" + f.Method + ">" }
func (f *ProtocolFn) Hash() uint32   { return fnv32("protocol-fn:" + f.Protocol.Name + ":" + f.Method) }

func (f *ProtocolFn) Resolve(self Value) (Value, bool) {
	tk := TypeKeyword(self)
	impl, ok := f.Protocol.Impls[tk]
	if !ok {
		return nil, false
	}
	fn, ok := impl[f.Method]
	return fn, ok
}

// TypeKeyword returns the short string identifying v's runtime tag for
// protocol dispatch (spec.md glossary: "Type keyword").
func TypeKeyword(v Value) string {
	if v == nil {
		return "nil"
	}
	switch v.(type) {
	case Int:
		return "integer"
	case Float:
		return "float"
	case Bool:
		return "boolean"
	case String:
		return "string"
	case Char:
		return "char"
	case *Keyword:
		return "keyword"
	case *Symbol:
		return "symbol"
	case *List:
		return "list"
	case *Vector:
		return "vector"
	case *Map:
		return "map"
	case *Set:
		return "set"
	case *Fn:
		return "function"
	default:
		return string(v.Kind())
	}
}
