package value

import "sync"

// Keyword and Symbol are interned by (ns, name) when practical (spec.md
// §3.1 invariant); interning tables are guarded the way the teacher's
// Environment.store is guarded (evaluator/environment.go).
type Keyword struct {
	Ns   string
	Name string
}

func (k *Keyword) Kind() Kind { return KeywordKind }
func (k *Keyword) String() string {
	if k.Ns == "" {
		return ":" + k.Name
	}
	return ":" + k.Ns + "/" + k.Name
}
func (k *Keyword) Hash() uint32 { return fnv32("kw:"+k.Ns+"/"+k.Name) }

type Symbol struct {
	Ns   string
	Name string
}

func (s *Symbol) Kind() Kind { return SymbolKind }
func (s *Symbol) String() string {
	if s.Ns == "" {
		return s.Name
	}
	return s.Ns + "/" + s.Name
}
func (s *Symbol) Hash() uint32 { return fnv32("sym:" + s.Ns + "/" + s.Name) }

var (
	internMu   sync.Mutex
	keywordTbl = map[string]*Keyword{}
	symbolTbl  = map[string]*Symbol{}
)

func InternKeyword(ns, name string) *Keyword {
	internMu.Lock()
	defer internMu.Unlock()
	key := ns + "/" + name
	if k, ok := keywordTbl[key]; ok {
		return k
	}
	k := &Keyword{Ns: ns, Name: name}
	keywordTbl[key] = k
	return k
}

func InternSymbol(ns, name string) *Symbol {
	internMu.Lock()
	defer internMu.Unlock()
	key := ns + "/" + name
	if s, ok := symbolTbl[key]; ok {
		return s
	}
	s := &Symbol{Ns: ns, Name: name}
	symbolTbl[key] = s
	return s
}
