package value

// BuiltinFunc is the narrow built-in contract from spec.md §4.6.1/§6.4: a
// host function over an argument slice. FnBody is opaque here (concretely
// internal/treewalk's *fnBody or internal/vm's *closureBody) to avoid an
// import cycle — value sits below node/analyzer
// in the dependency order, since Node.Constant embeds a Value.
type BuiltinFunc func(args []Value) (Value, error)

type FnBody interface{}

// Arity bundles one parameter signature of a Fn, per spec.md §3.2's `Fn`
// node payload (`arities[{params[], variadic, body}]`). SelfIndex
// mirrors node.Arity.SelfIndex (-1 when absent): the local slot a named
// fn's own name is bound to within its own body, so recursive
// self-reference works without going through a Var lookup, in either
// backend's closure representation.
type Arity struct {
	Params    []string
	Variadic  bool
	Body      FnBody
	NumParams int
	SelfIndex int
}

// Fn is a user-defined or built-in callable (spec.md §3.3). Closure holds
// the captured lexical slot snapshot from construction time (spec.md
// glossary: "Closure bindings").
type Fn struct {
	Name    string
	Arities []Arity
	Closure []Value
	Builtin BuiltinFunc
}

func (f *Fn) Kind() Kind { return FnKind }
func (f *Fn) String() string {
	if f.Name != "" {
		return "#<fn " + f.Name + ">"
	}
	return "#<fn>"
}
func (f *Fn) Hash() uint32 { return fnv32("fn:" + f.Name) }

// MatchArity finds the arity matching argc, honoring variadic tails.
func (f *Fn) MatchArity(argc int) (Arity, bool) {
	for _, a := range f.Arities {
		if a.Variadic && argc >= a.NumParams-1 {
			return a, true
		}
		if !a.Variadic && argc == a.NumParams {
			return a, true
		}
	}
	return Arity{}, false
}

// PartialFn is the result of partial application (spec.md §3.3).
type PartialFn struct {
	Fn   Value
	Args []Value
}

func (p *PartialFn) Kind() Kind     { return PartialKind }
func (p *PartialFn) String() string { return "#<partial>" }
func (p *PartialFn) Hash() uint32   { return fnv32("partial") }

// CompFn is function composition, applied right-to-left per spec.md
// §4.5's call protocol for CompFn.
type CompFn struct {
	Fns []Value
}

func (c *CompFn) Kind() Kind     { return CompKind }
func (c *CompFn) String() string { return "#<comp>" }
func (c *CompFn) Hash() uint32   { return fnv32("comp") }
