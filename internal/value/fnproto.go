package value

// FnProto is a compiled function prototype produced by the VM's compiler
// (spec.md §4.5): a flat instruction stream over a constant pool, built
// once per Fn arity and reused by every later call. Code packs each
// Instruction as {opcode:u8, operand:u16} into the high/low bits of a
// uint32 so the VM can index it directly without an internal/vm import
// here (value sits below internal/vm in the dependency order, the same
// reason FnBody is left opaque in fn.go).
//
// A value.Fn produced by the VM backend stores *FnProto in the Arity
// whose Body field the tree walker instead fills with its own *fnBody
// (node + captured frame) — both satisfy the opaque FnBody contract, so
// neither backend needs to know the other's closure representation.
type FnProto struct {
	Name          string
	Arity         int
	Variadic      bool
	LocalCount    int
	Code          []uint32
	Constants     []Value
	CaptureOffset int
	CaptureCount  int
}

func (p *FnProto) Kind() Kind { return FnProtoKind }
func (p *FnProto) String() string {
	if p.Name != "" {
		return "#<fn-proto " + p.Name + ">"
	}
	return "#<fn-proto>"
}
func (p *FnProto) Hash() uint32 { return fnv32("fn-proto:" + p.Name) }
