package opcodes

// OperandKind tags what an instruction operand's uint32 payload means.
type OperandKind byte

const (
	OperandNone   OperandKind = iota
	OperandReg                // register index
	OperandConst              // constant-pool index
	OperandString             // string-pool index (interned name)
	OperandImm                // small signed immediate, stored via int32(val)
	OperandPC                 // absolute program-counter target (jumps)
)

// Instruction is one bytecode instruction. Spec §3.2 allows either a
// 16-bit or 32-bit dense word encoding as an implementation choice; this
// repository uses a fixed struct-of-uint32 array, which satisfies the
// same requirement (operands accommodate an unsigned name/constant index
// and a signed absolute PC) without bit-packing complexity.
type Instruction struct {
	Op    Opcode
	AKind OperandKind
	BKind OperandKind
	A     uint32
	B     uint32
	Dst   uint32 // destination register; meaning is opcode-specific
}

// ImmInt reads A as a signed immediate.
func (i Instruction) ImmInt() int64 { return int64(int32(i.A)) }

// PC reads A as an absolute jump target.
func (i Instruction) PC() int { return int(int32(i.A)) }
