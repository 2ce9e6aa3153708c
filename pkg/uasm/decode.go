package uasm

import "fmt"

// Opcode classes, as selected by the top five bits of a 16-bit Thumb
// instruction. Only these two are ever decoded.
const (
	// OpcodeLiteralLoad is LDR Rt, [PC, #imm8*4].
	OpcodeLiteralLoad uint8 = 0x09
	// OpcodeImmediateLoad is LDR Rt, [Rn, #imm5*4].
	OpcodeImmediateLoad uint8 = 0x0d
)

// Opcode returns the opcode class of instr.
func Opcode(instr uint16) uint8 {
	return uint8(instr>>11) & 0x1f
}

// LiteralLoad is a decoded PC-relative load.
type LiteralLoad struct {
	Dest Register
	// Literal is the address of the pool entry. The entry contains the value
	// loaded into Dest.
	Literal uint32
}

// DecodeLiteralLoad decodes a literal load located at pc. The opcode class is
// not checked.
func DecodeLiteralLoad(pc uint32, instr uint16) LiteralLoad {
	imm8 := uint32(instr & 0xff)
	return LiteralLoad{
		Dest:    Register((instr >> 8) & 7),
		Literal: (pc &^ 3) + imm8*4 + 4,
	}
}

func (l LiteralLoad) String() string {
	return fmt.Sprintf("ldr %s, [0x%08x]", l.Dest, l.Literal)
}

// ImmediateLoad is a decoded word load at a base register plus offset.
type ImmediateLoad struct {
	// Imm5 is the offset in words.
	Imm5 uint8
	Dest Register
	Base Register
}

// DecodeImmediateOffset decodes an immediate-offset load. The opcode class is
// not checked.
func DecodeImmediateOffset(instr uint16) ImmediateLoad {
	return ImmediateLoad{
		Imm5: uint8(instr>>6) & 0x1f,
		Dest: Register(instr & 7),
		Base: Register((instr >> 3) & 7),
	}
}

// Offset is the byte offset added to the base register.
func (l ImmediateLoad) Offset() uint32 {
	return uint32(l.Imm5) * 4
}

func (l ImmediateLoad) String() string {
	return fmt.Sprintf("ldr %s, [%s, #0x%x]", l.Dest, l.Base, l.Offset())
}
