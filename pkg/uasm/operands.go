package uasm

// LoadSource is an operand which can be a source of data to a memory
// operation.
type LoadSource interface {
	encodeLoadSource(c *ctx, dest Register) uint16
}

// StoreDest is an operand which can be a destination for a memory operation.
type StoreDest interface {
	encodeStoreDest(c *ctx, src Register) uint16
}

// Branch target is an operand that can be interpreted as a program address.
type BranchTarget interface {
	resolveBranchTarget(c *ctx) uint32
}

// Constant is a 32-bit number that will end up in the literal pool.
type Constant uint32

func (t Constant) encodeLoadSource(c *ctx, dest Register) uint16 {
	addr := c.AllocateConstant(uint32(t))
	return literalLoad(dest, literalOffset(c.instrAddr, addr))
}

func (r LabelRef) encodeLoadSource(c *ctx, dest Register) uint16 {
	addr := c.AllocateConstant(r.resolveBranchTarget(c))
	return literalLoad(dest, literalOffset(c.instrAddr, addr))
}

func literalLoad(dest Register, imm8 uint16) uint16 {
	var res uint16
	res |= uint16(OpcodeLiteralLoad) << 11
	res |= dest.low() << 8
	res |= imm8
	return res
}

// MemoryDeref is a word access at a register plus an immediate byte offset.
// The offset must be a multiple of 4 and below 128.
type MemoryDeref struct {
	Reg    Register
	Offset uint16
}

func (m MemoryDeref) imm5() uint16 {
	if (m.Offset%4) != 0 || m.Offset >= (32*4) {
		panic("offset not encodable")
	}
	return m.Offset / 4
}

func (m MemoryDeref) encodeLoadSource(c *ctx, dest Register) uint16 {
	var res uint16
	res |= uint16(OpcodeImmediateLoad) << 11
	res |= m.imm5() << 6
	res |= m.Reg.low() << 3
	res |= dest.low()
	return res
}

func (m MemoryDeref) encodeStoreDest(c *ctx, src Register) uint16 {
	var res uint16
	res |= 0b01100 << 11
	res |= m.imm5() << 6
	res |= m.Reg.low() << 3
	res |= src.low()
	return res
}

func Deref(r Register, offset uint16) MemoryDeref {
	return MemoryDeref{
		Reg:    r,
		Offset: offset,
	}
}

// Immediate is an 8-bit data source for mov/cmp.
type Immediate uint8
