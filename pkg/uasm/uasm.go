// package uasm implements a boneless pseudo assembler and linker for 16-bit
// Thumb, plus a decoder for the couple of encodings the resolver needs to
// follow literal pools. The assembler is used to build synthetic boot ROM
// images without relying on a third-party toolchain.
package uasm

import (
	"fmt"
)

// Program is a snippet of Thumb code to be placed at a given address.
type Program struct {
	Address uint32
	Listing []Statement
}

// Assemble emits the program followed by its literal pool. The pool is
// aligned to 4 bytes, as required by literal loads.
func (p *Program) Assemble() []byte {
	if (p.Address % 2) != 0 {
		panic("program must be halfword aligned")
	}
	end := p.Address
	for _, l := range p.Listing {
		end += l.size(end)
	}
	pool := (end + 3) &^ 3

	ctx := ctx{
		p:         p,
		instrAddr: p.Address,

		constantPoolStart: pool,
		constantPool:      make(map[uint32]uint32),
		constantPoolList:  nil,

		labels: make(map[string]uint32),
	}

	// First pass: labels must be created.
	for _, l := range p.Listing {
		isize := l.size(ctx.instrAddr)
		l.preprocess(&ctx)
		ctx.instrAddr += isize
	}

	// Second pass: bytes must be emitted.
	ctx.instrAddr = p.Address
	var res []byte
	for _, l := range p.Listing {
		isize := l.size(ctx.instrAddr)
		if isize == 0 {
			continue
		}
		data := l.hydrate(&ctx)
		if uint32(len(data)) != isize {
			panic(fmt.Sprintf("statement at 0x%x emitted %d bytes, declared %d", ctx.instrAddr, len(data), isize))
		}
		ctx.instrAddr += isize
		res = append(res, data...)
	}

	if len(ctx.constantPoolList) > 0 {
		for uint32(len(res)) < pool-p.Address {
			res = append(res, 0)
		}
	}
	for _, c := range ctx.constantPoolList {
		res = append(res, p32(c)...)
	}

	return res
}

// Register is a core register. Only R0-R7 are reachable from most 16-bit
// encodings.
type Register int

const (
	R0 Register = 0
	R1 Register = 1
	R2 Register = 2
	R3 Register = 3
	R4 Register = 4
	R5 Register = 5
	R6 Register = 6
	R7 Register = 7
	SP Register = 13
	LR Register = 14
	PC Register = 15
)

func (r Register) Encode() uint16 {
	return uint16(r)
}

func (r Register) low() uint16 {
	if r < R0 || r > R7 {
		panic(fmt.Sprintf("r%d is not a low register", r))
	}
	return uint16(r)
}

func (r Register) String() string {
	switch r {
	case SP:
		return "sp"
	case LR:
		return "lr"
	case PC:
		return "pc"
	}
	return fmt.Sprintf("r%d", int(r))
}

type Condition string

const (
	AL Condition = ""
	EQ Condition = "EQ"
	NE Condition = "NE"
)

func (c Condition) Encode() uint16 {
	switch c {
	case EQ:
		return 0b0000
	case NE:
		return 0b0001
	}
	panic("invalid condition")
}

// Statement is a listing line, eg. instruction or label.
type Statement interface {
	// preprocess is a first pass assemble function, giving the statements an
	// opportunity to register labels.
	preprocess(c *ctx)
	// hydrate is the second pass assemble function, in which a statement must
	// return concrete data.
	hydrate(c *ctx) []byte
	// size of the statement in bytes when placed at addr.
	size(addr uint32) uint32
}

type ctx struct {
	p         *Program
	instrAddr uint32

	constantPoolStart uint32
	constantPool      map[uint32]uint32
	constantPoolList  []uint32

	labels map[string]uint32
}

func (h *ctx) AllocateConstant(val uint32) uint32 {
	if a, ok := h.constantPool[val]; ok {
		return a
	}
	a := h.constantPoolStart
	h.constantPoolStart += 4
	h.constantPool[val] = a
	h.constantPoolList = append(h.constantPoolList, val)

	return a
}

// instruction is an embeddable struct to be put in any 'typical' 2-byte Thumb
// instruction that has no preprocess step.
type instruction struct {
}

func (i instruction) size(_ uint32) uint32 {
	return 2
}

func (i instruction) preprocess(c *ctx) {
}

// literalOffset returns the imm8 needed by a literal load at from to reach
// the pool entry at to.
func literalOffset(from, to uint32) uint16 {
	pcAddr := (from + 4) &^ 3
	if to < pcAddr || (to%4) != 0 {
		panic("nonsense")
	}
	offset := (to - pcAddr) / 4
	if offset >= (1 << 8) {
		panic("constant too far away")
	}
	return uint16(offset)
}

func p16(u uint16) []byte {
	return []byte{
		byte(u & 0xff),
		byte(u >> 8),
	}
}

func p32(u uint32) []byte {
	return []byte{
		byte((u >> 0) & 0xff),
		byte((u >> 8) & 0xff),
		byte((u >> 16) & 0xff),
		byte((u >> 24) & 0xff),
	}
}

type Label string

func (l Label) size(_ uint32) uint32 {
	return 0
}

func (l Label) preprocess(c *ctx) {
	v := string(l)
	if _, ok := c.labels[v]; ok {
		panic(fmt.Sprintf("duplicate label %q", v))
	}
	c.labels[v] = c.instrAddr
}

func (l Label) hydrate(c *ctx) []byte {
	return nil
}

type LabelRef string

func (r LabelRef) resolveBranchTarget(c *ctx) uint32 {
	addr, ok := c.labels[string(r)]
	if !ok {
		panic(fmt.Sprintf("unknown label %q", string(r)))
	}
	return addr
}

// Embed places raw bytes in the listing.
type Embed []byte

func (e Embed) size(_ uint32) uint32 {
	return uint32(len([]byte(e)))
}

func (e Embed) preprocess(_ *ctx) {
}

func (e Embed) hydrate(c *ctx) []byte {
	return []byte(e)
}

// Half places a raw halfword, eg. one half of a 32-bit Thumb-2 instruction.
type Half uint16

func (h Half) size(_ uint32) uint32 {
	return 2
}

func (h Half) preprocess(_ *ctx) {
}

func (h Half) hydrate(c *ctx) []byte {
	return p16(uint16(h))
}

// Word places a raw little-endian 32-bit value.
type Word uint32

func (w Word) size(_ uint32) uint32 {
	return 4
}

func (w Word) preprocess(_ *ctx) {
}

func (w Word) hydrate(c *ctx) []byte {
	return p32(uint32(w))
}

// Align pads with zero halfwords up to the next 4-byte boundary.
type Align struct{}

func (a Align) size(addr uint32) uint32 {
	return addr % 4
}

func (a Align) preprocess(_ *ctx) {
}

func (a Align) hydrate(c *ctx) []byte {
	return make([]byte, c.instrAddr%4)
}
