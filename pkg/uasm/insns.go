package uasm

type Ldr struct {
	instruction
	Dest Register
	Src  LoadSource
}

func (l Ldr) hydrate(c *ctx) []byte {
	return p16(l.Src.encodeLoadSource(c, l.Dest))
}

type Str struct {
	instruction
	Src  Register
	Dest StoreDest
}

func (s Str) hydrate(c *ctx) []byte {
	return p16(s.Dest.encodeStoreDest(c, s.Src))
}

func regList(regs []Register) uint16 {
	var res uint16
	for _, r := range regs {
		res |= 1 << r.low()
	}
	return res
}

// Push saves low registers and optionally LR.
type Push struct {
	instruction
	Regs []Register
	LR   bool
}

func (p Push) hydrate(c *ctx) []byte {
	res := uint16(0b1011010 << 9)
	if p.LR {
		res |= 1 << 8
	}
	res |= regList(p.Regs)
	return p16(res)
}

// Pop restores low registers and optionally returns by popping into PC.
type Pop struct {
	instruction
	Regs []Register
	PC   bool
}

func (p Pop) hydrate(c *ctx) []byte {
	res := uint16(0b1011110 << 9)
	if p.PC {
		res |= 1 << 8
	}
	res |= regList(p.Regs)
	return p16(res)
}

type Mov struct {
	instruction
	Dest Register
	Src  Immediate
}

func (m Mov) hydrate(c *ctx) []byte {
	var res uint16
	res |= 0b00100 << 11
	res |= m.Dest.low() << 8
	res |= uint16(m.Src)
	return p16(res)
}

type Cmp struct {
	instruction
	A Register
	B Immediate
}

func (m Cmp) hydrate(c *ctx) []byte {
	var res uint16
	res |= 0b00101 << 11
	res |= m.A.low() << 8
	res |= uint16(m.B)
	return p16(res)
}

type Bx struct {
	instruction
	Dest Register
}

func (b Bx) hydrate(c *ctx) []byte {
	var res uint16
	res |= 0b010001110 << 7
	res |= b.Dest.Encode() << 3
	return p16(res)
}

type B struct {
	instruction
	Cond Condition
	Dest BranchTarget
}

func (b B) hydrate(c *ctx) []byte {
	addr := b.Dest.resolveBranchTarget(c)
	pcAddr := c.instrAddr + 4
	offset := (int64(addr) - int64(pcAddr)) / 2

	var res uint16
	if b.Cond == AL {
		if offset >= (1<<10) || offset < -(1<<10) {
			panic("target too far away")
		}
		res |= 0b11100 << 11
		res |= uint16(offset) & ((1 << 11) - 1)
		return p16(res)
	}
	if offset >= (1<<7) || offset < -(1<<7) {
		panic("target too far away")
	}
	res |= 0b1101 << 12
	res |= b.Cond.Encode() << 8
	res |= uint16(offset) & 0xff
	return p16(res)
}

type Nop struct {
	instruction
}

func (n Nop) hydrate(c *ctx) []byte {
	return p16(0xbf00)
}
