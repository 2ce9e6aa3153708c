// package synth builds fake boot ROM images that contain the code shapes the
// scanning resolver looks for, at known addresses. They're good enough to be
// scanned and emulated, but not executed on a real core.
package synth

import (
	"fmt"

	"github.com/mtkhax/bromhax/pkg/chip"
	"github.com/mtkhax/bromhax/pkg/uasm"
)

// Shape of the security check function.
type Shape int

const (
	// ShapeSingle loads a pointer from the literal pool and then the field at
	// +0x40 through it.
	ShapeSingle Shape = iota
	// ShapeDual has the two security words loaded in the code right before
	// the check function.
	ShapeDual
	// ShapeSentinel only resolves with the sentinel-aware heuristics.
	ShapeSentinel
	// ShapeNone has nothing to find.
	ShapeNone
)

func (s Shape) String() string {
	switch s {
	case ShapeSingle:
		return "single"
	case ShapeDual:
		return "dual"
	case ShapeSentinel:
		return "sentinel"
	case ShapeNone:
		return "none"
	}
	return fmt.Sprintf("Shape(%d)", int(s))
}

// Dump selects which dump mode primitives get built.
type Dump int

const (
	DumpNone Dump = iota
	// DumpWordOnly has a one-word sender but no dword sender.
	DumpWordOnly
	DumpBoth
)

// Options for Build. The zero value builds a single register ROM at 0 with
// everything present.
type Options struct {
	Base uint32
	// SendUSBResponse selects the function variant, 0 to 2. -1 omits it.
	SendUSBResponse int
	Shape           Shape
	// SBCMov selects the `mov` compiler variant of the check function
	// prologue instead of the `ldr` one.
	SBCMov   bool
	Dump     Dump
	UART     uint32
	Watchdog uint32

	NoUART     bool
	NoWatchdog bool
	// NoGetData leaves only the lookalike of usbdl_get_data.
	NoGetData bool
	NoPutData bool
}

// Offsets of everything from the ROM base.
const (
	OffUART            uint32 = 0x200
	OffWatchdog        uint32 = 0x300
	OffSendUSBResponse uint32 = 0x400
	OffPutData         uint32 = 0x500
	OffGetDataDecoy    uint32 = 0x600
	OffGetData         uint32 = 0x640
	OffDualPrologue    uint32 = 0x7f2
	OffSBC             uint32 = 0x800
	OffSLA             uint32 = 0x880
	OffDAA             uint32 = 0x8c0
	OffSendWord        uint32 = 0xa00
	OffPutDword        uint32 = 0xb00
	OffDualStruct      uint32 = 0xf00

	Size uint32 = 0x10000
)

// Security structure addresses used in the generated code.
const (
	SingleRegister uint32 = 0x001026d4
	DualStruct     uint32 = 0x00102a88
	// DualFieldOffset comes from the load inside the check function.
	DualFieldOffset uint32 = 0xc
)

// ROM is a built image and what resolving it should yield.
type ROM struct {
	Base uint32
	Data []byte
	// Layout is what a scanner is expected to find, with an empty Name.
	Layout chip.Layout

	SendWord chip.Ref
	PutDword chip.Ref
}

var sendUSBResponseVariants = [][]uint16{
	{0xb530, 0x2300, 0x4c6c, 0x2808, 0xd00f, 0x2807},
	{0xb510, 0x2400, 0xf04f, 0x5389, 0x2803, 0xd006},
	{0xb510, 0x4b72, 0x2400, 0x2803, 0xd006, 0x2802},
}

func halves(hs ...uint16) []uasm.Statement {
	res := make([]uasm.Statement, len(hs))
	for i, h := range hs {
		res[i] = uasm.Half(h)
	}
	return res
}

type builder struct {
	base uint32
	data []byte
}

func (b *builder) place(off uint32, listing ...uasm.Statement) {
	p := uasm.Program{
		Address: b.base + off,
		Listing: listing,
	}
	code := p.Assemble()
	if int(off)+len(code) > len(b.data) {
		panic(fmt.Sprintf("code at 0x%x overflows ROM", off))
	}
	copy(b.data[off:], code)
}

func (b *builder) word(off, v uint32) {
	b.place(off, uasm.Word(v))
}

// Build assembles a ROM image.
func Build(o Options) *ROM {
	if o.UART == 0 {
		o.UART = chip.DefaultUART
	}
	if o.Watchdog == 0 {
		o.Watchdog = chip.DefaultWatchdog
	}
	b := &builder{
		base: o.Base,
		data: make([]byte, Size),
	}
	r := &ROM{
		Base: o.Base,
		Data: b.data,
	}
	l := &r.Layout
	l.Base = o.Base
	l.UART.Base = o.UART
	l.Watchdog = o.Watchdog

	if !o.NoUART {
		b.place(OffUART, append(halves(0x5f31, 0x4e45, 0x0f93, 0x000e), uasm.Word(o.UART))...)
	} else {
		l.UART.Base = chip.DefaultUART
	}

	if !o.NoWatchdog {
		code := []uasm.Statement{
			uasm.Ldr{Dest: uasm.R1, Src: uasm.Constant(o.Watchdog)},
		}
		// movw r0, #0x1971; str r0, [r1, #8]
		code = append(code, halves(0xf641, 0x1071, 0x6088)...)
		code = append(code, uasm.Bx{Dest: uasm.LR})
		b.place(OffWatchdog, code...)
	} else {
		l.Watchdog = chip.DefaultWatchdog
	}

	if o.SendUSBResponse >= 0 && o.SendUSBResponse < len(sendUSBResponseVariants) {
		code := halves(sendUSBResponseVariants[o.SendUSBResponse]...)
		b.place(OffSendUSBResponse, append(code, uasm.Bx{Dest: uasm.LR})...)
		l.Funcs.SendUSBResponse = chip.Thumb(o.Base + OffSendUSBResponse)
	}

	if !o.NoPutData {
		code := halves(0xb510, 0x4a06, 0x68d4)
		b.place(OffPutData, append(code, uasm.Pop{Regs: []uasm.Register{uasm.R4}, PC: true})...)
		l.Funcs.PutData = chip.Thumb(o.Base + OffPutData)
	}

	// push.w {r4-r10, lr}, followed by something else than the movs the real
	// one does.
	b.place(OffGetDataDecoy, halves(0xe92d, 0x47f0, 0x2000, 0x2100, 0x2200, 0xe8bd, 0x87f0)...)
	if !o.NoGetData {
		// push.w {r4-r10, lr}; mov r8, r0; mov r7, r1; mov r10, r2
		b.place(OffGetData, halves(0xe92d, 0x47f0, 0x4680, 0x460f, 0x4692, 0xe8bd, 0x87f0)...)
		l.Funcs.GetData = chip.Thumb(o.Base + OffGetData)
	}

	b.buildChecks(o, r)

	switch o.Dump {
	case DumpBoth:
		b.place(OffPutDword, sendWord()...)
		r.PutDword = chip.Thumb(o.Base + OffPutDword)
		fallthrough
	case DumpWordOnly:
		b.place(OffSendWord, sendWord()...)
		r.SendWord = chip.Thumb(o.Base + OffSendWord)
	}

	return r
}

func sendWord() []uasm.Statement {
	// push.w {r3-r11, lr}; mov r8, r0; mov r10, r1; ...; pop.w {r3-r11, pc}
	return halves(0xe92d, 0x4ff8, 0x4680, 0x468a, 0x2000, 0xe8bd, 0x8ff8)
}

func (b *builder) buildChecks(o Options, r *ROM) {
	l := &r.Layout
	sbc := o.Base + OffSBC
	l.Checks.SBC = chip.Thumb(sbc)
	l.Checks.SLA = chip.Thumb(o.Base + OffSLA)
	l.Checks.DAA = chip.Thumb(o.Base + OffDAA)
	l.Security = chip.Security{
		Mode:        chip.Unresolved,
		FieldOffset: chip.DefaultFieldOffset,
	}

	// push {r4, lr}; bl <somewhere>. Every body starts with a literal load to
	// r1 for the other compiler variant.
	prologue := halves(0xb510, 0xf000, 0xf800)
	if o.SBCMov {
		// mov r1, r0
		prologue = append(prologue, uasm.Half(0x4601))
	}
	epilogue := uasm.Pop{Regs: []uasm.Register{uasm.R4}, PC: true}

	var body []uasm.Statement
	switch o.Shape {
	case ShapeSingle:
		body = []uasm.Statement{
			uasm.Ldr{Dest: uasm.R1, Src: uasm.Constant(SingleRegister)},
			uasm.Ldr{Dest: uasm.R1, Src: uasm.Deref(uasm.R1, 0x40)},
			uasm.Mov{Dest: uasm.R0, Src: uasm.Immediate(0)},
			epilogue,
		}
		l.Security.Mode = chip.SingleRegister
		l.Security.RegisterA = SingleRegister
	case ShapeDual:
		body = []uasm.Statement{
			uasm.Ldr{Dest: uasm.R1, Src: uasm.Constant(DualStruct)},
			uasm.Ldr{Dest: uasm.R1, Src: uasm.Deref(uasm.R1, uint16(DualFieldOffset))},
			uasm.Mov{Dest: uasm.R0, Src: uasm.Immediate(0)},
			epilogue,
		}
		b.place(OffDualPrologue,
			uasm.Ldr{Dest: uasm.R3, Src: uasm.Constant(o.Base + OffDualStruct)},
			uasm.Ldr{Dest: uasm.R0, Src: uasm.Deref(uasm.R3, 4)},
			uasm.Ldr{Dest: uasm.R1, Src: uasm.Deref(uasm.R3, 0xc)},
			uasm.Bx{Dest: uasm.LR},
		)
		b.word(OffDualStruct, DualStruct)
		l.Security.Mode = chip.DualRegister
		l.Security.RegisterA = DualStruct + 4
		l.Security.RegisterB = DualStruct + 0xc
		l.Security.FieldOffset = DualFieldOffset
	case ShapeSentinel:
		body = []uasm.Statement{
			uasm.Ldr{Dest: uasm.R1, Src: uasm.Constant(SingleRegister)},
			// ldr r0, [r0, #0x40]
			uasm.Half(0x6c00),
			epilogue,
		}
		// Only resolvable with sentinels.
		l.Security.Mode = chip.SingleRegister
		l.Security.RegisterA = SingleRegister
	case ShapeNone:
		body = []uasm.Statement{
			uasm.Ldr{Dest: uasm.R1, Src: uasm.Constant(0)},
			uasm.Mov{Dest: uasm.R0, Src: uasm.Immediate(0)},
			epilogue,
		}
	}
	b.place(OffSBC, append(prologue, body...)...)

	// Two more checks with the same prologue shape.
	b.place(OffSLA, halves(0xb538, 0xf000, 0xf800, 0xbd38)...)
	b.place(OffDAA, halves(0xb570, 0xf000, 0xf800, 0xbd70)...)
}
