// package resolve implements a chip.Resolver which finds everything by
// scanning the boot ROM for signatures. It works on ROMs that don't have a
// fixed table, at the cost of occasionally getting it wrong.
package resolve

import (
	"fmt"

	"github.com/golang/glog"
	"github.com/hashicorp/go-multierror"

	"github.com/mtkhax/bromhax/pkg/chip"
	"github.com/mtkhax/bromhax/pkg/memory"
	"github.com/mtkhax/bromhax/pkg/uasm"
)

// Revision selects between the two known flavours of the register
// resolution heuristics.
type Revision string

const (
	// RevisionV1 walks the whole window without sentinels.
	RevisionV1 Revision = "generic-v1"
	// RevisionV2 additionally stops on the function epilogue and treats the
	// canonical field load as final.
	RevisionV2 Revision = "generic-v2"
)

// Revisions lists every supported Revision, default first.
var Revisions = []Revision{RevisionV1, RevisionV2}

// Sentinel instruction words used by RevisionV2. These are the Thumb
// encodings of the instructions below, not words taken from a ROM.
const (
	// ldr r0, [r0, #0x40]
	sentinelSingle uint16 = 0x6c00
	// pop {r4, pc}
	sentinelEpilogue uint16 = 0xbd10
)

// DefaultBases are the addresses the boot ROM has been seen mapped at.
var DefaultBases = []uint32{0x00000000, 0x00400000, 0x48000000}

const (
	// DefaultWindow is how much of the ROM past its base is scanned.
	DefaultWindow uint32 = 0x10000
	// The first 0x100 bytes are vectors and are skipped.
	skipHeader uint32 = 0x100

	singleWindow uint32 = 0x100
	dualBefore   uint32 = 0xe
	dualWindow   uint32 = 0x20
)

// Scanner is a signature scanning chip.Resolver.
type Scanner struct {
	Bases    []uint32
	Window   uint32
	Revision Revision
}

// New returns a Scanner with default bases and window.
func New(rev Revision) *Scanner {
	return &Scanner{
		Bases:    DefaultBases,
		Window:   DefaultWindow,
		Revision: rev,
	}
}

// ParseRevision returns the Revision named s.
func ParseRevision(s string) (Revision, error) {
	for _, r := range Revisions {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown revision %q", s)
}

func (s *Scanner) window() uint32 {
	if s.Window == 0 {
		return DefaultWindow
	}
	return s.Window
}

func (s *Scanner) bases() []uint32 {
	if len(s.Bases) == 0 {
		return DefaultBases
	}
	return s.Bases
}

// scan is one resolution attempt within a single ROM window.
type scan struct {
	bus        memory.Bus
	start, end uint32
	rev        Revision
	l          *chip.Layout
}

// Resolve implements chip.Resolver. On failure the returned layout has every
// field resolved before the failing stage.
func (s *Scanner) Resolve(bus memory.Bus) (*chip.Layout, error) {
	l := &chip.Layout{
		Name: fmt.Sprintf("%s (scanned)", s.Revision),
	}
	sc, err := s.findBase(bus, l)
	if err != nil {
		return l, err
	}
	sc.findWatchdog()
	if err := sc.findTransport(); err != nil {
		return l, err
	}
	if err := sc.findChecks(); err != nil {
		return l, err
	}
	sc.findSecurity()
	if l.Security.Mode == chip.Unresolved {
		return l, chip.Stage("SEC_MODE", chip.ErrUnresolvedSecurityState)
	}
	return l, nil
}

func (s *Scanner) newScan(bus memory.Bus, base uint32, l *chip.Layout) *scan {
	return &scan{
		bus:   bus,
		start: base + skipHeader,
		end:   base + s.window(),
		rev:   s.Revision,
		l:     l,
	}
}

// findBase picks the first candidate base with a UART descriptor in it. If
// no base has one, a base with the watchdog setup code is accepted, and the
// default UART is assumed.
func (s *Scanner) findBase(bus memory.Bus, l *chip.Layout) (*scan, error) {
	var errs error
	for _, base := range s.bases() {
		sc := s.newScan(bus, base, l)
		m := sigUART.Find(bus, sc.start, sc.end)
		if m.Addr == 0 {
			errs = multierror.Append(errs, fmt.Errorf("base 0x%08x: %s: %w", base, sigUART.Name, chip.ErrSignatureNotFound))
			continue
		}
		l.Base = base
		l.UART.Base = bus.Read32(m.Addr + uartBaseOffset)
		glog.Infof("ROM at 0x%08x, UART descriptor at 0x%08x, UART at 0x%08x", base, m.Addr, l.UART.Base)
		return sc, nil
	}
	for _, base := range s.bases() {
		sc := s.newScan(bus, base, l)
		if m := sigWatchdog.Find(bus, sc.start, sc.end); m.Addr != 0 {
			glog.Warningf("No UART descriptor found, assuming ROM at 0x%08x and UART at 0x%08x", base, chip.DefaultUART)
			l.Base = base
			l.UART.Base = chip.DefaultUART
			return sc, nil
		}
	}
	return nil, chip.Stage("base", errs)
}

// findWatchdog resolves the watchdog base from the literal load before the
// unlock sequence. Failing that, the default watchdog is assumed.
func (sc *scan) findWatchdog() {
	sc.l.Watchdog = chip.DefaultWatchdog
	m := sigWatchdog.Find(sc.bus, sc.start, sc.end)
	if m.Addr == 0 {
		glog.Warningf("Watchdog setup not found, assuming watchdog at 0x%08x", chip.DefaultWatchdog)
		return
	}
	pc := m.Addr - 2
	instr := sc.bus.Read16(pc)
	if uasm.Opcode(instr) != uasm.OpcodeLiteralLoad {
		glog.Warningf("Watchdog setup at 0x%08x not preceded by a literal load, assuming watchdog at 0x%08x", m.Addr, chip.DefaultWatchdog)
		return
	}
	lit := uasm.DecodeLiteralLoad(pc, instr)
	sc.l.Watchdog = sc.bus.Read32(lit.Literal)
	glog.Infof("Watchdog at 0x%08x", sc.l.Watchdog)
}

func (sc *scan) findTransport() error {
	f := &sc.l.Funcs

	m, sig := sigSendUSBResponse.Find(sc.bus, sc.start, sc.end)
	if sig == nil {
		return chip.Stage("send_usb_response", chip.ErrSignatureNotFound)
	}
	f.SendUSBResponse = chip.Thumb(m.Addr)
	glog.Infof("send_usb_response at %s (%s)", f.SendUSBResponse, sig.Name)

	m = sigPutData.Find(sc.bus, sc.start, sc.end)
	if m.Addr == 0 {
		return chip.Stage("usbdl_put_data", fmt.Errorf("%w: %w", chip.ErrTransportUnavailable, chip.ErrSignatureNotFound))
	}
	f.PutData = chip.Thumb(m.Addr)
	glog.Infof("usbdl_put_data at %s", f.PutData)

	m = sigGetData.Find(sc.bus, sc.start, sc.end)
	if m.Addr == 0 {
		cause := chip.ErrSignatureNotFound
		if m.Rejected > 0 {
			cause = chip.ErrAmbiguousMatch
		}
		return chip.Stage("usbdl_get_data", fmt.Errorf("%w: %w (%d candidates rejected)", chip.ErrTransportUnavailable, cause, m.Rejected))
	}
	f.GetData = chip.Thumb(m.Addr)
	glog.Infof("usbdl_get_data at %s, %d lookalikes skipped", f.GetData, m.Rejected)
	return nil
}

func (sc *scan) findChecks() error {
	m := sigSBC.Find(sc.bus, sc.start, sc.end)
	if m.Addr == 0 {
		cause := chip.ErrSignatureNotFound
		if m.Rejected > 0 {
			cause = chip.ErrAmbiguousMatch
		}
		return chip.Stage("sbc", cause)
	}
	c := &sc.l.Checks
	c.SBC = chip.Thumb(m.Addr)

	// SLA and DAA are only informational, so not finding them is fine.
	if sla := sigCheckPrologue.Find(sc.bus, m.Addr+8, sc.end); sla.Addr != 0 {
		c.SLA = chip.Thumb(sla.Addr)
		if daa := sigCheckPrologue.Find(sc.bus, sla.Addr+2, sc.end); daa.Addr != 0 {
			c.DAA = chip.Thumb(daa.Addr)
		}
	}
	glog.Infof("sbc at %s, sla at %s, daa at %s", c.SBC, c.SLA, c.DAA)
	return nil
}

// findSecurity walks the security check function to find what it reads.
func (sc *scan) findSecurity() {
	sec := &sc.l.Security
	*sec = chip.Security{
		Mode:        chip.Unresolved,
		FieldOffset: chip.DefaultFieldOffset,
	}
	sbc := sc.l.Checks.SBC.Addr

	if sc.findSingle(sbc) {
		return
	}
	sc.findDual(sbc)
}

// findSingle looks for a literal load of the security structure pointer
// followed by a field load through the same register.
func (sc *scan) findSingle(sbc uint32) bool {
	sec := &sc.l.Security

	var reg uint32
	var rt uasm.Register
	for i := uint32(0); i < singleWindow; i += 2 {
		pc := sbc + i
		instr := sc.bus.Read16(pc)
		if sc.rev == RevisionV2 && instr == sentinelEpilogue {
			glog.V(1).Infof("Epilogue at 0x%08x, no single register", pc)
			break
		}
		op := uasm.Opcode(instr)
		if op == uasm.OpcodeLiteralLoad {
			lit := uasm.DecodeLiteralLoad(pc, instr)
			reg = sc.bus.Read32(lit.Literal)
			rt = lit.Dest
		}
		if reg == 0 {
			continue
		}
		if sc.rev == RevisionV2 && instr == sentinelSingle {
			sec.Mode = chip.SingleRegister
			sec.RegisterA = reg
			sec.FieldOffset = chip.DefaultFieldOffset
			glog.Infof("Single security register 0x%08x (sentinel at 0x%08x)", reg, pc)
			return true
		}
		if op != uasm.OpcodeImmediateLoad {
			continue
		}
		ld := uasm.DecodeImmediateOffset(instr)
		if ld.Dest != rt || ld.Imm5 == 0 {
			continue
		}
		sec.FieldOffset = ld.Offset()
		if sec.FieldOffset == chip.DefaultFieldOffset {
			sec.Mode = chip.SingleRegister
			sec.RegisterA = reg
			glog.Infof("Single security register 0x%08x, field at +0x%x", reg, sec.FieldOffset)
			return true
		}
		glog.V(1).Infof("Field load at 0x%08x uses offset 0x%x, trying dual", pc, sec.FieldOffset)
		break
	}
	return false
}

// findDual looks just before the security check function for a structure
// base loaded through two pointers, and the first two fields loaded from it.
func (sc *scan) findDual(sbc uint32) {
	sec := &sc.l.Security

	var base uint32
	var rt uasm.Register
	found := 0
	start := sbc - dualBefore
	for i := uint32(0); i < dualWindow; i += 2 {
		pc := start + i
		instr := sc.bus.Read16(pc)
		op := uasm.Opcode(instr)
		if op == uasm.OpcodeLiteralLoad {
			lit := uasm.DecodeLiteralLoad(pc, instr)
			base = sc.bus.Read32(sc.bus.Read32(lit.Literal))
			rt = lit.Dest
		}
		if base == 0 || op != uasm.OpcodeImmediateLoad {
			continue
		}
		ld := uasm.DecodeImmediateOffset(instr)
		if ld.Base != rt {
			continue
		}
		if found == 0 {
			sec.RegisterA = base + ld.Offset()
			found++
			continue
		}
		sec.RegisterB = base + ld.Offset()
		sec.Mode = chip.DualRegister
		glog.Infof("Dual security registers 0x%08x/0x%08x", sec.RegisterA, sec.RegisterB)
		return
	}
	glog.Warningf("Security registers not found past sbc at 0x%08x (%d candidates)", sbc, found)
	sec.RegisterA = 0
}

// Dump are the primitives needed by dump mode.
type Dump struct {
	Base uint32
	// SendWord transmits its 32-bit argument.
	SendWord chip.Ref
	// PutDword is preferred if present.
	PutDword chip.Ref
}

// FindDump locates the dump mode primitives. The first base with a word
// sender wins, even if it has no dword sender.
func (s *Scanner) FindDump(bus memory.Bus) (*Dump, error) {
	var errs error
	for _, base := range s.bases() {
		sc := s.newScan(bus, base, nil)
		m := sigSendWord.Find(bus, sc.start, sc.end)
		if m.Addr == 0 {
			errs = multierror.Append(errs, fmt.Errorf("base 0x%08x: %s: %w", base, sigSendWord.Name, chip.ErrSignatureNotFound))
			continue
		}
		d := &Dump{
			Base:     base,
			SendWord: chip.Thumb(m.Addr),
		}
		if m2 := sigSendWord.Find(bus, m.Addr+2, sc.end); m2.Addr != 0 {
			d.PutDword = chip.Thumb(m2.Addr)
		}
		glog.Infof("Dump primitives at base 0x%08x: send_word %s, put_dword %s", base, d.SendWord, d.PutDword)
		return d, nil
	}
	return nil, chip.Stage("send_word", fmt.Errorf("%w: %w", chip.ErrTransportUnavailable, errs))
}

var _ chip.Resolver = &Scanner{}
