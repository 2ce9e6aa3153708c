// package chip describes where things live in a MediaTek boot ROM: the ROM
// routines a payload calls into, the UART it prints on, and the security state
// it has to neutralize.
//
// A Layout can come from a fixed per-chip table or from scanning an unknown
// ROM image. Both are exposed as a Resolver.
package chip

import (
	"errors"
	"fmt"

	"github.com/mtkhax/bromhax/pkg/memory"
)

const (
	// DefaultUART is the debug UART on most chips.
	DefaultUART uint32 = 0x11002000
	// DefaultWatchdog is the TOPRGU base on most chips.
	DefaultWatchdog uint32 = 0x10007000
)

// Ref is a reference to a callable ROM routine. The zero value is a null
// reference and must never be called.
type Ref struct {
	Addr  uint32 `plist:"addr"`
	Thumb bool   `plist:"thumb"`
}

// Thumb returns a reference to a Thumb routine at addr. A zero addr gives a
// null reference.
func Thumb(addr uint32) Ref {
	if addr == 0 {
		return Ref{}
	}
	return Ref{Addr: addr, Thumb: true}
}

// FromPointer decodes an interworking pointer, ie. one with the low bit set
// for Thumb code.
func FromPointer(p uint32) Ref {
	if p&^1 == 0 {
		return Ref{}
	}
	return Ref{Addr: p &^ 1, Thumb: p&1 == 1}
}

// Null returns whether r points nowhere.
func (r Ref) Null() bool {
	return r.Addr == 0
}

// Pointer returns the value a BLX would take to call r.
func (r Ref) Pointer() uint32 {
	if r.Thumb {
		return r.Addr | 1
	}
	return r.Addr
}

func (r Ref) String() string {
	if r.Null() {
		return "<null>"
	}
	return fmt.Sprintf("0x%08X", r.Pointer())
}

// Mode is the shape of the security state found in a ROM.
type Mode int

const (
	// Unresolved means no supported layout was found. Nothing can be patched.
	Unresolved Mode = iota
	// SingleRegister: one pointer to a security structure, and a field offset
	// in that structure.
	SingleRegister
	// DualRegister: two security words next to each other. The first one
	// gets redirected like in SingleRegister, the second one is overwritten
	// directly.
	DualRegister
	// FixedAddress: a known chip with hardcoded passed/check variables.
	FixedAddress
)

func (m Mode) String() string {
	switch m {
	case Unresolved:
		return "unresolved"
	case SingleRegister:
		return "single"
	case DualRegister:
		return "dual"
	case FixedAddress:
		return "fixed"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Security is the state gating the boot ROM authentication decision.
type Security struct {
	Mode Mode `plist:"mode"`

	// RegisterA and RegisterB are the security registers found by scanning.
	// RegisterB is only set in DualRegister mode.
	RegisterA uint32 `plist:"registerA"`
	RegisterB uint32 `plist:"registerB,omitempty"`
	// FieldOffset is where the passed byte goes in the redirected structure.
	FieldOffset uint32 `plist:"fieldOffset"`

	// PassedFlag (a byte), PassedWord and CheckWord are the per-chip
	// variables of FixedAddress mode.
	PassedFlag uint32 `plist:"passedFlag,omitempty"`
	PassedWord uint32 `plist:"passedWord,omitempty"`
	CheckWord  uint32 `plist:"checkWord,omitempty"`
}

// DefaultFieldOffset is the security field offset used when scanning does not
// find a better one.
const DefaultFieldOffset uint32 = 0x40

// Functions are the host transport routines exported by the ROM's USB
// download mode.
type Functions struct {
	// SendUSBResponse(1, 0, 1) keeps the host from timing out on us.
	SendUSBResponse Ref `plist:"sendUSBResponse"`
	// PutDword sends one 32-bit word, big endian. Not found by scanning.
	PutDword Ref `plist:"putDword,omitempty"`
	// PutData(buf, len) and GetData(buf, len) move raw bytes.
	PutData Ref `plist:"putData"`
	GetData Ref `plist:"getData"`
}

// Checks are the security check routines. Informational only.
type Checks struct {
	SBC Ref `plist:"sbc"`
	SLA Ref `plist:"sla,omitempty"`
	DAA Ref `plist:"daa,omitempty"`
}

// UART is a polled 8250-ish UART.
type UART struct {
	Base uint32 `plist:"base"`
}

// Status register: bit 0 is receive ready, bit 5 is transmit ready.
func (u UART) Status() uint32 {
	return u.Base + 0x14
}

// Data register: written to transmit one byte.
func (u UART) Data() uint32 {
	return u.Base
}

const (
	UARTDataReady    = 1 << 0
	UARTTransmitIdle = 1 << 5
)

// Layout is everything a payload needs to know about a boot ROM.
type Layout struct {
	Name string `plist:"name"`
	// Base the ROM image is mapped at.
	Base     uint32    `plist:"base"`
	UART     UART      `plist:"uart"`
	Watchdog uint32    `plist:"watchdog,omitempty"`
	Funcs    Functions `plist:"functions"`
	Checks   Checks    `plist:"checks"`
	Security Security  `plist:"security"`
}

// Console returns the UART to print on, falling back to the default one if
// the layout doesn't know better.
func (l *Layout) Console() UART {
	if l == nil || l.UART.Base == 0 {
		return UART{Base: DefaultUART}
	}
	return l.UART
}

// Resolver finds a Layout for the ROM reachable over a bus.
type Resolver interface {
	// Resolve returns as much of the layout as it could find, along with an
	// error describing the first stage that failed. Callers must not patch
	// anything if an error is returned.
	Resolve(bus memory.Bus) (*Layout, error)
}

var (
	ErrSignatureNotFound       = errors.New("signature not found")
	ErrAmbiguousMatch          = errors.New("candidates rejected by verification bytes")
	ErrUnresolvedSecurityState = errors.New("security state unresolved")
	ErrTransportUnavailable    = errors.New("transport routine unavailable")
	ErrUnknownChip             = errors.New("unknown chip")

	// ErrNullRef is returned when calling a reference that was never
	// resolved.
	ErrNullRef = errors.New("call to null reference")
)

// StageError is a failure of one resolution stage.
type StageError struct {
	// Stage is a short name used for the console diagnostic, eg. "sbc".
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Diagnostic is the line printed on the ROM console for this failure.
func (e *StageError) Diagnostic() string {
	return "F:" + e.Stage
}

// Stage wraps err as a failure of stage.
func Stage(stage string, err error) error {
	return &StageError{Stage: stage, Err: err}
}
