package payload

import (
	"fmt"

	"github.com/mtkhax/bromhax/pkg/chip"
	"github.com/mtkhax/bromhax/pkg/memory"
)

// PassValue is what the security checks read back as "passed".
const PassValue = 0x0b

// Write is a single store to target memory.
type Write struct {
	Addr  uint32
	Value uint32
	// Width in bytes, 1 or 4.
	Width int
	// What is a short description for logs.
	What string
}

func (w Write) String() string {
	if w.Width == 1 {
		return fmt.Sprintf("%s: *(u8*)0x%08x = 0x%02x", w.What, w.Addr, w.Value)
	}
	return fmt.Sprintf("%s: *(u32*)0x%08x = 0x%08x", w.What, w.Addr, w.Value)
}

func (w Write) Apply(bus memory.Bus) error {
	if w.Addr == 0 {
		return fmt.Errorf("%s: null address", w.What)
	}
	switch w.Width {
	case 1:
		if w.Value > 0xff {
			return fmt.Errorf("%s: value 0x%x does not fit a byte", w.What, w.Value)
		}
		bus.Write8(w.Addr, uint8(w.Value))
	case 4:
		bus.Write32(w.Addr, w.Value)
	default:
		return fmt.Errorf("%s: invalid width %d", w.What, w.Width)
	}
	return nil
}

// Writes applies a series of Writes in order.
type Writes []Write

func (ws Writes) Apply(bus memory.Bus) error {
	for i, w := range ws {
		if err := w.Apply(bus); err != nil {
			return fmt.Errorf("write %d: %w", i, err)
		}
	}
	return nil
}

// Plan returns the writes that neutralize the security state of l, with
// scratch as the redirection target. Nothing is planned for an unresolved
// state.
func Plan(l *chip.Layout, scratch uint32) (Writes, error) {
	sec := l.Security
	switch sec.Mode {
	case chip.FixedAddress:
		return Writes{
			{Addr: sec.PassedFlag, Value: 1, Width: 1, What: "passed flag"},
			{Addr: sec.PassedWord, Value: 1, Width: 4, What: "passed word"},
			{Addr: sec.CheckWord, Value: 0xffffffff, Width: 4, What: "check word"},
		}, nil
	case chip.SingleRegister, chip.DualRegister:
	default:
		return nil, chip.ErrUnresolvedSecurityState
	}

	if scratch == 0 {
		return nil, fmt.Errorf("no scratch buffer")
	}
	if sec.FieldOffset >= ScratchSize {
		return nil, fmt.Errorf("field offset 0x%x outside of scratch buffer", sec.FieldOffset)
	}
	ws := Writes{
		{Addr: sec.RegisterA, Value: scratch, Width: 4, What: "register A"},
	}
	if sec.Mode == chip.DualRegister {
		ws = append(ws, Write{Addr: sec.RegisterB, Value: PassValue, Width: 4, What: "register B"})
	}
	ws = append(ws, Write{Addr: scratch + sec.FieldOffset, Value: PassValue, Width: 1, What: "scratch field"})
	return ws, nil
}

// Apply performs ws on t, then invalidates the instruction cache. The cache
// is invalidated even if a write failed, as earlier writes did land.
func Apply(t Target, ws Writes) error {
	defer t.InvalidateICache()
	return ws.Apply(t)
}
