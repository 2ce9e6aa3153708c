// package payload is the logic of the boot ROM payload: it runs against a
// Target, which is either an emulated SoC or anything else that can read and
// write the SoC's memory and call into its ROM.
package payload

import (
	"fmt"

	"github.com/mtkhax/bromhax/pkg/chip"
	"github.com/mtkhax/bromhax/pkg/memory"
)

// Caller calls ROM routines.
type Caller interface {
	// Call runs fn with up to four arguments in r0-r3 and returns r0.
	// Implementations must return chip.ErrNullRef for a null fn.
	Call(fn chip.Ref, args ...uint32) (uint32, error)
}

// Target is the SoC the payload runs on.
type Target interface {
	memory.Bus
	Caller
	InvalidateICache()
}

// ErrNullRef is chip.ErrNullRef, re-exported for callers of this package.
var ErrNullRef = chip.ErrNullRef

// Placement is where the payload keeps its own state in SRAM.
type Placement struct {
	// Scratch is the 256 byte buffer security registers get redirected to.
	Scratch uint32
	// Locals holds the small buffers passed to the transport routines.
	Locals uint32
}

// ScratchSize is the size of the scratch buffer.
const ScratchSize = 0x100

// DefaultPlacement is past the ROM's own SRAM usage on every known chip.
var DefaultPlacement = Placement{
	Scratch: 0x00100c00,
	Locals:  0x00100d00,
}

// call is Caller.Call with the routine named in errors.
func call(c Caller, name string, fn chip.Ref, args ...uint32) (uint32, error) {
	if fn.Null() {
		return 0, fmt.Errorf("%s: %w", name, ErrNullRef)
	}
	r0, err := c.Call(fn, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return r0, nil
}
