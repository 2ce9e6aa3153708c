package payload

import (
	"fmt"
	"math/bits"

	"github.com/golang/glog"

	"github.com/mtkhax/bromhax/pkg/chip"
	"github.com/mtkhax/bromhax/pkg/resolve"
)

const (
	// DumpAck is sent before the dumped words.
	DumpAck uint32 = 0xc1c2c3c4
	// DumpSize is how much is sent from the ROM base.
	DumpSize uint32 = 0x20000
)

// Watchdog register writes that reboot the SoC.
const (
	watchdogKeyOff   = 0x08
	watchdogKey      = 0x1971
	watchdogModeOff  = 0x00
	watchdogMode     = 0x22000014
	watchdogResetOff = 0x14
	watchdogReset    = 0x1209
)

// Dumper is the dump mode payload: it sends the boot ROM to the host and
// reboots.
type Dumper struct {
	Scanner *resolve.Scanner
	// Size defaults to DumpSize.
	Size uint32
	// Watchdog defaults to chip.DefaultWatchdog.
	Watchdog uint32
}

// DumpResult of a Dumper run.
type DumpResult struct {
	Dump *resolve.Dump
	// Words sent, not counting the ack.
	Words int
	// Synthesized is set if dwords were sent as two words.
	Synthesized bool
}

// Run never returns without rebooting the target.
func (d *Dumper) Run(t Target) (*DumpResult, error) {
	defer d.reboot(t)

	s := d.Scanner
	if s == nil {
		s = resolve.New(resolve.RevisionV1)
	}
	dp, err := s.FindDump(t)
	if err != nil {
		return nil, err
	}
	res := &DumpResult{
		Dump:        dp,
		Synthesized: dp.PutDword.Null(),
	}
	if res.Synthesized {
		glog.Infof("No put_dword found, sending words through send_word at %s", dp.SendWord)
	}

	send := func(v uint32) error {
		if !res.Synthesized {
			_, err := call(t, "usbdl_put_dword", dp.PutDword, v)
			return err
		}
		if _, err := call(t, "send_word", dp.SendWord, v>>16); err != nil {
			return err
		}
		// The host keeps everything of the second word, so it gets all of v.
		_, err := call(t, "send_word", dp.SendWord, v)
		return err
	}

	size := d.Size
	if size == 0 {
		size = DumpSize
	}
	if err := send(DumpAck); err != nil {
		return res, fmt.Errorf("sending ack: %w", err)
	}
	for off := uint32(0); off < size; off += 4 {
		v := t.Read32(dp.Base + off)
		if err := send(bits.ReverseBytes32(v)); err != nil {
			return res, fmt.Errorf("at 0x%08x: %w", dp.Base+off, err)
		}
		res.Words++
	}
	return res, nil
}

func (d *Dumper) reboot(t Target) {
	wdt := d.Watchdog
	if wdt == 0 {
		wdt = chip.DefaultWatchdog
	}
	t.Write32(wdt+watchdogKeyOff, watchdogKey)
	t.Write32(wdt+watchdogModeOff, watchdogMode)
	t.Write32(wdt+watchdogResetOff, watchdogReset)
}
