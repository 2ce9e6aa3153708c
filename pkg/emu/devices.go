package emu

import (
	"runtime"
	"sync"

	"github.com/golang/glog"

	"github.com/mtkhax/bromhax/pkg/chip"
)

// UART is a debug UART. Transmitted bytes are collected; receive ready
// follows the host link.
type UART struct {
	Base uint32

	host *Host
	mu   sync.Mutex
	out  []byte
}

func (u *UART) Read32(off uint32) uint32 {
	switch off {
	case 0x14:
		st := uint32(chip.UARTTransmitIdle)
		if u.host.deviceReady() {
			st |= chip.UARTDataReady
		} else {
			// Let the host goroutine run while the payload polls.
			runtime.Gosched()
		}
		return st
	}
	return 0
}

func (u *UART) Write32(off, v uint32) {
	if off != 0 {
		glog.V(2).Infof("uart 0x%08x: write 0x%x to +0x%x", u.Base, v, off)
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.out = append(u.out, byte(v))
}

// Output returns everything printed so far.
func (u *UART) Output() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return string(u.out)
}

// WatchdogWrite is a register write seen by a Watchdog.
type WatchdogWrite struct {
	Off   uint32
	Value uint32
}

// Watchdog is a TOPRGU. It only records what it's told.
type Watchdog struct {
	Base   uint32
	Writes []WatchdogWrite
	regs   [0x40]uint32
}

func (w *Watchdog) Read32(off uint32) uint32 {
	if off/4 < uint32(len(w.regs)) {
		return w.regs[off/4]
	}
	return 0
}

func (w *Watchdog) Write32(off, v uint32) {
	w.Writes = append(w.Writes, WatchdogWrite{Off: off, Value: v})
	if off/4 < uint32(len(w.regs)) {
		w.regs[off/4] = v
	}
}

// Mode returns the mode register.
func (w *Watchdog) Mode() uint32 {
	return w.regs[0]
}

// Reset returns whether a software reset was triggered with the unlock key
// set.
func (w *Watchdog) Reset() bool {
	return w.regs[0x08/4] == 0x1971 && w.regs[0x14/4] == 0x1209
}
