// package emu is an emulated MediaTek SoC for running payloads on the host.
//
// There is no CPU: the payload logic runs natively and reaches the SoC
// through memory accesses and calls into the ROM. Calls land on hooks that
// stand in for the ROM's USB download routines, which talk to a Host.
package emu

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/golang/glog"

	"github.com/mtkhax/bromhax/pkg/chip"
	"github.com/mtkhax/bromhax/pkg/memory"
)

const (
	SRAMBase uint32 = 0x00100000
	SRAMSize uint32 = 0x00030000
)

var (
	UARTBases     = []uint32{0x11002000, 0x11003000, 0x11005000}
	WatchdogBases = []uint32{0x10007000, 0x10212000}
)

// ErrNoHook is returned when calling a ROM address nothing is hooked at.
var ErrNoHook = errors.New("no hook at address")

// Hook replaces a ROM routine. It gets r0-r3 and returns r0.
type Hook func(m *Machine, args []uint32) (uint32, error)

// Call is an entry in the call trace.
type Call struct {
	Fn   chip.Ref
	Args []uint32
}

// Machine is the emulated SoC.
type Machine struct {
	*memory.Space
	SRAM *memory.Region
	Host *Host

	UARTs     map[uint32]*UART
	Watchdogs map[uint32]*Watchdog

	hooks map[uint32]Hook
	// Calls is every call made, in order.
	Calls               []Call
	ICacheInvalidations int
}

func New() (*Machine, error) {
	m := &Machine{
		Space:     memory.New(),
		Host:      NewHost(),
		UARTs:     make(map[uint32]*UART),
		Watchdogs: make(map[uint32]*Watchdog),
		hooks:     make(map[uint32]Hook),
	}
	sram, err := m.Map("sram", SRAMBase, make([]byte, SRAMSize), false)
	if err != nil {
		return nil, err
	}
	m.SRAM = sram
	for _, base := range UARTBases {
		u := &UART{Base: base, host: m.Host}
		if err := m.MapDevice(fmt.Sprintf("uart@%08x", base), base, 0x1000, u); err != nil {
			return nil, err
		}
		m.UARTs[base] = u
	}
	for _, base := range WatchdogBases {
		w := &Watchdog{Base: base}
		if err := m.MapDevice(fmt.Sprintf("wdt@%08x", base), base, 0x100, w); err != nil {
			return nil, err
		}
		m.Watchdogs[base] = w
	}
	return m, nil
}

// LoadROM maps a boot ROM image read-only at base.
func (m *Machine) LoadROM(base uint32, data []byte) error {
	if _, err := m.Map("brom", base, data, true); err != nil {
		return fmt.Errorf("could not map ROM: %w", err)
	}
	return nil
}

// Hook places h at the entry point of fn.
func (m *Machine) Hook(fn chip.Ref, h Hook) {
	if fn.Null() {
		return
	}
	m.hooks[fn.Addr] = h
}

func (m *Machine) Call(fn chip.Ref, args ...uint32) (uint32, error) {
	if fn.Null() {
		return 0, chip.ErrNullRef
	}
	if len(args) > 4 {
		return 0, fmt.Errorf("%d arguments, only r0-r3 are supported", len(args))
	}
	m.Calls = append(m.Calls, Call{Fn: fn, Args: append([]uint32(nil), args...)})
	h, ok := m.hooks[fn.Addr]
	if !ok {
		return 0, fmt.Errorf("%w %s", ErrNoHook, fn)
	}
	padded := make([]uint32, 4)
	copy(padded, args)
	return h(m, padded)
}

func (m *Machine) InvalidateICache() {
	m.ICacheInvalidations++
}

// CallsTo returns the calls made to fn.
func (m *Machine) CallsTo(fn chip.Ref) []Call {
	var res []Call
	for _, c := range m.Calls {
		if c.Fn.Addr == fn.Addr {
			res = append(res, c)
		}
	}
	return res
}

// Shutdown ends the device side of the host link.
func (m *Machine) Shutdown() {
	m.Host.deviceDone()
}

// InstallUSBDL hooks the download mode routines of f.
func (m *Machine) InstallUSBDL(f chip.Functions) {
	m.Hook(f.SendUSBResponse, func(m *Machine, args []uint32) (uint32, error) {
		glog.V(1).Infof("send_usb_response(%d, %d, %d)", args[0], args[1], args[2])
		return 0, nil
	})
	m.Hook(f.PutDword, putDword)
	m.Hook(f.PutData, func(m *Machine, args []uint32) (uint32, error) {
		m.Host.deviceSend(memory.Bytes(m, args[0], args[1]))
		return 0, nil
	})
	m.Hook(f.GetData, func(m *Machine, args []uint32) (uint32, error) {
		buf := make([]byte, args[1])
		if err := m.Host.deviceRecv(buf); err != nil {
			return 0, err
		}
		for i, b := range buf {
			m.Write8(args[0]+uint32(i), b)
		}
		return 0, nil
	})
}

// InstallSendWord hooks a dump mode one-word sender.
func (m *Machine) InstallSendWord(fn chip.Ref) {
	m.Hook(fn, putDword)
}

// putDword sends r0 big endian.
func putDword(m *Machine, args []uint32) (uint32, error) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], args[0])
	m.Host.deviceSend(b[:])
	return 0, nil
}

// Console returns what was printed on the UART at base.
func (m *Machine) Console(base uint32) string {
	if u, ok := m.UARTs[base]; ok {
		return u.Output()
	}
	return ""
}
