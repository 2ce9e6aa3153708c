package emu

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mtkhax/bromhax/pkg/chip"
)

func newMachine(t *testing.T) *Machine {
	t.Helper()
	m, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestMemoryMap(t *testing.T) {
	m := newMachine(t)
	if err := m.LoadROM(0, []byte{0x10, 0xb5, 0x00, 0x20}); err != nil {
		t.Fatalf("LoadROM: %v", err)
	}
	m.Write32(0, 0xdeadbeef)
	if got := m.Read16(0); got != 0xb510 {
		t.Errorf("ROM got written: 0x%04x", got)
	}
	m.Write32(SRAMBase+0x2ff00, 0xcafebabe)
	if got := m.Read32(SRAMBase + 0x2ff00); got != 0xcafebabe {
		t.Errorf("SRAM read back 0x%08x", got)
	}
	if err := m.LoadROM(SRAMBase, make([]byte, 0x100)); err == nil {
		t.Errorf("ROM mapped over SRAM")
	}
}

func TestCall(t *testing.T) {
	m := newMachine(t)
	if _, err := m.Call(chip.Ref{}); !errors.Is(err, chip.ErrNullRef) {
		t.Errorf("null call: %v", err)
	}
	if _, err := m.Call(chip.Thumb(0x1234)); !errors.Is(err, ErrNoHook) {
		t.Errorf("unhooked call: %v", err)
	}

	fn := chip.Thumb(0x1234)
	m.Hook(fn, func(m *Machine, args []uint32) (uint32, error) {
		return args[0] + args[3], nil
	})
	if r0, err := m.Call(fn, 1, 2); err != nil || r0 != 1 {
		t.Errorf("Call = %d, %v", r0, err)
	}
	want := []Call{
		{Fn: chip.Thumb(0x1234)},
		{Fn: fn, Args: []uint32{1, 2}},
	}
	if diff := cmp.Diff(want, m.Calls); diff != "" {
		t.Errorf("call trace differs (-want +got):\n%s", diff)
	}
	if got := len(m.CallsTo(fn)); got != 2 {
		t.Errorf("%d calls to fn", got)
	}
}

func TestUSBDL(t *testing.T) {
	m := newMachine(t)
	f := chip.Functions{
		SendUSBResponse: chip.Thumb(0x100),
		PutDword:        chip.Thumb(0x200),
		PutData:         chip.Thumb(0x300),
		GetData:         chip.Thumb(0x400),
	}
	m.InstallUSBDL(f)

	uart := chip.UART{Base: chip.DefaultUART}
	if m.Read32(uart.Status())&chip.UARTDataReady != 0 {
		t.Errorf("data ready with nothing sent")
	}
	m.Host.Write([]byte{1, 2, 3})
	if m.Read32(uart.Status())&chip.UARTDataReady == 0 {
		t.Errorf("data not ready")
	}

	buf := SRAMBase + 0x100
	if _, err := m.Call(f.GetData, buf, 3); err != nil {
		t.Fatalf("get_data: %v", err)
	}
	if got := m.Read32(buf); got != 0x030201 {
		t.Errorf("received 0x%08x", got)
	}
	if _, err := m.Call(f.PutData, buf, 2); err != nil {
		t.Fatalf("put_data: %v", err)
	}
	if _, err := m.Call(f.PutDword, 0xa1a2a3a4); err != nil {
		t.Fatalf("put_dword: %v", err)
	}
	if _, err := m.Call(f.SendUSBResponse, 1, 0, 1); err != nil {
		t.Fatalf("send_usb_response: %v", err)
	}

	m.Host.Close()
	if m.Read32(uart.Status())&chip.UARTDataReady == 0 {
		t.Errorf("data not ready after hangup")
	}
	if _, err := m.Call(f.GetData, buf, 1); !errors.Is(err, ErrHostClosed) {
		t.Errorf("get_data after hangup: %v", err)
	}

	m.Shutdown()
	got, err := io.ReadAll(m.Host)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	want := []byte{1, 2, 0xa1, 0xa2, 0xa3, 0xa4}
	if !bytes.Equal(got, want) || !bytes.Equal(m.Host.Sent(), want) {
		t.Errorf("host got %x, want %x", got, want)
	}
}

func TestConsole(t *testing.T) {
	m := newMachine(t)
	u := chip.UART{Base: 0x11005000}
	if m.Read32(u.Status())&chip.UARTTransmitIdle == 0 {
		t.Errorf("transmitter not idle")
	}
	for _, b := range []byte("hi\r\n") {
		m.Write32(u.Data(), uint32(b))
	}
	if got := m.Console(u.Base); got != "hi\r\n" {
		t.Errorf("console %q", got)
	}
	if got := m.Console(chip.DefaultUART); got != "" {
		t.Errorf("default console %q", got)
	}
}

func TestWatchdog(t *testing.T) {
	m := newMachine(t)
	w := m.Watchdogs[0x10212000]
	m.Write32(0x10212000, 0x22000064)
	if w.Mode() != 0x22000064 || w.Reset() {
		t.Errorf("mode 0x%x, reset %v", w.Mode(), w.Reset())
	}
	m.Write32(0x10212008, 0x1971)
	m.Write32(0x10212014, 0x1209)
	if !w.Reset() {
		t.Errorf("no reset")
	}
	if len(w.Writes) != 3 || len(m.Watchdogs[0x10007000].Writes) != 0 {
		t.Errorf("writes: %+v", w.Writes)
	}
}
