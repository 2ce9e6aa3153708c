package memory

import (
	"testing"
)

type regFile struct {
	regs   map[uint32]uint32
	writes []uint32
}

func (r *regFile) Read32(off uint32) uint32 {
	return r.regs[off]
}

func (r *regFile) Write32(off uint32, v uint32) {
	r.regs[off] = v
	r.writes = append(r.writes, off)
}

func TestRegions(t *testing.T) {
	s := New()
	rom := []byte{0x10, 0xb5, 0x06, 0x4a, 0xd4, 0x68, 0x00, 0x00}
	if _, err := s.Map("rom", 0x400000, rom, true); err != nil {
		t.Fatalf("Map: %v", err)
	}
	if _, err := s.Map("sram", 0x100000, make([]byte, 0x100), false); err != nil {
		t.Fatalf("Map: %v", err)
	}
	if _, err := s.Map("clash", 0x400004, make([]byte, 4), false); err == nil {
		t.Fatalf("overlapping mapping accepted")
	}

	if got, want := s.Read16(0x400000), uint16(0xb510); got != want {
		t.Errorf("Read16: got %04x, want %04x", got, want)
	}
	if got, want := s.Read32(0x400002), uint32(0x68d44a06); got != want {
		t.Errorf("unaligned Read32: got %08x, want %08x", got, want)
	}

	s.Write32(0x400000, 0xffffffff)
	if got := s.Read16(0x400000); got != 0xb510 {
		t.Errorf("write to ROM went through: %04x", got)
	}

	s.Write32(0x100040, 0xa4a3a2a1)
	if got, want := s.Read8(0x100040), uint8(0xa1); got != want {
		t.Errorf("little endian: got %02x, want %02x", got, want)
	}

	// Straddling the end of a region reads the mapped half only.
	if got, want := s.Read16(0x400007), uint16(0x0000); got != want {
		t.Errorf("straddle: got %04x, want %04x", got, want)
	}
	if s.Faults != 1 {
		t.Errorf("faults: got %d, want 1", s.Faults)
	}
}

func TestDevices(t *testing.T) {
	s := New()
	uart := &regFile{regs: map[uint32]uint32{0x14: 0x20}}
	if err := s.MapDevice("uart", 0x11002000, 0x100, uart); err != nil {
		t.Fatalf("MapDevice: %v", err)
	}
	if got := s.Read32(0x11002014); got != 0x20 {
		t.Errorf("status: got %x", got)
	}
	s.Write32(0x11002000, 'A')
	if len(uart.writes) != 1 || uart.regs[0] != 'A' {
		t.Errorf("data write not delivered: %+v", uart.regs)
	}
	s.Write8(0x11002001, 0x42)
	if got, want := uart.regs[0], uint32(0x4200); got != want {
		t.Errorf("byte write lane: got %x, want %x", got, want)
	}
	if got := Bytes(s, 0x11002014, 2); got[0] != 0x20 || got[1] != 0 {
		t.Errorf("Bytes: got %x", got)
	}
}
