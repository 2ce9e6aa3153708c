package payload

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mtkhax/bromhax/pkg/chip"
	"github.com/mtkhax/bromhax/pkg/emu"
	"github.com/mtkhax/bromhax/pkg/memory"
	"github.com/mtkhax/bromhax/pkg/resolve"
	"github.com/mtkhax/bromhax/pkg/synth"
	"github.com/mtkhax/bromhax/pkg/targets"
)

var handshakeOK = []byte{0xa0, 0x0a, 0x50, 0x05}
var handshakeReply = []byte{0x5f, 0xf5, 0xaf, 0xfa}

// boot returns an emulated SoC running a synthetic ROM, with the download
// routines hooked.
func boot(t *testing.T, o synth.Options) (*emu.Machine, *synth.ROM) {
	t.Helper()
	rom := synth.Build(o)
	m, err := emu.New()
	if err != nil {
		t.Fatalf("emu.New: %v", err)
	}
	if err := m.LoadROM(rom.Base, rom.Data); err != nil {
		t.Fatalf("LoadROM: %v", err)
	}
	f := rom.Layout.Funcs
	f.PutDword = rom.PutDword
	m.InstallUSBDL(f)
	m.InstallSendWord(rom.SendWord)
	return m, rom
}

func TestPlan(t *testing.T) {
	const scratch = 0x100c00
	for _, te := range []struct {
		name string
		sec  chip.Security
		want Writes
	}{
		{"single", chip.Security{Mode: chip.SingleRegister, RegisterA: 0x1026d4, FieldOffset: 0x40}, Writes{
			{Addr: 0x1026d4, Value: scratch, Width: 4, What: "register A"},
			{Addr: scratch + 0x40, Value: PassValue, Width: 1, What: "scratch field"},
		}},
		{"dual", chip.Security{Mode: chip.DualRegister, RegisterA: 0x102a8c, RegisterB: 0x102a94, FieldOffset: 0xc}, Writes{
			{Addr: 0x102a8c, Value: scratch, Width: 4, What: "register A"},
			{Addr: 0x102a94, Value: PassValue, Width: 4, What: "register B"},
			{Addr: scratch + 0xc, Value: PassValue, Width: 1, What: "scratch field"},
		}},
		{"fixed", chip.Security{Mode: chip.FixedAddress, PassedFlag: 0x102860, PassedWord: 0x102a8c, CheckWord: 0x102a94}, Writes{
			{Addr: 0x102860, Value: 1, Width: 1, What: "passed flag"},
			{Addr: 0x102a8c, Value: 1, Width: 4, What: "passed word"},
			{Addr: 0x102a94, Value: 0xffffffff, Width: 4, What: "check word"},
		}},
	} {
		t.Run(te.name, func(t *testing.T) {
			got, err := Plan(&chip.Layout{Security: te.sec}, scratch)
			if err != nil {
				t.Fatalf("Plan: %v", err)
			}
			if diff := cmp.Diff(te.want, got); diff != "" {
				t.Errorf("writes differ (-want +got):\n%s", diff)
			}
		})
	}

	if ws, err := Plan(&chip.Layout{}, scratch); !errors.Is(err, chip.ErrUnresolvedSecurityState) || ws != nil {
		t.Errorf("unresolved: %v, %v", ws, err)
	}
	if _, err := Plan(&chip.Layout{Security: chip.Security{Mode: chip.SingleRegister, RegisterA: 1, FieldOffset: 0x100}}, scratch); err == nil {
		t.Errorf("field offset past scratch buffer accepted")
	}
}

func TestWritesApply(t *testing.T) {
	s := memory.New()
	s.Map("ram", 0x1000, make([]byte, 0x10), false)
	err := Writes{
		{Addr: 0x1000, Value: 0x11223344, Width: 4, What: "a"},
		{Addr: 0x1004, Value: 0x1ff, Width: 1, What: "b"},
	}.Apply(s)
	if err == nil || !strings.HasPrefix(err.Error(), "write 1: b:") {
		t.Errorf("got %v", err)
	}
	if got := s.Read32(0x1000); got != 0x11223344 {
		t.Errorf("first write missing: 0x%x", got)
	}
	if err := (Write{Value: 1, Width: 4, What: "null"}).Apply(s); err == nil {
		t.Errorf("write to null accepted")
	}
}

func TestPatchIdempotent(t *testing.T) {
	m, rom := boot(t, synth.Options{Shape: synth.ShapeDual})
	ws, err := Plan(&rom.Layout, DefaultPlacement.Scratch)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if err := Apply(m, ws); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	once := append([]byte(nil), m.SRAM.Data...)
	if err := Apply(m, ws); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !bytes.Equal(once, m.SRAM.Data) {
		t.Errorf("second patch changed SRAM")
	}
	if m.ICacheInvalidations != 2 {
		t.Errorf("%d icache invalidations", m.ICacheInvalidations)
	}
}

func newHandshake(t *testing.T, in []byte) (*Handshake, *emu.Machine, *bytes.Buffer) {
	t.Helper()
	m, err := emu.New()
	if err != nil {
		t.Fatalf("emu.New: %v", err)
	}
	f := chip.Functions{PutData: chip.Thumb(0x500), GetData: chip.Thumb(0x640)}
	m.InstallUSBDL(f)
	m.Host.Write(in)
	m.Host.Close()
	con := &bytes.Buffer{}
	return &Handshake{
		Target:  m,
		Funcs:   f,
		UART:    chip.UART{Base: chip.DefaultUART},
		Console: con,
		Buffer:  DefaultPlacement.Locals,
	}, m, con
}

func TestHandshake(t *testing.T) {
	h, m, con := newHandshake(t, handshakeOK)
	if err := h.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.State != Done || h.Mismatches != 0 {
		t.Errorf("state %s, %d mismatches", h.State, h.Mismatches)
	}
	if got := m.Host.Sent(); !bytes.Equal(got, handshakeReply) {
		t.Errorf("sent %x", got)
	}
	if want := "Waiting for handshake...\n....\nHandshake completed!\n"; con.String() != want {
		t.Errorf("console %q", con.String())
	}
}

func TestHandshakeReset(t *testing.T) {
	h, m, _ := newHandshake(t, []byte{0xa0, 0xff, 0x50, 0x05})
	err := h.Run()
	if !errors.Is(err, emu.ErrHostClosed) {
		t.Fatalf("Run: %v", err)
	}
	// Only the first byte gets answered, then A0 is needed again.
	if got := m.Host.Sent(); !bytes.Equal(got, []byte{0x5f}) {
		t.Errorf("sent %x", got)
	}
	if h.State != Sync0 || h.Mismatches != 3 {
		t.Errorf("state %s, %d mismatches", h.State, h.Mismatches)
	}

	h, m, con := newHandshake(t, []byte{0xa0, 0xff, 0xa0, 0x0a, 0x50, 0x05})
	if err := h.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, want := m.Host.Sent(), append([]byte{0x5f}, handshakeReply...); !bytes.Equal(got, want) {
		t.Errorf("sent %x, want %x", got, want)
	}
	if n := strings.Count(con.String(), "Handshake failed!"); n != 1 {
		t.Errorf("%d failures printed", n)
	}
}

func TestHandshakeState(t *testing.T) {
	for s, want := range map[HandshakeState]string{
		WaitHostReady: "wait-host-ready",
		Sync2:         "sync2",
		Done:          "done",
	} {
		if s.String() != want {
			t.Errorf("%d: %q", s, s.String())
		}
	}
}

func TestPatcher(t *testing.T) {
	for _, te := range []struct {
		opts synth.Options
		rev  resolve.Revision
	}{
		{synth.Options{}, resolve.RevisionV1},
		{synth.Options{Shape: synth.ShapeDual, Base: 0x00400000}, resolve.RevisionV1},
		{synth.Options{Shape: synth.ShapeSentinel, UART: 0x11005000}, resolve.RevisionV2},
	} {
		t.Run(te.opts.Shape.String(), func(t *testing.T) {
			m, rom := boot(t, te.opts)
			m.Host.Write(handshakeOK)
			p := &Patcher{Resolver: resolve.New(te.rev)}
			res, err := p.Run(m)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if res.Handshake != Done {
				t.Errorf("handshake %s", res.Handshake)
			}

			want := append([]byte{0xa1, 0xa2, 0xa3, 0xa4}, handshakeReply...)
			if got := m.Host.Sent(); !bytes.Equal(got, want) {
				t.Errorf("host got %x, want %x", got, want)
			}

			sec := rom.Layout.Security
			scratch := DefaultPlacement.Scratch
			if got := m.Read32(sec.RegisterA); got != scratch {
				t.Errorf("register A is 0x%x", got)
			}
			if got := m.Read8(scratch + sec.FieldOffset); got != PassValue {
				t.Errorf("scratch field is 0x%x", got)
			}
			if sec.Mode == chip.DualRegister {
				if got := m.Read32(sec.RegisterB); got != PassValue {
					t.Errorf("register B is 0x%x", got)
				}
			}
			if m.ICacheInvalidations != 1 {
				t.Errorf("%d icache invalidations", m.ICacheInvalidations)
			}
			if got := m.Watchdogs[chip.DefaultWatchdog].Mode(); got != WatchdogDisable {
				t.Errorf("watchdog mode 0x%x", got)
			}
			if c := m.CallsTo(rom.Layout.Funcs.SendUSBResponse); len(c) != 1 || !cmp.Equal(c[0].Args, []uint32{1, 0, 1}) {
				t.Errorf("send_usb_response calls: %+v", c)
			}

			con := m.Console(rom.Layout.UART.Base)
			for _, line := range []string{"R:USB\r\n", "S:ACK\r\n", "Handshake completed!\r\n"} {
				if !strings.Contains(con, line) {
					t.Errorf("console is missing %q:\n%s", line, con)
				}
			}
			if strings.Index(con, "S:ACK") > strings.Index(con, "Waiting for handshake") {
				t.Errorf("ack after handshake:\n%s", con)
			}
		})
	}
}

func TestPatcherUnresolved(t *testing.T) {
	m, _ := boot(t, synth.Options{Shape: synth.ShapeNone})
	before := append([]byte(nil), m.SRAM.Data...)
	res, err := (&Patcher{Resolver: resolve.New(resolve.RevisionV2)}).Run(m)
	if !errors.Is(err, chip.ErrUnresolvedSecurityState) {
		t.Fatalf("Run: %v", err)
	}
	if res.Writes != nil || m.ICacheInvalidations != 0 {
		t.Errorf("patched anyway: %v", res.Writes)
	}
	// Only the ack buffer is touched.
	after := m.SRAM.Data
	ack := DefaultPlacement.Locals + 4 - emu.SRAMBase
	copy(after[ack:ack+4], before[ack:ack+4])
	if !bytes.Equal(before, after) {
		t.Errorf("SRAM modified")
	}
	if got := m.Host.Sent(); !bytes.Equal(got, []byte{0xa1, 0xa2, 0xa3, 0xa4}) {
		t.Errorf("host got %x", got)
	}
	if con := m.Console(chip.DefaultUART); !strings.HasSuffix(con, "F:SEC_MODE\r\n") {
		t.Errorf("console:\n%s", con)
	}
}

func TestPatcherResolveFailure(t *testing.T) {
	m, _ := boot(t, synth.Options{NoPutData: true})
	_, err := (&Patcher{Resolver: resolve.New(resolve.RevisionV1)}).Run(m)
	if !errors.Is(err, chip.ErrTransportUnavailable) {
		t.Fatalf("Run: %v", err)
	}
	if len(m.Calls) != 0 {
		t.Errorf("calls made: %+v", m.Calls)
	}
	if con := m.Console(chip.DefaultUART); con != "F:usbdl_put_data\r\n" {
		t.Errorf("console %q", con)
	}
}

func TestPatcherFixed(t *testing.T) {
	m, err := emu.New()
	if err != nil {
		t.Fatal(err)
	}
	tgt := targets.Builtin["mt6761"]
	l := tgt.Layout()
	m.InstallUSBDL(l.Funcs)
	m.Host.Write(handshakeOK)

	res, err := (&Patcher{Resolver: targets.Fixed{Target: tgt}}).Run(m)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Writes) != 3 {
		t.Errorf("writes: %v", res.Writes)
	}
	if m.Read8(tgt.PassedFlag) != 1 || m.Read32(tgt.PassedWord) != 1 || m.Read32(tgt.CheckWord) != 0xffffffff {
		t.Errorf("security variables not patched")
	}
	if c := m.CallsTo(l.Funcs.PutDword); len(c) != 1 || c[0].Args[0] != Ack {
		t.Errorf("put_dword calls: %+v", c)
	}
	want := append([]byte{0xa1, 0xa2, 0xa3, 0xa4}, handshakeReply...)
	if got := m.Host.Sent(); !bytes.Equal(got, want) {
		t.Errorf("host got %x", got)
	}
	if con := m.Console(chip.DefaultUART); !strings.HasPrefix(con, "Entered mt6761 brom patcher\r\n") {
		t.Errorf("console:\n%s", con)
	}
}

func TestDumper(t *testing.T) {
	m, rom := boot(t, synth.Options{Base: 0x48000000, Dump: synth.DumpBoth})
	res, err := (&Dumper{}).Run(m)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Synthesized || res.Words != int(DumpSize/4) {
		t.Errorf("result %+v", res)
	}
	want := []byte{0xc1, 0xc2, 0xc3, 0xc4}
	want = append(want, rom.Data...)
	want = append(want, make([]byte, DumpSize-uint32(len(rom.Data)))...)
	if got := m.Host.Sent(); !bytes.Equal(got, want) {
		t.Errorf("dump differs, got %d bytes", len(got))
	}
	if !m.Watchdogs[chip.DefaultWatchdog].Reset() {
		t.Errorf("no reboot")
	}
}

func TestDumperWordMode(t *testing.T) {
	m, rom := boot(t, synth.Options{Dump: synth.DumpWordOnly})
	d := &Dumper{Size: synth.Size}
	res, err := d.Run(m)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Synthesized || !res.Dump.PutDword.Null() {
		t.Errorf("result %+v", res)
	}

	sent := m.Host.Sent()
	if want := []byte{0, 0, 0xc1, 0xc2, 0xc1, 0xc2, 0xc3, 0xc4}; !bytes.Equal(sent[:8], want) {
		t.Fatalf("ack sent as %x", sent[:8])
	}
	records := sent[8:]
	if len(records) != int(synth.Size)*2 {
		t.Fatalf("got %d bytes of records", len(records))
	}
	var got []byte
	for i := 0; i < len(records); i += 8 {
		hi := binary.BigEndian.Uint32(records[i:])
		lo := binary.BigEndian.Uint32(records[i+4:])
		if hi != lo>>16 {
			t.Fatalf("record %d: high half 0x%x for word 0x%x", i/8, hi, lo)
		}
		got = append(got, records[i+4:i+8]...)
	}
	if direct := memory.Bytes(m, rom.Base, synth.Size); !bytes.Equal(got, direct) {
		t.Errorf("word mode capture differs from memory")
	}
	if n := len(m.CallsTo(rom.SendWord)); n != 2*(1+int(synth.Size)/4) {
		t.Errorf("%d send_word calls", n)
	}
}

func TestDumperNotFound(t *testing.T) {
	m, _ := boot(t, synth.Options{})
	_, err := (&Dumper{}).Run(m)
	if !errors.Is(err, chip.ErrTransportUnavailable) {
		t.Fatalf("Run: %v", err)
	}
	if len(m.Host.Sent()) != 0 {
		t.Errorf("sent something")
	}
	if !m.Watchdogs[chip.DefaultWatchdog].Reset() {
		t.Errorf("no reboot after failed scan")
	}
}
