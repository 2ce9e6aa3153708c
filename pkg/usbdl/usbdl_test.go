package usbdl

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/mtkhax/bromhax/pkg/emu"
	"github.com/mtkhax/bromhax/pkg/payload"
	"github.com/mtkhax/bromhax/pkg/resolve"
	"github.com/mtkhax/bromhax/pkg/synth"
)

// fakeDevice answers every byte written with reply(b).
type fakeDevice struct {
	reply   func(b byte) []byte
	written []byte
	out     bytes.Buffer
}

func (f *fakeDevice) Write(p []byte) (int, error) {
	for _, b := range p {
		f.written = append(f.written, b)
		f.out.Write(f.reply(b))
	}
	return len(p), nil
}

func (f *fakeDevice) Read(p []byte) (int, error) {
	return f.out.Read(p)
}

func TestHandshake(t *testing.T) {
	d := &fakeDevice{reply: func(b byte) []byte { return []byte{^b} }}
	if err := Handshake(d, 0); err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	if !bytes.Equal(d.written, StartSequence) {
		t.Errorf("wrote %x", d.written)
	}
}

func TestHandshakeRestart(t *testing.T) {
	// Garbles the second byte once.
	n := 0
	d := &fakeDevice{reply: func(b byte) []byte {
		n++
		if n == 2 {
			return []byte{b}
		}
		return []byte{^b}
	}}
	if err := Handshake(d, 0); err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	want := []byte{0xa0, 0x0a, 0xa0, 0x0a, 0x50, 0x05}
	if !bytes.Equal(d.written, want) {
		t.Errorf("wrote %x, want %x", d.written, want)
	}

	d = &fakeDevice{reply: func(b byte) []byte { return []byte{b} }}
	if err := Handshake(d, 3); !errors.Is(err, ErrHandshake) {
		t.Errorf("Handshake with a broken device: %v", err)
	}
	if len(d.written) != 3 {
		t.Errorf("%d bytes written", len(d.written))
	}

	d = &fakeDevice{reply: func(b byte) []byte { return nil }}
	if err := Handshake(d, 3); !errors.Is(err, io.EOF) {
		t.Errorf("Handshake with a silent device: %v", err)
	}
}

func TestReadAck(t *testing.T) {
	if err := ReadAck(bytes.NewReader([]byte{0xa1, 0xa2, 0xa3, 0xa4})); err != nil {
		t.Errorf("ReadAck: %v", err)
	}
	if err := ReadAck(bytes.NewReader([]byte{0xa4, 0xa3, 0xa2, 0xa1})); !errors.Is(err, ErrUnexpectedAck) {
		t.Errorf("ReadAck of swapped ack: %v", err)
	}
}

func TestReadHWCode(t *testing.T) {
	d := &fakeDevice{reply: func(b byte) []byte { return []byte{b, 0x07, 0x17, 0xca, 0x00} }}
	hw, err := ReadHWCode(d)
	if err != nil {
		t.Fatalf("ReadHWCode: %v", err)
	}
	if hw.Code != 0x717 || hw.Version != 0xca00 {
		t.Errorf("got %s", hw)
	}

	d = &fakeDevice{reply: func(b byte) []byte { return []byte{0, 0, 0, 0, 0} }}
	if _, err := ReadHWCode(d); err == nil {
		t.Errorf("bad echo accepted")
	}
}

func TestReceiveDump(t *testing.T) {
	data := []byte{0x10, 0xb5, 0x00, 0x20, 0xde, 0xad, 0xbe, 0xef}

	dword := append([]byte{0xc1, 0xc2, 0xc3, 0xc4}, data...)
	var got bytes.Buffer
	mode, err := ReceiveDump(bytes.NewReader(dword), &got, len(data))
	if err != nil || mode != DumpDword {
		t.Fatalf("dword mode: %s, %v", mode, err)
	}
	if !bytes.Equal(got.Bytes(), data) {
		t.Errorf("dword mode got %x", got.Bytes())
	}

	word := []byte{0, 0, 0xc1, 0xc2, 0xc1, 0xc2, 0xc3, 0xc4}
	for i := 0; i < len(data); i += 4 {
		v := binary.BigEndian.Uint32(data[i:])
		word = binary.BigEndian.AppendUint32(word, v>>16)
		word = binary.BigEndian.AppendUint32(word, v)
	}
	got.Reset()
	mode, err = ReceiveDump(bytes.NewReader(word), &got, len(data))
	if err != nil || mode != DumpWord {
		t.Fatalf("word mode: %s, %v", mode, err)
	}
	if !bytes.Equal(got.Bytes(), data) {
		t.Errorf("word mode got %x", got.Bytes())
	}

	if _, err := ReceiveDump(bytes.NewReader([]byte{1, 2, 3, 4}), &got, 4); !errors.Is(err, ErrBadDumpHeader) {
		t.Errorf("bad header: %v", err)
	}
	if _, err := ReceiveDump(bytes.NewReader(dword[:6]), &got, len(data)); err == nil {
		t.Errorf("short dump accepted")
	}
}

// TestEmulated runs the host side against the payloads on an emulated SoC.
func TestEmulated(t *testing.T) {
	rom := synth.Build(synth.Options{Shape: synth.ShapeDual, Dump: synth.DumpWordOnly})
	m, err := emu.New()
	if err != nil {
		t.Fatal(err)
	}
	if err := m.LoadROM(rom.Base, rom.Data); err != nil {
		t.Fatal(err)
	}
	m.InstallUSBDL(rom.Layout.Funcs)
	m.InstallSendWord(rom.SendWord)

	done := make(chan error)
	go func() {
		_, err := (&payload.Patcher{Resolver: resolve.New(resolve.RevisionV1)}).Run(m)
		done <- err
	}()
	if err := ReadAck(m.Host); err != nil {
		t.Fatalf("ReadAck: %v", err)
	}
	if err := Handshake(m.Host, 1); err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Patcher: %v", err)
	}

	go func() {
		_, err := (&payload.Dumper{Size: synth.Size}).Run(m)
		done <- err
	}()
	var got bytes.Buffer
	mode, err := ReceiveDump(m.Host, &got, int(synth.Size))
	if err != nil {
		t.Fatalf("ReceiveDump: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Dumper: %v", err)
	}
	if mode != DumpWord || !bytes.Equal(got.Bytes(), rom.Data) {
		t.Errorf("%s mode dump differs from ROM", mode)
	}
}
