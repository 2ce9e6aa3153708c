// package usbdl implements the host side of the MediaTek USB download mode
// protocol, as far as talking to the boot ROM and to our payloads goes.
package usbdl

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/golang/glog"
)

var (
	ErrHandshake     = errors.New("handshake failed")
	ErrUnexpectedAck = errors.New("unexpected acknowledgement")
	ErrBadDumpHeader = errors.New("unexpected dump header")
)

// StartSequence is sent by the host to synchronize with the boot ROM or a
// payload. Each byte is answered with its complement.
var StartSequence = []byte{0xa0, 0x0a, 0x50, 0x05}

// DefaultTries is how many times Handshake restarts the sequence.
const DefaultTries = 100

const (
	// PatchAck is sent by the patch payload before its handshake.
	PatchAck uint32 = 0xa1a2a3a4
	// DumpAck is sent by the dump payload before the data.
	DumpAck uint32 = 0xc1c2c3c4
	// wordModeAck is the high half of DumpAck as sent by a one-word sender.
	wordModeAck uint32 = 0x0000c1c2

	cmdGetHWCode = 0xfd
)

// Handshake runs the start sequence, restarting it on a wrong reply at most
// tries times.
func Handshake(rw io.ReadWriter, tries int) error {
	if tries <= 0 {
		tries = DefaultTries
	}
	var reply [1]byte
	restarts := 0
	for i := 0; i < len(StartSequence); {
		if _, err := rw.Write(StartSequence[i : i+1]); err != nil {
			return fmt.Errorf("sending 0x%02x: %w", StartSequence[i], err)
		}
		if _, err := io.ReadFull(rw, reply[:]); err != nil {
			return fmt.Errorf("reading reply to 0x%02x: %w", StartSequence[i], err)
		}
		if reply[0] == ^StartSequence[i] {
			i++
			continue
		}
		glog.V(1).Infof("handshake: got 0x%02x for 0x%02x, restarting", reply[0], StartSequence[i])
		restarts++
		if restarts >= tries {
			return fmt.Errorf("%w after %d tries", ErrHandshake, restarts)
		}
		i = 0
	}
	return nil
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// ReadAck waits for the patch payload acknowledgement.
func ReadAck(r io.Reader) error {
	v, err := readU32(r)
	if err != nil {
		return fmt.Errorf("reading ack: %w", err)
	}
	if v != PatchAck {
		return fmt.Errorf("%w: 0x%08x", ErrUnexpectedAck, v)
	}
	return nil
}

// HWCode identifies a chip.
type HWCode struct {
	Code    uint16
	Version uint16
}

func (h HWCode) String() string {
	return fmt.Sprintf("0x%04x (version 0x%04x)", h.Code, h.Version)
}

// ReadHWCode asks the boot ROM for its hardware code.
func ReadHWCode(rw io.ReadWriter) (*HWCode, error) {
	if _, err := rw.Write([]byte{cmdGetHWCode}); err != nil {
		return nil, fmt.Errorf("sending command: %w", err)
	}
	var b [5]byte
	if _, err := io.ReadFull(rw, b[:]); err != nil {
		return nil, fmt.Errorf("reading reply: %w", err)
	}
	if b[0] != cmdGetHWCode {
		return nil, fmt.Errorf("command echoed as 0x%02x", b[0])
	}
	return &HWCode{
		Code:    binary.BigEndian.Uint16(b[1:]),
		Version: binary.BigEndian.Uint16(b[3:]),
	}, nil
}

// DumpMode is how the dump payload sends data.
type DumpMode int

const (
	DumpDword DumpMode = iota
	// DumpWord is used when the payload only found a one-word sender. Every
	// dword comes as two records.
	DumpWord
)

func (m DumpMode) String() string {
	if m == DumpWord {
		return "word"
	}
	return "dword"
}

// ReceiveDump reads size bytes sent by the dump payload into w.
func ReceiveDump(r io.Reader, w io.Writer, size int) (DumpMode, error) {
	if size <= 0 || size%4 != 0 {
		return 0, fmt.Errorf("invalid dump size %d", size)
	}
	hdr, err := readU32(r)
	if err != nil {
		return 0, fmt.Errorf("reading header: %w", err)
	}
	switch hdr {
	case DumpAck:
		if _, err := io.CopyN(w, r, int64(size)); err != nil {
			return DumpDword, fmt.Errorf("reading data: %w", err)
		}
		return DumpDword, nil
	case wordModeAck:
	default:
		return 0, fmt.Errorf("%w: 0x%08x", ErrBadDumpHeader, hdr)
	}

	glog.Infof("Word mode detected.")
	if hdr, err = readU32(r); err != nil {
		return DumpWord, fmt.Errorf("reading header: %w", err)
	}
	if hdr != DumpAck {
		return DumpWord, fmt.Errorf("%w: 0x%08x after 0x%08x", ErrBadDumpHeader, hdr, wordModeAck)
	}
	var rec [8]byte
	for i := 0; i < size/4; i++ {
		if _, err := io.ReadFull(r, rec[:]); err != nil {
			return DumpWord, fmt.Errorf("reading record %d: %w", i, err)
		}
		if !bytes.Equal(rec[2:4], rec[4:6]) {
			glog.Warningf("record %d: %x does not repeat its high half", i, rec)
		}
		if _, err := w.Write(rec[4:]); err != nil {
			return DumpWord, err
		}
	}
	return DumpWord, nil
}
