package payload

import (
	"fmt"
	"io"

	"github.com/golang/glog"

	"github.com/mtkhax/bromhax/pkg/chip"
)

// HandshakeSequence is what the host sends, one byte at a time. Every byte is
// answered with its complement.
var HandshakeSequence = [4]byte{0xa0, 0x0a, 0x50, 0x05}

type HandshakeState int

const (
	WaitHostReady HandshakeState = iota
	// Sync0 to Sync3 wait for the corresponding sequence byte.
	Sync0
	Sync1
	Sync2
	Sync3
	Done
)

func (s HandshakeState) String() string {
	switch s {
	case WaitHostReady:
		return "wait-host-ready"
	case Sync0, Sync1, Sync2, Sync3:
		return fmt.Sprintf("sync%d", int(s-Sync0))
	case Done:
		return "done"
	}
	return fmt.Sprintf("HandshakeState(%d)", int(s))
}

// Handshake synchronizes with the host after patching. Bytes are moved with
// the ROM's get_data and put_data through a one byte buffer, and the console
// UART's receive ready bit is polled before the first byte and after every
// accepted one.
type Handshake struct {
	Target  Target
	Funcs   chip.Functions
	UART    chip.UART
	Console io.Writer
	// Buffer is a target address for the byte being exchanged.
	Buffer uint32

	State HandshakeState
	// Mismatches counts bytes that reset the sequence.
	Mismatches int
}

func (h *Handshake) print(s string) {
	if h.Console != nil {
		io.WriteString(h.Console, s)
	}
}

func (h *Handshake) recv() (byte, error) {
	if _, err := call(h.Target, "usbdl_get_data", h.Funcs.GetData, h.Buffer, 1); err != nil {
		return 0, err
	}
	return h.Target.Read8(h.Buffer), nil
}

func (h *Handshake) send(b byte) error {
	h.Target.Write8(h.Buffer, b)
	_, err := call(h.Target, "usbdl_put_data", h.Funcs.PutData, h.Buffer, 1)
	return err
}

// Run blocks until the host completed the sequence. It only returns early if
// a transport call fails, which the ROM routines never do on real hardware.
func (h *Handshake) Run() error {
	h.State = WaitHostReady
	h.print("Waiting for handshake...\n")
	index := 0
	for index < len(HandshakeSequence) {
		for h.Target.Read32(h.UART.Status())&chip.UARTDataReady == 0 {
		}
		h.State = Sync0 + HandshakeState(index)

		var got byte
		for {
			b, err := h.recv()
			if err != nil {
				return fmt.Errorf("in %s: %w", h.State, err)
			}
			if b == HandshakeSequence[index] {
				got = b
				break
			}
			glog.V(1).Infof("handshake: got 0x%02x in %s, restarting", b, h.State)
			h.Mismatches++
			index = 0
			h.State = Sync0
			h.print("\nHandshake failed!\n")
		}
		if err := h.send(^got); err != nil {
			return fmt.Errorf("in %s: %w", h.State, err)
		}
		index++
		h.print(".")
	}
	h.State = Done
	h.print("\nHandshake completed!\n")
	return nil
}
