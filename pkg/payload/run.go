package payload

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/golang/glog"

	"github.com/mtkhax/bromhax/pkg/chip"
)

const (
	// WatchdogDisable is written to the watchdog mode register.
	WatchdogDisable uint32 = 0x22000064

	// Ack is what the host reads, big endian, before the handshake.
	Ack uint32 = 0xa1a2a3a4
)

// Patcher is the patch mode payload.
type Patcher struct {
	Resolver  chip.Resolver
	Placement Placement
	// NoHandshake returns right after patching.
	NoHandshake bool
}

// Result of a Patcher run. Fields are filled in as far as the run got.
type Result struct {
	Layout    *chip.Layout
	Writes    Writes
	Handshake HandshakeState
}

func (p *Patcher) placement() Placement {
	if p.Placement == (Placement{}) {
		return DefaultPlacement
	}
	return p.Placement
}

// Run resolves the ROM layout, disables the watchdog, acknowledges the host,
// patches the security state and then runs the handshake.
//
// Failures are printed on the console as a short diagnostic naming the stage,
// and returned.
func (p *Patcher) Run(t Target) (*Result, error) {
	pl := p.placement()
	res := &Result{}

	l, err := p.Resolver.Resolve(t)
	res.Layout = l
	con := NewConsole(t, l.Console())

	if l != nil && l.Watchdog != 0 {
		t.Write32(l.Watchdog, WatchdogDisable)
	}
	if err != nil && !errors.Is(err, chip.ErrUnresolvedSecurityState) {
		diagnose(con, err)
		return res, err
	}

	con.Printf("Entered %s brom patcher\n", l.Name)
	glog.Infof("Layout: %s at 0x%08x, security %s", l.Name, l.Base, l.Security.Mode)

	con.Printf("R:USB\n")
	if _, cerr := call(t, "send_usb_response", l.Funcs.SendUSBResponse, 1, 0, 1); cerr != nil {
		return res, cerr
	}
	con.Printf("S:ACK\n")
	if aerr := sendAck(t, l.Funcs, pl.Locals); aerr != nil {
		return res, aerr
	}
	if err != nil {
		diagnose(con, err)
		return res, err
	}

	ws, err := Plan(l, pl.Scratch)
	if err != nil {
		diagnose(con, chip.Stage("SEC_MODE", err))
		return res, err
	}
	res.Writes = ws
	for _, w := range ws {
		glog.V(1).Infof("patch: %s", w)
	}
	if err := Apply(t, ws); err != nil {
		return res, fmt.Errorf("patching failed: %w", err)
	}

	if p.NoHandshake {
		return res, nil
	}
	h := &Handshake{
		Target:  t,
		Funcs:   l.Funcs,
		UART:    l.Console(),
		Console: con,
		Buffer:  pl.Locals,
	}
	err = h.Run()
	res.Handshake = h.State
	return res, err
}

func diagnose(con *Console, err error) {
	var se *chip.StageError
	if errors.As(err, &se) {
		con.Printf("%s\n", se.Diagnostic())
		return
	}
	con.Printf("F:%v\n", err)
}

// sendAck sends Ack with put_dword if there is one, otherwise as four bytes
// through put_data. The host sees the same bytes either way.
func sendAck(t Target, f chip.Functions, locals uint32) error {
	if !f.PutDword.Null() {
		_, err := call(t, "usbdl_put_dword", f.PutDword, Ack)
		return err
	}
	buf := locals + 4
	t.Write32(buf, bits.ReverseBytes32(Ack))
	_, err := call(t, "usbdl_put_data", f.PutData, buf, 4)
	return err
}
