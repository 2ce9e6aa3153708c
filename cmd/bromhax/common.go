package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"golang.org/x/exp/slices"

	"github.com/mtkhax/bromhax/pkg/chip"
	"github.com/mtkhax/bromhax/pkg/emu"
	"github.com/mtkhax/bromhax/pkg/image"
	"github.com/mtkhax/bromhax/pkg/resolve"
	"github.com/mtkhax/bromhax/pkg/targets"
)

var (
	romBase     string
	revision    string
	targetName  string
	scratchAddr string
	hostBytes   []string
	scanNoCache bool
	dumpXZ      bool
	waitTimeout time.Duration
)

func loadTable() (targets.Table, error) {
	if tablePath == "" {
		return targets.Builtin, nil
	}
	f, err := os.Open(tablePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := targets.Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", tablePath, err)
	}
	return targets.Builtin.Merge(t), nil
}

func loadROM(path string) (uint32, []byte, error) {
	base, err := parseNumber(romBase)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid base: %w", err)
	}
	data, err := image.Load(path)
	if err != nil {
		return 0, nil, fmt.Errorf("could not load ROM: %w", err)
	}
	return base, data, nil
}

// newScanner returns a scanner for a ROM mapped at base. Unusual bases are
// scanned alone.
func newScanner(base uint32) (*resolve.Scanner, error) {
	rev, err := resolve.ParseRevision(revision)
	if err != nil {
		return nil, err
	}
	s := resolve.New(rev)
	if !slices.Contains(resolve.DefaultBases, base) {
		s.Bases = []uint32{base}
	}
	return s, nil
}

func newMachine(base uint32, data []byte) (*emu.Machine, error) {
	m, err := emu.New()
	if err != nil {
		return nil, err
	}
	if err := m.LoadROM(base, data); err != nil {
		return nil, err
	}
	return m, nil
}

func printLayout(w io.Writer, l *chip.Layout) {
	tw := tabwriter.NewWriter(w, 0, 8, 1, ' ', 0)
	defer tw.Flush()
	p := func(name string, v any) {
		fmt.Fprintf(tw, "%s\t%v\n", name, v)
	}
	hex := func(v uint32) string {
		return fmt.Sprintf("0x%08X", v)
	}
	p("name", l.Name)
	p("base", hex(l.Base))
	p("uart", hex(l.UART.Base))
	p("watchdog", hex(l.Watchdog))
	p("send_usb_response", l.Funcs.SendUSBResponse)
	p("usbdl_put_dword", l.Funcs.PutDword)
	p("usbdl_put_data", l.Funcs.PutData)
	p("usbdl_get_data", l.Funcs.GetData)
	p("sbc", l.Checks.SBC)
	p("sla", l.Checks.SLA)
	p("daa", l.Checks.DAA)
	p("mode", l.Security.Mode)
	switch l.Security.Mode {
	case chip.SingleRegister, chip.DualRegister:
		p("register A", hex(l.Security.RegisterA))
		if l.Security.Mode == chip.DualRegister {
			p("register B", hex(l.Security.RegisterB))
		}
		p("field offset", fmt.Sprintf("0x%X", l.Security.FieldOffset))
	case chip.FixedAddress:
		p("passed flag", hex(l.Security.PassedFlag))
		p("passed word", hex(l.Security.PassedWord))
		p("check word", hex(l.Security.CheckWord))
	}
}
