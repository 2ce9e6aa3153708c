// package targets holds the fixed per-chip boot ROM layouts, for chips whose
// ROM has been dumped and analyzed by hand.
package targets

import (
	"fmt"
	"io"
	"sort"

	"github.com/golang/glog"
	"golang.org/x/exp/maps"
	"howett.net/plist"

	"github.com/mtkhax/bromhax/pkg/chip"
	"github.com/mtkhax/bromhax/pkg/memory"
	"github.com/mtkhax/bromhax/pkg/sigscan"
)

// Target is a known chip.
type Target struct {
	Name   string `plist:"name"`
	HWCode uint16 `plist:"hwcode,omitempty"`

	SendUSBResponse uint32 `plist:"sendUSBResponse"`
	PutDword        uint32 `plist:"putDword"`
	PutData         uint32 `plist:"putData"`
	GetData         uint32 `plist:"getData"`

	SBC uint32 `plist:"sbc,omitempty"`
	SLA uint32 `plist:"sla,omitempty"`
	DAA uint32 `plist:"daa,omitempty"`

	PassedFlag uint32 `plist:"passedFlag"`
	PassedWord uint32 `plist:"passedWord"`
	CheckWord  uint32 `plist:"checkWord"`

	UART     uint32 `plist:"uart,omitempty"`
	Watchdog uint32 `plist:"watchdog,omitempty"`
}

// Layout converts t into a chip.Layout. Function pointers in the table
// already carry the Thumb bit.
func (t *Target) Layout() *chip.Layout {
	l := &chip.Layout{
		Name:     t.Name,
		UART:     chip.UART{Base: t.UART},
		Watchdog: t.Watchdog,
		Funcs: chip.Functions{
			SendUSBResponse: chip.FromPointer(t.SendUSBResponse),
			PutDword:        chip.FromPointer(t.PutDword),
			PutData:         chip.FromPointer(t.PutData),
			GetData:         chip.FromPointer(t.GetData),
		},
		Checks: chip.Checks{
			SBC: chip.FromPointer(t.SBC),
			SLA: chip.FromPointer(t.SLA),
			DAA: chip.FromPointer(t.DAA),
		},
		Security: chip.Security{
			Mode:       chip.FixedAddress,
			PassedFlag: t.PassedFlag,
			PassedWord: t.PassedWord,
			CheckWord:  t.CheckWord,
		},
	}
	if l.UART.Base == 0 {
		l.UART.Base = chip.DefaultUART
	}
	if l.Watchdog == 0 {
		l.Watchdog = chip.DefaultWatchdog
	}
	return l
}

// Validate checks that t has everything the fixed patcher needs.
func (t *Target) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("target has no name")
	}
	for _, f := range []struct {
		name string
		v    uint32
	}{
		{"sendUSBResponse", t.SendUSBResponse},
		{"putDword", t.PutDword},
		{"putData", t.PutData},
		{"getData", t.GetData},
		{"passedFlag", t.PassedFlag},
		{"passedWord", t.PassedWord},
		{"checkWord", t.CheckWord},
	} {
		if f.v == 0 {
			return fmt.Errorf("%s: %s is not set", t.Name, f.name)
		}
	}
	return nil
}

// Table is a set of targets, by name.
type Table map[string]*Target

func (t Table) ByName(name string) (*Target, error) {
	tgt, ok := t[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", chip.ErrUnknownChip, name)
	}
	return tgt, nil
}

func (t Table) ByHWCode(code uint16) (*Target, error) {
	for _, name := range t.Names() {
		if tgt := t[name]; tgt.HWCode == code {
			return tgt, nil
		}
	}
	return nil, fmt.Errorf("%w: hw code 0x%04x", chip.ErrUnknownChip, code)
}

// Names returns all target names, sorted.
func (t Table) Names() []string {
	names := maps.Keys(t)
	sort.Strings(names)
	return names
}

// Resolver returns a chip.Resolver for the named target.
func (t Table) Resolver(name string) (chip.Resolver, error) {
	tgt, err := t.ByName(name)
	if err != nil {
		return nil, err
	}
	return Fixed{Target: tgt}, nil
}

// Fixed implements chip.Resolver from a table entry. The ROM is not looked
// at, except to warn if the entry points don't look like functions.
type Fixed struct {
	Target *Target
}

func (f Fixed) Resolve(bus memory.Bus) (*chip.Layout, error) {
	if err := f.Target.Validate(); err != nil {
		return nil, chip.Stage("table", err)
	}
	l := f.Target.Layout()
	for _, r := range []struct {
		name string
		ref  chip.Ref
	}{
		{"send_usb_response", l.Funcs.SendUSBResponse},
		{"usbdl_put_dword", l.Funcs.PutDword},
		{"usbdl_put_data", l.Funcs.PutData},
		{"usbdl_get_data", l.Funcs.GetData},
	} {
		if !looksLikeEntry(bus, r.ref.Addr) {
			glog.Warningf("%s: %s at %s does not start with a push, table may be wrong for this ROM", l.Name, r.name, r.ref)
		}
	}
	return l, nil
}

// looksLikeEntry returns whether a push (16 or 32 bit) is at addr.
func looksLikeEntry(bus memory.Bus, addr uint32) bool {
	push16 := sigscan.Signature{
		Checks: []sigscan.ByteCheck{{Offset: 1, Any: []byte{0xb4, 0xb5}}},
	}
	push32 := sigscan.Signature{Pattern: sigscan.Pattern{0xe92d}}
	return push16.Find(bus, addr, addr+2).Addr == addr || push32.Find(bus, addr, addr+2).Addr == addr
}

// Load reads a plist table, as written by Save.
func Load(r io.ReadSeeker) (Table, error) {
	var entries []*Target
	if err := plist.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("could not decode table: %w", err)
	}
	res := make(Table)
	for i, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if _, ok := res[e.Name]; ok {
			return nil, fmt.Errorf("entry %d: duplicate target %q", i, e.Name)
		}
		res[e.Name] = e
	}
	return res, nil
}

// Save writes t as an XML plist, sorted by name.
func (t Table) Save(w io.Writer) error {
	var entries []*Target
	for _, name := range t.Names() {
		entries = append(entries, t[name])
	}
	enc := plist.NewEncoderForFormat(w, plist.XMLFormat)
	enc.Indent("\t")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("could not encode table: %w", err)
	}
	return nil
}

// Merge returns a copy of t with entries from o added, replacing those with
// the same name.
func (t Table) Merge(o Table) Table {
	res := make(Table)
	maps.Copy(res, t)
	maps.Copy(res, o)
	return res
}
