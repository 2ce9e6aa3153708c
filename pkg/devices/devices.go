package devices

import (
	"fmt"

	"github.com/google/gousb"
)

// Kind is what is answering on the other end of the USB link.
type Kind string

const (
	BootROM     Kind = "brom"
	Preloader   Kind = "preloader"
	DownloadAgt Kind = "da"
)

func (k Kind) String() string {
	switch k {
	case BootROM:
		return "Boot ROM"
	case Preloader:
		return "Preloader"
	case DownloadAgt:
		return "Download Agent"
	}
	return "UNKNOWN"
}

type Description struct {
	VID, PID gousb.ID
	Kind     Kind
}

func (d Description) String() string {
	return fmt.Sprintf("%s (%s:%s)", d.Kind, d.VID, d.PID)
}

// Descriptions are tried in order when looking for a device.
var Descriptions = []Description{
	{VID: 0x0e8d, PID: 0x0003, Kind: BootROM},
	{VID: 0x0e8d, PID: 0x2000, Kind: Preloader},
	{VID: 0x0e8d, PID: 0x6000, Kind: DownloadAgt},
	{VID: 0x1004, PID: 0x6000, Kind: DownloadAgt},
}

// Chip is a hardware code as reported by the boot ROM.
type Chip struct {
	HWCode uint16
	Name   string
	// Watchdog is the TOPRGU base.
	Watchdog uint32
}

var Chips = []Chip{
	{HWCode: 0x0321, Name: "mt6735", Watchdog: 0x10212000},
	{HWCode: 0x0326, Name: "mt6750 Helio P10", Watchdog: 0x10007000},
	{HWCode: 0x0335, Name: "mt6737", Watchdog: 0x10212000},
	{HWCode: 0x0551, Name: "mt6757 Helio P20", Watchdog: 0x10007000},
	{HWCode: 0x0699, Name: "mt6739", Watchdog: 0x10007000},
	{HWCode: 0x0707, Name: "mt6768", Watchdog: 0x10007000},
	{HWCode: 0x0717, Name: "mt6761 Helio A22", Watchdog: 0x10007000},
	{HWCode: 0x0766, Name: "mt6765", Watchdog: 0x10007000},
	{HWCode: 0x0788, Name: "mt6771", Watchdog: 0x10007000},
	{HWCode: 0x0813, Name: "mt6785", Watchdog: 0x10007000},
	{HWCode: 0x0886, Name: "mt6873 Dimensity 800 5G", Watchdog: 0x10007000},
	{HWCode: 0x6580, Name: "mt6580", Watchdog: 0x10007000},
	{HWCode: 0x8127, Name: "mt8127", Watchdog: 0x10007000},
	{HWCode: 0x8163, Name: "mt8163", Watchdog: 0x10007000},
	{HWCode: 0x8172, Name: "mt8173", Watchdog: 0x10007000},
}

// ChipByHWCode returns the chip with the given code, or nil.
func ChipByHWCode(code uint16) *Chip {
	for i := range Chips {
		if Chips[i].HWCode == code {
			return &Chips[i]
		}
	}
	return nil
}
