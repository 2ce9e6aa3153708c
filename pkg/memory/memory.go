// package memory implements the 32-bit address space a payload runs against.
// Everything the payload touches (boot ROM, SRAM, peripherals) is reached
// through a Bus, so the same code can run on top of an emulated SoC or a
// synthetic image in tests.
package memory

import (
	"encoding/binary"
	"fmt"

	"github.com/golang/glog"
)

// Bus is a little-endian physical address space as seen by code running on
// the target. Accesses never fail: like on real hardware, reading unmapped
// memory returns garbage (here, zero) and writes to it vanish.
type Bus interface {
	Read8(addr uint32) uint8
	Read16(addr uint32) uint16
	Read32(addr uint32) uint32
	Write8(addr uint32, v uint8)
	Write32(addr uint32, v uint32)
}

// Device is a memory-mapped peripheral. Offsets are relative to the base the
// device is mapped at and are always 4-byte aligned.
type Device interface {
	Read32(off uint32) uint32
	Write32(off uint32, v uint32)
}

// Region is a contiguous block of RAM or ROM backed by a byte slice.
type Region struct {
	Name string
	Base uint32
	Data []byte
	// ReadOnly regions drop writes, like the boot ROM does.
	ReadOnly bool
}

func (r *Region) contains(addr, size uint32) bool {
	return addr >= r.Base && uint64(addr)+uint64(size) <= uint64(r.Base)+uint64(len(r.Data))
}

type deviceMapping struct {
	name string
	base uint32
	size uint32
	dev  Device
}

func (d *deviceMapping) contains(addr uint32) bool {
	return addr >= d.base && uint64(addr) < uint64(d.base)+uint64(d.size)
}

// Space is a Bus built out of Regions and Devices.
type Space struct {
	regions []*Region
	devices []*deviceMapping

	// Faults counts accesses that hit nothing.
	Faults int
}

func New() *Space {
	return &Space{}
}

func (s *Space) overlaps(base, size uint32) string {
	end := uint64(base) + uint64(size)
	for _, r := range s.regions {
		if uint64(base) < uint64(r.Base)+uint64(len(r.Data)) && uint64(r.Base) < end {
			return r.Name
		}
	}
	for _, d := range s.devices {
		if uint64(base) < uint64(d.base)+uint64(d.size) && uint64(d.base) < end {
			return d.name
		}
	}
	return ""
}

// Map places data at base. The slice is used directly, not copied.
func (s *Space) Map(name string, base uint32, data []byte, readOnly bool) (*Region, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("region %q is empty", name)
	}
	if uint64(base)+uint64(len(data)) > 1<<32 {
		return nil, fmt.Errorf("region %q does not fit in the address space", name)
	}
	if other := s.overlaps(base, uint32(len(data))); other != "" {
		return nil, fmt.Errorf("region %q overlaps %q", name, other)
	}
	r := &Region{
		Name:     name,
		Base:     base,
		Data:     data,
		ReadOnly: readOnly,
	}
	s.regions = append(s.regions, r)
	return r, nil
}

// MapDevice places a peripheral occupying size bytes at base.
func (s *Space) MapDevice(name string, base, size uint32, dev Device) error {
	if (base%4) != 0 || (size%4) != 0 || size == 0 {
		return fmt.Errorf("device %q must be word aligned", name)
	}
	if other := s.overlaps(base, size); other != "" {
		return fmt.Errorf("device %q overlaps %q", name, other)
	}
	s.devices = append(s.devices, &deviceMapping{
		name: name,
		base: base,
		size: size,
		dev:  dev,
	})
	return nil
}

func (s *Space) region(addr, size uint32) *Region {
	for _, r := range s.regions {
		if r.contains(addr, size) {
			return r
		}
	}
	return nil
}

func (s *Space) device(addr uint32) *deviceMapping {
	for _, d := range s.devices {
		if d.contains(addr) {
			return d
		}
	}
	return nil
}

func (s *Space) fault(kind string, addr uint32) {
	s.Faults++
	if glog.V(2) {
		glog.Infof("unmapped %s at 0x%08x", kind, addr)
	}
}

func (s *Space) Read8(addr uint32) uint8 {
	if r := s.region(addr, 1); r != nil {
		return r.Data[addr-r.Base]
	}
	if d := s.device(addr); d != nil {
		off := addr - d.base
		return uint8(d.dev.Read32(off&^3) >> (8 * (off & 3)))
	}
	s.fault("read", addr)
	return 0
}

func (s *Space) Read16(addr uint32) uint16 {
	if r := s.region(addr, 2); r != nil {
		return binary.LittleEndian.Uint16(r.Data[addr-r.Base:])
	}
	return uint16(s.Read8(addr)) | uint16(s.Read8(addr+1))<<8
}

func (s *Space) Read32(addr uint32) uint32 {
	if r := s.region(addr, 4); r != nil {
		return binary.LittleEndian.Uint32(r.Data[addr-r.Base:])
	}
	if d := s.device(addr); d != nil && (addr%4) == 0 {
		return d.dev.Read32(addr - d.base)
	}
	return uint32(s.Read16(addr)) | uint32(s.Read16(addr+2))<<16
}

func (s *Space) Write8(addr uint32, v uint8) {
	if r := s.region(addr, 1); r != nil {
		if !r.ReadOnly {
			r.Data[addr-r.Base] = v
		}
		return
	}
	if d := s.device(addr); d != nil {
		off := addr - d.base
		d.dev.Write32(off&^3, uint32(v)<<(8*(off&3)))
		return
	}
	s.fault("write", addr)
}

func (s *Space) Write32(addr uint32, v uint32) {
	if r := s.region(addr, 4); r != nil {
		if !r.ReadOnly {
			binary.LittleEndian.PutUint32(r.Data[addr-r.Base:], v)
		}
		return
	}
	if d := s.device(addr); d != nil && (addr%4) == 0 {
		d.dev.Write32(addr-d.base, v)
		return
	}
	for i := uint32(0); i < 4; i++ {
		s.Write8(addr+i, uint8(v>>(8*i)))
	}
}

// Bytes copies size bytes starting at addr out of the bus.
func Bytes(b Bus, addr, size uint32) []byte {
	res := make([]byte, size)
	for i := range res {
		res[i] = b.Read8(addr + uint32(i))
	}
	return res
}
