// package sigscan finds code in an unknown ROM layout by matching the exact
// halfwords of short, stable instruction sequences.
package sigscan

import (
	"fmt"
	"strings"

	"github.com/mtkhax/bromhax/pkg/memory"
)

// Pattern is a sequence of 16-bit instruction words.
type Pattern []uint16

func (p Pattern) String() string {
	parts := make([]string, len(p))
	for i, w := range p {
		parts[i] = fmt.Sprintf("%04X", w)
	}
	return strings.Join(parts, " ")
}

// Scan returns the lowest halfword-aligned address a in [start, end) at which
// pattern fully matches, or 0 if there is none. The pattern may run past end.
// A failed partial match resumes at the next halfword. A match at address 0
// can therefore never be reported.
func Scan(bus memory.Bus, start, end uint32, pattern Pattern) uint32 {
	if len(pattern) == 0 {
		return 0
	}
	for offset := start; offset < end; offset += 2 {
		matched := 0
		for i, w := range pattern {
			if bus.Read16(offset+uint32(2*i)) != w {
				break
			}
			matched++
		}
		if matched == len(pattern) {
			return offset
		}
		// Guard against wrapping at the top of the address space.
		if offset+2 < offset {
			break
		}
	}
	return 0
}

// ByteCheck requires the byte at Offset past a raw match to be one of Any.
type ByteCheck struct {
	Offset uint32
	Any    []byte
}

func (c ByteCheck) ok(bus memory.Bus, addr uint32) bool {
	got := bus.Read8(addr + c.Offset)
	for _, a := range c.Any {
		if got == a {
			return true
		}
	}
	return false
}

// Signature is a pattern plus extra checks used to tell it apart from
// similarly-shaped code. A Signature without a Pattern matches any halfword
// passing its checks.
type Signature struct {
	Name    string
	Pattern Pattern
	Checks  []ByteCheck
}

// Result of a signature search.
type Result struct {
	// Addr is the matching address, or 0.
	Addr uint32
	// Rejected is the number of raw pattern matches that failed checks.
	Rejected int
}

func (s Signature) candidate(bus memory.Bus, start, end uint32) uint32 {
	if len(s.Pattern) == 0 {
		if start < end {
			return start
		}
		return 0
	}
	return Scan(bus, start, end, s.Pattern)
}

func (s Signature) passes(bus memory.Bus, addr uint32) bool {
	for _, c := range s.Checks {
		if !c.ok(bus, addr) {
			return false
		}
	}
	return true
}

// Find returns the first match of s in [start, end) that also passes all
// checks. Rejected candidates are skipped by one halfword, not by the
// pattern length.
func (s Signature) Find(bus memory.Bus, start, end uint32) Result {
	var res Result
	for start < end {
		addr := s.candidate(bus, start, end)
		if addr == 0 {
			return res
		}
		if s.passes(bus, addr) {
			res.Addr = addr
			return res
		}
		if len(s.Pattern) != 0 {
			res.Rejected++
		}
		if addr+2 < addr {
			break
		}
		start = addr + 2
	}
	return res
}

// Variants are alternative signatures for the same logical target, in
// priority order.
type Variants []Signature

// Find returns the result of the first variant that matches, and which one
// it was. Rejections are summed over all variants.
func (v Variants) Find(bus memory.Bus, start, end uint32) (Result, *Signature) {
	var rejected int
	for i := range v {
		res := v[i].Find(bus, start, end)
		rejected += res.Rejected
		if res.Addr != 0 {
			res.Rejected = rejected
			return res, &v[i]
		}
	}
	return Result{Rejected: rejected}, nil
}
