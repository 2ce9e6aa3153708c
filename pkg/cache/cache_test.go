package cache

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mtkhax/bromhax/pkg/chip"
)

func TestKey(t *testing.T) {
	rom := []byte{0x10, 0xb5}
	a := Key(rom, "generic-v1")
	if len(a) != 64 {
		t.Errorf("key %q", a)
	}
	if a != Key(rom, "generic-v1") {
		t.Errorf("key not stable")
	}
	if a == Key(rom, "generic-v2") || a == Key([]byte{0x10, 0xb4}, "generic-v1") {
		t.Errorf("key ignores its inputs")
	}
}

func TestGetPut(t *testing.T) {
	c := &Cache{Dir: t.TempDir()}
	key := Key([]byte("rom"))

	l, err := c.Get(key)
	if err != nil || l != nil {
		t.Fatalf("Get on empty cache: %v, %v", l, err)
	}

	want := &chip.Layout{
		Name:     "generic-v1",
		Base:     0x400000,
		UART:     chip.UART{Base: chip.DefaultUART},
		Watchdog: chip.DefaultWatchdog,
		Funcs: chip.Functions{
			SendUSBResponse: chip.Thumb(0x400400),
			PutData:         chip.Thumb(0x400500),
			GetData:         chip.Thumb(0x400640),
		},
		Checks: chip.Checks{SBC: chip.Thumb(0x400800)},
		Security: chip.Security{
			Mode:        chip.DualRegister,
			RegisterA:   0x102a8c,
			RegisterB:   0x102a94,
			FieldOffset: 0xc,
		},
	}
	if err := c.Put(key, want); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !strings.HasPrefix(c.pathFor(key), c.Dir) {
		t.Errorf("path %s outside of cache", c.pathFor(key))
	}
	got, err := c.Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("layout differs (-want +got):\n%s", diff)
	}
}
