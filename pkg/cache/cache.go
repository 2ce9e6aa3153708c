// package cache keeps resolved layouts of ROM images, so that scanning the
// same dump twice is instant.
package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/golang/glog"
	"howett.net/plist"

	"github.com/mtkhax/bromhax/pkg/chip"
)

// Cache is a directory of layouts.
type Cache struct {
	Dir string
}

// Default is under the user's XDG cache directory.
func Default() *Cache {
	return &Cache{Dir: path.Join(xdg.CacheHome, "bromhax")}
}

// Key identifies a scan: the image contents and every scan parameter that
// affects the result.
func Key(rom []byte, params ...any) string {
	s := sha256.New()
	s.Write(rom)
	for _, p := range params {
		fmt.Fprintf(s, "\x00%v", p)
	}
	return hex.EncodeToString(s.Sum(nil))
}

func (c *Cache) pathFor(key string) string {
	return filepath.Join(c.Dir, fmt.Sprintf("layout-%s.plist", key))
}

// Get returns the layout stored for key, or nil if there is none.
func (c *Cache) Get(key string) (*chip.Layout, error) {
	fspath := c.pathFor(key)
	data, err := os.ReadFile(fspath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var l chip.Layout
	if _, err := plist.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("could not decode %s: %w", fspath, err)
	}
	glog.Infof("Using cached layout at %s", fspath)
	return &l, nil
}

// Put stores l for key.
func (c *Cache) Put(key string, l *chip.Layout) error {
	var buf bytes.Buffer
	enc := plist.NewEncoderForFormat(&buf, plist.XMLFormat)
	enc.Indent("\t")
	if err := enc.Encode(l); err != nil {
		return fmt.Errorf("could not encode layout: %w", err)
	}
	fspath := c.pathFor(key)
	os.MkdirAll(filepath.Dir(fspath), 0755)
	if err := os.WriteFile(fspath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("could not write: %w", err)
	}
	return nil
}
