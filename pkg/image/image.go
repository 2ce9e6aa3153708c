// package image reads and writes boot ROM dumps, which are raw images
// optionally compressed with xz.
package image

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/golang/glog"
	"github.com/ulikunitz/xz"
)

var xzMagic = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}

// MaxSize of a ROM image. Boot ROMs are 64 to 128KiB, this leaves room for
// dumps that include SRAM.
const MaxSize = 16 << 20

var ErrTooLarge = errors.New("image too large")

// Read returns a raw image from r, decompressing it if needed.
func Read(r io.Reader) ([]byte, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(len(xzMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	var src io.Reader = br
	if bytes.Equal(magic, xzMagic) {
		glog.V(1).Infof("Image is xz compressed")
		xr, err := xz.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("invalid xz stream: %w", err)
		}
		src = xr
	}
	data, err := io.ReadAll(io.LimitReader(src, MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("could not read image: %w", err)
	}
	if len(data) > MaxSize {
		return nil, ErrTooLarge
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image is empty")
	}
	return data, nil
}

// Write writes data to w, compressing it with xz if asked to.
func Write(w io.Writer, data []byte, compress bool) error {
	if !compress {
		_, err := w.Write(data)
		return err
	}
	xw, err := xz.NewWriter(w)
	if err != nil {
		return err
	}
	if _, err := xw.Write(data); err != nil {
		return err
	}
	return xw.Close()
}

// Load reads an image from a file.
func Load(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return data, nil
}

// Save writes an image to a file.
func Save(path string, data []byte, compress bool) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, data, compress); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
