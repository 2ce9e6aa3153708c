package devices

import (
	"errors"
	"time"
)

// Usb describes a common API to talk to a MediaTek device in download mode
// over its bulk endpoints.
type Usb interface {
	// Read and Write move bytes over the bulk IN and OUT endpoints.
	Read(buf []byte) (int, error)
	Write(buf []byte) (int, error)

	SetTimeout(time.Duration)

	// Close disposes of this device. No other functions may be called on the
	// interface afterwards.
	Close() error
}

var UsbTimeoutError = errors.New("USB timeout error")
