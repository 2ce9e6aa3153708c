package emu

import (
	"errors"
	"io"
	"sync"
)

// ErrHostClosed is returned by a receive on the device side once the host
// hung up and everything it sent was consumed.
var ErrHostClosed = errors.New("host closed")

// pipe is a byte queue whose reads block until data or close.
type pipe struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
}

func newPipe() *pipe {
	p := &pipe{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *pipe) write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	p.buf = append(p.buf, b...)
	p.cond.Broadcast()
	return len(b), nil
}

func (p *pipe) read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.buf) == 0 && !p.closed {
		p.cond.Wait()
	}
	if len(p.buf) == 0 {
		return 0, io.EOF
	}
	n := copy(b, p.buf)
	p.buf = p.buf[n:]
	return n, nil
}

// ready returns whether a read would not block.
func (p *pipe) ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buf) > 0 || p.closed
}

func (p *pipe) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
}

// Host is the USB host side of the emulated download mode link. It
// implements io.ReadWriteCloser from the point of view of the host: writes
// go to the device, reads return what the device sent.
type Host struct {
	toDevice   *pipe
	fromDevice *pipe

	mu  sync.Mutex
	log []byte
}

func NewHost() *Host {
	return &Host{
		toDevice:   newPipe(),
		fromDevice: newPipe(),
	}
}

func (h *Host) Write(p []byte) (int, error) {
	return h.toDevice.write(p)
}

func (h *Host) Read(p []byte) (int, error) {
	return h.fromDevice.read(p)
}

// Close hangs up towards the device.
func (h *Host) Close() error {
	h.toDevice.close()
	return nil
}

// Sent returns everything the device sent so far, whether or not it was
// read.
func (h *Host) Sent() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]byte(nil), h.log...)
}

func (h *Host) deviceSend(b []byte) {
	h.mu.Lock()
	h.log = append(h.log, b...)
	h.mu.Unlock()
	// Nobody might be reading. The log has it anyway.
	h.fromDevice.write(b)
}

func (h *Host) deviceRecv(b []byte) error {
	if _, err := io.ReadFull(readerFunc(h.toDevice.read), b); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return ErrHostClosed
		}
		return err
	}
	return nil
}

func (h *Host) deviceReady() bool {
	return h.toDevice.ready()
}

// deviceDone makes host reads return io.EOF once drained.
func (h *Host) deviceDone() {
	h.fromDevice.close()
}

type readerFunc func([]byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) {
	return f(p)
}
