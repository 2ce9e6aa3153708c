package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/golang/glog"
	"github.com/google/gousb"
	"github.com/hashicorp/go-multierror"

	"github.com/mtkhax/bromhax/pkg/devices"
)

// DefaultTimeout for bulk transfers.
const DefaultTimeout = 5 * time.Second

var errNoDevice = errors.New("no device found")

// App is an open MediaTek device in one of its USB download modes.
type App struct {
	ctx  *gousb.Context
	Usb  *gousb.Device
	Desc *devices.Description

	done    func()
	in      *gousb.InEndpoint
	out     *gousb.OutEndpoint
	timeout time.Duration
}

var _ devices.Usb = &App{}

func (a *App) Close() error {
	if a.done != nil {
		a.done()
		a.done = nil
	}
	var err error
	if a.Usb != nil {
		err = a.Usb.Close()
	}
	a.ctx.Close()
	return err
}

func newContext() (*gousb.Context, error) {
	resC := make(chan *gousb.Context)
	errC := make(chan error)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				errC <- fmt.Errorf("%v", r)
			}
		}()

		resC <- gousb.NewContext()
	}()

	select {
	case err := <-errC:
		return nil, err
	case res := <-resC:
		return res, nil
	}
}

// open returns the first device matching any of descs.
func open(ctx *gousb.Context, descs []devices.Description) (*App, error) {
	var errs error
	for _, desc := range descs {
		usb, err := ctx.OpenDeviceWithVIDPID(desc.VID, desc.PID)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", desc, err))
		}
		if usb == nil {
			continue
		}
		desc := desc
		a := &App{
			ctx:     ctx,
			Usb:     usb,
			Desc:    &desc,
			timeout: DefaultTimeout,
		}
		if err := a.prepareUSB(); err != nil {
			usb.Close()
			return nil, fmt.Errorf("%s: %w", desc, err)
		}
		return a, nil
	}
	if errs == nil {
		return nil, errNoDevice
	}
	return nil, errs
}

// New opens the first connected device of any known kind.
func New() (*App, error) {
	return NewKind("")
}

// NewKind opens the first connected device of the given kind, or any kind
// if empty.
func NewKind(kind devices.Kind) (*App, error) {
	ctx, err := newContext()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize USB: %w", err)
	}
	a, err := open(ctx, descriptions(kind))
	if err != nil {
		ctx.Close()
		return nil, err
	}
	return a, nil
}

func descriptions(kind devices.Kind) []devices.Description {
	if kind == "" {
		return devices.Descriptions
	}
	var res []devices.Description
	for _, d := range devices.Descriptions {
		if d.Kind == kind {
			res = append(res, d)
		}
	}
	return res
}

// Wait polls for a device of the given kind to show up, backing off
// exponentially, until ctx is done.
func Wait(ctx context.Context, kind devices.Kind) (*App, error) {
	uctx, err := newContext()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize USB: %w", err)
	}
	descs := descriptions(kind)
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = 0

	var a *App
	operation := func() error {
		var err error
		a, err = open(uctx, descs)
		if errors.Is(err, errNoDevice) {
			glog.V(1).Infof("Waiting for %s device...", kind)
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		uctx.Close()
		return nil, err
	}
	return a, nil
}

// prepareUSB claims the first interface with a bulk endpoint pair, which is
// the CDC data interface in download mode.
func (a *App) prepareUSB() error {
	if err := a.Usb.SetAutoDetach(true); err != nil {
		return err
	}
	cfgNum, err := a.Usb.ActiveConfigNum()
	if err != nil {
		return err
	}
	cfg, err := a.Usb.Config(cfgNum)
	if err != nil {
		return err
	}
	for _, id := range a.Usb.Desc.Configs[cfgNum].Interfaces {
		alt := id.AltSettings[0]
		var inNum, outNum int
		for _, ep := range alt.Endpoints {
			if ep.TransferType != gousb.TransferTypeBulk {
				continue
			}
			switch ep.Direction {
			case gousb.EndpointDirectionIn:
				inNum = ep.Number
			case gousb.EndpointDirectionOut:
				outNum = ep.Number
			}
		}
		if inNum == 0 || outNum == 0 {
			continue
		}
		i, err := cfg.Interface(id.Number, alt.Alternate)
		if err != nil {
			return err
		}
		if a.in, err = i.InEndpoint(inNum); err != nil {
			i.Close()
			return err
		}
		if a.out, err = i.OutEndpoint(outNum); err != nil {
			i.Close()
			return err
		}
		a.done = func() {
			i.Close()
			cfg.Close()
		}
		return nil
	}
	cfg.Close()
	return fmt.Errorf("no bulk interface")
}

func (a *App) SetTimeout(d time.Duration) {
	a.timeout = d
}

func (a *App) transferContext() (context.Context, context.CancelFunc) {
	if a.timeout == 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), a.timeout)
}

func translate(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, gousb.TransferTimedOut) {
		return devices.UsbTimeoutError
	}
	return err
}

func (a *App) Read(buf []byte) (int, error) {
	ctx, cancel := a.transferContext()
	defer cancel()
	n, err := a.in.ReadContext(ctx, buf)
	return n, translate(err)
}

func (a *App) Write(buf []byte) (int, error) {
	ctx, cancel := a.transferContext()
	defer cancel()
	n, err := a.out.WriteContext(ctx, buf)
	return n, translate(err)
}
