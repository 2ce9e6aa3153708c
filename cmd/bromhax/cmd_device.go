package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mtkhax/bromhax/pkg/app"
	"github.com/mtkhax/bromhax/pkg/devices"
	"github.com/mtkhax/bromhax/pkg/image"
	"github.com/mtkhax/bromhax/pkg/payload"
	"github.com/mtkhax/bromhax/pkg/usbdl"
)

func waitDevice(kind devices.Kind) (*app.App, error) {
	ctx := context.Background()
	if waitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, waitTimeout)
		defer cancel()
	}
	slog.Info("Waiting for device...", "kind", kind)
	a, err := app.Wait(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("no device: %w", err)
	}
	slog.Info("Found device", "device", a.Desc)
	return a, nil
}

var handshakeCmd = &cobra.Command{
	Use:   "handshake",
	Short: "Synchronize with a device in boot ROM download mode and identify it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := waitDevice(devices.BootROM)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := usbdl.Handshake(a, usbdl.DefaultTries); err != nil {
			return err
		}
		hw, err := usbdl.ReadHWCode(a)
		if err != nil {
			return fmt.Errorf("could not get hw code: %w", err)
		}
		name := "unknown"
		if c := devices.ChipByHWCode(hw.Code); c != nil {
			name = c.Name
		}
		slog.Info("Boot ROM", "hwcode", hw.String(), "chip", name)

		tbl, err := loadTable()
		if err != nil {
			return err
		}
		if t, err := tbl.ByHWCode(hw.Code); err == nil {
			slog.Info("Fixed layout available", "target", t.Name)
		} else {
			slog.Info("No fixed layout, the generic patcher has to scan this ROM")
		}
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Wait for the patch payload's ack and run its handshake",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := waitDevice(devices.BootROM)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := usbdl.ReadAck(a); err != nil {
			return err
		}
		if err := usbdl.Handshake(a, usbdl.DefaultTries); err != nil {
			return err
		}
		slog.Info("Payload synchronized, security checks should be disabled")
		return nil
	},
}

var receiveDumpCmd = &cobra.Command{
	Use:   "receive-dump [out]",
	Short: "Receive a boot ROM dump from the dump payload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := waitDevice(devices.BootROM)
		if err != nil {
			return err
		}
		defer a.Close()

		var buf bytes.Buffer
		mode, err := usbdl.ReceiveDump(a, &buf, int(payload.DumpSize))
		if err != nil {
			return err
		}
		if err := image.Save(args[0], buf.Bytes(), dumpXZ); err != nil {
			return fmt.Errorf("could not write dump: %w", err)
		}
		slog.Info("Bootrom dumped", "mode", mode, "bytes", buf.Len(), "file", args[0])
		return nil
	},
}
