package main

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mtkhax/bromhax/pkg/chip"
	"github.com/mtkhax/bromhax/pkg/emu"
	"github.com/mtkhax/bromhax/pkg/image"
	"github.com/mtkhax/bromhax/pkg/payload"
	"github.com/mtkhax/bromhax/pkg/usbdl"
)

var emulateCmd = &cobra.Command{
	Use:   "emulate",
	Short: "Run payloads against an emulated SoC",
	Long:  "Map a boot ROM dump into an emulated SoC, hook its USB download routines and run a payload against it, with an emulated host on the other end.",
}

// playHost runs the host side of the patch payload protocol until the
// handshake is done, or sends raw bytes if given some.
func playHost(m *emu.Machine, raw []byte) <-chan error {
	errC := make(chan error, 1)
	go func() {
		defer m.Host.Close()
		if raw != nil {
			_, err := m.Host.Write(raw)
			errC <- err
			return
		}
		if err := usbdl.ReadAck(m.Host); err != nil {
			errC <- err
			return
		}
		slog.Debug("Host got ack, starting handshake")
		errC <- usbdl.Handshake(m.Host, usbdl.DefaultTries)
	}()
	return errC
}

func parseHostBytes() ([]byte, error) {
	if hostBytes == nil {
		return nil, nil
	}
	res := []byte{}
	for _, s := range hostBytes {
		v, err := parseNumber(s)
		if err != nil || v > 0xff {
			return nil, fmt.Errorf("invalid host byte %q", s)
		}
		res = append(res, byte(v))
	}
	return res, nil
}

var emulatePatchCmd = &cobra.Command{
	Use:   "patch [rom]",
	Short: "Run the patch payload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		base, data, err := loadROM(args[0])
		if err != nil {
			return err
		}
		scratch, err := parseNumber(scratchAddr)
		if err != nil {
			return fmt.Errorf("invalid scratch address: %w", err)
		}
		raw, err := parseHostBytes()
		if err != nil {
			return err
		}
		m, err := newMachine(base, data)
		if err != nil {
			return err
		}

		var r chip.Resolver
		if targetName != "" {
			tbl, err := loadTable()
			if err != nil {
				return err
			}
			if r, err = tbl.Resolver(targetName); err != nil {
				return err
			}
		} else {
			if r, err = newScanner(base); err != nil {
				return err
			}
		}

		// Resolve once to know where to put the hooks. The payload resolves
		// again on its own.
		l, _ := r.Resolve(m)
		if l != nil {
			m.InstallUSBDL(l.Funcs)
		}

		hostErr := playHost(m, raw)
		p := &payload.Patcher{
			Resolver: r,
			Placement: payload.Placement{
				Scratch: scratch,
				Locals:  payload.DefaultPlacement.Locals,
			},
		}
		res, err := p.Run(m)
		m.Shutdown()
		herr := <-hostErr

		fmt.Fprintln(os.Stderr, "--- console ---")
		fmt.Fprint(os.Stderr, m.Console(l.Console().Base))
		fmt.Fprintln(os.Stderr, "---------------")
		for _, w := range res.Writes {
			slog.Info("Patched", "write", w.String())
		}
		slog.Info("Done", "handshake", res.Handshake, "calls", len(m.Calls), "icache_invalidations", m.ICacheInvalidations, "faults", m.Faults)

		if err != nil {
			return err
		}
		if herr != nil && !errors.Is(herr, emu.ErrHostClosed) {
			return fmt.Errorf("host: %w", herr)
		}
		return nil
	},
}

var emulateDumpCmd = &cobra.Command{
	Use:   "dump [rom] [out]",
	Short: "Run the dump payload and write what the host received",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		base, data, err := loadROM(args[0])
		if err != nil {
			return err
		}
		m, err := newMachine(base, data)
		if err != nil {
			return err
		}
		s, err := newScanner(base)
		if err != nil {
			return err
		}
		if dp, err := s.FindDump(m); err == nil {
			m.InstallSendWord(dp.SendWord)
			m.InstallUSBDL(chip.Functions{PutDword: dp.PutDword})
		}

		done := make(chan error, 1)
		go func() {
			_, err := (&payload.Dumper{Scanner: s}).Run(m)
			m.Shutdown()
			done <- err
		}()
		var buf bytes.Buffer
		mode, rerr := usbdl.ReceiveDump(m.Host, &buf, int(payload.DumpSize))
		if err := <-done; err != nil {
			return err
		}
		if rerr != nil {
			return rerr
		}

		if err := image.Save(args[1], buf.Bytes(), dumpXZ); err != nil {
			return fmt.Errorf("could not write dump: %w", err)
		}
		rebooted := false
		for _, w := range m.Watchdogs {
			rebooted = rebooted || w.Reset()
		}
		slog.Info("Dumped", "mode", mode, "bytes", buf.Len(), "rebooted", rebooted, "file", args[1])
		return nil
	},
}
