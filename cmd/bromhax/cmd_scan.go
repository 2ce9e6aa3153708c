package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mtkhax/bromhax/pkg/cache"
	"github.com/mtkhax/bromhax/pkg/memory"
)

var scanCmd = &cobra.Command{
	Use:   "scan [rom]",
	Short: "Find the layout of a boot ROM image",
	Long:  "Scan a boot ROM dump (raw or xz compressed) for the routines and security state the patch payload needs, and print them.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		base, data, err := loadROM(args[0])
		if err != nil {
			return err
		}
		s, err := newScanner(base)
		if err != nil {
			return err
		}

		c := cache.Default()
		key := cache.Key(data, base, s.Revision)
		if !scanNoCache {
			l, err := c.Get(key)
			if err != nil {
				slog.Warn("Ignoring broken cache entry", "err", err)
			}
			if l != nil {
				printLayout(os.Stdout, l)
				return nil
			}
		}

		m := memory.New()
		if _, err := m.Map("brom", base, data, true); err != nil {
			return err
		}
		l, err := s.Resolve(m)
		if l != nil {
			printLayout(os.Stdout, l)
		}
		if err != nil {
			return err
		}
		if err := c.Put(key, l); err != nil {
			slog.Warn("Could not cache layout", "err", err)
		}
		return nil
	},
}
