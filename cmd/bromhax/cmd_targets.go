package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mtkhax/bromhax/pkg/devices"
)

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Chips with a known fixed layout",
}

var targetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known chips",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tbl, err := loadTable()
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		defer tw.Flush()
		fmt.Fprintf(tw, "NAME\tHW CODE\tCHIP\tUART\tWATCHDOG\n")
		for _, name := range tbl.Names() {
			l := tbl[name].Layout()
			code, desc := "-", "-"
			if hw := tbl[name].HWCode; hw != 0 {
				code = fmt.Sprintf("0x%04x", hw)
				if c := devices.ChipByHWCode(hw); c != nil {
					desc = c.Name
				}
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t0x%08x\t0x%08x\n", name, code, desc, l.UART.Base, l.Watchdog)
		}
		return nil
	},
}

var targetsExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write the chip table as a plist, to be edited and used with --table",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tbl, err := loadTable()
		if err != nil {
			return err
		}
		var w io.Writer = os.Stdout
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("could not open file for writing: %w", err)
			}
			defer f.Close()
			w = f
		}
		return tbl.Save(w)
	},
}
