package main

import (
	"flag"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var rootCmd = &cobra.Command{
	Use:   "bromhax",
	Short: "bromhax is a MediaTek boot ROM patcher",
	Long: `Finds the security state and USB download routines of unknown MediaTek boot
ROMs by scanning them for code signatures, and runs the patch and dump payloads
against an emulated SoC. Also talks to real devices in download mode.

bromhax comes with ABSOLUTELY NO WARRANTY. This is free software, and you are
welcome to redistribute it under certain conditions; see COPYING file
accompanying distribution for details.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verboseLog {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	},
}

var (
	verboseLog bool
	tablePath  string
)

func main() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().BoolVarP(&verboseLog, "verbose", "v", false, "Enable verbose debug logging")
	rootCmd.PersistentFlags().StringVar(&tablePath, "table", "", "Plist file with extra chip layouts, as written by 'targets export'")

	for _, c := range []*cobra.Command{scanCmd, emulatePatchCmd, emulateDumpCmd} {
		c.Flags().StringVarP(&romBase, "base", "b", "0x0", "Address the ROM image is mapped at")
		c.Flags().StringVarP(&revision, "revision", "r", "generic-v1", "Scanning resolver revision (generic-v1, generic-v2)")
	}
	scanCmd.Flags().BoolVar(&scanNoCache, "no-cache", false, "Do not use cached layouts")
	emulatePatchCmd.Flags().StringVarP(&targetName, "target", "t", "", "Use the fixed layout of this chip instead of scanning")
	emulatePatchCmd.Flags().StringVar(&scratchAddr, "scratch", "0x100c00", "Address of the 256 byte scratch buffer")
	emulatePatchCmd.Flags().StringSliceVar(&hostBytes, "host-bytes", nil, "Bytes the emulated host sends before the handshake (default: a correct handshake)")
	emulateDumpCmd.Flags().BoolVar(&dumpXZ, "xz", false, "Compress the dump with xz")
	receiveDumpCmd.Flags().BoolVar(&dumpXZ, "xz", false, "Compress the dump with xz")
	for _, c := range []*cobra.Command{handshakeCmd, syncCmd, receiveDumpCmd} {
		c.Flags().DurationVar(&waitTimeout, "wait", 0, "How long to wait for the device to show up (default: forever)")
	}

	rootCmd.AddCommand(scanCmd)
	emulateCmd.AddCommand(emulatePatchCmd)
	emulateCmd.AddCommand(emulateDumpCmd)
	rootCmd.AddCommand(emulateCmd)
	targetsCmd.AddCommand(targetsListCmd)
	targetsCmd.AddCommand(targetsExportCmd)
	rootCmd.AddCommand(targetsCmd)
	rootCmd.AddCommand(handshakeCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(receiveDumpCmd)
	rootCmd.Execute()
}

func init() {
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
}

func parseNumber(s string) (uint32, error) {
	var err error
	var res uint64
	if strings.HasPrefix(strings.ToLower(s), "0x") {
		res, err = strconv.ParseUint(s[2:], 16, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", s)
		}
	} else {
		res, err = strconv.ParseUint(s, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", s)
		}
	}
	return uint32(res), nil
}
