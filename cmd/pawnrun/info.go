package main

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"go.creack.net/pawn/loader"
	"go.creack.net/pawn/op"
)

var infoCmd = &cobra.Command{
	Use:   "info <file.amx>",
	Short: "Show a module's header and symbol tables",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		buf, _, err := readModule(args[0])
		if err != nil {
			return err
		}
		st, res := loader.Describe(buf)
		if res != op.LoadOK {
			return fmt.Errorf("malformed module: %w", res)
		}

		hdr := st.Header
		var width int
		switch hdr.Magic {
		case op.Magic16:
			width = 16
		case op.Magic32:
			width = 32
		case op.Magic64:
			width = 64
		}
		fmt.Printf("cell width:   %d-bit (magic %#04x)\n", width, hdr.Magic)
		fmt.Printf("file version: %d, amx version: %d\n", hdr.FileVer, hdr.AmxVer)
		fmt.Printf("flags:        %#04x\n", hdr.Flags)
		fmt.Printf("code:         %d bytes at %#x\n", hdr.Dat-hdr.Cod, hdr.Cod)
		fmt.Printf("data:         %d bytes at %#x\n", hdr.Hea-hdr.Dat, hdr.Dat)
		fmt.Printf("heap+stack:   %d bytes\n", hdr.Stp-hdr.Hea)
		if hdr.Cip == op.NoMain {
			fmt.Printf("main:         none\n")
		} else {
			fmt.Printf("main:         %#x\n", hdr.Cip)
		}

		for _, name := range slices.Sorted(maps.Keys(st.Publics)) {
			fmt.Printf("public  %#08x %s\n", st.Publics[name], name)
		}
		for _, name := range slices.Sorted(maps.Keys(st.Pubvars)) {
			fmt.Printf("pubvar  %#08x %s\n", st.Pubvars[name], name)
		}
		for i, name := range st.Natives {
			fmt.Printf("native  %8d %s\n", i, name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
