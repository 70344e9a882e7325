package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go.creack.net/pawn/disasm"
	"go.creack.net/pawn/loader"
	"go.creack.net/pawn/op"
)

var disasmCmd = &cobra.Command{
	Use:   "disasm <file.amx>",
	Short: "List a module's code segment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		buf, hdr, err := readModule(args[0])
		if err != nil {
			return err
		}
		return dispatch(hdr,
			func() error { return doDisasm[uint16](buf) },
			func() error { return doDisasm[uint32](buf) },
			func() error { return doDisasm[uint64](buf) },
		)
	},
}

func init() {
	rootCmd.AddCommand(disasmCmd)
}

func doDisasm[C op.Cell](buf []byte) error {
	code, res := loader.ExtractCode[C](buf)
	if res != op.LoadOK {
		return fmt.Errorf("malformed module: %w", res)
	}
	return disasm.Fprint[C](os.Stdout, code)
}
