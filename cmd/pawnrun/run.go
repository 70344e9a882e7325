package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"go.creack.net/pawn/amx"
	"go.creack.net/pawn/disasm"
	"go.creack.net/pawn/loader"
	"go.creack.net/pawn/op"
)

var (
	runPublic string
	runTrace  bool
)

var runCmd = &cobra.Command{
	Use:   "run <file.amx>",
	Short: "Execute a module's main (or a chosen public)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		buf, hdr, err := readModule(args[0])
		if err != nil {
			return err
		}
		return dispatch(hdr,
			func() error { return doRun[uint16, int16](buf) },
			func() error { return doRun[uint32, int32](buf) },
			func() error { return doRun[uint64, int64](buf) },
		)
	},
}

func init() {
	runCmd.Flags().StringVar(&runPublic, "public", "", "public function to call instead of main")
	runCmd.Flags().BoolVar(&runTrace, "trace", false, "log every instruction before it executes")
	rootCmd.AddCommand(runCmd)
}

func doRun[C op.Cell, S op.SCell](buf []byte) error {
	l := loader.NewDefault[C, S]()
	var cbs loader.Callbacks[C, S]
	if runTrace {
		cbs.OnSingleStep = func(vm *amx.VM[C, S], l *loader.Loader[C, S], user any) op.Error {
			fmt.Println(disasm.TraceLine(vm))
			return op.Success
		}
	}
	if res := l.Init(buf, cbs); res != op.LoadOK {
		return fmt.Errorf("malformed module: %w", res)
	}

	entry := l.GetMain()
	if runPublic != "" {
		entry = l.GetPublic(runPublic)
	}
	if entry == 0 {
		if runPublic != "" {
			return fmt.Errorf("public %q not found", runPublic)
		}
		return fmt.Errorf("module has no main")
	}

	ret, err := l.VM().Call(entry)
	if err != op.Success {
		return fmt.Errorf("execution failed: %w", err)
	}
	fmt.Printf("returned: %d\n", int64(S(ret)))
	return nil
}
