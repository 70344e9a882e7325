package main

import (
	"fmt"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"go.creack.net/pawn/amx"
	"go.creack.net/pawn/disasm"
	"go.creack.net/pawn/loader"
	"go.creack.net/pawn/op"
)

var debugPublic string

var debugCmd = &cobra.Command{
	Use:   "debug <file.amx>",
	Short: "Step through a module interactively",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		buf, hdr, err := readModule(args[0])
		if err != nil {
			return err
		}
		return dispatch(hdr,
			func() error { return doDebug[uint16, int16](buf) },
			func() error { return doDebug[uint32, int32](buf) },
			func() error { return doDebug[uint64, int64](buf) },
		)
	},
}

func init() {
	debugCmd.Flags().StringVar(&debugPublic, "public", "", "public function to debug instead of main")
	rootCmd.AddCommand(debugCmd)
}

func doDebug[C op.Cell, S op.SCell](buf []byte) error {
	rl, err := readline.New("(amx) ")
	if err != nil {
		return fmt.Errorf("failed to open terminal: %w", err)
	}
	defer func() { _ = rl.Close() }() // Best effort.

	// The REPL runs inside the single-step hook: the machine is parked
	// between instructions while the prompt is open.
	running := false
	hook := func(vm *amx.VM[C, S], l *loader.Loader[C, S], user any) op.Error {
		if running {
			return op.Success
		}
		fmt.Println(disasm.TraceLine(vm))
		for {
			line, err := rl.Readline()
			if err != nil { // io.EOF on ^D, readline.ErrInterrupt on ^C.
				return op.ErrCallbackAbort
			}
			switch strings.TrimSpace(line) {
			case "", "s", "step":
				return op.Success
			case "c", "continue":
				running = true
				return op.Success
			case "r", "regs":
				fmt.Printf("PRI=%#x ALT=%#x CIP=%#x FRM=%#x STK=%#x STP=%#x HEA=%#x\n",
					uint64(vm.PRI), uint64(vm.ALT), uint64(vm.CIP),
					uint64(vm.FRM), uint64(vm.STK), uint64(vm.STP), uint64(vm.HEA))
			case "st", "stack":
				for i, addr := 0, vm.STK; i < 8 && addr < vm.STP; i, addr = i+1, addr+vm.CellSize() {
					p := vm.DataV2P(addr)
					if p == nil {
						break
					}
					fmt.Printf("  [%#x] %#x\n", uint64(addr), uint64(*p))
				}
			case "q", "quit":
				return op.ErrCallbackAbort
			default:
				fmt.Println("commands: step (s), continue (c), regs (r), stack (st), quit (q)")
			}
		}
	}

	l := loader.NewDefault[C, S]()
	if res := l.Init(buf, loader.Callbacks[C, S]{OnSingleStep: hook}); res != op.LoadOK {
		return fmt.Errorf("malformed module: %w", res)
	}

	entry := l.GetMain()
	if debugPublic != "" {
		entry = l.GetPublic(debugPublic)
	}
	if entry == 0 {
		return fmt.Errorf("no entry point")
	}

	ret, err2 := l.VM().Call(entry)
	switch err2 {
	case op.Success:
		fmt.Printf("returned: %d\n", int64(S(ret)))
	case op.ErrCallbackAbort:
		fmt.Println("aborted")
	default:
		return fmt.Errorf("execution failed: %w", err2)
	}
	return nil
}
