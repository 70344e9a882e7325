// Command pawnrun runs and inspects compiled AMX modules.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go.creack.net/pawn/op"
)

var rootCmd = &cobra.Command{
	Use:           "pawnrun",
	Short:         "Run and inspect compiled AMX modules",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "pawnrun: %v\n", err)
		os.Exit(1)
	}
}

// readModule loads the file and sniffs the header so commands can pick the
// cell width to instantiate.
func readModule(path string) ([]byte, op.Header, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, op.Header{}, fmt.Errorf("failed to read %q: %w", path, err)
	}
	hdr, ok := op.ParseHeader(buf)
	if !ok {
		return nil, op.Header{}, fmt.Errorf("%q: not an AMX module", path)
	}
	return buf, hdr, nil
}

// dispatch runs the width-specific body matching the module's magic.
func dispatch(hdr op.Header, w16, w32, w64 func() error) error {
	switch hdr.Magic {
	case op.Magic16:
		return w16()
	case op.Magic32:
		return w32()
	case op.Magic64:
		return w64()
	default:
		return fmt.Errorf("unrecognized magic %#04x", hdr.Magic)
	}
}
