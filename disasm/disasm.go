// Package disasm formats AMX code streams as assembler listings.
package disasm

import (
	"fmt"
	"io"
	"strings"

	"go.creack.net/pawn/amx"
	"go.creack.net/pawn/op"
)

// signed reinterprets a cell as its signed twin for display.
func signed[C op.Cell](v C) int64 {
	switch op.CellBits[C]() {
	case 16:
		return int64(int16(uint16(v)))
	case 32:
		return int64(int32(uint32(v)))
	default:
		return int64(uint64(v))
	}
}

// Instruction is one decoded instruction. Case tables are not represented
// by it; Fprint renders them directly.
type Instruction[C op.Cell] struct {
	Addr    C // byte offset into the code segment.
	Code    op.Code
	Operand C
	Cells   int // stream size, operand included.
}

func (ins Instruction[C]) String() string {
	if !ins.Code.Valid() {
		return fmt.Sprintf("%08x  .cell %#x", uint64(ins.Addr), uint64(C(ins.Code)))
	}
	if ins.Cells > 1 {
		return fmt.Sprintf("%08x  %s %d", uint64(ins.Addr), ins.Code, signed[C](ins.Operand))
	}
	return fmt.Sprintf("%08x  %s", uint64(ins.Addr), ins.Code)
}

// Fprint writes a listing of the whole code image. Case tables introduced
// by a CASETBL marker are rendered as record lines instead of being
// misread as instructions.
func Fprint[C op.Cell](w io.Writer, code []C) error {
	cb := op.CellBytes[C]()
	for i := 0; i < len(code); {
		addr := C(i) * cb
		raw := code[i]
		if raw == C(op.Casetbl) && i+2 < len(code) {
			n := int(code[i+1])
			if _, err := fmt.Fprintf(w, "%08x  CASETBL %d\n", uint64(addr), n); err != nil {
				return err
			}
			i += 2
			for r := 0; r <= n && i < len(code); r++ {
				// First record is the default branch, value-less.
				if r == 0 {
					fmt.Fprintf(w, "%08x    default -> %+d\n", uint64(C(i)*cb), signed[C](code[i]))
					i++
					continue
				}
				if i+1 >= len(code) {
					break
				}
				fmt.Fprintf(w, "%08x    case %d -> %+d\n", uint64(C(i)*cb), signed[C](code[i]), signed[C](code[i+1]))
				i += 2
			}
			continue
		}

		if raw >= C(op.NumCodes) {
			if _, err := fmt.Fprintf(w, "%08x  .cell %#x\n", uint64(addr), uint64(raw)); err != nil {
				return err
			}
			i++
			continue
		}
		ins := Instruction[C]{Addr: addr, Code: op.Code(raw), Cells: 1}
		if ins.Code.HasOperand() && i+1 < len(code) {
			ins.Operand = code[i+1]
			ins.Cells = 2
		}
		if _, err := fmt.Fprintf(w, "%s\n", ins); err != nil {
			return err
		}
		i += ins.Cells
	}
	return nil
}

// Sprint returns the listing of code as a string.
func Sprint[C op.Cell](code []C) string {
	var sb strings.Builder
	_ = Fprint[C](&sb, code)
	return sb.String()
}

// TraceLine formats the instruction at the VM's current CIP, the way a
// single-step hook wants to log it. Invalid addresses and opcodes are
// reported inline rather than as errors: the tracer must never stop the
// machine.
func TraceLine[C op.Cell, S op.SCell](vm *amx.VM[C, S]) string {
	cip := vm.CIP
	p := vm.CodeV2P(cip)
	if p == nil {
		return fmt.Sprintf("%08x  ** invalid cip **", uint64(cip))
	}
	raw := *p
	if raw >= C(op.NumCodes) {
		return fmt.Sprintf("%08x  .cell %#x", uint64(cip), uint64(raw))
	}
	code := op.Code(raw)
	if !code.HasOperand() {
		return fmt.Sprintf("%08x  %s", uint64(cip), code)
	}
	pop := vm.CodeV2P(cip + vm.CellSize())
	if pop == nil {
		return fmt.Sprintf("%08x  %s ** invalid operand address **", uint64(cip), code)
	}
	return fmt.Sprintf("%08x  %s %d", uint64(cip), code, signed[C](*pop))
}
