// Package amx implements the PAWN abstract machine: a register VM executing
// one module's code segment against a flat cell-addressed data segment.
//
// The VM is generic over the cell width. Instantiations pair an unsigned
// cell type with its signed twin, e.g. amx.VM[uint32, int32]; the aliases
// VM16/VM32/VM64 cover the three widths the container format encodes.
//
// A VM owns nothing: code and data buffers belong to whoever mapped them
// (normally the loader), the VM reaches them through its memory manager.
package amx

import (
	"go.creack.net/pawn/mem"
	"go.creack.net/pawn/op"
)

// Callback receives every SYSREQ, BREAK and single-step event of a VM.
// index is the SYSREQ operand, or one of the reserved values below. stk is
// the current stack pointer, pri points at the PRI register so the callback
// can deposit a result. Any result other than op.Success aborts the
// enclosing Call with that error.
type Callback[C op.Cell, S op.SCell] func(vm *VM[C, S], user any, index, stk C, pri *C) op.Error

// CBSingleStep is the reserved callback index fired before every
// instruction.
func CBSingleStep[C op.Cell]() C { return ^C(0) }

// CBBreak is the reserved callback index fired by the BREAK instruction.
func CBBreak[C op.Cell]() C { return ^C(0) - 1 }

// VM is a single abstract machine instance. Not safe for concurrent use;
// independent instances may run concurrently.
//
// The register fields are exported for hosts and debug tooling. Writes to
// ALT, FRM, CIP, STP and STK from inside a callback do not stick: the VM
// restores them when the callback returns. PRI carries callback results.
type VM[C op.Cell, S op.SCell] struct {
	PRI C // primary ALU register.
	ALT C // alternate ALU register.
	FRM C // frame pointer, base for the _S addressing modes.
	CIP C // code instruction pointer, byte offset into the code segment.
	STK C // stack pointer, grows down from STP.
	STP C // stack top.
	HEA C // heap top, grows up toward STK.
	COD C // code segment base as mapped by the manager.
	DAT C // data segment base as mapped by the manager.

	Mem mem.Manager[C]

	callback Callback[C, S]
	user     any
	cell     C // cell size in bytes.
}

// Convenience aliases for the supported widths.
type (
	VM16 = VM[uint16, int16]
	VM32 = VM[uint32, int32]
	VM64 = VM[uint64, int64]
)

// New returns a VM addressing memory through m. callback may be nil, in
// which case SYSREQ fails with invalid_operand and debug events are
// skipped.
func New[C op.Cell, S op.SCell](m mem.Manager[C], callback Callback[C, S], user any) *VM[C, S] {
	return &VM[C, S]{
		Mem:      m,
		callback: callback,
		user:     user,
		cell:     op.CellBytes[C](),
	}
}

// CellSize returns the cell width in bytes.
func (vm *VM[C, S]) CellSize() C { return vm.cell }

// InstallCode maps buf as the code segment and records its base in COD.
func (vm *VM[C, S]) InstallCode(buf []C) bool {
	va, ok := vm.Mem.Code().Map(buf)
	if !ok {
		return false
	}
	vm.COD = va
	return true
}

// InstallData maps buf as the data segment, records its base in DAT and
// seeds the stack and heap registers: the stack runs down from the last
// cell of the buffer, the heap starts at heapOffset cells.
func (vm *VM[C, S]) InstallData(buf []C, heapOffset int) bool {
	va, ok := vm.Mem.Data().Map(buf)
	if !ok {
		return false
	}
	vm.DAT = va
	vm.STP = C(len(buf)-1) * vm.cell
	vm.STK = vm.STP
	vm.HEA = C(heapOffset) * vm.cell
	return true
}

// DataV2P translates a data-segment virtual address to its host word.
// Returns nil on misaligned or unmapped addresses.
func (vm *VM[C, S]) DataV2P(v C) *C { return vm.Mem.Data().Translate(vm.DAT + v) }

// CodeV2P translates a code-segment virtual address to its host word.
func (vm *VM[C, S]) CodeV2P(v C) *C { return vm.Mem.Code().Translate(vm.COD + v) }

// Push writes v to the stack.
func (vm *VM[C, S]) Push(v C) op.Error {
	vm.STK -= vm.cell
	p := vm.DataV2P(vm.STK)
	if p == nil {
		return op.ErrAccessViolation
	}
	*p = v
	return op.Success
}

// Pop reads the cell at the stack pointer and releases it.
func (vm *VM[C, S]) Pop() (C, op.Error) {
	p := vm.DataV2P(vm.STK)
	if p == nil {
		return 0, op.ErrAccessViolation
	}
	vm.STK += vm.cell
	return *p, op.Success
}

// Drop releases one stack cell without reading it.
func (vm *VM[C, S]) Drop() { vm.STK += vm.cell }

// fireCallback runs the host callback with the registers it may not change
// latched around the call. PRI is the one register a callback owns.
func (vm *VM[C, S]) fireCallback(index C) op.Error {
	if vm.callback == nil {
		if index == CBSingleStep[C]() || index == CBBreak[C]() {
			return op.Success
		}
		return op.ErrInvalidOperand
	}
	alt, frm, cip := vm.ALT, vm.FRM, vm.CIP
	stp, stk := vm.STP, vm.STK
	result := vm.callback(vm, vm.user, index, vm.STK, &vm.PRI)
	vm.ALT, vm.FRM, vm.CIP = alt, frm, cip
	vm.STP, vm.STK = stp, stk
	return result
}

// Call pushes args left to right followed by their total byte size, then
// executes from cip until the frame returns to the zero sentinel. The
// compiler places a HALT at code offset 0, so a runaway return terminates
// deterministically. Returns PRI as the routine's return value.
//
// A native may re-enter Call on the same VM; the nested frame stacks below
// the caller's and unwinds before the native returns.
func (vm *VM[C, S]) Call(cip C, args ...C) (C, op.Error) {
	var size C
	for _, arg := range args {
		if err := vm.Push(arg); err != op.Success {
			return vm.PRI, err
		}
		size += vm.cell
	}
	if err := vm.Push(size); err != op.Success {
		return vm.PRI, err
	}
	return vm.callRaw(cip)
}

func (vm *VM[C, S]) callRaw(cip C) (C, op.Error) {
	result := vm.Push(0) // Sentinel return address.
	vm.CIP = cip
	for result == op.Success && vm.CIP != 0 {
		result = vm.fireCallback(CBSingleStep[C]())
		if result != op.Success {
			break
		}
		result = vm.step()
	}
	return vm.PRI, result
}
