package mem

import (
	"fmt"
	"math/bits"
	"unsafe"

	"go.creack.net/pawn/op"
)

// Partial projects a subset of the host address bits into the virtual
// address space: the low validBits bits of a virtual address are identical
// to the low bits of the host pointer it stands for, the high bits are
// recorded at Map time. A single mapping can live at a time.
//
// Translation reconstructs the host address and range-checks it against
// the recorded mapping, so a stray virtual address fails instead of
// reaching outside the buffer.
type Partial[C op.Cell] struct {
	validBits uint
	lowMask   uintptr
	buf       []C
	base      uintptr // host address of buf[0].
}

// NewPartial returns a partial-address-space backing keeping validBits
// host-pointer bits. validBits must fit both the host pointer and the cell
// width.
func NewPartial[C op.Cell](validBits uint) *Partial[C] {
	if validBits == 0 || validBits > uint(bits.UintSize) || validBits > uint(op.CellBits[C]()) {
		panic(fmt.Sprintf("mem: %d valid bits out of range", validBits))
	}
	return &Partial[C]{
		validBits: validBits,
		lowMask:   ^uintptr(0) >> (uint(bits.UintSize) - validBits),
	}
}

func (p *Partial[C]) Translate(va C) *C {
	cb := op.CellBytes[C]()
	if p.buf == nil || va%cb != 0 {
		return nil
	}
	host := (p.base &^ p.lowMask) | (uintptr(va) & p.lowMask)
	if host < p.base {
		return nil
	}
	idx := (host - p.base) / uintptr(cb)
	if idx >= uintptr(len(p.buf)) {
		return nil
	}
	return &p.buf[idx]
}

func (p *Partial[C]) Map(buf []C) (C, bool) {
	cb := op.CellBytes[C]()
	if len(buf) == 0 {
		return highestVA[C](), true
	}
	if p.buf != nil {
		return 0, false
	}
	base := uintptr(unsafe.Pointer(&buf[0]))
	if base%uintptr(cb) != 0 {
		return 0, false
	}
	// The mapping may not wrap around in the projected low bits: every
	// cell must keep the same high bits as the base.
	end := base + uintptr(len(buf)-1)*uintptr(cb)
	if base&^p.lowMask != end&^p.lowMask {
		return 0, false
	}
	p.buf = buf
	p.base = base
	return C(base & p.lowMask), true
}

func (p *Partial[C]) Unmap(va C, cells int) {
	p.buf = nil
	p.base = 0
}
