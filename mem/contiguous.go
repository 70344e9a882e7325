package mem

import "go.creack.net/pawn/op"

// Contiguous backs the whole address space with a single buffer mapped at
// virtual address zero, so a virtual address is its own offset. Only one
// mapping can live at a time; a second Map fails until Unmap.
type Contiguous[C op.Cell] struct {
	buf    []C
	mapped bool
}

func NewContiguous[C op.Cell]() *Contiguous[C] {
	return &Contiguous[C]{}
}

func (c *Contiguous[C]) Translate(va C) *C {
	cb := op.CellBytes[C]()
	if !c.mapped || va%cb != 0 {
		return nil
	}
	if uint64(va) >= uint64(len(c.buf))*uint64(cb) {
		return nil
	}
	return &c.buf[va/cb]
}

func (c *Contiguous[C]) Map(buf []C) (C, bool) {
	if len(buf) == 0 {
		return highestVA[C](), true
	}
	if c.mapped {
		return 0, false
	}
	c.buf = buf
	c.mapped = true
	return 0, true
}

func (c *Contiguous[C]) Unmap(va C, cells int) {
	c.buf = nil
	c.mapped = false
}
