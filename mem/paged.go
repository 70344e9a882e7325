package mem

import (
	"fmt"

	"go.creack.net/pawn/op"
)

type mapping[C op.Cell] struct {
	buf  []C
	size uint64 // valid bytes reachable through this slot.
}

// Paged splits the address space in 2^indexBits pages: the top indexBits
// bits of a virtual address select a page slot, the remaining low bits are
// the in-page byte offset. Each slot independently carries a host buffer
// and its valid size, so one mapping spanning several pages records a
// shrinking size per slot and the final page of a short mapping does not
// appear fully populated.
type Paged[C op.Cell] struct {
	indexBits  uint
	offsetBits uint
	pageSize   uint64 // bytes per page.
	slots      []mapping[C]
}

// NewPaged returns a paged backing using indexBits page-index bits.
// indexBits must be between 1 and the cell width; anything else is a
// programming error, not a guest-reachable condition.
func NewPaged[C op.Cell](indexBits uint) *Paged[C] {
	cellBits := uint(op.CellBits[C]())
	if indexBits < 1 || indexBits > cellBits {
		panic(fmt.Sprintf("mem: page index bits %d out of range [1, %d]", indexBits, cellBits))
	}
	return &Paged[C]{
		indexBits:  indexBits,
		offsetBits: cellBits - indexBits,
		pageSize:   1 << (cellBits - indexBits),
		slots:      make([]mapping[C], 1<<indexBits),
	}
}

func (p *Paged[C]) pageIndex(va C) C  { return va >> p.offsetBits }
func (p *Paged[C]) pageOffset(va C) C { return va & (^C(0) << p.indexBits >> p.indexBits) }
func (p *Paged[C]) makeVA(index C) C  { return index << p.offsetBits }

// pages returns how many page slots a mapping of size bytes occupies.
func (p *Paged[C]) pages(size uint64) int {
	return int((size + p.pageSize - 1) / p.pageSize)
}

func (p *Paged[C]) Translate(va C) *C {
	cb := op.CellBytes[C]()
	if va%cb != 0 {
		return nil
	}
	m := &p.slots[p.pageIndex(va)]
	if m.buf == nil {
		return nil
	}
	off := p.pageOffset(va)
	if uint64(off) >= m.size {
		return nil
	}
	return &m.buf[off/cb]
}

func (p *Paged[C]) Map(buf []C) (C, bool) {
	cb := uint64(op.CellBytes[C]())
	size := uint64(len(buf)) * cb
	if size == 0 {
		return highestVA[C](), true
	}

	count := p.pages(size)
	run := 0
	start := -1
	for i := range p.slots {
		if p.slots[i].buf != nil {
			run = 0
			continue
		}
		run++
		if run == count {
			start = i - count + 1
			break
		}
	}
	if start < 0 {
		return 0, false
	}

	pageCells := p.pageSize / cb
	for i := 0; i < count; i++ {
		p.slots[start+i] = mapping[C]{
			buf:  buf[pageCells*uint64(i):],
			size: size - p.pageSize*uint64(i),
		}
	}
	return p.makeVA(C(start)), true
}

func (p *Paged[C]) Unmap(va C, cells int) {
	cb := uint64(op.CellBytes[C]())
	count := p.pages(uint64(cells) * cb)
	start := int(p.pageIndex(va))
	for i := 0; i < count && start+i < len(p.slots); i++ {
		p.slots[start+i] = mapping[C]{}
	}
}
