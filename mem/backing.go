// Package mem maps abstract machine virtual addresses to host word storage.
//
// A Backing owns one strategy for the translation; a Manager composes
// backings into the code/data topology the interpreter sees. The
// interpreter never touches a backing directly, it always goes through the
// manager of its instance.
package mem

import "go.creack.net/pawn/op"

// Backing translates cell-aligned virtual addresses into host words.
//
// Translate returns a pointer to the word at va, or nil when va is
// misaligned, unmapped, or past the valid size of its mapping. Map makes
// buf addressable and returns the virtual address of its first cell. Unmap
// releases a mapping; it is idempotent, translations of the released range
// fail cleanly afterwards.
type Backing[C op.Cell] interface {
	Translate(va C) *C
	Map(buf []C) (va C, ok bool)
	Unmap(va C, cells int)
}

// highestVA is the canonical address returned for zero-length mappings:
// the highest cell-aligned value representable in C. Nothing is reserved
// there; translating it fails like any unmapped address.
func highestVA[C op.Cell]() C {
	cb := op.CellBytes[C]()
	return ^C(0) / cb * cb
}

// Manager is the topology the interpreter addresses memory through.
type Manager[C op.Cell] interface {
	Code() Backing[C]
	Data() Backing[C]
}

// Harvard keeps code and data in two independent address spaces.
type Harvard[C op.Cell] struct {
	code Backing[C]
	data Backing[C]
}

func NewHarvard[C op.Cell](code, data Backing[C]) *Harvard[C] {
	return &Harvard[C]{code: code, data: data}
}

func (h *Harvard[C]) Code() Backing[C] { return h.code }
func (h *Harvard[C]) Data() Backing[C] { return h.data }

// Neumann shares one address space between code and data.
type Neumann[C op.Cell] struct {
	backing Backing[C]
}

func NewNeumann[C op.Cell](backing Backing[C]) *Neumann[C] {
	return &Neumann[C]{backing: backing}
}

func (n *Neumann[C]) Code() Backing[C] { return n.backing }
func (n *Neumann[C]) Data() Backing[C] { return n.backing }
