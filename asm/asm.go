// Package asm builds loadable AMX module images in memory.
//
// It is a programmatic builder, not a text assembler: callers emit opcodes
// and data cells, place labels, and receive a container image with the
// header, symbol tables and name table filled in. Branch operands and case
// table entries are self-relative displacements resolved at Build time, so
// emitted code is position independent within the code segment.
package asm

import (
	"fmt"

	"go.creack.net/pawn/op"
)

// Label identifies a code position. Create with NewLabel, pin with Place,
// reference from branch and call sites in any order.
type Label int

type fixup struct {
	at    int // cell to patch.
	base  int // cell the displacement is measured from.
	label Label
}

type public struct {
	name  string
	label Label
}

type pubvar struct {
	name string
	addr uint32 // byte offset into the data segment.
}

// Builder accumulates one module. The zero value is not ready to use;
// NewBuilder seeds the leading HALT convention.
type Builder[C op.Cell] struct {
	code   []C
	data   []C
	labels []int // label -> code cell index, -1 while unplaced.
	fixups []fixup

	publics []public
	natives []string
	pubvars []pubvar
	mainSet bool
	mainLbl Label
	reserve int // heap + stack cells beyond the initialized data.
}

// NewBuilder returns a builder with the conventional HALT 0 at code offset
// zero (the sentinel return address lands on it) and room for 256 stack
// and heap cells unless Reserve changes it.
func NewBuilder[C op.Cell]() *Builder[C] {
	b := &Builder[C]{reserve: 256}
	b.Op(op.Halt, 0)
	return b
}

// I converts a signed value to its cell representation.
func I[C op.Cell](v int64) C { return C(v) }

// Reserve sets how many zeroed cells of heap and stack space the loader
// will furnish beyond the initialized data image.
func (b *Builder[C]) Reserve(cells int) { b.reserve = cells }

// NewLabel allocates an unplaced label.
func (b *Builder[C]) NewLabel() Label {
	b.labels = append(b.labels, -1)
	return Label(len(b.labels) - 1)
}

// Place pins l at the current code position.
func (b *Builder[C]) Place(l Label) {
	b.labels[l] = len(b.code)
}

// Here allocates a label placed at the current code position.
func (b *Builder[C]) Here() Label {
	l := b.NewLabel()
	b.Place(l)
	return l
}

// Op emits an opcode and its operand, if the opcode takes one.
func (b *Builder[C]) Op(code op.Code, operand ...C) {
	want := 0
	if code.HasOperand() {
		want = 1
	}
	if len(operand) != want {
		panic(fmt.Sprintf("asm: %v takes %d operand(s), got %d", code, want, len(operand)))
	}
	b.code = append(b.code, C(code))
	b.code = append(b.code, operand...)
}

// Branch emits a control transfer (CALL, JUMP, JZER, JNZ) to l. The
// operand is the displacement from the opcode's own address.
func (b *Builder[C]) Branch(code op.Code, l Label) {
	base := len(b.code)
	b.code = append(b.code, C(code), 0)
	b.fixups = append(b.fixups, fixup{at: base + 1, base: base, label: l})
}

// Case is one (test value, target) record of a case table.
type Case[C op.Cell] struct {
	Value  C
	Target Label
}

// Switch emits a SWITCH referencing the case table at l.
func (b *Builder[C]) Switch(l Label) { b.Branch(op.Switch, l) }

// CaseTable emits the table itself: marker, record count, default branch
// and the records. Each displacement is measured from its own cell.
func (b *Builder[C]) CaseTable(def Label, cases ...Case[C]) Label {
	l := b.Here()
	b.code = append(b.code, C(op.Casetbl), C(len(cases)))
	at := len(b.code)
	b.code = append(b.code, 0)
	b.fixups = append(b.fixups, fixup{at: at, base: at, label: def})
	for _, c := range cases {
		b.code = append(b.code, c.Value)
		at = len(b.code)
		b.code = append(b.code, 0)
		b.fixups = append(b.fixups, fixup{at: at, base: at, label: c.Target})
	}
	return l
}

// Data appends cells to the data segment and returns the byte address of
// the first one.
func (b *Builder[C]) Data(cells ...C) C {
	addr := C(len(b.data)) * op.CellBytes[C]()
	b.data = append(b.data, cells...)
	return addr
}

// Public exports the code at l under name.
func (b *Builder[C]) Public(name string, l Label) {
	b.publics = append(b.publics, public{name: name, label: l})
}

// Pubvar exports the data cell at addr under name.
func (b *Builder[C]) Pubvar(name string, addr C) {
	b.pubvars = append(b.pubvars, pubvar{name: name, addr: uint32(addr)})
}

// Native imports a named native and returns its SYSREQ index.
func (b *Builder[C]) Native(name string) C {
	b.natives = append(b.natives, name)
	return C(len(b.natives) - 1)
}

// Main marks l as the module entry point.
func (b *Builder[C]) Main(l Label) {
	b.mainSet = true
	b.mainLbl = l
}

func (b *Builder[C]) resolve(l Label) int {
	at := b.labels[l]
	if at < 0 {
		panic(fmt.Sprintf("asm: label %d never placed", l))
	}
	return at
}

// Build resolves fixups and assembles the container image.
func (b *Builder[C]) Build() []byte {
	cb := op.CellBytes[C]()
	for _, f := range b.fixups {
		b.code[f.at] = C(b.resolve(f.label)-f.base) * cb
	}

	// Layout: header, symbol tables, name table, code, data.
	const recSize = 8
	publics := uint32(op.HeaderSize)
	natives := publics + uint32(recSize*len(b.publics))
	libraries := natives + uint32(recSize*len(b.natives))
	pubvars := libraries
	tags := pubvars + uint32(recSize*len(b.pubvars))
	nametable := tags

	// Name table: every symbol name, NUL terminated, in table order.
	nameOff := make(map[string]uint32)
	var names []byte
	addName := func(s string) {
		if _, ok := nameOff[s]; ok {
			return
		}
		nameOff[s] = nametable + uint32(len(names))
		names = append(names, s...)
		names = append(names, 0)
	}
	for _, p := range b.publics {
		addName(p.name)
	}
	for _, n := range b.natives {
		addName(n)
	}
	for _, v := range b.pubvars {
		addName(v.name)
	}

	cod := nametable + uint32(len(names))
	dat := cod + uint32(len(b.code))*uint32(cb)
	hea := dat + uint32(len(b.data))*uint32(cb)
	stp := hea + uint32(b.reserve)*uint32(cb)

	cip := op.NoMain
	if b.mainSet {
		cip = uint32(b.resolve(b.mainLbl)) * uint32(cb)
	}

	hdr := op.Header{
		Size:      hea,
		Magic:     op.Magic[C](),
		FileVer:   op.Version,
		AmxVer:    op.Version,
		Defsize:   recSize,
		Cod:       cod,
		Dat:       dat,
		Hea:       hea,
		Stp:       stp,
		Cip:       cip,
		Publics:   publics,
		Natives:   natives,
		Libraries: libraries,
		Pubvars:   pubvars,
		Tags:      tags,
		Nametable: nametable,
	}

	out := hdr.Marshal(make([]byte, 0, hea))
	rec := func(addr, name uint32) {
		var r [recSize]byte
		op.Endian.PutUint32(r[0:], addr)
		op.Endian.PutUint32(r[4:], name)
		out = append(out, r[:]...)
	}
	for _, p := range b.publics {
		rec(uint32(b.resolve(p.label))*uint32(cb), nameOff[p.name])
	}
	for i, n := range b.natives {
		rec(uint32(i), nameOff[n])
	}
	for _, v := range b.pubvars {
		rec(v.addr, nameOff[v.name])
	}
	out = append(out, names...)
	out = appendCells(out, b.code)
	out = appendCells(out, b.data)
	return out
}

func appendCells[C op.Cell](dst []byte, cells []C) []byte {
	switch op.CellBytes[C]() {
	case 2:
		for _, c := range cells {
			dst = op.Endian.AppendUint16(dst, uint16(c))
		}
	case 4:
		for _, c := range cells {
			dst = op.Endian.AppendUint32(dst, uint32(c))
		}
	default:
		for _, c := range cells {
			dst = op.Endian.AppendUint64(dst, uint64(c))
		}
	}
	return dst
}
