package asm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.creack.net/pawn/asm"
	"go.creack.net/pawn/op"
)

func TestLeadingHaltConvention(t *testing.T) {
	b := asm.NewBuilder[uint32]()
	image := b.Build()

	hdr, ok := op.ParseHeader(image)
	require.True(t, ok)
	assert.Equal(t, uint32(op.Halt), op.Endian.Uint32(image[hdr.Cod:]))
	assert.Equal(t, uint32(0), op.Endian.Uint32(image[hdr.Cod+4:]))
}

func TestHeaderLayout(t *testing.T) {
	b := asm.NewBuilder[uint32]()
	f := b.Here()
	b.Op(op.Proc)
	b.Op(op.Retn)
	b.Public("f", f)
	b.Main(f)
	b.Data(1, 2, 3)
	b.Reserve(16)
	image := b.Build()

	hdr, ok := op.ParseHeader(image)
	require.True(t, ok)
	assert.Equal(t, op.Magic32, hdr.Magic)
	assert.Equal(t, uint8(op.Version), hdr.FileVer)
	assert.Equal(t, uint16(8), hdr.Defsize)
	assert.Equal(t, uint32(len(image)), hdr.Size)
	assert.Equal(t, hdr.Size, hdr.Hea)
	assert.Equal(t, hdr.Hea-hdr.Dat, uint32(3*4), "three data cells")
	assert.Equal(t, hdr.Hea+16*4, hdr.Stp)
	assert.Equal(t, uint32(2*4), hdr.Cip, "main right after the leading halt")
	assert.Equal(t, hdr.Libraries, hdr.Pubvars, "no library table")
}

func TestNoMain(t *testing.T) {
	b := asm.NewBuilder[uint32]()
	image := b.Build()
	hdr, ok := op.ParseHeader(image)
	require.True(t, ok)
	assert.Equal(t, op.NoMain, hdr.Cip)
}

func TestBranchDisplacements(t *testing.T) {
	b := asm.NewBuilder[uint32]()
	l := b.NewLabel()
	start := b.Here()
	b.Branch(op.Jump, l) // cells 2,3.
	b.Op(op.Nop)         // cell 4.
	b.Place(l)           // cell 5.
	b.Branch(op.Call, start)
	image := b.Build()

	hdr, _ := op.ParseHeader(image)
	cell := func(i int) int32 { return int32(op.Endian.Uint32(image[int(hdr.Cod)+4*i:])) }

	// Displacements are relative to the opcode's own address.
	assert.Equal(t, int32(op.Jump), cell(2))
	assert.Equal(t, int32((5-2)*4), cell(3))
	assert.Equal(t, int32(op.Call), cell(5))
	assert.Equal(t, int32((2-5)*4), cell(6), "backward displacement is negative")
}

func TestCaseTableEncoding(t *testing.T) {
	b := asm.NewBuilder[uint32]()
	def := b.NewLabel()
	c1 := b.NewLabel()
	tbl := b.CaseTable(def, asm.Case[uint32]{Value: 7, Target: c1})
	b.Place(def) // cell 7.
	b.Op(op.Nop)
	b.Place(c1) // cell 8.
	b.Op(op.Nop)
	_ = tbl
	image := b.Build()

	hdr, _ := op.ParseHeader(image)
	cell := func(i int) int32 { return int32(op.Endian.Uint32(image[int(hdr.Cod)+4*i:])) }

	// Table starts at cell 2: marker, count, default, value, target.
	assert.Equal(t, int32(op.Casetbl), cell(2))
	assert.Equal(t, int32(1), cell(3))
	assert.Equal(t, int32((7-4)*4), cell(4), "default displacement from its own cell")
	assert.Equal(t, int32(7), cell(5))
	assert.Equal(t, int32((8-6)*4), cell(6))
}

func TestNativeIndices(t *testing.T) {
	b := asm.NewBuilder[uint32]()
	assert.Equal(t, uint32(0), b.Native("first"))
	assert.Equal(t, uint32(1), b.Native("second"))
}

func TestSignedOperandHelper(t *testing.T) {
	assert.Equal(t, uint32(0xFFFFFFFC), asm.I[uint32](-4))
	assert.Equal(t, uint16(0xFFFC), asm.I[uint16](-4))
}

func TestOperandArityEnforced(t *testing.T) {
	b := asm.NewBuilder[uint32]()
	assert.Panics(t, func() { b.Op(op.ConstPri) })
	assert.Panics(t, func() { b.Op(op.Nop, 1) })
}
