package mem_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.creack.net/pawn/mem"
)

// 8 index bits over 16-bit cells: 256 slots of 256 bytes (128 cells).
func newPaged16() *mem.Paged[uint16] { return mem.NewPaged[uint16](8) }

func TestPagedMapTranslate(t *testing.T) {
	p := newPaged16()
	buf := make([]uint16, 10)

	va, ok := p.Map(buf)
	require.True(t, ok)
	assert.Equal(t, uint16(0), va)

	w := p.Translate(va)
	require.NotNil(t, w)
	*w = 0xABCD
	assert.Equal(t, uint16(0xABCD), buf[0])

	w = p.Translate(va + 2)
	require.NotNil(t, w)
	assert.Same(t, &buf[1], w)

	assert.Nil(t, p.Translate(va+1), "misaligned")
	assert.Nil(t, p.Translate(va+20), "past the mapping")
	assert.Nil(t, p.Translate(0x0100), "next page unmapped")
}

func TestPagedMultiPageMapping(t *testing.T) {
	p := newPaged16()
	buf := make([]uint16, 300) // 600 bytes: two full pages and 88 bytes.

	va, ok := p.Map(buf)
	require.True(t, ok)
	require.Equal(t, uint16(0), va)

	assert.Same(t, &buf[128], p.Translate(0x0100))
	assert.Same(t, &buf[256], p.Translate(0x0200))
	assert.Same(t, &buf[299], p.Translate(0x0200+86))
	assert.Nil(t, p.Translate(0x0200+88), "final page is short")
}

func TestPagedFirstFit(t *testing.T) {
	p := newPaged16()
	a := make([]uint16, 8)
	b := make([]uint16, 8)

	vaA, ok := p.Map(a)
	require.True(t, ok)
	vaB, ok := p.Map(b)
	require.True(t, ok)
	assert.Equal(t, uint16(0x0000), vaA)
	assert.Equal(t, uint16(0x0100), vaB)

	p.Unmap(vaA, len(a))
	assert.Nil(t, p.Translate(vaA))

	c := make([]uint16, 4)
	vaC, ok := p.Map(c)
	require.True(t, ok)
	assert.Equal(t, vaA, vaC, "freed low slot is reused first")
}

func TestPagedRunSpansFreeSlots(t *testing.T) {
	p := newPaged16()
	// Occupy page 1, leaving page 0 free: a two-page mapping must skip
	// past the single free slot.
	one := make([]uint16, 8)
	blocker := make([]uint16, 8)
	va0, ok := p.Map(one)
	require.True(t, ok)
	require.Equal(t, uint16(0), va0)
	vaBlock, ok := p.Map(blocker)
	require.True(t, ok)
	require.Equal(t, uint16(0x0100), vaBlock)
	p.Unmap(va0, len(one))

	big := make([]uint16, 256) // two pages.
	vaBig, ok := p.Map(big)
	require.True(t, ok)
	assert.Equal(t, uint16(0x0200), vaBig)
	assert.Same(t, &big[0], p.Translate(vaBig))
	assert.Same(t, &big[128], p.Translate(vaBig+0x0100))
}

func TestPagedZeroLengthMap(t *testing.T) {
	p := newPaged16()
	va, ok := p.Map(nil)
	require.True(t, ok)
	assert.Equal(t, uint16(0xFFFE), va, "canonical highest aligned address")
	assert.Nil(t, p.Translate(va), "nothing is actually reserved")

	// The address space is untouched: a real mapping still lands at 0.
	buf := make([]uint16, 4)
	va, ok = p.Map(buf)
	require.True(t, ok)
	assert.Equal(t, uint16(0), va)
}

func TestPagedExhaustion(t *testing.T) {
	p := newPaged16()
	// One cell more than the whole address space holds.
	_, ok := p.Map(make([]uint16, 32769))
	assert.False(t, ok)
}

func TestPagedUnmapIdempotent(t *testing.T) {
	p := newPaged16()
	buf := make([]uint16, 8)
	va, ok := p.Map(buf)
	require.True(t, ok)

	p.Unmap(va, len(buf))
	p.Unmap(va, len(buf))
	assert.Nil(t, p.Translate(va))

	_, ok = p.Map(buf)
	assert.True(t, ok)
}
