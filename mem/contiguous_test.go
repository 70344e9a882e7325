package mem_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.creack.net/pawn/mem"
)

func TestContiguousMapTranslate(t *testing.T) {
	c := mem.NewContiguous[uint32]()
	buf := make([]uint32, 8)

	va, ok := c.Map(buf)
	require.True(t, ok)
	assert.Equal(t, uint32(0), va)

	w := c.Translate(0)
	require.NotNil(t, w)
	*w = 42
	assert.Equal(t, uint32(42), buf[0])

	assert.Same(t, &buf[7], c.Translate(28))
	assert.Nil(t, c.Translate(2), "misaligned")
	assert.Nil(t, c.Translate(32), "past the buffer")
}

func TestContiguousSingleMapping(t *testing.T) {
	c := mem.NewContiguous[uint32]()
	_, ok := c.Map(make([]uint32, 4))
	require.True(t, ok)

	_, ok = c.Map(make([]uint32, 4))
	assert.False(t, ok, "second map before unmap")

	c.Unmap(0, 4)
	assert.Nil(t, c.Translate(0))

	_, ok = c.Map(make([]uint32, 4))
	assert.True(t, ok)
}

func TestContiguousZeroLengthMap(t *testing.T) {
	c := mem.NewContiguous[uint32]()
	va, ok := c.Map(nil)
	require.True(t, ok)
	assert.Equal(t, ^uint32(0)/4*4, va)

	// Does not occupy the backing.
	_, ok = c.Map(make([]uint32, 2))
	assert.True(t, ok)
}
