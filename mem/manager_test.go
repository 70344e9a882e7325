package mem_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.creack.net/pawn/mem"
)

func TestHarvardIndependentSpaces(t *testing.T) {
	m := mem.NewHarvard[uint32](mem.NewContiguous[uint32](), mem.NewContiguous[uint32]())
	code := []uint32{1, 2, 3}
	data := []uint32{4, 5, 6}

	codeVA, ok := m.Code().Map(code)
	require.True(t, ok)
	dataVA, ok := m.Data().Map(data)
	require.True(t, ok)

	// Both segments start at zero of their own space.
	assert.Equal(t, uint32(0), codeVA)
	assert.Equal(t, uint32(0), dataVA)
	assert.Same(t, &code[0], m.Code().Translate(0))
	assert.Same(t, &data[0], m.Data().Translate(0))
}

func TestNeumannSharedSpace(t *testing.T) {
	m := mem.NewNeumann[uint32](mem.NewPaged[uint32](5))
	code := []uint32{1, 2, 3}
	data := []uint32{4, 5, 6}

	codeVA, ok := m.Code().Map(code)
	require.True(t, ok)
	dataVA, ok := m.Data().Map(data)
	require.True(t, ok)

	assert.NotEqual(t, codeVA, dataVA, "one address space, two mappings")
	assert.Same(t, m.Code(), m.Data(), "same backing both ways")
	// Code is readable through the data view and vice versa.
	assert.Same(t, &code[0], m.Data().Translate(codeVA))
	assert.Same(t, &data[0], m.Code().Translate(dataVA))
}
