package op_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.creack.net/pawn/op"
)

func TestOpcodeNumbering(t *testing.T) {
	// The numbering is the compiler's, spot-check the anchors.
	assert.Equal(t, op.Code(0), op.Nop)
	assert.Equal(t, op.Code(33), op.Call)
	assert.Equal(t, op.Code(67), op.Halt)
	assert.Equal(t, op.Code(74), op.Casetbl)
	assert.Equal(t, op.Code(75), op.NumCodes)
}

func TestHasOperand(t *testing.T) {
	assert.True(t, op.Call.HasOperand())
	assert.True(t, op.AlignPri.HasOperand())
	assert.False(t, op.LoadI.HasOperand())
	assert.False(t, op.Retn.HasOperand())
	assert.False(t, op.Code(200).HasOperand())
}

func TestString(t *testing.T) {
	assert.Equal(t, "LOAD.S.pri", op.LoadSPri.String())
	assert.Equal(t, "CASETBL", op.Casetbl.String())
	assert.Equal(t, "*INVALID*", op.Code(100).String())
}

func TestCellTraits(t *testing.T) {
	assert.Equal(t, 16, op.CellBits[uint16]())
	assert.Equal(t, 64, op.CellBits[uint64]())
	assert.Equal(t, uint32(4), op.CellBytes[uint32]())
}

func TestMagicPerWidth(t *testing.T) {
	assert.Equal(t, op.Magic16, op.Magic[uint16]())
	assert.Equal(t, op.Magic32, op.Magic[uint32]())
	assert.Equal(t, op.Magic64, op.Magic[uint64]())
}

func TestHeaderRoundTrip(t *testing.T) {
	hdr := op.Header{Size: 100, Magic: op.Magic32, FileVer: op.Version, AmxVer: op.Version, Defsize: 8, Cod: 60, Dat: 80, Hea: 100, Stp: 120, Cip: op.NoMain}
	buf := hdr.Marshal(nil)
	require.Len(t, buf, op.HeaderSize)

	got, ok := op.ParseHeader(buf)
	require.True(t, ok)
	assert.Equal(t, hdr, got)

	_, ok = op.ParseHeader(buf[:59])
	assert.False(t, ok)
}

func TestErrorStrings(t *testing.T) {
	assert.Equal(t, "halt", op.ErrHalt.Error())
	assert.Equal(t, "wrong cell size", op.ErrWrongCellSize.Error())
	assert.Equal(t, "success", op.Success.String())
}
