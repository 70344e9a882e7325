package loader_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.creack.net/pawn/amx"
	"go.creack.net/pawn/asm"
	"go.creack.net/pawn/loader"
	"go.creack.net/pawn/op"
)

// buildModule assembles a minimal 32-bit module whose main returns 7,
// letting mod add to it before the image is built.
func buildModule(mod func(b *asm.Builder[uint32])) []byte {
	b := asm.NewBuilder[uint32]()
	main := b.Here()
	b.Op(op.Proc)
	b.Op(op.ConstPri, 7)
	b.Op(op.Retn)
	b.Main(main)
	b.Public("main", main)
	if mod != nil {
		mod(b)
	}
	return b.Build()
}

func initModule(t *testing.T, image []byte, cbs loader.Callbacks[uint32, int32]) (*loader.Loader32, op.LoaderError) {
	t.Helper()
	l := loader.NewDefault[uint32, int32]()
	return l, l.Init(image, cbs)
}

func TestInitAndRunMain(t *testing.T) {
	l, res := initModule(t, buildModule(nil), loader.Callbacks[uint32, int32]{})
	require.Equal(t, op.LoadOK, res)

	main := l.GetMain()
	require.NotZero(t, main)
	assert.Equal(t, main, l.GetPublic("main"))

	ret, err := l.VM().Call(main)
	require.Equal(t, op.Success, err)
	assert.Equal(t, uint32(7), ret)
}

func TestShortBufferRejected(t *testing.T) {
	_, res := initModule(t, make([]byte, 59), loader.Callbacks[uint32, int32]{})
	assert.Equal(t, op.ErrInvalidFile, res)
}

func TestMagicMismatch(t *testing.T) {
	image := buildModule(nil)

	// A recognized magic of another width is a cell size problem...
	op.Endian.PutUint16(image[4:], op.Magic16)
	_, res := initModule(t, image, loader.Callbacks[uint32, int32]{})
	assert.Equal(t, op.ErrWrongCellSize, res)

	// ...an unrecognized one is garbage.
	op.Endian.PutUint16(image[4:], 0x1234)
	_, res = initModule(t, image, loader.Callbacks[uint32, int32]{})
	assert.Equal(t, op.ErrInvalidFile, res)
}

func TestSizeFieldBeyondBuffer(t *testing.T) {
	image := buildModule(nil)
	op.Endian.PutUint32(image[0:], uint32(len(image)+1))
	_, res := initModule(t, image, loader.Callbacks[uint32, int32]{})
	assert.Equal(t, op.ErrInvalidFile, res)
}

func TestVersionChecks(t *testing.T) {
	image := buildModule(nil)
	image[6] = 10 // file format version.
	_, res := initModule(t, image, loader.Callbacks[uint32, int32]{})
	assert.Equal(t, op.ErrUnsupportedFileVersion, res)

	image = buildModule(nil)
	image[7] = op.Version + 1 // abstract machine version.
	_, res = initModule(t, image, loader.Callbacks[uint32, int32]{})
	assert.Equal(t, op.ErrUnsupportedAmxVersion, res)
}

func TestFlagRejection(t *testing.T) {
	for _, flag := range []uint16{op.FlagOverlay, op.FlagNoChecks, op.FlagSleep} {
		image := buildModule(nil)
		op.Endian.PutUint16(image[8:], flag)
		_, res := initModule(t, image, loader.Callbacks[uint32, int32]{})
		assert.Equal(t, op.ErrFeatureNotSupported, res, "flag %#x", flag)
	}

	// The debug flag is tolerated.
	image := buildModule(nil)
	op.Endian.PutUint16(image[8:], op.FlagDebug)
	_, res := initModule(t, image, loader.Callbacks[uint32, int32]{})
	assert.Equal(t, op.LoadOK, res)
}

func TestDefsizeTooSmall(t *testing.T) {
	image := buildModule(nil)
	op.Endian.PutUint16(image[10:], 7)
	_, res := initModule(t, image, loader.Callbacks[uint32, int32]{})
	assert.Equal(t, op.ErrInvalidFile, res)
}

func TestLibraryTableRejected(t *testing.T) {
	image := buildModule(nil)
	// Shift the pubvars offset so the library range becomes non-empty.
	op.Endian.PutUint32(image[44:], op.Endian.Uint32(image[44:])+8)
	_, res := initModule(t, image, loader.Callbacks[uint32, int32]{})
	assert.Equal(t, op.ErrFeatureNotSupported, res)
}

func TestNameRunningOffBufferRejected(t *testing.T) {
	image := buildModule(nil)
	// Point the first public's name offset past the end of the file.
	publics := op.Endian.Uint32(image[32:])
	op.Endian.PutUint32(image[publics+4:], uint32(len(image)))
	_, res := initModule(t, image, loader.Callbacks[uint32, int32]{})
	assert.Equal(t, op.ErrInvalidFile, res)
}

func TestNoMainSentinel(t *testing.T) {
	b := asm.NewBuilder[uint32]()
	f := b.Here()
	b.Op(op.Proc)
	b.Op(op.ConstPri, 1)
	b.Op(op.Retn)
	b.Public("f", f)

	l, res := initModule(t, b.Build(), loader.Callbacks[uint32, int32]{})
	require.Equal(t, op.LoadOK, res)
	assert.Zero(t, l.GetMain())
	assert.NotZero(t, l.GetPublic("f"))
}

func TestNativeResolution(t *testing.T) {
	noop := func(vm *amx.VM32, l *loader.Loader32, user any, argc, argv uint32, retval *uint32) op.Error {
		return op.Success
	}
	image := buildModule(func(b *asm.Builder[uint32]) {
		b.Native("beta")
		b.Native("alpha")
	})

	// Registration order does not matter, file order decides the index.
	l, res := initModule(t, image, loader.Callbacks[uint32, int32]{
		Natives: []loader.NativeDef[uint32, int32]{
			{Name: "alpha", Fn: noop},
			{Name: "beta", Fn: noop},
		},
	})
	require.Equal(t, op.LoadOK, res)
	assert.Equal(t, []string{"beta", "alpha"}, l.NativeNames())

	// A module native the host did not register is a resolution failure.
	_, res = initModule(t, image, loader.Callbacks[uint32, int32]{
		Natives: []loader.NativeDef[uint32, int32]{{Name: "alpha", Fn: noop}},
	})
	assert.Equal(t, op.ErrNativeNotResolved, res)
}

func TestPubvars(t *testing.T) {
	image := buildModule(func(b *asm.Builder[uint32]) {
		addr := b.Data(123)
		b.Pubvar("answer", addr)
	})
	l, res := initModule(t, image, loader.Callbacks[uint32, int32]{})
	require.Equal(t, op.LoadOK, res)

	va := l.GetPubvar("answer")
	p := l.VM().DataV2P(va)
	require.NotNil(t, p)
	assert.Equal(t, uint32(123), *p)
	assert.Zero(t, l.GetPubvar("missing"))
}

func TestInitIdempotent(t *testing.T) {
	image := buildModule(func(b *asm.Builder[uint32]) {
		b.Pubvar("v", b.Data(5))
	})
	l := loader.NewDefault[uint32, int32]()

	require.Equal(t, op.LoadOK, l.Init(image, loader.Callbacks[uint32, int32]{}))
	publics, pubvars, main := l.Publics(), l.Pubvars(), l.GetMain()

	require.Equal(t, op.LoadOK, l.Init(image, loader.Callbacks[uint32, int32]{}))
	assert.Equal(t, publics, l.Publics())
	assert.Equal(t, pubvars, l.Pubvars())
	assert.Equal(t, main, l.GetMain())

	ret, err := l.VM().Call(l.GetMain())
	require.Equal(t, op.Success, err)
	assert.Equal(t, uint32(7), ret)
}

func TestExtractCode(t *testing.T) {
	image := buildModule(nil)
	code, res := loader.ExtractCode[uint32](image)
	require.Equal(t, op.LoadOK, res)
	require.NotEmpty(t, code)
	assert.Equal(t, uint32(op.Halt), code[0], "leading halt convention")

	_, res = loader.ExtractCode[uint16](image)
	assert.Equal(t, op.ErrWrongCellSize, res)
}
