package op

import "math/bits"

// Cell is the constraint for the abstract machine word. Every register,
// stack slot, heap slot and code stream unit is one cell. Arithmetic and
// addressing are unsigned; comparisons, shifts, multiplication and division
// go through the signed twin.
type Cell interface {
	~uint16 | ~uint32 | ~uint64
}

// SCell is the signed twin constraint. Instantiations must pair matching
// widths: [uint16, int16], [uint32, int32], [uint64, int64].
type SCell interface {
	~int16 | ~int32 | ~int64
}

// CellBits returns the width of C in bits.
func CellBits[C Cell]() int {
	return bits.OnesCount64(uint64(^C(0)))
}

// CellBytes returns the width of C in bytes, as a cell so it can be used
// directly in address arithmetic.
func CellBytes[C Cell]() C {
	return C(bits.OnesCount64(uint64(^C(0))) / 8)
}
