package op

import "encoding/binary"

// Endian is the byte order of the AMX container format.
var Endian = binary.LittleEndian

// HeaderSize is the fixed size of the on-disk header in bytes.
const HeaderSize = 60

// Version is the file format and abstract machine version this engine
// implements.
const Version = 11

// Magic values, one per cell width.
const (
	Magic32 uint16 = 0xF1E0
	Magic64 uint16 = 0xF1E1
	Magic16 uint16 = 0xF1E2
)

// Magic returns the magic value matching the cell width of C, or 0 if the
// width has no container encoding.
func Magic[C Cell]() uint16 {
	switch CellBits[C]() {
	case 16:
		return Magic16
	case 32:
		return Magic32
	case 64:
		return Magic64
	}
	return 0
}

// Header flag bits.
const (
	FlagOverlay  uint16 = 1 << 0
	FlagDebug    uint16 = 1 << 1
	FlagNoChecks uint16 = 1 << 2
	FlagSleep    uint16 = 1 << 3
	FlagDsegInit uint16 = 1 << 5
)

// NoMain is the value of the header CIP field when the module exports no
// main function.
const NoMain = ^uint32(0)

// Header is the decoded fixed part of an AMX module. All offsets are byte
// offsets from the start of the file.
type Header struct {
	Size       uint32
	Magic      uint16
	FileVer    uint8
	AmxVer     uint8
	Flags      uint16
	Defsize    uint16
	Cod        uint32
	Dat        uint32
	Hea        uint32
	Stp        uint32
	Cip        uint32
	Publics    uint32
	Natives    uint32
	Libraries  uint32
	Pubvars    uint32
	Tags       uint32
	Nametable  uint32
	Overlays   uint32
}

// ParseHeader decodes the fixed header. It only requires the buffer to hold
// HeaderSize bytes; all further validation is the loader's business.
func ParseHeader(buf []byte) (Header, bool) {
	if len(buf) < HeaderSize {
		return Header{}, false
	}
	return Header{
		Size:      Endian.Uint32(buf[0:]),
		Magic:     Endian.Uint16(buf[4:]),
		FileVer:   buf[6],
		AmxVer:    buf[7],
		Flags:     Endian.Uint16(buf[8:]),
		Defsize:   Endian.Uint16(buf[10:]),
		Cod:       Endian.Uint32(buf[12:]),
		Dat:       Endian.Uint32(buf[16:]),
		Hea:       Endian.Uint32(buf[20:]),
		Stp:       Endian.Uint32(buf[24:]),
		Cip:       Endian.Uint32(buf[28:]),
		Publics:   Endian.Uint32(buf[32:]),
		Natives:   Endian.Uint32(buf[36:]),
		Libraries: Endian.Uint32(buf[40:]),
		Pubvars:   Endian.Uint32(buf[44:]),
		Tags:      Endian.Uint32(buf[48:]),
		Nametable: Endian.Uint32(buf[52:]),
		Overlays:  Endian.Uint32(buf[56:]),
	}, true
}

// Marshal appends the 60-byte encoding of h to dst.
func (h Header) Marshal(dst []byte) []byte {
	var b [HeaderSize]byte
	Endian.PutUint32(b[0:], h.Size)
	Endian.PutUint16(b[4:], h.Magic)
	b[6] = h.FileVer
	b[7] = h.AmxVer
	Endian.PutUint16(b[8:], h.Flags)
	Endian.PutUint16(b[10:], h.Defsize)
	Endian.PutUint32(b[12:], h.Cod)
	Endian.PutUint32(b[16:], h.Dat)
	Endian.PutUint32(b[20:], h.Hea)
	Endian.PutUint32(b[24:], h.Stp)
	Endian.PutUint32(b[28:], h.Cip)
	Endian.PutUint32(b[32:], h.Publics)
	Endian.PutUint32(b[36:], h.Natives)
	Endian.PutUint32(b[40:], h.Libraries)
	Endian.PutUint32(b[44:], h.Pubvars)
	Endian.PutUint32(b[48:], h.Tags)
	Endian.PutUint32(b[52:], h.Nametable)
	Endian.PutUint32(b[56:], h.Overlays)
	return append(dst, b[:]...)
}
