package loader

import "go.creack.net/pawn/op"

// ExtractCode decodes just the code image of a module, without resolving
// natives or bringing up a VM. Listings and viewers use it to show code
// the host could not otherwise run.
func ExtractCode[C op.Cell](buf []byte) ([]C, op.LoaderError) {
	hdr, ok := op.ParseHeader(buf)
	if !ok {
		return nil, op.ErrInvalidFile
	}
	if hdr.Magic != op.Magic[C]() {
		switch hdr.Magic {
		case op.Magic16, op.Magic32, op.Magic64:
			return nil, op.ErrWrongCellSize
		default:
			return nil, op.ErrInvalidFile
		}
	}
	if uint64(hdr.Size) > uint64(len(buf)) {
		return nil, op.ErrInvalidFile
	}
	code, ok := selectCells[C](buf, hdr.Cod, hdr.Dat)
	if !ok {
		return nil, op.ErrInvalidFile
	}
	return code, op.LoadOK
}

// Stat is the static description of a module: the header and the symbol
// names it declares, with their raw file addresses.
type Stat struct {
	Header  op.Header
	Publics map[string]uint32
	Pubvars map[string]uint32
	Natives []string // in SYSREQ index order.
}

// Describe reads the header and symbol tables without binding anything,
// for any recognized cell width. Inspection tooling uses it where Init
// would insist on resolvable natives.
func Describe(buf []byte) (Stat, op.LoaderError) {
	hdr, ok := op.ParseHeader(buf)
	if !ok {
		return Stat{}, op.ErrInvalidFile
	}
	switch hdr.Magic {
	case op.Magic16, op.Magic32, op.Magic64:
	default:
		return Stat{}, op.ErrInvalidFile
	}
	if uint64(hdr.Size) > uint64(len(buf)) || hdr.Defsize < 8 {
		return Stat{}, op.ErrInvalidFile
	}

	st := Stat{Header: hdr, Publics: map[string]uint32{}, Pubvars: map[string]uint32{}}
	defsize := int(hdr.Defsize)
	named := func(table map[string]uint32) func(rec []byte) bool {
		return func(rec []byte) bool {
			name, ok := readName(buf, op.Endian.Uint32(rec[4:]))
			if !ok {
				return false
			}
			table[name] = op.Endian.Uint32(rec)
			return true
		}
	}
	if !eachRecord(buf, hdr.Publics, hdr.Natives, defsize, named(st.Publics)) {
		return Stat{}, op.ErrInvalidFile
	}
	if !eachRecord(buf, hdr.Natives, hdr.Libraries, defsize, func(rec []byte) bool {
		name, ok := readName(buf, op.Endian.Uint32(rec[4:]))
		if !ok {
			return false
		}
		st.Natives = append(st.Natives, name)
		return true
	}) {
		return Stat{}, op.ErrInvalidFile
	}
	if !eachRecord(buf, hdr.Pubvars, hdr.Tags, defsize, named(st.Pubvars)) {
		return Stat{}, op.ErrInvalidFile
	}
	return st, op.LoadOK
}
