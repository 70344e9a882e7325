// Package loader parses on-disk AMX modules and binds them to a host.
//
// A Loader owns the decoded code and data images, the memory manager and
// the VM executing them; hosts reach the VM through it. Natives and debug
// hooks are supplied at Init and dispatched through a single callback
// trampoline, demultiplexed by index.
package loader

import (
	"bytes"
	"maps"

	"go.creack.net/pawn/amx"
	"go.creack.net/pawn/mem"
	"go.creack.net/pawn/op"
)

// Native is a host function invocable by bytecode via SYSREQ. argc is the
// number of argument cells, argv the virtual address of the first one.
// A result deposited in retval lands in PRI.
type Native[C op.Cell, S op.SCell] func(vm *amx.VM[C, S], l *Loader[C, S], user any, argc, argv C, retval *C) op.Error

// Hook observes single-step or break events.
type Hook[C op.Cell, S op.SCell] func(vm *amx.VM[C, S], l *Loader[C, S], user any) op.Error

// NativeDef registers one named native.
type NativeDef[C op.Cell, S op.SCell] struct {
	Name string
	Fn   Native[C, S]
}

// Callbacks is everything a host hands to Init.
type Callbacks[C op.Cell, S op.SCell] struct {
	Natives      []NativeDef[C, S]
	OnSingleStep Hook[C, S]
	OnBreak      Hook[C, S]
	User         any
}

// Loader loads one module at a time. Init may be called again; each call
// rebuilds the symbol tables and brings up a fresh VM on a fresh manager.
type Loader[C op.Cell, S op.SCell] struct {
	newManager func() mem.Manager[C]

	vm   *amx.VM[C, S]
	code []C
	data []C

	onSingleStep Hook[C, S]
	onBreak      Hook[C, S]
	user         any

	natives     []Native[C, S]
	nativeNames []string
	publics     map[string]C
	pubvars     map[string]C
	main        C
}

// Convenience aliases for the supported widths.
type (
	Loader16 = Loader[uint16, int16]
	Loader32 = Loader[uint32, int32]
	Loader64 = Loader[uint64, int64]
)

// New returns a loader bringing its VMs up on managers built by newManager.
func New[C op.Cell, S op.SCell](newManager func() mem.Manager[C]) *Loader[C, S] {
	return &Loader[C, S]{newManager: newManager}
}

// NewDefault returns a loader using a Von Neumann manager over a paged
// backing with 5 index bits, the stock topology.
func NewDefault[C op.Cell, S op.SCell]() *Loader[C, S] {
	return New[C, S](func() mem.Manager[C] {
		return mem.NewNeumann[C](mem.NewPaged[C](5))
	})
}

// VM returns the abstract machine of the loaded module, nil before a
// successful Init.
func (l *Loader[C, S]) VM() *amx.VM[C, S] { return l.vm }

// GetPublic returns the code address of an exported function, 0 if absent.
func (l *Loader[C, S]) GetPublic(name string) C { return l.publics[name] }

// GetPubvar returns the data address of an exported global, 0 if absent.
func (l *Loader[C, S]) GetPubvar(name string) C { return l.pubvars[name] }

// GetMain returns the module's main entry point, 0 if it exports none.
func (l *Loader[C, S]) GetMain() C { return l.main }

// Publics returns a copy of the public-name table.
func (l *Loader[C, S]) Publics() map[string]C { return maps.Clone(l.publics) }

// Pubvars returns a copy of the pubvar-name table.
func (l *Loader[C, S]) Pubvars() map[string]C { return maps.Clone(l.pubvars) }

// NativeNames returns the native names the module imports, in SYSREQ index
// order.
func (l *Loader[C, S]) NativeNames() []string { return append([]string(nil), l.nativeNames...) }

// Code returns the decoded code image.
func (l *Loader[C, S]) Code() []C { return l.code }

// DataLen returns the data segment size in cells, heap and stack included.
func (l *Loader[C, S]) DataLen() int { return len(l.data) }

// readName reads the NUL-terminated string at off. A name running into the
// end of the buffer is malformed.
func readName(buf []byte, off uint32) (string, bool) {
	if uint64(off) >= uint64(len(buf)) {
		return "", false
	}
	end := bytes.IndexByte(buf[off:], 0)
	if end < 0 {
		return "", false
	}
	return string(buf[off : int(off)+end]), true
}

// eachRecord iterates the defsize-byte records in [begin, end), handing
// each to fn. Malformed table bounds fail the iteration before fn runs.
func eachRecord(buf []byte, begin, end uint32, defsize int, fn func(rec []byte) bool) bool {
	b, e := uint64(begin), uint64(end)
	if b > e || e > uint64(len(buf)) {
		return false
	}
	size := e - b
	if size%uint64(defsize) != 0 {
		return false
	}
	for off := b; off < e; off += uint64(defsize) {
		if !fn(buf[off : off+uint64(defsize)]) {
			return false
		}
	}
	return true
}

// selectCells decodes the little-endian cells in buf[begin:end).
func selectCells[C op.Cell](buf []byte, begin, end uint32) ([]C, bool) {
	cb := int(op.CellBytes[C]())
	b, e := uint64(begin), uint64(end)
	if b > e || e > uint64(len(buf)) || (e-b)%uint64(cb) != 0 {
		return nil, false
	}
	raw := buf[b:e]
	out := make([]C, len(raw)/cb)
	for i := range out {
		switch cb {
		case 2:
			out[i] = C(op.Endian.Uint16(raw[i*2:]))
		case 4:
			out[i] = C(op.Endian.Uint32(raw[i*4:]))
		case 8:
			out[i] = C(op.Endian.Uint64(raw[i*8:]))
		}
	}
	return out, true
}

// Init validates buf, extracts the segments, resolves symbols against cbs
// and brings up the VM. It stops at the first failure and reports the most
// specific reason it can.
func (l *Loader[C, S]) Init(buf []byte, cbs Callbacks[C, S]) op.LoaderError {
	l.onSingleStep = cbs.OnSingleStep
	l.onBreak = cbs.OnBreak
	l.user = cbs.User

	hdr, ok := op.ParseHeader(buf)
	if !ok {
		return op.ErrInvalidFile
	}
	if hdr.Magic != op.Magic[C]() {
		switch hdr.Magic {
		case op.Magic16, op.Magic32, op.Magic64:
			return op.ErrWrongCellSize
		default:
			return op.ErrInvalidFile
		}
	}
	if uint64(hdr.Size) > uint64(len(buf)) {
		return op.ErrInvalidFile
	}
	if hdr.FileVer != op.Version {
		return op.ErrUnsupportedFileVersion
	}
	if hdr.AmxVer > op.Version {
		return op.ErrUnsupportedAmxVersion
	}
	if hdr.Flags&(op.FlagOverlay|op.FlagNoChecks|op.FlagSleep) != 0 {
		return op.ErrFeatureNotSupported
	}
	if hdr.Defsize < 8 {
		return op.ErrInvalidFile
	}

	code, ok := selectCells[C](buf, hdr.Cod, hdr.Dat)
	if !ok {
		return op.ErrInvalidFile
	}
	data, ok := selectCells[C](buf, hdr.Dat, hdr.Hea)
	if !ok {
		return op.ErrInvalidFile
	}
	if hdr.Stp < hdr.Hea {
		return op.ErrInvalidFile
	}

	// Extend the data image with zeroed cells for the heap and stack.
	cb := uint64(op.CellBytes[C]())
	extra := (uint64(hdr.Stp-hdr.Hea) + cb - 1) / cb
	dataOldsize := len(data)
	data = append(data, make([]C, extra)...)

	if hdr.Cip == op.NoMain {
		l.main = 0
	} else {
		l.main = C(hdr.Cip)
	}

	defsize := int(hdr.Defsize)
	publics := make(map[string]C)
	if !eachRecord(buf, hdr.Publics, hdr.Natives, defsize, func(rec []byte) bool {
		addr := op.Endian.Uint32(rec)
		name, ok := readName(buf, op.Endian.Uint32(rec[4:]))
		if !ok {
			return false
		}
		publics[name] = C(addr)
		return true
	}) {
		return op.ErrInvalidFile
	}

	var natives []Native[C, S]
	var nativeNames []string
	nativeNotFound := false
	if !eachRecord(buf, hdr.Natives, hdr.Libraries, defsize, func(rec []byte) bool {
		name, ok := readName(buf, op.Endian.Uint32(rec[4:]))
		if !ok {
			return false
		}
		for _, def := range cbs.Natives {
			if def.Name == name {
				natives = append(natives, def.Fn)
				nativeNames = append(nativeNames, name)
				return true
			}
		}
		nativeNotFound = true
		return false
	}) {
		if nativeNotFound {
			return op.ErrNativeNotResolved
		}
		return op.ErrInvalidFile
	}

	if hdr.Libraries != hdr.Pubvars {
		return op.ErrFeatureNotSupported
	}

	pubvars := make(map[string]C)
	if !eachRecord(buf, hdr.Pubvars, hdr.Tags, defsize, func(rec []byte) bool {
		addr := op.Endian.Uint32(rec)
		name, ok := readName(buf, op.Endian.Uint32(rec[4:]))
		if !ok {
			return false
		}
		pubvars[name] = C(addr)
		return true
	}) {
		return op.ErrInvalidFile
	}

	l.code = code
	l.data = data
	l.publics = publics
	l.pubvars = pubvars
	l.natives = natives
	l.nativeNames = nativeNames

	vm := amx.New[C, S](l.newManager(), broker[C, S], l)
	if !vm.InstallCode(l.code) || !vm.InstallData(l.data, dataOldsize) {
		return op.ErrUnknown
	}
	l.vm = vm
	return op.LoadOK
}

// broker is the single callback every VM event goes through. The loader
// registers itself as the VM's user value; no other state is global.
func broker[C op.Cell, S op.SCell](vm *amx.VM[C, S], user any, index, stk C, pri *C) op.Error {
	return user.(*Loader[C, S]).amxCallback(index, stk, pri)
}

func (l *Loader[C, S]) amxCallback(index, stk C, pri *C) op.Error {
	if index == amx.CBSingleStep[C]() {
		if l.onSingleStep != nil {
			return l.onSingleStep(l.vm, l, l.user)
		}
		return op.Success
	}
	if index == amx.CBBreak[C]() {
		if l.onBreak != nil {
			return l.onBreak(l.vm, l, l.user)
		}
		return op.Success
	}
	if index >= C(len(l.natives)) {
		return op.ErrInvalidOperand
	}
	pargc := l.vm.DataV2P(stk)
	if pargc == nil {
		return op.ErrAccessViolation
	}
	cb := op.CellBytes[C]()
	return l.natives[index](l.vm, l, l.user, *pargc/cb, stk+cb, pri)
}
