package amx

import "go.creack.net/pawn/op"

// fetch reads the code cell at CIP and advances past it.
func (vm *VM[C, S]) fetch() (C, op.Error) {
	p := vm.CodeV2P(vm.CIP)
	if p == nil {
		return 0, op.ErrAccessViolationCode
	}
	vm.CIP += vm.cell
	return *p, op.Success
}

// dataRef translates v or fails the instruction with access_violation.
func (vm *VM[C, S]) dataRef(v C) (*C, op.Error) {
	p := vm.DataV2P(v)
	if p == nil {
		return nil, op.ErrAccessViolation
	}
	return p, op.Success
}

// caseRead reads the code cell at *pos and advances it. Case table reads
// are data-style accesses into the code segment and fault accordingly.
func (vm *VM[C, S]) caseRead(pos *C) (C, op.Error) {
	p := vm.CodeV2P(*pos)
	if p == nil {
		return 0, op.ErrAccessViolation
	}
	*pos += vm.cell
	return *p, op.Success
}

func b2c[C op.Cell](b bool) C {
	if b {
		return 1
	}
	return 0
}

// subCell validates a LODB.I/STRB.I access of width bytes at addr and
// returns the containing word, the bit position and the value mask. The
// access must not straddle a cell boundary.
func (vm *VM[C, S]) subCell(addr, width C) (p *C, shift, mask C, err op.Error) {
	switch width {
	case 1, 2, 4:
	default:
		return nil, 0, 0, op.ErrInvalidOperand
	}
	misalign := vm.cell - 1
	if addr&^misalign != (addr+width-1)&^misalign {
		return nil, 0, 0, op.ErrInvalidOperand
	}
	p, err = vm.dataRef(addr &^ misalign)
	if err != op.Success {
		return nil, 0, 0, err
	}
	shift = (addr & misalign) * 8
	if width == vm.cell {
		mask = ^C(0)
	} else {
		mask = C(1)<<(width*8) - 1
	}
	return p, shift, mask, op.Success
}

// step decodes and executes one instruction.
func (vm *VM[C, S]) step() op.Error {
	raw, err := vm.fetch()
	if err != op.Success {
		return err
	}
	if raw >= C(op.NumCodes) {
		return op.ErrInvalidInstruction
	}
	opcode := op.Code(raw)

	var operand C
	if opcode.HasOperand() {
		if operand, err = vm.fetch(); err != op.Success {
			return err
		}
	}

	switch opcode {
	case op.Nop:

	case op.LoadPri:
		p, err := vm.dataRef(operand)
		if err != op.Success {
			return err
		}
		vm.PRI = *p
	case op.LoadAlt:
		p, err := vm.dataRef(operand)
		if err != op.Success {
			return err
		}
		vm.ALT = *p

	case op.LoadSPri:
		p, err := vm.dataRef(vm.FRM + operand)
		if err != op.Success {
			return err
		}
		vm.PRI = *p
	case op.LoadSAlt:
		p, err := vm.dataRef(vm.FRM + operand)
		if err != op.Success {
			return err
		}
		vm.ALT = *p

	case op.LrefSPri:
		p, err := vm.dataRef(vm.FRM + operand)
		if err != op.Success {
			return err
		}
		if p, err = vm.dataRef(*p); err != op.Success {
			return err
		}
		vm.PRI = *p
	case op.LrefSAlt:
		p, err := vm.dataRef(vm.FRM + operand)
		if err != op.Success {
			return err
		}
		if p, err = vm.dataRef(*p); err != op.Success {
			return err
		}
		vm.ALT = *p

	case op.LoadI:
		p, err := vm.dataRef(vm.PRI)
		if err != op.Success {
			return err
		}
		vm.PRI = *p

	case op.LodbI:
		p, shift, mask, err := vm.subCell(vm.PRI, operand)
		if err != op.Success {
			return err
		}
		vm.PRI = (*p >> shift) & mask

	case op.ConstPri:
		vm.PRI = operand
	case op.ConstAlt:
		vm.ALT = operand

	case op.AddrPri:
		vm.PRI = vm.FRM + operand
	case op.AddrAlt:
		vm.ALT = vm.FRM + operand

	case op.Stor:
		p, err := vm.dataRef(operand)
		if err != op.Success {
			return err
		}
		*p = vm.PRI

	case op.StorS:
		p, err := vm.dataRef(vm.FRM + operand)
		if err != op.Success {
			return err
		}
		*p = vm.PRI

	case op.SrefS:
		p, err := vm.dataRef(vm.FRM + operand)
		if err != op.Success {
			return err
		}
		if p, err = vm.dataRef(*p); err != op.Success {
			return err
		}
		*p = vm.PRI

	case op.StorI:
		p, err := vm.dataRef(vm.ALT)
		if err != op.Success {
			return err
		}
		*p = vm.PRI

	case op.StrbI:
		p, shift, mask, err := vm.subCell(vm.ALT, operand)
		if err != op.Success {
			return err
		}
		*p = (*p &^ (mask << shift)) | ((vm.PRI & mask) << shift)

	case op.AlignPri:
		// Byte-reverse adjustment for mixed-endianness code streams; on a
		// little-endian stream this only fires for sub-cell operands.
		if operand < vm.cell {
			vm.PRI ^= vm.cell - operand
		}

	case op.Lctrl:
		switch operand {
		case 0:
			vm.PRI = vm.COD
		case 1:
			vm.PRI = vm.DAT
		case 2:
			vm.PRI = vm.HEA
		case 3:
			vm.PRI = vm.STP
		case 4:
			vm.PRI = vm.STK
		case 5:
			vm.PRI = vm.FRM
		case 6:
			vm.PRI = vm.CIP
		default:
			return op.ErrInvalidOperand
		}

	case op.Sctrl:
		switch operand {
		case 2:
			vm.HEA = vm.PRI
		case 4:
			vm.STK = vm.PRI
		case 5:
			vm.FRM = vm.PRI
		case 6:
			vm.CIP = vm.PRI
		default:
			return op.ErrInvalidOperand
		}

	case op.Xchg:
		vm.PRI, vm.ALT = vm.ALT, vm.PRI

	case op.PushPri:
		if err := vm.Push(vm.PRI); err != op.Success {
			return err
		}
	case op.PushAlt:
		if err := vm.Push(vm.ALT); err != op.Success {
			return err
		}
	case op.PushrPri:
		if err := vm.Push(vm.PRI); err != op.Success {
			return err
		}

	case op.PopPri:
		v, err := vm.Pop()
		if err != op.Success {
			return err
		}
		vm.PRI = v
	case op.PopAlt:
		v, err := vm.Pop()
		if err != op.Success {
			return err
		}
		vm.ALT = v

	case op.Pick:
		p, err := vm.dataRef(vm.STK + operand)
		if err != op.Success {
			return err
		}
		vm.PRI = *p

	case op.Stack:
		vm.STK += operand
		vm.ALT = vm.STK

	case op.Heap:
		vm.ALT = vm.HEA
		vm.HEA += operand

	case op.Proc:
		if err := vm.Push(vm.FRM); err != op.Success {
			return err
		}
		vm.FRM = vm.STK

	case op.Ret:
		frm, err := vm.Pop()
		if err != op.Success {
			return err
		}
		cip, err := vm.Pop()
		if err != op.Success {
			return err
		}
		vm.FRM, vm.CIP = frm, cip

	case op.Retn:
		frm, err := vm.Pop()
		if err != op.Success {
			return err
		}
		cip, err := vm.Pop()
		if err != op.Success {
			return err
		}
		vm.FRM, vm.CIP = frm, cip
		p, err := vm.dataRef(vm.STK)
		if err != op.Success {
			return err
		}
		vm.STK += *p + vm.cell

	case op.Call:
		if err := vm.Push(vm.CIP); err != op.Success {
			return err
		}
		vm.CIP = vm.CIP - 2*vm.cell + operand

	case op.Jump:
		vm.CIP = vm.CIP - 2*vm.cell + operand
	case op.Jzer:
		if vm.PRI == 0 {
			vm.CIP = vm.CIP - 2*vm.cell + operand
		}
	case op.Jnz:
		if vm.PRI != 0 {
			vm.CIP = vm.CIP - 2*vm.cell + operand
		}

	case op.Shl:
		vm.PRI <<= vm.ALT
	case op.Shr:
		vm.PRI >>= vm.ALT
	case op.Sshr:
		vm.PRI = C(S(vm.PRI) >> vm.ALT)
	case op.ShlCPri:
		vm.PRI <<= operand
	case op.ShlCAlt:
		vm.ALT <<= operand

	case op.Smul:
		vm.PRI = C(S(vm.PRI) * S(vm.ALT))

	case op.Sdiv:
		if vm.PRI == 0 {
			return op.ErrDivisionWithZero
		}
		d := vm.PRI
		if d == ^C(0) && vm.ALT == C(1)<<(op.CellBits[C]()-1) {
			// Most-negative dividend by -1 wraps to itself.
			vm.PRI, vm.ALT = vm.ALT, 0
			break
		}
		q := S(vm.ALT) / S(d)
		r := S(vm.ALT) % S(d)
		if r != 0 && (r < 0) != (S(d) < 0) {
			q--
			r += S(d)
		}
		vm.PRI, vm.ALT = C(q), C(r)

	case op.Add:
		vm.PRI += vm.ALT
	case op.Sub:
		vm.PRI = vm.ALT - vm.PRI
	case op.And:
		vm.PRI &= vm.ALT
	case op.Or:
		vm.PRI |= vm.ALT
	case op.Xor:
		vm.PRI ^= vm.ALT
	case op.Not:
		vm.PRI = b2c[C](vm.PRI == 0)
	case op.Neg:
		vm.PRI = C(-S(vm.PRI))
	case op.Invert:
		vm.PRI = ^vm.PRI

	case op.Eq:
		vm.PRI = b2c[C](vm.PRI == vm.ALT)
	case op.Neq:
		vm.PRI = b2c[C](vm.PRI != vm.ALT)
	case op.Sless:
		vm.PRI = b2c[C](S(vm.PRI) < S(vm.ALT))
	case op.Sleq:
		vm.PRI = b2c[C](S(vm.PRI) <= S(vm.ALT))
	case op.Sgrtr:
		vm.PRI = b2c[C](S(vm.PRI) > S(vm.ALT))
	case op.Sgeq:
		vm.PRI = b2c[C](S(vm.PRI) >= S(vm.ALT))

	case op.IncPri:
		vm.PRI++
	case op.IncAlt:
		vm.ALT++
	case op.IncI:
		p, err := vm.dataRef(vm.PRI)
		if err != op.Success {
			return err
		}
		(*p)++
	case op.DecPri:
		vm.PRI--
	case op.DecAlt:
		vm.ALT--
	case op.DecI:
		p, err := vm.dataRef(vm.PRI)
		if err != op.Success {
			return err
		}
		(*p)--

	case op.Movs:
		for i := C(0); i < operand; i += vm.cell {
			src, err := vm.dataRef(vm.PRI + i)
			if err != op.Success {
				return err
			}
			dst, err := vm.dataRef(vm.ALT + i)
			if err != op.Success {
				return err
			}
			*dst = *src
		}

	case op.Cmps:
		src, dst := vm.PRI, vm.ALT
		vm.PRI = 0
		for i := C(0); vm.PRI == 0 && i < operand; i += vm.cell {
			a, err := vm.dataRef(src + i)
			if err != op.Success {
				return err
			}
			b, err := vm.dataRef(dst + i)
			if err != op.Success {
				return err
			}
			vm.PRI = *b - *a
		}

	case op.Fill:
		for i := C(0); i < operand; i += vm.cell {
			p, err := vm.dataRef(vm.ALT + i)
			if err != op.Success {
				return err
			}
			*p = vm.PRI
		}

	case op.Halt:
		vm.PRI = operand
		return op.ErrHalt

	case op.Bounds:
		if vm.PRI > operand {
			return op.ErrBounds
		}

	case op.Sysreq:
		if result := vm.fireCallback(operand); result != op.Success {
			return result
		}

	case op.Switch:
		pos := vm.CIP - 2*vm.cell + operand
		marker, err := vm.caseRead(&pos)
		if err != op.Success {
			return err
		}
		if marker != C(op.Casetbl) {
			return op.ErrInvalidOperand
		}
		count, err := vm.caseRead(&pos)
		if err != op.Success {
			return err
		}
		noMatch, err := vm.caseRead(&pos)
		if err != op.Success {
			return err
		}
		vm.CIP = pos - vm.cell + noMatch
		for ; count != 0; count-- {
			test, err := vm.caseRead(&pos)
			if err != op.Success {
				return err
			}
			target, err := vm.caseRead(&pos)
			if err != op.Success {
				return err
			}
			if vm.PRI == test {
				vm.CIP = pos - vm.cell + target
				break
			}
		}

	case op.SwapPri:
		p, err := vm.dataRef(vm.STK)
		if err != op.Success {
			return err
		}
		vm.PRI, *p = *p, vm.PRI

	case op.SwapAlt:
		p, err := vm.dataRef(vm.STK)
		if err != op.Success {
			return err
		}
		vm.ALT, *p = *p, vm.ALT

	case op.Break:
		if result := vm.fireCallback(CBBreak[C]()); result != op.Success {
			return result
		}

	default:
		return op.ErrInvalidInstruction
	}

	return op.Success
}
