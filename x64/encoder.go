package x64

import (
	"encoding/binary"
	"fmt"

	"github.com/Urethramancer/asm64/core"
)

// Extended-register prefix bits.
const (
	rexBase = 0x40
	rexB    = 0x01 // extends ModRM r/m, SIB base or opcode register
	rexX    = 0x02 // extends SIB index
	rexR    = 0x04 // extends ModRM reg
	rexW    = 0x08 // 64-bit operand size
)

// lockable lists the mnemonics that accept a lock prefix.
var lockable = map[Op]bool{
	OpAdd: true, OpOr: true, OpAdc: true, OpSbb: true, OpAnd: true,
	OpSub: true, OpXor: true, OpInc: true, OpDec: true,
	OpNot: true, OpNeg: true,
}

// pending is a relocation produced for one instruction, with the field
// offset still relative to the instruction start.
type pending struct {
	fieldOff int
	reloc    core.Relocation
}

// encoded is the output of encoding a single instruction.
type encoded struct {
	bytes []byte
	rel   *pending
}

// memEnc is the ModRM/SIB/displacement encoding of a memory operand, with
// the ModRM reg field left clear for the caller.
type memEnc struct {
	modrm  byte
	sib    byte
	hasSIB bool
	disp   []byte
}

// encode turns a matched instruction into bytes. The catalog has already
// validated the operand shape; what remains here is prefix selection and
// the addressing-mode special cases.
func encode(in *Inst, f *form, mode Mode) (encoded, error) {
	var (
		regArg   Reg
		hasReg   bool
		rmReg    Reg
		hasRMReg bool
		memArg   Mem
		hasMem   bool
		memRef   Operand // label/symbol in memory position
		immArg   Imm
		hasImm   bool
		relArg   Operand
	)
	for i, p := range f.pat {
		a := in.args[i]
		switch p.kind {
		case kReg:
			regArg = a.(Reg)
			hasReg = true
		case kRM, kMem:
			switch v := a.(type) {
			case Reg:
				rmReg = v
				hasRMReg = true
			case Mem:
				memArg = v
				hasMem = true
			default:
				memRef = a
			}
		case kImm:
			immArg = a.(Imm)
			hasImm = true
		case kRel:
			relArg = a
		}
	}

	if in.lock && (!hasMem || !lockable[in.op]) {
		return encoded{}, fmt.Errorf("%w: lock prefix on %s", core.ErrInvalidOperands, in.op)
	}

	var me memEnc
	if hasMem {
		var err error
		me, err = encodeMem(memArg, mode)
		if err != nil {
			return encoded{}, err
		}
	}

	// Extended-register prefix.
	rex := byte(0)
	if f.rexW {
		rex |= rexW
	}
	bare := false
	high := false
	note := func(r Reg, bit byte) {
		if !r.valid() {
			return
		}
		if r.IsExtended() {
			rex |= bit
		}
		if r.uniformByte() {
			bare = true
		}
		if r.IsHighByte() {
			high = true
		}
	}
	if hasReg {
		if f.plusReg {
			note(regArg, rexB)
		} else {
			note(regArg, rexR)
		}
	}
	if hasRMReg {
		note(rmReg, rexB)
	}
	if hasMem {
		note(memArg.Base, rexB)
		note(memArg.Index, rexX)
	}
	needREX := rex != 0 || bare
	if high && needREX {
		return encoded{}, fmt.Errorf("%w: high-byte register cannot be encoded with an extended-register prefix", core.ErrInvalidOperands)
	}
	if mode == Mode32 && needREX {
		return encoded{}, fmt.Errorf("%w: %s %s", core.ErrUnsupportedInMode, in.op, argsDesc(in.args))
	}

	// External branch targets cannot relax later; emit the widest form now.
	opcode := f.opcode
	relW := f.relW
	ccAdd := f.ccAdd
	relax := f.relax
	if _, isSym := relArg.(SymRef); isSym && relax != nil {
		opcode = relax.opcode
		relW = relax.width
		ccAdd = relax.ccAdd
		relax = nil
	}

	out := make([]byte, 0, 16)
	if in.lock {
		out = append(out, 0xF0)
	}
	if hasMem && memArg.Seg != SegNone {
		out = append(out, memArg.Seg.prefix())
	}
	if f.prefix66 {
		out = append(out, 0x66)
	}
	if needREX {
		out = append(out, rexBase|rex)
	}

	op := append([]byte(nil), opcode...)
	last := len(op) - 1
	if f.plusReg {
		op[last] += regArg.Index()
	}
	if ccAdd {
		op[last] += byte(in.cc)
	}
	out = append(out, op...)

	var relp *pending
	if f.modrm {
		regField := f.digit
		if hasReg && !f.plusReg {
			regField = regArg.Index()
		}
		switch {
		case hasRMReg:
			out = append(out, 0xC0|regField<<3|rmReg.Index())
		case hasMem:
			out = append(out, me.modrm|regField<<3)
			if me.hasSIB {
				out = append(out, me.sib)
			}
			out = append(out, me.disp...)
		case memRef != nil:
			// mod 00, r/m 101: RIP-relative in 64-bit mode, absolute
			// disp32 in 32-bit mode.
			out = append(out, 0x05|regField<<3)
			kind := core.PCRel
			if mode == Mode32 {
				kind = core.Absolute
			}
			relp = &pending{
				fieldOff: len(out),
				reloc:    relocFor(memRef, kind, w32, nil),
			}
			out = append(out, 0, 0, 0, 0)
		}
	}

	if hasImm {
		out = appendInt(out, immArg.Value, f.immW)
	}

	if relArg != nil && relW != 0 {
		var rx *core.Relax
		if relax != nil {
			head := append([]byte(nil), relax.opcode...)
			if relax.ccAdd {
				head[len(head)-1] += byte(in.cc)
			}
			rx = &core.Relax{Head: head, Width: relax.width}
		}
		relp = &pending{
			fieldOff: len(out),
			reloc:    relocFor(relArg, core.PCRel, relW, rx),
		}
		out = append(out, make([]byte, relW.Bytes())...)
	}

	return encoded{bytes: out, rel: relp}, nil
}

// relocFor builds a relocation template for a label or symbol operand.
func relocFor(target Operand, kind core.Kind, w core.Width, rx *core.Relax) core.Relocation {
	r := core.Relocation{Kind: kind, Width: w, Relax: rx}
	switch v := target.(type) {
	case LabelRef:
		r.Label = v.ID
	case SymRef:
		r.Symbol = v.Name
	}
	return r
}

// encodeMem builds the ModRM mod/rm bits, SIB byte and displacement for a
// memory reference. RSP and R12 as base force a SIB byte; RBP and R13
// with no displacement force a zero disp8; a base-less reference always
// carries a 32-bit displacement.
func encodeMem(m Mem, mode Mode) (memEnc, error) {
	var e memEnc

	scale := m.Scale
	if scale == 0 {
		scale = 1
	}
	var ss byte
	switch scale {
	case 1:
		ss = 0
	case 2:
		ss = 1
	case 4:
		ss = 2
	case 8:
		ss = 3
	default:
		return e, fmt.Errorf("%w: scale %d", core.ErrInvalidOperands, m.Scale)
	}

	if m.Base == RIP {
		if mode == Mode32 {
			return e, fmt.Errorf("%w: RIP-relative addressing", core.ErrUnsupportedInMode)
		}
		if m.Index.valid() {
			return e, fmt.Errorf("%w: RIP-relative reference cannot take an index", core.ErrInvalidOperands)
		}
		e.modrm = 0x05
		e.disp = appendInt(nil, int64(m.Disp), w32)
		return e, nil
	}

	want := class64
	if mode == Mode32 {
		want = class32
	}
	for _, r := range [2]Reg{m.Base, m.Index} {
		if r.valid() && r&regClassMask != want {
			return e, fmt.Errorf("%w: %s cannot address memory in this mode", core.ErrInvalidOperands, r)
		}
	}
	if m.Index.valid() && m.Index.Num() == 4 {
		return e, fmt.Errorf("%w: %s cannot be an index register", core.ErrInvalidOperands, m.Index)
	}

	switch {
	case !m.Base.valid() && !m.Index.valid():
		if mode == Mode32 {
			e.modrm = 0x05
		} else {
			e.modrm = 0x04
			e.sib = 0x25
			e.hasSIB = true
		}
		e.disp = appendInt(nil, int64(m.Disp), w32)

	case !m.Base.valid():
		e.modrm = 0x04
		e.sib = ss<<6 | m.Index.Index()<<3 | 0x05
		e.hasSIB = true
		e.disp = appendInt(nil, int64(m.Disp), w32)

	default:
		if m.Index.valid() || m.Base.Index() == 4 {
			e.modrm = 0x04
			idx := byte(0x04)
			if m.Index.valid() {
				idx = m.Index.Index()
			}
			e.sib = ss<<6 | idx<<3 | m.Base.Index()
			e.hasSIB = true
		} else {
			e.modrm = m.Base.Index()
		}
		switch {
		case m.Disp == 0 && m.Base.Index() != 5:
			// mod 00, no displacement
		case m.Disp >= -128 && m.Disp <= 127:
			e.modrm |= 0x40
			e.disp = appendInt(nil, int64(m.Disp), w8)
		default:
			e.modrm |= 0x80
			e.disp = appendInt(nil, int64(m.Disp), w32)
		}
	}
	return e, nil
}

// appendInt appends v little-endian at the given width.
func appendInt(out []byte, v int64, w core.Width) []byte {
	switch w {
	case w8:
		return append(out, byte(v))
	case w16:
		return binary.LittleEndian.AppendUint16(out, uint16(v))
	case w32:
		return binary.LittleEndian.AppendUint32(out, uint32(v))
	default:
		return binary.LittleEndian.AppendUint64(out, uint64(v))
	}
}
