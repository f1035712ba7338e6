package x64

import (
	"fmt"
	"strings"

	"github.com/Urethramancer/asm64/core"
)

const (
	w8  = core.W8
	w16 = core.W16
	w32 = core.W32
	w64 = core.W64
)

// modeMask marks the processor modes a form is legal in.
type modeMask uint8

const (
	m32 modeMask = 1 << iota
	m64
	mAny = m32 | m64
)

// argKind classifies one slot of an encoding form's operand pattern.
type argKind uint8

const (
	kReg   argKind = iota + 1 // register of the given width
	kRM                      // register or memory of the given width
	kMem                     // memory (or label/symbol reference) only
	kImm                     // immediate of at most the given width
	kRel                     // label or symbol, PC-relative field
	kRegCL                   // exactly CL (shift counts)
)

type pattern struct {
	kind  argKind
	width core.Width // zero means any width (kMem for lea)
}

// relaxSpec is the next wider encoding of a PC-relative form.
type relaxSpec struct {
	opcode []byte
	width  core.Width
	ccAdd  bool
}

// form is one encoding variant of a mnemonic: the operand shape it
// accepts and the bytes it produces. The catalog lists forms narrowest
// first so the matcher picks the shortest legal encoding.
type form struct {
	modes    modeMask
	size     core.Width // operand size class; drives immediate sign rules
	pat      []pattern
	prefix66 bool
	rexW     bool
	opcode   []byte
	plusReg  bool // register index added to the final opcode byte
	ccAdd    bool // condition code added to the final opcode byte
	modrm    bool
	digit    byte       // ModRM reg field when no register operand supplies it
	immW     core.Width // immediate field width, zero for none
	relW     core.Width // PC-relative field width, zero for none
	relax    *relaxSpec
}

// pinned reports whether a register pattern fixes the form's operand
// size, allowing memory operands to omit their width.
func (f *form) pinned() bool {
	for _, p := range f.pat {
		if p.kind == kReg || p.kind == kRegCL {
			return true
		}
	}
	return false
}

// matchShape reports whether the operands fit the form's pattern,
// ignoring mode legality and immediate value range.
func (f *form) matchShape(args []Operand) bool {
	if len(args) != len(f.pat) {
		return false
	}
	for i, p := range f.pat {
		if !f.matchArg(p, args[i]) {
			return false
		}
	}
	return true
}

func (f *form) matchArg(p pattern, a Operand) bool {
	switch p.kind {
	case kReg:
		r, ok := a.(Reg)
		return ok && r != RIP && r.Width() == p.width
	case kRegCL:
		r, ok := a.(Reg)
		return ok && r == CL
	case kRM:
		switch v := a.(type) {
		case Reg:
			return v != RIP && v.Width() == p.width
		case Mem:
			return f.matchMemWidth(p, v)
		}
		return false
	case kMem:
		switch v := a.(type) {
		case Mem:
			return f.matchMemWidth(p, v)
		case LabelRef:
			return f.immW == 0
		case SymRef:
			return f.immW == 0
		}
		return false
	case kImm:
		v, ok := a.(Imm)
		return ok && v.Width <= p.width
	case kRel:
		switch a.(type) {
		case LabelRef:
			return true
		case SymRef:
			// External targets cannot relax; they need a full-width field.
			return f.relax != nil || f.relW == w32
		}
		return false
	}
	return false
}

func (f *form) matchMemWidth(p pattern, m Mem) bool {
	if p.width == 0 || m.Width == p.width {
		return true
	}
	// A width-less memory operand is accepted only where a register
	// operand already pins the form's operand size.
	return m.Width == 0 && f.pinned() && p.width == f.size
}

// immOK checks that every immediate value is representable in its field.
// A value may use the field's unsigned range only when the field is as
// wide as the operand itself; fields narrower than the operand are
// sign-extended by the processor.
func (f *form) immOK(args []Operand) bool {
	for i, p := range f.pat {
		if p.kind != kImm {
			continue
		}
		v := args[i].(Imm).Value
		if f.immW.FitsSigned(v) {
			continue
		}
		if f.immW == f.size && f.immW.FitsUnsigned(v) {
			continue
		}
		return false
	}
	return true
}

// lookup finds the first catalog form matching an instruction's operands.
// Shape mismatches, immediate range failures and mode restrictions are
// reported as distinct error kinds.
func lookup(in *Inst, mode modeMask) (*form, error) {
	forms := catalog[in.op]
	if len(forms) == 0 {
		return nil, fmt.Errorf("%w: %s has no catalog entry", core.ErrInvalidOperands, in.op)
	}
	for _, a := range in.args {
		if im, ok := a.(Imm); ok && !im.fitsDeclared() {
			return nil, fmt.Errorf("%w: %d does not fit a %d-bit immediate", core.ErrImmediateRange, im.Value, im.Width.Bits())
		}
	}

	immBlocked := false
	modeBlocked := false
	for i := range forms {
		f := &forms[i]
		if !f.matchShape(in.args) {
			continue
		}
		if !f.immOK(in.args) {
			immBlocked = true
			continue
		}
		if f.modes&mode == 0 {
			modeBlocked = true
			continue
		}
		return f, nil
	}
	if immBlocked {
		return nil, fmt.Errorf("%w: %s %s", core.ErrImmediateRange, in.op, argsDesc(in.args))
	}
	if modeBlocked {
		return nil, fmt.Errorf("%w: %s %s", core.ErrUnsupportedInMode, in.op, argsDesc(in.args))
	}
	return nil, fmt.Errorf("%w: %s %s", core.ErrInvalidOperands, in.op, argsDesc(in.args))
}

func argsDesc(args []Operand) string {
	if len(args) == 0 {
		return "(no operands)"
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = operandDesc(a)
	}
	return strings.Join(parts, ", ")
}

//
// Catalog tables
//

func b(bytes ...byte) []byte { return bytes }

func rg(w core.Width) pattern  { return pattern{kReg, w} }
func rm(w core.Width) pattern  { return pattern{kRM, w} }
func mm(w core.Width) pattern  { return pattern{kMem, w} }
func im(w core.Width) pattern  { return pattern{kImm, w} }
func rel(w core.Width) pattern { return pattern{kRel, w} }

func pats(ps ...pattern) []pattern { return ps }

// aluForms builds the eight classic two-operand ALU variants across all
// widths. base is the rm8,r8 opcode; the rm,r / r8,rm8 / r,rm opcodes
// follow at base+1/+2/+3, and the immediate group uses 0x80/0x81/0x83
// with the given ModRM digit.
func aluForms(base byte, digit byte) []form {
	return []form{
		{modes: mAny, size: w8, pat: pats(rm(w8), rg(w8)), opcode: b(base), modrm: true},
		{modes: mAny, size: w16, prefix66: true, pat: pats(rm(w16), rg(w16)), opcode: b(base + 1), modrm: true},
		{modes: mAny, size: w32, pat: pats(rm(w32), rg(w32)), opcode: b(base + 1), modrm: true},
		{modes: m64, size: w64, rexW: true, pat: pats(rm(w64), rg(w64)), opcode: b(base + 1), modrm: true},

		{modes: mAny, size: w8, pat: pats(rg(w8), mm(w8)), opcode: b(base + 2), modrm: true},
		{modes: mAny, size: w16, prefix66: true, pat: pats(rg(w16), mm(w16)), opcode: b(base + 3), modrm: true},
		{modes: mAny, size: w32, pat: pats(rg(w32), mm(w32)), opcode: b(base + 3), modrm: true},
		{modes: m64, size: w64, rexW: true, pat: pats(rg(w64), mm(w64)), opcode: b(base + 3), modrm: true},

		{modes: mAny, size: w8, pat: pats(rm(w8), im(w8)), opcode: b(0x80), modrm: true, digit: digit, immW: w8},
		{modes: mAny, size: w16, prefix66: true, pat: pats(rm(w16), im(w8)), opcode: b(0x83), modrm: true, digit: digit, immW: w8},
		{modes: mAny, size: w16, prefix66: true, pat: pats(rm(w16), im(w16)), opcode: b(0x81), modrm: true, digit: digit, immW: w16},
		{modes: mAny, size: w32, pat: pats(rm(w32), im(w8)), opcode: b(0x83), modrm: true, digit: digit, immW: w8},
		{modes: mAny, size: w32, pat: pats(rm(w32), im(w32)), opcode: b(0x81), modrm: true, digit: digit, immW: w32},
		{modes: m64, size: w64, rexW: true, pat: pats(rm(w64), im(w8)), opcode: b(0x83), modrm: true, digit: digit, immW: w8},
		{modes: m64, size: w64, rexW: true, pat: pats(rm(w64), im(w32)), opcode: b(0x81), modrm: true, digit: digit, immW: w32},
	}
}

// unaryForms builds the single-operand group (inc, not, neg, mul, ...):
// base for the 8-bit form, base+1 for the wider ones.
func unaryForms(base byte, digit byte) []form {
	return []form{
		{modes: mAny, size: w8, pat: pats(rm(w8)), opcode: b(base), modrm: true, digit: digit},
		{modes: mAny, size: w16, prefix66: true, pat: pats(rm(w16)), opcode: b(base + 1), modrm: true, digit: digit},
		{modes: mAny, size: w32, pat: pats(rm(w32)), opcode: b(base + 1), modrm: true, digit: digit},
		{modes: m64, size: w64, rexW: true, pat: pats(rm(w64)), opcode: b(base + 1), modrm: true, digit: digit},
	}
}

// shiftForms builds shift-by-CL and shift-by-imm8 variants.
func shiftForms(digit byte) []form {
	return []form{
		{modes: mAny, size: w8, pat: pats(rm(w8), pattern{kind: kRegCL}), opcode: b(0xD2), modrm: true, digit: digit},
		{modes: mAny, size: w16, prefix66: true, pat: pats(rm(w16), pattern{kind: kRegCL}), opcode: b(0xD3), modrm: true, digit: digit},
		{modes: mAny, size: w32, pat: pats(rm(w32), pattern{kind: kRegCL}), opcode: b(0xD3), modrm: true, digit: digit},
		{modes: m64, size: w64, rexW: true, pat: pats(rm(w64), pattern{kind: kRegCL}), opcode: b(0xD3), modrm: true, digit: digit},

		{modes: mAny, size: w8, pat: pats(rm(w8), im(w8)), opcode: b(0xC0), modrm: true, digit: digit, immW: w8},
		{modes: mAny, size: w16, prefix66: true, pat: pats(rm(w16), im(w8)), opcode: b(0xC1), modrm: true, digit: digit, immW: w8},
		{modes: mAny, size: w32, pat: pats(rm(w32), im(w8)), opcode: b(0xC1), modrm: true, digit: digit, immW: w8},
		{modes: m64, size: w64, rexW: true, pat: pats(rm(w64), im(w8)), opcode: b(0xC1), modrm: true, digit: digit, immW: w8},
	}
}

func movForms() []form {
	return []form{
		{modes: mAny, size: w8, pat: pats(rm(w8), rg(w8)), opcode: b(0x88), modrm: true},
		{modes: mAny, size: w16, prefix66: true, pat: pats(rm(w16), rg(w16)), opcode: b(0x89), modrm: true},
		{modes: mAny, size: w32, pat: pats(rm(w32), rg(w32)), opcode: b(0x89), modrm: true},
		{modes: m64, size: w64, rexW: true, pat: pats(rm(w64), rg(w64)), opcode: b(0x89), modrm: true},

		{modes: mAny, size: w8, pat: pats(rg(w8), mm(w8)), opcode: b(0x8A), modrm: true},
		{modes: mAny, size: w16, prefix66: true, pat: pats(rg(w16), mm(w16)), opcode: b(0x8B), modrm: true},
		{modes: mAny, size: w32, pat: pats(rg(w32), mm(w32)), opcode: b(0x8B), modrm: true},
		{modes: m64, size: w64, rexW: true, pat: pats(rg(w64), mm(w64)), opcode: b(0x8B), modrm: true},

		{modes: mAny, size: w8, pat: pats(rg(w8), im(w8)), opcode: b(0xB0), plusReg: true, immW: w8},
		{modes: mAny, size: w16, prefix66: true, pat: pats(rg(w16), im(w16)), opcode: b(0xB8), plusReg: true, immW: w16},
		{modes: mAny, size: w32, pat: pats(rg(w32), im(w32)), opcode: b(0xB8), plusReg: true, immW: w32},
		{modes: m64, size: w64, rexW: true, pat: pats(rg(w64), im(w32)), opcode: b(0xC7), modrm: true, digit: 0, immW: w32},
		{modes: m64, size: w64, rexW: true, pat: pats(rg(w64), im(w64)), opcode: b(0xB8), plusReg: true, immW: w64},

		{modes: mAny, size: w8, pat: pats(mm(w8), im(w8)), opcode: b(0xC6), modrm: true, digit: 0, immW: w8},
		{modes: mAny, size: w16, prefix66: true, pat: pats(mm(w16), im(w16)), opcode: b(0xC7), modrm: true, digit: 0, immW: w16},
		{modes: mAny, size: w32, pat: pats(mm(w32), im(w32)), opcode: b(0xC7), modrm: true, digit: 0, immW: w32},
		{modes: m64, size: w64, rexW: true, pat: pats(mm(w64), im(w32)), opcode: b(0xC7), modrm: true, digit: 0, immW: w32},
	}
}

func testForms() []form {
	return []form{
		{modes: mAny, size: w8, pat: pats(rm(w8), rg(w8)), opcode: b(0x84), modrm: true},
		{modes: mAny, size: w16, prefix66: true, pat: pats(rm(w16), rg(w16)), opcode: b(0x85), modrm: true},
		{modes: mAny, size: w32, pat: pats(rm(w32), rg(w32)), opcode: b(0x85), modrm: true},
		{modes: m64, size: w64, rexW: true, pat: pats(rm(w64), rg(w64)), opcode: b(0x85), modrm: true},

		{modes: mAny, size: w8, pat: pats(rm(w8), im(w8)), opcode: b(0xF6), modrm: true, digit: 0, immW: w8},
		{modes: mAny, size: w16, prefix66: true, pat: pats(rm(w16), im(w16)), opcode: b(0xF7), modrm: true, digit: 0, immW: w16},
		{modes: mAny, size: w32, pat: pats(rm(w32), im(w32)), opcode: b(0xF7), modrm: true, digit: 0, immW: w32},
		{modes: m64, size: w64, rexW: true, pat: pats(rm(w64), im(w32)), opcode: b(0xF7), modrm: true, digit: 0, immW: w32},
	}
}

func extendForms(opcode8, opcode16 byte) []form {
	return []form{
		{modes: mAny, size: w16, prefix66: true, pat: pats(rg(w16), rm(w8)), opcode: b(0x0F, opcode8), modrm: true},
		{modes: mAny, size: w32, pat: pats(rg(w32), rm(w8)), opcode: b(0x0F, opcode8), modrm: true},
		{modes: m64, size: w64, rexW: true, pat: pats(rg(w64), rm(w8)), opcode: b(0x0F, opcode8), modrm: true},
		{modes: mAny, size: w32, pat: pats(rg(w32), rm(w16)), opcode: b(0x0F, opcode16), modrm: true},
		{modes: m64, size: w64, rexW: true, pat: pats(rg(w64), rm(w16)), opcode: b(0x0F, opcode16), modrm: true},
	}
}

// catalog maps every mnemonic to its encoding variants. It is built once
// at startup and only ever read afterwards, so it is safe to share across
// streams.
var catalog = map[Op][]form{
	OpMov: movForms(),

	OpLea: {
		{modes: mAny, size: w32, pat: pats(rg(w32), mm(0)), opcode: b(0x8D), modrm: true},
		{modes: m64, size: w64, rexW: true, pat: pats(rg(w64), mm(0)), opcode: b(0x8D), modrm: true},
	},

	OpAdd: aluForms(0x00, 0),
	OpOr:  aluForms(0x08, 1),
	OpAdc: aluForms(0x10, 2),
	OpSbb: aluForms(0x18, 3),
	OpAnd: aluForms(0x20, 4),
	OpSub: aluForms(0x28, 5),
	OpXor: aluForms(0x30, 6),
	OpCmp: aluForms(0x38, 7),

	OpTest: testForms(),

	OpInc:  unaryForms(0xFE, 0),
	OpDec:  unaryForms(0xFE, 1),
	OpNot:  unaryForms(0xF6, 2),
	OpNeg:  unaryForms(0xF6, 3),
	OpMul:  unaryForms(0xF6, 4),
	OpImul: unaryForms(0xF6, 5),
	OpDiv:  unaryForms(0xF6, 6),
	OpIdiv: unaryForms(0xF6, 7),

	OpImul2: {
		{modes: mAny, size: w16, prefix66: true, pat: pats(rg(w16), rm(w16)), opcode: b(0x0F, 0xAF), modrm: true},
		{modes: mAny, size: w32, pat: pats(rg(w32), rm(w32)), opcode: b(0x0F, 0xAF), modrm: true},
		{modes: m64, size: w64, rexW: true, pat: pats(rg(w64), rm(w64)), opcode: b(0x0F, 0xAF), modrm: true},
	},

	OpShl: shiftForms(4),
	OpShr: shiftForms(5),
	OpSar: shiftForms(7),

	OpMovzx: extendForms(0xB6, 0xB7),
	OpMovsx: extendForms(0xBE, 0xBF),
	OpMovsxd: {
		{modes: m64, size: w64, rexW: true, pat: pats(rg(w64), rm(w32)), opcode: b(0x63), modrm: true},
	},

	OpPush: {
		{modes: mAny, size: w16, prefix66: true, pat: pats(rg(w16)), opcode: b(0x50), plusReg: true},
		{modes: m64, size: w64, pat: pats(rg(w64)), opcode: b(0x50), plusReg: true},
		{modes: m32, size: w32, pat: pats(rg(w32)), opcode: b(0x50), plusReg: true},
		{modes: mAny, size: w16, prefix66: true, pat: pats(mm(w16)), opcode: b(0xFF), modrm: true, digit: 6},
		{modes: m64, size: w64, pat: pats(mm(w64)), opcode: b(0xFF), modrm: true, digit: 6},
		{modes: m32, size: w32, pat: pats(mm(w32)), opcode: b(0xFF), modrm: true, digit: 6},
		{modes: mAny, size: w64, pat: pats(im(w8)), opcode: b(0x6A), immW: w8},
		{modes: m32, size: w32, pat: pats(im(w32)), opcode: b(0x68), immW: w32},
		{modes: m64, size: w64, pat: pats(im(w32)), opcode: b(0x68), immW: w32},
	},

	OpPop: {
		{modes: mAny, size: w16, prefix66: true, pat: pats(rg(w16)), opcode: b(0x58), plusReg: true},
		{modes: m64, size: w64, pat: pats(rg(w64)), opcode: b(0x58), plusReg: true},
		{modes: m32, size: w32, pat: pats(rg(w32)), opcode: b(0x58), plusReg: true},
		{modes: m64, size: w64, pat: pats(mm(w64)), opcode: b(0x8F), modrm: true, digit: 0},
		{modes: m32, size: w32, pat: pats(mm(w32)), opcode: b(0x8F), modrm: true, digit: 0},
	},

	OpRet: {
		{modes: mAny, pat: pats(), opcode: b(0xC3)},
		{modes: mAny, size: w16, pat: pats(im(w16)), opcode: b(0xC2), immW: w16},
	},
	OpRetFar: {
		{modes: mAny, pat: pats(), opcode: b(0xCB)},
		{modes: mAny, size: w16, pat: pats(im(w16)), opcode: b(0xCA), immW: w16},
	},

	OpCall: {
		{modes: mAny, pat: pats(rel(w32)), opcode: b(0xE8), relW: w32},
		{modes: m64, size: w64, pat: pats(rm(w64)), opcode: b(0xFF), modrm: true, digit: 2},
		{modes: m32, size: w32, pat: pats(rm(w32)), opcode: b(0xFF), modrm: true, digit: 2},
	},

	OpJmp: {
		{modes: mAny, pat: pats(rel(w8)), opcode: b(0xEB), relW: w8,
			relax: &relaxSpec{opcode: b(0xE9), width: w32}},
		{modes: m64, size: w64, pat: pats(rm(w64)), opcode: b(0xFF), modrm: true, digit: 4},
		{modes: m32, size: w32, pat: pats(rm(w32)), opcode: b(0xFF), modrm: true, digit: 4},
	},

	OpJmpShort: {
		{modes: mAny, pat: pats(rel(w8)), opcode: b(0xEB), relW: w8},
	},

	OpJcc: {
		{modes: mAny, pat: pats(rel(w8)), opcode: b(0x70), ccAdd: true, relW: w8,
			relax: &relaxSpec{opcode: b(0x0F, 0x80), width: w32, ccAdd: true}},
	},

	OpJccShort: {
		{modes: mAny, pat: pats(rel(w8)), opcode: b(0x70), ccAdd: true, relW: w8},
	},

	OpSetcc: {
		{modes: mAny, size: w8, pat: pats(rm(w8)), opcode: b(0x0F, 0x90), ccAdd: true, modrm: true, digit: 0},
	},

	OpNop:  {{modes: mAny, pat: pats(), opcode: b(0x90)}},
	OpInt3: {{modes: mAny, pat: pats(), opcode: b(0xCC)}},
	OpInt: {
		{modes: mAny, size: w8, pat: pats(im(w8)), opcode: b(0xCD), immW: w8},
	},
	OpSyscall: {{modes: m64, pat: pats(), opcode: b(0x0F, 0x05)}},
	OpCdq:     {{modes: mAny, size: w32, pat: pats(), opcode: b(0x99)}},
	OpCqo:     {{modes: m64, size: w64, rexW: true, pat: pats(), opcode: b(0x99)}},
}
