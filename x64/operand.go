package x64

import (
	"fmt"

	"github.com/Urethramancer/asm64/core"
)

// Operand is a value or location an instruction acts on: a register, an
// immediate with a declared width, a memory reference, or a reference to a
// label or external symbol.
type Operand interface {
	isOperand()
}

func (Reg) isOperand() {}

// Imm is an immediate operand with a declared width. Construct through
// Imm8, Imm16, Imm32 or Imm64; the declared width drives variant
// selection, and a value that does not fit it is rejected at construction.
type Imm struct {
	Width core.Width
	Value int64
}

// Imm8 declares an 8-bit immediate.
func Imm8(v int64) Imm { return Imm{core.W8, v} }

// Imm16 declares a 16-bit immediate.
func Imm16(v int64) Imm { return Imm{core.W16, v} }

// Imm32 declares a 32-bit immediate.
func Imm32(v int64) Imm { return Imm{core.W32, v} }

// Imm64 declares a 64-bit immediate.
func Imm64(v int64) Imm { return Imm{core.W64, v} }

func (Imm) isOperand() {}

// fitsDeclared reports whether the value is representable, signed or
// unsigned, in the declared width.
func (i Imm) fitsDeclared() bool {
	return i.Width.FitsSigned(i.Value) || i.Width.FitsUnsigned(i.Value)
}

// Seg selects a segment-override prefix for a memory operand.
type Seg uint8

// Segment registers.
const (
	SegNone Seg = iota
	ES
	CS
	SS
	DS
	FS
	GS
)

var segPrefixes = [...]byte{0, 0x26, 0x2E, 0x36, 0x3E, 0x64, 0x65}

var segNames = [...]string{"", "es", "cs", "ss", "ds", "fs", "gs"}

func (s Seg) prefix() byte { return segPrefixes[s] }

func (s Seg) String() string { return segNames[s] }

// Mem is a memory-reference operand: [base + index*scale + disp], with an
// optional segment override. Base may be RIP for RIP-relative addressing.
// Width declares the operand size; it may be left zero when another
// operand of the instruction fixes the size.
type Mem struct {
	Seg   Seg
	Base  Reg
	Index Reg
	Scale uint8 // 1, 2, 4 or 8; zero means 1
	Disp  int32
	Width core.Width
}

func (Mem) isOperand() {}

// String formats the reference in Intel-ish syntax, for error messages.
func (m Mem) String() string {
	s := "["
	if m.Seg != SegNone {
		s += m.Seg.String() + ":"
	}
	if m.Base.valid() {
		s += m.Base.String()
	}
	if m.Index.valid() {
		scale := m.Scale
		if scale == 0 {
			scale = 1
		}
		s += fmt.Sprintf("+%s*%d", m.Index, scale)
	}
	if m.Disp != 0 || (!m.Base.valid() && !m.Index.valid()) {
		s += fmt.Sprintf("%+#x", m.Disp)
	}
	return s + "]"
}

// LabelRef references a label defined on the same stream.
type LabelRef struct {
	ID core.LabelID
}

func (LabelRef) isOperand() {}

// Ref wraps a label identity as an operand.
func Ref(id core.LabelID) LabelRef { return LabelRef{ID: id} }

// SymRef references an external symbol. Its relocation is never resolved
// here; it is carried into the finalized buffer for a downstream linker.
type SymRef struct {
	Name string
}

func (SymRef) isOperand() {}

// Sym wraps an external symbol name as an operand.
func Sym(name string) SymRef { return SymRef{Name: name} }

// operandDesc summarizes an operand for error messages.
func operandDesc(a Operand) string {
	switch v := a.(type) {
	case Reg:
		return v.String()
	case Imm:
		return fmt.Sprintf("imm%d(%d)", v.Width.Bits(), v.Value)
	case Mem:
		return v.String()
	case LabelRef:
		return fmt.Sprintf("label %d", v.ID)
	case SymRef:
		return "sym " + v.Name
	}
	return "(unknown operand)"
}
