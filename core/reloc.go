package core

// Width classifies the byte width of an encoded field.
type Width uint8

const (
	// W8 is an 8-bit field.
	W8 Width = 1
	// W16 is a 16-bit field.
	W16 Width = 2
	// W32 is a 32-bit field.
	W32 Width = 4
	// W64 is a 64-bit field.
	W64 Width = 8
)

// Bytes returns the width in bytes.
func (w Width) Bytes() int { return int(w) }

// Bits returns the width in bits.
func (w Width) Bits() int { return int(w) * 8 }

// FitsSigned reports whether v is representable as a signed value of this width.
func (w Width) FitsSigned(v int64) bool {
	if w == W64 {
		return true
	}
	limit := int64(1) << (w.Bits() - 1)
	return v >= -limit && v < limit
}

// FitsUnsigned reports whether v is representable as an unsigned value of this width.
func (w Width) FitsUnsigned(v int64) bool {
	if w == W64 {
		return v >= 0
	}
	return v >= 0 && v < int64(1)<<w.Bits()
}

// Kind selects how a relocation value is computed.
type Kind uint8

const (
	// Absolute patches the target offset itself, plus addend.
	Absolute Kind = iota
	// PCRel patches the distance from the end of the patched field (the
	// next instruction) to the target, plus addend.
	PCRel
)

func (k Kind) String() string {
	if k == PCRel {
		return "pcrel"
	}
	return "absolute"
}

// Relax describes the next wider encoding for a relocation site. Head
// replaces every byte of the instruction before the patched field; the
// field itself grows to Width. Chained through Next when more than one
// widening step exists.
type Relax struct {
	Head  []byte
	Width Width
	Next  *Relax
}

// Relocation is a deferred patch: a reserved field inside one instruction
// whose value depends on a label or external symbol. Exactly one of Label
// and Symbol identifies the target; Symbol takes precedence when non-empty.
type Relocation struct {
	// Label is the target label. Ignored when Symbol is set.
	Label LabelID
	// Symbol names an external target left for a later linker.
	Symbol string
	// Kind selects absolute or PC-relative value computation.
	Kind Kind
	// Width is the current width of the reserved field.
	Width Width
	// Addend is added to the computed value.
	Addend int64
	// InstrOffset is the offset of the first byte of the owning instruction.
	InstrOffset int
	// FieldOffset is the offset of the first byte of the reserved field.
	// The field is always the final part of the instruction.
	FieldOffset int
	// Relax is the widening chain, nil once the widest form is reached.
	Relax *Relax
}

// value computes the patch value for a target offset.
func (r *Relocation) value(target int) int64 {
	v := int64(target) + r.Addend
	if r.Kind == PCRel {
		v -= int64(r.FieldOffset + r.Width.Bytes())
	}
	return v
}

// fits reports whether v is representable in the relocation's field.
// PC-relative values are signed; absolute offsets may use the full
// unsigned range of the field.
func (r *Relocation) fits(v int64) bool {
	if r.Kind == PCRel {
		return r.Width.FitsSigned(v)
	}
	return r.Width.FitsUnsigned(v) || r.Width.FitsSigned(v)
}
