package x64

import "github.com/Urethramancer/asm64/core"

// Reg is a packed register value: width class, encoding index and the
// flags the encoder needs. The zero value is not a valid register, so an
// empty Mem field means "no register".
type Reg uint16

const (
	regIndexMask Reg = 0x000F
	regHigh      Reg = 0x0010 // legacy high-byte register (AH, CH, DH, BH)
	regClassMask Reg = 0x0F00

	class8  Reg = 0x0100
	class16 Reg = 0x0200
	class32 Reg = 0x0300
	class64 Reg = 0x0400
	classIP Reg = 0x0500
)

// 8-bit registers. SPL, BPL, SIL and DIL share encoding indices with the
// high-byte registers and are selected by the presence of a REX prefix.
const (
	AL Reg = class8 | Reg(iota)
	CL
	DL
	BL
	SPL
	BPL
	SIL
	DIL
	R8B
	R9B
	R10B
	R11B
	R12B
	R13B
	R14B
	R15B
)

// High-byte registers. These cannot be combined with any REX prefix.
const (
	AH Reg = class8 | regHigh | Reg(4+iota)
	CH
	DH
	BH
)

// 16-bit registers.
const (
	AX Reg = class16 | Reg(iota)
	CX
	DX
	BX
	SP
	BP
	SI
	DI
	R8W
	R9W
	R10W
	R11W
	R12W
	R13W
	R14W
	R15W
)

// 32-bit registers.
const (
	EAX Reg = class32 | Reg(iota)
	ECX
	EDX
	EBX
	ESP
	EBP
	ESI
	EDI
	R8D
	R9D
	R10D
	R11D
	R12D
	R13D
	R14D
	R15D
)

// 64-bit registers.
const (
	RAX Reg = class64 | Reg(iota)
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

// RIP selects RIP-relative addressing when used as a memory base.
const RIP Reg = classIP

// Num returns the full 4-bit encoding index of the register.
func (r Reg) Num() byte { return byte(r & regIndexMask) }

// Index returns the low three bits of the encoding index, the part that
// fits in a ModRM or SIB field.
func (r Reg) Index() byte { return byte(r & 7) }

// IsExtended reports whether the register needs the extended-register
// prefix bit (R8 and up).
func (r Reg) IsExtended() bool { return r.valid() && r.Num() > 7 }

// IsHighByte reports whether the register is one of AH, CH, DH or BH.
func (r Reg) IsHighByte() bool { return r&regHigh != 0 }

// Width returns the register's width class.
func (r Reg) Width() core.Width {
	switch r & regClassMask {
	case class8:
		return core.W8
	case class16:
		return core.W16
	case class32:
		return core.W32
	default:
		return core.W64
	}
}

func (r Reg) valid() bool { return r != 0 }

// uniformByte reports whether the register is SPL, BPL, SIL or DIL, which
// need a REX prefix (possibly empty) to be addressable at all.
func (r Reg) uniformByte() bool {
	return r&regClassMask == class8 && !r.IsHighByte() && r.Num() >= 4 && r.Num() <= 7
}

var regNames8 = [16]string{
	"al", "cl", "dl", "bl", "spl", "bpl", "sil", "dil",
	"r8b", "r9b", "r10b", "r11b", "r12b", "r13b", "r14b", "r15b",
}

var regNamesHigh = [4]string{"ah", "ch", "dh", "bh"}

var regNames16 = [16]string{
	"ax", "cx", "dx", "bx", "sp", "bp", "si", "di",
	"r8w", "r9w", "r10w", "r11w", "r12w", "r13w", "r14w", "r15w",
}

var regNames32 = [16]string{
	"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi",
	"r8d", "r9d", "r10d", "r11d", "r12d", "r13d", "r14d", "r15d",
}

var regNames64 = [16]string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

func (r Reg) String() string {
	if !r.valid() {
		return "(none)"
	}
	switch r & regClassMask {
	case class8:
		if r.IsHighByte() {
			return regNamesHigh[r.Num()-4]
		}
		return regNames8[r.Num()]
	case class16:
		return regNames16[r.Num()]
	case class32:
		return regNames32[r.Num()]
	case class64:
		return regNames64[r.Num()]
	case classIP:
		return "rip"
	}
	return "(invalid)"
}
