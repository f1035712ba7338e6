package x64

// Op identifies a mnemonic in the catalog.
type Op uint8

// Mnemonics with catalog entries.
const (
	opNone Op = iota
	OpMov
	OpLea
	OpAdd
	OpOr
	OpAdc
	OpSbb
	OpAnd
	OpSub
	OpXor
	OpCmp
	OpTest
	OpInc
	OpDec
	OpNot
	OpNeg
	OpMul
	OpImul
	OpDiv
	OpIdiv
	OpImul2
	OpShl
	OpShr
	OpSar
	OpMovzx
	OpMovsx
	OpMovsxd
	OpPush
	OpPop
	OpRet
	OpRetFar
	OpCall
	OpJmp
	OpJmpShort
	OpJcc
	OpJccShort
	OpSetcc
	OpNop
	OpInt3
	OpInt
	OpSyscall
	OpCdq
	OpCqo
)

var opNames = [...]string{
	opNone:     "(none)",
	OpMov:      "mov",
	OpLea:      "lea",
	OpAdd:      "add",
	OpOr:       "or",
	OpAdc:      "adc",
	OpSbb:      "sbb",
	OpAnd:      "and",
	OpSub:      "sub",
	OpXor:      "xor",
	OpCmp:      "cmp",
	OpTest:     "test",
	OpInc:      "inc",
	OpDec:      "dec",
	OpNot:      "not",
	OpNeg:      "neg",
	OpMul:      "mul",
	OpImul:     "imul",
	OpDiv:      "div",
	OpIdiv:     "idiv",
	OpImul2:    "imul",
	OpShl:      "shl",
	OpShr:      "shr",
	OpSar:      "sar",
	OpMovzx:    "movzx",
	OpMovsx:    "movsx",
	OpMovsxd:   "movsxd",
	OpPush:     "push",
	OpPop:      "pop",
	OpRet:      "ret",
	OpRetFar:   "retf",
	OpCall:     "call",
	OpJmp:      "jmp",
	OpJmpShort: "jmp short",
	OpJcc:      "jcc",
	OpJccShort: "jcc short",
	OpSetcc:    "setcc",
	OpNop:      "nop",
	OpInt3:     "int3",
	OpInt:      "int",
	OpSyscall:  "syscall",
	OpCdq:      "cdq",
	OpCqo:      "cqo",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "(invalid)"
}

// Cond is a 4-bit x86 condition code, usable with Jcc and Setcc.
type Cond uint8

// Condition codes in hardware order.
const (
	CondO  Cond = 0x0 // overflow
	CondNO Cond = 0x1 // not overflow
	CondB  Cond = 0x2 // below (unsigned)
	CondAE Cond = 0x3 // above or equal (unsigned)
	CondE  Cond = 0x4 // equal / zero
	CondNE Cond = 0x5 // not equal / not zero
	CondBE Cond = 0x6 // below or equal (unsigned)
	CondA  Cond = 0x7 // above (unsigned)
	CondS  Cond = 0x8 // sign
	CondNS Cond = 0x9 // not sign
	CondP  Cond = 0xA // parity
	CondNP Cond = 0xB // not parity
	CondL  Cond = 0xC // less (signed)
	CondGE Cond = 0xD // greater or equal (signed)
	CondLE Cond = 0xE // less or equal (signed)
	CondG  Cond = 0xF // greater (signed)

	// Aliases.
	CondC  = CondB
	CondNC = CondAE
	CondZ  = CondE
	CondNZ = CondNE
)

var condNames = [16]string{
	"o", "no", "b", "ae", "e", "ne", "be", "a",
	"s", "ns", "p", "np", "l", "ge", "le", "g",
}

func (c Cond) String() string {
	if c < 16 {
		return condNames[c]
	}
	return "(invalid)"
}
