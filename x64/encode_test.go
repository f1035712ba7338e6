package x64_test

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/Urethramancer/asm64/core"
	"github.com/Urethramancer/asm64/x64"
)

// Emits a single instruction on a fresh stream and checks the finalized
// bytes against an expected hex string. Whitespace in the expected string
// is ignored.
func emitAndMatchHex(t *testing.T, name string, mode x64.Mode, in *x64.Inst, expectedHex string) {
	t.Helper()

	expectedHex = strings.ToLower(strings.Join(strings.Fields(expectedHex), ""))
	expected, err := hex.DecodeString(expectedHex)
	if err != nil {
		t.Fatalf("[%s] invalid expected hex string: %v", name, err)
	}

	s := x64.NewStream(mode)
	if err := s.Emit(in); err != nil {
		t.Fatalf("[%s] failed to emit: %v", name, err)
	}
	buf, err := s.Finalize()
	if err != nil {
		t.Fatalf("[%s] failed to finalize: %v", name, err)
	}
	code := buf.Bytes()
	if len(code) != len(expected) {
		t.Fatalf("[%s] expected %d bytes, got %d\nexpected: % X\ngot:      % X",
			name, len(expected), len(code), expected, code)
	}
	for i := range code {
		if code[i] != expected[i] {
			t.Errorf("[%s] mismatch at byte %d\nexpected: % X\ngot:      % X",
				name, i, expected, code)
			break
		}
	}
}

func TestNoOperandEncodings(t *testing.T) {
	tests := []struct {
		name string
		in   *x64.Inst
		hex  string
	}{
		{"RET", x64.Ret(), "C3"},
		{"RETF", x64.RetFar(), "CB"},
		{"RET_Imm16", x64.RetImm(4), "C2 04 00"},
		{"RETF_Imm16", x64.RetFarImm(16), "CA 10 00"},
		{"NOP", x64.Nop(), "90"},
		{"INT3", x64.Int3(), "CC"},
		{"INT_80", x64.Int(0x80), "CD 80"},
		{"SYSCALL", x64.Syscall(), "0F 05"},
		{"CDQ", x64.Cdq(), "99"},
		{"CQO", x64.Cqo(), "48 99"},
	}
	for _, tc := range tests {
		emitAndMatchHex(t, tc.name, x64.Mode64, tc.in, tc.hex)
	}
}

func TestStackEncodings(t *testing.T) {
	tests := []struct {
		name string
		in   *x64.Inst
		hex  string
	}{
		{"PUSH_RAX", x64.Push(x64.RAX), "50"},
		{"PUSH_R8", x64.Push(x64.R8), "41 50"},
		{"PUSH_R12", x64.Push(x64.R12), "41 54"},
		{"PUSH_AX", x64.Push(x64.AX), "66 50"},
		{"PUSH_Imm8", x64.Push(x64.Imm8(5)), "6A 05"},
		{"PUSH_Imm8_Negative", x64.Push(x64.Imm8(-1)), "6A FF"},
		{"PUSH_Imm32", x64.Push(x64.Imm32(0x1234)), "68 34 12 00 00"},
		{"PUSH_Mem", x64.Push(x64.Mem{Base: x64.RAX, Width: core.W64}), "FF 30"},
		{"POP_RBP", x64.Pop(x64.RBP), "5D"},
		{"POP_R9", x64.Pop(x64.R9), "41 59"},
	}
	for _, tc := range tests {
		emitAndMatchHex(t, tc.name, x64.Mode64, tc.in, tc.hex)
	}
}

func TestMovEncodings(t *testing.T) {
	tests := []struct {
		name string
		in   *x64.Inst
		hex  string
	}{
		{"MOV_R64_R64", x64.Mov(x64.RAX, x64.RBX), "48 89 D8"},
		{"MOV_R32_R32", x64.Mov(x64.EAX, x64.EBX), "89 D8"},
		{"MOV_R16_R16", x64.Mov(x64.AX, x64.BX), "66 89 D8"},
		{"MOV_R8_R8", x64.Mov(x64.AL, x64.BL), "88 D8"},
		{"MOV_Extended", x64.Mov(x64.R8, x64.R9), "4D 89 C8"},
		{"MOV_RBP_RSP", x64.Mov(x64.RBP, x64.RSP), "48 89 E5"},
		{"MOV_R8_Imm8", x64.Mov(x64.AL, x64.Imm8(0x12)), "B0 12"},
		{"MOV_SPL_Imm8", x64.Mov(x64.SPL, x64.Imm8(1)), "40 B4 01"},
		{"MOV_AH_Imm8", x64.Mov(x64.AH, x64.Imm8(1)), "B4 01"},
		{"MOV_R32_Imm32", x64.Mov(x64.EAX, x64.Imm32(0x12345678)), "B8 78 56 34 12"},
		{"MOV_R64_Imm32", x64.Mov(x64.RAX, x64.Imm32(1)), "48 C7 C0 01 00 00 00"},
		{"MOV_R64_Imm64", x64.Mov(x64.RAX, x64.Imm64(0x1122334455667788)), "48 B8 88 77 66 55 44 33 22 11"},
		{"MOV_Load", x64.Mov(x64.ECX, x64.Mem{Base: x64.RAX}), "8B 08"},
		{"MOV_Store", x64.Mov(x64.Mem{Base: x64.RAX}, x64.ECX), "89 08"},
		{"MOV_Base_RBP", x64.Mov(x64.Mem{Base: x64.RBP}, x64.EAX), "89 45 00"},
		{"MOV_Base_RSP", x64.Mov(x64.Mem{Base: x64.RSP}, x64.EAX), "89 04 24"},
		{"MOV_Base_R12", x64.Mov(x64.Mem{Base: x64.R12}, x64.EAX), "41 89 04 24"},
		{"MOV_Base_R13", x64.Mov(x64.Mem{Base: x64.R13}, x64.EAX), "41 89 45 00"},
		{"MOV_Disp8", x64.Mov(x64.Mem{Base: x64.RAX, Disp: -4}, x64.ECX), "89 48 FC"},
		{"MOV_Disp32", x64.Mov(x64.Mem{Base: x64.RAX, Disp: 0x80}, x64.ECX), "89 88 80 00 00 00"},
		{"MOV_Scaled_Index", x64.Mov(x64.Mem{Base: x64.RAX, Index: x64.RCX, Scale: 4}, x64.EDX), "89 14 88"},
		{"MOV_Stack_Slot", x64.Mov(x64.EAX, x64.Mem{Base: x64.RSP, Disp: 8}), "8B 44 24 08"},
		{"MOV_Absolute", x64.Mov(x64.EAX, x64.Mem{Disp: 0x1000}), "8B 04 25 00 10 00 00"},
		{"MOV_Segment", x64.Mov(x64.EAX, x64.Mem{Seg: x64.FS, Base: x64.RAX}), "64 8B 00"},
		{"MOV_Mem_Imm8", x64.Mov(x64.Mem{Base: x64.RBX, Width: core.W8}, x64.Imm8(-1)), "C6 03 FF"},
		{"MOV_Mem_Imm32", x64.Mov(x64.Mem{Base: x64.RAX, Width: core.W32}, x64.Imm32(7)), "C7 00 07 00 00 00"},
	}
	for _, tc := range tests {
		emitAndMatchHex(t, tc.name, x64.Mode64, tc.in, tc.hex)
	}
}

func TestALUEncodings(t *testing.T) {
	tests := []struct {
		name string
		in   *x64.Inst
		hex  string
	}{
		{"ADD_R32_R32", x64.Add(x64.EAX, x64.EBX), "01 D8"},
		{"ADD_R64_R64", x64.Add(x64.RAX, x64.RBX), "48 01 D8"},
		{"ADD_R64_Imm8", x64.Add(x64.RAX, x64.Imm8(1)), "48 83 C0 01"},
		{"SUB_RSP_Imm8", x64.Sub(x64.RSP, x64.Imm8(40)), "48 83 EC 28"},
		{"OR_R32_Imm8", x64.Or(x64.EAX, x64.Imm8(1)), "83 C8 01"},
		{"AND_Mem_Imm8", x64.And(x64.Mem{Base: x64.RAX, Width: core.W8}, x64.Imm8(0x0F)), "80 20 0F"},
		{"XOR_Zero_Idiom", x64.Xor(x64.EAX, x64.EAX), "31 C0"},
		{"XOR_R15_R15", x64.Xor(x64.R15, x64.R15), "4D 31 FF"},
		{"CMP_R8_R8", x64.Cmp(x64.AL, x64.BL), "38 D8"},
		{"CMP_R64_Imm32", x64.Cmp(x64.RCX, x64.Imm32(0x1000)), "48 81 F9 00 10 00 00"},
		{"ADC_R32_R32", x64.Adc(x64.ECX, x64.EDX), "11 D1"},
		{"SBB_R32_R32", x64.Sbb(x64.ECX, x64.EDX), "19 D1"},
		{"TEST_R32_R32", x64.Test(x64.EAX, x64.EAX), "85 C0"},
		{"TEST_R8_Imm8", x64.Test(x64.AL, x64.Imm8(1)), "F6 C0 01"},
		{"LOCK_ADD", x64.Add(x64.Mem{Base: x64.RAX}, x64.ECX).Lock(), "F0 01 08"},
	}
	for _, tc := range tests {
		emitAndMatchHex(t, tc.name, x64.Mode64, tc.in, tc.hex)
	}
}

func TestUnaryAndShiftEncodings(t *testing.T) {
	tests := []struct {
		name string
		in   *x64.Inst
		hex  string
	}{
		{"INC_R32", x64.Inc(x64.EAX), "FF C0"},
		{"INC_Mem8", x64.Inc(x64.Mem{Base: x64.RAX, Width: core.W8}), "FE 00"},
		{"INC_Mem64", x64.Inc(x64.Mem{Base: x64.RAX, Width: core.W64}), "48 FF 00"},
		{"DEC_R64", x64.Dec(x64.RCX), "48 FF C9"},
		{"NEG_R32", x64.Neg(x64.EAX), "F7 D8"},
		{"NOT_R64", x64.Not(x64.RDX), "48 F7 D2"},
		{"MUL_R32", x64.Mul(x64.ECX), "F7 E1"},
		{"IDIV_R64", x64.Idiv(x64.RCX), "48 F7 F9"},
		{"IMUL2_R32_R32", x64.Imul2(x64.EAX, x64.ECX), "0F AF C1"},
		{"IMUL2_R64_Mem", x64.Imul2(x64.RAX, x64.Mem{Base: x64.RBX}), "48 0F AF 03"},
		{"SHL_CL", x64.Shl(x64.EAX, x64.CL), "D3 E0"},
		{"SHL_Imm8", x64.Shl(x64.EAX, x64.Imm8(3)), "C1 E0 03"},
		{"SHR_Imm8", x64.Shr(x64.EDX, x64.Imm8(1)), "C1 EA 01"},
		{"SAR_R64_Imm8", x64.Sar(x64.RAX, x64.Imm8(1)), "48 C1 F8 01"},
	}
	for _, tc := range tests {
		emitAndMatchHex(t, tc.name, x64.Mode64, tc.in, tc.hex)
	}
}

func TestExtendAndLeaEncodings(t *testing.T) {
	tests := []struct {
		name string
		in   *x64.Inst
		hex  string
	}{
		{"MOVZX_R32_R8", x64.Movzx(x64.EAX, x64.BL), "0F B6 C3"},
		{"MOVZX_R32_R16", x64.Movzx(x64.EAX, x64.BX), "0F B7 C3"},
		{"MOVSX_R64_R8", x64.Movsx(x64.RAX, x64.CL), "48 0F BE C1"},
		{"MOVSX_R32_Mem16", x64.Movsx(x64.EAX, x64.Mem{Base: x64.RAX, Width: core.W16}), "0F BF 00"},
		{"MOVSXD", x64.Movsxd(x64.RAX, x64.ECX), "48 63 C1"},
		{"LEA_Disp8", x64.Lea(x64.RAX, x64.Mem{Base: x64.RCX, Disp: 8}), "48 8D 41 08"},
		{"LEA_Scaled", x64.Lea(x64.RAX, x64.Mem{Base: x64.RCX, Index: x64.RDX, Scale: 2}), "48 8D 04 51"},
		{"LEA_RIP", x64.Lea(x64.RAX, x64.Mem{Base: x64.RIP, Disp: 0x10}), "48 8D 05 10 00 00 00"},
	}
	for _, tc := range tests {
		emitAndMatchHex(t, tc.name, x64.Mode64, tc.in, tc.hex)
	}
}

func TestIndirectBranchEncodings(t *testing.T) {
	tests := []struct {
		name string
		in   *x64.Inst
		hex  string
	}{
		{"CALL_Reg", x64.Call(x64.RAX), "FF D0"},
		{"CALL_Mem", x64.Call(x64.Mem{Base: x64.RAX, Width: core.W64}), "FF 10"},
		{"JMP_Reg", x64.Jmp(x64.RAX), "FF E0"},
		{"JMP_Mem", x64.Jmp(x64.Mem{Base: x64.RAX, Width: core.W64}), "FF 20"},
		{"SETE_AL", x64.Setcc(x64.CondE, x64.AL), "0F 94 C0"},
		{"SETNE_BL", x64.Setcc(x64.CondNE, x64.BL), "0F 95 C3"},
		{"SETG_CL", x64.Setcc(x64.CondG, x64.CL), "0F 9F C1"},
	}
	for _, tc := range tests {
		emitAndMatchHex(t, tc.name, x64.Mode64, tc.in, tc.hex)
	}
}

func TestMode32Encodings(t *testing.T) {
	tests := []struct {
		name string
		in   *x64.Inst
		hex  string
	}{
		{"PUSH_EAX", x64.Push(x64.EAX), "50"},
		{"PUSH_Imm32", x64.Push(x64.Imm32(0x12345678)), "68 78 56 34 12"},
		{"POP_ECX", x64.Pop(x64.ECX), "59"},
		{"MOV_R32_Imm32", x64.Mov(x64.EAX, x64.Imm32(0x11223344)), "B8 44 33 22 11"},
		{"MOV_Absolute", x64.Mov(x64.Mem{Disp: 0x1000}, x64.EAX), "89 05 00 10 00 00"},
		{"MOV_Base_EBX", x64.Mov(x64.Mem{Base: x64.EBX}, x64.EAX), "89 03"},
		{"INC_R32", x64.Inc(x64.EAX), "FF C0"},
		{"INT_80", x64.Int(0x80), "CD 80"},
		{"CDQ", x64.Cdq(), "99"},
		{"RET", x64.Ret(), "C3"},
	}
	for _, tc := range tests {
		emitAndMatchHex(t, tc.name, x64.Mode32, tc.in, tc.hex)
	}
}
