package x64

import (
	"fmt"

	"github.com/Urethramancer/asm64/core"
)

// Inst is a single instruction built from a mnemonic and operands. The
// constructors validate the operand shape immediately; a mismatch is held
// on the instruction and reported when it is emitted, so call sites can
// build instructions fluently and check errors in one place.
type Inst struct {
	op   Op
	cc   Cond
	args []Operand
	lock bool
	err  error
}

func newInst(op Op, args ...Operand) *Inst {
	in := &Inst{op: op, args: args}
	if _, err := lookup(in, mAny); err != nil {
		in.err = err
	}
	return in
}

func newCondInst(op Op, cc Cond, args ...Operand) *Inst {
	in := &Inst{op: op, cc: cc, args: args}
	if cc > 0xF {
		in.err = errBadCond(op, cc)
		return in
	}
	if _, err := lookup(in, mAny); err != nil {
		in.err = err
	}
	return in
}

func errBadCond(op Op, cc Cond) error {
	return fmt.Errorf("%w: condition %#x out of range for %s", core.ErrInvalidOperands, uint8(cc), op)
}

// Err reports any operand validation error from construction.
func (in *Inst) Err() error { return in.err }

// Op returns the instruction's mnemonic.
func (in *Inst) Op() Op { return in.op }

// Lock adds a lock prefix. It is only legal on the read-modify-write
// arithmetic forms with a memory destination; anything else is rejected
// at emit time.
func (in *Inst) Lock() *Inst {
	in.lock = true
	return in
}

// Mov builds a register/memory/immediate move.
func Mov(dst, src Operand) *Inst { return newInst(OpMov, dst, src) }

// Lea loads the effective address of src into dst.
func Lea(dst Reg, src Operand) *Inst { return newInst(OpLea, dst, src) }

// ALU group.

func Add(dst, src Operand) *Inst { return newInst(OpAdd, dst, src) }
func Or(dst, src Operand) *Inst  { return newInst(OpOr, dst, src) }
func Adc(dst, src Operand) *Inst { return newInst(OpAdc, dst, src) }
func Sbb(dst, src Operand) *Inst { return newInst(OpSbb, dst, src) }
func And(dst, src Operand) *Inst { return newInst(OpAnd, dst, src) }
func Sub(dst, src Operand) *Inst { return newInst(OpSub, dst, src) }
func Xor(dst, src Operand) *Inst { return newInst(OpXor, dst, src) }
func Cmp(dst, src Operand) *Inst { return newInst(OpCmp, dst, src) }

// Test ands the operands and sets flags without storing.
func Test(dst, src Operand) *Inst { return newInst(OpTest, dst, src) }

// Single-operand group.

func Inc(dst Operand) *Inst  { return newInst(OpInc, dst) }
func Dec(dst Operand) *Inst  { return newInst(OpDec, dst) }
func Not(dst Operand) *Inst  { return newInst(OpNot, dst) }
func Neg(dst Operand) *Inst  { return newInst(OpNeg, dst) }
func Mul(src Operand) *Inst  { return newInst(OpMul, src) }
func Imul(src Operand) *Inst { return newInst(OpImul, src) }
func Div(src Operand) *Inst  { return newInst(OpDiv, src) }
func Idiv(src Operand) *Inst { return newInst(OpIdiv, src) }

// Imul2 is the two-operand signed multiply, dst = dst * src.
func Imul2(dst Reg, src Operand) *Inst { return newInst(OpImul2, dst, src) }

// Shift group. The count is either the CL register or an 8-bit immediate.

func Shl(dst, count Operand) *Inst { return newInst(OpShl, dst, count) }
func Shr(dst, count Operand) *Inst { return newInst(OpShr, dst, count) }
func Sar(dst, count Operand) *Inst { return newInst(OpSar, dst, count) }

// Widening moves.

func Movzx(dst Reg, src Operand) *Inst  { return newInst(OpMovzx, dst, src) }
func Movsx(dst Reg, src Operand) *Inst  { return newInst(OpMovsx, dst, src) }
func Movsxd(dst Reg, src Operand) *Inst { return newInst(OpMovsxd, dst, src) }

// Stack group.

func Push(src Operand) *Inst { return newInst(OpPush, src) }
func Pop(dst Operand) *Inst  { return newInst(OpPop, dst) }

// Ret is a near return.
func Ret() *Inst { return newInst(OpRet) }

// RetImm is a near return popping n extra bytes off the stack.
func RetImm(n uint16) *Inst { return newInst(OpRet, Imm16(int64(n))) }

// RetFar is a far return.
func RetFar() *Inst { return newInst(OpRetFar) }

// RetFarImm is a far return popping n extra bytes off the stack.
func RetFarImm(n uint16) *Inst { return newInst(OpRetFar, Imm16(int64(n))) }

// Call builds a near call to a label, symbol, register or memory target.
func Call(target Operand) *Inst { return newInst(OpCall, target) }

// Jmp builds an unconditional jump. Label targets start in the short form
// and widen at finalize when the distance demands it.
func Jmp(target Operand) *Inst { return newInst(OpJmp, target) }

// JmpShort builds a jump pinned to the 8-bit form; a target out of range
// fails at finalize instead of widening.
func JmpShort(target Operand) *Inst { return newInst(OpJmpShort, target) }

// Jcc builds a conditional jump. Like Jmp it starts short and widens on
// demand.
func Jcc(cc Cond, target Operand) *Inst { return newCondInst(OpJcc, cc, target) }

// JccShort builds a conditional jump pinned to the 8-bit form; a target
// out of range fails at finalize instead of widening.
func JccShort(cc Cond, target Operand) *Inst { return newCondInst(OpJccShort, cc, target) }

// Named conditional jumps.

func Jo(t Operand) *Inst  { return Jcc(CondO, t) }
func Jno(t Operand) *Inst { return Jcc(CondNO, t) }
func Jb(t Operand) *Inst  { return Jcc(CondB, t) }
func Jae(t Operand) *Inst { return Jcc(CondAE, t) }
func Je(t Operand) *Inst  { return Jcc(CondE, t) }
func Jne(t Operand) *Inst { return Jcc(CondNE, t) }
func Jbe(t Operand) *Inst { return Jcc(CondBE, t) }
func Ja(t Operand) *Inst  { return Jcc(CondA, t) }
func Js(t Operand) *Inst  { return Jcc(CondS, t) }
func Jns(t Operand) *Inst { return Jcc(CondNS, t) }
func Jp(t Operand) *Inst  { return Jcc(CondP, t) }
func Jnp(t Operand) *Inst { return Jcc(CondNP, t) }
func Jl(t Operand) *Inst  { return Jcc(CondL, t) }
func Jge(t Operand) *Inst { return Jcc(CondGE, t) }
func Jle(t Operand) *Inst { return Jcc(CondLE, t) }
func Jg(t Operand) *Inst  { return Jcc(CondG, t) }

// Setcc stores 1 or 0 into an 8-bit destination by condition.
func Setcc(cc Cond, dst Operand) *Inst { return newCondInst(OpSetcc, cc, dst) }

// No-operand instructions.

func Nop() *Inst     { return newInst(OpNop) }
func Int3() *Inst    { return newInst(OpInt3) }
func Syscall() *Inst { return newInst(OpSyscall) }
func Cdq() *Inst     { return newInst(OpCdq) }
func Cqo() *Inst     { return newInst(OpCqo) }

// Int builds a software interrupt with the given vector.
func Int(vector uint8) *Inst { return newInst(OpInt, Imm8(int64(vector))) }
