package main

import "testing"

func TestAddFlags_ZeroSignCarryOverflow(t *testing.T) {
	sum, f := addFlags(0xFFFFFFFFFFFFFFFF, 1, 8)
	if sum != 0 {
		t.Errorf("sum = %#x, want 0", sum)
	}
	if !f.has(FlagZero) {
		t.Errorf("expected ZERO")
	}
	if !f.has(FlagCarry) {
		t.Errorf("expected CARRY (unsigned wrap)")
	}
	if f.has(FlagSign) {
		t.Errorf("expected SIGN clear for a zero result")
	}
	if f.has(FlagOverflow) {
		t.Errorf("expected OVERFLOW clear (operands differ in sign)")
	}
}

func TestAddFlags_SignedOverflow(t *testing.T) {
	// Max positive signed 32-bit + 1 overflows into the sign bit.
	_, f := addFlags(0x7FFFFFFF, 1, 4)
	if !f.has(FlagOverflow) {
		t.Errorf("expected OVERFLOW")
	}
	if !f.has(FlagSign) {
		t.Errorf("expected SIGN")
	}
}

func TestBitwiseFlags_ClearsCarryAndOverflow(t *testing.T) {
	f := bitwiseFlags(0, 8)
	if f.has(FlagCarry) || f.has(FlagOverflow) {
		t.Errorf("bitwise flags must clear CARRY and OVERFLOW")
	}
	if !f.has(FlagZero) {
		t.Errorf("expected ZERO for a zero result")
	}
}

func TestCondition_GreaterOrEqualUsesSignEqualsOverflow(t *testing.T) {
	var f Flags
	f.set(FlagSign, false)
	f.set(FlagOverflow, false)
	if !f.Satisfied(CondGreaterOrEqual) {
		t.Errorf("SIGN==OVERFLOW should satisfy >=")
	}
	f.set(FlagSign, true)
	if f.Satisfied(CondGreaterOrEqual) {
		t.Errorf("SIGN!=OVERFLOW should not satisfy >=")
	}
}

func TestCondition_PredicateFalseIsPure(t *testing.T) {
	r := newMachineTestRig()
	var prog []byte
	prog = append(prog, movRegImm64(0, 1)...)
	// CMP r0, r0 -> ZERO set, so CondNotZero-gated jmp below is skipped.
	prog = append(prog, arithRegReg(0x38, 0, 0)...) // CMP r0,r0
	notZeroJmp := byte(0x70 + 2)                    // jmpConds index 2 == CondNotZero
	// reg-target jmp form (0x7F) would be taken unconditionally; use the
	// reg-mem PCRel form at a condition index instead so it can be skipped.
	// mode 0 (PCRel), size 0, disp=10: if taken, the jump would skip the
	// 10-byte MOV r1 below and land on the trailing HALT.
	target := []byte{notZeroJmp, 0x00, 10, 0, 0, 0}
	prog = append(prog, target...)
	prog = append(prog, movRegImm64(1, 99)...)
	if err := r.run(prog); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.m.regs.Get(1) != 99 {
		t.Errorf("instruction after a not-taken conditional jump should still execute")
	}
}
