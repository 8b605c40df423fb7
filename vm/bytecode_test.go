package vm

import (
	"strings"
	"testing"
)

func TestOpcodeNumbering(t *testing.T) {
	// Serialized images depend on these values.
	fixed := map[Opcode]byte{
		OpAdd: 0, OpOr: 8, OpEqual: 9, OpGreaterEqual: 14, OpTrue: 15,
		OpJump: 17, OpJumpIfFalse: 18, OpStore: 19, OpLength: 22, OpList: 23,
		OpDefLocal: 28, OpCall: 31, OpReturn: 32, OpPrint: 33, OpPop: 34,
	}
	for op, want := range fixed {
		if byte(op) != want {
			t.Errorf("%s = %d, want %d", op, byte(op), want)
		}
	}
}

func TestInstructionString(t *testing.T) {
	tests := []struct {
		in   Instruction
		want string
	}{
		{op(OpAdd), "Add"},
		{opA(OpJumpIfFalse, 12), "JumpIfFalse 12"},
		{Instruction{Op: OpCall, A: 3, B: 2}, "Call 3 2"},
		{c(StrValue("hi")), `Const "hi"`},
		{op(Opcode(200)), "Op(200)"},
	}
	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestDisassemble(t *testing.T) {
	out := Disassemble(factorialProgram())
	for _, want := range []string{
		"; start 14, 2 functions, 18 instructions",
		"<fact>:\n0000  GetLocal 0",
		"0003  JumpIfFalse 6",
		"<main>:\n0014  Const 5",
		"0015  Call 0 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}
}

func TestFunctionContaining(t *testing.T) {
	p := factorialProgram()
	fn, ok := p.FunctionContaining(10)
	if !ok || fn.Name != "fact" {
		t.Errorf("FunctionContaining(10) = %v, %v, want fact", fn, ok)
	}
	fn, ok = p.FunctionContaining(16)
	if !ok || fn.Name != "main" {
		t.Errorf("FunctionContaining(16) = %v, %v, want main", fn, ok)
	}
}
