package vm

import (
	"errors"
	"strings"
	"testing"
)

func TestVerifyAcceptsFactorial(t *testing.T) {
	if err := Verify(factorialProgram()); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
}

func TestVerifyRejects(t *testing.T) {
	tests := []struct {
		name    string
		program func() *Program
		want    string
	}{
		{"empty", func() *Program { return &Program{} }, "empty program"},
		{"start out of range", func() *Program {
			p := mainOnly(0, op(OpReturn))
			p.Start = 4
			return p
		}, "start offset 4"},
		{"jump out of range", func() *Program {
			return mainOnly(0, opA(OpJump, 2), op(OpReturn))
		}, "jump target 2"},
		{"call arity", func() *Program {
			p := factorialProgram()
			p.Code[15].B = 2
			return p
		}, "fact takes 1 arguments, called with 2"},
		{"call non-entry", func() *Program {
			p := factorialProgram()
			p.Code[15].A = 3
			return p
		}, "no function starts at 3"},
		{"slot out of range", func() *Program {
			return mainOnly(1, opA(OpGetLocal, 1), op(OpReturn))
		}, "slot 1 out of range"},
		{"unknown opcode", func() *Program {
			return mainOnly(0, op(Opcode(99)), op(OpReturn))
		}, "unknown opcode 99"},
		{"locals beyond code", func() *Program {
			return mainOnly(5, op(OpReturn))
		}, "declares 5 locals"},
		{"locals beyond limit", func() *Program {
			p := mainOnly(0, op(OpReturn))
			p.Functions[0].Params = MaxLocals
			p.Functions[0].Locals = MaxLocals + 1
			return p
		}, "too many"},
		{"duplicate function", func() *Program {
			p := mainOnly(0, op(OpReturn))
			p.Functions = append(p.Functions, p.Functions[0])
			return p
		}, "duplicate function"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(tt.program())
			if err == nil {
				t.Fatal("Verify succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
			var verr *VerifyError
			if !errors.As(err, &verr) {
				t.Errorf("error %T is not a VerifyError", err)
			}
		})
	}
}
