package vm

import (
	"errors"
	"fmt"
)

// MaxLocals bounds the frame size of any one function.
const MaxLocals = 1 << 20

// VerifyError reports one malformed instruction or table entry. Offset is
// -1 for problems with the function table or start offset.
type VerifyError struct {
	Offset int
	Op     Opcode
	Msg    string
}

func (e *VerifyError) Error() string {
	if e.Offset < 0 {
		return "verify: " + e.Msg
	}
	return fmt.Sprintf("verify: %04d %s: %s", e.Offset, e.Op, e.Msg)
}

// Verify checks the structural invariants the interpreter relies on: the
// start offset names a function, jump targets are in range, calls target a
// function entry with matching arity, and slot operands fit their enclosing
// function's frame. All problems are reported, joined.
func Verify(p *Program) error {
	var errs []error
	tableErr := func(format string, args ...any) {
		errs = append(errs, &VerifyError{Offset: -1, Msg: fmt.Sprintf(format, args...)})
	}

	n := len(p.Code)
	if n == 0 {
		return &VerifyError{Offset: -1, Msg: "empty program"}
	}
	if p.Start < 0 || p.Start >= n {
		tableErr("start offset %d outside program of %d instructions", p.Start, n)
	} else if _, ok := p.FunctionAt(p.Start); !ok {
		tableErr("no function starts at start offset %d", p.Start)
	}

	seen := make(map[string]bool, len(p.Functions))
	entries := make(map[int]FunctionInfo, len(p.Functions))
	for _, fn := range p.Functions {
		if seen[fn.Name] {
			tableErr("duplicate function %q", fn.Name)
		}
		seen[fn.Name] = true
		if fn.Entry < 0 || fn.Entry >= n {
			tableErr("function %q entry %d out of range", fn.Name, fn.Entry)
		}
		if fn.Params < 0 || fn.Params > fn.Locals {
			tableErr("function %q has %d params but %d locals", fn.Name, fn.Params, fn.Locals)
		}
		// Every slot past the parameters is introduced by a DefLocal.
		if fn.Locals > MaxLocals || fn.Locals-fn.Params > n {
			tableErr("function %q declares %d locals, too many for %d instructions", fn.Name, fn.Locals, n)
		}
		entries[fn.Entry] = fn
	}

	for offset, in := range p.Code {
		bad := func(format string, args ...any) {
			errs = append(errs, &VerifyError{Offset: offset, Op: in.Op, Msg: fmt.Sprintf(format, args...)})
		}
		if _, ok := in.Op.Info(); !ok {
			bad("unknown opcode %d", byte(in.Op))
			continue
		}
		switch in.Op {
		case OpJump, OpJumpIfFalse:
			if in.A < 0 || in.A >= n {
				bad("jump target %d out of range", in.A)
			}
		case OpCall:
			fn, ok := entries[in.A]
			switch {
			case !ok:
				bad("no function starts at %d", in.A)
			case in.B != fn.Params:
				bad("%s takes %d arguments, called with %d", fn.Name, fn.Params, in.B)
			}
		case OpDefLocal, OpGetLocal, OpAssign:
			fn, ok := p.FunctionContaining(offset)
			if !ok {
				bad("instruction outside any function")
			} else if in.A < 0 || in.A >= fn.Locals {
				bad("slot %d out of range for %s with %d locals", in.A, fn.Name, fn.Locals)
			}
		case OpList, OpPrint:
			if in.A < 0 {
				bad("negative count %d", in.A)
			}
		case OpConst:
			if in.Const.Kind >= kindCount {
				bad("constant has unknown kind %d", in.Const.Kind)
			}
		}
	}
	return errors.Join(errs...)
}
