package vm

import (
	"context"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// CallFrame: Execution state for a function invocation
// ---------------------------------------------------------------------------

// CallFrame holds the local slots of one call plus the caller state needed
// to resume after Return.
type CallFrame struct {
	Fn       FunctionInfo
	Locals   []Value
	ReturnIP int // offset after the Call; -1 for the entry frame
	BP       int // operand stack height when the frame was entered
}

// ---------------------------------------------------------------------------
// Interpreter: one run of a program
// ---------------------------------------------------------------------------

// Interpreter owns the operand stack and frame stack of a single run.
// It is not reused across runs.
type Interpreter struct {
	vm     *VM
	stack  []Value
	sp     int
	frames []*CallFrame
	ip     int
	steps  uint64
	outErr error
}

func newInterpreter(vm *VM) *Interpreter {
	return &Interpreter{
		vm:     vm,
		stack:  make([]Value, 0, 256),
		frames: make([]*CallFrame, 0, 16),
	}
}

func (i *Interpreter) push(v Value) *opError {
	if i.sp >= i.vm.maxStack {
		return fail(ErrStackOverflow, "operand stack exceeds %d values", i.vm.maxStack)
	}
	if i.sp < len(i.stack) {
		i.stack[i.sp] = v
	} else {
		i.stack = append(i.stack, v)
	}
	i.sp++
	return nil
}

func (i *Interpreter) pop() (Value, *opError) {
	if i.sp <= i.frame().BP {
		return Nil, fail(ErrStackUnderflow, "pop from empty operand stack")
	}
	i.sp--
	v := i.stack[i.sp]
	i.stack[i.sp] = Nil
	return v, nil
}

func (i *Interpreter) popN(n int) ([]Value, *opError) {
	if n < 0 || i.sp-n < i.frame().BP {
		return nil, fail(ErrStackUnderflow, "need %d values, have %d", n, i.sp-i.frame().BP)
	}
	vals := make([]Value, n)
	copy(vals, i.stack[i.sp-n:i.sp])
	for j := i.sp - n; j < i.sp; j++ {
		i.stack[j] = Nil
	}
	i.sp -= n
	return vals, nil
}

func (i *Interpreter) frame() *CallFrame {
	return i.frames[len(i.frames)-1]
}

func (i *Interpreter) slot(n int) (*Value, *opError) {
	f := i.frame()
	if n < 0 || n >= len(f.Locals) {
		return nil, fail(ErrBadOperand, "slot %d out of range for %s with %d locals", n, f.Fn.Name, len(f.Locals))
	}
	return &f.Locals[n], nil
}

func (i *Interpreter) pushFrame(fn FunctionInfo, args []Value, returnIP int) *opError {
	if len(i.frames) >= i.vm.maxFrames {
		return fail(ErrCallDepth, "more than %d nested calls", i.vm.maxFrames)
	}
	if len(args) > fn.Locals {
		return fail(ErrBadOperand, "%s takes %d locals, called with %d arguments", fn.Name, fn.Locals, len(args))
	}
	locals := make([]Value, fn.Locals)
	for j, a := range args {
		locals[j] = a.Clone()
	}
	i.frames = append(i.frames, &CallFrame{
		Fn:       fn,
		Locals:   locals,
		ReturnIP: returnIP,
		BP:       i.sp,
	})
	return nil
}

// run executes from the program's start offset until the entry frame
// returns.
func (i *Interpreter) run(ctx context.Context) (result Value, err error) {
	p := i.vm.program
	entry, ok := p.FunctionAt(p.Start)
	if !ok {
		entry = FunctionInfo{Name: "main", Entry: p.Start}
	}
	i.frames = append(i.frames, &CallFrame{Fn: entry, Locals: make([]Value, entry.Locals), ReturnIP: -1})
	i.ip = p.Start

	for {
		if i.ip < 0 || i.ip >= len(p.Code) {
			return Nil, &RuntimeError{
				Kind:     ErrBadOperand,
				Offset:   i.ip,
				Function: i.frame().Fn.Name,
				Msg:      fmt.Sprintf("instruction pointer %d outside program of %d instructions", i.ip, len(p.Code)),
			}
		}
		i.steps++
		if i.steps&1023 == 0 {
			if cerr := ctx.Err(); cerr != nil {
				return Nil, &RuntimeError{Kind: ErrCancelled, Offset: i.ip, Op: p.Code[i.ip].Op, Function: i.frame().Fn.Name, Err: cerr}
			}
		}

		offset := i.ip
		in := p.Code[offset]
		if i.vm.trace != nil {
			i.vm.trace(offset, in, i.stack[i.frame().BP:i.sp])
		}

		operands, done, oerr := i.step(in)
		if oerr != nil {
			return Nil, &RuntimeError{
				Kind:     oerr.kind,
				Offset:   offset,
				Op:       in.Op,
				Function: i.frame().Fn.Name,
				Operands: operands,
				Msg:      oerr.msg,
				Err:      i.outErr,
			}
		}
		if done {
			return i.stack[0], nil
		}
	}
}

// step executes one instruction. On failure it returns the operand values
// the instruction consumed. done reports that the entry frame returned, with
// the result left in stack[0].
func (i *Interpreter) step(in Instruction) (operands []Value, done bool, err *opError) {
	switch in.Op {
	case OpAdd, OpSub, OpMul, OpDiv, OpMod:
		return i.binary(in.Op, arith)

	case OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		return i.binary(in.Op, compare)

	case OpEqual, OpNotEqual:
		return i.binary(in.Op, func(op Opcode, a, b Value) (Value, *opError) {
			eq := equal(a, b)
			if op == OpNotEqual {
				eq = !eq
			}
			return BoolValue(eq), nil
		})

	case OpAnd, OpOr:
		return i.binary(in.Op, logic)

	case OpNeg, OpNot:
		v, err := i.pop()
		if err != nil {
			return nil, false, err
		}
		var r Value
		if in.Op == OpNeg {
			r, err = negate(v)
		} else {
			r, err = not(v)
		}
		if err != nil {
			return []Value{v}, false, err
		}
		i.ip++
		return nil, false, i.push(r)

	case OpTrue, OpFalse:
		i.ip++
		return nil, false, i.push(BoolValue(in.Op == OpTrue))

	case OpConst:
		i.ip++
		return nil, false, i.push(in.Const.Clone())

	case OpJump:
		i.ip = in.A
		return nil, false, nil

	case OpJumpIfFalse:
		cond, err := i.pop()
		if err != nil {
			return nil, false, err
		}
		if cond.Kind != KindBool {
			return []Value{cond}, false, fail(ErrTypeMismatch, "condition must be bool, got %s", cond.Kind)
		}
		if cond.Bool() {
			i.ip++
		} else {
			i.ip = in.A
		}
		return nil, false, nil

	case OpIndex:
		vals, err := i.popN(2)
		if err != nil {
			return nil, false, err
		}
		r, err := index(vals[0], vals[1])
		if err != nil {
			return vals, false, err
		}
		i.ip++
		return nil, false, i.push(r)

	case OpStore:
		vals, err := i.popN(3)
		if err != nil {
			return nil, false, err
		}
		if err := store(vals[1], vals[2], vals[0]); err != nil {
			return vals, false, err
		}
		i.ip++
		return nil, false, i.push(vals[0])

	case OpAppend:
		vals, err := i.popN(2)
		if err != nil {
			return nil, false, err
		}
		r, err := appendValue(vals[0], vals[1])
		if err != nil {
			return vals, false, err
		}
		i.ip++
		return nil, false, i.push(r)

	case OpLength:
		v, err := i.pop()
		if err != nil {
			return nil, false, err
		}
		r, err := length(v)
		if err != nil {
			return []Value{v}, false, err
		}
		i.ip++
		return nil, false, i.push(r)

	case OpList:
		vals, err := i.popN(in.A)
		if err != nil {
			return nil, false, err
		}
		for j := range vals {
			vals[j] = vals[j].Clone()
		}
		i.ip++
		return nil, false, i.push(ListValue(vals...))

	case OpDefLocal:
		s, err := i.slot(in.A)
		if err != nil {
			return nil, false, err
		}
		v, err := i.pop()
		if err != nil {
			return nil, false, err
		}
		*s = v.Clone()
		i.ip++
		return nil, false, nil

	case OpGetLocal:
		s, err := i.slot(in.A)
		if err != nil {
			return nil, false, err
		}
		i.ip++
		return nil, false, i.push(*s)

	case OpAssign:
		s, err := i.slot(in.A)
		if err != nil {
			return nil, false, err
		}
		if i.sp <= i.frame().BP {
			return nil, false, fail(ErrStackUnderflow, "assign with empty operand stack")
		}
		*s = i.stack[i.sp-1].Clone()
		i.ip++
		return nil, false, nil

	case OpCall:
		fn, ok := i.vm.entries[in.A]
		if !ok {
			return nil, false, fail(ErrBadOperand, "no function starts at %d", in.A)
		}
		args, err := i.popN(in.B)
		if err != nil {
			return nil, false, err
		}
		if err := i.pushFrame(fn, args, i.ip+1); err != nil {
			return args, false, err
		}
		i.ip = fn.Entry
		return nil, false, nil

	case OpReturn:
		f := i.frame()
		result := Nil
		if i.sp > f.BP {
			result = i.stack[i.sp-1]
		}
		for j := f.BP; j < i.sp; j++ {
			i.stack[j] = Nil
		}
		i.sp = f.BP
		i.frames = i.frames[:len(i.frames)-1]
		if len(i.frames) == 0 {
			i.stack = append(i.stack[:0], result)
			return nil, true, nil
		}
		i.ip = f.ReturnIP
		return nil, false, i.push(result)

	case OpPrint:
		vals, err := i.popN(in.A)
		if err != nil {
			return nil, false, err
		}
		parts := make([]string, len(vals))
		for j, v := range vals {
			parts[j] = v.String()
		}
		if _, werr := fmt.Fprintln(i.vm.out, strings.Join(parts, " ")); werr != nil {
			i.outErr = werr
			return vals, false, fail(ErrOutput, "%v", werr)
		}
		i.ip++
		return nil, false, i.push(Nil)

	case OpPop:
		if _, err := i.pop(); err != nil {
			return nil, false, err
		}
		i.ip++
		return nil, false, nil
	}

	return nil, false, fail(ErrUnknownOpcode, "opcode %d", byte(in.Op))
}

func (i *Interpreter) binary(op Opcode, fn func(Opcode, Value, Value) (Value, *opError)) ([]Value, bool, *opError) {
	vals, err := i.popN(2)
	if err != nil {
		return nil, false, err
	}
	r, err := fn(op, vals[0], vals[1])
	if err != nil {
		return vals, false, err
	}
	i.ip++
	return nil, false, i.push(r)
}
