package vm

import (
	"errors"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Runtime errors
// ---------------------------------------------------------------------------

// ErrorKind classifies a runtime failure.
type ErrorKind uint8

const (
	ErrTypeMismatch ErrorKind = iota + 1
	ErrIndexOutOfRange
	ErrDivisionByZero
	ErrBadAppendTarget
	ErrStackOverflow
	ErrStackUnderflow
	ErrCallDepth
	ErrBadOperand
	ErrUnknownOpcode
	ErrCancelled
	ErrOutput
)

var errorKindNames = map[ErrorKind]string{
	ErrTypeMismatch:    "type mismatch",
	ErrIndexOutOfRange: "index out of range",
	ErrDivisionByZero:  "division by zero",
	ErrBadAppendTarget: "unsupported append target",
	ErrStackOverflow:   "stack overflow",
	ErrStackUnderflow:  "stack underflow",
	ErrCallDepth:       "call depth exceeded",
	ErrBadOperand:      "bad operand",
	ErrUnknownOpcode:   "unknown opcode",
	ErrCancelled:       "cancelled",
	ErrOutput:          "output error",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", uint8(k))
}

// RuntimeError aborts a run. It identifies the failing instruction and the
// operand values it was applied to.
type RuntimeError struct {
	Kind     ErrorKind
	Offset   int
	Op       Opcode
	Function string
	Operands []Value
	Msg      string
	Err      error
}

func (e *RuntimeError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "runtime error at %04d (%s", e.Offset, e.Op)
	if e.Function != "" {
		fmt.Fprintf(&sb, " in %s", e.Function)
	}
	sb.WriteString("): ")
	sb.WriteString(e.Kind.String())
	if e.Msg != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Msg)
	}
	if len(e.Operands) > 0 {
		sb.WriteString(" [operands:")
		for _, v := range e.Operands {
			sb.WriteByte(' ')
			sb.WriteString(v.Repr())
		}
		sb.WriteByte(']')
	}
	return sb.String()
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// AsRuntimeError extracts a *RuntimeError from err's chain.
func AsRuntimeError(err error) (*RuntimeError, bool) {
	var rt *RuntimeError
	if errors.As(err, &rt) {
		return rt, true
	}
	return nil, false
}

// opError is returned by the value primitives; the execution loop turns it
// into a RuntimeError carrying position information.
type opError struct {
	kind ErrorKind
	msg  string
}

func (e *opError) Error() string { return e.kind.String() + ": " + e.msg }

func fail(kind ErrorKind, format string, args ...any) *opError {
	return &opError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

func mismatch(op Opcode, a, b Value) *opError {
	return fail(ErrTypeMismatch, "%s not defined for %s and %s", op, a.Kind, b.Kind)
}
