package compiler

import (
	"errors"
	"fmt"
	"strings"
)

// Diagnostic is a positioned message from the parser or checker.
type Diagnostic struct {
	Pos      Position
	End      Position
	Msg      string
	Severity Severity
}

// Severity of a diagnostic.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (d Diagnostic) String() string {
	return fmt.Sprintf("line %d, column %d: %s", d.Pos.Line, d.Pos.Column, d.Msg)
}

// DiagnosticsError carries every error diagnostic of a failed phase.
type DiagnosticsError struct {
	Phase       string // "parse" or "check"
	Diagnostics []Diagnostic
}

func (e *DiagnosticsError) Error() string {
	lines := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		lines[i] = d.String()
	}
	return fmt.Sprintf("%s errors:\n  %s", e.Phase, strings.Join(lines, "\n  "))
}

// CompileErrorKind classifies code generation failures.
type CompileErrorKind int

const (
	ErrUnresolvedVariable CompileErrorKind = iota + 1
	ErrInvalidAssignTarget
	ErrBreakOutsideLoop
	ErrContinueOutsideLoop
	ErrInvalidMake
	ErrUnresolvedCall
	ErrMissingMain
	ErrUnsupported
)

var compileErrorNames = map[CompileErrorKind]string{
	ErrUnresolvedVariable:  "unresolved variable",
	ErrInvalidAssignTarget: "invalid assignment target",
	ErrBreakOutsideLoop:    "break outside of loop",
	ErrContinueOutsideLoop: "continue outside of loop",
	ErrInvalidMake:         "invalid make",
	ErrUnresolvedCall:      "unresolved call",
	ErrMissingMain:         "missing main function",
	ErrUnsupported:         "unsupported construct",
}

func (k CompileErrorKind) String() string {
	if name, ok := compileErrorNames[k]; ok {
		return name
	}
	return fmt.Sprintf("CompileErrorKind(%d)", int(k))
}

// CompileError aborts code generation. It names the construct that failed.
type CompileError struct {
	Kind     CompileErrorKind
	Pos      Position
	Function string
	Detail   string
}

func (e *CompileError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "line %d, column %d: %s", e.Pos.Line, e.Pos.Column, e.Kind)
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	if e.Function != "" {
		fmt.Fprintf(&sb, " (in %s)", e.Function)
	}
	return sb.String()
}

// AsCompileError extracts a *CompileError from err's chain.
func AsCompileError(err error) (*CompileError, bool) {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// Diagnostics flattens any compiler error into positioned diagnostics, for
// editors and services.
func Diagnostics(err error) []Diagnostic {
	if err == nil {
		return nil
	}
	var de *DiagnosticsError
	if errors.As(err, &de) {
		return de.Diagnostics
	}
	if ce, ok := AsCompileError(err); ok {
		msg := ce.Kind.String()
		if ce.Detail != "" {
			msg += ": " + ce.Detail
		}
		return []Diagnostic{{Pos: ce.Pos, End: ce.Pos, Msg: msg}}
	}
	return []Diagnostic{{Pos: Position{Line: 1, Column: 1}, Msg: err.Error()}}
}
