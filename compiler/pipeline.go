package compiler

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/abooishaaq/sahl/vm"
)

// Frontend selects the surface syntax of a source file.
type Frontend int

const (
	FrontendAuto     Frontend = iota // choose by file extension
	FrontendSahl                     // native sahl syntax
	FrontendStarlark                 // Starlark syntax, untyped
)

func (f Frontend) String() string {
	switch f {
	case FrontendSahl:
		return "sahl"
	case FrontendStarlark:
		return "starlark"
	}
	return "auto"
}

// FrontendFor picks the frontend for a file name: .star and .py are
// Starlark, everything else is sahl.
func FrontendFor(name string) Frontend {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".star", ".py":
		return FrontendStarlark
	}
	return FrontendSahl
}

// Options controls CompileSource.
type Options struct {
	Frontend Frontend
	// SkipCheck hands the parsed program straight to codegen.
	SkipCheck bool
}

// ParseSource parses src with the chosen frontend. It reports whether the
// result carries type annotations.
func ParseSource(name string, src []byte, frontend Frontend) (prog *Program, typed bool, err error) {
	if frontend == FrontendAuto {
		frontend = FrontendFor(name)
	}
	switch frontend {
	case FrontendStarlark:
		prog, err = ParseStarlark(name, src)
		return prog, false, err
	case FrontendSahl:
		prog, err = Parse(string(src))
		return prog, true, err
	}
	return nil, false, fmt.Errorf("unknown frontend %d", int(frontend))
}

// CompileSource runs the whole pipeline: parse, check, codegen. The AST is
// returned alongside the program for inspection; it is nil when parsing
// failed.
func CompileSource(name string, src []byte, opts Options) (*vm.Program, *Program, error) {
	ast, typed, err := ParseSource(name, src, opts.Frontend)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", name, err)
	}
	if !opts.SkipCheck {
		if err := Check(ast, !typed); err != nil {
			return nil, ast, fmt.Errorf("%s: %w", name, err)
		}
	}
	prog, err := Compile(ast)
	if err != nil {
		return nil, ast, fmt.Errorf("%s: %w", name, err)
	}
	return prog, ast, nil
}

// Diagnose parses and checks src without generating code. It returns every
// diagnostic, warnings included, ordered by position of discovery. The AST
// is nil when parsing failed outright.
func Diagnose(name string, src []byte, frontend Frontend) (*Program, []Diagnostic) {
	ast, typed, err := ParseSource(name, src, frontend)
	if err != nil {
		var de *DiagnosticsError
		if errors.As(err, &de) {
			return nil, de.Diagnostics
		}
		return nil, []Diagnostic{{Pos: Position{Line: 1, Column: 1}, Msg: err.Error()}}
	}
	s := NewSemanticAnalyzer()
	s.SetUntyped(!typed)
	s.AnalyzeProgram(ast)
	return ast, append(s.Errors(), s.Warnings()...)
}

// HasErrors reports whether any diagnostic is an error.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}
