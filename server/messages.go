package server

import (
	"encoding/json"
	"fmt"

	"github.com/abooishaaq/sahl/compiler"
	"github.com/abooishaaq/sahl/vm"
)

// Service and procedure names shared by the Connect and gRPC transports.
const (
	ServiceName      = "sahl.v1.ToolchainService"
	CompileProcedure = "/" + ServiceName + "/Compile"
	RunProcedure     = "/" + ServiceName + "/Run"
)

// CompileRequest asks for source to be compiled.
type CompileRequest struct {
	// Name is the file name; its extension picks the frontend unless
	// Frontend is set.
	Name     string `json:"name"`
	Source   string `json:"source"`
	Frontend string `json:"frontend,omitempty"`
}

// CompileResponse carries the compiled program.
type CompileResponse struct {
	Hash        string       `json:"hash"`
	Disassembly string       `json:"disassembly"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
	// Program is the dist envelope of the compiled program.
	Program []byte `json:"program"`
	Cached  bool   `json:"cached"`
}

// RunRequest asks for a program to be run, either from source or from a
// dist envelope produced by Compile.
type RunRequest struct {
	Name      string `json:"name"`
	Source    string `json:"source,omitempty"`
	Frontend  string `json:"frontend,omitempty"`
	Program   []byte `json:"program,omitempty"`
	TimeoutMs int64  `json:"timeout_ms,omitempty"`
}

// RunResponse reports a finished run. A program that fails at run time
// still produces a response; Error describes the failure.
type RunResponse struct {
	RunID      string        `json:"run_id"`
	Hash       string        `json:"hash"`
	Output     string        `json:"output"`
	Result     string        `json:"result"`
	DurationMs int64         `json:"duration_ms"`
	Error      *RuntimeError `json:"error,omitempty"`
}

// Diagnostic is a compiler message in wire form.
type Diagnostic struct {
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// RuntimeError is a vm.RuntimeError in wire form.
type RuntimeError struct {
	Kind     string   `json:"kind"`
	Offset   int      `json:"offset"`
	Op       string   `json:"op,omitempty"`
	Function string   `json:"function,omitempty"`
	Operands []string `json:"operands,omitempty"`
	Message  string   `json:"message"`
}

func toDiagnostics(diags []compiler.Diagnostic) []Diagnostic {
	if len(diags) == 0 {
		return nil
	}
	out := make([]Diagnostic, len(diags))
	for i, d := range diags {
		sev := "error"
		if d.Severity == compiler.SeverityWarning {
			sev = "warning"
		}
		out[i] = Diagnostic{Line: d.Pos.Line, Column: d.Pos.Column, Severity: sev, Message: d.Msg}
	}
	return out
}

// toRuntimeError converts any run failure. Errors that are not
// *vm.RuntimeError keep only their message.
func toRuntimeError(err error) *RuntimeError {
	if err == nil {
		return nil
	}
	rt, ok := vm.AsRuntimeError(err)
	if !ok {
		return &RuntimeError{Kind: "internal", Message: err.Error()}
	}
	operands := make([]string, len(rt.Operands))
	for i, v := range rt.Operands {
		operands[i] = v.Repr()
	}
	return &RuntimeError{
		Kind:     rt.Kind.String(),
		Offset:   rt.Offset,
		Op:       rt.Op.String(),
		Function: rt.Function,
		Operands: operands,
		Message:  err.Error(),
	}
}

// parseFrontend maps the wire frontend name.
func parseFrontend(name string) (compiler.Frontend, error) {
	switch name {
	case "", "auto":
		return compiler.FrontendAuto, nil
	case "sahl":
		return compiler.FrontendSahl, nil
	case "starlark":
		return compiler.FrontendStarlark, nil
	}
	return 0, fmt.Errorf("unknown frontend %q", name)
}

// jsonCodec marshals the plain Go message types above. It satisfies both
// connect.Codec and grpc's encoding.Codec.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
