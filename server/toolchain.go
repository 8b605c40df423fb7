package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/abooishaaq/sahl/compiler"
	"github.com/abooishaaq/sahl/compiler/hash"
	"github.com/abooishaaq/sahl/store"
	"github.com/abooishaaq/sahl/vm"
	"github.com/abooishaaq/sahl/vm/dist"
)

// ErrInvalidRequest marks requests rejected before compilation.
var ErrInvalidRequest = errors.New("invalid request")

// SourceError reports a program that failed to compile.
type SourceError struct {
	Name        string
	Diagnostics []compiler.Diagnostic
	Err         error
}

func (e *SourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Name, e.Err)
	}
	var lines []string
	for _, d := range e.Diagnostics {
		if d.Severity == compiler.SeverityError {
			lines = append(lines, d.String())
		}
	}
	return fmt.Sprintf("%s: %s", e.Name, strings.Join(lines, "; "))
}

func (e *SourceError) Unwrap() error { return e.Err }

// Toolchain implements Compile and Run independently of any transport.
type Toolchain struct {
	runner *Runner
	store  *store.Store
	trace  bool
}

// NewToolchain creates a Toolchain. st may be nil, which disables caching
// and run history.
func NewToolchain(runner *Runner, st *store.Store) *Toolchain {
	return &Toolchain{runner: runner, store: st}
}

// SetTrace enables instruction tracing for every run.
func (t *Toolchain) SetTrace(trace bool) { t.trace = trace }

type compiled struct {
	program *vm.Program
	hash    string
	diags   []compiler.Diagnostic
	cached  bool
}

func (t *Toolchain) compile(name, source, frontend string) (*compiled, error) {
	if source == "" {
		return nil, fmt.Errorf("%w: source is required", ErrInvalidRequest)
	}
	fe, err := parseFrontend(frontend)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if name == "" {
		name = "main.sahl"
	}

	ast, diags := compiler.Diagnose(name, []byte(source), fe)
	if compiler.HasErrors(diags) {
		return nil, &SourceError{Name: name, Diagnostics: diags}
	}

	key := hash.Program(ast).String()
	if t.store != nil {
		entry, err := t.store.Get(key)
		switch {
		case err == nil:
			log.Debug("cache hit", "name", name, "hash", key)
			return &compiled{program: entry.Program, hash: key, diags: diags, cached: true}, nil
		case !errors.Is(err, store.ErrNotFound):
			log.Warning("cache read failed", "hash", key, "error", err.Error())
		}
	}

	prog, err := compiler.Compile(ast)
	if err != nil {
		return nil, &SourceError{Name: name, Err: err}
	}
	if t.store != nil {
		if err := t.store.Put(key, name, prog); err != nil {
			log.Warning("cache write failed", "hash", key, "error", err.Error())
		}
	}
	return &compiled{program: prog, hash: key, diags: diags}, nil
}

// Compile compiles req.Source and returns the encoded program.
func (t *Toolchain) Compile(ctx context.Context, req *CompileRequest) (*CompileResponse, error) {
	c, err := t.compile(req.Name, req.Source, req.Frontend)
	if err != nil {
		return nil, err
	}
	image, _, err := dist.Marshal(c.program)
	if err != nil {
		return nil, err
	}
	return &CompileResponse{
		Hash:        c.hash,
		Disassembly: vm.Disassemble(c.program),
		Diagnostics: toDiagnostics(c.diags),
		Program:     image,
		Cached:      c.cached,
	}, nil
}

// Run compiles (or decodes) and executes a program. Runtime failures are
// reported in the response; the error return is for requests that could
// not be run at all.
func (t *Toolchain) Run(ctx context.Context, req *RunRequest) (*RunResponse, error) {
	var (
		prog *vm.Program
		key  string
	)
	if len(req.Program) > 0 {
		p, h, err := dist.Unmarshal(req.Program)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		prog, key = p, h.String()
	} else {
		c, err := t.compile(req.Name, req.Source, req.Frontend)
		if err != nil {
			return nil, err
		}
		prog, key = c.program, c.hash
	}

	started := time.Now()
	out, err := t.runner.Run(ctx, Job{
		Program: prog,
		Timeout: time.Duration(req.TimeoutMs) * time.Millisecond,
		Trace:   t.trace,
	})
	if err != nil {
		return nil, err
	}

	resp := &RunResponse{
		Hash:       key,
		Output:     out.Output,
		DurationMs: out.Duration.Milliseconds(),
		Error:      toRuntimeError(out.Err),
	}
	if out.Err == nil {
		resp.Result = out.Result.String()
	}

	run := store.Run{
		Hash:      key,
		Output:    out.Output,
		StartedAt: started,
		Duration:  out.Duration,
	}
	if out.Err != nil {
		run.Error = out.Err.Error()
	}
	if t.store != nil {
		recorded, err := t.store.RecordRun(run)
		if err != nil {
			log.Warning("recording run failed", "hash", key, "error", err.Error())
			resp.RunID = uuid.New().String()
		} else {
			resp.RunID = recorded.ID
		}
	} else {
		resp.RunID = uuid.New().String()
	}

	log.Info("run finished", "run", resp.RunID, "hash", key, "ms", resp.DurationMs, "failed", out.Err != nil)
	return resp, nil
}

// cancelled reports whether a run stopped because its deadline passed or
// its caller went away.
func cancelled(resp *RunResponse) bool {
	return resp.Error != nil && resp.Error.Kind == vm.ErrCancelled.String()
}
