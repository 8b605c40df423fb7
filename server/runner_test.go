package server

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/abooishaaq/sahl/vm"
)

func TestRunnerRun(t *testing.T) {
	r := NewRunner()
	defer r.Stop()

	out, err := r.Run(bg(), Job{Program: compileProgram(t, factSource)})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if out.Err != nil {
		t.Fatalf("program failed: %v", out.Err)
	}
	if out.Output != "120\n" {
		t.Errorf("output = %q, want %q", out.Output, "120\n")
	}
	if out.Result.Kind != vm.KindNil {
		t.Errorf("result = %v, want nil", out.Result)
	}
}

func TestRunnerRuntimeError(t *testing.T) {
	r := NewRunner()
	defer r.Stop()

	out, err := r.Run(bg(), Job{Program: compileProgram(t, divideSource)})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	rt, ok := vm.AsRuntimeError(out.Err)
	if !ok {
		t.Fatalf("err = %v, want *vm.RuntimeError", out.Err)
	}
	if rt.Kind != vm.ErrDivisionByZero {
		t.Errorf("kind = %v, want %v", rt.Kind, vm.ErrDivisionByZero)
	}
	if out.Output != "before\n" {
		t.Errorf("output = %q, want output printed before the failure", out.Output)
	}
}

func TestRunnerTimeout(t *testing.T) {
	r := NewRunner(WithRunTimeout(time.Minute))
	defer r.Stop()

	out, err := r.Run(bg(), Job{Program: compileProgram(t, spinSource), Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	rt, ok := vm.AsRuntimeError(out.Err)
	if !ok || rt.Kind != vm.ErrCancelled {
		t.Fatalf("err = %v, want cancellation", out.Err)
	}
}

func TestRunnerLimits(t *testing.T) {
	r := NewRunner(WithRunLimits(0, 8))
	defer r.Stop()

	src := `
fun down(n: int) -> int {
    return down(n + 1);
}

fun main() {
    print(down(0));
}
`
	out, err := r.Run(bg(), Job{Program: compileProgram(t, src)})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	rt, ok := vm.AsRuntimeError(out.Err)
	if !ok || rt.Kind != vm.ErrCallDepth {
		t.Fatalf("err = %v, want call depth error", out.Err)
	}
}

func TestRunnerNilProgram(t *testing.T) {
	r := NewRunner()
	defer r.Stop()

	out, err := r.Run(bg(), Job{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if out.Err == nil {
		t.Error("expected error for a job without a program")
	}
}

func TestRunnerStopped(t *testing.T) {
	r := NewRunner()
	r.Stop()
	r.Stop()

	_, err := r.Run(bg(), Job{Program: compileProgram(t, factSource)})
	if !errors.Is(err, ErrRunnerStopped) {
		t.Errorf("err = %v, want ErrRunnerStopped", err)
	}
}

func TestRunnerConcurrentSubmit(t *testing.T) {
	r := NewRunner()
	defer r.Stop()

	const n = 8
	progs := make([]*vm.Program, n)
	for i := range progs {
		progs[i] = compileProgram(t, fmt.Sprintf("fun main() { print(%d); }", i))
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := r.Run(bg(), Job{Program: progs[i]})
			if err != nil {
				errs <- err
				return
			}
			if want := fmt.Sprintf("%d\n", i); out.Output != want {
				errs <- fmt.Errorf("output = %q, want %q", out.Output, want)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
