package server

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/abooishaaq/sahl/compiler"
	"github.com/abooishaaq/sahl/store"
	"github.com/abooishaaq/sahl/vm"
)

const factSource = `
fun fact(n: int) -> int {
    if n <= 1 {
        return 1;
    }
    return n * fact(n - 1);
}

fun main() {
    print(fact(5));
}
`

const divideSource = `
fun main() {
    let z = 0;
    print("before");
    print(1 / z);
}
`

const spinSource = `
fun main() {
    while true {
    }
}
`

func bg() context.Context {
	return context.Background()
}

func compileProgram(t *testing.T, src string) *vm.Program {
	t.Helper()
	prog, _, err := compiler.CompileSource("test.sahl", []byte(src), compiler.Options{})
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	return prog
}

// newTestToolchain creates a Toolchain backed by a fresh store.
func newTestToolchain(t *testing.T, opts ...RunnerOption) (*Toolchain, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	runner := NewRunner(opts...)
	t.Cleanup(func() {
		runner.Stop()
		st.Close()
	})
	return NewToolchain(runner, st), st
}
