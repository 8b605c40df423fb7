package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const fibSource = `
fun fib(n: int) -> int {
    if n < 2 {
        return n;
    }
    return fib(n - 1) + fib(n - 2);
}

fun main() {
    let xs = make([int], 3);
    xs[0] = fib(10);
    print(xs);
}
`

// project writes a sahl.toml and one source file into a temp dir and
// returns the dir and the source path.
func project(t *testing.T, name, src string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	toml := "[cache]\npath = \"cache.db\"\n[log]\nverbosity = -4\n"
	if err := os.WriteFile(filepath.Join(dir, "sahl.toml"), []byte(toml), 0644); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(src), 0644); err != nil {
		t.Fatal(err)
	}
	return dir, path
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestExecute(t *testing.T) {
	dir, file := project(t, "fib.sahl", fibSource)
	cfg := filepath.Join(dir, "sahl.toml")

	code, out, errOut := runCLI(t, file, "-e", "-config", cfg)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, errOut)
	}
	if out != "[55, 0, 0]\n" {
		t.Errorf("output = %q, want %q", out, "[55, 0, 0]\n")
	}
	if _, err := os.Stat(filepath.Join(dir, "cache.db")); err != nil {
		t.Errorf("cache not created: %v", err)
	}

	// Second run is served from the cache.
	code, out, _ = runCLI(t, "-config", cfg, "-e", file)
	if code != 0 || out != "[55, 0, 0]\n" {
		t.Errorf("cached run: code = %d, output = %q", code, out)
	}
}

func TestCompileThenRunImage(t *testing.T) {
	dir, file := project(t, "fib.sahl", fibSource)
	cfg := filepath.Join(dir, "sahl.toml")
	image := filepath.Join(dir, "fib.bin")

	code, out, errOut := runCLI(t, file, "-c", "-o", image, "-config", cfg, "-no-cache")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, errOut)
	}
	if out != "" {
		t.Errorf("-c printed %q", out)
	}

	code, out, errOut = runCLI(t, "-run", image, "-config", cfg)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, errOut)
	}
	if out != "[55, 0, 0]\n" {
		t.Errorf("output = %q, want %q", out, "[55, 0, 0]\n")
	}
}

func TestVerbose(t *testing.T) {
	dir, file := project(t, "fib.sahl", fibSource)

	code, out, errOut := runCLI(t, file, "-c", "-v", "-no-cache", "-config", filepath.Join(dir, "sahl.toml"),
		"-o", filepath.Join(dir, "exe.bin"))
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, errOut)
	}
	for _, want := range []string{"Program\n", "Func fun fib(n: int) -> int", "Program is well-typed", "<main>:", "Call"} {
		if !strings.Contains(out, want) {
			t.Errorf("verbose output lacks %q:\n%s", want, out)
		}
	}
}

func TestDefaultOutputFromManifest(t *testing.T) {
	dir, file := project(t, "fib.sahl", fibSource)
	code, _, errOut := runCLI(t, file, "-c", "-no-cache", "-config", filepath.Join(dir, "sahl.toml"))
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, errOut)
	}
	if _, err := os.Stat(filepath.Join(dir, "exe.bin")); err != nil {
		t.Errorf("exe.bin not written next to sahl.toml: %v", err)
	}
}

func TestStarlarkFile(t *testing.T) {
	dir, file := project(t, "sum.star", "total = 0\nfor i in range(5):\n    total += i\nprint(total)\n")
	code, out, errOut := runCLI(t, file, "-e", "-no-cache", "-config", filepath.Join(dir, "sahl.toml"))
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, errOut)
	}
	if out != "10\n" {
		t.Errorf("output = %q, want %q", out, "10\n")
	}
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		args []string
		code int
		want string
	}{
		{"runtime", "fun main() { let z = 0; print(1 / z); }", []string{"-e"}, 1, "division by zero"},
		{"check", "fun main() { print(ghost); }", []string{"-e"}, 1, "undefined: ghost"},
		{"native", "fun main() { }", []string{"-n"}, 1, "native code generation is not available"},
		{"no action", "fun main() { }", nil, 2, "Usage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, file := project(t, "a.sahl", tt.src)
			args := append([]string{file, "-no-cache", "-config", filepath.Join(dir, "sahl.toml")}, tt.args...)
			code, _, errOut := runCLI(t, args...)
			if code != tt.code {
				t.Errorf("exit code = %d, want %d", code, tt.code)
			}
			if !strings.Contains(errOut, tt.want) {
				t.Errorf("stderr = %q, want it to contain %q", errOut, tt.want)
			}
		})
	}
}

func TestTooManyFiles(t *testing.T) {
	code, _, errOut := runCLI(t, "a.sahl", "b.sahl", "-e")
	if code != 2 {
		t.Errorf("exit code = %d, want 2", code)
	}
	if !strings.Contains(errOut, "expected one file") {
		t.Errorf("stderr = %q", errOut)
	}
}
