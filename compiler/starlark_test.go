package compiler

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/abooishaaq/sahl/vm"
)

func runStarlark(t *testing.T, src string) string {
	t.Helper()
	prog, _, err := CompileSource("test.star", []byte(src), Options{})
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	var out bytes.Buffer
	if _, err := vm.Run(context.Background(), prog, vm.WithOutput(&out)); err != nil {
		t.Fatalf("run error: %v", err)
	}
	return out.String()
}

func TestStarlarkFunctionsAndMain(t *testing.T) {
	out := runStarlark(t, `
def fact(n):
    if n <= 1:
        return 1
    return n * fact(n - 1)

print(fact(5))
`)
	if out != "120\n" {
		t.Errorf("output = %q", out)
	}
}

func TestStarlarkDefMainIsEntry(t *testing.T) {
	out := runStarlark(t, `
def double(n):
    return n * 2

def main():
    print(double(21))
`)
	if out != "42\n" {
		t.Errorf("output = %q", out)
	}
}

func TestStarlarkDefMainConflicts(t *testing.T) {
	tests := []struct {
		src  string
		want string
		line int
	}{
		{`print(1)

def main():
    pass
`, "top-level statements", 3},
		{`def main(a):
    pass
`, "no parameters", 1},
	}
	for _, tc := range tests {
		_, err := ParseStarlark("main.star", []byte(tc.src))
		var de *DiagnosticsError
		if !errors.As(err, &de) {
			t.Errorf("%q: error = %v, want *DiagnosticsError", tc.src, err)
			continue
		}
		d := de.Diagnostics[0]
		if !strings.Contains(d.Msg, tc.want) {
			t.Errorf("%q: message %q does not mention %q", tc.src, d.Msg, tc.want)
		}
		if d.Pos.Line != tc.line || d.Pos.Column != 5 {
			t.Errorf("%q: position = %d:%d, want %d:5", tc.src, d.Pos.Line, d.Pos.Column, tc.line)
		}
	}
}

func TestStarlarkForRange(t *testing.T) {
	out := runStarlark(t, `
total = 0
for i in range(5):
    total += i
evens = []
for i in range(10, 0, -2):
    evens.append(i)
odd = 0
for i in range(1, 10):
    if i % 2 == 0:
        continue
    odd += i
print(total, evens, odd, i)
`)
	if out != "10 [10, 8, 6, 4, 2] 25 9\n" {
		t.Errorf("output = %q", out)
	}
}

func TestStarlarkForList(t *testing.T) {
	out := runStarlark(t, `
xs = [3, 4, 5]
s = 0
for x in xs:
    if x == 5:
        break
    s = s + x
print(s)
`)
	if out != "7\n" {
		t.Errorf("output = %q", out)
	}
}

func TestStarlarkMergeSort(t *testing.T) {
	out := runStarlark(t, `
def merge(arr, left, mid, right):
    arr1 = []
    arr2 = []
    for i in range(left, mid + 1):
        arr1.append(arr[i])
    for i in range(mid + 1, right + 1):
        arr2.append(arr[i])
    i = 0
    j = 0
    k = left
    while i < len(arr1) and j < len(arr2):
        if arr1[i] < arr2[j]:
            arr[k] = arr1[i]
            i += 1
        else:
            arr[k] = arr2[j]
            j += 1
        k += 1
    while i < len(arr1):
        arr[k] = arr1[i]
        i += 1
        k += 1
    while j < len(arr2):
        arr[k] = arr2[j]
        j += 1
        k += 1
    return arr

def merge_sort(arr, left, right):
    if left < right:
        mid = (left + right) // 2
        arr = merge_sort(arr, left, mid)
        arr = merge_sort(arr, mid + 1, right)
        arr = merge(arr, left, mid, right)
    return arr

arr = []
for i in range(8, 0, -1):
    arr.append(i)
print(merge_sort(arr, 0, len(arr) - 1))
`)
	if out != "[1, 2, 3, 4, 5, 6, 7, 8]\n" {
		t.Errorf("output = %q", out)
	}
}

func TestStarlarkBooleans(t *testing.T) {
	out := runStarlark(t, `
a = True
b = not a
print(a and b, a or b, -(3), 7 // 2, 2.5 * 2)
`)
	if out != "false true -3 3 5\n" {
		t.Errorf("output = %q", out)
	}
}

func TestStarlarkErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"def f(*args):\n    pass\n", "only plain parameters"},
		{"x = {}\n", "unsupported expression"},
		{"a, b = 1, 2\n", "unsupported assignment target"},
		{"for i in range(0, 3, n):\n    pass\n", "range step"},
		{"print(y)\n", "undefined: y"},
		{"def f(:\n", "parse errors"},
	}
	for _, tc := range tests {
		_, _, err := CompileSource("bad.star", []byte(tc.src), Options{})
		if err == nil {
			t.Errorf("%q: expected error", tc.src)
			continue
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%q: error %q does not mention %q", tc.src, err, tc.want)
		}
	}
}

func TestStarlarkHoistsLocals(t *testing.T) {
	prog, err := ParseStarlark("t.star", []byte("def f(a):\n    if a:\n        x = 1\n    return x\n"))
	if err != nil {
		t.Fatal(err)
	}
	f := prog.Funcs[0]
	decl, ok := f.Body[0].(*DeclStmt)
	if !ok || decl.Name != "x" {
		t.Fatalf("first statement = %#v, want declaration of x", f.Body[0])
	}
	if err := Check(prog, true); err != nil {
		t.Errorf("check: %v", err)
	}
}

func TestFrontendFor(t *testing.T) {
	tests := map[string]Frontend{
		"a.sahl":   FrontendSahl,
		"a.star":   FrontendStarlark,
		"dir/b.PY": FrontendStarlark,
		"noext":    FrontendSahl,
	}
	for name, want := range tests {
		if got := FrontendFor(name); got != want {
			t.Errorf("FrontendFor(%q) = %v, want %v", name, got, want)
		}
	}
}
