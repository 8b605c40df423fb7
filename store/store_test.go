package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/abooishaaq/sahl/vm"
)

func testProgram() *vm.Program {
	return &vm.Program{
		Code: []vm.Instruction{
			{Op: vm.OpConst, Const: vm.IntValue(42)},
			{Op: vm.OpConst, Const: vm.ListValue(vm.StrValue("a"), vm.FloatValue(1.5))},
			{Op: vm.OpPrint, A: 2},
			{Op: vm.OpPop},
			{Op: vm.OpReturn},
		},
		Functions: []vm.FunctionInfo{{Name: "main", Entry: 0}},
		Start:     0,
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sub", "cache.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGet(t *testing.T) {
	s := openTestStore(t)
	p := testProgram()

	if err := s.Put("abc", "demo.sahl", p); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	e, err := s.Get("abc")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if e.Name != "demo.sahl" {
		t.Errorf("name = %q, want demo.sahl", e.Name)
	}
	if got, want := vm.Disassemble(e.Program), vm.Disassemble(p); got != want {
		t.Errorf("program = \n%s\nwant\n%s", got, want)
	}
	if e.CreatedAt.IsZero() {
		t.Error("created_at not set")
	}
}

func TestPutReplaces(t *testing.T) {
	s := openTestStore(t)
	if err := s.Put("abc", "old", testProgram()); err != nil {
		t.Fatal(err)
	}
	if err := s.Put("abc", "new", testProgram()); err != nil {
		t.Fatal(err)
	}
	e, err := s.Get("abc")
	if err != nil {
		t.Fatal(err)
	}
	if e.Name != "new" {
		t.Errorf("name = %q, want new", e.Name)
	}
}

func TestGetNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := s.Run("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if err := s.Delete("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRuns(t *testing.T) {
	s := openTestStore(t)
	base := time.UnixMilli(1_700_000_000_000)

	for i, out := range []string{"first\n", "second\n", "third\n"} {
		_, err := s.RecordRun(Run{
			Hash:      "abc",
			Output:    out,
			StartedAt: base.Add(time.Duration(i) * time.Second),
			Duration:  15 * time.Millisecond,
		})
		if err != nil {
			t.Fatalf("RecordRun failed: %v", err)
		}
	}
	if _, err := s.RecordRun(Run{Hash: "other", Error: "boom"}); err != nil {
		t.Fatal(err)
	}

	runs, err := s.Runs("abc", 2)
	if err != nil {
		t.Fatalf("Runs failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d, want 2", len(runs))
	}
	if runs[0].Output != "third\n" || runs[1].Output != "second\n" {
		t.Errorf("outputs = %q, %q, want third, second", runs[0].Output, runs[1].Output)
	}
	if runs[0].Duration != 15*time.Millisecond {
		t.Errorf("duration = %v, want 15ms", runs[0].Duration)
	}

	all, err := s.Runs("abc", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("len(all) = %d, want 3", len(all))
	}
}

func TestRecordRunAssignsID(t *testing.T) {
	s := openTestStore(t)
	r, err := s.RecordRun(Run{Hash: "abc", Error: "division by zero"})
	if err != nil {
		t.Fatal(err)
	}
	if len(r.ID) != 36 {
		t.Errorf("id = %q, want a uuid", r.ID)
	}

	got, err := s.Run(r.ID)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got.Error != "division by zero" || got.Hash != "abc" {
		t.Errorf("run = %+v", got)
	}
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	if err := s.Put("abc", "demo", testProgram()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RecordRun(Run{Hash: "abc"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("abc"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get("abc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	runs, _ := s.Runs("abc", 0)
	if len(runs) != 0 {
		t.Errorf("len(runs) = %d, want 0", len(runs))
	}
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put("abc", "demo", testProgram()); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, err := s.Get("abc"); err != nil {
		t.Errorf("Get after reopen: %v", err)
	}
}
