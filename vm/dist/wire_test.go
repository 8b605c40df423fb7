package dist

import (
	"reflect"
	"strings"
	"testing"

	"github.com/abooishaaq/sahl/vm"
	"github.com/fxamacker/cbor/v2"
)

func testProgram() *vm.Program {
	return &vm.Program{
		Code: []vm.Instruction{
			{Op: vm.OpGetLocal, A: 0},
			{Op: vm.OpConst, Const: vm.FloatValue(0.5)},
			{Op: vm.OpMul},
			{Op: vm.OpReturn},
			{Op: vm.OpReturn},
			{Op: vm.OpConst, Const: vm.ListValue(vm.IntValue(3), vm.StrValue("x"), vm.CharValue('c'), vm.BoolValue(true), vm.Nil, vm.ListValue())},
			{Op: vm.OpPrint, A: 1},
			{Op: vm.OpPop},
			{Op: vm.OpConst, Const: vm.IntValue(8)},
			{Op: vm.OpCall, A: 0, B: 1},
			{Op: vm.OpReturn},
			{Op: vm.OpReturn},
		},
		Functions: []vm.FunctionInfo{
			{Name: "half", Entry: 0, Params: 1, Locals: 1},
			{Name: "main", Entry: 5},
		},
		Start: 5,
	}
}

func TestProgram_CBORRoundTrip(t *testing.T) {
	p := testProgram()
	data, hash, err := Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, gotHash, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if gotHash != hash {
		t.Errorf("hash = %s, want %s", gotHash, hash)
	}
	if !reflect.DeepEqual(got, p) {
		t.Errorf("round trip mismatch:\n got %s\nwant %s", vm.Disassemble(got), vm.Disassemble(p))
	}
}

func TestMarshal_Deterministic(t *testing.T) {
	a, ha, err := Marshal(testProgram())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	b, hb, err := Marshal(testProgram())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(a) != string(b) || ha != hb {
		t.Error("encoding the same program twice produced different bytes")
	}

	other := testProgram()
	other.Code[8].Const = vm.IntValue(9)
	_, hc, err := Marshal(other)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if hc == ha {
		t.Error("different programs share a hash")
	}
}

func TestUnmarshal_RejectsTamperedBody(t *testing.T) {
	data, _, err := Marshal(testProgram())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var env Envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	env.Body[len(env.Body)-1] ^= 0x01
	tampered, err := cborEncMode.Marshal(&env)
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if _, _, err := Unmarshal(tampered); err == nil || !strings.Contains(err.Error(), "hash mismatch") {
		t.Errorf("err = %v, want hash mismatch", err)
	}
}

func TestUnmarshal_RejectsGarbage(t *testing.T) {
	if _, _, err := Unmarshal([]byte{0xff, 0x00}); err == nil {
		t.Error("Unmarshal of garbage succeeded")
	}
}
