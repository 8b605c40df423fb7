package vm

import (
	"bytes"
	"context"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func imageTestProgram() *Program {
	p := factorialProgram()
	// Exercise every constant tag in main's preamble.
	consts := []Instruction{
		c(ListValue(IntValue(-1), CharValue('z'), BoolValue(true), FloatValue(3.25), StrValue("héllo"), Nil, ListValue())),
		opA(OpPrint, 1),
		op(OpPop),
	}
	mainStart := p.Start
	code := append([]Instruction{}, p.Code[:mainStart]...)
	code = append(code, consts...)
	code = append(code, p.Code[mainStart:]...)
	p.Code = code
	return p
}

func TestImageRoundTrip(t *testing.T) {
	p := imageTestProgram()
	data, err := Serialize(p)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	if !bytes.Equal(data[:4], ImageMagic[:]) {
		t.Fatalf("magic = %q, want %q", data[:4], ImageMagic[:])
	}
	got, err := Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	if !reflect.DeepEqual(got, p) {
		t.Fatalf("round trip mismatch:\n got %s\nwant %s", Disassemble(got), Disassemble(p))
	}

	var direct, loaded bytes.Buffer
	r1, err := Run(context.Background(), p, WithOutput(&direct))
	if err != nil {
		t.Fatalf("direct run failed: %v", err)
	}
	r2, err := Run(context.Background(), got, WithOutput(&loaded))
	if err != nil {
		t.Fatalf("loaded run failed: %v", err)
	}
	if direct.String() != loaded.String() || !r1.Equal(r2) {
		t.Errorf("loaded run = (%q, %s), direct run = (%q, %s)", loaded.String(), r2.Repr(), direct.String(), r1.Repr())
	}
}

func TestImageFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exe.bin")
	if err := WriteImage(factorialProgram(), path); err != nil {
		t.Fatalf("WriteImage failed: %v", err)
	}
	p, err := ReadImage(path)
	if err != nil {
		t.Fatalf("ReadImage failed: %v", err)
	}
	got, _ := mustRun(t, p)
	if !got.Equal(IntValue(120)) {
		t.Errorf("result = %s, want 120", got.Repr())
	}
}

func TestDeserializeErrors(t *testing.T) {
	good, err := Serialize(imageTestProgram())
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	newer := append([]byte{}, good...)
	newer[4], newer[5] = 0xFF, 0xFF

	badOp := append([]byte{}, good...)
	// The first opcode follows the code count, which follows the function table.
	ir := NewImageReaderFromBytes(good)
	if _, err := ir.ReadHeader(); err != nil {
		t.Fatal(err)
	}
	if _, err := ir.ReadFunctions(); err != nil {
		t.Fatal(err)
	}
	badOp[ir.pos+4] = 200

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"short", good[:5], "image too short"},
		{"magic", append([]byte("NOPE"), good[4:]...), "invalid image magic"},
		{"version", newer, "newer than supported"},
		{"truncated", good[:len(good)-3], "unexpected end of image"},
		{"trailing", append(append([]byte{}, good...), 0), "trailing bytes"},
		{"opcode", badOp, "unknown opcode 200"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Deserialize(tt.data)
			if err == nil {
				t.Fatal("Deserialize succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestOversizedFrameImageRejected(t *testing.T) {
	p := mainOnly(0, op(OpTrue), op(OpReturn))
	p.Functions[0].Locals = 1 << 31
	data, err := Serialize(p)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	decoded, err := Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	if _, err := New(decoded); err == nil || !strings.Contains(err.Error(), "too many") {
		t.Errorf("New error = %v, want frame size rejection", err)
	}
}
