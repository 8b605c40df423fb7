package vm

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// maxImageDepth bounds list nesting in constants so a hostile image cannot
// exhaust the Go stack.
const maxImageDepth = 64

// ---------------------------------------------------------------------------
// ImageReader: bytes -> Program
// ---------------------------------------------------------------------------

// ImageReader decodes an image produced by Serialize.
type ImageReader struct {
	data []byte
	pos  int
}

// NewImageReaderFromBytes wraps data.
func NewImageReaderFromBytes(data []byte) *ImageReader {
	return &ImageReader{data: data}
}

func (ir *ImageReader) need(n int, what string) error {
	if n < 0 || ir.pos+n > len(ir.data) {
		return fmt.Errorf("unexpected end of image reading %s at pos %d", what, ir.pos)
	}
	return nil
}

func (ir *ImageReader) readByte(what string) (byte, error) {
	if err := ir.need(1, what); err != nil {
		return 0, err
	}
	b := ir.data[ir.pos]
	ir.pos++
	return b, nil
}

func (ir *ImageReader) readUint16(what string) (uint16, error) {
	if err := ir.need(2, what); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(ir.data[ir.pos:])
	ir.pos += 2
	return v, nil
}

func (ir *ImageReader) readUint32(what string) (uint32, error) {
	if err := ir.need(4, what); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(ir.data[ir.pos:])
	ir.pos += 4
	return v, nil
}

func (ir *ImageReader) readUint64(what string) (uint64, error) {
	if err := ir.need(8, what); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(ir.data[ir.pos:])
	ir.pos += 8
	return v, nil
}

func (ir *ImageReader) readInt(what string) (int, error) {
	v, err := ir.readUint32(what)
	return int(v), err
}

func (ir *ImageReader) readBytes(n int, what string) ([]byte, error) {
	if err := ir.need(n, what); err != nil {
		return nil, err
	}
	b := ir.data[ir.pos : ir.pos+n]
	ir.pos += n
	return b, nil
}

// ReadHeader checks the magic and version and returns the start offset.
func (ir *ImageReader) ReadHeader() (int, error) {
	if len(ir.data) < ImageHeaderSize {
		return 0, fmt.Errorf("image too short: need at least %d bytes, got %d", ImageHeaderSize, len(ir.data))
	}
	if [4]byte(ir.data[0:4]) != ImageMagic {
		return 0, fmt.Errorf("invalid image magic: expected %q, got %q", ImageMagic[:], ir.data[0:4])
	}
	ir.pos = 4
	version, _ := ir.readUint16("version")
	if version > ImageVersion {
		return 0, fmt.Errorf("image version %d is newer than supported version %d", version, ImageVersion)
	}
	if _, err := ir.readUint16("flags"); err != nil {
		return 0, err
	}
	return ir.readInt("start offset")
}

// ReadFunctions decodes the function table.
func (ir *ImageReader) ReadFunctions() ([]FunctionInfo, error) {
	count, err := ir.readInt("function count")
	if err != nil {
		return nil, err
	}
	// Each entry is at least 14 bytes; reject counts the input cannot hold.
	if err := ir.need(count*14, "function table"); err != nil {
		return nil, err
	}
	fns := make([]FunctionInfo, 0, count)
	for i := 0; i < count; i++ {
		nameLen, err := ir.readUint16(fmt.Sprintf("function %d name length", i))
		if err != nil {
			return nil, err
		}
		name, err := ir.readBytes(int(nameLen), fmt.Sprintf("function %d name", i))
		if err != nil {
			return nil, err
		}
		fn := FunctionInfo{Name: string(name)}
		if fn.Entry, err = ir.readInt(fn.Name + " entry"); err != nil {
			return nil, err
		}
		if fn.Params, err = ir.readInt(fn.Name + " params"); err != nil {
			return nil, err
		}
		if fn.Locals, err = ir.readInt(fn.Name + " locals"); err != nil {
			return nil, err
		}
		fns = append(fns, fn)
	}
	return fns, nil
}

// ReadCode decodes the instruction sequence.
func (ir *ImageReader) ReadCode() ([]Instruction, error) {
	count, err := ir.readInt("instruction count")
	if err != nil {
		return nil, err
	}
	if err := ir.need(count, "code section"); err != nil {
		return nil, err
	}
	code := make([]Instruction, 0, count)
	for offset := 0; offset < count; offset++ {
		b, err := ir.readByte(fmt.Sprintf("opcode %d", offset))
		if err != nil {
			return nil, err
		}
		in := Instruction{Op: Opcode(b)}
		info, ok := in.Op.Info()
		if !ok {
			return nil, fmt.Errorf("unknown opcode %d at instruction %d (pos %d)", b, offset, ir.pos-1)
		}
		switch info.Shape {
		case OperandA:
			in.A, err = ir.readInt(fmt.Sprintf("%s operand at %d", in.Op, offset))
		case OperandAB:
			if in.A, err = ir.readInt(fmt.Sprintf("%s entry at %d", in.Op, offset)); err == nil {
				in.B, err = ir.readInt(fmt.Sprintf("%s argc at %d", in.Op, offset))
			}
		case OperandConst:
			in.Const, err = ir.readValue(0)
		}
		if err != nil {
			return nil, err
		}
		code = append(code, in)
	}
	return code, nil
}

func (ir *ImageReader) readValue(depth int) (Value, error) {
	if depth > maxImageDepth {
		return Nil, fmt.Errorf("constant nested deeper than %d at pos %d", maxImageDepth, ir.pos)
	}
	tag, err := ir.readByte("value tag")
	if err != nil {
		return Nil, err
	}
	kind, ok := tagToKind[tag]
	if !ok {
		return Nil, fmt.Errorf("unknown value tag %d at pos %d", tag, ir.pos-1)
	}
	switch kind {
	case KindNil:
		return Nil, nil
	case KindInt:
		u, err := ir.readUint64("int value")
		return IntValue(int64(u)), err
	case KindChar:
		b, err := ir.readByte("char value")
		return CharValue(b), err
	case KindBool:
		b, err := ir.readByte("bool value")
		return BoolValue(b != 0), err
	case KindFloat:
		u, err := ir.readUint64("float value")
		return FloatValue(math.Float64frombits(u)), err
	case KindStr:
		n, err := ir.readInt("string length")
		if err != nil {
			return Nil, err
		}
		b, err := ir.readBytes(n, "string bytes")
		if err != nil {
			return Nil, err
		}
		return StrValue(string(b)), nil
	case KindList:
		n, err := ir.readInt("list length")
		if err != nil {
			return Nil, err
		}
		if err := ir.need(n, "list elements"); err != nil {
			return Nil, err
		}
		elems := make([]Value, n)
		for i := range elems {
			if elems[i], err = ir.readValue(depth + 1); err != nil {
				return Nil, err
			}
		}
		return ListValue(elems...), nil
	}
	return Nil, fmt.Errorf("unhandled value kind %s", kind)
}

// Deserialize decodes an image produced by Serialize. Trailing bytes are an
// error.
func Deserialize(data []byte) (*Program, error) {
	ir := NewImageReaderFromBytes(data)
	start, err := ir.ReadHeader()
	if err != nil {
		return nil, err
	}
	fns, err := ir.ReadFunctions()
	if err != nil {
		return nil, err
	}
	code, err := ir.ReadCode()
	if err != nil {
		return nil, err
	}
	if ir.pos != len(data) {
		return nil, fmt.Errorf("%d trailing bytes after code section", len(data)-ir.pos)
	}
	return &Program{Code: code, Functions: fns, Start: start}, nil
}

// ReadImage loads a program from path.
func ReadImage(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	p, err := Deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", path, err)
	}
	return p, nil
}
