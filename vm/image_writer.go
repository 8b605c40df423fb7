package vm

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// ---------------------------------------------------------------------------
// Serialize: Program -> bytes
// ---------------------------------------------------------------------------

// Serialize encodes p as a big-endian image.
//
// Format:
//
//	[magic:4 "SAHL"] [version:2] [flags:2] [start:4]
//	[func_count:4] { [name_len:2] [name] [entry:4] [params:4] [locals:4] }*
//	[instr_count:4] { [op:1] [operands] }*
//
// Operands: one u32 for Jump, JumpIfFalse, List, DefLocal, GetLocal, Assign
// and Print; entry u32 then argc u32 for Call; a tagged value for Const.
func Serialize(p *Program) ([]byte, error) {
	buf := make([]byte, 0, ImageHeaderSize+len(p.Code)*5+len(p.Functions)*24)

	buf = append(buf, ImageMagic[:]...)
	buf = binary.BigEndian.AppendUint16(buf, ImageVersion)
	buf = binary.BigEndian.AppendUint16(buf, ImageFlagNone)
	start, err := u32(p.Start, "start offset")
	if err != nil {
		return nil, err
	}
	buf = binary.BigEndian.AppendUint32(buf, start)

	// Function table
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(p.Functions)))
	for _, fn := range p.Functions {
		if len(fn.Name) > math.MaxUint16 {
			return nil, fmt.Errorf("function name too long: %d bytes", len(fn.Name))
		}
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(fn.Name)))
		buf = append(buf, fn.Name...)
		for _, field := range []struct {
			v    int
			name string
		}{{fn.Entry, "entry"}, {fn.Params, "params"}, {fn.Locals, "locals"}} {
			x, err := u32(field.v, fn.Name+" "+field.name)
			if err != nil {
				return nil, err
			}
			buf = binary.BigEndian.AppendUint32(buf, x)
		}
	}

	// Code
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(p.Code)))
	for offset, in := range p.Code {
		info, ok := in.Op.Info()
		if !ok {
			return nil, fmt.Errorf("unknown opcode %d at %d", byte(in.Op), offset)
		}
		buf = append(buf, byte(in.Op))
		switch info.Shape {
		case OperandA:
			a, err := u32(in.A, fmt.Sprintf("%s operand at %d", in.Op, offset))
			if err != nil {
				return nil, err
			}
			buf = binary.BigEndian.AppendUint32(buf, a)
		case OperandAB:
			a, err := u32(in.A, fmt.Sprintf("%s entry at %d", in.Op, offset))
			if err != nil {
				return nil, err
			}
			b, err := u32(in.B, fmt.Sprintf("%s argc at %d", in.Op, offset))
			if err != nil {
				return nil, err
			}
			buf = binary.BigEndian.AppendUint32(buf, a)
			buf = binary.BigEndian.AppendUint32(buf, b)
		case OperandConst:
			if buf, err = appendImageValue(buf, in.Const); err != nil {
				return nil, fmt.Errorf("constant at %d: %w", offset, err)
			}
		}
	}
	return buf, nil
}

// WriteImage serializes p to path.
func WriteImage(p *Program, path string) error {
	data, err := Serialize(p)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	return nil
}

func appendImageValue(buf []byte, v Value) ([]byte, error) {
	if v.Kind >= kindCount {
		return nil, fmt.Errorf("unknown value kind %d", v.Kind)
	}
	buf = append(buf, kindToTag[v.Kind])
	switch v.Kind {
	case KindNil:
	case KindInt:
		buf = binary.BigEndian.AppendUint64(buf, uint64(v.I))
	case KindChar, KindBool:
		buf = append(buf, byte(v.I))
	case KindFloat:
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(v.F))
	case KindStr:
		n, err := u32(len(v.S), "string length")
		if err != nil {
			return nil, err
		}
		buf = binary.BigEndian.AppendUint32(buf, n)
		buf = append(buf, v.S...)
	case KindList:
		elems := v.Elems()
		n, err := u32(len(elems), "list length")
		if err != nil {
			return nil, err
		}
		buf = binary.BigEndian.AppendUint32(buf, n)
		for _, e := range elems {
			if buf, err = appendImageValue(buf, e); err != nil {
				return nil, err
			}
		}
	}
	return buf, nil
}

func u32(v int, what string) (uint32, error) {
	if v < 0 || int64(v) > math.MaxUint32 {
		return 0, fmt.Errorf("%s %d does not fit in u32", what, v)
	}
	return uint32(v), nil
}
