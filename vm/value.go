package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the runtime tag of a Value.
type Kind uint8

const (
	KindNil Kind = iota
	KindInt
	KindChar
	KindBool
	KindFloat
	KindStr
	KindList

	kindCount
)

var kindNames = [kindCount]string{
	KindNil:   "nil",
	KindInt:   "int",
	KindChar:  "char",
	KindBool:  "bool",
	KindFloat: "float",
	KindStr:   "string",
	KindList:  "list",
}

func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Value is the tagged union every instruction operates on.
//
// Int, Char and Bool share the I field (Char holds a byte, Bool holds 0/1),
// Float uses F, Str uses S, and List points at shared storage so that
// Store can mutate a list in place through a reference on the stack.
type Value struct {
	Kind Kind
	I    int64
	F    float64
	S    string
	L    *List
}

// List is the backing storage of a list value.
type List struct {
	Elems []Value
}

// Nil is the value returned by functions that fall off their end.
var Nil = Value{Kind: KindNil}

func IntValue(i int64) Value     { return Value{Kind: KindInt, I: i} }
func CharValue(c byte) Value     { return Value{Kind: KindChar, I: int64(c)} }
func FloatValue(f float64) Value { return Value{Kind: KindFloat, F: f} }
func StrValue(s string) Value    { return Value{Kind: KindStr, S: s} }

func BoolValue(b bool) Value {
	if b {
		return Value{Kind: KindBool, I: 1}
	}
	return Value{Kind: KindBool}
}

// ListValue wraps elems without copying them.
func ListValue(elems ...Value) Value {
	if elems == nil {
		elems = []Value{}
	}
	return Value{Kind: KindList, L: &List{Elems: elems}}
}

// ZeroValue returns the zero value for a scalar kind. Lists and nil have
// no zero value usable by make.
func ZeroValue(k Kind) (Value, bool) {
	switch k {
	case KindInt:
		return IntValue(0), true
	case KindChar:
		return CharValue(0), true
	case KindBool:
		return BoolValue(false), true
	case KindFloat:
		return FloatValue(0), true
	case KindStr:
		return StrValue(""), true
	default:
		return Nil, false
	}
}

// Bool returns the payload of a bool value.
func (v Value) Bool() bool { return v.I != 0 }

// Char returns the payload of a char value.
func (v Value) Char() byte { return byte(v.I) }

// Elems returns the elements of a list value, or nil for other kinds.
func (v Value) Elems() []Value {
	if v.Kind != KindList || v.L == nil {
		return nil
	}
	return v.L.Elems
}

// Clone deep-copies list storage. Scalars are returned as-is.
func (v Value) Clone() Value {
	if v.Kind != KindList || v.L == nil {
		return v
	}
	elems := make([]Value, len(v.L.Elems))
	for i, e := range v.L.Elems {
		elems[i] = e.Clone()
	}
	return Value{Kind: KindList, L: &List{Elems: elems}}
}

// Equal compares by kind and contents. Values of different kinds are
// never equal.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNil:
		return true
	case KindInt, KindChar, KindBool:
		return v.I == o.I
	case KindFloat:
		return v.F == o.F
	case KindStr:
		return v.S == o.S
	case KindList:
		a, b := v.Elems(), o.Elems()
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if !a[i].Equal(b[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// String is the canonical text rendering used by Print.
func (v Value) String() string {
	var sb strings.Builder
	v.write(&sb, false)
	return sb.String()
}

// Repr renders the value the way it would be written in source; strings
// and chars are quoted. Used by the disassembler.
func (v Value) Repr() string {
	var sb strings.Builder
	v.write(&sb, true)
	return sb.String()
}

func (v Value) write(sb *strings.Builder, quote bool) {
	switch v.Kind {
	case KindNil:
		sb.WriteString("nil")
	case KindInt:
		sb.WriteString(strconv.FormatInt(v.I, 10))
	case KindChar:
		if quote {
			sb.WriteString(strconv.QuoteRune(rune(v.Char())))
		} else {
			sb.WriteByte(v.Char())
		}
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.Bool()))
	case KindFloat:
		sb.WriteString(strconv.FormatFloat(v.F, 'f', -1, 64))
	case KindStr:
		if quote {
			sb.WriteString(strconv.Quote(v.S))
		} else {
			sb.WriteString(v.S)
		}
	case KindList:
		sb.WriteByte('[')
		for i, e := range v.Elems() {
			if i > 0 {
				sb.WriteString(", ")
			}
			e.write(sb, quote)
		}
		sb.WriteByte(']')
	default:
		fmt.Fprintf(sb, "<%s>", v.Kind)
	}
}
