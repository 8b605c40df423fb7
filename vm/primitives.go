package vm

import (
	"math"
)

// ---------------------------------------------------------------------------
// Kind-pair dispatch
// ---------------------------------------------------------------------------

// kindPair packs two kinds so binary primitives can switch on both tags at
// once. Every pair not listed in a switch is a type mismatch.
type kindPair uint16

func pair(a, b Kind) kindPair { return kindPair(a)<<8 | kindPair(b) }

var (
	intInt     = pair(KindInt, KindInt)
	intFloat   = pair(KindInt, KindFloat)
	floatInt   = pair(KindFloat, KindInt)
	floatFloat = pair(KindFloat, KindFloat)
	charChar   = pair(KindChar, KindChar)
	strStr     = pair(KindStr, KindStr)
	boolBool   = pair(KindBool, KindBool)
	listInt    = pair(KindList, KindInt)
	strInt     = pair(KindStr, KindInt)
)

func asFloat(v Value) float64 {
	if v.Kind == KindInt {
		return float64(v.I)
	}
	return v.F
}

func isNumber(v Value) bool { return v.Kind == KindInt || v.Kind == KindFloat }

// arith implements Add, Sub, Mul, Div and Mod.
func arith(op Opcode, a, b Value) (Value, *opError) {
	switch pair(a.Kind, b.Kind) {
	case intInt:
		return intArith(op, a.I, b.I)
	case floatFloat, intFloat, floatInt:
		return floatArith(op, asFloat(a), asFloat(b))
	case strStr:
		if op == OpAdd {
			return StrValue(a.S + b.S), nil
		}
	}
	return Nil, mismatch(op, a, b)
}

func intArith(op Opcode, a, b int64) (Value, *opError) {
	switch op {
	case OpAdd:
		return IntValue(a + b), nil
	case OpSub:
		return IntValue(a - b), nil
	case OpMul:
		return IntValue(a * b), nil
	case OpDiv:
		if b == 0 {
			return Nil, fail(ErrDivisionByZero, "integer division by zero")
		}
		return IntValue(a / b), nil
	case OpMod:
		if b == 0 {
			return Nil, fail(ErrDivisionByZero, "integer modulo by zero")
		}
		return IntValue(a % b), nil
	}
	return Nil, fail(ErrUnknownOpcode, "%s is not arithmetic", op)
}

func floatArith(op Opcode, a, b float64) (Value, *opError) {
	switch op {
	case OpAdd:
		return FloatValue(a + b), nil
	case OpSub:
		return FloatValue(a - b), nil
	case OpMul:
		return FloatValue(a * b), nil
	case OpDiv:
		if b == 0 {
			return Nil, fail(ErrDivisionByZero, "float division by zero")
		}
		return FloatValue(a / b), nil
	case OpMod:
		if b == 0 {
			return Nil, fail(ErrDivisionByZero, "float modulo by zero")
		}
		return FloatValue(math.Mod(a, b)), nil
	}
	return Nil, fail(ErrUnknownOpcode, "%s is not arithmetic", op)
}

// compare implements the four ordering comparisons.
func compare(op Opcode, a, b Value) (Value, *opError) {
	var c int
	switch pair(a.Kind, b.Kind) {
	case intInt, charChar:
		c = cmp3(a.I < b.I, a.I > b.I)
	case floatFloat, intFloat, floatInt:
		x, y := asFloat(a), asFloat(b)
		c = cmp3(x < y, x > y)
	case strStr:
		c = cmp3(a.S < b.S, a.S > b.S)
	default:
		return Nil, mismatch(op, a, b)
	}
	switch op {
	case OpLess:
		return BoolValue(c < 0), nil
	case OpLessEqual:
		return BoolValue(c <= 0), nil
	case OpGreater:
		return BoolValue(c > 0), nil
	case OpGreaterEqual:
		return BoolValue(c >= 0), nil
	}
	return Nil, fail(ErrUnknownOpcode, "%s is not a comparison", op)
}

func cmp3(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}

// equal compares numbers numerically across int and float; every other
// pair compares structurally, with differing kinds unequal.
func equal(a, b Value) bool {
	if isNumber(a) && isNumber(b) && a.Kind != b.Kind {
		return asFloat(a) == asFloat(b)
	}
	return a.Equal(b)
}

func logic(op Opcode, a, b Value) (Value, *opError) {
	if pair(a.Kind, b.Kind) != boolBool {
		return Nil, mismatch(op, a, b)
	}
	if op == OpAnd {
		return BoolValue(a.Bool() && b.Bool()), nil
	}
	return BoolValue(a.Bool() || b.Bool()), nil
}

func negate(v Value) (Value, *opError) {
	switch v.Kind {
	case KindInt:
		return IntValue(-v.I), nil
	case KindFloat:
		return FloatValue(-v.F), nil
	}
	return Nil, fail(ErrTypeMismatch, "Neg not defined for %s", v.Kind)
}

func not(v Value) (Value, *opError) {
	if v.Kind != KindBool {
		return Nil, fail(ErrTypeMismatch, "Not not defined for %s", v.Kind)
	}
	return BoolValue(!v.Bool()), nil
}

// ---------------------------------------------------------------------------
// List and string primitives
// ---------------------------------------------------------------------------

// index returns a reference to the element; callers that bind it clone.
func index(container, idx Value) (Value, *opError) {
	switch pair(container.Kind, idx.Kind) {
	case listInt:
		elems := container.Elems()
		if idx.I < 0 || idx.I >= int64(len(elems)) {
			return Nil, fail(ErrIndexOutOfRange, "index %d out of range for list of length %d", idx.I, len(elems))
		}
		return elems[idx.I], nil
	case strInt:
		if idx.I < 0 || idx.I >= int64(len(container.S)) {
			return Nil, fail(ErrIndexOutOfRange, "index %d out of range for string of length %d", idx.I, len(container.S))
		}
		return CharValue(container.S[idx.I]), nil
	}
	return Nil, mismatch(OpIndex, container, idx)
}

// store mutates the list storage in place.
func store(container, idx, v Value) *opError {
	if pair(container.Kind, idx.Kind) != listInt {
		return mismatch(OpStore, container, idx)
	}
	elems := container.Elems()
	if idx.I < 0 || idx.I >= int64(len(elems)) {
		return fail(ErrIndexOutOfRange, "index %d out of range for list of length %d", idx.I, len(elems))
	}
	elems[idx.I] = v.Clone()
	return nil
}

// appendValue builds a new list; the original storage is left untouched.
func appendValue(list, v Value) (Value, *opError) {
	if list.Kind != KindList {
		return Nil, fail(ErrBadAppendTarget, "cannot append to %s", list.Kind)
	}
	src := list.Elems()
	elems := make([]Value, len(src), len(src)+1)
	for i, e := range src {
		elems[i] = e.Clone()
	}
	elems = append(elems, v.Clone())
	return ListValue(elems...), nil
}

func length(v Value) (Value, *opError) {
	switch v.Kind {
	case KindList:
		return IntValue(int64(len(v.Elems()))), nil
	case KindStr:
		return IntValue(int64(len(v.S))), nil
	}
	return Nil, fail(ErrTypeMismatch, "Length not defined for %s", v.Kind)
}
