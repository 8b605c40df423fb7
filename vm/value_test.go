package vm

import "testing"

func TestValueString(t *testing.T) {
	tests := []struct {
		v    Value
		want string
		repr string
	}{
		{IntValue(42), "42", "42"},
		{CharValue('a'), "a", "'a'"},
		{BoolValue(false), "false", "false"},
		{FloatValue(0.1), "0.1", "0.1"},
		{FloatValue(3), "3", "3"},
		{StrValue("a\"b"), "a\"b", `"a\"b"`},
		{ListValue(), "[]", "[]"},
		{ListValue(StrValue("x"), CharValue('y')), "[x, y]", `["x", 'y']`},
		{Nil, "nil", "nil"},
	}
	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
		if got := tt.v.Repr(); got != tt.repr {
			t.Errorf("Repr() = %q, want %q", got, tt.repr)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	inner := ListValue(IntValue(1))
	outer := ListValue(inner)
	cp := outer.Clone()
	inner.L.Elems[0] = IntValue(9)
	if got := cp.String(); got != "[[1]]" {
		t.Errorf("clone = %s, want [[1]]", got)
	}
	if got := outer.String(); got != "[[9]]" {
		t.Errorf("original = %s, want [[9]]", got)
	}
}

func TestZeroValue(t *testing.T) {
	for _, k := range []Kind{KindInt, KindChar, KindBool, KindFloat, KindStr} {
		z, ok := ZeroValue(k)
		if !ok || z.Kind != k {
			t.Errorf("ZeroValue(%s) = %s, %v", k, z.Repr(), ok)
		}
	}
	for _, k := range []Kind{KindList, KindNil} {
		if _, ok := ZeroValue(k); ok {
			t.Errorf("ZeroValue(%s) succeeded, want failure", k)
		}
	}
}
