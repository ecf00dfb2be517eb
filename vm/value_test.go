package vm

import (
	"testing"
)

// ---------------------------------------------------------------------------
// Value tests
// ---------------------------------------------------------------------------

func TestBoolSingletons(t *testing.T) {
	if BoolValue(true) != True || BoolValue(false) != False {
		t.Error("BoolValue should return the singletons")
	}
	if !True.Truth() || False.Truth() {
		t.Error("Truth() mismatch")
	}
}

func TestKinds(t *testing.T) {
	tests := []struct {
		val  Value
		kind Kind
		name string
	}{
		{Null, KindNull, "null"},
		{True, KindBool, "bool"},
		{Int(1), KindInt, "int"},
		{NewString("s"), KindString, "string"},
		{&Function{}, KindFunction, "function"},
		{&Native{}, KindNative, "native"},
		{NewContext(), KindContext, "context"},
	}
	for _, tc := range tests {
		if tc.val.Kind() != tc.kind {
			t.Errorf("%s: Kind() = %v, want %v", tc.name, tc.val.Kind(), tc.kind)
		}
	}
}

func TestEqual(t *testing.T) {
	s := NewString("5")
	fn := &Function{}
	tests := []struct {
		a, b Value
		want bool
	}{
		{Int(5), Int(5), true},
		{Int(5), Int(6), false},
		{Int(5), s, false},
		{True, True, true},
		{True, False, false},
		{False, False, true},
		{Int(1), True, false},
		{s, s, false},
		{Null, Null, false},
		{fn, fn, false},
	}
	for _, tc := range tests {
		if got := Equal(tc.a, tc.b); got != tc.want {
			t.Errorf("Equal(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		val  Value
		want bool
	}{
		{True, true},
		{False, false},
		{Null, false},
		{nil, false},
		{Int(0), false},
		{Int(-1), true},
		{NewString(""), true},
		{NewString("x"), true},
		{&Function{}, true},
		{&Native{}, true},
		{NewContext(), true},
	}
	for _, tc := range tests {
		if got := Truthy(tc.val); got != tc.want {
			t.Errorf("Truthy(%v) = %v, want %v", tc.val, got, tc.want)
		}
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		val  Value
		want string
	}{
		{Null, "nulo"},
		{nil, "nulo"},
		{True, "verdadero"},
		{False, "falso"},
		{Int(-42), "-42"},
		{NewString("hola"), "hola"},
		{&Function{Name: "f"}, "Funcion"},
		{&Native{Name: "imprimir"}, "C_Funcion"},
		{NewContext(), "Objeto"},
	}
	for _, tc := range tests {
		if got := Format(tc.val); got != tc.want {
			t.Errorf("Format(%#v) = %q, want %q", tc.val, got, tc.want)
		}
	}
}

func TestIsNull(t *testing.T) {
	if !IsNull(nil) || !IsNull(Null) {
		t.Error("IsNull should accept nil and Null")
	}
	if IsNull(Int(0)) || IsNull(False) {
		t.Error("IsNull should reject non-null values")
	}
}
