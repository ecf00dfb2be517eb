package vm

import (
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// Value model
// ---------------------------------------------------------------------------

// Kind identifies the variant carried by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindString
	KindFunction
	KindNative
	KindContext
)

var kindNames = map[Kind]string{
	KindNull:     "null",
	KindBool:     "bool",
	KindInt:      "int",
	KindString:   "string",
	KindFunction: "function",
	KindNative:   "native",
	KindContext:  "context",
}

// String implements the Stringer interface.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is a tagged runtime value. Every variant is either a singleton
// (Null, True, False), an immutable scalar (Int), or a pointer whose
// identity is meaningful (*Str, *Function, *Native, *Context).
type Value interface {
	Kind() Kind
	String() string
}

type nullValue struct{}

func (nullValue) Kind() Kind { return KindNull }
func (nullValue) String() string { return "nulo" }

// Bool is a boolean value. Only the True and False singletons exist.
type Bool struct {
	v bool
}

func (b *Bool) Kind() Kind { return KindBool }

func (b *Bool) String() string {
	if b.v {
		return "verdadero"
	}
	return "falso"
}

// Truth returns the Go boolean carried by b.
func (b *Bool) Truth() bool { return b.v }

// Int is a 64-bit signed integer value.
type Int int64

func (Int) Kind() Kind { return KindInt }
func (i Int) String() string { return strconv.FormatInt(int64(i), 10) }

// Singletons shared by every VM in the process.
var (
	Null  Value = &nullValue{}
	True        = &Bool{v: true}
	False       = &Bool{v: false}
)

// BoolValue returns the singleton for b.
func BoolValue(b bool) *Bool {
	if b {
		return True
	}
	return False
}

// IsNull reports whether v is the null value (or a nil interface).
func IsNull(v Value) bool {
	return v == nil || v.Kind() == KindNull
}

// Function is a compiled user function: an instruction array plus the
// number of declared parameters. Code is never mutated after compilation,
// so nested and recursive invocations share it.
type Function struct {
	Name   string
	Params int
	Code   []Instruction
}

func (*Function) Kind() Kind { return KindFunction }
func (*Function) String() string { return "Funcion" }

// NativeFunc is a host callback. It receives the VM and works purely
// through the operand stack: it pops its own arguments and pushes its
// result.
type NativeFunc func(v *VM)

// Native wraps a NativeFunc as a Value.
type Native struct {
	Name string
	Fn   NativeFunc
}

func (*Native) Kind() Kind { return KindNative }
func (*Native) String() string { return "C_Funcion" }

// Equal implements the language's type-aware equality: booleans compare
// by truth value, integers numerically, and every other pairing is
// unequal.
func Equal(a, b Value) bool {
	switch x := a.(type) {
	case *Bool:
		if y, ok := b.(*Bool); ok {
			return x.v == y.v
		}
	case Int:
		if y, ok := b.(Int); ok {
			return x == y
		}
	}
	return false
}

// Truthy decides the outcome of a conditional jump. Booleans use their
// value; null and integer zero are false; everything else is true,
// including the empty string.
func Truthy(v Value) bool {
	switch x := v.(type) {
	case *Bool:
		return x.v
	case Int:
		return x != 0
	case nil:
		return false
	}
	return v.Kind() != KindNull
}

// Format renders v the way the print builtins show it.
func Format(v Value) string {
	if v == nil {
		return Null.String()
	}
	return v.String()
}
