package vm

import "fmt"

// Builtin names bound in every VM's global context.
const (
	BuiltinEqual = "=="
	BuiltinPrint = "imprimir"
	BuiltinWrite = "escribir"
	BuiltinExit  = "salir"
)

// Builtins lists the names registered by New, in registration order.
var Builtins = []string{BuiltinEqual, BuiltinPrint, BuiltinWrite, BuiltinExit}

func (v *VM) registerBuiltins() {
	v.Register(BuiltinEqual, equalPrimitive)
	v.Register(BuiltinPrint, printPrimitive)
	v.Register(BuiltinWrite, printPrimitive)
	v.Register(BuiltinExit, exitPrimitive)
}

// equalPrimitive pops b then a and pushes the equality singleton.
func equalPrimitive(v *VM) {
	b := v.MustPop()
	a := v.MustPop()
	v.Push(BoolValue(Equal(a, b)))
}

// printPrimitive writes the top value followed by a newline. The value is
// pushed back so the call evaluates to its argument.
func printPrimitive(v *VM) {
	val := v.MustPop()
	fmt.Fprintln(v.out, Format(val))
	v.Push(val)
}

func exitPrimitive(v *VM) {
	panic(&ExitError{Code: 0})
}
