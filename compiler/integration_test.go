package compiler

import (
	"bytes"
	"errors"
	"testing"

	"github.com/chazu/latino/vm"
)

// Integration tests: compile and execute real latino programs

func newTestVM(interactive bool) (*vm.VM, *bytes.Buffer) {
	var out bytes.Buffer
	v := vm.New(vm.WithOutput(&out), vm.WithInteractive(interactive))
	// siguiente(n) pushes n+1; the language itself has no arithmetic.
	v.Register("siguiente", func(v *vm.VM) {
		n := v.MustPop().(vm.Int)
		v.Push(n + 1)
	})
	v.Register("anterior", func(v *vm.VM) {
		n := v.MustPop().(vm.Int)
		v.Push(n - 1)
	})
	v.Register("producto", func(v *vm.VM) {
		b := v.MustPop().(vm.Int)
		a := v.MustPop().(vm.Int)
		v.Push(a * b)
	})
	return v, &out
}

func runSource(t *testing.T, v *vm.VM, source string) (vm.Value, bool, error) {
	t.Helper()
	fn, err := Analyze(source)
	if err != nil {
		t.Fatalf("Analyze(%q): %v", source, err)
	}
	return v.Run(fn)
}

func TestIntegrationPrint(t *testing.T) {
	v, out := newTestVM(false)
	_, _, err := runSource(t, v, `imprimir("hola mundo")
escribir(42)
imprimir(verdadero)
imprimir(falso)`)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := "hola mundo\n42\nverdadero\nfalso\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestIntegrationAssignmentReadBack(t *testing.T) {
	v, out := newTestVM(false)
	if _, _, err := runSource(t, v, "x = 10\nimprimir(x)"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.String() != "10\n" {
		t.Errorf("output = %q, want 10", out.String())
	}
}

func TestIntegrationInteractivePersistence(t *testing.T) {
	v, _ := newTestVM(true)
	if _, _, err := runSource(t, v, "x = 10"); err != nil {
		t.Fatalf("run: %v", err)
	}
	got, ok := v.Lookup("x")
	if !ok || got != vm.Int(10) {
		t.Errorf("x = %v, %v; want 10", got, ok)
	}

	result, ok, err := runSource(t, v, "x")
	if err != nil || !ok || result != vm.Int(10) {
		t.Errorf("x in a later unit = %v, %v, %v; want 10", result, ok, err)
	}
}

func TestIntegrationProgramModeDiscardsMainScope(t *testing.T) {
	v, _ := newTestVM(false)
	if _, _, err := runSource(t, v, "y = 1"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, ok := v.Lookup("y"); ok {
		t.Error("y leaked out of the program's scope")
	}
	if v.ContextDepth() != 1 {
		t.Errorf("context depth after run = %d, want 1", v.ContextDepth())
	}
}

func TestIntegrationResult(t *testing.T) {
	v, _ := newTestVM(false)
	result, ok, err := runSource(t, v, "42")
	if err != nil || !ok || result != vm.Int(42) {
		t.Errorf("result = %v, %v, %v; want 42", result, ok, err)
	}

	_, ok, err = runSource(t, v, "")
	if err != nil || ok {
		t.Errorf("empty program: ok = %v, err = %v; want no result", ok, err)
	}
	if v.StackDepth() != 0 {
		t.Errorf("stack depth = %d, want 0", v.StackDepth())
	}
}

func TestIntegrationEquality(t *testing.T) {
	tests := []struct {
		source string
		want   bool
	}{
		{"5 == 5", true},
		{"5 == 6", false},
		{`5 == "5"`, false},
		{"verdadero == verdadero", true},
		{"verdadero == falso", false},
		{"x == x", false},
	}

	v, _ := newTestVM(true)
	v.Define("x", vm.NewString("x"))
	for _, tc := range tests {
		result, _, err := runSource(t, v, tc.source)
		if err != nil {
			t.Errorf("%s: %v", tc.source, err)
			continue
		}
		if result != vm.BoolValue(tc.want) {
			t.Errorf("%s = %v, want %v", tc.source, result, tc.want)
		}
	}
}

func TestIntegrationEqualityBuiltin(t *testing.T) {
	v, _ := newTestVM(false)
	eq, ok := v.Lookup(vm.BuiltinEqual)
	if !ok {
		t.Fatal("== is not bound")
	}
	result, err := v.Call(eq, vm.Int(3), vm.Int(3))
	if err != nil || result != vm.True {
		t.Errorf("==(3, 3) = %v, %v; want verdadero", result, err)
	}
	result, err = v.Call(eq, vm.Int(3), vm.NewString("3"))
	if err != nil || result != vm.False {
		t.Errorf(`==(3, "3") = %v, %v; want falso`, result, err)
	}
}

func TestIntegrationIfElse(t *testing.T) {
	v, out := newTestVM(false)
	_, _, err := runSource(t, v, `x = 1
si x == 1
  imprimir("uno")
sino
  imprimir("otro")
fin
si x == 2
  imprimir("dos")
sino
  imprimir("no es dos")
fin
si falso
  imprimir("nunca")
fin`)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.String() != "uno\nno es dos\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestIntegrationTruthiness(t *testing.T) {
	v, out := newTestVM(false)
	_, _, err := runSource(t, v, `si 0
  imprimir("0")
fin
si 7
  imprimir("7")
fin
si ""
  imprimir("vacio")
fin
si "a"
  imprimir("a")
fin`)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.String() != "7\nvacio\na\n" {
		t.Errorf("output = %q, want 7, vacio and a", out.String())
	}
}

func TestIntegrationFunctionCall(t *testing.T) {
	v, out := newTestVM(false)
	_, _, err := runSource(t, v, `funcion primero(a, b)
  retorno a
fin
funcion segundo(a, b)
  retorno b
fin
imprimir(primero(1, 2))
imprimir(segundo(1, 2))`)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.String() != "1\n2\n" {
		t.Errorf("output = %q, want 1 then 2", out.String())
	}
}

func TestIntegrationFunctionWithoutReturn(t *testing.T) {
	v, out := newTestVM(false)
	_, _, err := runSource(t, v, `funcion nada()
fin
imprimir(nada())
imprimir(imprimir)
imprimir(nada)`)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.String() != "nulo\nC_Funcion\nFuncion\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestIntegrationScopingSnapshot(t *testing.T) {
	source := `x = 1
funcion f()
  x = 2
  retorno x
fin
imprimir(f())
imprimir(x)`

	v, out := newTestVM(false)
	if _, _, err := runSource(t, v, source); err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.String() != "2\n1\n" {
		t.Errorf("program mode output = %q, want 2 then 1", out.String())
	}

	// In interactive mode calls share the session context.
	v, out = newTestVM(true)
	if _, _, err := runSource(t, v, source); err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.String() != "2\n2\n" {
		t.Errorf("interactive output = %q, want 2 then 2", out.String())
	}
}

func TestIntegrationCalleeCannotSeeLaterBindings(t *testing.T) {
	v, _ := newTestVM(false)
	_, _, err := runSource(t, v, `funcion f()
  retorno tarde
fin
f()
tarde = 1`)
	if !errors.Is(err, vm.ErrNameError) {
		t.Errorf("err = %v, want NameError", err)
	}
}

func TestIntegrationRecursionByName(t *testing.T) {
	v, out := newTestVM(false)
	_, _, err := runSource(t, v, `funcion cuenta(n)
  imprimir(n)
  si n == 3
    retorno "listo"
  fin
  retorno cuenta(siguiente(n))
fin
imprimir(cuenta(0))`)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.String() != "0\n1\n2\n3\nlisto\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestIntegrationRecursionBySelf(t *testing.T) {
	v, out := newTestVM(false)
	_, _, err := runSource(t, v, `funcion hasta(n, fin_)
  si n == fin_
    retorno n
  fin
  retorno $(siguiente(n), fin_)
fin
imprimir(hasta(0, 25))`)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.String() != "25\n" {
		t.Errorf("output = %q, want 25", out.String())
	}
}

func TestIntegrationFactorial(t *testing.T) {
	tests := []struct {
		name string
		call string
	}{
		{"by name", "fact(anterior(n))"},
		{"by self", "$(anterior(n))"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, out := newTestVM(false)
			_, _, err := runSource(t, v, `funcion fact(n)
  si n == 0
    retorno 1
  fin
  retorno producto(n, `+tt.call+`)
fin
imprimir(fact(5))
imprimir(fact(0))`)
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if out.String() != "120\n1\n" {
				t.Errorf("output = %q, want 120 then 1", out.String())
			}
		})
	}
}

func TestIntegrationRunawayRecursion(t *testing.T) {
	var out bytes.Buffer
	v := vm.New(vm.WithOutput(&out), vm.WithMaxCallDepth(50))
	_, _, err := runSource(t, v, `funcion f()
  retorno f()
fin
f()`)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, vm.ErrHostLimit) && !errors.Is(err, vm.ErrNamespaceOverflow) {
		t.Errorf("err = %v, want a depth limit error", err)
	}
	if v.ContextDepth() != 1 || v.StackDepth() != 0 {
		t.Errorf("VM not restored: contexts %d, stack %d", v.ContextDepth(), v.StackDepth())
	}
}

func TestIntegrationNamespaceOverflow(t *testing.T) {
	var out bytes.Buffer
	v := vm.New(vm.WithOutput(&out), vm.WithMaxContextDepth(8))
	_, _, err := runSource(t, v, `funcion f()
  retorno f()
fin
f()`)
	if !errors.Is(err, vm.ErrNamespaceOverflow) {
		t.Errorf("err = %v, want NamespaceOverflow", err)
	}
}

func TestIntegrationNotCallable(t *testing.T) {
	v, _ := newTestVM(false)
	_, _, err := runSource(t, v, "x = 1\nx()")
	if !errors.Is(err, vm.ErrNotCallable) {
		t.Errorf("err = %v, want NotCallable", err)
	}
}

func TestIntegrationUndefinedName(t *testing.T) {
	v, _ := newTestVM(false)
	_, _, err := runSource(t, v, "imprimir(nadie)")
	var rerr *vm.RuntimeError
	if !errors.As(err, &rerr) || rerr.Kind != vm.NameError || rerr.Name != "nadie" {
		t.Errorf("err = %#v, want NameError for nadie", err)
	}
}

func TestIntegrationStackUnderflowRecovery(t *testing.T) {
	v, out := newTestVM(true)
	_, _, err := runSource(t, v, "imprimir()")
	if !errors.Is(err, vm.ErrStackUnderflow) {
		t.Fatalf("err = %v, want StackUnderflow", err)
	}
	if v.StackDepth() != 0 {
		t.Errorf("stack depth after error = %d, want 0", v.StackDepth())
	}

	// The VM stays usable after the error.
	if _, _, err := runSource(t, v, `imprimir("sigue")`); err != nil {
		t.Fatalf("run after error: %v", err)
	}
	if out.String() != "sigue\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestIntegrationCalleeCannotPopCallerValues(t *testing.T) {
	v, _ := newTestVM(false)
	// f declares two parameters but receives one; the second store must
	// not reach below the frame.
	_, _, err := runSource(t, v, `funcion f(a, b)
  retorno a
fin
imprimir(1, f(2))`)
	if !errors.Is(err, vm.ErrStackUnderflow) {
		t.Errorf("err = %v, want StackUnderflow", err)
	}
}

func TestIntegrationExit(t *testing.T) {
	v, out := newTestVM(false)
	_, _, err := runSource(t, v, `imprimir("antes")
salir()
imprimir("despues")`)
	var exit *vm.ExitError
	if !errors.As(err, &exit) || exit.Code != 0 {
		t.Fatalf("err = %v, want exit request", err)
	}
	if !errors.Is(err, vm.ErrExitRequested) {
		t.Error("exit error does not match ErrExitRequested")
	}
	if out.String() != "antes\n" {
		t.Errorf("output = %q, want only antes", out.String())
	}
}

func TestIntegrationCallCompiledFunction(t *testing.T) {
	v, _ := newTestVM(true)
	if _, _, err := runSource(t, v, "funcion segundo(a, b)\n  retorno b\nfin"); err != nil {
		t.Fatalf("run: %v", err)
	}
	fn, ok := v.Lookup("segundo")
	if !ok {
		t.Fatal("segundo is not defined")
	}
	result, err := v.Call(fn, vm.Int(1), vm.Int(2))
	if err != nil || result != vm.Int(2) {
		t.Errorf("segundo(1, 2) = %v, %v; want 2", result, err)
	}
}

func TestIntegrationImageRoundTrip(t *testing.T) {
	source := `funcion saluda(nombre)
  imprimir(nombre)
  retorno verdadero
fin
si saluda("hola")
  imprimir(7)
fin`
	fn, err := Analyze(source)
	if err != nil {
		t.Fatal(err)
	}
	data, err := vm.MarshalImage(fn, vm.HashSource([]byte(source)))
	if err != nil {
		t.Fatalf("MarshalImage: %v", err)
	}
	loaded, hash, err := vm.UnmarshalImage(data)
	if err != nil {
		t.Fatalf("UnmarshalImage: %v", err)
	}
	if hash != vm.HashSource([]byte(source)) {
		t.Error("source hash not preserved")
	}
	if vm.DisassembleFunction(loaded) != vm.DisassembleFunction(fn) {
		t.Errorf("disassembly differs:\n%s\nvs\n%s", vm.DisassembleFunction(loaded), vm.DisassembleFunction(fn))
	}

	v, out := newTestVM(false)
	if _, _, err := v.Run(loaded); err != nil {
		t.Fatalf("run loaded image: %v", err)
	}
	if out.String() != "hola\n7\n" {
		t.Errorf("output = %q", out.String())
	}
}
