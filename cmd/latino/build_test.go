package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/latino/vm"
)

func TestBuildImageRunsLikeSource(t *testing.T) {
	dir := t.TempDir()
	src := writeLatFile(t, dir, "saludo.lat", `funcion saluda(n)
  imprimir(n)
fin
saluda(5)`)

	out, err := buildImage(src, "", nil)
	if err != nil {
		t.Fatalf("buildImage: %v", err)
	}
	if want := filepath.Join(dir, "saludo.latc"); out != want {
		t.Errorf("output path = %s, want %s", out, want)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	_, hash, err := vm.UnmarshalImage(data)
	if err != nil {
		t.Fatalf("UnmarshalImage: %v", err)
	}
	source, _ := os.ReadFile(src)
	if hash != vm.HashSource(source) {
		t.Error("image does not record the source hash")
	}

	var fromSource, fromImage, stderr bytes.Buffer
	if code := runFile(src, nil, &stderr, vm.WithOutput(&fromSource)); code != 0 {
		t.Fatalf("running source: %s", stderr.String())
	}
	if code := runFile(out, nil, &stderr, vm.WithOutput(&fromImage)); code != 0 {
		t.Fatalf("running image: %s", stderr.String())
	}
	if fromImage.String() != fromSource.String() || fromImage.String() != "5\n" {
		t.Errorf("image output %q, source output %q", fromImage.String(), fromSource.String())
	}
}

func TestBuildImageExplicitOutput(t *testing.T) {
	dir := t.TempDir()
	src := writeLatFile(t, dir, "main.lat", "x = 1")
	want := filepath.Join(dir, "out", "prog.latc")
	if err := os.MkdirAll(filepath.Dir(want), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := buildImage(src, want, nil)
	if err != nil {
		t.Fatalf("buildImage: %v", err)
	}
	if got != want {
		t.Errorf("output path = %s, want %s", got, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("image not written: %v", err)
	}
}

func TestBuildImageErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := buildImage(filepath.Join(dir, "prog.txt"), "", nil); !errors.Is(err, errExtension) {
		t.Errorf("wrong extension error = %v", err)
	}
	bad := writeLatFile(t, dir, "bad.lat", "funcion f(")
	if _, err := buildImage(bad, "", nil); err == nil {
		t.Error("buildImage of bad source should fail")
	}
	if _, err := os.Stat(filepath.Join(dir, "bad.latc")); !os.IsNotExist(err) {
		t.Error("image written for bad source")
	}
}

func TestDisassembleFile(t *testing.T) {
	dir := t.TempDir()
	src := writeLatFile(t, dir, "prog.lat", "funcion f()\n  retorno 1\nfin\nx = f()")

	var fromSource bytes.Buffer
	if err := disassembleFile(&fromSource, src, nil); err != nil {
		t.Fatalf("disassembleFile: %v", err)
	}
	listing := fromSource.String()
	for _, want := range []string{"== <main> ==", "MAKE_FUNCTION", "CALL_FUNCTION", "STORE_NAME", "RETURN_VALUE"} {
		if !strings.Contains(listing, want) {
			t.Errorf("listing missing %s:\n%s", want, listing)
		}
	}

	img, err := buildImage(src, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	var fromImage bytes.Buffer
	if err := disassembleFile(&fromImage, img, nil); err != nil {
		t.Fatalf("disassembleFile(image): %v", err)
	}
	if fromImage.String() != listing {
		t.Errorf("image listing differs from source listing:\n%s\nvs\n%s", fromImage.String(), listing)
	}
}

func TestReorderArgs(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"main.lat"}, "main.lat"},
		{[]string{"main.lat", "-o", "m.latc"}, "-o m.latc main.lat"},
		{[]string{"-o", "m.latc", "main.lat"}, "-o m.latc main.lat"},
		{[]string{"main.lat", "-o=m.latc"}, "-o=m.latc main.lat"},
		{[]string{"main.lat", "-o"}, "-o main.lat"},
	}
	for _, tt := range tests {
		if got := strings.Join(reorderArgs(tt.args, "o"), " "); got != tt.want {
			t.Errorf("reorderArgs(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}
