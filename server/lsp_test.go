package server

import (
	"strings"
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/chazu/latino/compiler"
)

// ---------------------------------------------------------------------------
// LSP text extraction helpers
// ---------------------------------------------------------------------------

func TestExtractPrefix(t *testing.T) {
	tests := []struct {
		text string
		pos  protocol.Position
		want string
	}{
		{"x = impr", protocol.Position{Line: 0, Character: 8}, "impr"},
		{"fun", protocol.Position{Line: 0, Character: 3}, "fun"},
		{"", protocol.Position{Line: 0, Character: 0}, ""},
		{"a = 1\nb = 2\nsal", protocol.Position{Line: 2, Character: 3}, "sal"},
		{"hola", protocol.Position{Line: 0, Character: 0}, ""},
		{"una linea", protocol.Position{Line: 5, Character: 0}, ""},
		{"f(mi_var", protocol.Position{Line: 0, Character: 20}, "mi_var"},
	}

	for _, tc := range tests {
		if got := extractPrefix(tc.text, tc.pos); got != tc.want {
			t.Errorf("extractPrefix(%q, %v) = %q, want %q", tc.text, tc.pos, got, tc.want)
		}
	}
}

func TestExtractWord(t *testing.T) {
	tests := []struct {
		text string
		pos  protocol.Position
		want string
	}{
		{"imprimir(x)", protocol.Position{Line: 0, Character: 3}, "imprimir"},
		{"imprimir(x)", protocol.Position{Line: 0, Character: 9}, "x"},
		{"a == b", protocol.Position{Line: 0, Character: 3}, ""},
		{"uno\ndos", protocol.Position{Line: 1, Character: 1}, "dos"},
		{"uno", protocol.Position{Line: 3, Character: 0}, ""},
	}

	for _, tc := range tests {
		if got := extractWord(tc.text, tc.pos); got != tc.want {
			t.Errorf("extractWord(%q, %v) = %q, want %q", tc.text, tc.pos, got, tc.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Diagnostics
// ---------------------------------------------------------------------------

func TestDiagnose_Clean(t *testing.T) {
	diags := diagnose("x = 1\nimprimir(x)")
	if len(diags) != 0 {
		t.Errorf("diagnose returned %v, want none", diags)
	}
}

func TestDiagnose_SyntaxError(t *testing.T) {
	diags := diagnose("x = 1\ny = )")
	if len(diags) == 0 {
		t.Fatal("expected a syntax diagnostic")
	}
	d := diags[0]
	if *d.Severity != protocol.DiagnosticSeverityError {
		t.Errorf("severity = %v, want error", *d.Severity)
	}
	if d.Range.Start.Line != 1 {
		t.Errorf("line = %d, want 1 (0-based)", d.Range.Start.Line)
	}
	if *d.Source != lspName {
		t.Errorf("source = %q", *d.Source)
	}
}

func TestDiagnose_Warnings(t *testing.T) {
	diags := diagnose("funcion f()\n  retorno 1\n  imprimir(2)\nfin\nimprimir(fantasma)")
	if len(diags) != 2 {
		t.Fatalf("diagnose returned %d diagnostics, want 2: %v", len(diags), diags)
	}
	var messages []string
	for _, d := range diags {
		if *d.Severity != protocol.DiagnosticSeverityWarning {
			t.Errorf("severity = %v, want warning", *d.Severity)
		}
		messages = append(messages, d.Message)
	}
	joined := strings.Join(messages, "\n")
	for _, want := range []string{"unreachable", "fantasma"} {
		if !strings.Contains(joined, want) {
			t.Errorf("diagnostics %q missing %q", joined, want)
		}
	}
}

func spanAt(line, col int) compiler.Span {
	return compiler.Span{Start: compiler.Position{Line: line, Column: col}}
}

func TestLspPosition_Clamps(t *testing.T) {
	got := spanRange(spanAt(0, 0))
	if got.Start.Line != 0 || got.Start.Character != 0 {
		t.Errorf("zero position mapped to %v", got.Start)
	}
	got = spanRange(spanAt(3, 5))
	if got.Start.Line != 2 || got.Start.Character != 4 {
		t.Errorf("3:5 mapped to %v, want 2:4", got.Start)
	}
}

// ---------------------------------------------------------------------------
// Completion, hover, definition
// ---------------------------------------------------------------------------

const lspSample = `funcion saludar(nombre)
  imprimir(nombre)
fin
saldo = 10
saludar("mundo")`

func completionLabels(items []protocol.CompletionItem) []string {
	labels := make([]string, len(items))
	for i, item := range items {
		labels[i] = item.Label
	}
	return labels
}

func TestComplete(t *testing.T) {
	tests := []struct {
		prefix string
		want   []string
	}{
		{"sal", []string{"saldo", "salir", "saludar"}},
		{"imp", []string{"imprimir"}},
		{"fu", []string{"funcion", "function"}},
		{"zzz", nil},
	}

	for _, tc := range tests {
		got := completionLabels(complete(lspSample, tc.prefix))
		if strings.Join(got, ",") != strings.Join(tc.want, ",") {
			t.Errorf("complete(%q) = %v, want %v", tc.prefix, got, tc.want)
		}
	}
}

func TestComplete_Kinds(t *testing.T) {
	for _, item := range complete(lspSample, "sal") {
		var want protocol.CompletionItemKind
		switch item.Label {
		case "saldo":
			want = protocol.CompletionItemKindVariable
		case "salir", "saludar":
			want = protocol.CompletionItemKindFunction
		}
		if *item.Kind != want {
			t.Errorf("%s kind = %v, want %v", item.Label, *item.Kind, want)
		}
	}
}

func TestComplete_UnparsableDocument(t *testing.T) {
	got := completionLabels(complete("saldo = 1\nsi (", "sal"))
	if strings.Join(got, ",") != "salir" {
		t.Errorf("complete on broken document = %v, want [salir]", got)
	}
}

func TestHover_Function(t *testing.T) {
	h := hover(lspSample, "saludar")
	if h == nil {
		t.Fatal("hover returned nil")
	}
	value := h.Contents.(protocol.MarkupContent).Value
	for _, want := range []string{"funcion saludar(nombre)", "== saludar ==", "STORE_NAME"} {
		if !strings.Contains(value, want) {
			t.Errorf("hover missing %q:\n%s", want, value)
		}
	}
}

func TestHover_Builtin(t *testing.T) {
	h := hover(lspSample, "imprimir")
	if h == nil {
		t.Fatal("hover returned nil")
	}
	if value := h.Contents.(protocol.MarkupContent).Value; !strings.Contains(value, "imprimir(x)") {
		t.Errorf("hover = %q", value)
	}
}

func TestHover_Unknown(t *testing.T) {
	if h := hover(lspSample, "saldo"); h != nil {
		t.Errorf("hover on a variable = %v, want nil", h)
	}
}

func TestDefinition(t *testing.T) {
	uri := protocol.DocumentUri("file:///tmp/main.lat")
	loc := definition(uri, lspSample, "saludar")
	if loc == nil {
		t.Fatal("definition returned nil")
	}
	if loc.URI != uri {
		t.Errorf("URI = %q", loc.URI)
	}
	if loc.Range.Start.Line != 0 || loc.Range.Start.Character != 8 {
		t.Errorf("range start = %v, want 0:8", loc.Range.Start)
	}
	if definition(uri, lspSample, "saldo") != nil {
		t.Error("definition of a variable should be nil")
	}
}
