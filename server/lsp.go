package server

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/latino/compiler"
	"github.com/chazu/latino/vm"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "latino-lsp"

var lspLog = commonlog.GetLogger("latino.lsp")

var builtinDocs = map[string]string{
	vm.BuiltinEqual: "`a == b`: true when a and b are equal booleans or integers.",
	vm.BuiltinPrint: "`imprimir(x)`: writes x and a newline, then yields x.",
	vm.BuiltinWrite: "`escribir(x)`: same as imprimir.",
	vm.BuiltinExit:  "`salir()`: stops the program.",
}

// LspServer provides editor features for latino source files. It works on
// the document text alone; nothing is executed.
type LspServer struct {
	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server.
func NewLSP(version string) *LspServer {
	s := &LspServer{
		docs:    make(map[string]string),
		version: version,
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	lspLog.Info("latino LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{}
	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[string(uri)] = whole.Text
			s.mu.Unlock()

			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

func (s *LspServer) document(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	prefix := extractPrefix(text, params.Position)
	if prefix == "" {
		return nil, nil
	}
	return complete(text, prefix), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}
	return hover(text, word), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	text, ok := s.document(uri)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}
	if loc := definition(uri, text, word); loc != nil {
		return []protocol.Location{*loc}, nil
	}
	return nil, nil
}

// --- Source-backed logic ---

// complete offers keywords, builtins, and the names bound in text.
func complete(text, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	seen := make(map[string]bool)
	add := func(name string, kind protocol.CompletionItemKind, detail string) {
		if seen[name] || !strings.HasPrefix(name, prefix) {
			return
		}
		seen[name] = true
		label := name
		items = append(items, protocol.CompletionItem{
			Label:      label,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &label,
		})
	}

	for _, kw := range compiler.Keywords() {
		add(kw, protocol.CompletionItemKindKeyword, "keyword")
	}
	for _, name := range vm.Builtins {
		add(name, protocol.CompletionItemKindFunction, "builtin")
	}

	// The document may be mid-edit; fall back to what parses.
	if root, err := compiler.Parse(text); err == nil {
		for _, name := range compiler.BoundNames(root) {
			if compiler.FindFunction(root, name) != nil {
				add(name, protocol.CompletionItemKindFunction, "function")
			} else {
				add(name, protocol.CompletionItemKindVariable, "variable")
			}
		}
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Label < items[j].Label })

	// Limit results
	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	return items
}

// hover describes builtins and shows the compiled body of functions
// defined in text.
func hover(text, word string) *protocol.Hover {
	var b strings.Builder

	if doc, ok := builtinDocs[word]; ok {
		b.WriteString(doc)
	} else {
		root, err := compiler.Parse(text)
		if err != nil {
			return nil
		}
		def := compiler.FindFunction(root, word)
		if def == nil {
			return nil
		}
		fmt.Fprintf(&b, "**funcion %s(%s)**\n\n", word, strings.Join(def.Params.Names(), ", "))

		if fn, err := compiler.Compile(root); err == nil {
			if body := functionBody(fn.Code, word); body != nil {
				b.WriteString("```\n")
				b.WriteString(vm.Disassemble(word, body))
				b.WriteString("\n```")
			}
		}
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

// functionBody finds the code of the first function named name that code
// creates, directly or in a nested body.
func functionBody(code []vm.Instruction, name string) []vm.Instruction {
	for _, ins := range code {
		if ins.Op != vm.OpMakeFunction {
			continue
		}
		if s, ok := ins.A.(*vm.Str); ok && s.String() == name {
			return ins.Body
		}
		if body := functionBody(ins.Body, name); body != nil {
			return body
		}
	}
	return nil
}

// definition locates the funcion statement that defines word.
func definition(uri protocol.DocumentUri, text, word string) *protocol.Location {
	root, err := compiler.Parse(text)
	if err != nil {
		return nil
	}
	def := compiler.FindFunction(root, word)
	if def == nil {
		return nil
	}
	return &protocol.Location{URI: uri, Range: spanRange(def.Name.Span())}
}

// --- Diagnostics ---

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnose(text),
	})
}

// diagnose reports syntax and code generation errors, or, for a program
// that compiles, the analyzer's warnings.
func diagnose(text string) []protocol.Diagnostic {
	diagnostics := []protocol.Diagnostic{}

	root, err := compiler.Parse(text)
	if err != nil {
		var list compiler.ErrorList
		if errors.As(err, &list) {
			for _, e := range list {
				diagnostics = append(diagnostics, newDiagnostic(e.Pos, e.Pos, protocol.DiagnosticSeverityError, e.Msg))
			}
		} else {
			diagnostics = append(diagnostics, newDiagnostic(compiler.Position{}, compiler.Position{}, protocol.DiagnosticSeverityError, err.Error()))
		}
		return diagnostics
	}

	if _, err := compiler.Compile(root); err != nil {
		var list compiler.CompileErrors
		if errors.As(err, &list) {
			for _, e := range list {
				diagnostics = append(diagnostics, newDiagnostic(e.Pos, e.Pos, protocol.DiagnosticSeverityError, e.Msg))
			}
		}
		return diagnostics
	}

	analyzer := compiler.NewSemanticAnalyzer()
	analyzer.AnalyzeProgram(root)
	for _, d := range analyzer.Diagnostics() {
		diagnostics = append(diagnostics, newDiagnostic(d.Span.Start, d.Span.End, protocol.DiagnosticSeverityWarning, d.Msg))
	}
	return diagnostics
}

func newDiagnostic(start, end compiler.Position, severity protocol.DiagnosticSeverity, msg string) protocol.Diagnostic {
	source := lspName
	return protocol.Diagnostic{
		Range:    spanRange(compiler.Span{Start: start, End: end}),
		Severity: &severity,
		Source:   &source,
		Message:  msg,
	}
}

// spanRange converts 1-based source positions to a 0-based LSP range.
func spanRange(span compiler.Span) protocol.Range {
	return protocol.Range{
		Start: lspPosition(span.Start),
		End:   lspPosition(span.End),
	}
}

func lspPosition(p compiler.Position) protocol.Position {
	line, col := p.Line-1, p.Column-1
	if line < 0 {
		line = 0
	}
	if col < 0 {
		col = 0
	}
	return protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(col)}
}

// --- Text extraction helpers ---

func isIdentChar(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_'
}

// extractPrefix returns the word fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	// Walk backwards from cursor to find the start of the identifier
	start := col
	for start > 0 && isIdentChar(rune(line[start-1])) {
		start--
	}
	return line[start:col]
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	start := col
	for start > 0 && isIdentChar(rune(line[start-1])) {
		start--
	}
	end := col
	for end < len(line) && isIdentChar(rune(line[end])) {
		end++
	}
	return line[start:end]
}

func boolPtr(b bool) *bool {
	return &b
}
