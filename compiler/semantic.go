package compiler

import (
	"fmt"
	"sort"

	"github.com/chazu/latino/vm"
)

// ---------------------------------------------------------------------------
// Semantic checks: advisory warnings over a parsed program
// ---------------------------------------------------------------------------

// Diagnostic is a warning found by the semantic checker. It never stops
// compilation; names can be bound at runtime by code the checker cannot see.
type Diagnostic struct {
	Span Span
	Msg  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("warning: line %d, column %d: %s", d.Span.Start.Line, d.Span.Start.Column, d.Msg)
}

// SemanticAnalyzer looks for names that are read but bound nowhere and
// for statements that follow a return.
type SemanticAnalyzer struct {
	diags []Diagnostic

	// Known globals that are always defined
	knownGlobals map[string]bool

	// Every name the program binds anywhere. Calls see a snapshot of the
	// caller's context, so any binding may be visible inside a function.
	bound map[string]bool

	// Parameters of the enclosing function definitions
	scopes []map[string]bool
}

// NewSemanticAnalyzer creates an analyzer that knows the builtins.
func NewSemanticAnalyzer() *SemanticAnalyzer {
	s := &SemanticAnalyzer{knownGlobals: make(map[string]bool)}
	for _, name := range vm.Builtins {
		s.knownGlobals[name] = true
	}
	return s
}

// AddKnownGlobal marks name as defined, e.g. for names a host registers.
func (s *SemanticAnalyzer) AddKnownGlobal(name string) {
	s.knownGlobals[name] = true
}

// Diagnostics returns the accumulated warnings.
func (s *SemanticAnalyzer) Diagnostics() []Diagnostic {
	return s.diags
}

func (s *SemanticAnalyzer) warnAt(node Node, format string, args ...interface{}) {
	s.diags = append(s.diags, Diagnostic{Span: node.Span(), Msg: fmt.Sprintf(format, args...)})
}

// AnalyzeProgram checks a whole program.
func (s *SemanticAnalyzer) AnalyzeProgram(root Node) {
	s.diags = nil
	s.scopes = nil
	s.bound = make(map[string]bool)
	for _, name := range BoundNames(root) {
		s.bound[name] = true
	}
	s.analyzeStatements(root)
}

func (s *SemanticAnalyzer) analyzeStatements(body Node) {
	stmts := Statements(body)
	for _, stmt := range stmts {
		s.analyze(stmt)
	}
	s.checkUnreachableCode(stmts)
}

func (s *SemanticAnalyzer) analyze(node Node) {
	switch n := node.(type) {
	case *Identifier:
		s.checkNameDefined(n)
	case *Assignment:
		s.analyze(n.Value)
	case *Equality:
		s.analyze(n.Left)
		s.analyze(n.Right)
	case *If:
		s.analyze(n.Cond)
		s.analyzeStatements(n.Then)
		s.analyzeStatements(n.Else)
	case *FunctionDef:
		params := make(map[string]bool)
		for _, name := range n.Params.Names() {
			params[name] = true
		}
		s.scopes = append(s.scopes, params)
		s.analyzeStatements(n.Body)
		s.scopes = s.scopes[:len(s.scopes)-1]
	case *Return:
		s.analyze(n.Expr)
	case *FunctionCall:
		s.analyze(n.Callee)
		for _, arg := range Arguments(n.Args) {
			s.analyze(arg)
		}
	case *Block:
		s.analyzeStatements(n)
	}
}

func (s *SemanticAnalyzer) checkNameDefined(id *Identifier) {
	name := id.Name
	if s.bound[name] || s.knownGlobals[name] {
		return
	}
	for i := len(s.scopes) - 1; i >= 0; i-- {
		if s.scopes[i][name] {
			return
		}
	}
	s.warnAt(id, "name '%s' is never assigned", name)
}

func (s *SemanticAnalyzer) checkUnreachableCode(stmts []Node) {
	for i, stmt := range stmts {
		if _, isReturn := stmt.(*Return); isReturn && i < len(stmts)-1 {
			s.warnAt(stmts[i+1], "unreachable code after return")
			return
		}
	}
}

// Check parses source and returns its semantic warnings.
func Check(source string) ([]Diagnostic, error) {
	root, err := Parse(source)
	if err != nil {
		return nil, err
	}
	analyzer := NewSemanticAnalyzer()
	analyzer.AnalyzeProgram(root)
	return analyzer.Diagnostics(), nil
}

// ---------------------------------------------------------------------------
// Tree helpers
// ---------------------------------------------------------------------------

// Statements flattens a Block chain into source order.
func Statements(body Node) []Node {
	var stmts []Node
	var walk func(Node)
	walk = func(n Node) {
		switch b := n.(type) {
		case nil:
		case *Block:
			walk(b.Right)
			walk(b.Left)
		default:
			stmts = append(stmts, n)
		}
	}
	walk(body)
	return stmts
}

// Arguments flattens an argument list into call order.
func Arguments(args *ArgumentList) []Node {
	var out []Node
	for args != nil {
		if args.Head != nil {
			out = append(out, args.Head)
		}
		switch tail := args.Tail.(type) {
		case *ArgumentList:
			args = tail
			continue
		case nil:
		default:
			out = append(out, tail)
		}
		break
	}
	return out
}

// BoundNames returns every name the program assigns, defines as a function
// or declares as a parameter, sorted.
func BoundNames(root Node) []string {
	seen := make(map[string]bool)
	var walk func(Node)
	walk = func(node Node) {
		switch n := node.(type) {
		case *Block:
			walk(n.Right)
			walk(n.Left)
		case *Assignment:
			seen[n.Target.Name] = true
		case *If:
			walk(n.Then)
			walk(n.Else)
		case *FunctionDef:
			seen[n.Name.Name] = true
			for _, p := range n.Params.Names() {
				seen[p] = true
			}
			walk(n.Body)
		}
	}
	walk(root)

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FindFunction returns the first definition of name in root, searching
// nested bodies too.
func FindFunction(root Node, name string) *FunctionDef {
	var found *FunctionDef
	var walk func(Node)
	walk = func(node Node) {
		if found != nil {
			return
		}
		switch n := node.(type) {
		case *Block:
			walk(n.Right)
			walk(n.Left)
		case *If:
			walk(n.Then)
			walk(n.Else)
		case *FunctionDef:
			if n.Name.Name == name {
				found = n
				return
			}
			walk(n.Body)
		}
	}
	walk(root)
	return found
}
