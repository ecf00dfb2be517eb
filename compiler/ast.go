package compiler

// ---------------------------------------------------------------------------
// AST: Abstract Syntax Tree for latino
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Span represents a range in source code.
type Span struct {
	Start Position
	End   Position
}

// Node is the interface implemented by all AST nodes. Every node owns its
// children; the tree has no sharing and no cycles.
type Node interface {
	Span() Span
	node() // marker method
}

// ---------------------------------------------------------------------------
// Statement lists
// ---------------------------------------------------------------------------

// Block chains statements as a left-growing list: Left is the most
// recently parsed statement and Right holds everything before it.
type Block struct {
	SpanVal Span
	Left    Node
	Right   Node
}

func (n *Block) Span() Span { return n.SpanVal }
func (n *Block) node()      {}

// ---------------------------------------------------------------------------
// Leaves
// ---------------------------------------------------------------------------

// Identifier is a name reference.
type Identifier struct {
	SpanVal Span
	Name    string
}

func (n *Identifier) Span() Span { return n.SpanVal }
func (n *Identifier) node()      {}

// IntegerLiteral is a decimal integer.
type IntegerLiteral struct {
	SpanVal Span
	Value   int64
}

func (n *IntegerLiteral) Span() Span { return n.SpanVal }
func (n *IntegerLiteral) node()      {}

// StringLiteral is a quoted string.
type StringLiteral struct {
	SpanVal Span
	Value   string
}

func (n *StringLiteral) Span() Span { return n.SpanVal }
func (n *StringLiteral) node()      {}

// BoolLiteral is verdadero or falso.
type BoolLiteral struct {
	SpanVal Span
	Value   bool
}

func (n *BoolLiteral) Span() Span { return n.SpanVal }
func (n *BoolLiteral) node()      {}

// SelfRef ($) evaluates to the function currently executing.
type SelfRef struct {
	SpanVal Span
}

func (n *SelfRef) Span() Span { return n.SpanVal }
func (n *SelfRef) node()      {}

// ---------------------------------------------------------------------------
// Statements and expressions
// ---------------------------------------------------------------------------

// Assignment binds Target to the value of Value.
type Assignment struct {
	SpanVal Span
	Target  *Identifier
	Value   Node
}

func (n *Assignment) Span() Span { return n.SpanVal }
func (n *Assignment) node()      {}

// If is a conditional. Then and Else are nil for empty branches; an empty
// else clause is the same as none.
type If struct {
	SpanVal Span
	Cond    Node
	Then    Node
	Else    Node
}

func (n *If) Span() Span { return n.SpanVal }
func (n *If) node()      {}

// FunctionDef declares a named function. Params and Body may be nil.
type FunctionDef struct {
	SpanVal Span
	Name    *Identifier
	Params  *ParameterList
	Body    Node
}

func (n *FunctionDef) Span() Span { return n.SpanVal }
func (n *FunctionDef) node()      {}

// ParameterList is a left-growing list: Head is the last declared
// parameter and Tail holds the ones declared before it.
type ParameterList struct {
	SpanVal Span
	Head    *Identifier
	Tail    *ParameterList
}

func (n *ParameterList) Span() Span { return n.SpanVal }
func (n *ParameterList) node()      {}

// Names returns the parameter names in declaration order.
func (n *ParameterList) Names() []string {
	var rev []string
	for p := n; p != nil; p = p.Tail {
		if p.Head != nil {
			rev = append(rev, p.Head.Name)
		}
	}
	names := make([]string, len(rev))
	for i, name := range rev {
		names[len(rev)-1-i] = name
	}
	return names
}

// FunctionCall calls Callee with Args, which may be nil.
type FunctionCall struct {
	SpanVal Span
	Callee  Node
	Args    *ArgumentList
}

func (n *FunctionCall) Span() Span { return n.SpanVal }
func (n *FunctionCall) node()      {}

// ArgumentList is a right-growing list in call order. Tail is either
// another ArgumentList, the final argument expression, or nil.
type ArgumentList struct {
	SpanVal Span
	Head    Node
	Tail    Node
}

func (n *ArgumentList) Span() Span { return n.SpanVal }
func (n *ArgumentList) node()      {}

// Return yields Expr from the enclosing function.
type Return struct {
	SpanVal Span
	Expr    Node
}

func (n *Return) Span() Span { return n.SpanVal }
func (n *Return) node()      {}

// Equality compares Left and Right.
type Equality struct {
	SpanVal Span
	Left    Node
	Right   Node
}

func (n *Equality) Span() Span { return n.SpanVal }
func (n *Equality) node()      {}
