package compiler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Parse errors
// ---------------------------------------------------------------------------

// ParseError is one syntax error.
type ParseError struct {
	Pos   Position
	Msg   string
	AtEOF bool // the input ended before the construct did
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d:%d: %s", e.Pos.Line, e.Pos.Column, e.Msg)
}

// ErrorList collects the syntax errors of one compilation unit.
type ErrorList []*ParseError

func (l ErrorList) Error() string {
	msgs := make([]string, len(l))
	for i, e := range l {
		msgs[i] = e.Error()
	}
	return "parse errors: " + strings.Join(msgs, "; ")
}

// Incomplete reports whether err is a parse failure caused only by the
// input ending early, so that more input could complete it.
func Incomplete(err error) bool {
	var list ErrorList
	if !errors.As(err, &list) || len(list) == 0 {
		return false
	}
	for _, e := range list {
		if !e.AtEOF {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Parser: recursive descent parser for latino
// ---------------------------------------------------------------------------

// Parser parses latino source code into an AST.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
	errors    ErrorList
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input)}
	// Read two tokens to fill curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

// curTokenIs checks if the current token is of the given type.
func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

// peekTokenIs checks if the peek token is of the given type.
func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peekToken.Type == t
}

// expect advances if the current token matches, otherwise records an error.
func (p *Parser) expect(t TokenType) bool {
	if p.curTokenIs(t) {
		p.nextToken()
		return true
	}
	p.errorf("expected %s, got %s", t, p.describe(p.curToken))
	return false
}

// errorf records a parse error at the current token.
func (p *Parser) errorf(format string, args ...interface{}) {
	p.errors = append(p.errors, &ParseError{
		Pos:   p.curToken.Pos,
		Msg:   fmt.Sprintf(format, args...),
		AtEOF: p.curTokenIs(TokenEOF),
	})
}

// unexpected records an error for the current token. Lexical errors are
// reported as they are.
func (p *Parser) unexpected() {
	if p.curTokenIs(TokenError) {
		p.errorf("%s", p.curToken.Literal)
		return
	}
	p.errorf("unexpected %s", p.describe(p.curToken))
}

func (p *Parser) describe(tok Token) string {
	switch tok.Type {
	case TokenEOF:
		return "end of input"
	case TokenNewline:
		return "end of line"
	case TokenError:
		return tok.Literal
	case TokenIdentifier, TokenInteger:
		return fmt.Sprintf("%s %s", tok.Type, tok.Literal)
	case TokenString:
		return fmt.Sprintf("string %q", tok.Literal)
	}
	return fmt.Sprintf("%q", tok.Type.String())
}

// Errors returns accumulated parse errors as messages.
func (p *Parser) Errors() []string {
	msgs := make([]string, len(p.errors))
	for i, e := range p.errors {
		msgs[i] = e.Error()
	}
	return msgs
}

// Err returns the accumulated errors, or nil.
func (p *Parser) Err() error {
	if len(p.errors) == 0 {
		return nil
	}
	return p.errors
}

func (p *Parser) skipNewlines() {
	for p.curTokenIs(TokenNewline) {
		p.nextToken()
	}
}

// synchronize skips to the start of the next statement after an error.
func (p *Parser) synchronize() {
	for !p.curTokenIs(TokenNewline) && !p.curTokenIs(TokenEOF) {
		p.nextToken()
	}
}

// ---------------------------------------------------------------------------
// Top-level parsing
// ---------------------------------------------------------------------------

// Parse parses a whole compilation unit. An empty program yields a nil
// node and no error.
func Parse(input string) (Node, error) {
	p := NewParser(input)
	root := p.ParseProgram()
	if err := p.Err(); err != nil {
		return nil, err
	}
	return root, nil
}

// ParseProgram parses statements until end of input.
func (p *Parser) ParseProgram() Node {
	body := p.parseStatements()
	if !p.curTokenIs(TokenEOF) {
		p.unexpected()
	}
	return body
}

// parseStatements parses statements until EOF, sino or fin and returns
// them as a left-growing Block chain.
func (p *Parser) parseStatements() Node {
	var block Node
	for {
		p.skipNewlines()
		if p.curTokenIs(TokenEOF) || p.curTokenIs(TokenElse) || p.curTokenIs(TokenEnd) {
			return block
		}

		before := len(p.errors)
		stmt := p.ParseStatement()
		if len(p.errors) > before {
			p.synchronize()
			continue
		}
		if stmt != nil {
			if block == nil {
				block = stmt
			} else {
				block = &Block{
					SpanVal: Span{Start: block.Span().Start, End: stmt.Span().End},
					Left:    stmt,
					Right:   block,
				}
			}
		}

		switch p.curToken.Type {
		case TokenNewline, TokenEOF, TokenElse, TokenEnd:
		default:
			p.errorf("expected end of statement, got %s", p.describe(p.curToken))
			p.synchronize()
		}
	}
}

// ParseStatement parses a single statement.
func (p *Parser) ParseStatement() Node {
	switch p.curToken.Type {
	case TokenIf:
		return p.parseIf()
	case TokenFunction:
		return p.parseFunctionDef()
	case TokenReturn:
		return p.parseReturn()
	case TokenIdentifier:
		if p.peekTokenIs(TokenAssign) {
			return p.parseAssignment()
		}
	}
	return p.ParseExpression()
}

func (p *Parser) parseAssignment() Node {
	target := &Identifier{SpanVal: p.tokenSpan(), Name: p.curToken.Literal}
	p.nextToken() // identifier
	p.nextToken() // =
	value := p.ParseExpression()
	if value == nil {
		return nil
	}
	return &Assignment{
		SpanVal: Span{Start: target.SpanVal.Start, End: value.Span().End},
		Target:  target,
		Value:   value,
	}
}

func (p *Parser) parseIf() Node {
	start := p.curToken.Pos
	p.nextToken() // si

	cond := p.ParseExpression()
	if cond == nil {
		return nil
	}
	node := &If{Cond: cond}
	node.Then = p.parseStatements()
	if p.curTokenIs(TokenElse) {
		p.nextToken()
		node.Else = p.parseStatements()
	}
	end := p.curToken.Pos
	if !p.expect(TokenEnd) {
		return nil
	}
	node.SpanVal = Span{Start: start, End: end}
	return node
}

func (p *Parser) parseFunctionDef() Node {
	start := p.curToken.Pos
	p.nextToken() // funcion

	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected function name, got %s", p.describe(p.curToken))
		return nil
	}
	name := &Identifier{SpanVal: p.tokenSpan(), Name: p.curToken.Literal}
	p.nextToken()

	if !p.expect(TokenLParen) {
		return nil
	}
	var params *ParameterList
	seen := make(map[string]bool)
	for !p.curTokenIs(TokenRParen) {
		if params != nil && !p.expect(TokenComma) {
			return nil
		}
		if !p.curTokenIs(TokenIdentifier) {
			p.errorf("expected parameter name, got %s", p.describe(p.curToken))
			return nil
		}
		if seen[p.curToken.Literal] {
			p.errorf("duplicate parameter %s", p.curToken.Literal)
			return nil
		}
		seen[p.curToken.Literal] = true
		head := &Identifier{SpanVal: p.tokenSpan(), Name: p.curToken.Literal}
		params = &ParameterList{SpanVal: head.SpanVal, Head: head, Tail: params}
		p.nextToken()
	}
	p.nextToken() // )

	body := p.parseStatements()
	end := p.curToken.Pos
	if !p.expect(TokenEnd) {
		return nil
	}
	return &FunctionDef{
		SpanVal: Span{Start: start, End: end},
		Name:    name,
		Params:  params,
		Body:    body,
	}
}

func (p *Parser) parseReturn() Node {
	start := p.curToken.Pos
	p.nextToken() // retorno
	expr := p.ParseExpression()
	if expr == nil {
		return nil
	}
	return &Return{SpanVal: Span{Start: start, End: expr.Span().End}, Expr: expr}
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// ParseExpression parses an operand optionally compared with ==.
func (p *Parser) ParseExpression() Node {
	left := p.parseOperand()
	for left != nil && p.curTokenIs(TokenEqual) {
		p.nextToken()
		right := p.parseOperand()
		if right == nil {
			return nil
		}
		left = &Equality{
			SpanVal: Span{Start: left.Span().Start, End: right.Span().End},
			Left:    left,
			Right:   right,
		}
	}
	return left
}

func (p *Parser) parseOperand() Node {
	span := p.tokenSpan()
	var node Node

	switch p.curToken.Type {
	case TokenInteger:
		v, err := strconv.ParseInt(p.curToken.Literal, 10, 64)
		if err != nil {
			p.errorf("integer %s out of range", p.curToken.Literal)
			return nil
		}
		p.nextToken()
		return &IntegerLiteral{SpanVal: span, Value: v}

	case TokenString:
		lit := p.curToken.Literal
		p.nextToken()
		return &StringLiteral{SpanVal: span, Value: lit}

	case TokenTrue, TokenFalse:
		v := p.curTokenIs(TokenTrue)
		p.nextToken()
		return &BoolLiteral{SpanVal: span, Value: v}

	case TokenIdentifier:
		node = &Identifier{SpanVal: span, Name: p.curToken.Literal}
		p.nextToken()

	case TokenSelf:
		node = &SelfRef{SpanVal: span}
		p.nextToken()

	case TokenLParen:
		p.nextToken()
		p.skipNewlines()
		inner := p.ParseExpression()
		if inner == nil {
			return nil
		}
		p.skipNewlines()
		if !p.expect(TokenRParen) {
			return nil
		}
		node = inner

	default:
		p.unexpected()
		return nil
	}

	for p.curTokenIs(TokenLParen) {
		node = p.parseCall(node)
		if node == nil {
			return nil
		}
	}
	return node
}

func (p *Parser) parseCall(callee Node) Node {
	p.nextToken() // (
	p.skipNewlines()

	var args []Node
	for !p.curTokenIs(TokenRParen) {
		if len(args) > 0 {
			if !p.expect(TokenComma) {
				return nil
			}
			p.skipNewlines()
		}
		arg := p.ParseExpression()
		if arg == nil {
			return nil
		}
		args = append(args, arg)
		p.skipNewlines()
	}
	end := p.curToken.Pos
	p.nextToken() // )

	return &FunctionCall{
		SpanVal: Span{Start: callee.Span().Start, End: end},
		Callee:  callee,
		Args:    buildArguments(args),
	}
}

// buildArguments links args into a right-growing list whose last tail is
// the final argument itself.
func buildArguments(args []Node) *ArgumentList {
	switch len(args) {
	case 0:
		return nil
	case 1:
		return &ArgumentList{SpanVal: args[0].Span(), Head: args[0]}
	case 2:
		return &ArgumentList{SpanVal: spanOf(args), Head: args[0], Tail: args[1]}
	}
	return &ArgumentList{SpanVal: spanOf(args), Head: args[0], Tail: buildArguments(args[1:])}
}

func spanOf(nodes []Node) Span {
	return Span{Start: nodes[0].Span().Start, End: nodes[len(nodes)-1].Span().End}
}

func (p *Parser) tokenSpan() Span {
	start := p.curToken.Pos
	end := start
	end.Offset += len(p.curToken.Literal)
	end.Column += len([]rune(p.curToken.Literal))
	return Span{Start: start, End: end}
}
