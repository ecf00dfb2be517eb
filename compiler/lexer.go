package compiler

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer
// ---------------------------------------------------------------------------

// Lexer tokenizes latino source code.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	eof     bool // input exhausted; ch is 0
	line    int  // line of ch (1-based)
	col     int  // column of ch (1-based)
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
	}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	if l.readPos >= len(l.input) {
		if !l.eof {
			l.col++
		}
		l.ch = 0
		l.eof = true
		l.pos = l.readPos
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
	l.col++
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

// position returns the position of the current character.
func (l *Lexer) position() Position {
	return Position{
		Offset: l.pos,
		Line:   l.line,
		Column: l.col,
	}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipSpaceAndComments()

	pos := l.position()

	switch {
	case l.eof:
		return Token{Type: TokenEOF, Pos: pos}

	case l.ch == '\n' || l.ch == ';':
		lit := string(l.ch)
		l.readChar()
		return Token{Type: TokenNewline, Literal: lit, Pos: pos}

	case l.ch == '(':
		l.readChar()
		return Token{Type: TokenLParen, Literal: "(", Pos: pos}

	case l.ch == ')':
		l.readChar()
		return Token{Type: TokenRParen, Literal: ")", Pos: pos}

	case l.ch == ',':
		l.readChar()
		return Token{Type: TokenComma, Literal: ",", Pos: pos}

	case l.ch == '$':
		l.readChar()
		return Token{Type: TokenSelf, Literal: "$", Pos: pos}

	case l.ch == '=':
		l.readChar()
		if l.ch == '=' {
			l.readChar()
			return Token{Type: TokenEqual, Literal: "==", Pos: pos}
		}
		return Token{Type: TokenAssign, Literal: "=", Pos: pos}

	case l.ch == '"' || l.ch == '\'':
		return l.readString(pos)

	case isDigit(l.ch):
		return l.readNumber(pos)

	case isLetter(l.ch):
		return l.readIdentifier(pos)
	}

	ch := l.ch
	l.readChar()
	return Token{Type: TokenError, Literal: fmt.Sprintf("unexpected character %q", ch), Pos: pos}
}

// skipSpaceAndComments skips blanks and comments but stops at newlines,
// which separate statements.
func (l *Lexer) skipSpaceAndComments() {
	for {
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\r' {
			l.readChar()
		}
		if l.ch == '#' || (l.ch == '/' && l.peekChar() == '/') {
			for l.ch != '\n' && !l.eof {
				l.readChar()
			}
			continue
		}
		return
	}
}

// readString reads a single- or double-quoted string with backslash
// escapes. The token literal is the decoded content.
func (l *Lexer) readString(pos Position) Token {
	quote := l.ch
	l.readChar()

	var b strings.Builder
	for l.ch != quote {
		if l.eof {
			return Token{Type: TokenError, Literal: "unterminated string", Pos: pos}
		}
		switch l.ch {
		case '\\':
			l.readChar()
			if l.eof {
				return Token{Type: TokenError, Literal: "unterminated string", Pos: pos}
			}
			switch l.ch {
			case 'n':
				b.WriteRune('\n')
			case 't':
				b.WriteRune('\t')
			case 'r':
				b.WriteRune('\r')
			case '\\', '"', '\'':
				b.WriteRune(l.ch)
			default:
				b.WriteRune('\\')
				b.WriteRune(l.ch)
			}
		default:
			b.WriteRune(l.ch)
		}
		l.readChar()
	}
	l.readChar() // closing quote
	return Token{Type: TokenString, Literal: b.String(), Pos: pos}
}

func (l *Lexer) readNumber(pos Position) Token {
	start := l.pos
	for isDigit(l.ch) {
		l.readChar()
	}
	if isLetter(l.ch) {
		for isLetter(l.ch) || isDigit(l.ch) {
			l.readChar()
		}
		return Token{Type: TokenError, Literal: "malformed number " + l.input[start:l.pos], Pos: pos}
	}
	return Token{Type: TokenInteger, Literal: l.input[start:l.pos], Pos: pos}
}

func (l *Lexer) readIdentifier(pos Position) Token {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	lit := l.input[start:l.pos]
	if tt, ok := reservedWords[lit]; ok {
		return Token{Type: tt, Literal: lit, Pos: pos}
	}
	return Token{Type: TokenIdentifier, Literal: lit, Pos: pos}
}

func isLetter(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// Tokenize returns all tokens in input, ending with EOF or the first error.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			break
		}
	}
	return tokens
}
