package compiler

import (
	"fmt"
	"sort"
)

// ---------------------------------------------------------------------------
// Token types
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError
	TokenNewline // statement separator: newline or ';'

	// Literals
	TokenInteger    // 42
	TokenString     // "hola", 'hola'
	TokenIdentifier // x, imprimir

	// Operators and delimiters
	TokenAssign // =
	TokenEqual  // ==
	TokenLParen // (
	TokenRParen // )
	TokenComma  // ,
	TokenSelf   // $

	// Keywords
	TokenIf
	TokenElse
	TokenEnd
	TokenFunction
	TokenReturn
	TokenTrue
	TokenFalse
)

var tokenNames = map[TokenType]string{
	TokenEOF:        "EOF",
	TokenError:      "ERROR",
	TokenNewline:    "NEWLINE",
	TokenInteger:    "INTEGER",
	TokenString:     "STRING",
	TokenIdentifier: "IDENTIFIER",
	TokenAssign:     "=",
	TokenEqual:      "==",
	TokenLParen:     "(",
	TokenRParen:     ")",
	TokenComma:      ",",
	TokenSelf:       "$",
	TokenIf:         "si",
	TokenElse:       "sino",
	TokenEnd:        "fin",
	TokenFunction:   "funcion",
	TokenReturn:     "retorno",
	TokenTrue:       "verdadero",
	TokenFalse:      "falso",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string   // the raw text, or the decoded content for strings
	Pos     Position // start position
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return "EOF"
	}
	if t.Type == TokenError {
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// Reserved words mapped to their token types. English spellings are
// accepted as aliases.
var reservedWords = map[string]TokenType{
	"si":        TokenIf,
	"if":        TokenIf,
	"sino":      TokenElse,
	"else":      TokenElse,
	"fin":       TokenEnd,
	"end":       TokenEnd,
	"funcion":   TokenFunction,
	"function":  TokenFunction,
	"retorno":   TokenReturn,
	"return":    TokenReturn,
	"verdadero": TokenTrue,
	"true":      TokenTrue,
	"falso":     TokenFalse,
	"false":     TokenFalse,
}

// Keywords returns the reserved words, sorted.
func Keywords() []string {
	words := make([]string, 0, len(reservedWords))
	for w := range reservedWords {
		words = append(words, w)
	}
	sort.Strings(words)
	return words
}
