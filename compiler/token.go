package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the sahl lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenInteger    // 42
	TokenFloat      // 3.14, 1e9
	TokenString     // "hello"
	TokenCharacter  // 'a', '\n'
	TokenIdentifier // foo

	// Operators
	TokenPlus      // +
	TokenMinus     // -
	TokenStar      // *
	TokenSlash     // /
	TokenPercent   // %
	TokenBang      // !
	TokenEq        // ==
	TokenNotEq     // !=
	TokenLess      // <
	TokenLessEq    // <=
	TokenGreater   // >
	TokenGreaterEq // >=
	TokenAndAnd    // &&
	TokenOrOr      // ||
	TokenAssign    // =
	TokenArrow     // ->

	// Delimiters
	TokenLParen    // (
	TokenRParen    // )
	TokenLBrace    // {
	TokenRBrace    // }
	TokenLBracket  // [
	TokenRBracket  // ]
	TokenComma     // ,
	TokenSemicolon // ;
	TokenColon     // :

	// Keywords
	TokenFun
	TokenLet
	TokenIf
	TokenElse
	TokenWhile
	TokenBreak
	TokenContinue
	TokenReturn
	TokenTrue
	TokenFalse
	TokenMake
)

var tokenNames = map[TokenType]string{
	TokenEOF:        "EOF",
	TokenError:      "ERROR",
	TokenInteger:    "INTEGER",
	TokenFloat:      "FLOAT",
	TokenString:     "STRING",
	TokenCharacter:  "CHARACTER",
	TokenIdentifier: "IDENTIFIER",
	TokenPlus:       "+",
	TokenMinus:      "-",
	TokenStar:       "*",
	TokenSlash:      "/",
	TokenPercent:    "%",
	TokenBang:       "!",
	TokenEq:         "==",
	TokenNotEq:      "!=",
	TokenLess:       "<",
	TokenLessEq:     "<=",
	TokenGreater:    ">",
	TokenGreaterEq:  ">=",
	TokenAndAnd:     "&&",
	TokenOrOr:       "||",
	TokenAssign:     "=",
	TokenArrow:      "->",
	TokenLParen:     "(",
	TokenRParen:     ")",
	TokenLBrace:     "{",
	TokenRBrace:     "}",
	TokenLBracket:   "[",
	TokenRBracket:   "]",
	TokenComma:      ",",
	TokenSemicolon:  ";",
	TokenColon:      ":",
	TokenFun:        "fun",
	TokenLet:        "let",
	TokenIf:         "if",
	TokenElse:       "else",
	TokenWhile:      "while",
	TokenBreak:      "break",
	TokenContinue:   "continue",
	TokenReturn:     "return",
	TokenTrue:       "true",
	TokenFalse:      "false",
	TokenMake:       "make",
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
	Literal string   // the raw text; decoded for strings and characters
	Pos     Position // start position
	End     Position // position just past the token
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

// Keywords mapped to their token types.
var keywords = map[string]TokenType{
	"fun":      TokenFun,
	"let":      TokenLet,
	"if":       TokenIf,
	"else":     TokenElse,
	"while":    TokenWhile,
	"break":    TokenBreak,
	"continue": TokenContinue,
	"return":   TokenReturn,
	"true":     TokenTrue,
	"false":    TokenFalse,
	"make":     TokenMake,
}

// Keywords returns the reserved words, for completion.
func Keywords() []string {
	out := make([]string, 0, len(keywords))
	for k := range keywords {
		out = append(out, k)
	}
	return out
}
