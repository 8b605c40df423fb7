package compiler

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Lexer: Tokenizer for sahl source
// ---------------------------------------------------------------------------

// Lexer tokenizes sahl source code. It works on bytes: identifiers are
// ASCII, string contents pass through unchanged.
type Lexer struct {
	input string
	pos   int  // offset of ch
	ch    byte // current byte, 0 at EOF
	line  int  // line of ch (1-based)
	col   int  // column of ch (1-based)
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input, line: 1, col: 0, pos: -1}
	l.readChar()
	return l
}

// readChar advances to the next byte.
func (l *Lexer) readChar() {
	if l.pos >= 0 && l.pos < len(l.input) && l.input[l.pos] == '\n' {
		l.line++
		l.col = 0
	}
	l.pos++
	l.col++
	if l.pos >= len(l.input) {
		l.pos = len(l.input)
		l.ch = 0
		return
	}
	l.ch = l.input[l.pos]
}

// peekChar returns the next byte without consuming it.
func (l *Lexer) peekChar() byte {
	if l.pos+1 >= len(l.input) {
		return 0
	}
	return l.input[l.pos+1]
}

func (l *Lexer) position() Position {
	return Position{Offset: l.pos, Line: l.line, Column: l.col}
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		switch {
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r':
			l.readChar()
		case l.ch == '/' && l.peekChar() == '/':
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		default:
			return
		}
	}
}

var singleCharTokens = map[byte]TokenType{
	'+': TokenPlus,
	'*': TokenStar,
	'/': TokenSlash,
	'%': TokenPercent,
	'(': TokenLParen,
	')': TokenRParen,
	'{': TokenLBrace,
	'}': TokenRBrace,
	'[': TokenLBracket,
	']': TokenRBracket,
	',': TokenComma,
	';': TokenSemicolon,
	':': TokenColon,
}

// twoCharTokens maps a first byte to its possible second byte.
var twoCharTokens = map[byte]map[byte]TokenType{
	'=': {'=': TokenEq},
	'!': {'=': TokenNotEq},
	'<': {'=': TokenLessEq},
	'>': {'=': TokenGreaterEq},
	'&': {'&': TokenAndAnd},
	'|': {'|': TokenOrOr},
	'-': {'>': TokenArrow},
}

var oneOfTwoFallback = map[byte]TokenType{
	'=': TokenAssign,
	'!': TokenBang,
	'<': TokenLess,
	'>': TokenGreater,
	'-': TokenMinus,
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	tok := l.scan()
	tok.End = l.position()
	return tok
}

func (l *Lexer) scan() Token {
	l.skipWhitespaceAndComments()
	pos := l.position()

	switch {
	case l.ch == 0:
		return Token{Type: TokenEOF, Pos: pos}
	case isLetter(l.ch):
		return l.readIdentifier(pos)
	case isDigit(l.ch):
		return l.readNumber(pos)
	case l.ch == '"':
		return l.readString(pos)
	case l.ch == '\'':
		return l.readCharacter(pos)
	}

	if seconds, ok := twoCharTokens[l.ch]; ok {
		first := l.ch
		if tt, ok := seconds[l.peekChar()]; ok {
			l.readChar()
			l.readChar()
			return Token{Type: tt, Literal: tt.String(), Pos: pos}
		}
		if tt, ok := oneOfTwoFallback[first]; ok {
			l.readChar()
			return Token{Type: tt, Literal: tt.String(), Pos: pos}
		}
		l.readChar()
		return Token{Type: TokenError, Literal: fmt.Sprintf("unexpected character %q", first), Pos: pos}
	}
	if tt, ok := singleCharTokens[l.ch]; ok {
		l.readChar()
		return Token{Type: tt, Literal: tt.String(), Pos: pos}
	}

	ch := l.ch
	l.readChar()
	return Token{Type: TokenError, Literal: fmt.Sprintf("unexpected character %q", ch), Pos: pos}
}

func (l *Lexer) readIdentifier(pos Position) Token {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	lit := l.input[start:l.pos]
	if tt, ok := keywords[lit]; ok {
		return Token{Type: tt, Literal: lit, Pos: pos}
	}
	return Token{Type: TokenIdentifier, Literal: lit, Pos: pos}
}

func (l *Lexer) readNumber(pos Position) Token {
	start := l.pos
	tt := TokenInteger
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		tt = TokenFloat
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		next := l.peekChar()
		if isDigit(next) || next == '+' || next == '-' {
			tt = TokenFloat
			l.readChar()
			if l.ch == '+' || l.ch == '-' {
				l.readChar()
			}
			if !isDigit(l.ch) {
				return Token{Type: TokenError, Literal: "malformed exponent", Pos: pos}
			}
			for isDigit(l.ch) {
				l.readChar()
			}
		}
	}
	return Token{Type: tt, Literal: l.input[start:l.pos], Pos: pos}
}

// readEscape decodes the byte after a backslash.
func (l *Lexer) readEscape() (byte, bool) {
	var b byte
	switch l.ch {
	case 'n':
		b = '\n'
	case 't':
		b = '\t'
	case 'r':
		b = '\r'
	case '0':
		b = 0
	case '\\', '\'', '"':
		b = l.ch
	default:
		return 0, false
	}
	l.readChar()
	return b, true
}

func (l *Lexer) readString(pos Position) Token {
	l.readChar() // opening quote
	var sb strings.Builder
	for l.ch != '"' {
		switch {
		case l.ch == 0 && l.pos >= len(l.input):
			return Token{Type: TokenError, Literal: "unterminated string", Pos: pos}
		case l.ch == '\n':
			return Token{Type: TokenError, Literal: "newline in string", Pos: pos}
		case l.ch == '\\':
			l.readChar()
			b, ok := l.readEscape()
			if !ok {
				return Token{Type: TokenError, Literal: fmt.Sprintf("unknown escape \\%c", l.ch), Pos: pos}
			}
			sb.WriteByte(b)
		default:
			sb.WriteByte(l.ch)
			l.readChar()
		}
	}
	l.readChar() // closing quote
	return Token{Type: TokenString, Literal: sb.String(), Pos: pos}
}

func (l *Lexer) readCharacter(pos Position) Token {
	l.readChar() // opening quote
	var b byte
	switch {
	case l.ch == '\\':
		l.readChar()
		var ok bool
		if b, ok = l.readEscape(); !ok {
			return Token{Type: TokenError, Literal: fmt.Sprintf("unknown escape \\%c", l.ch), Pos: pos}
		}
	case l.ch == '\'' || l.ch == '\n' || l.pos >= len(l.input):
		return Token{Type: TokenError, Literal: "empty character literal", Pos: pos}
	default:
		b = l.ch
		l.readChar()
	}
	if l.ch != '\'' {
		return Token{Type: TokenError, Literal: "unterminated character literal", Pos: pos}
	}
	l.readChar()
	return Token{Type: TokenCharacter, Literal: string([]byte{b}), Pos: pos}
}

func isLetter(ch byte) bool {
	return ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch == '_'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

// Tokenize returns all tokens up to and including EOF. Lexing stops at the
// first error token, which is included.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			return tokens
		}
	}
}
