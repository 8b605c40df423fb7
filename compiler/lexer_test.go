package compiler

import (
	"testing"
)

func TestLexerBasicTokens(t *testing.T) {
	input := `( ) [ ] { } , ; : + - * / % ! == != < <= > >= && || = ->`
	expected := []TokenType{
		TokenLParen, TokenRParen, TokenLBracket, TokenRBracket, TokenLBrace, TokenRBrace,
		TokenComma, TokenSemicolon, TokenColon,
		TokenPlus, TokenMinus, TokenStar, TokenSlash, TokenPercent, TokenBang,
		TokenEq, TokenNotEq, TokenLess, TokenLessEq, TokenGreater, TokenGreaterEq,
		TokenAndAnd, TokenOrOr, TokenAssign, TokenArrow,
		TokenEOF,
	}

	l := NewLexer(input)
	for i, want := range expected {
		tok := l.NextToken()
		if tok.Type != want {
			t.Errorf("token[%d] type = %v, want %v", i, tok.Type, want)
		}
	}
}

func TestLexerKeywords(t *testing.T) {
	input := `fun let if else while break continue return true false make funny`
	expected := []TokenType{
		TokenFun, TokenLet, TokenIf, TokenElse, TokenWhile, TokenBreak, TokenContinue,
		TokenReturn, TokenTrue, TokenFalse, TokenMake, TokenIdentifier, TokenEOF,
	}
	l := NewLexer(input)
	for i, want := range expected {
		if tok := l.NextToken(); tok.Type != want {
			t.Errorf("token[%d] type = %v, want %v", i, tok.Type, want)
		}
	}
}

func TestLexerNumbers(t *testing.T) {
	tests := []struct {
		input string
		typ   TokenType
		lit   string
	}{
		{"42", TokenInteger, "42"},
		{"0", TokenInteger, "0"},
		{"3.14", TokenFloat, "3.14"},
		{"1e9", TokenFloat, "1e9"},
		{"2.5e-3", TokenFloat, "2.5e-3"},
	}

	for _, tc := range tests {
		tok := NewLexer(tc.input).NextToken()
		if tok.Type != tc.typ {
			t.Errorf("Lexer(%q): type = %v, want %v", tc.input, tok.Type, tc.typ)
		}
		if tok.Literal != tc.lit {
			t.Errorf("Lexer(%q): literal = %q, want %q", tc.input, tok.Literal, tc.lit)
		}
	}
}

func TestLexerIntegerFollowedByDot(t *testing.T) {
	toks := Tokenize("1.x")
	if toks[0].Type != TokenInteger || toks[0].Literal != "1" {
		t.Fatalf("first token = %v, want INTEGER(\"1\")", toks[0])
	}
	if toks[1].Type != TokenError {
		t.Errorf("second token = %v, want ERROR", toks[1])
	}
}

func TestLexerStringsAndChars(t *testing.T) {
	tests := []struct {
		input string
		typ   TokenType
		lit   string
	}{
		{`"hello"`, TokenString, "hello"},
		{`""`, TokenString, ""},
		{`"a\nb"`, TokenString, "a\nb"},
		{`"tab\there"`, TokenString, "tab\there"},
		{`"q\"q"`, TokenString, `q"q`},
		{`'a'`, TokenCharacter, "a"},
		{`'\n'`, TokenCharacter, "\n"},
		{`'\''`, TokenCharacter, "'"},
		{`'\0'`, TokenCharacter, "\x00"},
	}
	for _, tc := range tests {
		tok := NewLexer(tc.input).NextToken()
		if tok.Type != tc.typ {
			t.Errorf("Lexer(%s): type = %v, want %v", tc.input, tok.Type, tc.typ)
		}
		if tok.Literal != tc.lit {
			t.Errorf("Lexer(%s): literal = %q, want %q", tc.input, tok.Literal, tc.lit)
		}
	}
}

func TestLexerErrors(t *testing.T) {
	tests := []string{
		`"unterminated`,
		"\"new\nline\"",
		`"bad \q escape"`,
		`''`,
		`'ab'`,
		`#`,
		`&`,
		`1e+`,
	}
	for _, input := range tests {
		toks := Tokenize(input)
		last := toks[len(toks)-1]
		if last.Type != TokenError {
			t.Errorf("Tokenize(%q): last token = %v, want ERROR", input, last)
		}
	}
}

func TestLexerComments(t *testing.T) {
	toks := Tokenize("let // the rest is ignored ;;;\nx")
	if len(toks) != 3 {
		t.Fatalf("got %d tokens, want 3: %v", len(toks), toks)
	}
	if toks[0].Type != TokenLet || toks[1].Type != TokenIdentifier || toks[2].Type != TokenEOF {
		t.Errorf("tokens = %v", toks)
	}
}

func TestLexerPositions(t *testing.T) {
	toks := Tokenize("fun\n  main")
	if p := toks[0].Pos; p.Line != 1 || p.Column != 1 {
		t.Errorf("fun at %d:%d, want 1:1", p.Line, p.Column)
	}
	if p := toks[1].Pos; p.Line != 2 || p.Column != 3 {
		t.Errorf("main at %d:%d, want 2:3", p.Line, p.Column)
	}
	if e := toks[1].End; e.Line != 2 || e.Column != 7 {
		t.Errorf("main ends at %d:%d, want 2:7", e.Line, e.Column)
	}
}
