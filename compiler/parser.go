package compiler

import (
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// Parser: Recursive descent parser for sahl syntax
// ---------------------------------------------------------------------------

// Parser parses sahl source code into an AST.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
	prevEnd   Position
	errors    []Diagnostic
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
	p.prevEnd = p.curToken.End
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

func (p *Parser) describe(tok Token) string {
	switch tok.Type {
	case TokenError:
		return tok.Literal
	case TokenIdentifier, TokenInteger, TokenFloat:
		return fmt.Sprintf("%s %q", tok.Type, tok.Literal)
	}
	return fmt.Sprintf("%q", tok.Type.String())
}

// errorf records a parse error at the current token.
func (p *Parser) errorf(format string, args ...any) {
	p.errors = append(p.errors, Diagnostic{
		Pos: p.curToken.Pos,
		End: p.curToken.End,
		Msg: fmt.Sprintf(format, args...),
	})
}

// Errors returns accumulated parse errors.
func (p *Parser) Errors() []Diagnostic {
	return p.errors
}

func (p *Parser) span(start Position) Span {
	return Span{Start: start, End: p.prevEnd}
}

// synchronize skips to just past the next ';' or to a '}' so parsing can
// continue after an error.
func (p *Parser) synchronize() {
	for !p.curTokenIs(TokenEOF) {
		switch p.curToken.Type {
		case TokenSemicolon:
			p.nextToken()
			return
		case TokenRBrace, TokenFun:
			return
		}
		p.nextToken()
	}
}

// ---------------------------------------------------------------------------
// Top-level parsing
// ---------------------------------------------------------------------------

// ParseProgram parses a whole file. Every top-level item must be a
// function; the one named main becomes Program.Main.
func (p *Parser) ParseProgram() *Program {
	prog := &Program{}
	for !p.curTokenIs(TokenEOF) {
		if !p.curTokenIs(TokenFun) {
			p.errorf("expected fun, got %s", p.describe(p.curToken))
			p.nextToken()
			for !p.curTokenIs(TokenFun) && !p.curTokenIs(TokenEOF) {
				p.nextToken()
			}
			continue
		}
		fn := p.parseFunc()
		if fn == nil {
			continue
		}
		if fn.Name == "main" {
			if prog.Main != nil {
				p.errors = append(p.errors, Diagnostic{Pos: fn.NameSpan.Start, End: fn.NameSpan.End, Msg: "main declared twice"})
				continue
			}
			prog.Main = fn
			continue
		}
		prog.Funcs = append(prog.Funcs, fn)
	}
	return prog
}

// Parse is a convenience that parses input and reports parse errors as a
// *DiagnosticsError.
func Parse(input string) (*Program, error) {
	p := NewParser(input)
	prog := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		return prog, &DiagnosticsError{Phase: "parse", Diagnostics: errs}
	}
	return prog, nil
}

func (p *Parser) parseFunc() *Func {
	start := p.curToken.Pos
	p.nextToken() // fun

	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected function name, got %s", p.describe(p.curToken))
		p.synchronize()
		return nil
	}
	fn := &Func{
		Name:     p.curToken.Literal,
		NameSpan: Span{Start: p.curToken.Pos, End: p.curToken.End},
		Return:   VoidType,
	}
	p.nextToken()

	if !p.expect(TokenLParen) {
		p.synchronize()
		return nil
	}
	for !p.curTokenIs(TokenRParen) && !p.curTokenIs(TokenEOF) {
		if !p.curTokenIs(TokenIdentifier) {
			p.errorf("expected parameter name, got %s", p.describe(p.curToken))
			p.synchronize()
			return nil
		}
		param := Param{Name: p.curToken.Literal}
		p.nextToken()
		if !p.expect(TokenColon) {
			p.synchronize()
			return nil
		}
		param.Type = p.parseType()
		fn.Params = append(fn.Params, param)
		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	if !p.expect(TokenRParen) {
		p.synchronize()
		return nil
	}
	if p.curTokenIs(TokenArrow) {
		p.nextToken()
		fn.Return = p.parseType()
	}
	fn.Body = p.parseBlock()
	fn.SpanVal = p.span(start)
	return fn
}

// parseType parses int, char, bool, float, string, any, void or [T].
func (p *Parser) parseType() Type {
	if p.curTokenIs(TokenLBracket) {
		p.nextToken()
		elem := p.parseType()
		p.expect(TokenRBracket)
		return ListOf(elem)
	}
	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected type, got %s", p.describe(p.curToken))
		return AnyType
	}
	name := p.curToken.Literal
	t, ok := map[string]Type{
		"int":    IntType,
		"char":   CharType,
		"bool":   BoolType,
		"float":  FloatType,
		"string": StrType,
		"any":    AnyType,
		"void":   VoidType,
	}[name]
	if !ok {
		p.errorf("unknown type %q", name)
		t = AnyType
	}
	p.nextToken()
	return t
}

// parseBlock parses { stmt* }.
func (p *Parser) parseBlock() []Stmt {
	if !p.expect(TokenLBrace) {
		p.synchronize()
		return nil
	}
	stmts := []Stmt{}
	for !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) {
		before := p.curToken
		if stmt := p.parseStatement(); stmt != nil {
			stmts = append(stmts, stmt)
		}
		if p.curToken == before {
			p.nextToken()
		}
	}
	p.expect(TokenRBrace)
	return stmts
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// ParseStatement parses a single statement.
func (p *Parser) ParseStatement() Stmt {
	return p.parseStatement()
}

func (p *Parser) parseStatement() Stmt {
	start := p.curToken.Pos
	switch p.curToken.Type {
	case TokenLet:
		return p.parseDecl()
	case TokenReturn:
		p.nextToken()
		var value Expr
		if !p.curTokenIs(TokenSemicolon) {
			value = p.parseExpression()
		}
		if !p.expect(TokenSemicolon) {
			p.synchronize()
		}
		return &ReturnStmt{SpanVal: p.span(start), Value: value}
	case TokenIf:
		return p.parseIf()
	case TokenWhile:
		p.nextToken()
		cond := p.parseExpression()
		body := p.parseBlock()
		return &WhileStmt{SpanVal: p.span(start), Cond: cond, Body: body}
	case TokenBreak, TokenContinue:
		isBreak := p.curTokenIs(TokenBreak)
		p.nextToken()
		if !p.expect(TokenSemicolon) {
			p.synchronize()
		}
		if isBreak {
			return &BreakStmt{SpanVal: p.span(start)}
		}
		return &ContinueStmt{SpanVal: p.span(start)}
	}

	x := p.parseExpression()
	if x == nil {
		p.synchronize()
		return nil
	}
	if !p.expect(TokenSemicolon) {
		p.synchronize()
	}
	return &ExprStmt{SpanVal: p.span(start), X: x}
}

func (p *Parser) parseDecl() Stmt {
	start := p.curToken.Pos
	p.nextToken() // let
	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected variable name, got %s", p.describe(p.curToken))
		p.synchronize()
		return nil
	}
	decl := &DeclStmt{Name: p.curToken.Literal}
	p.nextToken()
	if p.curTokenIs(TokenColon) {
		p.nextToken()
		t := p.parseType()
		decl.Type = &t
	}
	if !p.expect(TokenAssign) {
		p.synchronize()
		return nil
	}
	decl.Value = p.parseExpression()
	if decl.Value == nil {
		p.synchronize()
		return nil
	}
	if !p.expect(TokenSemicolon) {
		p.synchronize()
	}
	decl.SpanVal = p.span(start)
	return decl
}

func (p *Parser) parseIf() Stmt {
	start := p.curToken.Pos
	p.nextToken() // if
	stmt := &IfStmt{Cond: p.parseExpression()}
	stmt.Then = p.parseBlock()
	if p.curTokenIs(TokenElse) {
		p.nextToken()
		if p.curTokenIs(TokenIf) {
			if nested := p.parseIf(); nested != nil {
				stmt.Else = []Stmt{nested}
			}
		} else {
			stmt.Else = p.parseBlock()
		}
	}
	stmt.SpanVal = p.span(start)
	return stmt
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// ParseExpression parses a single expression.
func (p *Parser) ParseExpression() Expr {
	return p.parseExpression()
}

func (p *Parser) parseExpression() Expr {
	return p.parseAssign()
}

// parseAssign handles the right-associative, lowest-precedence '='.
func (p *Parser) parseAssign() Expr {
	start := p.curToken.Pos
	left := p.parseBinary(0)
	if left == nil || !p.curTokenIs(TokenAssign) {
		return left
	}
	p.nextToken()
	value := p.parseAssign()
	if value == nil {
		return nil
	}
	return &AssignExpr{SpanVal: p.span(start), Target: left, Value: value}
}

// binaryLevels lists operators from lowest to highest precedence.
var binaryLevels = [][]TokenType{
	{TokenOrOr},
	{TokenAndAnd},
	{TokenEq, TokenNotEq},
	{TokenLess, TokenLessEq, TokenGreater, TokenGreaterEq},
	{TokenPlus, TokenMinus},
	{TokenStar, TokenSlash, TokenPercent},
}

func (p *Parser) atLevel(level int) bool {
	for _, tt := range binaryLevels[level] {
		if p.curTokenIs(tt) {
			return true
		}
	}
	return false
}

// parseBinary parses left-associative operators at level and above.
func (p *Parser) parseBinary(level int) Expr {
	if level == len(binaryLevels) {
		return p.parseUnary()
	}
	start := p.curToken.Pos
	left := p.parseBinary(level + 1)
	for left != nil && p.atLevel(level) {
		op := p.curToken.Literal
		p.nextToken()
		right := p.parseBinary(level + 1)
		if right == nil {
			return nil
		}
		left = &BinaryExpr{SpanVal: p.span(start), Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseUnary() Expr {
	if p.curTokenIs(TokenMinus) || p.curTokenIs(TokenBang) {
		start := p.curToken.Pos
		op := p.curToken.Literal
		p.nextToken()
		// A directly negated integer literal may reach 1<<63.
		if op == "-" && p.curTokenIs(TokenInteger) && !p.peekTokenIs(TokenLBracket) {
			tok := p.curToken
			p.nextToken()
			v := p.intLiteral(tok, 1<<63)
			return &IntLiteral{SpanVal: p.span(start), Value: int64(-v)}
		}
		x := p.parseUnary()
		if x == nil {
			return nil
		}
		if op == "-" {
			switch lit := x.(type) {
			case *IntLiteral:
				return &IntLiteral{SpanVal: p.span(start), Value: -lit.Value}
			case *FloatLiteral:
				return &FloatLiteral{SpanVal: p.span(start), Value: -lit.Value}
			}
		}
		return &UnaryExpr{SpanVal: p.span(start), Op: op, X: x}
	}
	return p.parsePostfix()
}

// parsePostfix parses indexing chains: x[i][j].
func (p *Parser) parsePostfix() Expr {
	start := p.curToken.Pos
	x := p.parsePrimary()
	for x != nil && p.curTokenIs(TokenLBracket) {
		p.nextToken()
		idx := p.parseExpression()
		if idx == nil || !p.expect(TokenRBracket) {
			return nil
		}
		x = &IndexExpr{SpanVal: p.span(start), X: x, Index: idx}
	}
	return x
}

// intLiteral decodes an integer token no larger than limit. Out of range
// literals are reported and decode as 0.
func (p *Parser) intLiteral(tok Token, limit uint64) uint64 {
	v, err := strconv.ParseUint(tok.Literal, 10, 64)
	if err != nil || v > limit {
		p.errors = append(p.errors, Diagnostic{Pos: tok.Pos, End: tok.End, Msg: fmt.Sprintf("integer literal %s out of range", tok.Literal)})
		return 0
	}
	return v
}

func (p *Parser) parsePrimary() Expr {
	tok := p.curToken
	start := tok.Pos
	switch tok.Type {
	case TokenInteger:
		p.nextToken()
		v := p.intLiteral(tok, 1<<63-1)
		return &IntLiteral{SpanVal: p.span(start), Value: int64(v)}

	case TokenFloat:
		p.nextToken()
		v, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			p.errors = append(p.errors, Diagnostic{Pos: tok.Pos, End: tok.End, Msg: fmt.Sprintf("invalid float literal %s", tok.Literal)})
		}
		return &FloatLiteral{SpanVal: p.span(start), Value: v}

	case TokenCharacter:
		p.nextToken()
		return &CharLiteral{SpanVal: p.span(start), Value: tok.Literal[0]}

	case TokenString:
		p.nextToken()
		return &StringLiteral{SpanVal: p.span(start), Value: tok.Literal}

	case TokenTrue, TokenFalse:
		p.nextToken()
		return &BoolLiteral{SpanVal: p.span(start), Value: tok.Type == TokenTrue}

	case TokenLBracket:
		p.nextToken()
		elems := []Expr{}
		for !p.curTokenIs(TokenRBracket) && !p.curTokenIs(TokenEOF) {
			e := p.parseExpression()
			if e == nil {
				return nil
			}
			elems = append(elems, e)
			if !p.curTokenIs(TokenComma) {
				break
			}
			p.nextToken()
		}
		if !p.expect(TokenRBracket) {
			return nil
		}
		return &ListLiteral{SpanVal: p.span(start), Elements: elems}

	case TokenLParen:
		p.nextToken()
		x := p.parseExpression()
		if x == nil || !p.expect(TokenRParen) {
			return nil
		}
		return x

	case TokenMake:
		return p.parseMake()

	case TokenIdentifier:
		p.nextToken()
		if !p.curTokenIs(TokenLParen) {
			return &Ident{SpanVal: p.span(start), Name: tok.Literal}
		}
		p.nextToken()
		args := []Expr{}
		for !p.curTokenIs(TokenRParen) && !p.curTokenIs(TokenEOF) {
			a := p.parseExpression()
			if a == nil {
				return nil
			}
			args = append(args, a)
			if !p.curTokenIs(TokenComma) {
				break
			}
			p.nextToken()
		}
		if !p.expect(TokenRParen) {
			return nil
		}
		return &CallExpr{SpanVal: p.span(start), Name: tok.Literal, Args: args}
	}

	p.errorf("unexpected %s", p.describe(tok))
	return nil
}

// parseMake parses make(type, size) where size is an integer literal.
func (p *Parser) parseMake() Expr {
	start := p.curToken.Pos
	p.nextToken() // make
	if !p.expect(TokenLParen) {
		return nil
	}
	t := p.parseType()
	if !p.expect(TokenComma) {
		return nil
	}
	if !p.curTokenIs(TokenInteger) {
		p.errorf("make size must be an integer literal, got %s", p.describe(p.curToken))
		return nil
	}
	size, err := strconv.ParseInt(p.curToken.Literal, 10, 64)
	if err != nil {
		p.errorf("make size %s out of range", p.curToken.Literal)
		return nil
	}
	p.nextToken()
	if !p.expect(TokenRParen) {
		return nil
	}
	return &MakeExpr{SpanVal: p.span(start), Type: t, Size: size}
}
