package compiler

import (
	"errors"
	"fmt"

	"go.starlark.net/syntax"
)

// ---------------------------------------------------------------------------
// Starlark frontend: lower Starlark syntax to the sahl AST
// ---------------------------------------------------------------------------

var starlarkOptions = &syntax.FileOptions{
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
}

// ParseStarlark parses a Starlark-syntax source file and lowers it to a
// Program. def statements become functions and every other top-level
// statement becomes the body of main. The result carries no type
// annotations and must be checked in untyped mode.
func ParseStarlark(filename string, src []byte) (*Program, error) {
	file, err := starlarkOptions.Parse(filename, src, 0)
	if err != nil {
		var serr syntax.Error
		if errors.As(err, &serr) {
			return nil, &DiagnosticsError{Phase: "parse", Diagnostics: []Diagnostic{{
				Pos: starlarkPos(serr.Pos),
				End: starlarkPos(serr.Pos),
				Msg: serr.Msg,
			}}}
		}
		return nil, err
	}

	l := &lowerer{}
	prog := &Program{}
	var mainBody []syntax.Stmt
	var mainDef *syntax.DefStmt
	for _, stmt := range file.Stmts {
		def, ok := stmt.(*syntax.DefStmt)
		if !ok {
			mainBody = append(mainBody, stmt)
			continue
		}
		if def.Name.Name == "main" && mainDef == nil {
			mainDef = def
			continue
		}
		if fn := l.lowerDef(def); fn != nil {
			prog.Funcs = append(prog.Funcs, fn)
		}
	}
	// A def main() is the entry point of a file without top-level statements.
	switch {
	case mainDef == nil:
		prog.Main = l.lowerFunc("main", nil, mainBody, Span{Start: Position{Line: 1, Column: 1}})
	case len(mainBody) > 0:
		l.errorAt(mainDef.Name, "main is defined but the file also has top-level statements")
	case len(mainDef.Params) > 0:
		l.errorAt(mainDef.Name, "main takes no parameters")
	default:
		prog.Main = l.lowerDef(mainDef)
	}

	if len(l.errors) > 0 {
		return prog, &DiagnosticsError{Phase: "parse", Diagnostics: l.errors}
	}
	return prog, nil
}

func starlarkPos(p syntax.Position) Position {
	return Position{Line: int(p.Line), Column: int(p.Col)}
}

func starlarkSpan(n syntax.Node) Span {
	start, end := n.Span()
	return Span{Start: starlarkPos(start), End: starlarkPos(end)}
}

type lowerer struct {
	errors []Diagnostic
	temps  int
}

func (l *lowerer) errorAt(n syntax.Node, format string, args ...any) {
	sp := starlarkSpan(n)
	l.errors = append(l.errors, Diagnostic{Pos: sp.Start, End: sp.End, Msg: fmt.Sprintf(format, args...)})
}

// temp returns a fresh local name that no source identifier can spell.
func (l *lowerer) temp(what string) string {
	l.temps++
	return fmt.Sprintf("$%s%d", what, l.temps)
}

func (l *lowerer) lowerDef(def *syntax.DefStmt) *Func {
	var params []string
	for _, p := range def.Params {
		id, ok := p.(*syntax.Ident)
		if !ok {
			l.errorAt(p, "only plain parameters are supported")
			return nil
		}
		params = append(params, id.Name)
	}
	fn := l.lowerFunc(def.Name.Name, params, def.Body, starlarkSpan(def))
	fn.NameSpan = starlarkSpan(def.Name)
	return fn
}

// lowerFunc builds a function whose locals follow Python scoping: every
// name assigned anywhere in the body is declared once, up front.
func (l *lowerer) lowerFunc(name string, params []string, body []syntax.Stmt, span Span) *Func {
	fn := &Func{SpanVal: span, NameSpan: span, Name: name, Return: AnyType}
	if name == "main" {
		fn.Return = VoidType
	}
	isParam := make(map[string]bool)
	for _, p := range params {
		fn.Params = append(fn.Params, Param{Name: p, Type: UnknownType})
		isParam[p] = true
	}

	stmts := l.lowerStmts(body)

	var locals []string
	seen := make(map[string]bool)
	collectAssigned(body, func(n string) {
		if !seen[n] && !isParam[n] {
			seen[n] = true
			locals = append(locals, n)
		}
	})
	decls := make([]Stmt, 0, len(locals)+len(stmts))
	for _, n := range locals {
		decls = append(decls, &DeclStmt{SpanVal: span, Name: n, Value: &IntLiteral{SpanVal: span}})
	}
	fn.Body = append(decls, stmts...)
	fn.Body = l.hoistTemps(fn.Body, span)
	return fn
}

// collectAssigned reports every name bound by assignment or a for loop,
// in source order, without descending into nested defs.
func collectAssigned(stmts []syntax.Stmt, visit func(string)) {
	for _, stmt := range stmts {
		switch s := stmt.(type) {
		case *syntax.AssignStmt:
			if id, ok := s.LHS.(*syntax.Ident); ok {
				visit(id.Name)
			}
		case *syntax.ForStmt:
			if id, ok := s.Vars.(*syntax.Ident); ok {
				visit(id.Name)
			}
			collectAssigned(s.Body, visit)
		case *syntax.WhileStmt:
			collectAssigned(s.Body, visit)
		case *syntax.IfStmt:
			collectAssigned(s.True, visit)
			collectAssigned(s.False, visit)
		case *syntax.ExprStmt:
			// xs.append(v) rebinds xs
			if name, ok := appendReceiver(s.X); ok {
				visit(name)
			}
		}
	}
}

// hoistTemps moves the declarations of loop temporaries, which the for
// lowering emits inline, to the top of the function.
func (l *lowerer) hoistTemps(body []Stmt, span Span) []Stmt {
	var temps []string
	var walk func([]Stmt)
	walk = func(stmts []Stmt) {
		for _, s := range stmts {
			switch n := s.(type) {
			case *ExprStmt:
				if a, ok := n.X.(*AssignExpr); ok {
					if id, ok := a.Target.(*Ident); ok && len(id.Name) > 0 && id.Name[0] == '$' {
						temps = appendUnique(temps, id.Name)
					}
				}
			case *IfStmt:
				walk(n.Then)
				walk(n.Else)
			case *WhileStmt:
				walk(n.Body)
			}
		}
	}
	walk(body)
	if len(temps) == 0 {
		return body
	}
	decls := make([]Stmt, 0, len(temps)+len(body))
	for _, t := range temps {
		decls = append(decls, &DeclStmt{SpanVal: span, Name: t, Value: &IntLiteral{SpanVal: span}})
	}
	return append(decls, body...)
}

func appendUnique(list []string, s string) []string {
	for _, x := range list {
		if x == s {
			return list
		}
	}
	return append(list, s)
}

func appendReceiver(x syntax.Expr) (string, bool) {
	call, ok := x.(*syntax.CallExpr)
	if !ok {
		return "", false
	}
	dot, ok := call.Fn.(*syntax.DotExpr)
	if !ok || dot.Name.Name != "append" {
		return "", false
	}
	id, ok := dot.X.(*syntax.Ident)
	if !ok {
		return "", false
	}
	return id.Name, true
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (l *lowerer) lowerStmts(stmts []syntax.Stmt) []Stmt {
	out := []Stmt{}
	for _, s := range stmts {
		out = append(out, l.lowerStmt(s)...)
	}
	return out
}

var augmentedOps = map[syntax.Token]string{
	syntax.PLUS_EQ:       "+",
	syntax.MINUS_EQ:      "-",
	syntax.STAR_EQ:       "*",
	syntax.SLASH_EQ:      "/",
	syntax.SLASHSLASH_EQ: "/",
	syntax.PERCENT_EQ:    "%",
}

func (l *lowerer) lowerStmt(stmt syntax.Stmt) []Stmt {
	span := starlarkSpan(stmt)
	switch s := stmt.(type) {
	case *syntax.ExprStmt:
		if name, ok := appendReceiver(s.X); ok {
			call := s.X.(*syntax.CallExpr)
			if len(call.Args) != 1 {
				l.errorAt(call, "append takes exactly one argument")
				return nil
			}
			target := &Ident{SpanVal: span, Name: name}
			value := &CallExpr{SpanVal: span, Name: "append", Args: []Expr{target, l.lowerExpr(call.Args[0])}}
			return []Stmt{&ExprStmt{SpanVal: span, X: &AssignExpr{SpanVal: span, Target: target, Value: value}}}
		}
		return []Stmt{&ExprStmt{SpanVal: span, X: l.lowerExpr(s.X)}}

	case *syntax.AssignStmt:
		target := l.lowerTarget(s.LHS)
		if target == nil {
			return nil
		}
		value := l.lowerExpr(s.RHS)
		if s.Op != syntax.EQ {
			op, ok := augmentedOps[s.Op]
			if !ok {
				l.errorAt(s, "unsupported assignment operator %s", s.Op)
				return nil
			}
			value = &BinaryExpr{SpanVal: span, Op: op, Left: l.lowerExpr(s.LHS), Right: value}
		}
		return []Stmt{&ExprStmt{SpanVal: span, X: &AssignExpr{SpanVal: span, Target: target, Value: value}}}

	case *syntax.IfStmt:
		return []Stmt{&IfStmt{
			SpanVal: span,
			Cond:    l.lowerExpr(s.Cond),
			Then:    l.lowerStmts(s.True),
			Else:    l.lowerStmts(s.False),
		}}

	case *syntax.WhileStmt:
		return []Stmt{&WhileStmt{SpanVal: span, Cond: l.lowerExpr(s.Cond), Body: l.lowerStmts(s.Body)}}

	case *syntax.ForStmt:
		return l.lowerFor(s)

	case *syntax.BranchStmt:
		switch s.Token {
		case syntax.BREAK:
			return []Stmt{&BreakStmt{SpanVal: span}}
		case syntax.CONTINUE:
			return []Stmt{&ContinueStmt{SpanVal: span}}
		}
		return nil // pass

	case *syntax.ReturnStmt:
		ret := &ReturnStmt{SpanVal: span}
		if s.Result != nil {
			ret.Value = l.lowerExpr(s.Result)
		}
		return []Stmt{ret}

	case *syntax.DefStmt:
		l.errorAt(s, "nested def is not supported")
		return nil
	}
	l.errorAt(stmt, "unsupported statement %T", stmt)
	return nil
}

func (l *lowerer) lowerTarget(x syntax.Expr) Expr {
	switch t := x.(type) {
	case *syntax.Ident:
		return &Ident{SpanVal: starlarkSpan(t), Name: t.Name}
	case *syntax.IndexExpr:
		return &IndexExpr{SpanVal: starlarkSpan(t), X: l.lowerExpr(t.X), Index: l.lowerExpr(t.Y)}
	}
	l.errorAt(x, "unsupported assignment target")
	return nil
}

// lowerFor rewrites a for loop as a while loop. The loop variable is set
// at the top of each iteration so continue needs no special handling:
//
//	for i in range(a, b, step): body
//
// becomes
//
//	$next = a; $end = b
//	while $next < $end { i = $next; $next = $next + step; body }
//
// and iteration over a list walks a private copy by index.
func (l *lowerer) lowerFor(s *syntax.ForStmt) []Stmt {
	span := starlarkSpan(s)
	v, ok := s.Vars.(*syntax.Ident)
	if !ok {
		l.errorAt(s.Vars, "only a single loop variable is supported")
		return nil
	}
	loopVar := &Ident{SpanVal: starlarkSpan(v), Name: v.Name}
	assign := func(name string, value Expr) Stmt {
		return &ExprStmt{SpanVal: span, X: &AssignExpr{SpanVal: span, Target: &Ident{SpanVal: span, Name: name}, Value: value}}
	}
	ident := func(name string) Expr { return &Ident{SpanVal: span, Name: name} }

	if call, ok := s.X.(*syntax.CallExpr); ok {
		if fn, ok := call.Fn.(*syntax.Ident); ok && fn.Name == "range" {
			var start, end Expr = &IntLiteral{SpanVal: span}, nil
			step := int64(1)
			switch len(call.Args) {
			case 1:
				end = l.lowerExpr(call.Args[0])
			case 2, 3:
				start = l.lowerExpr(call.Args[0])
				end = l.lowerExpr(call.Args[1])
				if len(call.Args) == 3 {
					lit, ok := l.lowerExpr(call.Args[2]).(*IntLiteral)
					if !ok || lit.Value == 0 {
						l.errorAt(call.Args[2], "range step must be a non-zero integer constant")
						return nil
					}
					step = lit.Value
				}
			default:
				l.errorAt(call, "range takes 1 to 3 arguments")
				return nil
			}
			next, stop := l.temp("next"), l.temp("end")
			cmp := "<"
			if step < 0 {
				cmp = ">"
			}
			body := []Stmt{
				&ExprStmt{SpanVal: span, X: &AssignExpr{SpanVal: span, Target: loopVar, Value: ident(next)}},
				assign(next, &BinaryExpr{SpanVal: span, Op: "+", Left: ident(next), Right: &IntLiteral{SpanVal: span, Value: step}}),
			}
			body = append(body, l.lowerStmts(s.Body)...)
			return []Stmt{
				assign(next, start),
				assign(stop, end),
				&WhileStmt{SpanVal: span, Cond: &BinaryExpr{SpanVal: span, Op: cmp, Left: ident(next), Right: ident(stop)}, Body: body},
			}
		}
	}

	list, idx := l.temp("list"), l.temp("idx")
	body := []Stmt{
		&ExprStmt{SpanVal: span, X: &AssignExpr{SpanVal: span, Target: loopVar, Value: &IndexExpr{SpanVal: span, X: ident(list), Index: ident(idx)}}},
		assign(idx, &BinaryExpr{SpanVal: span, Op: "+", Left: ident(idx), Right: &IntLiteral{SpanVal: span, Value: 1}}),
	}
	body = append(body, l.lowerStmts(s.Body)...)
	length := &CallExpr{SpanVal: span, Name: "len", Args: []Expr{ident(list)}}
	return []Stmt{
		assign(list, l.lowerExpr(s.X)),
		assign(idx, &IntLiteral{SpanVal: span}),
		&WhileStmt{SpanVal: span, Cond: &BinaryExpr{SpanVal: span, Op: "<", Left: ident(idx), Right: length}, Body: body},
	}
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

var starlarkBinaryOps = map[syntax.Token]string{
	syntax.PLUS:       "+",
	syntax.MINUS:      "-",
	syntax.STAR:       "*",
	syntax.SLASH:      "/",
	syntax.SLASHSLASH: "/",
	syntax.PERCENT:    "%",
	syntax.EQL:        "==",
	syntax.NEQ:        "!=",
	syntax.LT:         "<",
	syntax.LE:         "<=",
	syntax.GT:         ">",
	syntax.GE:         ">=",
	syntax.AND:        "&&",
	syntax.OR:         "||",
}

// lowerExpr never returns nil; unsupported input records an error and
// yields a placeholder literal.
func (l *lowerer) lowerExpr(x syntax.Expr) Expr {
	span := starlarkSpan(x)
	switch e := x.(type) {
	case *syntax.Ident:
		switch e.Name {
		case "True":
			return &BoolLiteral{SpanVal: span, Value: true}
		case "False":
			return &BoolLiteral{SpanVal: span, Value: false}
		}
		return &Ident{SpanVal: span, Name: e.Name}

	case *syntax.Literal:
		switch v := e.Value.(type) {
		case int64:
			return &IntLiteral{SpanVal: span, Value: v}
		case float64:
			return &FloatLiteral{SpanVal: span, Value: v}
		case string:
			if e.Token == syntax.STRING {
				return &StringLiteral{SpanVal: span, Value: v}
			}
		}
		l.errorAt(e, "unsupported literal %s", e.Raw)

	case *syntax.ParenExpr:
		return l.lowerExpr(e.X)

	case *syntax.ListExpr:
		elems := make([]Expr, len(e.List))
		for i, item := range e.List {
			elems[i] = l.lowerExpr(item)
		}
		return &ListLiteral{SpanVal: span, Elements: elems}

	case *syntax.UnaryExpr:
		switch e.Op {
		case syntax.MINUS:
			inner := l.lowerExpr(e.X)
			switch lit := inner.(type) {
			case *IntLiteral:
				return &IntLiteral{SpanVal: span, Value: -lit.Value}
			case *FloatLiteral:
				return &FloatLiteral{SpanVal: span, Value: -lit.Value}
			}
			return &UnaryExpr{SpanVal: span, Op: "-", X: inner}
		case syntax.NOT:
			return &UnaryExpr{SpanVal: span, Op: "!", X: l.lowerExpr(e.X)}
		case syntax.PLUS:
			return l.lowerExpr(e.X)
		}
		l.errorAt(e, "unsupported unary operator %s", e.Op)

	case *syntax.BinaryExpr:
		op, ok := starlarkBinaryOps[e.Op]
		if !ok {
			l.errorAt(e, "unsupported operator %s", e.Op)
			break
		}
		return &BinaryExpr{SpanVal: span, Op: op, Left: l.lowerExpr(e.X), Right: l.lowerExpr(e.Y)}

	case *syntax.CallExpr:
		fn, ok := e.Fn.(*syntax.Ident)
		if !ok {
			l.errorAt(e.Fn, "only calls to named functions are supported")
			break
		}
		args := make([]Expr, len(e.Args))
		for i, a := range e.Args {
			if b, ok := a.(*syntax.BinaryExpr); ok && b.Op == syntax.EQ {
				l.errorAt(a, "keyword arguments are not supported")
			}
			args[i] = l.lowerExpr(a)
		}
		return &CallExpr{SpanVal: span, Name: fn.Name, Args: args}

	case *syntax.IndexExpr:
		return &IndexExpr{SpanVal: span, X: l.lowerExpr(e.X), Index: l.lowerExpr(e.Y)}

	default:
		l.errorAt(x, "unsupported expression %T", x)
	}
	return &IntLiteral{SpanVal: span}
}
