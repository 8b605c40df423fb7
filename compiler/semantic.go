package compiler

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Semantic Analyzer: Pre-codegen semantic checks
// ---------------------------------------------------------------------------

// SemanticAnalyzer checks a parsed program before code generation. In typed
// mode it also checks operand, argument, condition and return types; in
// untyped mode (used for sources without type annotations) it checks scope,
// arity, assignment targets, make and loop placement only.
type SemanticAnalyzer struct {
	errors   []Diagnostic
	warnings []Diagnostic
	untyped  bool

	funcs  map[string]*Func
	fn     *Func
	scopes []map[string]Type
	loops  int
}

// Builtins are the reserved function names lowered to dedicated
// instructions.
var Builtins = []string{"print", "append", "len"}

func isBuiltin(name string) bool {
	for _, b := range Builtins {
		if b == name {
			return true
		}
	}
	return false
}

// NewSemanticAnalyzer creates a new semantic analyzer.
func NewSemanticAnalyzer() *SemanticAnalyzer {
	return &SemanticAnalyzer{funcs: make(map[string]*Func)}
}

// SetUntyped switches type checking off.
func (s *SemanticAnalyzer) SetUntyped(untyped bool) {
	s.untyped = untyped
}

// Errors returns accumulated analysis errors.
func (s *SemanticAnalyzer) Errors() []Diagnostic {
	return s.errors
}

// Warnings returns accumulated warnings.
func (s *SemanticAnalyzer) Warnings() []Diagnostic {
	return s.warnings
}

// errorAt records an error with position information.
func (s *SemanticAnalyzer) errorAt(node Node, format string, args ...any) {
	sp := node.Span()
	s.errors = append(s.errors, Diagnostic{Pos: sp.Start, End: sp.End, Msg: fmt.Sprintf(format, args...)})
}

// warnAt records a warning with position information.
func (s *SemanticAnalyzer) warnAt(node Node, format string, args ...any) {
	sp := node.Span()
	s.warnings = append(s.warnings, Diagnostic{Pos: sp.Start, End: sp.End, Msg: fmt.Sprintf(format, args...), Severity: SeverityWarning})
}

// Check runs the analyzer over prog and returns a *DiagnosticsError when
// anything is wrong.
func Check(prog *Program, untyped bool) error {
	s := NewSemanticAnalyzer()
	s.SetUntyped(untyped)
	s.AnalyzeProgram(prog)
	if len(s.errors) > 0 {
		return &DiagnosticsError{Phase: "check", Diagnostics: s.errors}
	}
	return nil
}

// AnalyzeProgram checks every function, main included.
func (s *SemanticAnalyzer) AnalyzeProgram(prog *Program) {
	all := append([]*Func{}, prog.Funcs...)
	if prog.Main != nil {
		all = append(all, prog.Main)
	}
	for _, fn := range all {
		if isBuiltin(fn.Name) {
			s.errors = append(s.errors, Diagnostic{Pos: fn.NameSpan.Start, End: fn.NameSpan.End,
				Msg: fmt.Sprintf("%s is a builtin and cannot be redeclared", fn.Name)})
			continue
		}
		if _, dup := s.funcs[fn.Name]; dup {
			s.errors = append(s.errors, Diagnostic{Pos: fn.NameSpan.Start, End: fn.NameSpan.End,
				Msg: fmt.Sprintf("function %s redeclared", fn.Name)})
			continue
		}
		s.funcs[fn.Name] = fn
	}

	if prog.Main == nil {
		s.errors = append(s.errors, Diagnostic{Pos: Position{Line: 1, Column: 1}, Msg: "missing main function"})
	} else if len(prog.Main.Params) > 0 {
		s.errorAt(prog.Main, "main must not take parameters")
	}

	for _, fn := range all {
		s.AnalyzeFunc(fn)
	}
}

// AnalyzeFunc checks one function body.
func (s *SemanticAnalyzer) AnalyzeFunc(fn *Func) {
	s.fn = fn
	s.loops = 0
	s.scopes = []map[string]Type{{}}
	for _, p := range fn.Params {
		if _, dup := s.scopes[0][p.Name]; dup {
			s.errorAt(fn, "duplicate parameter %s in %s", p.Name, fn.Name)
		}
		s.scopes[0][p.Name] = s.declared(p.Type)
	}
	s.analyzeBlock(fn.Body, false)
}

func (s *SemanticAnalyzer) declared(t Type) Type {
	if s.untyped {
		return UnknownType
	}
	return t
}

func (s *SemanticAnalyzer) push() { s.scopes = append(s.scopes, map[string]Type{}) }
func (s *SemanticAnalyzer) pop()  { s.scopes = s.scopes[:len(s.scopes)-1] }

func (s *SemanticAnalyzer) lookup(name string) (Type, bool) {
	for i := len(s.scopes) - 1; i >= 0; i-- {
		if t, ok := s.scopes[i][name]; ok {
			return t, true
		}
	}
	return UnknownType, false
}

// analyzeBlock checks a statement list. Nested blocks open a new scope.
func (s *SemanticAnalyzer) analyzeBlock(stmts []Stmt, scoped bool) {
	if scoped {
		s.push()
		defer s.pop()
	}
	for i, stmt := range stmts {
		s.analyzeStmt(stmt)
		switch stmt.(type) {
		case *ReturnStmt, *BreakStmt, *ContinueStmt:
			if i+1 < len(stmts) {
				s.warnAt(stmts[i+1], "unreachable code")
			}
		}
	}
}

func (s *SemanticAnalyzer) analyzeStmt(stmt Stmt) {
	switch n := stmt.(type) {
	case *ExprStmt:
		s.analyzeExpr(n.X)

	case *DeclStmt:
		t := s.analyzeExpr(n.Value)
		if t.Kind == TypeVoid {
			s.errorAt(n.Value, "void expression used as value")
		}
		if n.Type != nil && !s.untyped {
			if !assignable(*n.Type, t) {
				s.errorAt(n, "cannot initialize %s of type %s with %s", n.Name, n.Type, t)
			}
			t = *n.Type
		}
		scope := s.scopes[len(s.scopes)-1]
		if _, dup := scope[n.Name]; dup {
			s.errorAt(n, "%s redeclared in this block", n.Name)
		}
		scope[n.Name] = s.declared(t)

	case *ReturnStmt:
		if n.Value == nil {
			if !s.untyped && s.fn.Return.Kind != TypeVoid && s.fn.Return.Kind != TypeAny {
				s.errorAt(n, "missing return value in %s", s.fn.Name)
			}
			return
		}
		t := s.analyzeExpr(n.Value)
		if s.untyped {
			return
		}
		if s.fn.Return.Kind == TypeVoid {
			s.errorAt(n, "%s returns no value", s.fn.Name)
		} else if !assignable(s.fn.Return, t) {
			s.errorAt(n, "cannot return %s from %s (want %s)", t, s.fn.Name, s.fn.Return)
		}

	case *IfStmt:
		s.condition(n.Cond, "if")
		s.analyzeBlock(n.Then, true)
		s.analyzeBlock(n.Else, true)

	case *WhileStmt:
		s.condition(n.Cond, "while")
		s.loops++
		s.analyzeBlock(n.Body, true)
		s.loops--

	case *BreakStmt:
		if s.loops == 0 {
			s.errorAt(n, "break outside of loop")
		}

	case *ContinueStmt:
		if s.loops == 0 {
			s.errorAt(n, "continue outside of loop")
		}

	default:
		s.errorAt(stmt, "unsupported statement %T", stmt)
	}
}

func (s *SemanticAnalyzer) condition(cond Expr, what string) {
	t := s.analyzeExpr(cond)
	if !s.untyped && !assignable(BoolType, t) {
		s.errorAt(cond, "%s condition must be bool, got %s", what, t)
	}
}

// analyzeExpr checks an expression and returns its static type. Unknown
// means the type is only known at run time.
func (s *SemanticAnalyzer) analyzeExpr(expr Expr) Type {
	t := s.exprType(expr)
	if s.untyped && t.Kind != TypeVoid {
		return UnknownType
	}
	return t
}

func (s *SemanticAnalyzer) exprType(expr Expr) Type {
	switch n := expr.(type) {
	case *IntLiteral:
		return IntType
	case *FloatLiteral:
		return FloatType
	case *CharLiteral:
		return CharType
	case *StringLiteral:
		return StrType
	case *BoolLiteral:
		return BoolType

	case *ListLiteral:
		elem := UnknownType
		for _, e := range n.Elements {
			t := s.analyzeExpr(e)
			if t.Kind == TypeVoid {
				s.errorAt(e, "void expression used as list element")
				continue
			}
			if elem.Kind == TypeUnknown {
				elem = t
			} else if !s.untyped && !assignable(elem, t) && !assignable(t, elem) {
				s.errorAt(e, "list element of type %s does not match %s", t, elem)
			}
		}
		return ListOf(elem)

	case *Ident:
		t, ok := s.lookup(n.Name)
		if !ok {
			s.errorAt(n, "undefined: %s", n.Name)
		}
		return t

	case *UnaryExpr:
		t := s.analyzeExpr(n.X)
		switch n.Op {
		case "-":
			if !isNumeric(t) {
				s.errorAt(n, "invalid operand for unary -: %s", t)
			}
			return t
		case "!":
			if !assignable(BoolType, t) {
				s.errorAt(n, "invalid operand for !: %s", t)
			}
			return BoolType
		}
		s.errorAt(n, "unknown unary operator %s", n.Op)
		return UnknownType

	case *BinaryExpr:
		return s.binary(n)

	case *CallExpr:
		return s.call(n)

	case *IndexExpr:
		xt := s.analyzeExpr(n.X)
		it := s.analyzeExpr(n.Index)
		if !assignable(IntType, it) {
			s.errorAt(n.Index, "index must be int, got %s", it)
		}
		switch xt.Kind {
		case TypeList:
			if xt.Elem != nil {
				return *xt.Elem
			}
			return UnknownType
		case TypeStr:
			return CharType
		case TypeUnknown, TypeAny:
			return UnknownType
		}
		s.errorAt(n.X, "cannot index %s", xt)
		return UnknownType

	case *AssignExpr:
		var target Type
		switch tgt := n.Target.(type) {
		case *Ident:
			target = s.analyzeExpr(tgt)
		case *IndexExpr:
			if xt := s.analyzeExpr(tgt.X); xt.Kind == TypeStr {
				s.errorAt(n.Target, "cannot assign to string index")
			}
			target = s.analyzeExpr(tgt)
		default:
			s.errorAt(n.Target, "invalid assignment target")
			target = UnknownType
		}
		vt := s.analyzeExpr(n.Value)
		if vt.Kind == TypeVoid {
			s.errorAt(n.Value, "void expression used as value")
		} else if !assignable(target, vt) {
			s.errorAt(n, "cannot assign %s to %s", vt, target)
		}
		return target

	case *MakeExpr:
		if n.Type.Kind != TypeList || n.Type.Elem == nil {
			s.errorAt(n, "make requires a list type, got %s", n.Type)
			return UnknownType
		}
		switch n.Type.Elem.Kind {
		case TypeList, TypeVoid, TypeAny, TypeUnknown:
			s.errorAt(n, "cannot make a list of %s", n.Type.Elem)
		}
		if n.Size < 0 || n.Size > MaxMakeSize {
			s.errorAt(n, "make size %d out of range", n.Size)
		}
		return n.Type
	}
	s.errorAt(expr, "unsupported expression %T", expr)
	return UnknownType
}

func (s *SemanticAnalyzer) binary(n *BinaryExpr) Type {
	lt := s.analyzeExpr(n.Left)
	rt := s.analyzeExpr(n.Right)
	if lt.Kind == TypeVoid || rt.Kind == TypeVoid {
		s.errorAt(n, "void expression used as operand of %s", n.Op)
		return UnknownType
	}
	dynamic := isDynamic(lt) || isDynamic(rt)

	switch n.Op {
	case "+", "-", "*", "/", "%":
		switch {
		case lt.Kind == TypeInt && rt.Kind == TypeInt:
			return IntType
		case isNumeric(lt) && isNumeric(rt) && !dynamic:
			return FloatType
		case n.Op == "+" && lt.Kind == TypeStr && rt.Kind == TypeStr:
			return StrType
		case dynamic:
			return UnknownType
		}
		s.errorAt(n, "mismatched types %s %s %s", lt, n.Op, rt)
		return UnknownType

	case "<", "<=", ">", ">=":
		ok := dynamic ||
			isNumeric(lt) && isNumeric(rt) ||
			lt.Kind == TypeChar && rt.Kind == TypeChar ||
			lt.Kind == TypeStr && rt.Kind == TypeStr
		if !ok {
			s.errorAt(n, "cannot compare %s %s %s", lt, n.Op, rt)
		}
		return BoolType

	case "==", "!=":
		ok := assignable(lt, rt) || assignable(rt, lt) || isNumeric(lt) && isNumeric(rt)
		if !ok {
			s.errorAt(n, "cannot compare %s %s %s", lt, n.Op, rt)
		}
		return BoolType

	case "&&", "||":
		if !assignable(BoolType, lt) || !assignable(BoolType, rt) {
			s.errorAt(n, "operands of %s must be bool, got %s and %s", n.Op, lt, rt)
		}
		return BoolType
	}
	s.errorAt(n, "unknown operator %s", n.Op)
	return UnknownType
}

func (s *SemanticAnalyzer) call(n *CallExpr) Type {
	args := make([]Type, len(n.Args))
	for i, a := range n.Args {
		args[i] = s.analyzeExpr(a)
		if args[i].Kind == TypeVoid && n.Name != "print" {
			s.errorAt(a, "void expression used as argument")
		}
	}

	switch n.Name {
	case "print":
		return VoidType
	case "append":
		if len(n.Args) != 2 {
			s.errorAt(n, "append takes 2 arguments, got %d", len(n.Args))
			return UnknownType
		}
		lt := args[0]
		if isDynamic(lt) {
			return UnknownType
		}
		if lt.Kind != TypeList {
			s.errorAt(n.Args[0], "cannot append to %s", lt)
			return UnknownType
		}
		if lt.Elem != nil && lt.Elem.Kind == TypeUnknown {
			return ListOf(args[1])
		}
		if lt.Elem != nil && !assignable(*lt.Elem, args[1]) {
			s.errorAt(n.Args[1], "cannot append %s to %s", args[1], lt)
		}
		return lt
	case "len":
		if len(n.Args) != 1 {
			s.errorAt(n, "len takes 1 argument, got %d", len(n.Args))
			return IntType
		}
		if t := args[0]; !isDynamic(t) && t.Kind != TypeList && t.Kind != TypeStr {
			s.errorAt(n.Args[0], "invalid argument for len: %s", t)
		}
		return IntType
	}

	fn, ok := s.funcs[n.Name]
	if !ok {
		s.errorAt(n, "undefined function: %s", n.Name)
		return UnknownType
	}
	if len(n.Args) != len(fn.Params) {
		s.errorAt(n, "%s takes %d arguments, got %d", n.Name, len(fn.Params), len(n.Args))
		return s.declared(fn.Return)
	}
	if !s.untyped {
		for i, p := range fn.Params {
			if !assignable(p.Type, args[i]) {
				s.errorAt(n.Args[i], "cannot use %s as %s in argument %s of %s", args[i], p.Type, p.Name, n.Name)
			}
		}
	}
	if fn.Return.Kind == TypeVoid {
		return VoidType
	}
	return s.declared(fn.Return)
}

func isDynamic(t Type) bool {
	return t.Kind == TypeUnknown || t.Kind == TypeAny
}

func isNumeric(t Type) bool {
	return t.Kind == TypeInt || t.Kind == TypeFloat || isDynamic(t)
}

// assignable reports whether a value of type src can be stored where dst is
// expected. Unknown and any match everything; an empty list literal matches
// every list type.
func assignable(dst, src Type) bool {
	if isDynamic(dst) || isDynamic(src) {
		return true
	}
	if dst.Kind != src.Kind {
		return false
	}
	if dst.Kind != TypeList {
		return true
	}
	if dst.Elem == nil || src.Elem == nil {
		return true
	}
	return assignable(*dst.Elem, *src.Elem)
}
