package compiler

import "strings"

// ---------------------------------------------------------------------------
// AST: Abstract Syntax Tree for sahl
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

// Node is the interface implemented by all AST nodes.
type Node interface {
	Span() Span
	node() // marker method
}

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// TypeKind enumerates the source-level types.
type TypeKind int

const (
	TypeUnknown TypeKind = iota // not declared; checked at run time
	TypeInt
	TypeChar
	TypeBool
	TypeFloat
	TypeStr
	TypeList
	TypeVoid
	TypeAny
)

// Type is a source-level type. Elem is set for lists only.
type Type struct {
	Kind TypeKind
	Elem *Type
}

var (
	IntType     = Type{Kind: TypeInt}
	CharType    = Type{Kind: TypeChar}
	BoolType    = Type{Kind: TypeBool}
	FloatType   = Type{Kind: TypeFloat}
	StrType     = Type{Kind: TypeStr}
	VoidType    = Type{Kind: TypeVoid}
	AnyType     = Type{Kind: TypeAny}
	UnknownType = Type{Kind: TypeUnknown}
)

// ListOf returns the list type with the given element type.
func ListOf(elem Type) Type {
	return Type{Kind: TypeList, Elem: &elem}
}

func (t Type) String() string {
	switch t.Kind {
	case TypeInt:
		return "int"
	case TypeChar:
		return "char"
	case TypeBool:
		return "bool"
	case TypeFloat:
		return "float"
	case TypeStr:
		return "string"
	case TypeVoid:
		return "void"
	case TypeAny:
		return "any"
	case TypeList:
		if t.Elem == nil {
			return "[?]"
		}
		return "[" + t.Elem.String() + "]"
	}
	return "?"
}

// Equal compares types structurally.
func (t Type) Equal(o Type) bool {
	if t.Kind != o.Kind {
		return false
	}
	if t.Kind != TypeList {
		return true
	}
	if t.Elem == nil || o.Elem == nil {
		return t.Elem == o.Elem
	}
	return t.Elem.Equal(*o.Elem)
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr() // marker method
}

// IntLiteral represents an integer literal.
type IntLiteral struct {
	SpanVal Span
	Value   int64
}

func (n *IntLiteral) Span() Span { return n.SpanVal }
func (n *IntLiteral) node()      {}
func (n *IntLiteral) expr()      {}

// FloatLiteral represents a floating-point literal.
type FloatLiteral struct {
	SpanVal Span
	Value   float64
}

func (n *FloatLiteral) Span() Span { return n.SpanVal }
func (n *FloatLiteral) node()      {}
func (n *FloatLiteral) expr()      {}

// CharLiteral represents a character literal ('a').
type CharLiteral struct {
	SpanVal Span
	Value   byte
}

func (n *CharLiteral) Span() Span { return n.SpanVal }
func (n *CharLiteral) node()      {}
func (n *CharLiteral) expr()      {}

// StringLiteral represents a string literal.
type StringLiteral struct {
	SpanVal Span
	Value   string
}

func (n *StringLiteral) Span() Span { return n.SpanVal }
func (n *StringLiteral) node()      {}
func (n *StringLiteral) expr()      {}

// BoolLiteral represents true or false.
type BoolLiteral struct {
	SpanVal Span
	Value   bool
}

func (n *BoolLiteral) Span() Span { return n.SpanVal }
func (n *BoolLiteral) node()      {}
func (n *BoolLiteral) expr()      {}

// ListLiteral represents [a, b, c].
type ListLiteral struct {
	SpanVal  Span
	Elements []Expr
}

func (n *ListLiteral) Span() Span { return n.SpanVal }
func (n *ListLiteral) node()      {}
func (n *ListLiteral) expr()      {}

// Ident is a variable reference.
type Ident struct {
	SpanVal Span
	Name    string
}

func (n *Ident) Span() Span { return n.SpanVal }
func (n *Ident) node()      {}
func (n *Ident) expr()      {}

// UnaryExpr is -x or !x.
type UnaryExpr struct {
	SpanVal Span
	Op      string
	X       Expr
}

func (n *UnaryExpr) Span() Span { return n.SpanVal }
func (n *UnaryExpr) node()      {}
func (n *UnaryExpr) expr()      {}

// BinaryExpr is an arithmetic, comparison or boolean operation. Op is the
// operator's source spelling.
type BinaryExpr struct {
	SpanVal Span
	Op      string
	Left    Expr
	Right   Expr
}

func (n *BinaryExpr) Span() Span { return n.SpanVal }
func (n *BinaryExpr) node()      {}
func (n *BinaryExpr) expr()      {}

// CallExpr calls a named function or builtin.
type CallExpr struct {
	SpanVal Span
	Name    string
	Args    []Expr
}

func (n *CallExpr) Span() Span { return n.SpanVal }
func (n *CallExpr) node()      {}
func (n *CallExpr) expr()      {}

// IndexExpr is x[i].
type IndexExpr struct {
	SpanVal Span
	X       Expr
	Index   Expr
}

func (n *IndexExpr) Span() Span { return n.SpanVal }
func (n *IndexExpr) node()      {}
func (n *IndexExpr) expr()      {}

// AssignExpr is target = value. Valid targets are Ident and IndexExpr.
type AssignExpr struct {
	SpanVal Span
	Target  Expr
	Value   Expr
}

func (n *AssignExpr) Span() Span { return n.SpanVal }
func (n *AssignExpr) node()      {}
func (n *AssignExpr) expr()      {}

// MakeExpr is make([T], n); n is a compile-time constant.
type MakeExpr struct {
	SpanVal Span
	Type    Type
	Size    int64
}

func (n *MakeExpr) Span() Span { return n.SpanVal }
func (n *MakeExpr) node()      {}
func (n *MakeExpr) expr()      {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt() // marker method
}

// ExprStmt evaluates an expression and discards its value.
type ExprStmt struct {
	SpanVal Span
	X       Expr
}

func (n *ExprStmt) Span() Span { return n.SpanVal }
func (n *ExprStmt) node()      {}
func (n *ExprStmt) stmt()      {}

// DeclStmt is let name[: type] = value.
type DeclStmt struct {
	SpanVal Span
	Name    string
	Type    *Type // nil when inferred
	Value   Expr
}

func (n *DeclStmt) Span() Span { return n.SpanVal }
func (n *DeclStmt) node()      {}
func (n *DeclStmt) stmt()      {}

// ReturnStmt returns Value, or nil when Value is absent.
type ReturnStmt struct {
	SpanVal Span
	Value   Expr
}

func (n *ReturnStmt) Span() Span { return n.SpanVal }
func (n *ReturnStmt) node()      {}
func (n *ReturnStmt) stmt()      {}

// IfStmt is if cond { then } else { else }. Else is nil when absent; an
// else-if chain nests an IfStmt as the sole else statement.
type IfStmt struct {
	SpanVal Span
	Cond    Expr
	Then    []Stmt
	Else    []Stmt
}

func (n *IfStmt) Span() Span { return n.SpanVal }
func (n *IfStmt) node()      {}
func (n *IfStmt) stmt()      {}

// WhileStmt is while cond { body }.
type WhileStmt struct {
	SpanVal Span
	Cond    Expr
	Body    []Stmt
}

func (n *WhileStmt) Span() Span { return n.SpanVal }
func (n *WhileStmt) node()      {}
func (n *WhileStmt) stmt()      {}

// BreakStmt exits the innermost loop.
type BreakStmt struct {
	SpanVal Span
}

func (n *BreakStmt) Span() Span { return n.SpanVal }
func (n *BreakStmt) node()      {}
func (n *BreakStmt) stmt()      {}

// ContinueStmt re-evaluates the innermost loop's condition.
type ContinueStmt struct {
	SpanVal Span
}

func (n *ContinueStmt) Span() Span { return n.SpanVal }
func (n *ContinueStmt) node()      {}
func (n *ContinueStmt) stmt()      {}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

// Param is one function parameter.
type Param struct {
	Name string
	Type Type
}

// Func is a function declaration.
type Func struct {
	SpanVal  Span
	NameSpan Span
	Name     string
	Params   []Param
	Return   Type
	Body     []Stmt
}

func (n *Func) Span() Span { return n.SpanVal }
func (n *Func) node()      {}

// Signature renders the function header, e.g. "fun add(a: int, b: int) -> int".
func (n *Func) Signature() string {
	var sb strings.Builder
	sb.WriteString("fun ")
	sb.WriteString(n.Name)
	sb.WriteByte('(')
	for i, p := range n.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.Name)
		if p.Type.Kind != TypeUnknown {
			sb.WriteString(": ")
			sb.WriteString(p.Type.String())
		}
	}
	sb.WriteByte(')')
	if n.Return.Kind != TypeVoid && n.Return.Kind != TypeUnknown {
		sb.WriteString(" -> ")
		sb.WriteString(n.Return.String())
	}
	return sb.String()
}

// Program is a whole compilation unit: functions in declaration order plus
// the entry function.
type Program struct {
	Funcs []*Func
	Main  *Func
}

// Lookup finds a declared function, main included.
func (p *Program) Lookup(name string) *Func {
	if p.Main != nil && p.Main.Name == name {
		return p.Main
	}
	for _, f := range p.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}
