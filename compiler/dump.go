package compiler

import (
	"fmt"
	"strconv"
	"strings"
)

// Dump renders prog as an indented tree, one node per line.
func Dump(prog *Program) string {
	d := &dumper{}
	d.line("Program")
	d.depth++
	for _, fn := range prog.Funcs {
		d.fn(fn)
	}
	if prog.Main != nil {
		d.fn(prog.Main)
	}
	return d.sb.String()
}

type dumper struct {
	sb    strings.Builder
	depth int
}

func (d *dumper) line(format string, args ...any) {
	d.sb.WriteString(strings.Repeat("  ", d.depth))
	fmt.Fprintf(&d.sb, format, args...)
	d.sb.WriteByte('\n')
}

func (d *dumper) nested(f func()) {
	d.depth++
	f()
	d.depth--
}

func (d *dumper) fn(fn *Func) {
	d.line("Func %s", fn.Signature())
	d.nested(func() { d.stmts(fn.Body) })
}

func (d *dumper) stmts(stmts []Stmt) {
	for _, s := range stmts {
		d.stmt(s)
	}
}

func (d *dumper) stmt(s Stmt) {
	switch n := s.(type) {
	case *ExprStmt:
		d.line("Expr")
		d.nested(func() { d.expr(n.X) })
	case *DeclStmt:
		if n.Type != nil {
			d.line("Decl %s: %s", n.Name, n.Type)
		} else {
			d.line("Decl %s", n.Name)
		}
		d.nested(func() { d.expr(n.Value) })
	case *ReturnStmt:
		d.line("Return")
		if n.Value != nil {
			d.nested(func() { d.expr(n.Value) })
		}
	case *IfStmt:
		d.line("If")
		d.nested(func() {
			d.expr(n.Cond)
			d.line("Then")
			d.nested(func() { d.stmts(n.Then) })
			if n.Else != nil {
				d.line("Else")
				d.nested(func() { d.stmts(n.Else) })
			}
		})
	case *WhileStmt:
		d.line("While")
		d.nested(func() {
			d.expr(n.Cond)
			d.line("Body")
			d.nested(func() { d.stmts(n.Body) })
		})
	case *BreakStmt:
		d.line("Break")
	case *ContinueStmt:
		d.line("Continue")
	default:
		d.line("%T", s)
	}
}

func (d *dumper) expr(e Expr) {
	switch n := e.(type) {
	case *IntLiteral:
		d.line("Int %d", n.Value)
	case *FloatLiteral:
		d.line("Float %s", strconv.FormatFloat(n.Value, 'g', -1, 64))
	case *CharLiteral:
		d.line("Char %q", rune(n.Value))
	case *StringLiteral:
		d.line("Str %q", n.Value)
	case *BoolLiteral:
		d.line("Bool %t", n.Value)
	case *ListLiteral:
		d.line("List (%d)", len(n.Elements))
		d.nested(func() {
			for _, el := range n.Elements {
				d.expr(el)
			}
		})
	case *Ident:
		d.line("Var %s", n.Name)
	case *UnaryExpr:
		d.line("Unary %s", n.Op)
		d.nested(func() { d.expr(n.X) })
	case *BinaryExpr:
		d.line("Binary %s", n.Op)
		d.nested(func() {
			d.expr(n.Left)
			d.expr(n.Right)
		})
	case *CallExpr:
		d.line("Call %s", n.Name)
		d.nested(func() {
			for _, a := range n.Args {
				d.expr(a)
			}
		})
	case *IndexExpr:
		d.line("Index")
		d.nested(func() {
			d.expr(n.X)
			d.expr(n.Index)
		})
	case *AssignExpr:
		d.line("Assign")
		d.nested(func() {
			d.expr(n.Target)
			d.expr(n.Value)
		})
	case *MakeExpr:
		d.line("Make %s %d", n.Type, n.Size)
	default:
		d.line("%T", e)
	}
}
