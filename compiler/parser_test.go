package compiler

import (
	"strings"
	"testing"
)

func parseOK(t *testing.T, src string) *Program {
	t.Helper()
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	return prog
}

// parseMainExpr parses "fun main() { <expr>; }" and returns the expression.
func parseMainExpr(t *testing.T, expr string) Expr {
	t.Helper()
	prog := parseOK(t, "fun main() { "+expr+"; }")
	if len(prog.Main.Body) != 1 {
		t.Fatalf("body has %d statements, want 1", len(prog.Main.Body))
	}
	stmt, ok := prog.Main.Body[0].(*ExprStmt)
	if !ok {
		t.Fatalf("statement is %T, want *ExprStmt", prog.Main.Body[0])
	}
	return stmt.X
}

func TestParseFunctions(t *testing.T) {
	prog := parseOK(t, `
fun add(a: int, b: int) -> int { return a + b; }
fun greet(name: string) { print("hi", name); }
fun main() { print(add(1, 2)); }
`)
	if len(prog.Funcs) != 2 {
		t.Fatalf("got %d funcs, want 2", len(prog.Funcs))
	}
	if prog.Main == nil || prog.Main.Name != "main" {
		t.Fatal("main not found")
	}
	add := prog.Funcs[0]
	if add.Name != "add" || len(add.Params) != 2 || !add.Return.Equal(IntType) {
		t.Errorf("add = %s", add.Signature())
	}
	if got := add.Signature(); got != "fun add(a: int, b: int) -> int" {
		t.Errorf("Signature() = %q", got)
	}
	if !prog.Funcs[1].Return.Equal(VoidType) {
		t.Errorf("greet return = %s, want void", prog.Funcs[1].Return)
	}
	if prog.Lookup("greet") != prog.Funcs[1] || prog.Lookup("main") != prog.Main || prog.Lookup("nope") != nil {
		t.Error("Lookup mismatch")
	}
}

func TestParseTypes(t *testing.T) {
	prog := parseOK(t, `fun f(a: [int], b: [[char]], c: float, d: bool, e: any) -> [string] { return ["x"]; } fun main() {}`)
	want := []string{"[int]", "[[char]]", "float", "bool", "any"}
	for i, p := range prog.Funcs[0].Params {
		if p.Type.String() != want[i] {
			t.Errorf("param %d type = %s, want %s", i, p.Type, want[i])
		}
	}
	if got := prog.Funcs[0].Return.String(); got != "[string]" {
		t.Errorf("return type = %s", got)
	}
}

func TestParsePrecedence(t *testing.T) {
	tests := []struct {
		input string
		want  string // Dump of the expression, flattened
	}{
		{"1 + 2 * 3", "Binary + (Int 1, Binary * (Int 2, Int 3))"},
		{"(1 + 2) * 3", "Binary * (Binary + (Int 1, Int 2), Int 3)"},
		{"1 - 2 - 3", "Binary - (Binary - (Int 1, Int 2), Int 3)"},
		{"a || b && c", "Binary || (Var a, Binary && (Var b, Var c))"},
		{"a == b < c", "Binary == (Var a, Binary < (Var b, Var c))"},
		{"!a == b", "Binary == (Unary ! (Var a), Var b)"},
		{"-x * 2", "Binary * (Unary - (Var x), Int 2)"},
		{"a = b = 1", "Assign (Var a, Assign (Var b, Int 1))"},
		{"xs[i][j]", "Index (Index (Var xs, Var i), Var j)"},
		{"f(1, g(2))[0]", "Index (Call f (Int 1, Call g (Int 2)), Int 0)"},
	}
	for _, tc := range tests {
		got := flatExpr(parseMainExpr(t, tc.input))
		if got != tc.want {
			t.Errorf("%s\n got  %s\n want %s", tc.input, got, tc.want)
		}
	}
}

// flatExpr renders an expression on one line using the Dump vocabulary.
func flatExpr(e Expr) string {
	d := &dumper{}
	d.expr(e)
	lines := strings.Split(strings.TrimRight(d.sb.String(), "\n"), "\n")
	var render func(i int) (string, int)
	depthOf := func(s string) int { return (len(s) - len(strings.TrimLeft(s, " "))) / 2 }
	render = func(i int) (string, int) {
		head := strings.TrimSpace(lines[i])
		depth := depthOf(lines[i])
		var kids []string
		j := i + 1
		for j < len(lines) && depthOf(lines[j]) > depth {
			var k string
			k, j = render(j)
			kids = append(kids, k)
		}
		if len(kids) == 0 {
			return head, j
		}
		return head + " (" + strings.Join(kids, ", ") + ")", j
	}
	s, _ := render(0)
	return s
}

func TestParseNegativeLiterals(t *testing.T) {
	e := parseMainExpr(t, "-9223372036854775808")
	lit, ok := e.(*IntLiteral)
	if !ok {
		t.Fatalf("got %T, want *IntLiteral", e)
	}
	if lit.Value != -9223372036854775808 {
		t.Errorf("value = %d", lit.Value)
	}
	if l, ok := parseMainExpr(t, "-7").(*IntLiteral); !ok || l.Value != -7 {
		t.Errorf("-7 parsed as %#v", l)
	}
	b, ok := parseMainExpr(t, "1 - -9223372036854775808").(*BinaryExpr)
	if !ok {
		t.Fatalf("got %T, want *BinaryExpr", b)
	}
	if r, ok := b.Right.(*IntLiteral); !ok || r.Value != -9223372036854775808 {
		t.Errorf("right operand = %#v", b.Right)
	}
	if f, ok := parseMainExpr(t, "-2.5").(*FloatLiteral); !ok || f.Value != -2.5 {
		t.Errorf("-2.5 parsed as %#v", f)
	}
}

func TestParseStatements(t *testing.T) {
	prog := parseOK(t, `
fun main() {
	let x = 1;
	let ys: [int] = make([int], 4);
	if x > 0 { x = 2; } else if x < 0 { x = 3; } else { x = 4; }
	while x < 10 {
		if x == 5 { break; }
		x = x + 1;
		continue;
	}
	return;
}`)
	body := prog.Main.Body
	if len(body) != 5 {
		t.Fatalf("got %d statements, want 5", len(body))
	}
	decl := body[1].(*DeclStmt)
	if decl.Type == nil || decl.Type.String() != "[int]" {
		t.Errorf("decl type = %v", decl.Type)
	}
	mk := decl.Value.(*MakeExpr)
	if mk.Size != 4 || mk.Type.String() != "[int]" {
		t.Errorf("make = %s %d", mk.Type, mk.Size)
	}
	ifs := body[2].(*IfStmt)
	nested, ok := ifs.Else[0].(*IfStmt)
	if !ok || len(ifs.Else) != 1 {
		t.Fatalf("else-if not nested: %#v", ifs.Else)
	}
	if len(nested.Else) != 1 {
		t.Errorf("final else has %d statements, want 1", len(nested.Else))
	}
	loop := body[3].(*WhileStmt)
	if len(loop.Body) != 3 {
		t.Errorf("while body has %d statements, want 3", len(loop.Body))
	}
	if _, ok := loop.Body[2].(*ContinueStmt); !ok {
		t.Errorf("last loop statement = %T, want *ContinueStmt", loop.Body[2])
	}
	if ret := body[4].(*ReturnStmt); ret.Value != nil {
		t.Errorf("bare return has value %v", ret.Value)
	}
}

func TestParseLiterals(t *testing.T) {
	prog := parseOK(t, `fun main() { print(1, 2.5, 'c', "s", true, false, [1, 2], []); }`)
	call := prog.Main.Body[0].(*ExprStmt).X.(*CallExpr)
	if len(call.Args) != 8 {
		t.Fatalf("got %d args, want 8", len(call.Args))
	}
	if c := call.Args[2].(*CharLiteral); c.Value != 'c' {
		t.Errorf("char = %q", c.Value)
	}
	if l := call.Args[7].(*ListLiteral); len(l.Elements) != 0 {
		t.Errorf("empty list has %d elements", len(l.Elements))
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"fun main() { let = 1; }", "expected variable name"},
		{"fun main() { let x = 1 }", "expected ;"},
		{"fun main() { x = ; }", "unexpected"},
		{"fun main(a) {}", "expected :"},
		{"fun main() { let x: blob = 1; }", "unknown type"},
		{"let x = 1;", "expected fun"},
		{"fun main() { make([int], n); }", "integer literal"},
		{"fun main() {} fun main() {}", "main declared twice"},
		{"fun main() { print(99999999999999999999); }", "out of range"},
		{"fun main() { print(9223372036854775808); }", "out of range"},
		{"fun main() { print(2 - 9223372036854775808); }", "out of range"},
		{"fun main() { print(-9223372036854775809); }", "out of range"},
	}
	for _, tc := range tests {
		_, err := Parse(tc.input)
		if err == nil {
			t.Errorf("Parse(%q): expected error", tc.input)
			continue
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Errorf("Parse(%q): error %q does not mention %q", tc.input, err, tc.want)
		}
	}
}

func TestParseRecoversAfterError(t *testing.T) {
	p := NewParser(`
fun main() {
	let = 1;
	let y = ;
	print(1);
}`)
	prog := p.ParseProgram()
	if len(p.Errors()) != 2 {
		t.Errorf("got %d errors, want 2: %v", len(p.Errors()), p.Errors())
	}
	if prog.Main == nil || len(prog.Main.Body) != 1 {
		t.Fatalf("expected main with the print statement to survive")
	}
	if p.Errors()[0].Pos.Line != 3 {
		t.Errorf("first error on line %d, want 3", p.Errors()[0].Pos.Line)
	}
}

func TestParseSpans(t *testing.T) {
	prog := parseOK(t, "fun main() {\n  let x = 1 + 2;\n}")
	decl := prog.Main.Body[0].(*DeclStmt)
	sp := decl.Span()
	if sp.Start.Line != 2 || sp.Start.Column != 3 {
		t.Errorf("decl starts at %d:%d, want 2:3", sp.Start.Line, sp.Start.Column)
	}
	bin := decl.Value.(*BinaryExpr).Span()
	if bin.Start.Column != 11 || bin.End.Column != 16 {
		t.Errorf("binary spans columns %d-%d, want 11-16", bin.Start.Column, bin.End.Column)
	}
}
