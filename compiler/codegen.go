package compiler

import (
	"fmt"

	"github.com/abooishaaq/sahl/vm"
)

// ---------------------------------------------------------------------------
// Codegen: Compile AST to bytecode
// ---------------------------------------------------------------------------

// PatchKind says what a deferred patch site is waiting for.
type PatchKind int

const (
	PatchIfFalse  PatchKind = iota // JumpIfFalse past the then branch
	PatchSkipElse                  // Jump over the else branch
	PatchLoopExit                  // JumpIfFalse out of a while loop
	PatchBreak                     // Jump out of a while loop
	PatchCall                      // Call to a function entry
)

var patchKindNames = map[PatchKind]string{
	PatchIfFalse:  "if-false",
	PatchSkipElse: "skip-else",
	PatchLoopExit: "loop-exit",
	PatchBreak:    "break",
	PatchCall:     "call",
}

func (k PatchKind) String() string {
	if name, ok := patchKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("PatchKind(%d)", int(k))
}

// Patch is one placeholder operand. Target is -1 until resolved.
type Patch struct {
	Site   int
	Kind   PatchKind
	Target int
	Callee string // PatchCall only

	label int
	pos   Position
	fn    string
}

// Compiler compiles a checked AST to one flat instruction sequence plus a
// function table.
type Compiler struct {
	code      []vm.Instruction
	functions []vm.FunctionInfo
	entries   map[string]int

	pending  []*Patch // waiting for a label or, for calls, for all entries
	resolved []Patch
	labels   int
}

// funcContext is the state for compiling one function. It is created fresh
// for each function and dropped afterwards.
type funcContext struct {
	name      string
	scopes    []map[string]int // name -> slot, innermost last
	numLocals int
	loops     []loopContext
}

type loopContext struct {
	start int // offset of the condition
	exit  int // label bound after the loop
}

func newFuncContext(name string) *funcContext {
	return &funcContext{name: name, scopes: []map[string]int{{}}}
}

// reserve allocates the next dense slot without binding a name.
func (f *funcContext) reserve() int {
	f.numLocals++
	return f.numLocals - 1
}

func (f *funcContext) bind(name string, slot int) {
	f.scopes[len(f.scopes)-1][name] = slot
}

func (f *funcContext) resolve(name string) (int, bool) {
	for i := len(f.scopes) - 1; i >= 0; i-- {
		if slot, ok := f.scopes[i][name]; ok {
			return slot, true
		}
	}
	return 0, false
}

func (f *funcContext) push() { f.scopes = append(f.scopes, map[string]int{}) }
func (f *funcContext) pop()  { f.scopes = f.scopes[:len(f.scopes)-1] }

// NewCompiler creates a new compiler.
func NewCompiler() *Compiler {
	return &Compiler{entries: make(map[string]int)}
}

// Compile lowers prog to a vm.Program using a fresh compiler.
func Compile(prog *Program) (*vm.Program, error) {
	return NewCompiler().Compile(prog)
}

// Patches returns every patch resolved so far, in emission order of
// resolution.
func (c *Compiler) Patches() []Patch {
	return c.resolved
}

// Compile compiles every declared function in order, then main, and
// resolves call sites. The first failure aborts compilation.
func (c *Compiler) Compile(prog *Program) (*vm.Program, error) {
	if prog.Main == nil {
		return nil, &CompileError{Kind: ErrMissingMain, Pos: Position{Line: 1, Column: 1}}
	}
	for _, fn := range prog.Funcs {
		if err := c.compileFunc(fn); err != nil {
			return nil, err
		}
	}
	if err := c.compileFunc(prog.Main); err != nil {
		return nil, err
	}

	for _, p := range c.pending {
		if p.Kind != PatchCall {
			return nil, fmt.Errorf("internal error: unresolved %s patch at %d", p.Kind, p.Site)
		}
		entry, ok := c.entries[p.Callee]
		if !ok {
			return nil, &CompileError{Kind: ErrUnresolvedCall, Pos: p.pos, Function: p.fn, Detail: p.Callee}
		}
		c.code[p.Site].A = entry
		p.Target = entry
		c.resolved = append(c.resolved, *p)
	}
	c.pending = nil

	return &vm.Program{
		Code:      c.code,
		Functions: c.functions,
		Start:     c.entries[prog.Main.Name],
	}, nil
}

func (c *Compiler) compileFunc(fn *Func) error {
	ctx := newFuncContext(fn.Name)
	for _, p := range fn.Params {
		ctx.bind(p.Name, ctx.reserve())
	}
	entry := len(c.code)
	c.entries[fn.Name] = entry

	if err := c.compileStatements(ctx, fn.Body); err != nil {
		return err
	}
	c.emit(vm.Instruction{Op: vm.OpReturn})

	c.functions = append(c.functions, vm.FunctionInfo{
		Name:   fn.Name,
		Entry:  entry,
		Params: len(fn.Params),
		Locals: ctx.numLocals,
	})
	return nil
}

// ---------------------------------------------------------------------------
// Emission and patching
// ---------------------------------------------------------------------------

func (c *Compiler) emit(in vm.Instruction) int {
	c.code = append(c.code, in)
	return len(c.code) - 1
}

func (c *Compiler) emitOp(op vm.Opcode) int {
	return c.emit(vm.Instruction{Op: op})
}

func (c *Compiler) here() int {
	return len(c.code)
}

func (c *Compiler) newLabel() int {
	c.labels++
	return c.labels
}

// emitPatched emits op with a placeholder target and records the site
// against label.
func (c *Compiler) emitPatched(op vm.Opcode, kind PatchKind, label int) {
	site := c.emit(vm.Instruction{Op: op, A: -1})
	c.pending = append(c.pending, &Patch{Site: site, Kind: kind, Target: -1, label: label})
}

// bindLabel resolves every pending patch waiting on label to target.
func (c *Compiler) bindLabel(label, target int) {
	kept := c.pending[:0]
	for _, p := range c.pending {
		if p.Kind == PatchCall || p.label != label {
			kept = append(kept, p)
			continue
		}
		c.code[p.Site].A = target
		p.Target = target
		c.resolved = append(c.resolved, *p)
	}
	c.pending = kept
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (c *Compiler) compileStatements(ctx *funcContext, stmts []Stmt) error {
	for _, stmt := range stmts {
		if err := c.compileStmt(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) compileBlock(ctx *funcContext, stmts []Stmt) error {
	ctx.push()
	defer ctx.pop()
	return c.compileStatements(ctx, stmts)
}

func (c *Compiler) compileStmt(ctx *funcContext, stmt Stmt) error {
	switch n := stmt.(type) {
	case *ExprStmt:
		if err := c.compileExpr(ctx, n.X); err != nil {
			return err
		}
		c.emitOp(vm.OpPop)

	case *DeclStmt:
		// The slot is taken in declaration order, but the name is bound only
		// after the initializer so it still sees any outer binding.
		slot := ctx.reserve()
		if err := c.compileExpr(ctx, n.Value); err != nil {
			return err
		}
		c.emit(vm.Instruction{Op: vm.OpDefLocal, A: slot})
		ctx.bind(n.Name, slot)

	case *ReturnStmt:
		if n.Value != nil {
			if err := c.compileExpr(ctx, n.Value); err != nil {
				return err
			}
		}
		c.emitOp(vm.OpReturn)

	case *IfStmt:
		elseLabel, endLabel := c.newLabel(), c.newLabel()
		if err := c.compileExpr(ctx, n.Cond); err != nil {
			return err
		}
		c.emitPatched(vm.OpJumpIfFalse, PatchIfFalse, elseLabel)
		if err := c.compileBlock(ctx, n.Then); err != nil {
			return err
		}
		c.emitPatched(vm.OpJump, PatchSkipElse, endLabel)
		c.bindLabel(elseLabel, c.here())
		if err := c.compileBlock(ctx, n.Else); err != nil {
			return err
		}
		c.bindLabel(endLabel, c.here())

	case *WhileStmt:
		loop := loopContext{start: c.here(), exit: c.newLabel()}
		if err := c.compileExpr(ctx, n.Cond); err != nil {
			return err
		}
		c.emitPatched(vm.OpJumpIfFalse, PatchLoopExit, loop.exit)
		ctx.loops = append(ctx.loops, loop)
		err := c.compileBlock(ctx, n.Body)
		ctx.loops = ctx.loops[:len(ctx.loops)-1]
		if err != nil {
			return err
		}
		c.emit(vm.Instruction{Op: vm.OpJump, A: loop.start})
		c.bindLabel(loop.exit, c.here())

	case *BreakStmt:
		if len(ctx.loops) == 0 {
			return c.errorAt(ctx, ErrBreakOutsideLoop, n, "")
		}
		c.emitPatched(vm.OpJump, PatchBreak, ctx.loops[len(ctx.loops)-1].exit)

	case *ContinueStmt:
		if len(ctx.loops) == 0 {
			return c.errorAt(ctx, ErrContinueOutsideLoop, n, "")
		}
		c.emit(vm.Instruction{Op: vm.OpJump, A: ctx.loops[len(ctx.loops)-1].start})

	default:
		return c.errorAt(ctx, ErrUnsupported, stmt, fmt.Sprintf("%T", stmt))
	}
	return nil
}

func (c *Compiler) errorAt(ctx *funcContext, kind CompileErrorKind, node Node, detail string) error {
	return &CompileError{Kind: kind, Pos: node.Span().Start, Function: ctx.name, Detail: detail}
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

var binaryOps = map[string]vm.Opcode{
	"+":  vm.OpAdd,
	"-":  vm.OpSub,
	"*":  vm.OpMul,
	"/":  vm.OpDiv,
	"%":  vm.OpMod,
	"&&": vm.OpAnd,
	"||": vm.OpOr,
	"==": vm.OpEqual,
	"!=": vm.OpNotEqual,
	"<":  vm.OpLess,
	"<=": vm.OpLessEqual,
	">":  vm.OpGreater,
	">=": vm.OpGreaterEqual,
}

var unaryOps = map[string]vm.Opcode{
	"-": vm.OpNeg,
	"!": vm.OpNot,
}

// compileExpr emits code leaving exactly one value on the stack.
func (c *Compiler) compileExpr(ctx *funcContext, expr Expr) error {
	switch n := expr.(type) {
	case *IntLiteral:
		c.emit(vm.Instruction{Op: vm.OpConst, Const: vm.IntValue(n.Value)})
	case *FloatLiteral:
		c.emit(vm.Instruction{Op: vm.OpConst, Const: vm.FloatValue(n.Value)})
	case *CharLiteral:
		c.emit(vm.Instruction{Op: vm.OpConst, Const: vm.CharValue(n.Value)})
	case *StringLiteral:
		c.emit(vm.Instruction{Op: vm.OpConst, Const: vm.StrValue(n.Value)})
	case *BoolLiteral:
		if n.Value {
			c.emitOp(vm.OpTrue)
		} else {
			c.emitOp(vm.OpFalse)
		}

	case *ListLiteral:
		for _, e := range n.Elements {
			if err := c.compileExpr(ctx, e); err != nil {
				return err
			}
		}
		c.emit(vm.Instruction{Op: vm.OpList, A: len(n.Elements)})

	case *Ident:
		slot, ok := ctx.resolve(n.Name)
		if !ok {
			return c.errorAt(ctx, ErrUnresolvedVariable, n, n.Name)
		}
		c.emit(vm.Instruction{Op: vm.OpGetLocal, A: slot})

	case *UnaryExpr:
		op, ok := unaryOps[n.Op]
		if !ok {
			return c.errorAt(ctx, ErrUnsupported, n, "unary "+n.Op)
		}
		if err := c.compileExpr(ctx, n.X); err != nil {
			return err
		}
		c.emitOp(op)

	case *BinaryExpr:
		op, ok := binaryOps[n.Op]
		if !ok {
			return c.errorAt(ctx, ErrUnsupported, n, "operator "+n.Op)
		}
		if err := c.compileExpr(ctx, n.Left); err != nil {
			return err
		}
		if err := c.compileExpr(ctx, n.Right); err != nil {
			return err
		}
		c.emitOp(op)

	case *CallExpr:
		return c.compileCall(ctx, n)

	case *IndexExpr:
		if err := c.compileExpr(ctx, n.X); err != nil {
			return err
		}
		if err := c.compileExpr(ctx, n.Index); err != nil {
			return err
		}
		c.emitOp(vm.OpIndex)

	case *AssignExpr:
		return c.compileAssign(ctx, n)

	case *MakeExpr:
		v, err := c.makeList(ctx, n)
		if err != nil {
			return err
		}
		c.emit(vm.Instruction{Op: vm.OpConst, Const: v})

	default:
		return c.errorAt(ctx, ErrUnsupported, expr, fmt.Sprintf("%T", expr))
	}
	return nil
}

func (c *Compiler) compileArgs(ctx *funcContext, args []Expr) error {
	for _, a := range args {
		if err := c.compileExpr(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) compileCall(ctx *funcContext, n *CallExpr) error {
	if err := c.compileArgs(ctx, n.Args); err != nil {
		return err
	}
	switch n.Name {
	case "print":
		c.emit(vm.Instruction{Op: vm.OpPrint, A: len(n.Args)})
		return nil
	case "append":
		if len(n.Args) != 2 {
			return c.errorAt(ctx, ErrUnsupported, n, "append needs 2 arguments")
		}
		c.emitOp(vm.OpAppend)
		return nil
	case "len":
		if len(n.Args) != 1 {
			return c.errorAt(ctx, ErrUnsupported, n, "len needs 1 argument")
		}
		c.emitOp(vm.OpLength)
		return nil
	}

	site := c.emit(vm.Instruction{Op: vm.OpCall, A: -1, B: len(n.Args)})
	c.pending = append(c.pending, &Patch{
		Site:   site,
		Kind:   PatchCall,
		Target: -1,
		Callee: n.Name,
		pos:    n.Span().Start,
		fn:     ctx.name,
	})
	return nil
}

// compileAssign emits value first, then the target: Assign(slot) for a
// variable, or base, index, Store for an element.
func (c *Compiler) compileAssign(ctx *funcContext, n *AssignExpr) error {
	switch target := n.Target.(type) {
	case *Ident:
		slot, ok := ctx.resolve(target.Name)
		if !ok {
			return c.errorAt(ctx, ErrUnresolvedVariable, target, target.Name)
		}
		if err := c.compileExpr(ctx, n.Value); err != nil {
			return err
		}
		c.emit(vm.Instruction{Op: vm.OpAssign, A: slot})

	case *IndexExpr:
		if err := c.compileExpr(ctx, n.Value); err != nil {
			return err
		}
		if err := c.compileExpr(ctx, target.X); err != nil {
			return err
		}
		if err := c.compileExpr(ctx, target.Index); err != nil {
			return err
		}
		c.emitOp(vm.OpStore)

	default:
		return c.errorAt(ctx, ErrInvalidAssignTarget, n.Target, fmt.Sprintf("%T", n.Target))
	}
	return nil
}

// MaxMakeSize bounds the constant list a make expression may build.
const MaxMakeSize = 1 << 20

var scalarKinds = map[TypeKind]vm.Kind{
	TypeInt:   vm.KindInt,
	TypeChar:  vm.KindChar,
	TypeBool:  vm.KindBool,
	TypeFloat: vm.KindFloat,
	TypeStr:   vm.KindStr,
}

// makeList builds the constant for make([T], n): n zero values of T.
func (c *Compiler) makeList(ctx *funcContext, n *MakeExpr) (vm.Value, error) {
	if n.Type.Kind != TypeList || n.Type.Elem == nil {
		return vm.Nil, c.errorAt(ctx, ErrInvalidMake, n, "not a list type: "+n.Type.String())
	}
	kind, ok := scalarKinds[n.Type.Elem.Kind]
	if !ok {
		return vm.Nil, c.errorAt(ctx, ErrInvalidMake, n, "list of "+n.Type.Elem.String())
	}
	if n.Size < 0 || n.Size > MaxMakeSize {
		return vm.Nil, c.errorAt(ctx, ErrInvalidMake, n, fmt.Sprintf("size %d out of range", n.Size))
	}
	zero, _ := vm.ZeroValue(kind)
	elems := make([]vm.Value, n.Size)
	for i := range elems {
		elems[i] = zero
	}
	return vm.ListValue(elems...), nil
}
