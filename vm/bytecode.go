package vm

import (
	"fmt"
	"sort"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single instruction kind. The numbering is fixed: it is
// the byte written to serialized images.
type Opcode byte

// Arithmetic and logic
const (
	OpAdd Opcode = 0  // pop b, a; push a + b
	OpSub Opcode = 1  // pop b, a; push a - b
	OpMul Opcode = 2  // pop b, a; push a * b
	OpDiv Opcode = 3  // pop b, a; push a / b
	OpMod Opcode = 4  // pop b, a; push a % b
	OpNeg Opcode = 5  // negate top of stack
	OpNot Opcode = 6  // boolean not
	OpAnd Opcode = 7  // boolean and (both operands evaluated)
	OpOr  Opcode = 8  // boolean or (both operands evaluated)
)

// Comparison
const (
	OpEqual        Opcode = 9
	OpNotEqual     Opcode = 10
	OpLess         Opcode = 11
	OpLessEqual    Opcode = 12
	OpGreater      Opcode = 13
	OpGreaterEqual Opcode = 14
)

// Constants and control flow
const (
	OpTrue        Opcode = 15 // push true
	OpFalse       Opcode = 16 // push false
	OpJump        Opcode = 17 // ip = A
	OpJumpIfFalse Opcode = 18 // pop cond; if false, ip = A
)

// Lists
const (
	OpStore  Opcode = 19 // pop index, list, value; list[index] = value; push value
	OpIndex  Opcode = 20 // pop index, list; push list[index]
	OpAppend Opcode = 21 // pop value, list; push list + [value]
	OpLength Opcode = 22 // pop list or string; push its length
	OpList   Opcode = 23 // pop A values; push them as a list
)

// Constants, locals, calls
const (
	OpConst    Opcode = 24 // push a copy of Const
	OpDefLocal Opcode = 28 // pop into slot A
	OpGetLocal Opcode = 29 // push slot A
	OpAssign   Opcode = 30 // store top into slot A, leaving it on the stack
	OpCall     Opcode = 31 // call function at entry A with B arguments
	OpReturn   Opcode = 32 // return top of stack (or nil) to the caller
	OpPrint    Opcode = 33 // pop A values, print them, push nil
	OpPop      Opcode = 34 // discard top of stack
)

// OperandShape describes which operand fields an opcode uses.
type OperandShape uint8

const (
	OperandNone   OperandShape = iota // no operands
	OperandA                          // one integer operand in A
	OperandAB                         // two integer operands in A and B
	OperandConst                      // a constant value
)

// OpcodeInfo holds static metadata about an opcode.
type OpcodeInfo struct {
	Name  string
	Shape OperandShape
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpAdd:          {"Add", OperandNone},
	OpSub:          {"Sub", OperandNone},
	OpMul:          {"Mul", OperandNone},
	OpDiv:          {"Div", OperandNone},
	OpMod:          {"Mod", OperandNone},
	OpNeg:          {"Neg", OperandNone},
	OpNot:          {"Not", OperandNone},
	OpAnd:          {"And", OperandNone},
	OpOr:           {"Or", OperandNone},
	OpEqual:        {"Equal", OperandNone},
	OpNotEqual:     {"NotEqual", OperandNone},
	OpLess:         {"Less", OperandNone},
	OpLessEqual:    {"LessEqual", OperandNone},
	OpGreater:      {"Greater", OperandNone},
	OpGreaterEqual: {"GreaterEqual", OperandNone},
	OpTrue:         {"True", OperandNone},
	OpFalse:        {"False", OperandNone},
	OpJump:         {"Jump", OperandA},
	OpJumpIfFalse:  {"JumpIfFalse", OperandA},
	OpStore:        {"Store", OperandNone},
	OpIndex:        {"Index", OperandNone},
	OpAppend:       {"Append", OperandNone},
	OpLength:       {"Length", OperandNone},
	OpList:         {"List", OperandA},
	OpConst:        {"Const", OperandConst},
	OpDefLocal:     {"DefLocal", OperandA},
	OpGetLocal:     {"GetLocal", OperandA},
	OpAssign:       {"Assign", OperandA},
	OpCall:         {"Call", OperandAB},
	OpReturn:       {"Return", OperandNone},
	OpPrint:        {"Print", OperandA},
	OpPop:          {"Pop", OperandNone},
}

// Info returns metadata for the opcode. Unknown opcodes report ok=false.
func (op Opcode) Info() (OpcodeInfo, bool) {
	info, ok := opcodeTable[op]
	return info, ok
}

// String returns the opcode's mnemonic.
func (op Opcode) String() string {
	if info, ok := opcodeTable[op]; ok {
		return info.Name
	}
	return fmt.Sprintf("Op(%d)", byte(op))
}

// IsJump reports whether A holds an instruction offset.
func (op Opcode) IsJump() bool {
	return op == OpJump || op == OpJumpIfFalse
}

// ---------------------------------------------------------------------------
// Instructions and programs
// ---------------------------------------------------------------------------

// Instruction is one fixed-shape operation. Only the fields named by the
// opcode's OperandShape are meaningful.
type Instruction struct {
	Op    Opcode
	A     int
	B     int
	Const Value
}

// String renders the instruction without its offset.
func (in Instruction) String() string {
	info, ok := in.Op.Info()
	if !ok {
		return in.Op.String()
	}
	switch info.Shape {
	case OperandA:
		return fmt.Sprintf("%s %d", info.Name, in.A)
	case OperandAB:
		return fmt.Sprintf("%s %d %d", info.Name, in.A, in.B)
	case OperandConst:
		return fmt.Sprintf("%s %s", info.Name, in.Const.Repr())
	default:
		return info.Name
	}
}

// FunctionInfo describes one compiled function in the flat sequence.
type FunctionInfo struct {
	Name   string
	Entry  int // offset of the first instruction
	Params int // parameters occupy slots [0, Params)
	Locals int // total slot count, parameters included
}

// Program is the compiler's output: one flat instruction sequence, the
// function table, and the start offset of main.
type Program struct {
	Code      []Instruction
	Functions []FunctionInfo
	Start     int
}

// Function looks up a function by name.
func (p *Program) Function(name string) (FunctionInfo, bool) {
	for _, fn := range p.Functions {
		if fn.Name == name {
			return fn, true
		}
	}
	return FunctionInfo{}, false
}

// FunctionAt returns the function whose entry is exactly offset.
func (p *Program) FunctionAt(offset int) (FunctionInfo, bool) {
	for _, fn := range p.Functions {
		if fn.Entry == offset {
			return fn, true
		}
	}
	return FunctionInfo{}, false
}

// FunctionContaining returns the function whose body contains offset.
// Function bodies are contiguous, so this is the function with the greatest
// entry not after offset.
func (p *Program) FunctionContaining(offset int) (FunctionInfo, bool) {
	best := -1
	for i, fn := range p.Functions {
		if fn.Entry <= offset && (best < 0 || fn.Entry > p.Functions[best].Entry) {
			best = i
		}
	}
	if best < 0 {
		return FunctionInfo{}, false
	}
	return p.Functions[best], true
}

// Entries returns the function name -> entry offset table.
func (p *Program) Entries() map[string]int {
	m := make(map[string]int, len(p.Functions))
	for _, fn := range p.Functions {
		m[fn.Name] = fn.Entry
	}
	return m
}

// ---------------------------------------------------------------------------
// Disassembler
// ---------------------------------------------------------------------------

// DisassembleInstruction renders one instruction with its offset.
func DisassembleInstruction(offset int, in Instruction) string {
	return fmt.Sprintf("%04d  %s", offset, in.String())
}

// Disassemble renders the whole program, labelling function entries.
func Disassemble(p *Program) string {
	labels := make(map[int][]string)
	for _, fn := range p.Functions {
		labels[fn.Entry] = append(labels[fn.Entry], fn.Name)
	}
	for _, names := range labels {
		sort.Strings(names)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "; start %d, %d functions, %d instructions\n", p.Start, len(p.Functions), len(p.Code))
	for offset, in := range p.Code {
		for _, name := range labels[offset] {
			fmt.Fprintf(&sb, "<%s>:\n", name)
		}
		sb.WriteString(DisassembleInstruction(offset, in))
		sb.WriteByte('\n')
	}
	return sb.String()
}
