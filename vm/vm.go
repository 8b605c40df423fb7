package vm

import (
	"context"
	"fmt"
	"io"
	"os"
)

// ---------------------------------------------------------------------------
// VM: runs a compiled Program
// ---------------------------------------------------------------------------

const (
	DefaultMaxStack  = 1 << 16
	DefaultMaxFrames = 4096
)

// TraceFunc observes each instruction before it executes. stack is the
// current frame's operand stack and must not be retained.
type TraceFunc func(offset int, in Instruction, stack []Value)

// VM executes a verified Program. A VM is immutable after construction and
// may run the same program any number of times, concurrently; each Run
// gets its own stack and frames.
type VM struct {
	program    *Program
	entries    map[int]FunctionInfo
	out        io.Writer
	trace      TraceFunc
	maxStack   int
	maxFrames  int
	skipVerify bool
}

// Option configures a VM.
type Option func(*VM)

// WithOutput sets where Print writes. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(vm *VM) { vm.out = w }
}

// WithTrace installs an instruction trace hook.
func WithTrace(fn TraceFunc) Option {
	return func(vm *VM) { vm.trace = fn }
}

// WithLimits bounds the operand stack depth and the call depth. Zero keeps
// the default.
func WithLimits(maxStack, maxFrames int) Option {
	return func(vm *VM) {
		if maxStack > 0 {
			vm.maxStack = maxStack
		}
		if maxFrames > 0 {
			vm.maxFrames = maxFrames
		}
	}
}

// WithoutVerify skips static verification. Malformed programs then fail at
// run time instead of construction time.
func WithoutVerify() Option {
	return func(vm *VM) { vm.skipVerify = true }
}

// New prepares p for execution.
func New(p *Program, opts ...Option) (*VM, error) {
	if p == nil {
		return nil, fmt.Errorf("vm: nil program")
	}
	vm := &VM{
		program:   p,
		entries:   make(map[int]FunctionInfo, len(p.Functions)),
		out:       os.Stdout,
		maxStack:  DefaultMaxStack,
		maxFrames: DefaultMaxFrames,
	}
	for _, opt := range opts {
		opt(vm)
	}
	if !vm.skipVerify {
		if err := Verify(p); err != nil {
			return nil, fmt.Errorf("vm: %w", err)
		}
	}
	for _, fn := range p.Functions {
		vm.entries[fn.Entry] = fn
	}
	return vm, nil
}

// Program returns the program the VM runs.
func (vm *VM) Program() *Program { return vm.program }

// Run executes the program from its start offset and returns the value the
// entry function returned (Nil when it falls off its end).
func (vm *VM) Run(ctx context.Context) (Value, error) {
	return newInterpreter(vm).run(ctx)
}

// Run is a convenience for New followed by Run.
func Run(ctx context.Context, p *Program, opts ...Option) (Value, error) {
	vm, err := New(p, opts...)
	if err != nil {
		return Nil, err
	}
	return vm.Run(ctx)
}
