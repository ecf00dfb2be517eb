package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// VM: the latino virtual machine
// ---------------------------------------------------------------------------

// DefaultMaxCallDepth bounds nested function invocations so runaway
// recursion is reported as a RuntimeError rather than exhausting the host
// stack.
const DefaultMaxCallDepth = 10000

// VM owns one operand stack and one context stack. A VM must be used by one
// goroutine at a time.
type VM struct {
	stack    []Value
	contexts *ContextStack
	frames   []frame

	interactive bool
	maxCalls    int
	trace       bool
	out         io.Writer
	log         commonlog.Logger
}

// Option configures a VM.
type Option func(*VM)

// WithOutput sends print output to w instead of stdout.
func WithOutput(w io.Writer) Option {
	return func(v *VM) { v.out = w }
}

// WithInteractive selects REPL mode, where calls share one context instead
// of pushing snapshots.
func WithInteractive(interactive bool) Option {
	return func(v *VM) { v.interactive = interactive }
}

// WithMaxContextDepth bounds the namespace stack. Values outside
// 1..DefaultMaxContextDepth fall back to the default.
func WithMaxContextDepth(n int) Option {
	return func(v *VM) {
		if n < 1 || n > DefaultMaxContextDepth {
			n = DefaultMaxContextDepth
		}
		v.contexts.max = n
	}
}

// WithMaxCallDepth bounds nested function invocations.
func WithMaxCallDepth(n int) Option {
	return func(v *VM) {
		if n > 0 {
			v.maxCalls = n
		}
	}
}

// WithTrace logs every executed instruction at debug level.
func WithTrace(trace bool) Option {
	return func(v *VM) { v.trace = trace }
}

// New creates a VM with the builtins bound in its global context.
func New(opts ...Option) *VM {
	v := &VM{
		stack:    make([]Value, 0, 64),
		contexts: NewContextStack(NewContext(), DefaultMaxContextDepth),
		maxCalls: DefaultMaxCallDepth,
		out:      os.Stdout,
		log:      commonlog.GetLogger("latino.vm"),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.registerBuiltins()
	return v
}

// Interactive reports whether the VM runs in REPL mode.
func (v *VM) Interactive() bool {
	return v.interactive
}

// SetInteractive switches between REPL and program mode.
func (v *VM) SetInteractive(interactive bool) {
	v.interactive = interactive
}

// Output returns the writer print builtins use.
func (v *VM) Output() io.Writer {
	return v.out
}

// SetOutput redirects print output.
func (v *VM) SetOutput(w io.Writer) {
	v.out = w
}

// Register binds a native function under name in the global context.
func (v *VM) Register(name string, fn NativeFunc) {
	v.contexts.Global().Set(Intern(name), &Native{Name: name, Fn: fn})
}

// Define binds name to val in the current context.
func (v *VM) Define(name string, val Value) {
	v.contexts.Current().Set(Intern(name), val)
}

// Lookup resolves name in the current context.
func (v *VM) Lookup(name string) (Value, bool) {
	s, ok := internTable.Lookup(name)
	if !ok {
		return nil, false
	}
	return v.contexts.Current().Get(s)
}

// Names returns the names bound in the current context.
func (v *VM) Names() []string {
	return v.contexts.Current().Names()
}

// ---------------------------------------------------------------------------
// Operand stack access for hosts and natives
// ---------------------------------------------------------------------------

// Push pushes val onto the operand stack.
func (v *VM) Push(val Value) {
	if val == nil {
		val = Null
	}
	v.stack = append(v.stack, val)
}

// Pop removes and returns the top of the operand stack.
func (v *VM) Pop() (Value, error) {
	if len(v.stack) <= v.floor() {
		return nil, newRuntimeError(StackUnderflow, "", "pop from empty operand stack")
	}
	return v.pop(), nil
}

// MustPop is Pop for native functions: an empty stack raises StackUnderflow,
// which aborts the running program. It must only be called while the VM is
// executing.
func (v *VM) MustPop() Value {
	return v.pop()
}

// Top returns the top of the operand stack without removing it.
func (v *VM) Top() (Value, bool) {
	if len(v.stack) == 0 {
		return nil, false
	}
	return v.stack[len(v.stack)-1], true
}

// StackDepth returns the number of values on the operand stack.
func (v *VM) StackDepth() int {
	return len(v.stack)
}

// ContextDepth returns the number of frames on the context stack.
func (v *VM) ContextDepth() int {
	return v.contexts.Depth()
}

// Print writes the top of the operand stack the way the print builtin
// does, leaving the stack unchanged.
func (v *VM) Print() error {
	top, ok := v.Top()
	if !ok {
		return newRuntimeError(StackUnderflow, "", "nothing to print")
	}
	_, err := fmt.Fprintln(v.out, Format(top))
	return err
}

// Reset clears the operand stack and drops every context frame above the
// global one.
func (v *VM) Reset() {
	v.truncateStack(0)
	v.contexts.truncate(1)
	v.frames = v.frames[:0]
}
