package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/latino/vm"
)

// ---------------------------------------------------------------------------
// Codegen: Compile AST to bytecode
// ---------------------------------------------------------------------------

// CompileError is a failure to lower a node into bytecode.
type CompileError struct {
	Pos Position
	Msg string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("line %d:%d: %s", e.Pos.Line, e.Pos.Column, e.Msg)
}

// CompileErrors collects the failures of one compilation.
type CompileErrors []*CompileError

func (l CompileErrors) Error() string {
	msgs := make([]string, len(l))
	for i, e := range l {
		msgs[i] = e.Error()
	}
	return "compile errors: " + strings.Join(msgs, "; ")
}

// Compiler lowers an AST into a flat instruction sequence. Each function
// definition is compiled into its own builder, and conditionals are emitted
// in a single pass by reserving jump slots and patching them once the
// target is known.
type Compiler struct {
	builder *vm.Builder
	limit   int
	errors  CompileErrors
}

// NewCompiler creates a compiler with the default per-function instruction
// limit.
func NewCompiler() *Compiler {
	return &Compiler{limit: vm.DefaultMaxInstructions}
}

// SetLimit bounds the number of instructions any one function body may
// hold. Non-positive values restore the default.
func (c *Compiler) SetLimit(n int) {
	if n <= 0 {
		n = vm.DefaultMaxInstructions
	}
	c.limit = n
}

// Errors returns accumulated compilation errors as messages.
func (c *Compiler) Errors() []string {
	msgs := make([]string, len(c.errors))
	for i, e := range c.errors {
		msgs[i] = e.Error()
	}
	return msgs
}

// errorf records a compilation error at node.
func (c *Compiler) errorf(node Node, format string, args ...interface{}) {
	var pos Position
	if node != nil {
		pos = node.Span().Start
	}
	c.errors = append(c.errors, &CompileError{Pos: pos, Msg: fmt.Sprintf(format, args...)})
}

// Compile lowers a whole program. A nil root is the empty program and
// compiles to a lone return-value.
func (c *Compiler) Compile(root Node) (*vm.Function, error) {
	c.errors = nil
	c.builder = vm.NewBuilderLimit(c.limit)

	c.compileNode(root)
	c.builder.Emit(vm.Ins(vm.OpReturnValue))
	if err := c.builder.Err(); err != nil {
		c.errorf(root, "%v", err)
	}
	if len(c.errors) > 0 {
		return nil, c.errors
	}
	return &vm.Function{Code: c.builder.Code()}, nil
}

// compileNode emits the code for node into the current builder and returns
// the index of the next free instruction slot.
func (c *Compiler) compileNode(node Node) int {
	switch n := node.(type) {
	case nil:

	case *Block:
		// Right holds the earlier statements.
		c.compileNode(n.Right)
		c.compileNode(n.Left)

	case *Identifier:
		c.builder.Emit(vm.Instruction{Op: vm.OpLoadName, A: vm.Intern(n.Name)})

	case *IntegerLiteral:
		c.builder.Emit(vm.Instruction{Op: vm.OpLoadConst, A: vm.Int(n.Value)})

	case *StringLiteral:
		c.builder.Emit(vm.Instruction{Op: vm.OpLoadConst, A: vm.NewString(n.Value)})

	case *BoolLiteral:
		c.builder.Emit(vm.Instruction{Op: vm.OpLoadConst, A: vm.BoolValue(n.Value)})

	case *SelfRef:
		c.builder.Emit(vm.Ins(vm.OpLoadSelf))

	case *Assignment:
		c.compileNode(n.Value)
		c.builder.Emit(vm.Instruction{Op: vm.OpStoreName, A: vm.Intern(n.Target.Name)})

	case *Equality:
		c.compileNode(n.Left)
		c.compileNode(n.Right)
		c.builder.Emit(vm.Ins(vm.OpCompareEQ))

	case *If:
		c.compileIf(n)

	case *FunctionDef:
		c.compileFunctionDef(n)

	case *Return:
		c.compileNode(n.Expr)
		c.builder.Emit(vm.Ins(vm.OpReturnValue))

	case *FunctionCall:
		argc := c.compileArguments(n.Args)
		c.compileNode(n.Callee)
		c.builder.Emit(vm.Instruction{Op: vm.OpCallFunction, B: argc})

	case *ArgumentList:
		c.errorf(n, "argument list outside a call")

	case *ParameterList:
		c.errorf(n, "parameter list outside a function definition")

	default:
		c.errorf(node, "unsupported node %T", node)
	}
	return c.builder.Len()
}

// compileIf emits
//
//	cond; JUMP_IF_FALSE else; then; JUMP end; else:; else-body; end:
//
// with the jump slots reserved as NOPs and patched after the branch bodies
// are emitted. Without an else branch the trailing jump is omitted.
func (c *Compiler) compileIf(n *If) {
	c.compileNode(n.Cond)
	p0 := c.builder.Reserve()
	end := c.compileNode(n.Then)

	if n.Else == nil {
		c.builder.Patch(p0, vm.OpJumpIfFalse, end)
		return
	}
	p1 := c.builder.Reserve()
	end = c.compileNode(n.Else)
	c.builder.Patch(p0, vm.OpJumpIfFalse, p1+1)
	c.builder.Patch(p1, vm.OpJump, end)
}

// compileFunctionDef compiles the body into a fresh builder, then emits
// make-function followed by a store of the new function under its name.
func (c *Compiler) compileFunctionDef(n *FunctionDef) {
	outer := c.builder
	c.builder = vm.NewBuilderLimit(c.limit)

	nparams := c.compileParameters(n.Params)
	c.compileNode(n.Body)
	c.builder.Emit(vm.Ins(vm.OpReturnValue))
	if err := c.builder.Err(); err != nil {
		c.errorf(n, "function %s: %v", n.Name.Name, err)
	}
	body := c.builder.Code()

	c.builder = outer
	name := vm.Intern(n.Name.Name)
	c.builder.Emit(vm.Instruction{Op: vm.OpMakeFunction, A: name, B: nparams, Body: body})
	c.builder.Emit(vm.Instruction{Op: vm.OpStoreName, A: name})
}

// compileParameters stores each argument under its parameter name. The
// list head is the last declared parameter, which matches the top of the
// stack, so stores pop the arguments in reverse call order.
func (c *Compiler) compileParameters(params *ParameterList) int {
	n := 0
	for p := params; p != nil; p = p.Tail {
		if p.Head == nil {
			continue
		}
		c.builder.Emit(vm.Instruction{Op: vm.OpStoreName, A: vm.Intern(p.Head.Name)})
		n++
	}
	return n
}

// compileArguments pushes the arguments in call order and returns how many
// were pushed. A list's tail is either another list or the final argument.
func (c *Compiler) compileArguments(args *ArgumentList) int {
	if args == nil {
		return 0
	}
	n := 0
	if args.Head != nil {
		c.compileNode(args.Head)
		n++
	}
	switch tail := args.Tail.(type) {
	case nil:
	case *ArgumentList:
		n += c.compileArguments(tail)
	default:
		c.compileNode(tail)
		n++
	}
	return n
}

// ---------------------------------------------------------------------------
// Convenience functions
// ---------------------------------------------------------------------------

// Compile generates a top-level function from root with a fresh Compiler.
func Compile(root Node) (*vm.Function, error) {
	return NewCompiler().Compile(root)
}

// Analyze parses and compiles source into a top-level function.
func Analyze(source string) (*vm.Function, error) {
	root, err := Parse(source)
	if err != nil {
		return nil, err
	}
	return Compile(root)
}

// IsCompileError reports whether err came from code generation rather than
// parsing.
func IsCompileError(err error) bool {
	var list CompileErrors
	return errors.As(err, &list)
}
