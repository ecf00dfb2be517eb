package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode byte

// Stack and names
const (
	OpNOP       Opcode = 0x00 // no operation; unpatched placeholder
	OpLoadConst Opcode = 0x01 // push A
	OpStoreName Opcode = 0x02 // pop value, bind A in the current context
	OpLoadName  Opcode = 0x03 // push the binding of A
	OpLoadSelf  Opcode = 0x04 // push the currently executing function
)

// Functions
const (
	OpCallFunction Opcode = 0x10 // pop callee and call it; B = argument count
	OpMakeFunction Opcode = 0x11 // push a function over Body with B parameters
	OpReturnValue  Opcode = 0x12 // end the invocation; top of stack is the result
)

// Arithmetic (reserved, never emitted by the compiler)
const (
	OpBinaryAdd Opcode = 0x20
	OpBinarySub Opcode = 0x21
	OpBinaryMul Opcode = 0x22
	OpBinaryDiv Opcode = 0x23
	OpBinaryMod Opcode = 0x24
)

// Comparisons (only OpCompareEQ is emitted)
const (
	OpCompareEQ Opcode = 0x30
	OpCompareNE Opcode = 0x31
	OpCompareLT Opcode = 0x32
	OpCompareLE Opcode = 0x33
	OpCompareGT Opcode = 0x34
	OpCompareGE Opcode = 0x35
)

// Control flow; B is an absolute instruction index
const (
	OpJump        Opcode = 0x40
	OpJumpIfFalse Opcode = 0x41 // pop condition
	OpJumpIfTrue  Opcode = 0x42 // pop condition
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// Operand identifies which instruction slots an opcode reads.
type Operand uint8

const (
	OperandNone  Operand = iota
	OperandValue         // A
	OperandCount         // B as a count
	OperandJump          // B as a target index
	OperandBody          // Body and B
)

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name        string  // human-readable name
	Operand     Operand // slots consulted
	StackEffect int     // net effect on stack (-1 = variable)
}

// opcodeTable maps opcodes to their metadata.
var opcodeTable = map[Opcode]OpcodeInfo{
	OpNOP:       {"NOP", OperandNone, 0},
	OpLoadConst: {"LOAD_CONST", OperandValue, 1},
	OpStoreName: {"STORE_NAME", OperandValue, -1},
	OpLoadName:  {"LOAD_NAME", OperandValue, 1},
	OpLoadSelf:  {"LOAD_SELF", OperandNone, 1},

	OpCallFunction: {"CALL_FUNCTION", OperandCount, -1}, // variable
	OpMakeFunction: {"MAKE_FUNCTION", OperandBody, 1},
	OpReturnValue:  {"RETURN_VALUE", OperandNone, 0},

	OpBinaryAdd: {"BINARY_ADD", OperandNone, -1},
	OpBinarySub: {"BINARY_SUB", OperandNone, -1},
	OpBinaryMul: {"BINARY_MUL", OperandNone, -1},
	OpBinaryDiv: {"BINARY_DIV", OperandNone, -1},
	OpBinaryMod: {"BINARY_MOD", OperandNone, -1},

	OpCompareEQ: {"COMPARE_OP_EQ", OperandNone, -1},
	OpCompareNE: {"COMPARE_OP_NE", OperandNone, -1},
	OpCompareLT: {"COMPARE_OP_LT", OperandNone, -1},
	OpCompareLE: {"COMPARE_OP_LE", OperandNone, -1},
	OpCompareGT: {"COMPARE_OP_GT", OperandNone, -1},
	OpCompareGE: {"COMPARE_OP_GE", OperandNone, -1},

	OpJump:        {"JUMP", OperandJump, 0},
	OpJumpIfFalse: {"JUMP_IF_FALSE", OperandJump, -1},
	OpJumpIfTrue:  {"JUMP_IF_TRUE", OperandJump, -1},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// Valid reports whether op is a known opcode.
func (op Opcode) Valid() bool {
	_, ok := opcodeTable[op]
	return ok
}

// ---------------------------------------------------------------------------
// Instructions
// ---------------------------------------------------------------------------

// Instruction is one decoded bytecode instruction with three operand slots
// whose meaning depends on Op: a value (A), an integer (B: a count or an
// absolute jump target) and a nested function body (Body).
type Instruction struct {
	Op   Opcode
	A    Value
	B    int
	Body []Instruction
}

// Ins builds an instruction with no operands.
func Ins(op Opcode) Instruction {
	return Instruction{Op: op}
}

// ---------------------------------------------------------------------------
// Builder: growable instruction buffer
// ---------------------------------------------------------------------------

// DefaultMaxInstructions bounds a single function body.
const DefaultMaxInstructions = 1 << 16

// Builder appends instructions to one function body and patches forward
// jumps once their targets are known.
type Builder struct {
	code  []Instruction
	limit int
	err   error
}

// NewBuilder creates a builder limited to DefaultMaxInstructions.
func NewBuilder() *Builder {
	return NewBuilderLimit(DefaultMaxInstructions)
}

// NewBuilderLimit creates a builder holding at most limit instructions.
func NewBuilderLimit(limit int) *Builder {
	return &Builder{code: make([]Instruction, 0, 16), limit: limit}
}

// Len returns the index of the next free slot.
func (b *Builder) Len() int {
	return len(b.code)
}

// Err returns the overflow error, if any emit went past the limit.
func (b *Builder) Err() error {
	return b.err
}

// Code returns the built instructions.
func (b *Builder) Code() []Instruction {
	return b.code
}

// Emit appends ins and returns the next free index.
func (b *Builder) Emit(ins Instruction) int {
	if len(b.code) >= b.limit {
		if b.err == nil {
			b.err = fmt.Errorf("function body exceeds %d instructions", b.limit)
		}
		return len(b.code)
	}
	b.code = append(b.code, ins)
	return len(b.code)
}

// Reserve emits a NOP placeholder and returns its index for Patch.
func (b *Builder) Reserve() int {
	pos := len(b.code)
	b.Emit(Ins(OpNOP))
	return pos
}

// Patch replaces the placeholder at pos with a jump to target.
func (b *Builder) Patch(pos int, op Opcode, target int) {
	if pos < 0 || pos >= len(b.code) {
		return
	}
	b.code[pos] = Instruction{Op: op, B: target}
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// DisassembleInstruction formats the instruction at pos.
func DisassembleInstruction(pos int, ins Instruction) string {
	info := ins.Op.Info()
	switch info.Operand {
	case OperandValue:
		return fmt.Sprintf("%04d  %s %s", pos, info.Name, quoteOperand(ins.A))
	case OperandCount, OperandJump:
		return fmt.Sprintf("%04d  %s %d", pos, info.Name, ins.B)
	case OperandBody:
		return fmt.Sprintf("%04d  %s %s params=%d len=%d", pos, info.Name, quoteOperand(ins.A), ins.B, len(ins.Body))
	}
	return fmt.Sprintf("%04d  %s", pos, info.Name)
}

func quoteOperand(v Value) string {
	if s, ok := v.(*Str); ok {
		return strconv.Quote(s.s)
	}
	return Format(v)
}

// Disassemble returns a listing of code, followed by the listings of any
// nested function bodies.
func Disassemble(name string, code []Instruction) string {
	var b strings.Builder
	disassemble(&b, name, code)
	return strings.TrimRight(b.String(), "\n")
}

func disassemble(b *strings.Builder, name string, code []Instruction) {
	if name == "" {
		name = "<main>"
	}
	fmt.Fprintf(b, "== %s ==\n", name)
	var nested []Instruction
	for pos, ins := range code {
		b.WriteString(DisassembleInstruction(pos, ins))
		b.WriteByte('\n')
		if ins.Op == OpMakeFunction {
			nested = append(nested, ins)
		}
	}
	for _, ins := range nested {
		b.WriteByte('\n')
		label := "<anonymous>"
		if s, ok := ins.A.(*Str); ok {
			label = s.s
		}
		disassemble(b, label, ins.Body)
	}
}

// DisassembleFunction is Disassemble for a compiled function.
func DisassembleFunction(fn *Function) string {
	return Disassemble(fn.Name, fn.Code)
}
