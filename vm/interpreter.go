package vm

import "fmt"

// ---------------------------------------------------------------------------
// Call frames
// ---------------------------------------------------------------------------

// frame is one active user-function invocation. base is the operand stack
// depth owned by the caller; the callee never pops below it and everything
// above it is discarded at return.
type frame struct {
	fn   *Function
	base int
}

func (v *VM) floor() int {
	if len(v.frames) == 0 {
		return 0
	}
	return v.frames[len(v.frames)-1].base
}

func (v *VM) pop() Value {
	if len(v.stack) <= v.floor() {
		panic(newRuntimeError(StackUnderflow, "", "pop from empty operand stack"))
	}
	n := len(v.stack) - 1
	val := v.stack[n]
	v.stack[n] = nil
	v.stack = v.stack[:n]
	return val
}

func (v *VM) truncateStack(depth int) {
	for i := depth; i < len(v.stack); i++ {
		v.stack[i] = nil
	}
	if depth < len(v.stack) {
		v.stack = v.stack[:depth]
	}
}

// ---------------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------------

// Run executes fn as a top-level unit. It returns the unit's result and
// whether it produced one. A runtime error or an exit request aborts the
// unit; the operand and context stacks are restored to their depths on
// entry, so the VM can run the next unit.
func (v *VM) Run(fn *Function) (result Value, ok bool, err error) {
	if fn == nil {
		return nil, false, fmt.Errorf("vm: run: nil function")
	}
	base := len(v.stack)
	defer v.recoverInto(base, v.contexts.Depth(), len(v.frames), &err)

	result, ok = v.invoke(fn, base)
	return result, ok, nil
}

// Call invokes callee with args the way call-function does and returns the
// value the call left on the stack.
func (v *VM) Call(callee Value, args ...Value) (result Value, err error) {
	base := len(v.stack)
	defer v.recoverInto(base, v.contexts.Depth(), len(v.frames), &err)

	for _, a := range args {
		v.Push(a)
	}
	v.callValue(callee, len(args))
	if len(v.stack) > base {
		result = v.pop()
	} else {
		result = Null
	}
	v.truncateStack(base)
	return result, nil
}

func (v *VM) recoverInto(stackDepth, contextDepth, frameDepth int, err *error) {
	r := recover()
	if r == nil {
		return
	}
	v.truncateStack(stackDepth)
	v.contexts.truncate(contextDepth)
	v.frames = v.frames[:frameDepth]
	switch e := r.(type) {
	case *RuntimeError:
		*err = e
	case *ExitError:
		*err = e
	default:
		panic(r)
	}
}

// ---------------------------------------------------------------------------
// Call protocol
// ---------------------------------------------------------------------------

// invoke runs fn with the caller owning the stack below base.
func (v *VM) invoke(fn *Function, base int) (Value, bool) {
	if len(v.frames) >= v.maxCalls {
		panic(newRuntimeError(HostLimit, fn.Name, "more than %d nested calls", v.maxCalls))
	}
	if !v.interactive {
		if err := v.contexts.PushClone(); err != nil {
			panic(err)
		}
	}
	v.frames = append(v.frames, frame{fn: fn, base: base})

	result, ok := v.execute(fn.Code)

	v.frames[len(v.frames)-1] = frame{}
	v.frames = v.frames[:len(v.frames)-1]
	if !v.interactive {
		if err := v.contexts.Pop(); err != nil {
			panic(err)
		}
	}
	return result, ok
}

// callValue invokes callee, already popped by the caller, with argc
// arguments on top of the stack.
func (v *VM) callValue(callee Value, argc int) {
	switch fn := callee.(type) {
	case *Function:
		base := len(v.stack) - argc
		if f := v.floor(); base < f {
			base = f
		}
		result, ok := v.invoke(fn, base)
		if !ok {
			result = Null
		}
		v.Push(result)
	case *Native:
		fn.Fn(v)
	default:
		panic(newRuntimeError(NotCallable, "", "%s value is not a function", kindOf(callee)))
	}
}

func kindOf(val Value) Kind {
	if val == nil {
		return KindNull
	}
	return val.Kind()
}

// ---------------------------------------------------------------------------
// Dispatch loop
// ---------------------------------------------------------------------------

func (v *VM) execute(code []Instruction) (Value, bool) {
	for pc := 0; pc < len(code); {
		ins := code[pc]
		if v.trace {
			v.log.Debugf("%s", DisassembleInstruction(pc, ins))
		}
		pc++

		switch ins.Op {
		case OpNOP:

		case OpLoadConst:
			v.Push(ins.A)

		case OpStoreName:
			name := nameOperand(ins)
			v.contexts.Current().Set(name, v.pop())

		case OpLoadName:
			name := nameOperand(ins)
			val, ok := v.contexts.Current().Get(name)
			if !ok {
				panic(newRuntimeError(NameError, name.s, "name %q is not defined", name.s))
			}
			v.Push(val)

		case OpLoadSelf:
			v.Push(v.frames[len(v.frames)-1].fn)

		case OpCompareEQ, OpCompareNE, OpCompareLT, OpCompareLE, OpCompareGT, OpCompareGE:
			b := v.pop()
			a := v.pop()
			v.Push(BoolValue(compare(ins.Op, a, b)))

		case OpBinaryAdd, OpBinarySub, OpBinaryMul, OpBinaryDiv, OpBinaryMod:
			panic(newRuntimeError(InvalidOperand, "", "%s is reserved and not implemented", ins.Op))

		case OpJump:
			pc = jumpTarget(ins, len(code))

		case OpJumpIfFalse:
			if !Truthy(v.pop()) {
				pc = jumpTarget(ins, len(code))
			}

		case OpJumpIfTrue:
			if Truthy(v.pop()) {
				pc = jumpTarget(ins, len(code))
			}

		case OpMakeFunction:
			fn := &Function{Params: ins.B, Code: ins.Body}
			if s, ok := ins.A.(*Str); ok {
				fn.Name = s.s
			}
			v.Push(fn)

		case OpCallFunction:
			callee := v.pop()
			v.callValue(callee, ins.B)

		case OpReturnValue:
			return v.unwind()

		default:
			panic(newRuntimeError(InvalidOperand, "", "unknown opcode 0x%02X", byte(ins.Op)))
		}
	}
	return v.unwind()
}

// unwind takes the current frame's result, if it left one, and discards
// everything the frame pushed.
func (v *VM) unwind() (Value, bool) {
	base := v.floor()
	if len(v.stack) <= base {
		return nil, false
	}
	result := v.stack[len(v.stack)-1]
	v.truncateStack(base)
	return result, true
}

func nameOperand(ins Instruction) *Str {
	name, ok := ins.A.(*Str)
	if !ok {
		panic(newRuntimeError(InvalidOperand, "", "%s needs a name operand", ins.Op))
	}
	if !name.interned {
		name = Intern(name.s)
	}
	return name
}

func jumpTarget(ins Instruction, n int) int {
	if ins.B < 0 || ins.B > n {
		panic(newRuntimeError(InvalidOperand, "", "%s target %d outside 0..%d", ins.Op, ins.B, n))
	}
	return ins.B
}

// compare evaluates a comparison opcode. Ordering is defined for integer
// pairs only; any other pairing compares false.
func compare(op Opcode, a, b Value) bool {
	switch op {
	case OpCompareEQ:
		return Equal(a, b)
	case OpCompareNE:
		return !Equal(a, b)
	}
	x, ok1 := a.(Int)
	y, ok2 := b.(Int)
	if !ok1 || !ok2 {
		return false
	}
	switch op {
	case OpCompareLT:
		return x < y
	case OpCompareLE:
		return x <= y
	case OpCompareGT:
		return x > y
	case OpCompareGE:
		return x >= y
	}
	return false
}
