package vm

import (
	"fmt"
	"io"
	"math"
	"os"

	"neutron/trace"
	"neutron/types"
)

const maxFrames = 256
const defaultReductions = 2000

// CallFrame is one activation record: the closure being executed, its
// program counter, and the base of its stack window.
type CallFrame struct {
	closure *types.Closure
	ip      int
	base    int
}

// tryHandler is one entry of the exception-handler stack pushed by
// OP_TRY: where to resume on a caught throw, and the stack depths to
// restore so unwinding never leaves the operand stack unbalanced.
type tryHandler struct {
	frameIndex int
	stackDepth int
	handlerIP  int
}

// VM is a single process's bytecode interpreter: operand stack, call
// frames, globals, open upvalues, and the exception-handler stack. A
// scheduler.Process embeds one VM per lightweight process.
type VM struct {
	stack        []types.Value
	frames       []*CallFrame
	globals      map[string]types.Value
	globalTypes  map[string]types.ValueType
	openUpvalues []*types.Upvalue
	handlers     []tryHandler

	// Reductions counts down within a single Step call; when it reaches
	// zero the VM yields back to the scheduler with StatusRunning so
	// cooperative preemption can happen between opcodes (spec.md §5).
	Reductions int

	Importer func(path string) (*types.Module, error)

	// Output is where OP_SAY writes; defaults to os.Stdout but tests and
	// embedders can redirect it to capture a program's say output.
	Output io.Writer
}

func New() *VM {
	return &VM{
		globals:     make(map[string]types.Value),
		globalTypes: make(map[string]types.ValueType),
		Reductions:  defaultReductions,
		Output:      os.Stdout,
	}
}

func (vm *VM) push(v types.Value) { vm.stack = append(vm.stack, v) }
func (vm *VM) pop() types.Value {
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v
}
func (vm *VM) peek(distance int) types.Value { return vm.stack[len(vm.stack)-1-distance] }

func (vm *VM) currentFrame() *CallFrame { return vm.frames[len(vm.frames)-1] }

// Call pushes a new call frame for fn (any callable value) with argCount
// arguments already on the stack, per spec.md §4.2's call dispatch rules
// for Function/Closure/NativeFn/Class/BoundMethod.
func (vm *VM) call(callee types.Value, argCount int, line int) error {
	switch fn := callee.(type) {
	case *types.Closure:
		if fn.Fn.Arity != argCount {
			return types.NewRuntimeError(types.ErrArity, line, "expected %d arguments but got %d", fn.Fn.Arity, argCount)
		}
		if len(vm.frames) >= maxFrames {
			return types.NewRuntimeError(types.ErrScheduler, line, "stack overflow")
		}
		base := len(vm.stack) - argCount - 1
		if trace.IsEnabled() {
			trace.Call(fn.Fn.Name, append([]types.Value(nil), vm.stack[base+1:]...), line)
		}
		vm.frames = append(vm.frames, &CallFrame{closure: fn, base: base})
		return nil
	case *types.NativeFn:
		args := append([]types.Value(nil), vm.stack[len(vm.stack)-argCount:]...)
		vm.stack = vm.stack[:len(vm.stack)-argCount-1]
		if trace.IsEnabled() {
			trace.Call(fn.Name, args, line)
		}
		result, err := fn.Fn(vm, args)
		if err != nil {
			if _, blocked := err.(*types.BlockSignal); blocked {
				// Restore the operand stack to its pre-call shape so the
				// OP_CALL that triggered this retries the call verbatim
				// once the scheduler resumes this process.
				vm.push(callee)
				vm.stack = append(vm.stack, args...)
			}
			return err
		}
		if trace.IsEnabled() {
			trace.Return(fn.Name, result)
		}
		vm.push(result)
		return nil
	case *types.BoundMethod:
		vm.stack[len(vm.stack)-argCount-1] = fn.Receiver
		return vm.call(fn.Method, argCount, line)
	case *types.Class:
		inst := types.NewInstance(fn)
		vm.stack[len(vm.stack)-argCount-1] = inst
		if init, ok := fn.FindMethod("init"); ok {
			return vm.call(&types.BoundMethod{Receiver: inst, Method: init}, argCount, line)
		}
		if argCount != 0 {
			return types.NewRuntimeError(types.ErrArity, line, "expected 0 arguments but got %d", argCount)
		}
		return nil
	default:
		return types.NewRuntimeError(types.ErrType, line, "%s is not callable", callee.Type())
	}
}

// CallValue re-enters the VM to invoke any callable (Closure/NativeFn/
// BoundMethod/Class) with args already materialized as Values, running it
// to completion before returning. This is the re-entrant call path
// builtins.Registry.CallClosure is wired to, letting arrays.map/filter/
// reduce invoke script-level callables from native code.
func (vm *VM) CallValue(callee types.Value, args []types.Value) (types.Value, error) {
	frameCountBefore := len(vm.frames)
	vm.push(callee)
	for _, a := range args {
		vm.push(a)
	}
	if err := vm.call(callee, len(args), 0); err != nil {
		return nil, err
	}
	if len(vm.frames) == frameCountBefore {
		return vm.pop(), nil
	}
	return vm.runFrames()
}

// Prime sets up the initial call for a freshly spawned process: it pushes
// callee+args and runs the call dispatch, exactly as Run does, but stops
// short of executing any opcodes — the scheduler's Step drives execution
// from here, one reduction-budget slice at a time. If callee resolves
// synchronously (a NativeFn, or a Class with no init), the call has
// already completed; Prime reports that via done=true with the result
// ready immediately, so the scheduler can mark the process Finished
// without ever stepping its (empty) frame stack.
func (vm *VM) Prime(callee types.Value, args []types.Value) (done bool, result types.Value, err error) {
	frameCountBefore := len(vm.frames)
	vm.push(callee)
	for _, a := range args {
		vm.push(a)
	}
	if err := vm.call(callee, len(args), 0); err != nil {
		return true, nil, err
	}
	if len(vm.frames) == frameCountBefore {
		return true, vm.pop(), nil
	}
	return false, nil, nil
}

// PrepareEntry installs closure as the VM's top-level frame without
// executing any opcodes, for callers (the checkpoint driver) that step
// the VM in slices themselves rather than through Run or a scheduler.
func (vm *VM) PrepareEntry(closure *types.Closure) error {
	vm.push(closure)
	return vm.call(closure, 0, 0)
}

// Run executes fn to completion (or until an uncaught error), returning
// the top-level return value. Used for one-shot script evaluation; the
// scheduler instead drives step-wise execution via Step for preemption.
func (vm *VM) Run(fn *types.Function) (types.Value, error) {
	closure := types.NewClosure(fn)
	vm.push(closure)
	if err := vm.call(closure, 0, 0); err != nil {
		return nil, err
	}
	return vm.runFrames()
}

func (vm *VM) runFrames() (types.Value, error) {
	baseFrameCount := len(vm.frames) - 1
	for len(vm.frames) > baseFrameCount {
		result, done, err := vm.step()
		if err != nil {
			if blk, blocked := err.(*types.BlockSignal); blocked {
				// Run/CallValue are the unmanaged, synchronous entry
				// points: there is no scheduler to park this process on,
				// so a blocking call here is a misuse error instead.
				_ = blk
				return nil, types.NewRuntimeError(types.ErrScheduler, 0, "receive/sleep require a scheduler-managed process")
			}
			if handled := vm.handleError(err); handled {
				continue
			}
			return nil, err
		}
		if done {
			return result, nil
		}
	}
	// Frames are back to the caller's depth: the innermost OP_RETURN left
	// the result on the operand stack for us (re-entrant CallValue path).
	return vm.pop(), nil
}

// Step executes opcodes until either the reduction budget is exhausted,
// the process finishes, or it blocks. This is the entry point the
// scheduler calls once per scheduling slice.
func (vm *VM) Step(budget int) types.ExecResult {
	vm.Reductions = budget
	for vm.Reductions > 0 {
		if len(vm.frames) == 0 {
			return types.ExecResult{Status: types.StatusDone, ReturnValue: types.NilValue}
		}
		result, done, err := vm.step()
		if err != nil {
			if blk, blocked := err.(*types.BlockSignal); blocked {
				return types.ExecResult{Status: blk.Status, ReceiveTimeoutMs: blk.ReceiveTimeoutMs}
			}
			if vm.handleError(err) {
				continue
			}
			return types.ExecResult{Status: types.StatusKilled, Err: err}
		}
		if done {
			return types.ExecResult{Status: types.StatusDone, ReturnValue: result}
		}
		vm.Reductions--
	}
	return types.ExecResult{Status: types.StatusRunning}
}

// step decodes and executes a single instruction. done is true when the
// outermost frame has just returned.
func (vm *VM) step() (types.Value, bool, error) {
	frame := vm.currentFrame()
	chunk := frame.closure.Fn.Chunk
	line := 0
	if frame.ip < len(chunk.Lines) {
		line = chunk.Lines[frame.ip]
	}
	op := types.OpCode(vm.readByte())

	switch op {
	case types.OP_CONSTANT:
		vm.push(chunk.Constants[vm.readByte()])
	case types.OP_CONSTANT_LONG:
		vm.push(chunk.Constants[vm.readShort()])
	case types.OP_NIL:
		vm.push(types.NilValue)
	case types.OP_TRUE:
		vm.push(types.Bool(true))
	case types.OP_FALSE:
		vm.push(types.Bool(false))
	case types.OP_POP:
		vm.pop()
	case types.OP_DUP:
		vm.push(vm.peek(0))
	case types.OP_GET_LOCAL:
		slot := vm.readByte()
		vm.push(vm.stack[frame.base+int(slot)])
	case types.OP_SET_LOCAL:
		slot := vm.readByte()
		vm.stack[frame.base+int(slot)] = vm.peek(0)
	case types.OP_SET_LOCAL_TYPED:
		slot := vm.readByte()
		tagName := chunk.Constants[vm.readByte()].(*types.ObjString).String()
		val := vm.peek(0)
		if tag, ok := types.TypeTagFromName(tagName); ok && !types.MatchesTag(tag, val) {
			return nil, false, types.NewRuntimeError(types.ErrType, line, "local must remain of type %s, got %s", tagName, val.Type())
		}
		vm.stack[frame.base+int(slot)] = val
	case types.OP_GET_GLOBAL:
		name := chunk.Constants[vm.readByte()].(*types.ObjString).String()
		v, ok := vm.globals[name]
		if !ok {
			return nil, false, types.NewRuntimeError(types.ErrUndefinedName, line, "undefined name %q", name)
		}
		vm.push(v)
	case types.OP_DEFINE_GLOBAL:
		name := chunk.Constants[vm.readByte()].(*types.ObjString).String()
		vm.globals[name] = vm.pop()
	case types.OP_DEFINE_TYPED_GLOBAL:
		name := chunk.Constants[vm.readByte()].(*types.ObjString).String()
		tagName := chunk.Constants[vm.readByte()].(*types.ObjString).String()
		val := vm.pop()
		if tag, ok := types.TypeTagFromName(tagName); ok && !types.MatchesTag(tag, val) {
			return nil, false, types.NewRuntimeError(types.ErrType, line, "%s must be of type %s, got %s", name, tagName, val.Type())
		}
		vm.globals[name] = val
		vm.globalTypes[name] = val.Type()
	case types.OP_SET_GLOBAL:
		name := chunk.Constants[vm.readByte()].(*types.ObjString).String()
		if _, ok := vm.globals[name]; !ok {
			return nil, false, types.NewRuntimeError(types.ErrUndefinedName, line, "undefined name %q", name)
		}
		if tag, ok := vm.globalTypes[name]; ok && !types.MatchesTag(tag, vm.peek(0)) {
			return nil, false, types.NewRuntimeError(types.ErrType, line, "%s must remain of type %s", name, tag)
		}
		vm.globals[name] = vm.peek(0)
	case types.OP_SET_GLOBAL_TYPED:
		name := chunk.Constants[vm.readByte()].(*types.ObjString).String()
		tagName := chunk.Constants[vm.readByte()].(*types.ObjString).String()
		if _, ok := vm.globals[name]; !ok {
			return nil, false, types.NewRuntimeError(types.ErrUndefinedName, line, "undefined name %q", name)
		}
		val := vm.peek(0)
		if tag, ok := types.TypeTagFromName(tagName); ok && !types.MatchesTag(tag, val) {
			return nil, false, types.NewRuntimeError(types.ErrType, line, "%s must remain of type %s, got %s", name, tagName, val.Type())
		}
		vm.globals[name] = val
		vm.globalTypes[name] = val.Type()
	case types.OP_GET_UPVALUE:
		idx := vm.readByte()
		vm.push(frame.closure.Upvalues[idx].Get())
	case types.OP_SET_UPVALUE:
		idx := vm.readByte()
		frame.closure.Upvalues[idx].Set(vm.peek(0))
	case types.OP_CLOSE_UPVALUE:
		vm.closeUpvalues(len(vm.stack) - 1)
		vm.pop()
	case types.OP_GET_PROPERTY:
		name := chunk.Constants[vm.readByte()].(*types.ObjString).String()
		if err := vm.getProperty(name, line); err != nil {
			return nil, false, err
		}
	case types.OP_SET_PROPERTY:
		name := chunk.Constants[vm.readByte()].(*types.ObjString).String()
		if err := vm.setProperty(name, line); err != nil {
			return nil, false, err
		}
	case types.OP_EQUAL:
		b, a := vm.pop(), vm.pop()
		vm.push(types.Bool(a.Equal(b)))
	case types.OP_NOT_EQUAL:
		b, a := vm.pop(), vm.pop()
		vm.push(types.Bool(!a.Equal(b)))
	case types.OP_GREATER, types.OP_GREATER_EQUAL, types.OP_LESS, types.OP_LESS_EQUAL:
		if err := vm.compare(op, line); err != nil {
			return nil, false, err
		}
	case types.OP_ADD:
		if err := vm.add(line); err != nil {
			return nil, false, err
		}
	case types.OP_SUBTRACT, types.OP_MULTIPLY, types.OP_DIVIDE, types.OP_MODULO:
		if err := vm.arithmetic(op, line); err != nil {
			return nil, false, err
		}
	case types.OP_BITWISE_AND, types.OP_BITWISE_OR, types.OP_BITWISE_XOR, types.OP_LEFT_SHIFT, types.OP_RIGHT_SHIFT:
		if err := vm.bitwise(op, line); err != nil {
			return nil, false, err
		}
	case types.OP_BITWISE_NOT:
		n, ok := vm.pop().(types.Number)
		if !ok {
			return nil, false, types.NewRuntimeError(types.ErrType, line, "bitwise operators require numbers")
		}
		vm.push(types.NewNumber(float64(^int64(n))))
	case types.OP_NOT:
		vm.push(types.Bool(!vm.pop().Truthy()))
	case types.OP_NEGATE:
		n, ok := vm.pop().(types.Number)
		if !ok {
			return nil, false, types.NewRuntimeError(types.ErrType, line, "operand must be a number")
		}
		vm.push(types.NewNumber(-float64(n)))
	case types.OP_SAY:
		fmt.Fprintln(vm.Output, vm.pop().String())
	case types.OP_JUMP:
		offset := vm.readShort()
		frame.ip += int(offset)
	case types.OP_JUMP_IF_FALSE:
		offset := vm.readShort()
		if !vm.peek(0).Truthy() {
			frame.ip += int(offset)
		}
	case types.OP_LOOP:
		offset := vm.readShort()
		frame.ip -= int(offset)
	case types.OP_CALL:
		argCount := int(vm.readByte())
		callee := vm.peek(argCount)
		if err := vm.call(callee, argCount, line); err != nil {
			if _, blocked := err.(*types.BlockSignal); blocked {
				// Rewind past this instruction's opcode + operand byte so
				// the scheduler's next Step re-executes the same call.
				frame.ip -= 2
			}
			return nil, false, err
		}
		// Calls cost extra reductions proportional to their argument
		// count, on top of the one every opcode charges (spec.md §4.3).
		vm.Reductions -= 1 + argCount
	case types.OP_CLOSURE:
		if err := vm.makeClosure(chunk); err != nil {
			return nil, false, err
		}
	case types.OP_ARRAY:
		n := int(vm.readByte())
		elems := append([]types.Value(nil), vm.stack[len(vm.stack)-n:]...)
		vm.stack = vm.stack[:len(vm.stack)-n]
		vm.push(types.NewArray(elems))
	case types.OP_OBJECT:
		n := int(vm.readByte())
		m := types.NewEmptyMap()
		entries := vm.stack[len(vm.stack)-2*n:]
		for i := 0; i < n; i++ {
			key := entries[2*i].(*types.ObjString).String()
			m.Set(key, entries[2*i+1])
		}
		vm.stack = vm.stack[:len(vm.stack)-2*n]
		vm.push(m)
	case types.OP_INDEX_GET:
		if err := vm.indexGet(line); err != nil {
			return nil, false, err
		}
	case types.OP_INDEX_SET:
		if err := vm.indexSet(line); err != nil {
			return nil, false, err
		}
	case types.OP_THIS:
		vm.push(vm.stack[frame.base])
	case types.OP_TRY:
		offset := vm.readShort()
		vm.handlers = append(vm.handlers, tryHandler{
			frameIndex: len(vm.frames) - 1,
			stackDepth: len(vm.stack),
			handlerIP:  frame.ip + int(offset),
		})
	case types.OP_END_TRY:
		if len(vm.handlers) > 0 {
			vm.handlers = vm.handlers[:len(vm.handlers)-1]
		}
	case types.OP_THROW:
		val := vm.pop()
		return nil, false, &types.RuntimeError{Kind: types.ErrUncaught, Message: val.String(), Line: line, Payload: val}
	case types.OP_IMPORT:
		name := chunk.Constants[vm.readByte()].(*types.ObjString).String()
		mod, err := vm.importModule(name)
		if err != nil {
			return nil, false, err
		}
		vm.push(mod)
	case types.OP_CLASS:
		name := chunk.Constants[vm.readByte()].(*types.ObjString).String()
		vm.push(types.NewClass(name))
	case types.OP_METHOD:
		name := chunk.Constants[vm.readByte()].(*types.ObjString).String()
		method := vm.pop().(*types.Closure)
		class := vm.peek(0).(*types.Class)
		class.Methods[name] = method
	case types.OP_VALIDATE_SAFE:
		// The flag operand distinguishes file-level from block-level safe
		// regions. Validation itself happens at the typed-assignment
		// opcodes; this marker exists so disassembly shows the boundary.
		vm.readByte()
	case types.OP_RETURN:
		result := vm.pop()
		if trace.IsEnabled() {
			trace.Return(frame.closure.Fn.Name, result)
		}
		vm.closeUpvalues(frame.base)
		vm.stack = vm.stack[:frame.base]
		vm.frames = vm.frames[:len(vm.frames)-1]
		if len(vm.frames) == 0 {
			vm.push(result)
			return result, true, nil
		}
		vm.push(result)
	default:
		return nil, false, types.NewRuntimeError(types.ErrType, line, "unknown opcode %v", op)
	}
	return nil, false, nil
}

func (vm *VM) readByte() byte {
	frame := vm.currentFrame()
	b := frame.closure.Fn.Chunk.Code[frame.ip]
	frame.ip++
	return b
}

func (vm *VM) readShort() uint16 {
	frame := vm.currentFrame()
	v := frame.closure.Fn.Chunk.ReadShort(frame.ip)
	frame.ip += 2
	return v
}

func (vm *VM) makeClosure(chunk *types.Chunk) error {
	fnIdx := vm.readByte()
	fn := chunk.Constants[fnIdx].(*types.Function)
	closure := types.NewClosure(fn)
	for i := range fn.UpvalueInfo {
		isLocal := vm.readByte() == 1
		index := vm.readByte()
		if isLocal {
			frame := vm.currentFrame()
			closure.Upvalues[i] = vm.captureUpvalue(frame.base + int(index))
		} else {
			closure.Upvalues[i] = vm.currentFrame().closure.Upvalues[index]
		}
	}
	vm.push(closure)
	return nil
}

// captureUpvalue returns an existing open upvalue for the given stack
// slot, or creates one. Slots are indices into vm.stack (not pointers)
// so that stack growth reallocating the backing array never strands a
// capture.
func (vm *VM) captureUpvalue(slot int) *types.Upvalue {
	for _, uv := range vm.openUpvalues {
		if uv.Open && uv.Slot == slot {
			return uv
		}
	}
	created := types.NewOpenUpvalue(&vm.stack, slot)
	vm.openUpvalues = append(vm.openUpvalues, created)
	return created
}

func (vm *VM) closeUpvalues(fromSlot int) {
	kept := vm.openUpvalues[:0]
	for _, uv := range vm.openUpvalues {
		if uv.Open && uv.Slot >= fromSlot {
			uv.Close()
			continue
		}
		kept = append(kept, uv)
	}
	vm.openUpvalues = kept
}

// handleError unwinds to the nearest active try handler, if any, pushing
// the thrown value's script representation and resuming execution there.
// Returns false when no handler exists, so the caller should propagate.
func (vm *VM) handleError(err error) bool {
	if len(vm.handlers) == 0 {
		return false
	}
	h := vm.handlers[len(vm.handlers)-1]
	vm.handlers = vm.handlers[:len(vm.handlers)-1]

	// Close upvalues into the stack region the unwind is about to
	// discard, exactly as OP_RETURN would have.
	vm.closeUpvalues(h.stackDepth)
	vm.frames = vm.frames[:h.frameIndex+1]
	vm.stack = vm.stack[:h.stackDepth]

	var val types.Value
	if re, ok := err.(*types.RuntimeError); ok {
		val = re.AsValue()
		if trace.IsEnabled() {
			trace.Exception(vm.currentFrame().closure.Fn.Name, re)
		}
	} else {
		val = types.NewString(err.Error())
	}
	vm.push(val)
	vm.currentFrame().ip = h.handlerIP
	return true
}

func (vm *VM) importModule(name string) (types.Value, error) {
	if vm.Importer == nil {
		return nil, types.NewRuntimeError(types.ErrImport, 0, "no module loader configured")
	}
	mod, err := vm.Importer(name)
	if err != nil {
		return nil, types.NewRuntimeError(types.ErrImport, 0, "%s", err.Error())
	}
	return mod, nil
}

func (vm *VM) add(line int) error {
	b, a := vm.pop(), vm.pop()
	if an, ok := a.(types.Number); ok {
		if bn, ok := b.(types.Number); ok {
			vm.push(types.NewNumber(float64(an) + float64(bn)))
			return nil
		}
	}
	_, aIsStr := a.(*types.ObjString)
	_, bIsStr := b.(*types.ObjString)
	if aIsStr || bIsStr {
		// Either operand being a string concatenates; the other operand is
		// stringified (spec.md §4.2).
		vm.push(types.NewString(a.String() + b.String()))
		return nil
	}
	if aa, ok := a.(*types.ObjArray); ok {
		if ba, ok := b.(*types.ObjArray); ok {
			combined := append(append([]types.Value(nil), aa.Elems...), ba.Elems...)
			vm.push(types.NewArray(combined))
			return nil
		}
	}
	return types.NewRuntimeError(types.ErrType, line, "cannot add %s and %s", a.Type(), b.Type())
}

func (vm *VM) arithmetic(op types.OpCode, line int) error {
	b, a := vm.pop(), vm.pop()
	an, aok := a.(types.Number)
	bn, bok := b.(types.Number)
	if !aok || !bok {
		return types.NewRuntimeError(types.ErrType, line, "operands must be numbers")
	}
	af, bf := float64(an), float64(bn)
	switch op {
	case types.OP_SUBTRACT:
		vm.push(types.NewNumber(af - bf))
	case types.OP_MULTIPLY:
		vm.push(types.NewNumber(af * bf))
	case types.OP_DIVIDE:
		if bf == 0 {
			if af == 0 {
				// 0/0 is the indeterminate form: NaN, which compares
				// unequal to itself, not a raised error.
				vm.push(types.NewNumber(math.NaN()))
				return nil
			}
			return types.NewRuntimeError(types.ErrDivByZero, line, "division by zero")
		}
		vm.push(types.NewNumber(af / bf))
	case types.OP_MODULO:
		if bf == 0 {
			if af == 0 {
				vm.push(types.NewNumber(math.NaN()))
				return nil
			}
			return types.NewRuntimeError(types.ErrDivByZero, line, "modulo by zero")
		}
		// result takes the sign of the dividend, matching math.Mod (C fmod semantics)
		vm.push(types.NewNumber(math.Mod(af, bf)))
	}
	return nil
}

func (vm *VM) bitwise(op types.OpCode, line int) error {
	b, a := vm.pop(), vm.pop()
	an, aok := a.(types.Number)
	bn, bok := b.(types.Number)
	if !aok || !bok {
		return types.NewRuntimeError(types.ErrType, line, "bitwise operators require numbers")
	}
	ai, bi := int64(an), int64(bn)
	switch op {
	case types.OP_BITWISE_AND:
		vm.push(types.NewNumber(float64(ai & bi)))
	case types.OP_BITWISE_OR:
		vm.push(types.NewNumber(float64(ai | bi)))
	case types.OP_BITWISE_XOR:
		vm.push(types.NewNumber(float64(ai ^ bi)))
	case types.OP_LEFT_SHIFT:
		vm.push(types.NewNumber(float64(ai << uint64(bi))))
	case types.OP_RIGHT_SHIFT:
		vm.push(types.NewNumber(float64(ai >> uint64(bi))))
	}
	return nil
}

func (vm *VM) compare(op types.OpCode, line int) error {
	b, a := vm.pop(), vm.pop()
	if an, ok := a.(types.Number); ok {
		bn, ok := b.(types.Number)
		if !ok {
			return types.NewRuntimeError(types.ErrType, line, "cannot compare number and %s", b.Type())
		}
		vm.push(types.Bool(numCompare(op, float64(an), float64(bn))))
		return nil
	}
	if as, ok := a.(*types.ObjString); ok {
		bs, ok := b.(*types.ObjString)
		if !ok {
			return types.NewRuntimeError(types.ErrType, line, "cannot compare string and %s", b.Type())
		}
		vm.push(types.Bool(strCompare(op, as.String(), bs.String())))
		return nil
	}
	return types.NewRuntimeError(types.ErrType, line, "%s is not comparable", a.Type())
}

func numCompare(op types.OpCode, a, b float64) bool {
	switch op {
	case types.OP_GREATER:
		return a > b
	case types.OP_GREATER_EQUAL:
		return a >= b
	case types.OP_LESS:
		return a < b
	case types.OP_LESS_EQUAL:
		return a <= b
	}
	return false
}

func strCompare(op types.OpCode, a, b string) bool {
	switch op {
	case types.OP_GREATER:
		return a > b
	case types.OP_GREATER_EQUAL:
		return a >= b
	case types.OP_LESS:
		return a < b
	case types.OP_LESS_EQUAL:
		return a <= b
	}
	return false
}

// FrameSnapshot is the checkpoint-visible projection of a CallFrame: the
// closure executing, its program counter, and its stack base. Used by
// the checkpoint package to serialize/restore a process's call stack
// without reaching into vm's unexported CallFrame type.
type FrameSnapshot struct {
	Closure *types.Closure
	IP      int
	Base    int
}

// Snapshot exposes the VM's full execution state for checkpointing:
// globals, operand stack, and call frames, read straight off the live
// in-memory object graph rather than through an intermediate DTO.
func (vm *VM) Snapshot() (globals map[string]types.Value, stack []types.Value, frames []FrameSnapshot) {
	globals = vm.globals
	stack = append([]types.Value(nil), vm.stack...)
	frames = make([]FrameSnapshot, len(vm.frames))
	for i, f := range vm.frames {
		frames[i] = FrameSnapshot{Closure: f.closure, IP: f.ip, Base: f.base}
	}
	return globals, stack, frames
}

// Restore replaces the VM's globals, operand stack, and call frames with
// checkpointed state, the counterpart of Snapshot used by a checkpoint
// load.
func (vm *VM) Restore(globals map[string]types.Value, stack []types.Value, frames []FrameSnapshot) {
	vm.globals = globals
	vm.stack = append([]types.Value(nil), stack...)
	vm.frames = make([]*CallFrame, len(frames))
	for i, f := range frames {
		vm.frames[i] = &CallFrame{closure: f.Closure, ip: f.IP, base: f.Base}
	}
}

// DefineGlobal installs a native binding before execution begins; the
// scheduler uses it to bind its process natives (spawn, send, receive, ...).
func (vm *VM) DefineGlobal(name string, v types.Value) {
	vm.globals[name] = v
}

func (vm *VM) Globals() map[string]types.Value { return vm.globals }
