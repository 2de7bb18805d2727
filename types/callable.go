package types

import "fmt"

// UpvalueInfo records, at compile time, where a closure's Nth upvalue comes
// from: a local slot in the immediately enclosing function's frame, or an
// upvalue already captured by that enclosing function. Mirrors the
// Lua/clox-style upvalue-capture scheme referenced in spec.md §4.1.
type UpvalueInfo struct {
	IsLocal bool
	Index   int
}

// Function is a compiled, not-yet-closed-over function body: its chunk,
// arity, and the upvalue layout a closure created from it must capture.
type Function struct {
	Name        string
	Arity       int
	Chunk       *Chunk
	UpvalueInfo []UpvalueInfo
	IsMethod    bool
	// File is the source-file name this function was compiled from, used
	// only for uncaught-exception diagnostics (spec.md §7's
	// "<file>:<line>: <Kind>: <message>" format); "<script>" for the
	// top-level entry point of an unnamed source.
	File string
}

func NewFunction(name string, arity int) *Function {
	return &Function{Name: name, Arity: arity, Chunk: NewChunk()}
}

func (f *Function) Type() ValueType { return TFunction }
func (f *Function) String() string {
	if f.Name == "" {
		return "<function>"
	}
	return fmt.Sprintf("<function %s>", f.Name)
}
func (f *Function) Truthy() bool { return true }
func (f *Function) Equal(v Value) bool {
	o, ok := v.(*Function)
	return ok && o == f
}

// Upvalue is a runtime reference to a captured variable. While Open, Slot
// indexes into the owning VM's operand stack (held by pointer-to-slice so
// stack growth never invalidates the reference); Close() snapshots the
// value into Closed and future reads/writes use that instead, per
// spec.md §4.1's open/closed upvalue lifecycle.
type Upvalue struct {
	Stack  *[]Value
	Slot   int
	Closed Value
	Open   bool
}

func NewOpenUpvalue(stack *[]Value, slot int) *Upvalue {
	return &Upvalue{Stack: stack, Slot: slot, Open: true}
}

func (u *Upvalue) Get() Value {
	if u.Open {
		return (*u.Stack)[u.Slot]
	}
	return u.Closed
}

func (u *Upvalue) Set(v Value) {
	if u.Open {
		(*u.Stack)[u.Slot] = v
		return
	}
	u.Closed = v
}

// Close detaches the upvalue from the stack slot, snapshotting its current
// value so it survives the owning frame's return.
func (u *Upvalue) Close() {
	if !u.Open {
		return
	}
	u.Closed = (*u.Stack)[u.Slot]
	u.Open = false
	u.Stack = nil
}

// Closure pairs a Function with the upvalues captured at closure-creation
// time (OP_CLOSURE). Closures are first-class, callable values.
type Closure struct {
	Fn       *Function
	Upvalues []*Upvalue
}

func NewClosure(fn *Function) *Closure {
	return &Closure{Fn: fn, Upvalues: make([]*Upvalue, len(fn.UpvalueInfo))}
}

func (c *Closure) Type() ValueType { return TClosure }
func (c *Closure) String() string {
	if c.Fn.Name == "" {
		return "<closure>"
	}
	return fmt.Sprintf("<closure %s>", c.Fn.Name)
}
func (c *Closure) Truthy() bool { return true }
func (c *Closure) Equal(v Value) bool {
	o, ok := v.(*Closure)
	return ok && o == c
}

// CapturesMutableState reports whether this closure holds any open or
// closed upvalue whose value is a mutable heap object (array, map,
// instance) or another closure. Used by the scheduler to reject sending
// closures that alias mutable state across process boundaries
// (SendNotAllowed, spec.md §4.3).
func (c *Closure) CapturesMutableState() bool {
	for _, uv := range c.Upvalues {
		if uv == nil {
			continue
		}
		switch uv.Get().(type) {
		case *ObjArray, *ObjMap, *Instance, *Closure:
			return true
		}
	}
	return false
}

// NativeFn is a host function exposed to script code: (vm, args) -> (Value, error).
// The vm parameter is an any to avoid an import cycle between types and vm;
// call sites type-assert it back to *vm.VM, matching the (vm, argCount,
// args[]) native ABI of spec.md §6.
type NativeFn struct {
	Name  string
	Arity int // -1 means variadic
	Fn    func(vm any, args []Value) (Value, error)
}

func (n *NativeFn) Type() ValueType { return TNativeFn }
func (n *NativeFn) String() string  { return fmt.Sprintf("<native %s>", n.Name) }
func (n *NativeFn) Truthy() bool    { return true }
func (n *NativeFn) Equal(v Value) bool {
	o, ok := v.(*NativeFn)
	return ok && o == n
}

// Class is a class value: its name and its method table (name -> Closure). Instances are created by calling the class.
type Class struct {
	Name    string
	Methods map[string]*Closure
}

func NewClass(name string) *Class {
	return &Class{Name: name, Methods: make(map[string]*Closure)}
}

func (c *Class) Type() ValueType { return TClass }
func (c *Class) String() string  { return fmt.Sprintf("<class %s>", c.Name) }
func (c *Class) Truthy() bool    { return true }
func (c *Class) Equal(v Value) bool {
	o, ok := v.(*Class)
	return ok && o == c
}

// FindMethod resolves a method by name on the class's own method table.
func (c *Class) FindMethod(name string) (*Closure, bool) {
	m, ok := c.Methods[name]
	return m, ok
}

// BoundMethod pairs an instance receiver with a method closure, produced by
// property lookup when the resolved property is a method (spec.md §3).
type BoundMethod struct {
	Receiver Value
	Method   *Closure
}

func (b *BoundMethod) Type() ValueType { return TBoundMethod }
func (b *BoundMethod) String() string {
	return fmt.Sprintf("<bound method %s>", b.Method.Fn.Name)
}
func (b *BoundMethod) Truthy() bool { return true }
func (b *BoundMethod) Equal(v Value) bool {
	o, ok := v.(*BoundMethod)
	return ok && o == b
}

// Module is a loaded module's namespace: its exported bindings. Both
// native modules (registered via builtins.Registry) and script-file
// modules (loaded by `use`) are represented uniformly as *Module.
type Module struct {
	Name    string
	Exports *ObjMap
}

func NewModule(name string) *Module {
	return &Module{Name: name, Exports: NewEmptyMap()}
}

func (m *Module) Type() ValueType { return TModule }
func (m *Module) String() string  { return fmt.Sprintf("<module %s>", m.Name) }
func (m *Module) Truthy() bool    { return true }
func (m *Module) Equal(v Value) bool {
	o, ok := v.(*Module)
	return ok && o == m
}
