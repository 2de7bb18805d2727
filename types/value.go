// Package types implements the tagged runtime value representation shared
// by the compiler, the VM, the native bridge, and the scheduler: Value and
// its heap object variants (string, array, map, function, closure, class,
// instance, bound method, native fn, module, buffer), per spec.md §3.
package types

import "fmt"

// Value is the interface every runtime value implements: nil, booleans,
// numbers and interned strings by value; arrays/maps/callables/instances
// by heap reference.
type Value interface {
	Type() ValueType
	String() string   // source-literal-ish representation, used by say/tostring
	Truthy() bool     // language truthiness: nil, false, 0 and empty strings/arrays/maps/buffers are falsy, everything else truthy
	Equal(Value) bool // numeric/identity/reference equality per spec.md §3
}

// Nil is the sole nil value.
type Nil struct{}

func (Nil) Type() ValueType { return TNil }
func (Nil) String() string  { return "nil" }
func (Nil) Truthy() bool    { return false }
func (Nil) Equal(v Value) bool {
	_, ok := v.(Nil)
	return ok
}

var NilValue Value = Nil{}

// Bool is a boolean value.
type Bool bool

func (b Bool) Type() ValueType { return TBool }
func (b Bool) String() string {
	if b {
		return "true"
	}
	return "false"
}
func (b Bool) Truthy() bool { return bool(b) }
func (b Bool) Equal(v Value) bool {
	o, ok := v.(Bool)
	return ok && o == b
}

// Number is the single numeric type (IEEE 754 double), per spec.md §3.
// Equality is IEEE 754 numeric comparison, so NaN != NaN holds as
// required by the "boundaries" testable property in spec.md §8.
type Number float64

func (n Number) Type() ValueType { return TNumber }
func (n Number) String() string {
	f := float64(n)
	if f == float64(int64(f)) && f < 1e15 && f > -1e15 {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}
func (n Number) Truthy() bool { return float64(n) != 0 }
func (n Number) Equal(v Value) bool {
	o, ok := v.(Number)
	return ok && o == n // IEEE 754 comparison: NaN != NaN, and 0 == -0
}

func NewNumber(f float64) Value { return Number(f) }

// IsTruthy reports v's truthiness, treating a Go nil as falsy.
func IsTruthy(v Value) bool {
	if v == nil {
		return false
	}
	return v.Truthy()
}
