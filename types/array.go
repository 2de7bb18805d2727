package types

import "strings"

// ObjArray is the heap array object. Arrays compare by reference
// identity (spec.md §3): two distinct arrays with equal elements are
// unequal unless they are literally the same object.
type ObjArray struct {
	Elems []Value
}

func NewArray(elems []Value) *ObjArray { return &ObjArray{Elems: elems} }

func (a *ObjArray) Type() ValueType { return TArray }

func (a *ObjArray) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, e := range a.Elems {
		if i > 0 {
			b.WriteString(", ")
		}
		if s, ok := e.(*ObjString); ok {
			b.WriteByte('"')
			b.WriteString(s.String())
			b.WriteByte('"')
		} else {
			b.WriteString(e.String())
		}
	}
	b.WriteByte(']')
	return b.String()
}

func (a *ObjArray) Truthy() bool { return len(a.Elems) > 0 }

func (a *ObjArray) Equal(v Value) bool {
	o, ok := v.(*ObjArray)
	return ok && o == a
}

// Len returns the element count.
func (a *ObjArray) Len() int { return len(a.Elems) }

// DeepCopy returns a new array with each element deep-copied. Used by the
// scheduler's send() data discipline (spec.md §4.3) so mailbox delivery
// never shares mutable heap state between processes.
func (a *ObjArray) DeepCopy() *ObjArray {
	out := make([]Value, len(a.Elems))
	for i, e := range a.Elems {
		out[i] = DeepCopyValue(e)
	}
	return NewArray(out)
}

// DeepCopyValue deep-copies a value for cross-process delivery. Immutable
// values (nil, bool, number, interned string) are returned unchanged;
// mutable heap values (array, map, instance) are recursively copied.
// Closures that capture mutable state are rejected by the scheduler's
// send native (Closure.CapturesMutableState) before reaching here; every
// other callable is returned unchanged.
func DeepCopyValue(v Value) Value {
	switch o := v.(type) {
	case *ObjArray:
		return o.DeepCopy()
	case *ObjMap:
		return o.DeepCopy()
	case *Instance:
		return o.DeepCopy()
	case *ObjBuffer:
		return o.DeepCopy()
	default:
		return v
	}
}
