package types

import "fmt"

// Instance is an object created by calling a Class: a reference to its
// class plus an open, string-keyed field map. Property lookup tries
// fields first, then the class's method table, binding a matching method
// into a BoundMethod (spec.md §3).
type Instance struct {
	Class  *Class
	Fields *ObjMap
}

func NewInstance(class *Class) *Instance {
	return &Instance{Class: class, Fields: NewEmptyMap()}
}

func (i *Instance) Type() ValueType { return TInstance }
func (i *Instance) String() string  { return fmt.Sprintf("<instance %s>", i.Class.Name) }
func (i *Instance) Truthy() bool    { return true }
func (i *Instance) Equal(v Value) bool {
	o, ok := v.(*Instance)
	return ok && o == i
}

// GetProperty resolves a property read: field first, then bound method.
func (i *Instance) GetProperty(name string) (Value, bool) {
	if v, ok := i.Fields.Get(name); ok {
		return v, true
	}
	if m, ok := i.Class.FindMethod(name); ok {
		return &BoundMethod{Receiver: i, Method: m}, true
	}
	return nil, false
}

// SetProperty assigns a field, creating it if absent. Methods are never
// shadowed by SetProperty; fields and methods occupy distinct namespaces
// only insofar as a field with a method's name simply shadows the method
// in GetProperty's field-first lookup.
func (i *Instance) SetProperty(name string, v Value) {
	i.Fields.Set(name, v)
}

// DeepCopy copies the instance's fields, keeping the same class reference
// (classes are shared, immutable-after-definition metadata). Used by the
// scheduler's send() data discipline.
func (i *Instance) DeepCopy() *Instance {
	return &Instance{Class: i.Class, Fields: i.Fields.DeepCopy()}
}
