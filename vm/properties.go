package vm

import "neutron/types"

// getProperty implements OP_GET_PROPERTY for instances, maps, and
// modules, field-then-method (spec.md §3), pushing the bound result.
func (vm *VM) getProperty(name string, line int) error {
	receiver := vm.pop()
	switch r := receiver.(type) {
	case *types.Instance:
		v, ok := r.GetProperty(name)
		if !ok {
			// Unknown names read as nil on instances and maps; a missing
			// member of a module, string or class, or any other receiver,
			// is an error.
			vm.push(types.NilValue)
			return nil
		}
		vm.push(v)
	case *types.ObjMap:
		v, ok := r.Get(name)
		if !ok {
			vm.push(types.NilValue)
			return nil
		}
		vm.push(v)
	case *types.Module:
		v, ok := r.Exports.Get(name)
		if !ok {
			return types.NewRuntimeError(types.ErrPropertyOnNonObject, line, "module %s has no export %q", r.Name, name)
		}
		vm.push(v)
	case *types.ObjString:
		method, ok := types.StringMethods[name]
		if !ok {
			return types.NewRuntimeError(types.ErrPropertyOnNonObject, line, "string has no method %q", name)
		}
		// Bind the receiver now; the method surfaces as a native so the
		// call switch needs no extra variant.
		vm.push(&types.NativeFn{Name: "string." + name, Arity: -1, Fn: func(_ any, args []types.Value) (types.Value, error) {
			result, serr := method(r, args)
			if serr != nil {
				return nil, serr.ToRuntimeError(line)
			}
			return result, nil
		}})
	case *types.Class:
		if m, ok := r.FindMethod(name); ok {
			vm.push(m)
			return nil
		}
		return types.NewRuntimeError(types.ErrPropertyOnNonObject, line, "class %s has no static member %q", r.Name, name)
	default:
		return types.NewRuntimeError(types.ErrPropertyOnNonObject, line, "cannot read property %q of %s", name, receiver.Type())
	}
	return nil
}

// setProperty implements OP_SET_PROPERTY. Only instances and maps are
// assignable; classes and modules are immutable namespaces after load.
func (vm *VM) setProperty(name string, line int) error {
	value := vm.pop()
	receiver := vm.pop()
	switch r := receiver.(type) {
	case *types.Instance:
		r.SetProperty(name, value)
	case *types.ObjMap:
		r.Set(name, value)
	default:
		return types.NewRuntimeError(types.ErrPropertyOnNonObject, line, "cannot set property %q on %s", name, receiver.Type())
	}
	vm.push(value)
	return nil
}
