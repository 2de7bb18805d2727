package builtins

import (
	"sort"

	"neutron/types"
)

// InitArrays registers the arrays module. map/filter/reduce each take a
// script closure and call back into the running VM via
// Registry.CallClosure, the same re-entrant call path the VM itself
// uses for nested calls (spec.md §9 Open Questions).
func InitArrays(reg *Registry) *types.Module {
	mod := types.NewModule("arrays")
	exports := mod.Exports

	exports.Set("len", Native("len", 1, func(_ any, args []types.Value) (types.Value, error) {
		arr, err := requireArray(args, 0, "arrays.len")
		if err != nil {
			return nil, err
		}
		return types.NewNumber(float64(arr.Len())), nil
	}))

	exports.Set("push", Native("push", 2, func(_ any, args []types.Value) (types.Value, error) {
		arr, err := requireArray(args, 0, "arrays.push")
		if err != nil {
			return nil, err
		}
		arr.Elems = append(arr.Elems, args[1])
		return arr, nil
	}))

	exports.Set("pop", Native("pop", 1, func(_ any, args []types.Value) (types.Value, error) {
		arr, err := requireArray(args, 0, "arrays.pop")
		if err != nil {
			return nil, err
		}
		if arr.Len() == 0 {
			return nil, types.NewRuntimeError(types.ErrIndex, 0, "pop of empty array")
		}
		last := arr.Elems[arr.Len()-1]
		arr.Elems = arr.Elems[:arr.Len()-1]
		return last, nil
	}))

	exports.Set("sort", Native("sort", 1, func(_ any, args []types.Value) (types.Value, error) {
		arr, err := requireArray(args, 0, "arrays.sort")
		if err != nil {
			return nil, err
		}
		out := append([]types.Value(nil), arr.Elems...)
		var sortErr error
		sort.SliceStable(out, func(i, j int) bool {
			less, err := lessValue(out[i], out[j])
			if err != nil {
				sortErr = err
			}
			return less
		})
		if sortErr != nil {
			return nil, sortErr
		}
		return types.NewArray(out), nil
	}))

	exports.Set("map", Native("map", 2, func(vm any, args []types.Value) (types.Value, error) {
		arr, err := requireArray(args, 0, "arrays.map")
		if err != nil {
			return nil, err
		}
		if reg.CallClosure == nil {
			return nil, types.NewRuntimeError(types.ErrScheduler, 0, "arrays.map: no VM call path configured")
		}
		out := make([]types.Value, arr.Len())
		for i, v := range arr.Elems {
			result, err := reg.CallClosure(vm, args[1], []types.Value{v, types.NewNumber(float64(i))})
			if err != nil {
				return nil, err
			}
			out[i] = result
		}
		return types.NewArray(out), nil
	}))

	exports.Set("filter", Native("filter", 2, func(vm any, args []types.Value) (types.Value, error) {
		arr, err := requireArray(args, 0, "arrays.filter")
		if err != nil {
			return nil, err
		}
		if reg.CallClosure == nil {
			return nil, types.NewRuntimeError(types.ErrScheduler, 0, "arrays.filter: no VM call path configured")
		}
		var out []types.Value
		for i, v := range arr.Elems {
			keep, err := reg.CallClosure(vm, args[1], []types.Value{v, types.NewNumber(float64(i))})
			if err != nil {
				return nil, err
			}
			if keep.Truthy() {
				out = append(out, v)
			}
		}
		return types.NewArray(out), nil
	}))

	exports.Set("reduce", Native("reduce", 3, func(vm any, args []types.Value) (types.Value, error) {
		arr, err := requireArray(args, 0, "arrays.reduce")
		if err != nil {
			return nil, err
		}
		if reg.CallClosure == nil {
			return nil, types.NewRuntimeError(types.ErrScheduler, 0, "arrays.reduce: no VM call path configured")
		}
		acc := args[2]
		for i, v := range arr.Elems {
			acc, err = reg.CallClosure(vm, args[1], []types.Value{acc, v, types.NewNumber(float64(i))})
			if err != nil {
				return nil, err
			}
		}
		return acc, nil
	}))

	return mod
}

func requireArray(args []types.Value, i int, fname string) (*types.ObjArray, error) {
	if i >= len(args) {
		return nil, types.NewRuntimeError(types.ErrArity, 0, "%s: missing argument %d", fname, i)
	}
	a, ok := args[i].(*types.ObjArray)
	if !ok {
		return nil, types.NewRuntimeError(types.ErrType, 0, "%s: argument %d must be an array, got %s", fname, i, args[i].Type())
	}
	return a, nil
}

func lessValue(a, b types.Value) (bool, error) {
	an, aok := a.(types.Number)
	bn, bok := b.(types.Number)
	if aok && bok {
		return an < bn, nil
	}
	as, aok := a.(*types.ObjString)
	bs, bok := b.(*types.ObjString)
	if aok && bok {
		return as.String() < bs.String(), nil
	}
	return false, types.NewRuntimeError(types.ErrType, 0, "cannot compare %s and %s", a.Type(), b.Type())
}
