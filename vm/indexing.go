package vm

import "neutron/types"

// indexGet implements OP_INDEX_GET for arrays (non-negative indices
// only, per spec.md §8's "-1 on a 3-element array raises Index"),
// strings (single-character indexing, negative indices count from the
// end), and maps (string keys).
func (vm *VM) indexGet(line int) error {
	index := vm.pop()
	receiver := vm.pop()
	switch r := receiver.(type) {
	case *types.ObjArray:
		i, err := boundedIndex(r.Len(), index, line)
		if err != nil {
			return err
		}
		vm.push(r.Elems[i])
	case *types.ObjString:
		i, err := negativeWrapIndex(r.CharLen(), index, line)
		if err != nil {
			return err
		}
		runes := []rune(r.String())
		vm.push(types.NewString(string(runes[i])))
	case *types.ObjMap:
		key, ok := index.(*types.ObjString)
		if !ok {
			return types.NewRuntimeError(types.ErrKey, line, "map keys must be strings")
		}
		v, ok := r.Get(key.String())
		if !ok {
			return types.NewRuntimeError(types.ErrKey, line, "key %q not found", key.String())
		}
		vm.push(v)
	default:
		return types.NewRuntimeError(types.ErrType, line, "%s is not indexable", receiver.Type())
	}
	return nil
}

// indexSet implements OP_INDEX_SET for arrays and maps.
func (vm *VM) indexSet(line int) error {
	value := vm.pop()
	index := vm.pop()
	receiver := vm.pop()
	switch r := receiver.(type) {
	case *types.ObjArray:
		i, err := boundedIndex(r.Len(), index, line)
		if err != nil {
			return err
		}
		r.Elems[i] = value
	case *types.ObjMap:
		key, ok := index.(*types.ObjString)
		if !ok {
			return types.NewRuntimeError(types.ErrKey, line, "map keys must be strings")
		}
		r.Set(key.String(), value)
	default:
		return types.NewRuntimeError(types.ErrType, line, "%s does not support index assignment", receiver.Type())
	}
	vm.push(value)
	return nil
}

// boundedIndex resolves a numeric index against an array of the given
// length. Arrays do not support negative indexing (spec.md §8: "-1 on a
// 3-element array raises Index"); only a value in [0, length) is valid.
func boundedIndex(length int, index types.Value, line int) (int, error) {
	n, ok := index.(types.Number)
	if !ok {
		return 0, types.NewRuntimeError(types.ErrIndex, line, "index must be a number")
	}
	i := int(n)
	if i < 0 || i >= length {
		return 0, types.NewRuntimeError(types.ErrIndex, line, "index %d out of bounds for length %d", i, length)
	}
	return i, nil
}

// negativeWrapIndex resolves a numeric index against a string's
// character length, counting negative indices from the end (spec.md
// §4.2: "Strings index to single-character strings; negative indices
// count from the end").
func negativeWrapIndex(length int, index types.Value, line int) (int, error) {
	n, ok := index.(types.Number)
	if !ok {
		return 0, types.NewRuntimeError(types.ErrIndex, line, "index must be a number")
	}
	i := int(n)
	if i < 0 {
		i += length
	}
	if i < 0 || i >= length {
		return 0, types.NewRuntimeError(types.ErrIndex, line, "index %d out of bounds for length %d", int(n), length)
	}
	return i, nil
}
