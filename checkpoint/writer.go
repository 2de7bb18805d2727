package checkpoint

import (
	"bytes"
	"io"
	"sort"

	"neutron/types"
	"neutron/vm"
)

// object is one discovered heap value: its assigned id, its kind, and
// the value itself for payload writing.
type object struct {
	id    uint64
	kind  Kind
	value types.Value
}

// discover walks every root value reachable from globals/stack/frames
// and assigns each distinct heap object (string/array/map/callable) a
// stable id in first-visit (breadth-first) order. Both bare Functions
// (constant-pool entries for not-yet-closed nested functions) and
// Closures map onto the CALLABLE kind; only closures additionally get an
// environment-table row. Identifier 0 is reserved for the null
// reference, so ids start at 1. Returns an error if any reachable value
// is a kind the format doesn't support (spec.md §6 names exactly
// OBJ_STRING/ARRAY/OBJECT/CALLABLE).
func discover(roots []types.Value) (map[types.Value]uint64, []object, error) {
	ids := make(map[types.Value]uint64)
	var order []object
	var queue []types.Value
	var nextID uint64 = 1

	visit := func(v types.Value) error {
		if v == nil {
			return nil
		}
		switch v.(type) {
		case *types.ObjString, *types.ObjArray, *types.ObjMap, *types.Closure, *types.Function:
			if _, ok := ids[v]; ok {
				return nil
			}
			ids[v] = nextID
			nextID++
			queue = append(queue, v)
			return nil
		case types.Nil, types.Bool, types.Number:
			return nil
		default:
			return kindError("discover", v)
		}
	}

	for _, r := range roots {
		if err := visit(r); err != nil {
			return nil, nil, err
		}
	}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		var kind Kind
		switch o := v.(type) {
		case *types.ObjString:
			kind = KindString
		case *types.ObjArray:
			kind = KindArray
			for _, e := range o.Elems {
				if err := visit(e); err != nil {
					return nil, nil, err
				}
			}
		case *types.ObjMap:
			kind = KindMap
			for _, k := range o.Keys() {
				val, _ := o.Get(k)
				if err := visit(val); err != nil {
					return nil, nil, err
				}
			}
		case *types.Closure:
			kind = KindCallable
			for _, c := range o.Fn.Chunk.Constants {
				if err := visit(c); err != nil {
					return nil, nil, err
				}
			}
			for _, uv := range o.Upvalues {
				if uv == nil {
					continue
				}
				if err := visit(uv.Get()); err != nil {
					return nil, nil, err
				}
			}
		case *types.Function:
			kind = KindCallable
			for _, c := range o.Chunk.Constants {
				if err := visit(c); err != nil {
					return nil, nil, err
				}
			}
		}
		order = append(order, object{id: ids[v], kind: kind, value: v})
	}
	return ids, order, nil
}

func writeTaggedValue(w io.Writer, v types.Value, ids map[types.Value]uint64) error {
	switch o := v.(type) {
	case nil, types.Nil:
		return writeTagged(w, tagNil, 0)
	case types.Bool:
		if o {
			return writeTagged(w, tagTrue, 0)
		}
		return writeTagged(w, tagFalse, 0)
	case types.Number:
		return writeTagged(w, tagNumber, doubleBits(float64(o)))
	default:
		id, ok := ids[v]
		if !ok {
			return kindError("write-value", v)
		}
		return writeTagged(w, tagRef, id)
	}
}

// Save writes a complete checkpoint of machine's execution state (plus
// sourceName, recorded for diagnostics on load) to w.
func Save(w io.Writer, sourceName string, machine *vm.VM) error {
	globals, stack, frames := machine.Snapshot()

	roots := make([]types.Value, 0, len(globals)+len(stack)+len(frames))
	for _, v := range globals {
		roots = append(roots, v)
	}
	roots = append(roots, stack...)
	for _, f := range frames {
		roots = append(roots, f.Closure)
	}

	ids, order, err := discover(roots)
	if err != nil {
		return &types.CheckpointError{Stage: "discover", Message: err.Error()}
	}
	// Strings carry no outgoing references and the reader cannot
	// pre-allocate them, so their rows (and payloads) go first: every
	// later payload that refers to a string then finds it already read.
	sort.SliceStable(order, func(i, j int) bool {
		return order[i].kind == KindString && order[j].kind != KindString
	})

	if _, err := io.WriteString(w, Magic); err != nil {
		return &types.CheckpointError{Stage: "write-header", Message: err.Error()}
	}
	if err := writeU32(w, Version); err != nil {
		return &types.CheckpointError{Stage: "write-header", Message: err.Error()}
	}
	if err := writeString(w, sourceName); err != nil {
		return &types.CheckpointError{Stage: "write-header", Message: err.Error()}
	}

	// Object table: one header row per discovered object, kind-specific.
	if err := writeU32(w, uint32(len(order))); err != nil {
		return &types.CheckpointError{Stage: "write-objects", Message: err.Error()}
	}
	for _, obj := range order {
		if err := writeU64(w, obj.id); err != nil {
			return &types.CheckpointError{Stage: "write-objects", Message: err.Error()}
		}
		if _, err := w.Write([]byte{byte(obj.kind)}); err != nil {
			return &types.CheckpointError{Stage: "write-objects", Message: err.Error()}
		}
		if err := writeObjectHeader(w, obj); err != nil {
			return &types.CheckpointError{Stage: "write-objects", Message: err.Error()}
		}
	}

	// Environment table: one row per Closure, naming its captured-value
	// count. spec.md §6's "environment table (id placeholders)" maps onto
	// this repo's upvalue-array representation of a closure's captured
	// environment (see DESIGN.md); bare Function constants carry no
	// environment and so get no row.
	var callables []object
	for _, obj := range order {
		if _, isClosure := obj.value.(*types.Closure); isClosure {
			callables = append(callables, obj)
		}
	}
	if err := writeU32(w, uint32(len(callables))); err != nil {
		return &types.CheckpointError{Stage: "write-environments", Message: err.Error()}
	}
	for _, obj := range callables {
		cl := obj.value.(*types.Closure)
		if err := writeU64(w, obj.id); err != nil {
			return &types.CheckpointError{Stage: "write-environments", Message: err.Error()}
		}
		if err := writeU32(w, uint32(len(cl.Upvalues))); err != nil {
			return &types.CheckpointError{Stage: "write-environments", Message: err.Error()}
		}
	}

	// Per-object payloads, in table order.
	for _, obj := range order {
		if err := writeObjectPayload(w, obj, ids); err != nil {
			return &types.CheckpointError{Stage: "write-payloads", Message: err.Error()}
		}
	}

	// Per-environment payloads: each callable's captured values, in
	// upvalue-index order.
	for _, obj := range callables {
		cl := obj.value.(*types.Closure)
		for _, uv := range cl.Upvalues {
			var val types.Value = types.NilValue
			if uv != nil {
				val = uv.Get()
			}
			if err := writeTaggedValue(w, val, ids); err != nil {
				return &types.CheckpointError{Stage: "write-environments", Message: err.Error()}
			}
		}
	}

	// Root tables: globals, stack, frames.
	if err := writeGlobalsRoot(w, globals, ids); err != nil {
		return err
	}
	if err := writeStackRoot(w, stack, ids); err != nil {
		return err
	}
	if err := writeFramesRoot(w, frames, ids); err != nil {
		return err
	}
	return nil
}

func writeObjectHeader(w io.Writer, obj object) error {
	switch obj.kind {
	case KindString:
		s := obj.value.(*types.ObjString)
		return writeU32(w, uint32(s.ByteLen()))
	case KindArray:
		a := obj.value.(*types.ObjArray)
		return writeU32(w, uint32(a.Len()))
	case KindMap:
		m := obj.value.(*types.ObjMap)
		return writeU32(w, uint32(m.Len()))
	case KindCallable:
		fn := callableFn(obj.value)
		if err := writeString(w, fn.Name); err != nil {
			return err
		}
		if err := writeU32(w, uint32(fn.Arity)); err != nil {
			return err
		}
		if err := writeU32(w, uint32(len(fn.Chunk.Code))); err != nil {
			return err
		}
		if err := writeU32(w, uint32(len(fn.Chunk.Constants))); err != nil {
			return err
		}
		return writeU32(w, uint32(len(fn.UpvalueInfo)))
	}
	return nil
}

func writeObjectPayload(w io.Writer, obj object, ids map[types.Value]uint64) error {
	switch obj.kind {
	case KindString:
		s := obj.value.(*types.ObjString)
		_, err := w.Write(s.Bytes())
		return err
	case KindArray:
		a := obj.value.(*types.ObjArray)
		for _, e := range a.Elems {
			if err := writeTaggedValue(w, e, ids); err != nil {
				return err
			}
		}
		return nil
	case KindMap:
		m := obj.value.(*types.ObjMap)
		for _, k := range m.Keys() {
			if err := writeString(w, k); err != nil {
				return err
			}
			v, _ := m.Get(k)
			if err := writeTaggedValue(w, v, ids); err != nil {
				return err
			}
		}
		return nil
	case KindCallable:
		fn := callableFn(obj.value)
		if _, err := w.Write(fn.Chunk.Code); err != nil {
			return err
		}
		for _, line := range fn.Chunk.Lines {
			if err := writeU32(w, uint32(line)); err != nil {
				return err
			}
		}
		for _, c := range fn.Chunk.Constants {
			if err := writeTaggedValue(w, c, ids); err != nil {
				return err
			}
		}
		for _, info := range fn.UpvalueInfo {
			isLocal := byte(0)
			if info.IsLocal {
				isLocal = 1
			}
			if _, err := w.Write([]byte{isLocal}); err != nil {
				return err
			}
			if err := writeU32(w, uint32(info.Index)); err != nil {
				return err
			}
		}
		return nil
	}
	return nil
}

func writeGlobalsRoot(w io.Writer, globals map[string]types.Value, ids map[types.Value]uint64) error {
	if err := writeU32(w, uint32(len(globals))); err != nil {
		return &types.CheckpointError{Stage: "write-roots", Message: err.Error()}
	}
	for name, v := range globals {
		if err := writeString(w, name); err != nil {
			return &types.CheckpointError{Stage: "write-roots", Message: err.Error()}
		}
		if err := writeTaggedValue(w, v, ids); err != nil {
			return &types.CheckpointError{Stage: "write-roots", Message: err.Error()}
		}
	}
	return nil
}

func writeStackRoot(w io.Writer, stack []types.Value, ids map[types.Value]uint64) error {
	if err := writeU32(w, uint32(len(stack))); err != nil {
		return &types.CheckpointError{Stage: "write-roots", Message: err.Error()}
	}
	for _, v := range stack {
		if err := writeTaggedValue(w, v, ids); err != nil {
			return &types.CheckpointError{Stage: "write-roots", Message: err.Error()}
		}
	}
	return nil
}

func writeFramesRoot(w io.Writer, frames []vm.FrameSnapshot, ids map[types.Value]uint64) error {
	if err := writeU32(w, uint32(len(frames))); err != nil {
		return &types.CheckpointError{Stage: "write-roots", Message: err.Error()}
	}
	for _, f := range frames {
		id, ok := ids[types.Value(f.Closure)]
		if !ok {
			return &types.CheckpointError{Stage: "write-roots", Message: "frame closure missing from object table"}
		}
		if err := writeU64(w, id); err != nil {
			return &types.CheckpointError{Stage: "write-roots", Message: err.Error()}
		}
		if err := writeU32(w, uint32(f.IP)); err != nil {
			return &types.CheckpointError{Stage: "write-roots", Message: err.Error()}
		}
		if err := writeU32(w, uint32(f.Base)); err != nil {
			return &types.CheckpointError{Stage: "write-roots", Message: err.Error()}
		}
	}
	return nil
}

// callableFn projects either callable representation onto its Function.
func callableFn(v types.Value) *types.Function {
	if cl, ok := v.(*types.Closure); ok {
		return cl.Fn
	}
	return v.(*types.Function)
}

// Bytes is a convenience wrapper returning the serialized checkpoint as
// an in-memory buffer, used by tests and by callers that want to hash or
// transmit it before touching a filesystem.
func Bytes(sourceName string, machine *vm.VM) ([]byte, error) {
	var buf bytes.Buffer
	if err := Save(&buf, sourceName, machine); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
