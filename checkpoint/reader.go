package checkpoint

import (
	"bufio"
	"io"

	"neutron/types"
	"neutron/vm"
)

type objHeader struct {
	id   uint64
	kind Kind

	// kind-specific header fields.
	strLen   uint32
	arrLen   uint32
	mapLen   uint32
	fnName   string
	fnArity  uint32
	codeLen  uint32
	constLen uint32
	upvalLen uint32
}

type envHeader struct {
	closureID  uint64
	upvalCount uint32
}

// Snapshot is the decoded result of Load: the recorded source name and
// the VM state ready to hand to (*vm.VM).Restore.
type Snapshot struct {
	SourceName string
	Globals    map[string]types.Value
	Stack      []types.Value
	Frames     []vm.FrameSnapshot
}

// Load reads a checkpoint written by Save and reconstructs its object
// graph. It does not mutate machine; call (*vm.VM).Restore with the
// returned Snapshot's Globals/Stack/Frames to install the state.
func Load(r io.Reader) (*Snapshot, error) {
	br := bufio.NewReader(r)

	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, &types.CheckpointError{Stage: "read-header", Message: err.Error()}
	}
	if string(magic) != Magic {
		return nil, &types.CheckpointError{Stage: "read-header", Message: "bad magic"}
	}
	version, err := readU32(br)
	if err != nil {
		return nil, &types.CheckpointError{Stage: "read-header", Message: err.Error()}
	}
	if version != Version {
		return nil, &types.CheckpointError{Stage: "read-header", Message: "unsupported checkpoint version"}
	}
	sourceName, err := readString(br)
	if err != nil {
		return nil, &types.CheckpointError{Stage: "read-header", Message: err.Error()}
	}

	objCount, err := readU32(br)
	if err != nil {
		return nil, &types.CheckpointError{Stage: "read-objects", Message: err.Error()}
	}
	headers := make([]objHeader, objCount)
	for i := range headers {
		id, err := readU64(br)
		if err != nil {
			return nil, &types.CheckpointError{Stage: "read-objects", Message: err.Error()}
		}
		kindByte := make([]byte, 1)
		if _, err := io.ReadFull(br, kindByte); err != nil {
			return nil, &types.CheckpointError{Stage: "read-objects", Message: err.Error()}
		}
		h := objHeader{id: id, kind: Kind(kindByte[0])}
		switch h.kind {
		case KindString:
			h.strLen, err = readU32(br)
		case KindArray:
			h.arrLen, err = readU32(br)
		case KindMap:
			h.mapLen, err = readU32(br)
		case KindCallable:
			h.fnName, err = readString(br)
			if err == nil {
				h.fnArity, err = readU32(br)
			}
			if err == nil {
				h.codeLen, err = readU32(br)
			}
			if err == nil {
				h.constLen, err = readU32(br)
			}
			if err == nil {
				h.upvalLen, err = readU32(br)
			}
		}
		if err != nil {
			return nil, &types.CheckpointError{Stage: "read-objects", Message: err.Error()}
		}
		headers[i] = h
	}

	envCount, err := readU32(br)
	if err != nil {
		return nil, &types.CheckpointError{Stage: "read-environments", Message: err.Error()}
	}
	envHeaders := make([]envHeader, envCount)
	upvalCountByClosure := make(map[uint64]uint32, envCount)
	for i := range envHeaders {
		cid, err := readU64(br)
		if err != nil {
			return nil, &types.CheckpointError{Stage: "read-environments", Message: err.Error()}
		}
		cnt, err := readU32(br)
		if err != nil {
			return nil, &types.CheckpointError{Stage: "read-environments", Message: err.Error()}
		}
		envHeaders[i] = envHeader{closureID: cid, upvalCount: cnt}
		upvalCountByClosure[cid] = cnt
	}

	// Shell allocation: arrays/maps/closures get identity-stable empty
	// containers now, purely from header metadata, so that any forward
	// or cyclic reference encountered while filling payloads below
	// already resolves to the right pointer. Strings get no shell: their
	// content is needed to intern them, so they are filled in as their
	// payload is read, and the writer puts every string row ahead of the
	// rows that refer to it.
	ids := make(map[uint64]types.Value, len(headers))
	closureFns := make(map[uint64]*types.Function, envCount)
	for _, h := range headers {
		switch h.kind {
		case KindArray:
			ids[h.id] = types.NewArray(make([]types.Value, h.arrLen))
		case KindMap:
			ids[h.id] = types.NewEmptyMap()
		case KindCallable:
			fn := &types.Function{
				Name:  h.fnName,
				Arity: int(h.fnArity),
				Chunk: &types.Chunk{
					Code:      make([]byte, h.codeLen),
					Lines:     make([]int, h.codeLen),
					Constants: make([]types.Value, h.constLen),
				},
				UpvalueInfo: make([]types.UpvalueInfo, h.upvalLen),
			}
			closureFns[h.id] = fn
			if upCount, isClosure := upvalCountByClosure[h.id]; isClosure {
				ids[h.id] = &types.Closure{Fn: fn, Upvalues: make([]*types.Upvalue, upCount)}
			} else {
				// A bare Function constant (an OP_CLOSURE operand that had
				// not been instantiated): restore it as-is so constant
				// pools keep their expected shape.
				ids[h.id] = fn
			}
		}
	}

	// Sequential payload fill, in the same order objects were written.
	for _, h := range headers {
		if err := fillPayload(br, h, ids, closureFns); err != nil {
			return nil, &types.CheckpointError{Stage: "read-payloads", Message: err.Error()}
		}
	}

	// Environment payloads: each closure's captured values, in upvalue-
	// index order, already-closed (this is a cold snapshot, so every
	// upvalue is restored closed rather than pointing at a live slot).
	for _, eh := range envHeaders {
		closure := ids[eh.closureID].(*types.Closure)
		for i := uint32(0); i < eh.upvalCount; i++ {
			val, err := readTaggedValue(br, ids)
			if err != nil {
				return nil, &types.CheckpointError{Stage: "read-environments", Message: err.Error()}
			}
			closure.Upvalues[i] = &types.Upvalue{Closed: val, Open: false}
		}
	}

	globals, err := readGlobalsRoot(br, ids)
	if err != nil {
		return nil, err
	}
	stack, err := readStackRoot(br, ids)
	if err != nil {
		return nil, err
	}
	frames, err := readFramesRoot(br, ids)
	if err != nil {
		return nil, err
	}

	return &Snapshot{SourceName: sourceName, Globals: globals, Stack: stack, Frames: frames}, nil
}

func readTaggedValue(r io.Reader, ids map[uint64]types.Value) (types.Value, error) {
	buf := make([]byte, taggedValueSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	tag, payload := readTagged(buf)
	switch tag {
	case tagNil:
		return types.NilValue, nil
	case tagFalse:
		return types.Bool(false), nil
	case tagTrue:
		return types.Bool(true), nil
	case tagNumber:
		return types.NewNumber(bitsDouble(payload)), nil
	case tagRef:
		v, ok := ids[payload]
		if !ok {
			return nil, &types.CheckpointError{Stage: "read-value", Message: "dangling object reference"}
		}
		return v, nil
	default:
		return nil, &types.CheckpointError{Stage: "read-value", Message: "unknown value tag"}
	}
}

func fillPayload(r io.Reader, h objHeader, ids map[uint64]types.Value, closureFns map[uint64]*types.Function) error {
	switch h.kind {
	case KindString:
		buf := make([]byte, h.strLen)
		if _, err := io.ReadFull(r, buf); err != nil {
			return err
		}
		ids[h.id] = types.Intern(string(buf))
		return nil
	case KindArray:
		arr := ids[h.id].(*types.ObjArray)
		for i := range arr.Elems {
			v, err := readTaggedValue(r, ids)
			if err != nil {
				return err
			}
			arr.Elems[i] = v
		}
		return nil
	case KindMap:
		m := ids[h.id].(*types.ObjMap)
		for i := uint32(0); i < h.mapLen; i++ {
			key, err := readString(r)
			if err != nil {
				return err
			}
			val, err := readTaggedValue(r, ids)
			if err != nil {
				return err
			}
			m.Set(key, val)
		}
		return nil
	case KindCallable:
		fn := closureFns[h.id]
		if _, err := io.ReadFull(r, fn.Chunk.Code); err != nil {
			return err
		}
		for i := range fn.Chunk.Lines {
			line, err := readU32(r)
			if err != nil {
				return err
			}
			fn.Chunk.Lines[i] = int(line)
		}
		for i := range fn.Chunk.Constants {
			v, err := readTaggedValue(r, ids)
			if err != nil {
				return err
			}
			fn.Chunk.Constants[i] = v
		}
		for i := range fn.UpvalueInfo {
			isLocalByte := make([]byte, 1)
			if _, err := io.ReadFull(r, isLocalByte); err != nil {
				return err
			}
			idx, err := readU32(r)
			if err != nil {
				return err
			}
			fn.UpvalueInfo[i] = types.UpvalueInfo{IsLocal: isLocalByte[0] != 0, Index: int(idx)}
		}
		return nil
	}
	return nil
}

func readGlobalsRoot(r io.Reader, ids map[uint64]types.Value) (map[string]types.Value, error) {
	count, err := readU32(r)
	if err != nil {
		return nil, &types.CheckpointError{Stage: "read-roots", Message: err.Error()}
	}
	globals := make(map[string]types.Value, count)
	for i := uint32(0); i < count; i++ {
		name, err := readString(r)
		if err != nil {
			return nil, &types.CheckpointError{Stage: "read-roots", Message: err.Error()}
		}
		val, err := readTaggedValue(r, ids)
		if err != nil {
			return nil, &types.CheckpointError{Stage: "read-roots", Message: err.Error()}
		}
		globals[name] = val
	}
	return globals, nil
}

func readStackRoot(r io.Reader, ids map[uint64]types.Value) ([]types.Value, error) {
	count, err := readU32(r)
	if err != nil {
		return nil, &types.CheckpointError{Stage: "read-roots", Message: err.Error()}
	}
	stack := make([]types.Value, count)
	for i := range stack {
		val, err := readTaggedValue(r, ids)
		if err != nil {
			return nil, &types.CheckpointError{Stage: "read-roots", Message: err.Error()}
		}
		stack[i] = val
	}
	return stack, nil
}

func readFramesRoot(r io.Reader, ids map[uint64]types.Value) ([]vm.FrameSnapshot, error) {
	count, err := readU32(r)
	if err != nil {
		return nil, &types.CheckpointError{Stage: "read-roots", Message: err.Error()}
	}
	frames := make([]vm.FrameSnapshot, count)
	for i := range frames {
		cid, err := readU64(r)
		if err != nil {
			return nil, &types.CheckpointError{Stage: "read-roots", Message: err.Error()}
		}
		ip, err := readU32(r)
		if err != nil {
			return nil, &types.CheckpointError{Stage: "read-roots", Message: err.Error()}
		}
		base, err := readU32(r)
		if err != nil {
			return nil, &types.CheckpointError{Stage: "read-roots", Message: err.Error()}
		}
		closure, ok := ids[cid].(*types.Closure)
		if !ok {
			return nil, &types.CheckpointError{Stage: "read-roots", Message: "frame references unknown closure"}
		}
		frames[i] = vm.FrameSnapshot{Closure: closure, IP: int(ip), Base: int(base)}
	}
	return frames, nil
}
