package builtins

import (
	"encoding/json"

	"neutron/types"
)

// InitJSON registers the json module: an encode/decode pair translating
// between this language's Value tree and JSON text.
func InitJSON(reg *Registry) *types.Module {
	mod := types.NewModule("json")
	exports := mod.Exports

	exports.Set("encode", Native("encode", 1, func(_ any, args []types.Value) (types.Value, error) {
		if len(args) == 0 {
			return nil, types.NewRuntimeError(types.ErrArity, 0, "json.encode: missing argument")
		}
		b, err := json.Marshal(toPlain(args[0]))
		if err != nil {
			return nil, types.NewRuntimeError(types.ErrType, 0, "json.encode: %s", err)
		}
		return types.NewString(string(b)), nil
	}))

	exports.Set("decode", Native("decode", 1, func(_ any, args []types.Value) (types.Value, error) {
		s, err := requireString(args, 0, "json.decode")
		if err != nil {
			return nil, err
		}
		var raw any
		if err := json.Unmarshal([]byte(s.String()), &raw); err != nil {
			return nil, types.NewRuntimeError(types.ErrType, 0, "json.decode: %s", err)
		}
		return fromPlain(raw), nil
	}))

	return mod
}

// toPlain converts a Value into plain Go data encoding/json can marshal.
func toPlain(v types.Value) any {
	switch val := v.(type) {
	case types.Nil:
		return nil
	case types.Bool:
		return bool(val)
	case types.Number:
		return float64(val)
	case *types.ObjString:
		return val.String()
	case *types.ObjArray:
		out := make([]any, val.Len())
		for i, e := range val.Elems {
			out[i] = toPlain(e)
		}
		return out
	case *types.ObjMap:
		out := make(map[string]any, val.Len())
		for _, k := range val.Keys() {
			e, _ := val.Get(k)
			out[k] = toPlain(e)
		}
		return out
	default:
		return v.String()
	}
}

// fromPlain converts decoded JSON data (map[string]any/[]any/float64/...)
// back into Value.
func fromPlain(raw any) types.Value {
	switch val := raw.(type) {
	case nil:
		return types.NilValue
	case bool:
		return types.Bool(val)
	case float64:
		return types.NewNumber(val)
	case string:
		return types.NewString(val)
	case []any:
		out := make([]types.Value, len(val))
		for i, e := range val {
			out[i] = fromPlain(e)
		}
		return types.NewArray(out)
	case map[string]any:
		m := types.NewEmptyMap()
		for k, e := range val {
			m.Set(k, fromPlain(e))
		}
		return m
	default:
		return types.NilValue
	}
}
