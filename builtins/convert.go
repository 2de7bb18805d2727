package builtins

import (
	"strconv"

	"gopkg.in/yaml.v3"

	"neutron/types"
)

// InitConvert registers the convert module: number/string coercions plus
// YAML encode/decode. YAML is wired here (rather than only in the CLI's
// config loader) so scripts can read/write the same config format the
// CLI driver and end-to-end test fixtures use (gopkg.in/yaml.v3).
func InitConvert(reg *Registry) *types.Module {
	mod := types.NewModule("convert")
	exports := mod.Exports

	exports.Set("to_number", Native("to_number", 1, func(_ any, args []types.Value) (types.Value, error) {
		switch v := args[0].(type) {
		case types.Number:
			return v, nil
		case *types.ObjString:
			f, err := strconv.ParseFloat(v.String(), 64)
			if err != nil {
				return nil, types.NewRuntimeError(types.ErrType, 0, "to_number: %s", err)
			}
			return types.NewNumber(f), nil
		case types.Bool:
			if v {
				return types.NewNumber(1), nil
			}
			return types.NewNumber(0), nil
		default:
			return nil, types.NewRuntimeError(types.ErrType, 0, "to_number: cannot convert %s", args[0].Type())
		}
	}))

	exports.Set("to_string", Native("to_string", 1, func(_ any, args []types.Value) (types.Value, error) {
		return types.NewString(args[0].String()), nil
	}))

	exports.Set("to_yaml", Native("to_yaml", 1, func(_ any, args []types.Value) (types.Value, error) {
		b, err := yaml.Marshal(toPlain(args[0]))
		if err != nil {
			return nil, types.NewRuntimeError(types.ErrType, 0, "to_yaml: %s", err)
		}
		return types.NewString(string(b)), nil
	}))

	exports.Set("from_yaml", Native("from_yaml", 1, func(_ any, args []types.Value) (types.Value, error) {
		s, err := requireString(args, 0, "from_yaml")
		if err != nil {
			return nil, err
		}
		var raw any
		if err := yaml.Unmarshal([]byte(s.String()), &raw); err != nil {
			return nil, types.NewRuntimeError(types.ErrType, 0, "from_yaml: %s", err)
		}
		return fromPlain(normalizeYAML(raw)), nil
	}))

	return mod
}

// normalizeYAML rewrites yaml.v3's map[string]interface{} and
// map[interface{}]interface{} nodes so fromPlain's type switch (which
// expects map[string]any) matches consistently.
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = normalizeYAML(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[keyString(k)] = normalizeYAML(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = normalizeYAML(e)
		}
		return out
	case int:
		return float64(val)
	default:
		return v
	}
}

func keyString(k any) string {
	if s, ok := k.(string); ok {
		return s
	}
	return ""
}
