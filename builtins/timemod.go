package builtins

import (
	"strings"
	"time"

	"neutron/types"
)

// InitTime registers the time module: wall-clock access and formatting.
func InitTime(reg *Registry) *types.Module {
	mod := types.NewModule("time")
	exports := mod.Exports

	exports.Set("now", Native("now", 0, func(_ any, args []types.Value) (types.Value, error) {
		return types.NewNumber(float64(time.Now().UnixMilli()) / 1000.0), nil
	}))

	exports.Set("format", Native("format", 2, func(_ any, args []types.Value) (types.Value, error) {
		secs, err := requireNumber(args, 0, "time.format")
		if err != nil {
			return nil, err
		}
		layout, err := requireString(args, 1, "time.format")
		if err != nil {
			return nil, err
		}
		t := time.UnixMilli(int64(secs * 1000)).UTC()
		return types.NewString(t.Format(goLayout(layout.String()))), nil
	}))

	return mod
}

// goLayout translates a handful of strftime-style directives to Go's
// reference-time layout, enough for the common date/time formats.
func goLayout(pattern string) string {
	replacer := map[string]string{
		"%Y": "2006", "%m": "01", "%d": "02",
		"%H": "15", "%M": "04", "%S": "05",
	}
	out := pattern
	for k, v := range replacer {
		out = strings.ReplaceAll(out, k, v)
	}
	return out
}
