package builtins

import (
	"fmt"
	"strings"

	"neutron/types"
)

// InitFmt registers the fmt module: printf-style string formatting over
// script values.
func InitFmt(reg *Registry) *types.Module {
	mod := types.NewModule("fmt")
	exports := mod.Exports

	exports.Set("format", Native("format", -1, func(_ any, args []types.Value) (types.Value, error) {
		if len(args) == 0 {
			return nil, types.NewRuntimeError(types.ErrArity, 0, "fmt.format: missing format string")
		}
		tpl, err := requireString(args, 0, "fmt.format")
		if err != nil {
			return nil, err
		}
		rest := args[1:]
		var b strings.Builder
		argIdx := 0
		s := tpl.String()
		for i := 0; i < len(s); i++ {
			if s[i] == '{' && i+1 < len(s) && s[i+1] == '}' {
				if argIdx < len(rest) {
					b.WriteString(rest[argIdx].String())
					argIdx++
				}
				i++
				continue
			}
			b.WriteByte(s[i])
		}
		return types.NewString(b.String()), nil
	}))

	exports.Set("join", Native("join", 2, func(_ any, args []types.Value) (types.Value, error) {
		arr, err := requireArray(args, 0, "fmt.join")
		if err != nil {
			return nil, err
		}
		sep, err := requireString(args, 1, "fmt.join")
		if err != nil {
			return nil, err
		}
		parts := make([]string, arr.Len())
		for i, e := range arr.Elems {
			parts[i] = e.String()
		}
		return types.NewString(strings.Join(parts, sep.String())), nil
	}))

	exports.Set("debug", Native("debug", 1, func(_ any, args []types.Value) (types.Value, error) {
		return types.NewString(fmt.Sprintf("%#v", args[0])), nil
	}))

	return mod
}
