package builtins

import (
	"runtime"

	"neutron/types"
)

// InitGC registers introspection over the interned-string table and the
// heap. Collection itself is delegated to the host runtime's collector,
// whose roots (VM stacks, frames, globals, mailboxes) coincide exactly
// with the reachability the language defines; this module exposes
// observability plus an explicit collect() trigger.
func InitGC(reg *Registry) *types.Module {
	mod := types.NewModule("gc")
	exports := mod.Exports

	exports.Set("stats", Native("stats", 0, func(_ any, args []types.Value) (types.Value, error) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		result := types.NewEmptyMap()
		result.Set("heap_alloc_bytes", types.NewNumber(float64(m.HeapAlloc)))
		result.Set("heap_objects", types.NewNumber(float64(m.HeapObjects)))
		result.Set("interned_strings", types.NewNumber(float64(types.InternTableSize())))
		result.Set("num_gc", types.NewNumber(float64(m.NumGC)))
		return result, nil
	}))

	exports.Set("collect", Native("collect", 0, func(_ any, args []types.Value) (types.Value, error) {
		runtime.GC()
		return types.NilValue, nil
	}))

	return mod
}
