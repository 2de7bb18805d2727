// Package builtins implements the native module surface exposed to
// script code: math, time, arrays, json, convert, fmt, http, gc, and
// crypto. Every module follows the same registration idiom: a Registry
// of name -> function, populated by one init routine per concern, over
// the native ABI (vm, args) -> (Value, error) from spec.md §6.
package builtins

import "neutron/types"

// ModuleInit registers one module's exports into a *types.Module.
type ModuleInit func(reg *Registry) *types.Module

// Registry is the native-function bridge passed to every ModuleInit: a
// home for cross-module state (the registered modules, the CallClosure
// re-entry hook, the FileLoader) plus the Native() convenience constructor.
type Registry struct {
	modules map[string]*types.Module
	// CallClosure lets a module (arrays.map/filter/reduce) re-enter the
	// VM to invoke a script-level callback. Wired by the scheduler to
	// vm.CallValue when it is constructed.
	CallClosure func(vm any, fn types.Value, args []types.Value) (types.Value, error)

	// FileLoader resolves `use "path"` targets that are not registered
	// native modules: it compiles and executes the named source file and
	// returns its exports. Wired by the engine, which owns the
	// loaded-module cache and the cyclic-import detection.
	FileLoader func(path string) (*types.Module, error)
}

func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]*types.Module)}
}

// Native builds a *types.NativeFn with the given name/arity, the
// idiomatic constructor every module file calls for each export.
func Native(name string, arity int, fn func(vm any, args []types.Value) (types.Value, error)) *types.NativeFn {
	return &types.NativeFn{Name: name, Arity: arity, Fn: fn}
}

// Install registers every standard module and returns name -> Module so
// the caller can bind them as globals (or route `use "math"` to them).
func (r *Registry) Install() map[string]*types.Module {
	inits := []ModuleInit{
		InitMath,
		InitTime,
		InitArrays,
		InitJSON,
		InitConvert,
		InitFmt,
		InitHTTP,
		InitCrypto,
		InitGC,
	}
	for _, init := range inits {
		mod := init(r)
		r.modules[mod.Name] = mod
	}
	return r.modules
}

func (r *Registry) Lookup(name string) (*types.Module, bool) {
	m, ok := r.modules[name]
	return m, ok
}
