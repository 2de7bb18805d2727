package engine

import (
	"os"
	"sync"

	"neutron/types"
	"neutron/vm"
)

// fileLoader resolves `use "path"` imports: each source file is
// compiled and executed once in a fresh top-level frame, its resulting
// globals published as the module's exports. A currently-loading set
// detects import cycles.
type fileLoader struct {
	engine *Engine

	mu      sync.Mutex
	loaded  map[string]*types.Module
	loading map[string]bool
}

func newFileLoader(e *Engine) *fileLoader {
	return &fileLoader{
		engine:  e,
		loaded:  make(map[string]*types.Module),
		loading: make(map[string]bool),
	}
}

func (l *fileLoader) load(path string) (*types.Module, error) {
	l.mu.Lock()
	if mod, ok := l.loaded[path]; ok {
		l.mu.Unlock()
		return mod, nil
	}
	if l.loading[path] {
		l.mu.Unlock()
		return nil, types.NewRuntimeError(types.ErrImport, 0, "cyclic import of %q", path)
	}
	l.loading[path] = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.loading, path)
		l.mu.Unlock()
	}()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewRuntimeError(types.ErrImport, 0, "cannot load %q: %s", path, err)
	}
	fn, err := l.engine.Compile(string(data), path)
	if err != nil {
		return nil, types.NewRuntimeError(types.ErrImport, 0, "compiling %q: %s", path, err)
	}

	machine := vm.New()
	machine.Output = l.engine.cfg.Output
	machine.Importer = func(name string) (*types.Module, error) {
		if mod, ok := l.engine.registry.Lookup(name); ok {
			return mod, nil
		}
		return l.load(name)
	}
	if _, err := machine.Run(fn); err != nil {
		return nil, types.NewRuntimeError(types.ErrImport, 0, "running %q: %s", path, err)
	}

	mod := types.NewModule(path)
	for name, v := range machine.Globals() {
		mod.Exports.Set(name, v)
	}

	l.mu.Lock()
	l.loaded[path] = mod
	l.mu.Unlock()
	return mod, nil
}
