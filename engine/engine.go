// Package engine wires the parser, compiler, VM, native module registry,
// and scheduler into the single convenience entry point embedders use to
// run source text: parse -> compile -> spawn as the entry process ->
// drive the scheduler to completion. cmd/neutron's run/repl subcommands
// go through this package instead of hand-assembling the pipeline
// themselves.
package engine

import (
	"fmt"
	"io"
	"os"
	"strings"

	"neutron/builtins"
	"neutron/parser"
	"neutron/scheduler"
	"neutron/types"
	"neutron/vm"
)

// Config controls how an Engine builds its scheduler and VMs.
type Config struct {
	// Workers is the scheduler's worker-pool size; <= 0 defaults to
	// runtime.GOMAXPROCS(0) (spec.md §4.3).
	Workers int
	// Budget is the per-slice reduction budget; <= 0 defaults to
	// scheduler.DefaultBudget (spec.md §4.3).
	Budget int
	// Output receives everything `say` writes; nil defaults to os.Stdout.
	Output io.Writer
}

// Engine is a ready-to-run instance of the language: one native-module
// registry shared across every process the embedder spawns, plus the
// output sink program output is written to.
type Engine struct {
	registry *builtins.Registry
	modules  map[string]*types.Module
	cfg      Config
}

// New builds an Engine with its standard-library modules installed.
func New(cfg Config) *Engine {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	reg := builtins.NewRegistry()
	mods := reg.Install()
	e := &Engine{registry: reg, modules: mods, cfg: cfg}
	reg.FileLoader = newFileLoader(e).load
	return e
}

// ParseErrors aggregates CompileErrors from the lexer/parser/compiler
// front end into a single error value (spec.md §7's CompileError kind).
type ParseErrors []*types.CompileError

func (e ParseErrors) Error() string {
	parts := make([]string, len(e))
	for i, ce := range e {
		parts[i] = ce.Error()
	}
	return strings.Join(parts, "\n")
}

// Compile parses and compiles source text into a top-level Function
// without running it, tagging diagnostics with file for spec.md §7's
// `<file>:<line>: <Kind>: <message>` format.
func (e *Engine) Compile(source, file string) (*types.Function, error) {
	p := parser.NewParser(source)
	stmts := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		return nil, ParseErrors(errs)
	}
	fn, cerrs := vm.CompileFile(stmts, file)
	if len(cerrs) > 0 {
		return nil, ParseErrors(cerrs)
	}
	return fn, nil
}

// newScheduler builds a fresh scheduler.Scheduler wired to this Engine's
// registry and output sink. Each Eval/Run call gets its own scheduler so
// that concurrent evaluations never share process tables (spec.md §9:
// "tests must start from a fresh scheduler").
func (e *Engine) newScheduler() *scheduler.Scheduler {
	return scheduler.New(e.registry, e.cfg.Workers, e.cfg.Budget)
}

// Eval compiles and runs source text to completion, returning its
// top-level function's return value. This is the `fib(30) == 832040`-
// style embedding surface (spec.md §9, "native C API parity hooks").
func (e *Engine) Eval(source string) (types.Value, error) {
	return e.EvalFile(source, "<script>")
}

// EvalFile is Eval tagged with a source-file name for diagnostics.
func (e *Engine) EvalFile(source, file string) (types.Value, error) {
	fn, err := e.Compile(source, file)
	if err != nil {
		return nil, err
	}
	sched := e.newScheduler()
	sched.SetOutput(e.cfg.Output)
	return sched.Run(fn)
}

// RunFile loads a source file from disk and evaluates it, the
// convenience wrapper cmd/neutron's `run` subcommand calls.
func (e *Engine) RunFile(path string) (types.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return e.EvalFile(string(data), path)
}

// Modules exposes the installed standard-library modules, keyed by name,
// for callers (the REPL's `use` tab-completion, diagnostics) that need to
// enumerate them without importing package builtins directly.
func (e *Engine) Modules() map[string]*types.Module { return e.modules }
