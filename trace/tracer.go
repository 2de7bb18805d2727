// Package trace provides opt-in execution tracing for the compiler, VM,
// and scheduler: a package-level enable flag and free functions that
// no-op when tracing is off, covering function calls, thrown exceptions,
// and scheduler process lifecycle events.
package trace

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"neutron/types"
)

// Tracer holds the enable flag, an optional name-glob filter, and the
// output sink. A nil *Tracer (before Init is called) makes every package
// function a no-op, so callers never need to check trace.IsEnabled().
type Tracer struct {
	enabled bool
	filters []string
	writer  io.Writer
	mu      sync.Mutex
}

var globalTracer *Tracer

// Init installs the global tracer. filters, when non-empty, are glob
// patterns matched against function/process-event names; an empty list
// traces everything.
func Init(enabled bool, filters []string, writer io.Writer) {
	if writer == nil {
		writer = os.Stderr
	}
	globalTracer = &Tracer{enabled: enabled, filters: filters, writer: writer}
}

// IsEnabled reports whether the global tracer is active.
func IsEnabled() bool {
	return globalTracer != nil && globalTracer.enabled
}

func (t *Tracer) matchesFilter(name string) bool {
	if len(t.filters) == 0 {
		return true
	}
	for _, pattern := range t.filters {
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
	}
	return false
}

// Call logs entry into a Function/Closure/NativeFn call (spec.md §4.2).
func (t *Tracer) Call(name string, args []types.Value, line int) {
	if !t.enabled || !t.matchesFilter(name) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	argStrs := make([]string, len(args))
	for i, a := range args {
		argStrs[i] = a.String()
	}
	fmt.Fprintf(t.writer, "[TRACE] CALL %s(%s) line=%d\n", name, strings.Join(argStrs, ", "), line)
}

// Return logs a call's resolved return value.
func (t *Tracer) Return(name string, result types.Value) {
	if !t.enabled || !t.matchesFilter(name) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	resultStr := "nil"
	if result != nil {
		resultStr = result.String()
	}
	fmt.Fprintf(t.writer, "[TRACE] RETURN %s => %s\n", name, resultStr)
}

// Exception logs a RuntimeError raised (and possibly caught) during a call.
func (t *Tracer) Exception(name string, err *types.RuntimeError) {
	if !t.enabled || !t.matchesFilter(name) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.writer, "[TRACE] EXCEPTION %s %s: %s (line %d)\n", name, err.Kind, err.Message, err.Line)
}

// ProcessEvent logs a scheduler lifecycle event for a Process: spawn,
// send, kill, finish, killed.
func (t *Tracer) ProcessEvent(event string, pid int64, details string) {
	if !t.enabled {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if details != "" {
		fmt.Fprintf(t.writer, "[TRACE] PROC %s pid=%d %s\n", event, pid, details)
	} else {
		fmt.Fprintf(t.writer, "[TRACE] PROC %s pid=%d\n", event, pid)
	}
}

// Global convenience functions, safe to call before Init (no-op until
// Init has run).

func Call(name string, args []types.Value, line int) {
	if globalTracer != nil {
		globalTracer.Call(name, args, line)
	}
}

func Return(name string, result types.Value) {
	if globalTracer != nil {
		globalTracer.Return(name, result)
	}
}

func Exception(name string, err *types.RuntimeError) {
	if globalTracer != nil {
		globalTracer.Exception(name, err)
	}
}

func ProcessEvent(event string, pid int64, details string) {
	if globalTracer != nil {
		globalTracer.ProcessEvent(event, pid, details)
	}
}
