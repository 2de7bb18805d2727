package types

import "fmt"

// CompileError is a front-end diagnostic: a source line plus a message,
// produced by the lexer/parser/compiler before any bytecode runs.
type CompileError struct {
	Line    int
	Message string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// RuntimeKind classifies a RuntimeError using this language's own error
// taxonomy (spec.md §7).
type RuntimeKind int

const (
	ErrArity RuntimeKind = iota
	ErrType
	ErrIndex
	ErrKey
	ErrDivByZero
	ErrUndefinedName
	ErrPropertyOnNonObject
	ErrImport
	ErrSendNotAllowed
	ErrScheduler
	ErrUncaught
)

var runtimeKindNames = map[RuntimeKind]string{
	ErrArity:               "ArityError",
	ErrType:                "TypeError",
	ErrIndex:               "IndexError",
	ErrKey:                 "KeyError",
	ErrDivByZero:           "DivByZeroError",
	ErrUndefinedName:       "UndefinedNameError",
	ErrPropertyOnNonObject: "PropertyError",
	ErrImport:              "ImportError",
	ErrSendNotAllowed:      "SendNotAllowed",
	ErrScheduler:           "SchedulerError",
	ErrUncaught:            "UncaughtError",
}

func (k RuntimeKind) String() string {
	if s, ok := runtimeKindNames[k]; ok {
		return s
	}
	return "Error"
}

// RuntimeError is a value-carrying error raised during execution. It is
// both a Go error (for host-side propagation out of vm.Run) and a script
// value (for capture by a try/catch handler, via AsValue), unifying the
// two error paths the spec requires: host-level Go errors for fatal
// conditions, and catchable script exceptions for everything else.
type RuntimeError struct {
	Kind    RuntimeKind
	Message string
	Line    int
	// Payload is the arbitrary script value passed to `throw`, when this
	// error originated from a throw statement rather than a builtin
	// runtime check. nil for builtin-raised errors.
	Payload Value
}

func NewRuntimeError(kind RuntimeKind, line int, format string, args ...any) *RuntimeError {
	return &RuntimeError{Kind: kind, Message: fmt.Sprintf(format, args...), Line: line}
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s: %s (line %d)", e.Kind, e.Message, e.Line)
}

// Format renders the user-visible diagnostic spec.md §7 requires:
// "<file>:<line>: <Kind>: <message>", plus — for an uncaught exception —
// a truncated call-stack summary (one function name per frame, innermost
// first).
func (e *RuntimeError) Format(file string, callStack []string) string {
	s := fmt.Sprintf("%s:%d: %s: %s", file, e.Line, e.Kind, e.Message)
	if e.Kind != ErrUncaught || len(callStack) == 0 {
		return s
	}
	for _, name := range callStack {
		s += fmt.Sprintf("\n  at %s", name)
	}
	return s
}

// AsValue renders the error as the script-level value a catch clause
// binds: a map with "kind" and "message" keys, or the original thrown
// payload when present.
func (e *RuntimeError) AsValue() Value {
	if e.Payload != nil {
		return e.Payload
	}
	m := NewEmptyMap()
	m.Set("kind", NewString(e.Kind.String()))
	m.Set("message", NewString(e.Message))
	m.Set("line", NewNumber(float64(e.Line)))
	return m
}

// StringSubKind classifies StringError, the narrower error family raised
// by string built-ins (indexing, slicing, formatting, searching).
type StringSubKind int

const (
	StrIndexOutOfBounds StringSubKind = iota
	StrInvalidArgument
	StrEncoding
	StrFormat
	StrSlice
	StrSearch
)

var stringSubKindNames = map[StringSubKind]string{
	StrIndexOutOfBounds: "IndexOutOfBounds",
	StrInvalidArgument:  "InvalidArgument",
	StrEncoding:         "Encoding",
	StrFormat:           "Format",
	StrSlice:            "Slice",
	StrSearch:           "Search",
}

func (k StringSubKind) String() string {
	if s, ok := stringSubKindNames[k]; ok {
		return s
	}
	return "StringError"
}

// StringError is a RuntimeError specialization carrying a string-domain
// sub-tag, surfaced to script code as a RuntimeError of kind ErrIndex or
// ErrType with this sub-kind recorded in the message.
type StringError struct {
	Sub     StringSubKind
	Message string
}

func (e *StringError) Error() string {
	return fmt.Sprintf("%s: %s", e.Sub, e.Message)
}

func (e *StringError) ToRuntimeError(line int) *RuntimeError {
	kind := ErrType
	if e.Sub == StrIndexOutOfBounds || e.Sub == StrSlice {
		kind = ErrIndex
	}
	return NewRuntimeError(kind, line, "%s: %s", e.Sub, e.Message)
}

// CheckpointError reports a failure loading or saving a checkpoint file:
// a bad magic number, an unsupported version, or a truncated/corrupt
// payload (spec.md §6's checkpoint format).
type CheckpointError struct {
	Stage   string // "read-header", "read-objects", "read-roots", "write", ...
	Message string
}

func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %s: %s", e.Stage, e.Message)
}
