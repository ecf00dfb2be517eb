package vm

import (
	"errors"
	"fmt"
)

// RuntimeErrorKind classifies a RuntimeError.
type RuntimeErrorKind uint8

const (
	StackUnderflow RuntimeErrorKind = iota + 1
	NameError
	NamespaceOverflow
	NamespaceUnderflow
	NotCallable
	HostLimit
	InvalidOperand
)

var runtimeErrorNames = map[RuntimeErrorKind]string{
	StackUnderflow:     "stack underflow",
	NameError:          "name error",
	NamespaceOverflow:  "namespace overflow",
	NamespaceUnderflow: "namespace underflow",
	NotCallable:        "not callable",
	HostLimit:          "call depth exceeded",
	InvalidOperand:     "invalid operand",
}

func (k RuntimeErrorKind) String() string {
	if name, ok := runtimeErrorNames[k]; ok {
		return name
	}
	return fmt.Sprintf("runtime error %d", uint8(k))
}

// RuntimeError aborts the current top-level execution.
type RuntimeError struct {
	Kind RuntimeErrorKind
	Name string // offending name, when there is one
	Msg  string
}

func newRuntimeError(kind RuntimeErrorKind, name, format string, args ...any) *RuntimeError {
	return &RuntimeError{Kind: kind, Name: name, Msg: fmt.Sprintf(format, args...)}
}

func (e *RuntimeError) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Is matches any RuntimeError of the same kind, so the sentinels below
// work with errors.Is.
func (e *RuntimeError) Is(target error) bool {
	t, ok := target.(*RuntimeError)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrStackUnderflow     = &RuntimeError{Kind: StackUnderflow}
	ErrNameError          = &RuntimeError{Kind: NameError}
	ErrNamespaceOverflow  = &RuntimeError{Kind: NamespaceOverflow}
	ErrNamespaceUnderflow = &RuntimeError{Kind: NamespaceUnderflow}
	ErrNotCallable        = &RuntimeError{Kind: NotCallable}
	ErrHostLimit          = &RuntimeError{Kind: HostLimit}
	ErrInvalidOperand     = &RuntimeError{Kind: InvalidOperand}
)

// ErrExitRequested is matched by every ExitError.
var ErrExitRequested = errors.New("exit requested")

// ExitError is returned from Run when a script calls the exit builtin.
// Embedders decide whether to terminate the process.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit requested with code %d", e.Code)
}

func (e *ExitError) Is(target error) bool {
	return target == ErrExitRequested
}
