// Package diagnostics is the error model shared by every pipeline stage:
// reader, analyzer, tree walker and VM all report failures as *Error.
package diagnostics

import (
	"fmt"
	"strings"
)

// Kind enumerates the taxonomy from spec.md §4.6.6.
type Kind string

const (
	UnexpectedEOF      Kind = "unexpected_eof"
	InvalidToken       Kind = "invalid_token"
	UnmatchedDelimiter Kind = "unmatched_delimiter"
	InvalidNumber      Kind = "invalid_number"
	InvalidCharacter   Kind = "invalid_character"
	InvalidString      Kind = "invalid_string"
	InvalidRegex       Kind = "invalid_regex"
	InvalidKeyword     Kind = "invalid_keyword"
	UndefinedSymbol    Kind = "undefined_symbol"
	InvalidArity       Kind = "invalid_arity"
	InvalidBinding     Kind = "invalid_binding"
	DuplicateKey       Kind = "duplicate_key"
	MacroError         Kind = "macro_error"
	DivisionByZero     Kind = "division_by_zero"
	IndexOutOfBounds   Kind = "index_out_of_bounds"
	TypeError          Kind = "type_error"
	AssertionError     Kind = "assertion_error"
	UserException      Kind = "user_exception"
	OutOfMemory        Kind = "out_of_memory"
	InternalError      Kind = "internal_error"
)

// Phase identifies which pipeline stage raised the error.
type Phase string

const (
	PhaseParse       Phase = "parse"
	PhaseAnalysis    Phase = "analysis"
	PhaseMacroexpand Phase = "macroexpand"
	PhaseEval        Phase = "eval"
)

// Loc is a source position stamp, attached to Forms, Nodes and Errors.
type Loc struct {
	File   string
	Line   int
	Column int
}

func (l Loc) String() string {
	file := l.File
	if file == "" {
		file = "<input>"
	}
	return fmt.Sprintf("%s:%d:%d", file, l.Line, l.Column)
}

// CallFrame records one active invocation for an eval-phase callstack.
type CallFrame struct {
	FnName   string
	Ns       string
	Loc      Loc
	IsBuiltin bool
}

// Error is the (kind, info) pair from spec.md §7.
type Error struct {
	Kind      Kind
	Phase     Phase
	Message   string
	Loc       Loc
	Cause     error
	Callstack []CallFrame
	// Thrown carries the raw user Value for UserException; only `try`
	// consults it. Declared as interface{} here to avoid an import cycle
	// with the value package (diagnostics sits below value in the layer
	// order used by §4.6.6: "only user_exception is catchable").
	Thrown interface{}
}

func New(kind Kind, phase Phase, loc Loc, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Phase: phase, Loc: loc, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, phase Phase, loc Loc, cause error, format string, args ...interface{}) *Error {
	e := New(kind, phase, loc, format, args...)
	e.Cause = cause
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s (%s)", e.Phase, e.Message, e.Loc)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %s", e.Cause)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// PushFrame records a callstack frame (innermost first), mirroring how
// the tree walker and VM both unwind through nested Call/OP_CALL sites.
func (e *Error) PushFrame(f CallFrame) *Error {
	e.Callstack = append(e.Callstack, f)
	return e
}

// Catchable reports whether `try` may bind this error directly (user_exception)
// or must first convert it to an error-info map (every other Kind).
func (e *Error) Catchable() bool { return e.Kind == UserException }
