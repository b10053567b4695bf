package asm

import (
	"errors"
	"fmt"

	"github.com/chazu/jasm/resolver"
)

// ---------------------------------------------------------------------------
// Error taxonomy
// ---------------------------------------------------------------------------

// ErrorKind classifies an assembly fault.
type ErrorKind int

const (
	// Syntax covers directives in the wrong state, malformed operands,
	// unclosed quotes and unparsed trailing text.
	Syntax ErrorKind = iota + 1
	// Semantic covers duplicate names, undeclared variables, conflicting
	// modifiers, pool overflow, branch range and unresolved labels.
	Semantic
	// Resolution covers unknown classes, fields and methods, and names
	// that exist but are of the wrong kind.
	Resolution
)

func (k ErrorKind) String() string {
	switch k {
	case Syntax:
		return "syntax error"
	case Semantic:
		return "semantic error"
	case Resolution:
		return "resolution error"
	}
	return "error"
}

// Error is the only error type Assemble returns. Line is 1-based; 0 means
// the fault was detected after the last line (an unclosed class, say).
type Error struct {
	Kind      ErrorKind
	File      string
	Line      int
	Directive string // directive or mnemonic being processed, if any
	Err       error
}

func (e *Error) Error() string {
	pos := fmt.Sprintf("line %d", e.Line)
	if e.File != "" {
		pos = fmt.Sprintf("%s:%d", e.File, e.Line)
	}
	if e.Directive != "" {
		return fmt.Sprintf("%s: %s: %s: %v", pos, e.Kind, e.Directive, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", pos, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// syntaxError marks faults raised by the scanner and the state machine.
type syntaxError struct {
	msg string
}

func (e *syntaxError) Error() string {
	return e.msg
}

func syntaxf(format string, args ...any) error {
	return &syntaxError{msg: fmt.Sprintf(format, args...)}
}

// kindOf classifies err. Anything that is neither a syntax nor a
// resolver fault is semantic.
func kindOf(err error) ErrorKind {
	var se *syntaxError
	if errors.As(err, &se) {
		return Syntax
	}
	var nf *resolver.NotFoundError
	var wk *resolver.WrongKindError
	var am *resolver.AmbiguousError
	if errors.As(err, &nf) || errors.As(err, &wk) || errors.As(err, &am) {
		return Resolution
	}
	return Semantic
}
