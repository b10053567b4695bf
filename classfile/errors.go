package classfile

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Callers match them with errors.Is; the returned errors
// wrap them with the offending name.
var (
	ErrPoolOverflow     = errors.New("constant pool is greater than 65535 entries")
	ErrDuplicateName    = errors.New("duplicate name")
	ErrUndeclared       = errors.New("not declared")
	ErrParametersClosed = errors.New("parameter section is already closed")
	ErrMethodOpen       = errors.New("method description is not completed")
	ErrMethodClosed     = errors.New("method description is already completed")
	ErrClassNotSet      = errors.New("class is not declared")
	ErrClassAlreadySet  = errors.New("class is already declared")
	ErrScopeUnbalanced  = errors.New("unbalanced .begin/.end")
	ErrAbstractMethod   = errors.New("abstract method in non-abstract class")
	ErrNoBody           = errors.New("method has no body")
)

// UnresolvedLabelsError reports every branch target that was never placed
// in a method body.
type UnresolvedLabelsError struct {
	Class  string
	Method string
	Labels []string
}

func (e *UnresolvedLabelsError) Error() string {
	return fmt.Sprintf("class [%s], method [%s] - unresolved jumps: labels {%s} are not defined in the method body",
		e.Class, e.Method, strings.Join(e.Labels, " "))
}

// BranchRangeError reports a short branch whose delta does not fit in
// a signed 16-bit offset.
type BranchRangeError struct {
	Label string
	Delta int
}

func (e *BranchRangeError) Error() string {
	return fmt.Sprintf("too long jump to label [%s]: delta %d does not fit a short offset", e.Label, e.Delta)
}
