package frame

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownColumn is returned when an expression or action names a
	// column that is not visible at the node.
	ErrUnknownColumn = errors.New("unknown column")

	// ErrColumnExists is returned by Define when the column is already
	// visible at the node.
	ErrColumnExists = errors.New("column already defined")

	// ErrInvalidExpression is returned when an expression cannot be compiled
	// against the columns of a node.
	ErrInvalidExpression = errors.New("invalid expression")

	// ErrKindMismatch is returned when a value does not have the expected kind.
	ErrKindMismatch = errors.New("kind mismatch")
)

// EvalError reports a failure to evaluate an expression for one event.
type EvalError struct {
	Node  string
	Expr  string
	Entry int64
	Err   error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("frame: evaluating %q at %s, entry %d: %v", e.Expr, e.Node, e.Entry, e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }
