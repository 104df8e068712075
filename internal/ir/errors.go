package ir

import (
	"errors"
	"fmt"
)

// Construction-time errors. All are raised by the builder or by operator
// mappers at the point of violation; use errors.Is to classify them.
var (
	ErrShapeMismatch     = errors.New("shape mismatch")
	ErrDtypeMismatch     = errors.New("dtype mismatch")
	ErrMissingAttribute  = errors.New("missing attribute")
	ErrMissingOperand    = errors.New("missing operand")
	ErrUndefinedVariable = errors.New("undefined variable")
	ErrDuplicateName     = errors.New("duplicate name")
	ErrUnknownOpType     = errors.New("unknown op type")
	ErrTypeMismatch      = errors.New("attribute type mismatch")
	ErrBuilderFinalized  = errors.New("builder already finalized")
)

// OpError reports a failure while building or checking one operator.
type OpError struct {
	Op      string // Operator type or builder method
	Err     error  // One of the sentinel errors above
	Details string // Additional details
}

// Error implements the error interface.
func (e *OpError) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Err, e.Details)
}

// Unwrap returns the sentinel so errors.Is works.
func (e *OpError) Unwrap() error {
	return e.Err
}

func opErr(op OpType, err error, format string, args ...any) error {
	return &OpError{Op: string(op), Err: err, Details: fmt.Sprintf(format, args...)}
}
