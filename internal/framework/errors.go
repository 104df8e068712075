package framework

import "errors"

// Runtime errors.
var (
	// ErrUnsupportedOperator means no kernel is registered for an operator on the target.
	ErrUnsupportedOperator = errors.New("unsupported operator")

	// ErrNotFound means a scope has no tensor under the requested name.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists means a scope already holds a tensor under the name.
	ErrAlreadyExists = errors.New("already exists")

	// ErrOutOfMemory means an allocation would exceed the scope's memory limit.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrExecution wraps the first kernel failure of a program run.
	ErrExecution = errors.New("execution failed")
)
