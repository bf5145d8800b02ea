package model

import (
	"errors"
	"fmt"
)

// ErrInvalidInput marks malformed arguments: unknown tokens, out-of-range
// cursors, bad hyperparameters or mismatched stored shapes.
var ErrInvalidInput = errors.New("invalid input")

type inputError struct {
	msg string
}

func (e inputError) Error() string {
	return e.msg
}

func (e inputError) Unwrap() error {
	return ErrInvalidInput
}

func newInputError(format string, args ...any) error {
	return inputError{msg: fmt.Sprintf(format, args...)}
}
