package services

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured means the backing store (or an optional collaborator)
	// was never wired in.
	ErrNotConfigured = errors.New("not configured")
	// ErrOperationFailed wraps every failure coming back from the store.
	ErrOperationFailed = errors.New("operation failed")
	ErrNotFound        = errors.New("not found")
	ErrInvalidInput    = errors.New("invalid input")
)

func opFailed(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrOperationFailed, err)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
