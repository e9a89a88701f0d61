package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a node or authorizable does not exist.
	ErrNotFound = errors.New("not found")
	// ErrExists is returned when creating something that already exists.
	ErrExists = errors.New("already exists")
	// ErrAccessDenied is returned when the caller may not perform an operation.
	ErrAccessDenied = errors.New("access denied")
	// ErrInvalidInput is returned for malformed paths or ids.
	ErrInvalidInput = errors.New("invalid input")
)

// Error carries the failing path or id along with one of the sentinel errors.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound builds an *Error wrapping ErrNotFound.
func NotFound(op, path string) error {
	return &Error{Op: op, Path: path, Err: ErrNotFound}
}

// Exists builds an *Error wrapping ErrExists.
func Exists(op, path string) error {
	return &Error{Op: op, Path: path, Err: ErrExists}
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
