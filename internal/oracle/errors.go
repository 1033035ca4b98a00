package oracle

import (
	"errors"
	"fmt"
)

// ExhaustedError is returned when every endpoint and retry attempt has failed.
type ExhaustedError struct {
	Path    string
	LastErr error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("oracle pool exhausted for %s: %v", e.Path, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error {
	return e.LastErr
}

// NotFoundError indicates the oracle does not (yet) know the requested item.
// Not retried; the caller decides whether to wait for a later iteration.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("oracle has no resource at %s", e.Path)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}
