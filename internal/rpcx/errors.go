package rpcx

import (
	"errors"
	"fmt"
)

// ExhaustedError is returned when every endpoint in the pool has failed for
// every retry round. It wraps the last error observed.
type ExhaustedError struct {
	Method  string
	Rounds  int
	LastErr error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("rpc pool exhausted for %s after %d rounds: %v", e.Method, e.Rounds, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error {
	return e.LastErr
}

// IsExhausted reports whether err is (or wraps) an ExhaustedError.
func IsExhausted(err error) bool {
	var target *ExhaustedError
	return errors.As(err, &target)
}
