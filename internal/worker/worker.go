package worker

import (
	"context"
	"time"
)

// Worker is a long-running cooperative task. Run blocks until the context
// fires or a fatal error occurs; transient errors are handled inside the loop.
type Worker interface {
	Name() string
	Run(ctx context.Context) error
}

// SleepCtx sleeps for d or until the context fires. It returns false when the
// context fired, signalling the caller to exit its loop.
func SleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
