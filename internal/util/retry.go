// Package util provides shared utility functions for mqfs.
package util

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"mqfs/internal/common"
)

// LockRetryOptions returns retry options for opening the index database while
// another process holds it exclusively. The open is retried forever at a fixed
// one second interval: the index is expected to become available eventually,
// and there is deliberately no timeout or cancellation path.
func LockRetryOptions() []retry.Option {
	return []retry.Option{
		retry.Attempts(0), // unbounded
		retry.Delay(1 * time.Second),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(IsLockBusy),
		retry.LastErrorOnly(true),
	}
}

// DatabaseRetryOptions returns retry options for transient contention on an
// already-open index handle (WAL checkpoint overlap with an external indexer).
func DatabaseRetryOptions(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Attempts(3),
		retry.Delay(100 * time.Millisecond),
		retry.MaxDelay(300 * time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(IsLockBusy),
		retry.Context(ctx),
	}
}

// Retry executes fn with retry logic.
// Returns the last error if all attempts fail.
func Retry(fn func() error, opts ...retry.Option) error {
	return retry.Do(fn, opts...)
}

// RetryWithResult executes fn with retry logic and returns the result.
func RetryWithResult[T any](fn func() (T, error), opts ...retry.Option) (T, error) {
	return retry.DoWithData(fn, opts...)
}

// IsLockBusy reports whether the error indicates the index database is held
// exclusively elsewhere (flock contention or a SQLite lock error).
func IsLockBusy(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, common.ErrLockBusy) {
		return true
	}
	return strings.Contains(err.Error(), "database is locked")
}
