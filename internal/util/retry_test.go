package util

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mqfs/internal/common"
)

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	t.Parallel()

	attempts := 0
	err := Retry(func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	},
		retry.Attempts(5),
		retry.Delay(time.Millisecond),
		retry.DelayType(retry.FixedDelay),
	)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithResult(t *testing.T) {
	t.Parallel()

	attempts := 0
	got, err := RetryWithResult(func() (int, error) {
		attempts++
		if attempts < 2 {
			return 0, errors.New("transient")
		}
		return 42, nil
	},
		retry.Attempts(5),
		retry.Delay(time.Millisecond),
		retry.DelayType(retry.FixedDelay),
	)
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestIsLockBusy(t *testing.T) {
	t.Parallel()

	assert.False(t, IsLockBusy(nil))
	assert.False(t, IsLockBusy(errors.New("disk full")))
	assert.True(t, IsLockBusy(common.ErrLockBusy))
	assert.True(t, IsLockBusy(fmt.Errorf("open: %w", common.ErrLockBusy)))
	assert.True(t, IsLockBusy(errors.New("database is locked")))
}
