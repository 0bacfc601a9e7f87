package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nimasrn/congregation-messenger/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ retry.Notifier = (*Center)(nil)

func steppingClock() func() time.Time {
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestCenter_ProgressReplacedPerLabel(t *testing.T) {
	c := NewCenter(10)
	c.now = steppingClock()

	c.Retrying("send", 1, 3, time.Second, errors.New("timeout"))
	c.Retrying("send", 2, 3, 2*time.Second, errors.New("timeout"))
	c.Retrying("balance", 1, 3, time.Second, errors.New("timeout"))

	list := c.List()
	require.Len(t, list, 2)
	assert.Equal(t, "balance", list[0].Label)
	assert.Equal(t, 2, list[1].Attempt)
	assert.Equal(t, KindProgress, list[1].Kind)
	assert.False(t, list[1].Retryable)
}

func TestCenter_FailureReplacesProgressAndRetries(t *testing.T) {
	c := NewCenter(10)
	c.now = steppingClock()

	c.Retrying("send", 2, 3, 2*time.Second, errors.New("timeout"))

	ran := 0
	c.Failed("send", 3, errors.New("send failed after 3 attempts: timeout"), func(ctx context.Context) error {
		ran++
		return nil
	})

	list := c.List()
	require.Len(t, list, 1)
	assert.Equal(t, KindFailure, list[0].Kind)
	assert.True(t, list[0].Retryable)
	assert.Contains(t, list[0].Message, "3 attempts")

	require.NoError(t, c.Retry(context.Background(), list[0].ID))
	assert.Equal(t, 1, ran)
	assert.Empty(t, c.List())

	assert.ErrorIs(t, c.Retry(context.Background(), list[0].ID), ErrNotFound)
}

func TestCenter_Dismiss(t *testing.T) {
	c := NewCenter(10)
	c.Failed("balance", 3, errors.New("down"), nil)

	list := c.List()
	require.Len(t, list, 1)
	assert.ErrorIs(t, c.Retry(context.Background(), list[0].ID), ErrNotRetryable)

	require.NoError(t, c.Dismiss(list[0].ID))
	assert.ErrorIs(t, c.Dismiss(list[0].ID), ErrNotFound)
}

func TestCenter_Limit(t *testing.T) {
	c := NewCenter(2)
	c.now = steppingClock()

	c.Failed("a", 3, errors.New("a"), nil)
	c.Failed("b", 3, errors.New("b"), nil)
	c.Failed("c", 3, errors.New("c"), nil)

	list := c.List()
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].Label)
	assert.Equal(t, "b", list[1].Label)
}

func TestCenter_WithRetryWrapper(t *testing.T) {
	c := NewCenter(10)
	calls := 0

	_, err := retry.Do(context.Background(), retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}, "send", c,
		func(ctx context.Context) (int, error) {
			calls++
			return 0, errors.New("rejected")
		})
	require.Error(t, err)

	list := c.List()
	require.Len(t, list, 1)
	assert.Equal(t, KindFailure, list[0].Kind)

	assert.Error(t, c.Retry(context.Background(), list[0].ID))
	assert.Equal(t, 4, calls)
	assert.Len(t, c.List(), 1)
}

func TestCenter_RecoveredClearsProgress(t *testing.T) {
	c := NewCenter(10)
	c.now = steppingClock()
	calls := 0

	got, err := retry.Do(context.Background(), retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}, "send", c,
		func(ctx context.Context) (string, error) {
			calls++
			if calls < 2 {
				return "", errors.New("timeout")
			}
			return "ok", nil
		})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Empty(t, c.List())

	c.Retrying("balance", 1, 3, time.Second, errors.New("timeout"))
	c.Recovered("send", 2)
	require.Len(t, c.List(), 1)
	assert.Equal(t, "balance", c.List()[0].Label)
}
