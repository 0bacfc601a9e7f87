package retry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu        sync.Mutex
	delays    []time.Duration
	failures  []error
	recovered []int
	retry     func(ctx context.Context) error
}

func (n *recordingNotifier) Recovered(_ string, attempts int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.recovered = append(n.recovered, attempts)
}

func (n *recordingNotifier) Retrying(_ string, _ int, _ int, delay time.Duration, _ error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.delays = append(n.delays, delay)
}

func (n *recordingNotifier) Failed(_ string, _ int, err error, retry func(ctx context.Context) error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, err)
	n.retry = retry
}

func fastPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
}

func TestDo_SucceedsOnThirdAttempt(t *testing.T) {
	calls := 0
	n := &recordingNotifier{}

	got, err := Do(context.Background(), fastPolicy(), "send", n, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("gateway timeout")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, n.delays)
	assert.Empty(t, n.failures)
	assert.Equal(t, []int{3}, n.recovered)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	n := &recordingNotifier{}

	_, err := Do(context.Background(), fastPolicy(), "send", n, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("handshake rejected")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "3")
	assert.Contains(t, err.Error(), "handshake rejected")

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	require.Len(t, n.failures, 1)
	require.NotNil(t, n.retry)
}

func TestDo_ManualRetryStartsOver(t *testing.T) {
	calls := 0
	n := &recordingNotifier{}
	op := func(ctx context.Context) (int, error) {
		calls++
		if calls <= 3 {
			return 0, errors.New("down")
		}
		return calls, nil
	}

	_, err := Do(context.Background(), fastPolicy(), "send", n, op)
	require.Error(t, err)
	require.NotNil(t, n.retry)

	require.NoError(t, n.retry(context.Background()))
	assert.Equal(t, 4, calls)
}

func TestDo_StopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("missing api key")
	policy := fastPolicy()
	policy.ShouldRetry = func(err error) bool { return !errors.Is(err, fatal) }
	calls := 0
	n := &recordingNotifier{}

	_, err := Do(context.Background(), policy, "send", n, func(ctx context.Context) (struct{}, error) {
		calls++
		return struct{}{}, fatal
	})

	assert.Equal(t, fatal, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, n.delays)
	assert.Empty(t, n.failures)
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{MaxAttempts: 3, BaseDelay: time.Hour}
	calls := 0

	_, err := Do(ctx, policy, "send", nil, func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("boom")
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestPolicy_Delay(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
	assert.Equal(t, time.Second, p.Delay(0))
}
