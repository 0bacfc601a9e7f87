package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nimasrn/congregation-messenger/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, redis.Wrap(t.Name(), "", client)
}

func TestIdempotency_AcquireAndMarkSuccess(t *testing.T) {
	_, adapter := setupTestRedis(t)
	svc := NewIdempotencyService(adapter, DefaultIdempotencyConfig())
	ctx := context.Background()

	pc, err := svc.AcquireProcessingLock(ctx, "msg-1:233244111111:delivered")
	require.NoError(t, err)
	assert.Equal(t, 0, pc.RetryCount)
	assert.False(t, pc.IsRetry)

	require.NoError(t, svc.MarkSuccess(ctx, pc))

	processed, err := svc.IsProcessed(ctx, "msg-1:233244111111:delivered")
	require.NoError(t, err)
	assert.True(t, processed)

	_, err = svc.AcquireProcessingLock(ctx, "msg-1:233244111111:delivered")
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
}

func TestIdempotency_LockIsExclusive(t *testing.T) {
	_, adapter := setupTestRedis(t)
	svc := NewIdempotencyService(adapter, DefaultIdempotencyConfig())
	ctx := context.Background()

	pc, err := svc.AcquireProcessingLock(ctx, "k")
	require.NoError(t, err)

	_, err = svc.AcquireProcessingLock(ctx, "k")
	assert.ErrorIs(t, err, ErrLockAcquireFailed)

	require.NoError(t, svc.ReleaseLock(ctx, pc))
	_, err = svc.AcquireProcessingLock(ctx, "k")
	assert.NoError(t, err)
}

func TestIdempotency_LockExpires(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	cfg := DefaultIdempotencyConfig()
	cfg.LockTTL = time.Second
	svc := NewIdempotencyService(adapter, cfg)
	ctx := context.Background()

	_, err := svc.AcquireProcessingLock(ctx, "k")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	_, err = svc.AcquireProcessingLock(ctx, "k")
	assert.NoError(t, err)
}

func TestIdempotency_FailuresCountTowardsMax(t *testing.T) {
	_, adapter := setupTestRedis(t)
	cfg := DefaultIdempotencyConfig()
	cfg.MaxRetries = 2
	svc := NewIdempotencyService(adapter, cfg)
	ctx := context.Background()
	boom := errors.New("store down")

	pc, err := svc.AcquireProcessingLock(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, svc.MarkFailure(ctx, pc, boom))

	pc, err = svc.AcquireProcessingLock(ctx, "k")
	require.NoError(t, err)
	assert.True(t, pc.IsRetry)
	assert.Equal(t, 1, pc.RetryCount)
	require.NoError(t, svc.MarkFailure(ctx, pc, boom))

	count, err := svc.GetRetryCount(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = svc.AcquireProcessingLock(ctx, "k")
	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
}

func TestIdempotency_SuccessClearsRetryCounter(t *testing.T) {
	_, adapter := setupTestRedis(t)
	svc := NewIdempotencyService(adapter, DefaultIdempotencyConfig())
	ctx := context.Background()

	pc, err := svc.AcquireProcessingLock(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, svc.MarkFailure(ctx, pc, errors.New("transient")))

	pc, err = svc.AcquireProcessingLock(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, svc.MarkSuccess(ctx, pc))

	count, err := svc.GetRetryCount(ctx, "k")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestIdempotency_ReleaseWithoutLockIsNoop(t *testing.T) {
	_, adapter := setupTestRedis(t)
	svc := NewIdempotencyService(adapter, DefaultIdempotencyConfig())

	assert.NoError(t, svc.ReleaseLock(context.Background(), nil))
	assert.NoError(t, svc.ReleaseLock(context.Background(), &ProcessingContext{Key: "k"}))
}
