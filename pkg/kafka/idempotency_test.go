package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisIdempotencyStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisIdempotencyStore(client, ttl), mr
}

func TestMemoryIdempotencyStore_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryIdempotencyStore(time.Minute)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Add(ctx, "e-1"))
	seen, err := s.Contains(ctx, "e-1")
	require.NoError(t, err)
	assert.True(t, seen)

	now = now.Add(2 * time.Minute)
	seen, err = s.Contains(ctx, "e-1")
	require.NoError(t, err)
	assert.False(t, seen)
	assert.Equal(t, 0, s.Len())
}

func TestRedisIdempotencyStore_AddContainsTTL(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, time.Hour)

	seen, err := s.Contains(ctx, "e-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, s.Add(ctx, "e-1"))
	seen, err = s.Contains(ctx, "e-1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Equal(t, time.Hour, mr.TTL("kafka:processed:e-1"))

	mr.FastForward(2 * time.Hour)
	seen, err = s.Contains(ctx, "e-1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRedisIdempotencyStore_ServerDown(t *testing.T) {
	s, mr := newRedisStore(t, time.Hour)
	mr.Close()

	_, err := s.Contains(context.Background(), "e-1")
	assert.Error(t, err)
}

func TestIdempotentHandler(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedisStore(t, time.Hour)
	calls := 0
	h := IdempotentHandler(s, func(context.Context, *Event) error {
		calls++
		return nil
	}, testLogger())

	ev := &Event{EventID: "e-1", EventType: "payment.notification"}
	require.NoError(t, h(ctx, ev))
	require.NoError(t, h(ctx, ev))
	assert.Equal(t, 1, calls)

	require.NoError(t, h(ctx, &Event{EventType: "no-id"}))
	require.NoError(t, h(ctx, &Event{EventType: "no-id"}))
	assert.Equal(t, 3, calls)
}

func TestIdempotentHandler_FailureIsNotRecorded(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryIdempotencyStore(time.Hour)
	fail := true
	calls := 0
	h := IdempotentHandler(s, func(context.Context, *Event) error {
		calls++
		if fail {
			return errors.New("transient")
		}
		return nil
	}, testLogger())

	ev := &Event{EventID: "e-2"}
	assert.Error(t, h(ctx, ev))
	fail = false
	require.NoError(t, h(ctx, ev))
	assert.Equal(t, 2, calls)
}
