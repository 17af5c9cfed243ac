package code

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRedisStore(t *testing.T, digits int) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, NewGenerator(digits), 30*time.Second)
}

func TestRedisStoreStableWithinWindow(t *testing.T) {
	s := testRedisStore(t, 4)
	ctx := context.Background()
	t0 := time.Now().UTC()

	first, err := s.Active(ctx, 42, t0)
	require.NoError(t, err)
	assert.Len(t, first.Value, 4)
	assert.Equal(t, t0.Add(30*time.Second).UnixMilli(), first.ValidUntil.UnixMilli())

	// Polling before expiry returns the same code, not a fresh one.
	again, err := s.Active(ctx, 42, t0.Add(29*time.Second))
	require.NoError(t, err)
	assert.Equal(t, first.Value, again.Value)

	lectureID, err := s.Resolve(ctx, first.Value, t0.Add(29*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(42), lectureID)
}

func TestRedisStoreHardExpiryAtDeadline(t *testing.T) {
	s := testRedisStore(t, 4)
	ctx := context.Background()
	t0 := time.Now().UTC()

	active, err := s.Active(ctx, 42, t0)
	require.NoError(t, err)

	// Dead at the deadline instant, before any sweep has run.
	_, err = s.Resolve(ctx, active.Value, t0.Add(30*time.Second))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreReissuesAfterExpiry(t *testing.T) {
	s := testRedisStore(t, 6)
	ctx := context.Background()
	t0 := time.Now().UTC()

	first, err := s.Active(ctx, 42, t0)
	require.NoError(t, err)

	fresh, err := s.Active(ctx, 42, t0.Add(31*time.Second))
	require.NoError(t, err)
	assert.NotEqual(t, first.Value, fresh.Value)
	assert.Equal(t, t0.Add(61*time.Second).UnixMilli(), fresh.ValidUntil.UnixMilli())

	_, err = s.Resolve(ctx, first.Value, t0.Add(31*time.Second))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreCrossLectureResolve(t *testing.T) {
	s := testRedisStore(t, 6)
	ctx := context.Background()
	now := time.Now().UTC()

	a, err := s.Active(ctx, 1, now)
	require.NoError(t, err)
	b, err := s.Active(ctx, 2, now)
	require.NoError(t, err)
	assert.NotEqual(t, a.Value, b.Value)

	gotA, err := s.Resolve(ctx, a.Value, now)
	require.NoError(t, err)
	gotB, err := s.Resolve(ctx, b.Value, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gotA)
	assert.Equal(t, int64(2), gotB)
}

func TestRedisStoreDrop(t *testing.T) {
	s := testRedisStore(t, 6)
	ctx := context.Background()
	now := time.Now().UTC()

	active, err := s.Active(ctx, 42, now)
	require.NoError(t, err)
	require.NoError(t, s.Drop(ctx, 42))

	// Both directions of the mapping are gone.
	_, err = s.Resolve(ctx, active.Value, now)
	assert.ErrorIs(t, err, ErrNotFound)

	fresh, err := s.Active(ctx, 42, now)
	require.NoError(t, err)
	assert.True(t, fresh.Live(now))
}

func TestRedisStoreGlobalUniqueness(t *testing.T) {
	// A 1-digit generator has 10 possible values; once every value is held
	// by a live lecture, issuing for another must give up rather than hand
	// out an ambiguous code.
	s := testRedisStore(t, 1)
	ctx := context.Background()
	now := time.Now().UTC()

	seen := make(map[string]int64)
	for id := int64(1); id <= 10; id++ {
		c, err := s.Active(ctx, id, now)
		require.NoError(t, err, "lecture %d", id)
		holder, taken := seen[c.Value]
		require.False(t, taken, fmt.Sprintf("value %s held by lectures %d and %d", c.Value, holder, id))
		seen[c.Value] = id
	}

	_, err := s.Active(ctx, 11, now)
	assert.ErrorIs(t, err, ErrExhausted)
}
