package code

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	return NewMemoryStore(NewGenerator(4), 30*time.Second)
}

func TestActiveIsStableWithinWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first, err := s.Active(ctx, 1, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.LectureID)
	assert.Equal(t, now.Add(30*time.Second), first.ValidUntil)

	again, err := s.Active(ctx, 1, now.Add(10*time.Second))
	require.NoError(t, err)
	assert.Equal(t, first.Value, again.Value, "code must not change before valid_until")
}

func TestActiveRotatesAfterExpiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first, err := s.Active(ctx, 1, now)
	require.NoError(t, err)

	rotated, err := s.Active(ctx, 1, now.Add(31*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), rotated.LectureID)
	assert.True(t, rotated.ValidUntil.After(first.ValidUntil))

	// The replaced code no longer resolves, even though it was never
	// explicitly dropped.
	_, err = s.Resolve(ctx, first.Value, now.Add(31*time.Second))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHardExpiryWithoutRotation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	c, err := s.Active(ctx, 1, now)
	require.NoError(t, err)

	// Still valid one instant before the deadline.
	id, err := s.Resolve(ctx, c.Value, c.ValidUntil.Add(-time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	// Dead at the deadline itself, with no rotation having run.
	_, err = s.Resolve(ctx, c.Value, c.ValidUntil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveMapsToTheRightLecture(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	a, err := s.Active(ctx, 1, now)
	require.NoError(t, err)
	b, err := s.Active(ctx, 2, now)
	require.NoError(t, err)
	require.NotEqual(t, a.Value, b.Value, "live codes must be globally distinct")

	id, err := s.Resolve(ctx, a.Value, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	id, err = s.Resolve(ctx, b.Value, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)
}

func TestDropClearsCode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	c, err := s.Active(ctx, 1, now)
	require.NoError(t, err)

	require.NoError(t, s.Drop(ctx, 1))
	_, err = s.Resolve(ctx, c.Value, now)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentReadersSeeOneCode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	const readers = 32
	values := make([]string, readers)
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := s.Active(ctx, 7, now)
			if err == nil {
				values[i] = c.Value
			}
		}(i)
	}
	wg.Wait()

	for i := 1; i < readers; i++ {
		assert.Equal(t, values[0], values[i], "reader %d observed a different code", i)
	}
}

func TestCollisionEvictsExpiredHolder(t *testing.T) {
	// A one-digit generator collides constantly; with a single expired
	// holder the store must evict it rather than loop forever.
	s := NewMemoryStore(NewGenerator(1), 30*time.Second)
	ctx := context.Background()
	now := time.Now().UTC()

	for id := int64(1); id <= 5; id++ {
		_, err := s.Active(ctx, id, now)
		require.NoError(t, err)
	}

	later := now.Add(time.Minute)
	c, err := s.Active(ctx, 6, later)
	require.NoError(t, err)

	id, err := s.Resolve(ctx, c.Value, later)
	require.NoError(t, err)
	assert.Equal(t, int64(6), id)
}
