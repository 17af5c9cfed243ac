package code

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSchedule struct {
	active []int64
	ended  []int64
}

func (f *fakeSchedule) ActiveIDs(context.Context, time.Time) ([]int64, error) {
	return f.active, nil
}

func (f *fakeSchedule) EndedBetween(context.Context, time.Time, time.Time) ([]int64, error) {
	return f.ended, nil
}

func TestSweepIssuesForActiveAndDropsEnded(t *testing.T) {
	store := NewMemoryStore(NewGenerator(4), 30*time.Second)
	ctx := context.Background()
	now := time.Now().UTC()

	// Lecture 9 just ended with a code still installed.
	stale, err := store.Active(ctx, 9, now)
	require.NoError(t, err)

	sched := &fakeSchedule{active: []int64{1, 2}, ended: []int64{9}}
	NewRotator(store, sched, 30*time.Second).Sweep()

	for _, id := range sched.active {
		c, err := store.Active(ctx, id, time.Now().UTC())
		require.NoError(t, err)
		assert.Equal(t, id, c.LectureID)
	}

	_, err = store.Resolve(ctx, stale.Value, now)
	assert.ErrorIs(t, err, ErrNotFound)
}
