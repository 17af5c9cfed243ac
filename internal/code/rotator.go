package code

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleSource is the slice of scheduling data the rotator needs.
type ScheduleSource interface {
	ActiveIDs(ctx context.Context, now time.Time) ([]int64, error)
	EndedBetween(ctx context.Context, from, to time.Time) ([]int64, error)
}

// Rotator keeps codes fresh for active lectures and drops them when a
// lecture's window closes. The lazy expiry check inside the Store is the
// correctness guard; the sweeper only keeps instructor polling cheap and
// frees entries for ended lectures.
type Rotator struct {
	store    Store
	sched    ScheduleSource
	interval time.Duration
	cron     *cron.Cron
}

// NewRotator creates a rotator sweeping at the code rotation interval.
func NewRotator(store Store, sched ScheduleSource, interval time.Duration) *Rotator {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Rotator{store: store, sched: sched, interval: interval}
}

// Start schedules the sweep.
func (r *Rotator) Start() error {
	r.cron = cron.New()
	if _, err := r.cron.AddFunc("@every "+r.interval.String(), r.Sweep); err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop halts the sweep; in-flight runs complete.
func (r *Rotator) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// Sweep runs one rotation pass.
func (r *Rotator) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), r.interval)
	defer cancel()
	now := time.Now().UTC()

	active, err := r.sched.ActiveIDs(ctx, now)
	if err != nil {
		log.Printf("rotator: list active lectures: %v", err)
		return
	}
	for _, id := range active {
		if _, err := r.store.Active(ctx, id, now); err != nil {
			log.Printf("rotator: rotate lecture %d: %v", id, err)
		}
	}

	ended, err := r.sched.EndedBetween(ctx, now.Add(-2*r.interval), now)
	if err != nil {
		log.Printf("rotator: list ended lectures: %v", err)
		return
	}
	for _, id := range ended {
		if err := r.store.Drop(ctx, id); err != nil {
			log.Printf("rotator: drop lecture %d: %v", id, err)
		}
	}
}
