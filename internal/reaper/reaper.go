// Package reaper removes stale anonymous accounts in the background.
// Anonymous users exist so version authorship always has a referent;
// the ones that never contributed anything are garbage after a while.
package reaper

import (
	"context"
	"log"
	"time"
)

// UserReaper is the slice of the user store the reaper needs.
type UserReaper interface {
	ReapInactiveAnonymous(ctx context.Context, cutoff time.Time) (int64, error)
}

type Reaper struct {
	users    UserReaper
	maxAge   time.Duration
	interval time.Duration
}

func New(users UserReaper, maxAge, interval time.Duration) *Reaper {
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Reaper{users: users, maxAge: maxAge, interval: interval}
}

// Run sweeps on the configured interval until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep. Failures are logged, never fatal;
// the next tick tries again.
func (r *Reaper) RunOnce(ctx context.Context) {
	cutoff := time.Now().Add(-r.maxAge)
	deleted, err := r.users.ReapInactiveAnonymous(ctx, cutoff)
	if err != nil {
		log.Printf("reaper: sweep failed: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("reaper: removed %d inactive anonymous users", deleted)
	}
}
