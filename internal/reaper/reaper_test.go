package reaper

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeUserReaper struct {
	calls   int
	cutoffs []time.Time
	err     error
}

func (f *fakeUserReaper) ReapInactiveAnonymous(ctx context.Context, cutoff time.Time) (int64, error) {
	f.calls++
	f.cutoffs = append(f.cutoffs, cutoff)
	if f.err != nil {
		return 0, f.err
	}
	return 3, nil
}

func TestRunOnceUsesMaxAgeCutoff(t *testing.T) {
	users := &fakeUserReaper{}
	r := New(users, 48*time.Hour, time.Hour)

	before := time.Now().Add(-48 * time.Hour)
	r.RunOnce(context.Background())
	after := time.Now().Add(-48 * time.Hour)

	if users.calls != 1 {
		t.Fatalf("calls = %d, want 1", users.calls)
	}
	cutoff := users.cutoffs[0]
	if cutoff.Before(before) || cutoff.After(after) {
		t.Errorf("cutoff = %v, want about 48h ago", cutoff)
	}
}

func TestRunOnceSurvivesStoreError(t *testing.T) {
	users := &fakeUserReaper{err: errors.New("db gone")}
	r := New(users, time.Hour, time.Hour)

	// Must not panic; the next tick retries.
	r.RunOnce(context.Background())
	if users.calls != 1 {
		t.Fatalf("calls = %d, want 1", users.calls)
	}
}

func TestNewDefaults(t *testing.T) {
	r := New(&fakeUserReaper{}, 0, 0)
	if r.maxAge != 24*time.Hour || r.interval != time.Hour {
		t.Fatalf("defaults = %v, %v", r.maxAge, r.interval)
	}
}
