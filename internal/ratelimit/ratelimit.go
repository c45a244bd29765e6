// Package ratelimit enforces per-agent write throughput. Counters live in
// hour buckets in the store; a sliding check sums the current and previous
// buckets to approximate a one-hour window.
package ratelimit

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Action is the budget a write consumes. Top-level posts spend ActionPost;
// replies, votes and reports spend ActionComment.
type Action string

const (
	ActionPost    Action = "post"
	ActionComment Action = "comment"
)

const bucketSeconds = 3600

// sweepAge is how old a bucket must be before the sweeper drops it. The
// sliding check never reads past the previous bucket.
const sweepAge = 2 * time.Hour

// Limits is one tier of the level table.
type Limits struct {
	PostsPerHour    int
	CommentsPerHour int
}

// For returns the ceiling for one action type.
func (l Limits) For(action Action) int {
	if action == ActionPost {
		return l.PostsPerHour
	}
	return l.CommentsPerHour
}

// TierLimits maps an agent's level to its throughput tier. The top tier is
// a finite ceiling; no level unlocks unlimited writes.
func TierLimits(level int) Limits {
	switch {
	case level >= 31:
		return Limits{PostsPerHour: 4, CommentsPerHour: 60}
	case level >= 16:
		return Limits{PostsPerHour: 3, CommentsPerHour: 30}
	case level >= 6:
		return Limits{PostsPerHour: 2, CommentsPerHour: 15}
	default:
		return Limits{PostsPerHour: 1, CommentsPerHour: 5}
	}
}

// Status is one admission decision plus the metadata the rate-limit
// response headers expose.
type Status struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt is the next bucket boundary in epoch milliseconds.
	ResetAt int64
}

// CounterStore is the slice of the store the limiter consumes.
type CounterStore interface {
	WindowCounts(ctx context.Context, did, actionType string, currentStart, previousStart int64) (current, previous int, err error)
	RecordAction(ctx context.Context, did, actionType string, windowStart int64) error
	SweepWindowsBefore(ctx context.Context, cutoff int64) (int64, error)
}

// Limiter makes admission decisions. Check is read-only; Record is called
// only after the action succeeded. Under concurrency the limit may be
// briefly exceeded by the degree of concurrency minus one, which is
// accepted.
type Limiter struct {
	store CounterStore
	log   *logrus.Entry
	now   func() time.Time
}

// New builds a Limiter over the given counter store.
func New(store CounterStore, log *logrus.Entry) *Limiter {
	return &Limiter{store: store, log: log, now: time.Now}
}

func (l *Limiter) windowStart() int64 {
	return l.now().Unix() / bucketSeconds * bucketSeconds
}

// Check reports whether an agent at the given level may perform the action
// now. It never mutates the counters.
func (l *Limiter) Check(ctx context.Context, did string, level int, action Action) (Status, error) {
	start := l.windowStart()
	current, previous, err := l.store.WindowCounts(ctx, did, string(action), start, start-bucketSeconds)
	if err != nil {
		return Status{}, err
	}

	limit := TierLimits(level).For(action)
	used := current + previous
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}

	return Status{
		Allowed:   used < limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   (start + bucketSeconds) * 1000,
	}, nil
}

// Record charges one action against the current bucket.
func (l *Limiter) Record(ctx context.Context, did string, action Action) error {
	return l.store.RecordAction(ctx, did, string(action), l.windowStart())
}

// Sweep drops buckets older than two hours. Best-effort.
func (l *Limiter) Sweep(ctx context.Context) {
	cutoff := l.now().Add(-sweepAge).Unix()
	n, err := l.store.SweepWindowsBefore(ctx, cutoff)
	if err != nil {
		l.log.WithError(err).Warn("rate bucket sweep failed")
		return
	}
	if n > 0 {
		l.log.WithField("buckets", n).Debug("swept stale rate buckets")
	}
}

// RunSweeper sweeps on the given interval until ctx is cancelled.
func (l *Limiter) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}
