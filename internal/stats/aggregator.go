package stats

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/MJE43/coindle/internal/calendar"
	"github.com/MJE43/coindle/internal/scoretoken"
)

var (
	// ErrInvalidToken means the token does not authenticate the claimed score and date.
	ErrInvalidToken = errors.New("stats: invalid score token")
	// ErrInvalidScore means the score is negative.
	ErrInvalidScore = errors.New("stats: score must be non-negative")
	// ErrDateOutOfRange means the submission is for a future day or a day past the grace window.
	ErrDateOutOfRange = errors.New("stats: submission date outside accepted window")
)

// Listener observes every accepted submission with the day's updated summary.
type Listener func(day calendar.Day, summary Snapshot)

// Config controls an Aggregator.
type Config struct {
	// Secret must equal the client's token secret, or every submission is rejected.
	Secret string
	// Clock defaults to the system clock.
	Clock calendar.Clock
	// GraceDays lets a submission carry a date up to this many days before today, so an
	// attempt finished just before midnight is still counted.
	GraceDays int
	Logger    *log.Logger
}

// Aggregator serializes writes to the per-day distribution. Submit holds the write lock
// across record and read-back, so a concurrent Query never sees a partial update.
type Aggregator struct {
	store     Store
	secret    string
	clock     calendar.Clock
	graceDays int
	logger    *log.Logger

	mu        sync.RWMutex
	day       calendar.Day
	listeners []Listener
}

// NewAggregator creates an aggregator over store.
func NewAggregator(store Store, cfg Config) *Aggregator {
	clock := cfg.Clock
	if clock == nil {
		clock = calendar.SystemClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	grace := cfg.GraceDays
	if grace < 0 {
		grace = 0
	}

	return &Aggregator{
		store:     store,
		secret:    cfg.Secret,
		clock:     clock,
		graceDays: grace,
		logger:    logger,
	}
}

// OnSubmit registers l to run after each accepted submission.
func (a *Aggregator) OnSubmit(l Listener) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, l)
}

// Today returns the aggregator's current UTC day.
func (a *Aggregator) Today() calendar.Day {
	return calendar.Today(a.clock)
}

// Submit verifies sub and records its score. The returned snapshot covers every score for
// sub.Date, ranked against sub.Score. Rejected submissions change nothing.
func (a *Aggregator) Submit(ctx context.Context, sub scoretoken.Submission) (Snapshot, error) {
	if sub.Score < 0 {
		return Snapshot{}, ErrInvalidScore
	}
	if !sub.Valid(a.secret) {
		a.logger.Printf("submission_rejected reason=invalid_token day=%s score=%d", sub.Date, sub.Score)
		return Snapshot{}, ErrInvalidToken
	}

	today := a.Today()
	if sub.Date.After(today) || sub.Date.Before(today.AddDays(-a.graceDays)) {
		a.logger.Printf("submission_rejected reason=date_out_of_range day=%s today=%s score=%d", sub.Date, today, sub.Score)
		return Snapshot{}, ErrDateOutOfRange
	}

	a.mu.Lock()
	a.rollover(ctx, today)

	if err := a.store.Record(ctx, sub.Date, sub.Score); err != nil {
		a.mu.Unlock()
		return Snapshot{}, fmt.Errorf("stats: record score: %w", err)
	}
	buckets, err := a.store.Distribution(ctx, sub.Date)
	if err != nil {
		a.mu.Unlock()
		return Snapshot{}, fmt.Errorf("stats: read distribution: %w", err)
	}
	listeners := append([]Listener(nil), a.listeners...)
	a.mu.Unlock()

	dist := NewDistribution(buckets)
	a.logger.Printf("score_recorded day=%s score=%d total=%d", sub.Date, sub.Score, dist.Total())

	for _, l := range listeners {
		l(sub.Date, dist.Summary())
	}
	return dist.Snapshot(sub.Score), nil
}

// Query ranks score against today's distribution without recording anything.
func (a *Aggregator) Query(ctx context.Context, score int) (Snapshot, error) {
	if score < 0 {
		return Snapshot{}, ErrInvalidScore
	}

	today := a.Today()
	a.catchUp(ctx, today)

	a.mu.RLock()
	defer a.mu.RUnlock()

	buckets, err := a.store.Distribution(ctx, today)
	if err != nil {
		return Snapshot{}, fmt.Errorf("stats: read distribution: %w", err)
	}
	return NewDistribution(buckets).Snapshot(score), nil
}

// Summary returns today's snapshot without a percentile.
func (a *Aggregator) Summary(ctx context.Context) (Snapshot, error) {
	today := a.Today()
	a.catchUp(ctx, today)

	a.mu.RLock()
	defer a.mu.RUnlock()

	buckets, err := a.store.Distribution(ctx, today)
	if err != nil {
		return Snapshot{}, fmt.Errorf("stats: read distribution: %w", err)
	}
	return NewDistribution(buckets).Summary(), nil
}

// catchUp runs rollover for read paths that find the aggregator still on an earlier day.
func (a *Aggregator) catchUp(ctx context.Context, today calendar.Day) {
	a.mu.RLock()
	stale := a.day != today
	a.mu.RUnlock()
	if stale {
		a.mu.Lock()
		a.rollover(ctx, today)
		a.mu.Unlock()
	}
}

// rollover drops days that can no longer receive submissions. Caller holds the write lock.
func (a *Aggregator) rollover(ctx context.Context, today calendar.Day) {
	if a.day == today {
		return
	}

	keep := today.AddDays(-a.graceDays)
	removed, err := a.store.Prune(ctx, keep)
	if err != nil {
		// Stale days are never read, so a failed prune only costs space.
		a.logger.Printf("prune_failed before=%s error=%q", keep, err)
	} else if removed > 0 {
		a.logger.Printf("days_pruned before=%s scores=%d", keep, removed)
	}
	a.day = today
}
