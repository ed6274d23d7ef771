package stats

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MJE43/coindle/internal/calendar"
	"github.com/MJE43/coindle/internal/scoretoken"
)

const testSecret = "aggregator-secret"

func newTestAggregator(t *testing.T) (*Aggregator, *MemoryStore, *calendar.FixedClock) {
	t.Helper()
	clock := calendar.NewFixedClock(time.Date(2026, time.October, 17, 12, 0, 0, 0, time.UTC))
	store := NewMemoryStore()
	agg := NewAggregator(store, Config{Secret: testSecret, Clock: clock, GraceDays: 1})
	return agg, store, clock
}

func TestSubmitRecordsAndRanks(t *testing.T) {
	agg, _, clock := newTestAggregator(t)
	ctx := context.Background()
	today := calendar.Today(clock)

	for _, score := range []int{0, 2, 5} {
		if _, err := agg.Submit(ctx, scoretoken.NewSubmission(score, today, testSecret)); err != nil {
			t.Fatalf("Submit(%d): %v", score, err)
		}
	}

	snap, err := agg.Submit(ctx, scoretoken.NewSubmission(3, today, testSecret))
	if err != nil {
		t.Fatalf("Submit(3): %v", err)
	}

	if snap.TotalPlayers != 4 {
		t.Errorf("TotalPlayers = %d, want 4", snap.TotalPlayers)
	}
	if snap.TopScore != 5 {
		t.Errorf("TopScore = %d, want 5", snap.TopScore)
	}
	if snap.AverageScore != 2.5 {
		t.Errorf("AverageScore = %v, want 2.5", snap.AverageScore)
	}
	if snap.Percentile == nil || *snap.Percentile != 50 {
		t.Errorf("Percentile = %v, want 50", snap.Percentile)
	}
}

func TestSubmitTamperedScoreRejected(t *testing.T) {
	agg, store, clock := newTestAggregator(t)
	ctx := context.Background()
	today := calendar.Today(clock)

	if _, err := agg.Submit(ctx, scoretoken.NewSubmission(1, today, testSecret)); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	forged := scoretoken.NewSubmission(2, today, testSecret)
	forged.Score = 50

	_, err := agg.Submit(ctx, forged)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	buckets, _ := store.Distribution(ctx, today)
	dist := NewDistribution(buckets)
	if dist.Total() != 1 || dist.Top() != 1 {
		t.Errorf("distribution changed after rejected submission: %v", dist.Buckets())
	}
}

func TestSubmitWrongSecretRejected(t *testing.T) {
	agg, _, clock := newTestAggregator(t)

	_, err := agg.Submit(context.Background(), scoretoken.NewSubmission(4, calendar.Today(clock), "other"))
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestSubmitNegativeScore(t *testing.T) {
	agg, _, clock := newTestAggregator(t)

	_, err := agg.Submit(context.Background(), scoretoken.NewSubmission(-1, calendar.Today(clock), testSecret))
	if !errors.Is(err, ErrInvalidScore) {
		t.Fatalf("expected ErrInvalidScore, got %v", err)
	}
}

func TestSubmitDateWindow(t *testing.T) {
	agg, _, clock := newTestAggregator(t)
	ctx := context.Background()
	today := calendar.Today(clock)

	if _, err := agg.Submit(ctx, scoretoken.NewSubmission(1, today.AddDays(-1), testSecret)); err != nil {
		t.Errorf("yesterday within grace should be accepted: %v", err)
	}
	if _, err := agg.Submit(ctx, scoretoken.NewSubmission(1, today.AddDays(-2), testSecret)); !errors.Is(err, ErrDateOutOfRange) {
		t.Errorf("expected ErrDateOutOfRange for two days ago, got %v", err)
	}
	if _, err := agg.Submit(ctx, scoretoken.NewSubmission(1, today.AddDays(1), testSecret)); !errors.Is(err, ErrDateOutOfRange) {
		t.Errorf("expected ErrDateOutOfRange for tomorrow, got %v", err)
	}
}

func TestQueryEmptyAndBoundary(t *testing.T) {
	agg, _, clock := newTestAggregator(t)
	ctx := context.Background()

	snap, err := agg.Query(ctx, 0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if snap.Percentile != nil {
		t.Fatalf("expected nil percentile on empty day, got %d", *snap.Percentile)
	}

	if _, err := agg.Submit(ctx, scoretoken.NewSubmission(0, calendar.Today(clock), testSecret)); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	snap, err = agg.Query(ctx, 0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if snap.Percentile == nil || *snap.Percentile != 0 {
		t.Fatalf("expected percentile 0 for lowest score, got %v", snap.Percentile)
	}
}

func TestQueryIdempotent(t *testing.T) {
	agg, _, clock := newTestAggregator(t)
	ctx := context.Background()
	today := calendar.Today(clock)

	for _, score := range []int{1, 4, 4, 7} {
		if _, err := agg.Submit(ctx, scoretoken.NewSubmission(score, today, testSecret)); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	first, err := agg.Query(ctx, 4)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	second, err := agg.Query(ctx, 4)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	if *first.Percentile != *second.Percentile || first.TotalPlayers != second.TotalPlayers {
		t.Errorf("queries differ: %+v vs %+v", first, second)
	}
	if *first.Percentile != 25 {
		t.Errorf("Percentile = %d, want 25", *first.Percentile)
	}
}

func TestSubmitAndQueryAgree(t *testing.T) {
	agg, _, clock := newTestAggregator(t)
	ctx := context.Background()
	today := calendar.Today(clock)

	for _, score := range []int{0, 1, 2} {
		agg.Submit(ctx, scoretoken.NewSubmission(score, today, testSecret))
	}
	submitted, err := agg.Submit(ctx, scoretoken.NewSubmission(2, today, testSecret))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	queried, err := agg.Query(ctx, 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	if *submitted.Percentile != *queried.Percentile {
		t.Errorf("submit percentile %d != query percentile %d", *submitted.Percentile, *queried.Percentile)
	}
}

func TestDaysAreIndependentAndPruned(t *testing.T) {
	agg, store, clock := newTestAggregator(t)
	ctx := context.Background()
	day1 := calendar.Today(clock)

	if _, err := agg.Submit(ctx, scoretoken.NewSubmission(9, day1, testSecret)); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	clock.Set(clock.Now().Add(24 * time.Hour))
	snap, err := agg.Query(ctx, 9)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if snap.TotalPlayers != 0 || snap.Percentile != nil {
		t.Errorf("new day should start empty, got %+v", snap)
	}

	// Two days later day1 falls out of the grace window and is pruned.
	clock.Set(clock.Now().Add(24 * time.Hour))
	if _, err := agg.Query(ctx, 0); err != nil {
		t.Fatalf("Query: %v", err)
	}
	buckets, _ := store.Distribution(ctx, day1)
	if len(buckets) != 0 {
		t.Errorf("expected day1 pruned, got %v", buckets)
	}
}

func TestSummaryPrunesAfterRollover(t *testing.T) {
	agg, store, clock := newTestAggregator(t)
	ctx := context.Background()
	day1 := calendar.Today(clock)

	if _, err := agg.Submit(ctx, scoretoken.NewSubmission(4, day1, testSecret)); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	clock.Set(clock.Now().Add(48 * time.Hour))
	summary, err := agg.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.TotalPlayers != 0 || summary.Percentile != nil {
		t.Errorf("new day should start empty, got %+v", summary)
	}
	buckets, _ := store.Distribution(ctx, day1)
	if len(buckets) != 0 {
		t.Errorf("expected day1 pruned by Summary, got %v", buckets)
	}
}

func TestListenerReceivesSummary(t *testing.T) {
	agg, _, clock := newTestAggregator(t)
	today := calendar.Today(clock)

	var got []Snapshot
	agg.OnSubmit(func(day calendar.Day, s Snapshot) {
		if day != today {
			t.Errorf("listener day = %v, want %v", day, today)
		}
		got = append(got, s)
	})

	agg.Submit(context.Background(), scoretoken.NewSubmission(3, today, testSecret))
	agg.Submit(context.Background(), scoretoken.NewSubmission(3, today, "wrong"))

	if len(got) != 1 {
		t.Fatalf("listener called %d times, want 1", len(got))
	}
	if got[0].TotalPlayers != 1 || got[0].Percentile != nil {
		t.Errorf("unexpected summary %+v", got[0])
	}
}

func TestConcurrentSubmitsAreAllCounted(t *testing.T) {
	agg, _, clock := newTestAggregator(t)
	ctx := context.Background()
	today := calendar.Today(clock)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(score int) {
			defer wg.Done()
			if _, err := agg.Submit(ctx, scoretoken.NewSubmission(score%7, today, testSecret)); err != nil {
				t.Errorf("Submit: %v", err)
			}
			if _, err := agg.Query(ctx, score%7); err != nil {
				t.Errorf("Query: %v", err)
			}
		}(i)
	}
	wg.Wait()

	summary, err := agg.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.TotalPlayers != n {
		t.Errorf("TotalPlayers = %d, want %d", summary.TotalPlayers, n)
	}
}
