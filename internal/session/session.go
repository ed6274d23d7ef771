// Package session runs one player's daily coin-flip attempt.
//
// The session is an explicit state machine driven by discrete events. Guess draws the
// outcome, Reveal marks it as shown, Resolve applies win or loss, and Continue starts the
// next round after a win. Pacing between events belongs to the caller.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/MJE43/coindle/internal/calendar"
	"github.com/MJE43/coindle/internal/engine"
	"github.com/MJE43/coindle/internal/record"
	"github.com/MJE43/coindle/internal/scoretoken"
	"github.com/MJE43/coindle/internal/stats"
)

var (
	// ErrNotResolving is returned by Reveal and Resolve outside the Resolving state.
	ErrNotResolving = errors.New("session: no guess is being resolved")
	// ErrNotRevealed is returned by Resolve before Reveal.
	ErrNotRevealed = errors.New("session: outcome not revealed yet")
	// ErrNotContinuing is returned by Continue outside the Continuing state.
	ErrNotContinuing = errors.New("session: no round to continue")
	// ErrStateUnknown is returned when the local record could not be read or written.
	ErrStateUnknown = errors.New("session: play state unknown")
)

// RecordStore loads and saves the day's DailyPlayRecord.
type RecordStore interface {
	Load(ctx context.Context) (record.DailyPlayRecord, bool, error)
	Save(ctx context.Context, rec record.DailyPlayRecord) error
}

// Reporter submits finished scores and queries stats.
type Reporter interface {
	SubmitScore(ctx context.Context, sub scoretoken.Submission) (stats.Snapshot, error)
	Stats(ctx context.Context, score int) (stats.Snapshot, error)
}

// Config wires a Session.
type Config struct {
	Records  RecordStore
	Reporter Reporter
	Flipper  engine.Flipper
	Clock    calendar.Clock
	// Secret signs the final score. It must match the server's secret.
	Secret string
	// Timeout bounds each background call. Defaults to 10 seconds.
	Timeout time.Duration
	// OnStats, if set, is called from the background goroutine whenever the stats view changes.
	OnStats func(StatsView)
	Logger  *log.Logger
}

// Result describes an applied resolution.
type Result struct {
	Guess   engine.Side
	Outcome engine.Side
	Won     bool
	// Streak is the streak after the resolution. On a loss it is the final score.
	Streak int
}

// View is a consistent copy of the session for rendering.
type View struct {
	State  State
	Day    calendar.Day
	Streak int
	Stats  StatsView
	// Replayed is true when the day was already finished before Load.
	Replayed bool
}

// Session is one player's attempt for the current UTC day. It is safe for concurrent use;
// events are serialized by its mutex.
type Session struct {
	records  RecordStore
	reporter Reporter
	flipper  engine.Flipper
	clock    calendar.Clock
	secret   string
	timeout  time.Duration
	onStats  func(StatsView)
	logger   *log.Logger

	mu       sync.Mutex
	state    State
	day      calendar.Day
	streak   int
	guess    engine.Side
	outcome  engine.Side
	revealed bool
	replayed bool
	// saveFailed marks a loss on s.day that could not be recorded. The day stays locked.
	saveFailed bool
	stats      StatsView
	// gen invalidates background results that belong to an earlier day.
	gen uint64

	bg       context.Context
	cancelBg context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a session in NotStarted. Records and Flipper are required.
func New(cfg Config) (*Session, error) {
	if cfg.Records == nil {
		return nil, fmt.Errorf("session: record store is required")
	}
	if cfg.Flipper == nil {
		return nil, fmt.Errorf("session: flipper is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = calendar.SystemClock{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}

	bg, cancel := context.WithCancel(context.Background())
	return &Session{
		records:  cfg.Records,
		reporter: cfg.Reporter,
		flipper:  cfg.Flipper,
		clock:    cfg.Clock,
		secret:   cfg.Secret,
		timeout:  cfg.Timeout,
		onStats:  cfg.OnStats,
		logger:   cfg.Logger,
		bg:       bg,
		cancelBg: cancel,
	}, nil
}

// Load reads the stored record for today. A record dated today finalizes the session with its
// score and starts a background stats query; anything else starts a fresh attempt with streak 0.
// A read failure leaves the session in Unknown and returns an error wrapping ErrStateUnknown.
// Load is a no-op once the session has left NotStarted.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.state != NotStarted {
		s.mu.Unlock()
		return nil
	}
	err := s.loadLocked(ctx)
	notify, view := s.startQueryLocked()
	s.mu.Unlock()

	if notify {
		s.emit(view)
	}
	return err
}

func (s *Session) loadLocked(ctx context.Context) error {
	today := calendar.Today(s.clock)
	s.day = today
	s.streak = 0
	s.guess, s.outcome, s.revealed, s.replayed = "", "", false, false
	s.saveFailed = false
	s.stats = StatsView{}

	rec, ok, err := s.records.Load(ctx)
	if err != nil {
		s.state = Unknown
		s.logger.Printf("record_load_failed day=%s error=%q", today, err)
		return fmt.Errorf("%w: %v", ErrStateUnknown, err)
	}

	if ok && rec.IsFor(today) {
		s.state = Finalized
		s.streak = rec.Score
		s.replayed = true
		s.logger.Printf("session_replayed day=%s score=%d", today, rec.Score)
		return nil
	}

	s.state = AwaitingGuess
	s.logger.Printf("session_started day=%s", today)
	return nil
}

// startQueryLocked kicks off the stats query for a replayed day. Caller holds the lock.
func (s *Session) startQueryLocked() (bool, StatsView) {
	if s.state != Finalized || !s.replayed {
		return false, StatsView{}
	}
	if s.reporter == nil {
		s.stats = StatsView{Status: StatsUnavailable, Err: errors.New("session: no stats reporter")}
		return true, s.stats
	}

	s.stats = StatsView{Status: StatsPending}
	gen, score := s.gen, s.streak
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.bg, s.timeout)
		defer cancel()
		snap, err := s.reporter.Stats(ctx, score)
		s.finishStats(gen, snap, err)
	}()
	return true, s.stats
}

// Guess accepts side only while awaiting a guess and draws the outcome. It reports whether
// the guess was accepted; in any other state it does nothing.
func (s *Session) Guess(side engine.Side) bool {
	if !side.Valid() {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != AwaitingGuess {
		return false
	}
	s.guess = side
	s.outcome = s.flipper.Flip()
	s.revealed = false
	s.state = Resolving
	return true
}

// Reveal marks the drawn outcome as shown and returns it.
func (s *Session) Reveal() (engine.Side, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Resolving {
		return "", ErrNotResolving
	}
	s.revealed = true
	return s.outcome, nil
}

// Resolve applies the revealed outcome. A win moves to Continuing with the streak raised by
// one. A loss saves today's record with the current streak as the score and submits it in the
// background. If the save fails the session moves to Unknown and nothing is submitted.
func (s *Session) Resolve(ctx context.Context) (Result, error) {
	s.mu.Lock()

	if s.state != Resolving {
		s.mu.Unlock()
		return Result{}, ErrNotResolving
	}
	if !s.revealed {
		s.mu.Unlock()
		return Result{}, ErrNotRevealed
	}

	res := Result{Guess: s.guess, Outcome: s.outcome, Won: s.guess == s.outcome}
	s.guess, s.outcome, s.revealed = "", "", false

	if res.Won {
		s.streak++
		s.state = Continuing
		res.Streak = s.streak
		s.mu.Unlock()
		return res, nil
	}

	res.Streak = s.streak
	if err := s.records.Save(ctx, record.New(s.day, s.streak)); err != nil {
		s.state = Unknown
		s.saveFailed = true
		s.logger.Printf("record_save_failed day=%s score=%d error=%q", s.day, s.streak, err)
		s.mu.Unlock()
		return res, fmt.Errorf("%w: %v", ErrStateUnknown, err)
	}
	s.state = Finalized
	s.logger.Printf("session_finalized day=%s score=%d", s.day, s.streak)

	view := s.startSubmitLocked(scoretoken.NewSubmission(s.streak, s.day, s.secret))
	s.mu.Unlock()

	s.emit(view)
	return res, nil
}

func (s *Session) startSubmitLocked(sub scoretoken.Submission) StatsView {
	if s.reporter == nil {
		s.stats = StatsView{Status: StatsUnavailable, Err: errors.New("session: no stats reporter")}
		return s.stats
	}

	s.stats = StatsView{Status: StatsPending}
	gen := s.gen
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.bg, s.timeout)
		defer cancel()
		snap, err := s.reporter.SubmitScore(ctx, sub)
		s.finishStats(gen, snap, err)
	}()
	return s.stats
}

// Continue starts the next round after a win.
func (s *Session) Continue() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Continuing {
		return ErrNotContinuing
	}
	s.state = AwaitingGuess
	return nil
}

// Refresh starts over if the clock has moved to a later UTC day than the session's. It
// reports whether a reset happened. A session in Unknown after a failed load retries the load
// at once; after a failed save it stays locked until the next UTC day.
func (s *Session) Refresh(ctx context.Context) (bool, error) {
	s.mu.Lock()
	today := calendar.Today(s.clock)
	newDay := s.state != NotStarted && today.After(s.day)
	retryLoad := s.state == Unknown && !s.saveFailed
	if !newDay && !retryLoad {
		s.mu.Unlock()
		return false, nil
	}

	s.gen++
	s.state = NotStarted
	err := s.loadLocked(ctx)
	notify, view := s.startQueryLocked()
	s.mu.Unlock()

	if notify {
		s.emit(view)
	}
	return true, err
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// View returns a copy of the session for rendering.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		State:    s.state,
		Day:      s.day,
		Streak:   s.streak,
		Stats:    s.stats,
		Replayed: s.replayed,
	}
}

// ShareText returns the text players paste to share a finished day, or "" before that.
func (s *Session) ShareText() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Finalized {
		return ""
	}
	return fmt.Sprintf("🪙 Coindle %s\nStreak: %d 🎯\n\nPlay at Coindle!", s.day, s.streak)
}

// Wait blocks until background calls have finished.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Close cancels background calls and waits for them.
func (s *Session) Close() {
	s.cancelBg()
	s.wg.Wait()
}

func (s *Session) finishStats(gen uint64, snap stats.Snapshot, err error) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}

	switch {
	case err == nil:
		s.stats = StatsView{Status: StatsReady, Snapshot: snap}
	case isRejection(err):
		s.stats = StatsView{Status: StatsRejected, Err: err}
		s.logger.Printf("score_rejected day=%s score=%d error=%q", s.day, s.streak, err)
	default:
		s.stats = StatsView{Status: StatsUnavailable, Err: err}
		s.logger.Printf("stats_unavailable day=%s score=%d error=%q", s.day, s.streak, err)
	}
	view := s.stats
	s.mu.Unlock()

	s.emit(view)
}

func (s *Session) emit(view StatsView) {
	if s.onStats != nil {
		s.onStats(view)
	}
}

// isRejection reports whether err is a refusal of the submission itself rather than a
// transport problem.
func isRejection(err error) bool {
	if errors.Is(err, stats.ErrInvalidToken) || errors.Is(err, stats.ErrDateOutOfRange) {
		return true
	}
	var r interface{ Rejected() bool }
	return errors.As(err, &r) && r.Rejected()
}
