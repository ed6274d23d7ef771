package session

import "github.com/MJE43/coindle/internal/stats"

// State is a step of the daily attempt.
type State int

const (
	NotStarted State = iota
	AwaitingGuess
	Resolving
	Continuing
	Finalized
	// Unknown means the local record could not be read or written. No guesses are accepted.
	Unknown
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case AwaitingGuess:
		return "awaiting_guess"
	case Resolving:
		return "resolving"
	case Continuing:
		return "continuing"
	case Finalized:
		return "finalized"
	case Unknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// StatsStatus tracks the background submit or query for a finalized day.
type StatsStatus int

const (
	StatsNone StatsStatus = iota
	StatsPending
	StatsReady
	// StatsUnavailable covers network failures, timeouts and malformed responses.
	StatsUnavailable
	// StatsRejected means the server refused the submission.
	StatsRejected
)

func (s StatsStatus) String() string {
	switch s {
	case StatsNone:
		return "none"
	case StatsPending:
		return "pending"
	case StatsReady:
		return "ready"
	case StatsUnavailable:
		return "unavailable"
	case StatsRejected:
		return "rejected"
	default:
		return "invalid"
	}
}

// StatsView is what the UI shows under a finalized score.
type StatsView struct {
	Status   StatsStatus
	Snapshot stats.Snapshot
	// Err is set for StatsUnavailable and StatsRejected.
	Err error
}
