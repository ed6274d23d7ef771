// Package scoretoken authenticates a (score, date) pair with a shared secret.
//
// The token is HMAC-SHA256(secret, "<score>:<YYYY-M-D>") in lowercase hex. The colon keeps
// score=1/date=23 and score=12/date=3 apart. Tokens carry no nonce and no expiry: a valid
// triple stays valid for its date indefinitely.
package scoretoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/MJE43/coindle/internal/calendar"
)

// Message returns the exact bytes that are authenticated.
func Message(score int, day calendar.Day) string {
	return strconv.Itoa(score) + ":" + day.String()
}

// Generate derives the token for score on day.
func Generate(score int, day calendar.Day, secret string) string {
	return hex.EncodeToString(sum(score, day, secret))
}

// Verify recomputes the token and compares it in constant time.
func Verify(score int, day calendar.Day, token, secret string) bool {
	got, err := hex.DecodeString(token)
	if err != nil {
		return false
	}
	return hmac.Equal(got, sum(score, day, secret))
}

func sum(score int, day calendar.Day, secret string) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(Message(score, day)))
	return h.Sum(nil)
}

// Submission is a finished day's claim. Build it with NewSubmission; it is passed by value.
type Submission struct {
	Score int
	Date  calendar.Day
	Token string
}

// NewSubmission signs score for day.
func NewSubmission(score int, day calendar.Day, secret string) Submission {
	return Submission{
		Score: score,
		Date:  day,
		Token: Generate(score, day, secret),
	}
}

// Valid reports whether the submission's token matches under secret.
func (s Submission) Valid(secret string) bool {
	return Verify(s.Score, s.Date, s.Token, secret)
}
