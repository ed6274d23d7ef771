// Package calendar provides the UTC calendar day used as the one-attempt-per-day boundary.
package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Day is a UTC calendar date without a time-of-day component.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

// Clock supplies the current instant. Business logic never reads the system clock directly.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant. Set can move it, which is how tests cross a
// day boundary.
type FixedClock struct {
	t time.Time
}

// NewFixedClock creates a clock pinned at t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{t: t}
}

func (c *FixedClock) Now() time.Time { return c.t }

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) { c.t = t }

// FromTime returns the UTC calendar day containing t.
func FromTime(t time.Time) Day {
	y, m, d := t.UTC().Date()
	return Day{Year: y, Month: m, Day: d}
}

// Today returns the current UTC day according to clock.
func Today(clock Clock) Day {
	return FromTime(clock.Now())
}

// Parse reads the wire form "YYYY-M-D". Zero padded months and days are accepted too.
func Parse(s string) (Day, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 3 {
		return Day{}, fmt.Errorf("calendar: invalid date %q", s)
	}

	nums := [3]int{}
	for i, p := range parts {
		if !isDigits(p) {
			return Day{}, fmt.Errorf("calendar: invalid date %q", s)
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Day{}, fmt.Errorf("calendar: invalid date %q", s)
		}
		nums[i] = n
	}

	d := Day{Year: nums[0], Month: time.Month(nums[1]), Day: nums[2]}
	// Round-trip through time.Date to reject things like 2026-2-30.
	if !d.Valid() || FromTime(d.Time()) != d {
		return Day{}, fmt.Errorf("calendar: invalid date %q", s)
	}
	return d, nil
}

// Valid reports whether the fields are in range.
func (d Day) Valid() bool {
	return d.Year > 0 && d.Month >= time.January && d.Month <= time.December && d.Day >= 1 && d.Day <= 31
}

// IsZero reports whether d is the zero Day.
func (d Day) IsZero() bool {
	return d == Day{}
}

// String returns the wire form without zero padding, e.g. "2026-1-5".
func (d Day) String() string {
	return fmt.Sprintf("%d-%d-%d", d.Year, int(d.Month), d.Day)
}

// ISO returns the sortable "2006-01-02" form used as a storage key.
func (d Day) ISO() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Time returns midnight UTC at the start of d.
func (d Day) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// AddDays returns the day n days after d (n may be negative).
func (d Day) AddDays(n int) Day {
	return FromTime(d.Time().AddDate(0, 0, n))
}

// Before reports whether d is strictly earlier than other.
func (d Day) Before(other Day) bool {
	return d.Time().Before(other.Time())
}

// After reports whether d is strictly later than other.
func (d Day) After(other Day) bool {
	return d.Time().After(other.Time())
}

// isDigits reports whether p is non-empty and only ASCII digits. strconv.Atoi alone would
// accept a sign.
func isDigits(p string) bool {
	if p == "" {
		return false
	}
	for i := 0; i < len(p); i++ {
		if p[i] < '0' || p[i] > '9' {
			return false
		}
	}
	return true
}
