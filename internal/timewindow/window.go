// Package timewindow resolves a range granularity and period offset into a half-open time window.
package timewindow

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Granularity is the size of one chart period.
type Granularity string

const (
	Day         Granularity = "day"
	Week        Granularity = "week"
	Month       Granularity = "month"
	TwoMonths   Granularity = "2months"
	ThreeMonths Granularity = "3months"
)

const day = 24 * time.Hour

var (
	// ErrInvalidGranularity is returned for a granularity outside the supported set.
	ErrInvalidGranularity = errors.New("invalid range granularity")
	// ErrFutureOffset is returned for offsets pointing past the current period.
	ErrFutureOffset = errors.New("period offset points into the future")
	// ErrOffsetOutOfRange is returned for offsets further back than MinOffset.
	ErrOffsetOutOfRange = errors.New("period offset out of range")
)

// MinOffset is the furthest back any granularity can be resolved.
const MinOffset = -100_000

// Granularities lists the supported granularities, shortest first.
var Granularities = []Granularity{Day, Week, Month, TwoMonths, ThreeMonths}

// ParseGranularity converts user input into a Granularity.
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "day", "1d":
		return Day, nil
	case "week", "1w", "7d":
		return Week, nil
	case "month", "1m":
		return Month, nil
	case "2months", "2m":
		return TwoMonths, nil
	case "3months", "3m":
		return ThreeMonths, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidGranularity, s)
}

// Valid reports whether g is one of the supported granularities.
func (g Granularity) Valid() bool {
	_, ok := g.months()
	return ok || g == Day || g == Week
}

// months returns the number of calendar months spanned by a month-based granularity.
func (g Granularity) months() (int, bool) {
	switch g {
	case Month:
		return 1, true
	case TwoMonths:
		return 2, true
	case ThreeMonths:
		return 3, true
	}
	return 0, false
}

// Window is the half-open interval [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Duration returns End - Start.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// String formats the window for logs and CLI output.
func (w Window) String() string {
	return w.Start.Format(time.RFC3339) + " - " + w.End.Format(time.RFC3339)
}

// Resolve computes the window for the period offset periods back from the one containing now.
// Calendar dates are taken in now's location. Day and Week windows start at local
// midnight and their last day spans exactly 24h.
func Resolve(g Granularity, offset int, now time.Time) (Window, error) {
	if offset > 0 {
		return Window{}, fmt.Errorf("%w: %d", ErrFutureOffset, offset)
	}
	if offset < MinOffset {
		return Window{}, fmt.Errorf("%w: %d", ErrOffsetOutOfRange, offset)
	}

	y, m, d := now.Date()
	loc := now.Location()

	switch g {
	case Day:
		start := time.Date(y, m, d+offset, 0, 0, 0, 0, loc)
		return Window{Start: start, End: start.Add(day)}, nil
	case Week:
		lastDay := time.Date(y, m, d+7*offset, 0, 0, 0, 0, loc)
		start := time.Date(y, m, d+7*offset-6, 0, 0, 0, 0, loc)
		return Window{Start: start, End: lastDay.Add(day)}, nil
	}

	k, ok := g.months()
	if !ok {
		return Window{}, fmt.Errorf("%w: %q", ErrInvalidGranularity, g)
	}

	// time.Date normalises month overflow in both directions, rolling the year.
	month := now.Month() + time.Month(k*offset)
	start := time.Date(now.Year(), month, 1, 0, 0, 0, 0, now.Location())
	end := time.Date(now.Year(), month+time.Month(k), 1, 0, 0, 0, 0, now.Location())
	return Window{Start: start, End: end}, nil
}
