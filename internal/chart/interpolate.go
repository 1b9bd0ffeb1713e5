// Package chart aligns glucose, meal and treatment events onto one timeline and
// serves windowed chart data to the presentation layer.
package chart

import (
	"cmp"
	"slices"
	"sort"
	"time"

	"github.com/Cristi184/diabetDashApp-sub000/internal/domain"
)

// SortReadings sorts readings by timestamp ascending, breaking ties by ID.
func SortReadings(readings []domain.GlucoseReading) {
	slices.SortStableFunc(readings, func(a, b domain.GlucoseReading) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// Interpolate derives a glucose value at t from the bracketing readings.
// It returns false when there is no reading to anchor the value. The input is not modified.
func Interpolate(t time.Time, readings []domain.GlucoseReading) (float64, bool) {
	sorted := slices.Clone(readings)
	SortReadings(sorted)
	return interpolateSorted(t, sorted)
}

// interpolateSorted expects readings ordered by SortReadings.
func interpolateSorted(t time.Time, readings []domain.GlucoseReading) (float64, bool) {
	if len(readings) == 0 {
		return 0, false
	}

	// First reading at or after t.
	i := sort.Search(len(readings), func(i int) bool {
		return !readings[i].Timestamp.Before(t)
	})
	// First reading strictly after t; the one before it is the latest at or before t.
	j := sort.Search(len(readings), func(i int) bool {
		return readings[i].Timestamp.After(t)
	})

	hasAfter := i < len(readings)
	hasBefore := j > 0

	switch {
	case hasBefore && hasAfter:
		before, after := readings[j-1], readings[i]
		span := after.Timestamp.Sub(before.Timestamp)
		if span <= 0 {
			return before.Value, true
		}
		ratio := float64(t.Sub(before.Timestamp)) / float64(span)
		return before.Value + ratio*(after.Value-before.Value), true
	case hasBefore:
		return readings[j-1].Value, true
	case hasAfter:
		return readings[i].Value, true
	}
	return 0, false
}
