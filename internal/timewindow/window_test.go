package timewindow

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseGranularity(t *testing.T) {
	tests := []struct {
		input    string
		expected Granularity
	}{
		{"day", Day},
		{"Week", Week},
		{" month ", Month},
		{"2months", TwoMonths},
		{"3m", ThreeMonths},
	}

	for _, tt := range tests {
		g, err := ParseGranularity(tt.input)
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.expected, g)
		assert.True(t, g.Valid())
	}

	_, err := ParseGranularity("year")
	assert.ErrorIs(t, err, ErrInvalidGranularity)
	assert.False(t, Granularity("year").Valid())
}

func TestResolve(t *testing.T) {
	// Wednesday afternoon.
	now := time.Date(2024, 3, 6, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		name   string
		g      Granularity
		offset int
		start  time.Time
		end    time.Time
	}{
		{"today", Day, 0, date(2024, 3, 6), date(2024, 3, 7)},
		{"yesterday", Day, -1, date(2024, 3, 5), date(2024, 3, 6)},
		{"across month boundary", Day, -6, date(2024, 2, 29), date(2024, 3, 1)},
		{"current week ends today", Week, 0, date(2024, 2, 29), date(2024, 3, 7)},
		{"previous week ends last wednesday", Week, -1, date(2024, 2, 22), date(2024, 2, 29)},
		{"current month", Month, 0, date(2024, 3, 1), date(2024, 4, 1)},
		{"previous month", Month, -1, date(2024, 2, 1), date(2024, 3, 1)},
		{"month into previous year", Month, -3, date(2023, 12, 1), date(2024, 1, 1)},
		{"two months", TwoMonths, 0, date(2024, 3, 1), date(2024, 5, 1)},
		{"two months back", TwoMonths, -2, date(2023, 11, 1), date(2024, 1, 1)},
		{"three months back", ThreeMonths, -1, date(2023, 12, 1), date(2024, 3, 1)},
		{"three months far back", ThreeMonths, -5, date(2022, 12, 1), date(2023, 3, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := Resolve(tt.g, tt.offset, now)
			require.NoError(t, err)
			assert.Equal(t, tt.start, w.Start)
			assert.Equal(t, tt.end, w.End)
		})
	}
}

func TestResolveWeekScenario(t *testing.T) {
	wednesday := time.Date(2024, 5, 15, 9, 0, 0, 0, time.UTC)
	require.Equal(t, time.Wednesday, wednesday.Weekday())

	w, err := Resolve(Week, -1, wednesday)
	require.NoError(t, err)

	// Seven days ending on the Wednesday one week prior, inclusive.
	assert.Equal(t, 7*24*time.Hour, w.Duration())
	lastDay := w.End.Add(-time.Nanosecond)
	assert.Equal(t, time.Wednesday, lastDay.Weekday())
	assert.Equal(t, 8, lastDay.Day())
	assert.Equal(t, 2, w.Start.Day())
}

func TestResolveDeterministic(t *testing.T) {
	now := time.Date(2024, 7, 1, 0, 0, 1, 0, time.UTC)

	for _, g := range Granularities {
		for offset := 0; offset > -14; offset-- {
			a, err := Resolve(g, offset, now)
			require.NoError(t, err)
			b, err := Resolve(g, offset, now)
			require.NoError(t, err)
			assert.Equal(t, a, b)
			assert.True(t, a.Start.Before(a.End))
		}
	}
}

func TestResolveDayIsExactly24hAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// Spring forward and fall back days.
	for _, now := range []time.Time{
		time.Date(2024, 3, 10, 12, 0, 0, 0, loc),
		time.Date(2024, 11, 3, 12, 0, 0, 0, loc),
	} {
		w, err := Resolve(Day, 0, now)
		require.NoError(t, err)
		assert.Equal(t, 24*time.Hour, w.Duration(), now.String())
		assert.Equal(t, 0, w.Start.Hour())
	}
}

func TestResolvePastPeriodsAcrossDSTStartAtMidnight(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// Standard time now; the offsets below land in daylight time.
	now := time.Date(2024, 12, 1, 12, 0, 0, 0, loc)

	w, err := Resolve(Day, -40, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 10, 22, 0, 0, 0, 0, loc), w.Start)
	assert.Equal(t, 24*time.Hour, w.Duration())

	w, err = Resolve(Week, -6, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 10, 14, 0, 0, 0, 0, loc), w.Start)
	assert.Equal(t, time.Date(2024, 10, 21, 0, 0, 0, 0, loc), w.End)

	// Daylight time now, standard time back in winter.
	now = time.Date(2024, 4, 15, 8, 0, 0, 0, loc)
	for offset := 0; offset > -60; offset-- {
		w, err := Resolve(Day, offset, now)
		require.NoError(t, err)
		assert.Equal(t, 0, w.Start.Hour(), "offset %d", offset)
		assert.Equal(t, 0, w.Start.Minute(), "offset %d", offset)
	}
}

func TestResolveFarBackStaysInThePast(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	for _, g := range Granularities {
		w, err := Resolve(g, MinOffset, now)
		require.NoError(t, err, g)
		assert.True(t, w.End.Before(now), g)
		assert.True(t, w.Start.Before(w.End), g)

		_, err = Resolve(g, MinOffset-1, now)
		assert.ErrorIs(t, err, ErrOffsetOutOfRange, g)
	}

	_, err := Resolve(Day, -200_000, now)
	assert.ErrorIs(t, err, ErrOffsetOutOfRange)
}

func TestResolveErrors(t *testing.T) {
	now := time.Now()

	_, err := Resolve(Day, 1, now)
	assert.ErrorIs(t, err, ErrFutureOffset)

	_, err = Resolve(Granularity("fortnight"), 0, now)
	assert.ErrorIs(t, err, ErrInvalidGranularity)
}

func TestWindowContainsIsHalfOpen(t *testing.T) {
	w := Window{Start: date(2024, 1, 1), End: date(2024, 1, 2)}

	assert.True(t, w.Contains(w.Start))
	assert.True(t, w.Contains(w.End.Add(-time.Nanosecond)))
	assert.False(t, w.Contains(w.End))
	assert.False(t, w.Contains(w.Start.Add(-time.Nanosecond)))
}
