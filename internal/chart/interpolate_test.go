package chart

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Cristi184/diabetDashApp-sub000/internal/domain"
)

var base = time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)

func reading(id string, offset time.Duration, value float64) domain.GlucoseReading {
	return domain.GlucoseReading{ID: id, SubjectID: "p1", Timestamp: base.Add(offset), Value: value}
}

func TestInterpolateBounds(t *testing.T) {
	readings := []domain.GlucoseReading{
		reading("a", 0, 100),
		reading("b", 10*time.Minute, 200),
	}

	tests := []struct {
		name string
		at   time.Duration
		want float64
	}{
		{"midpoint", 5 * time.Minute, 150},
		{"at before", 0, 100},
		{"at after", 10 * time.Minute, 200},
		{"quarter", 150 * time.Second, 125},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := Interpolate(base.Add(tt.at), readings)
			assert.True(t, ok)
			assert.InDelta(t, tt.want, v, 1e-9)
		})
	}
}

func TestInterpolateOneSided(t *testing.T) {
	readings := []domain.GlucoseReading{reading("a", time.Hour, 140)}

	v, ok := Interpolate(base, readings)
	assert.True(t, ok)
	assert.Equal(t, 140.0, v)

	v, ok = Interpolate(base.Add(5*time.Hour), readings)
	assert.True(t, ok)
	assert.Equal(t, 140.0, v)
}

func TestInterpolateNoReadings(t *testing.T) {
	v, ok := Interpolate(base, nil)
	assert.False(t, ok)
	assert.Zero(t, v)
}

func TestInterpolateUnsortedInputIsNotModified(t *testing.T) {
	readings := []domain.GlucoseReading{
		reading("late", 2*time.Hour, 150),
		reading("early", time.Hour, 110),
	}

	v, ok := Interpolate(base.Add(90*time.Minute), readings)
	assert.True(t, ok)
	assert.InDelta(t, 130, v, 1e-9)
	assert.Equal(t, "late", readings[0].ID)
}

func TestInterpolateSameInstantUsesBefore(t *testing.T) {
	readings := []domain.GlucoseReading{
		reading("a", time.Hour, 120),
		reading("b", time.Hour, 180),
	}

	v, ok := Interpolate(base.Add(time.Hour), readings)
	assert.True(t, ok)
	assert.Equal(t, 180.0, v)
}
