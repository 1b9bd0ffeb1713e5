package chart

import (
	"cmp"
	"slices"
	"time"

	"github.com/Cristi184/diabetDashApp-sub000/internal/domain"
	"github.com/Cristi184/diabetDashApp-sub000/internal/timewindow"
)

// Alignment is the merged timeline for one window.
type Alignment struct {
	Points []domain.ChartPoint
	// DataErrors counts events dropped because their timestamp could not be read.
	DataErrors int
}

type alignConfig struct {
	meals      bool
	treatments bool
}

// AlignOption adjusts which streams Align includes.
type AlignOption func(*alignConfig)

// WithoutMeals omits meal events from the timeline.
func WithoutMeals() AlignOption {
	return func(c *alignConfig) { c.meals = false }
}

// WithoutTreatments omits treatment events from the timeline. The clinician view uses this.
func WithoutTreatments() AlignOption {
	return func(c *alignConfig) { c.treatments = false }
}

func newAlignConfig(opts []AlignOption) alignConfig {
	cfg := alignConfig{meals: true, treatments: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Align merges the three event streams into a single ordered list of chart points inside w.
// Meal and treatment points take their glucose value from the in-window readings.
func Align(w timewindow.Window, glucose []domain.GlucoseReading, meals []domain.MealEvent, treatments []domain.TreatmentEvent, opts ...AlignOption) Alignment {
	cfg := newAlignConfig(opts)

	var out Alignment
	keep := func(ts time.Time) bool {
		if ts.IsZero() {
			out.DataErrors++
			return false
		}
		return w.Contains(ts)
	}

	readings := make([]domain.GlucoseReading, 0, len(glucose))
	for _, r := range glucose {
		if keep(r.Timestamp) {
			readings = append(readings, r)
		}
	}
	SortReadings(readings)

	points := make([]domain.ChartPoint, 0, len(readings))
	for _, r := range readings {
		v := r.Value
		points = append(points, domain.ChartPoint{
			Timestamp: r.Timestamp,
			Kind:      domain.KindGlucose,
			Glucose:   &v,
			Payload:   r,
		})
	}

	anchored := func(ts time.Time) *float64 {
		v, ok := interpolateSorted(ts, readings)
		if !ok {
			return nil
		}
		return &v
	}

	if cfg.meals {
		for _, m := range meals {
			if keep(m.Timestamp) {
				points = append(points, domain.ChartPoint{
					Timestamp: m.Timestamp,
					Kind:      domain.KindMeal,
					Glucose:   anchored(m.Timestamp),
					Payload:   m,
				})
			}
		}
	}

	if cfg.treatments {
		for _, t := range treatments {
			if keep(t.Timestamp) {
				points = append(points, domain.ChartPoint{
					Timestamp: t.Timestamp,
					Kind:      domain.KindTreatment,
					Glucose:   anchored(t.Timestamp),
					Payload:   t,
				})
			}
		}
	}

	SortPoints(points)
	out.Points = points
	return out
}

// SortPoints orders points by timestamp, then kind rank (glucose first), then event ID.
func SortPoints(points []domain.ChartPoint) {
	slices.SortStableFunc(points, func(a, b domain.ChartPoint) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Kind.Rank(), b.Kind.Rank()); c != 0 {
			return c
		}
		return cmp.Compare(payloadID(a.Payload), payloadID(b.Payload))
	})
}

func payloadID(p domain.Payload) string {
	switch v := p.(type) {
	case domain.GlucoseReading:
		return v.ID
	case domain.MealEvent:
		return v.ID
	case domain.TreatmentEvent:
		return v.ID
	}
	return ""
}
