package chart

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cristi184/diabetDashApp-sub000/internal/domain"
	"github.com/Cristi184/diabetDashApp-sub000/internal/timewindow"
)

var dayWindow = timewindow.Window{Start: base, End: base.Add(24 * time.Hour)}

func meal(id string, offset time.Duration) domain.MealEvent {
	return domain.MealEvent{ID: id, SubjectID: "p1", Timestamp: base.Add(offset), Name: "lunch", CarbsGrams: 60}
}

func treatment(id string, offset time.Duration) domain.TreatmentEvent {
	return domain.TreatmentEvent{ID: id, SubjectID: "p1", Timestamp: base.Add(offset), Type: domain.TreatmentInsulin, InsulinClass: domain.InsulinRapid, DoseAmount: 6, DoseUnit: "U"}
}

func TestAlignMealBetweenReadings(t *testing.T) {
	a := Align(dayWindow,
		[]domain.GlucoseReading{reading("g1", 11*time.Hour, 110), reading("g2", 13*time.Hour, 150)},
		[]domain.MealEvent{meal("m1", 12*time.Hour)},
		nil,
	)

	require.Len(t, a.Points, 3)
	assert.Zero(t, a.DataErrors)

	m := a.Points[1]
	assert.Equal(t, domain.KindMeal, m.Kind)
	require.True(t, m.Plottable())
	assert.InDelta(t, 130, *m.Glucose, 1e-9)
	assert.Equal(t, "lunch", m.Payload.(domain.MealEvent).Name)
}

func TestAlignGlucosePrecedesAtEqualTimestamp(t *testing.T) {
	a := Align(dayWindow,
		[]domain.GlucoseReading{reading("g1", 8*time.Hour, 95)},
		[]domain.MealEvent{meal("m1", 8*time.Hour)},
		[]domain.TreatmentEvent{treatment("t1", 8*time.Hour)},
	)

	require.Len(t, a.Points, 3)
	assert.Equal(t, domain.KindGlucose, a.Points[0].Kind)
	assert.Equal(t, domain.KindMeal, a.Points[1].Kind)
	assert.Equal(t, domain.KindTreatment, a.Points[2].Kind)
	assert.Equal(t, 95.0, *a.Points[2].Glucose)
}

func TestAlignOrderingIsNonDecreasing(t *testing.T) {
	glucose := []domain.GlucoseReading{
		reading("g3", 20*time.Hour, 180),
		reading("g1", 2*time.Hour, 90),
		reading("g2", 9*time.Hour, 140),
	}
	meals := []domain.MealEvent{meal("m2", 19*time.Hour), meal("m1", 7*time.Hour)}
	treatments := []domain.TreatmentEvent{treatment("t2", 22*time.Hour), treatment("t1", 7*time.Hour)}

	a := Align(dayWindow, glucose, meals, treatments)

	require.Len(t, a.Points, 7)
	for i := 1; i < len(a.Points); i++ {
		assert.False(t, a.Points[i].Timestamp.Before(a.Points[i-1].Timestamp), "point %d out of order", i)
	}
	// Inputs are left in caller order.
	assert.Equal(t, "g3", glucose[0].ID)
}

func TestAlignSingleReadingAnchorsEverything(t *testing.T) {
	a := Align(dayWindow,
		[]domain.GlucoseReading{reading("g1", 12*time.Hour, 123)},
		[]domain.MealEvent{meal("m1", time.Hour), meal("m2", 23*time.Hour)},
		[]domain.TreatmentEvent{treatment("t1", 6*time.Hour)},
	)

	for _, p := range a.Points {
		require.NotNil(t, p.Glucose)
		assert.Equal(t, 123.0, *p.Glucose)
	}
}

func TestAlignNoReadingsLeavesGlucoseNil(t *testing.T) {
	a := Align(dayWindow, nil,
		[]domain.MealEvent{meal("m1", time.Hour)},
		[]domain.TreatmentEvent{treatment("t1", 2*time.Hour)},
	)

	require.Len(t, a.Points, 2)
	for _, p := range a.Points {
		assert.Nil(t, p.Glucose)
		assert.False(t, p.Plottable())
	}
}

func TestAlignInterpolatesOnlyWithinWindow(t *testing.T) {
	// The reading before the window must not anchor the meal.
	a := Align(dayWindow,
		[]domain.GlucoseReading{reading("outside", -time.Hour, 300), reading("inside", 10*time.Hour, 100)},
		[]domain.MealEvent{meal("m1", time.Hour)},
		nil,
	)

	require.Len(t, a.Points, 2)
	assert.Equal(t, domain.KindMeal, a.Points[0].Kind)
	assert.Equal(t, 100.0, *a.Points[0].Glucose)
}

func TestAlignWindowIsHalfOpen(t *testing.T) {
	a := Align(dayWindow,
		[]domain.GlucoseReading{reading("start", 0, 100), reading("end", 24*time.Hour, 200)},
		nil, nil,
	)

	require.Len(t, a.Points, 1)
	assert.Equal(t, base, a.Points[0].Timestamp)
}

func TestAlignCountsUnreadableTimestamps(t *testing.T) {
	a := Align(dayWindow,
		[]domain.GlucoseReading{{ID: "bad", Value: 100}, reading("g1", time.Hour, 110)},
		[]domain.MealEvent{{ID: "bad-meal"}},
		[]domain.TreatmentEvent{{ID: "bad-dose"}},
	)

	assert.Equal(t, 3, a.DataErrors)
	require.Len(t, a.Points, 1)
	assert.Equal(t, "g1", a.Points[0].Payload.(domain.GlucoseReading).ID)
}

func TestAlignWithoutTreatments(t *testing.T) {
	a := Align(dayWindow,
		[]domain.GlucoseReading{reading("g1", time.Hour, 110)},
		[]domain.MealEvent{meal("m1", 2*time.Hour)},
		[]domain.TreatmentEvent{treatment("t1", 3*time.Hour)},
		WithoutTreatments(),
	)

	require.Len(t, a.Points, 2)
	for _, p := range a.Points {
		assert.NotEqual(t, domain.KindTreatment, p.Kind)
	}
}

func TestAlignWithoutMeals(t *testing.T) {
	a := Align(dayWindow, nil,
		[]domain.MealEvent{meal("m1", 2*time.Hour)},
		[]domain.TreatmentEvent{treatment("t1", 3*time.Hour)},
		WithoutMeals(),
	)

	require.Len(t, a.Points, 1)
	assert.Equal(t, domain.KindTreatment, a.Points[0].Kind)
}

func TestSortPointsBreaksTiesByID(t *testing.T) {
	points := []domain.ChartPoint{
		{Timestamp: base, Kind: domain.KindMeal, Payload: meal("b", 0)},
		{Timestamp: base, Kind: domain.KindMeal, Payload: meal("a", 0)},
	}

	SortPoints(points)

	assert.Equal(t, "a", points[0].Payload.(domain.MealEvent).ID)
}
