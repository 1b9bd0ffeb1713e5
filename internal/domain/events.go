// Package domain contains core domain types for the diabetes dashboard.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// EventKind identifies which stream a chart event came from.
type EventKind string

const (
	KindGlucose   EventKind = "glucose"
	KindMeal      EventKind = "meal"
	KindTreatment EventKind = "treatment"
)

// Rank orders kinds at identical timestamps: glucose first, then meals, then treatments.
func (k EventKind) Rank() int {
	switch k {
	case KindGlucose:
		return 0
	case KindMeal:
		return 1
	case KindTreatment:
		return 2
	default:
		return 3
	}
}

// TreatmentKind is the kind of treatment dose.
type TreatmentKind string

const (
	TreatmentInsulin TreatmentKind = "insulin"
	TreatmentPill    TreatmentKind = "pill"
)

// InsulinClass distinguishes long-acting from mealtime insulin.
type InsulinClass string

const (
	InsulinBasal InsulinClass = "basal"
	InsulinRapid InsulinClass = "rapid"
)

// ErrInvalidEvent is wrapped by every Validate failure.
var ErrInvalidEvent = errors.New("invalid event")

// Payload is the closed set of event shapes a chart point can carry.
// Only GlucoseReading, MealEvent and TreatmentEvent implement it.
type Payload interface {
	Kind() EventKind
	EventTime() time.Time
	isPayload()
}

// GlucoseReading is a single blood glucose measurement.
type GlucoseReading struct {
	ID        string    `json:"id"`
	SubjectID string    `json:"subjectId"`
	Value     float64   `json:"value"` // mg/dL
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note,omitempty"`
}

func (GlucoseReading) Kind() EventKind        { return KindGlucose }
func (r GlucoseReading) EventTime() time.Time { return r.Timestamp }
func (GlucoseReading) isPayload()             {}

// Validate checks the reading's invariants.
func (r GlucoseReading) Validate() error {
	if r.SubjectID == "" {
		return fmt.Errorf("%w: glucose reading without subject", ErrInvalidEvent)
	}
	if r.Value <= 0 {
		return fmt.Errorf("%w: glucose value must be positive, got %v", ErrInvalidEvent, r.Value)
	}
	return nil
}

// MealEvent is a logged meal.
type MealEvent struct {
	ID           string    `json:"id"`
	SubjectID    string    `json:"subjectId"`
	Timestamp    time.Time `json:"timestamp"`
	Name         string    `json:"name"`
	CarbsGrams   float64   `json:"carbsGrams"`
	ProteinGrams *float64  `json:"proteinGrams,omitempty"`
	FatGrams     *float64  `json:"fatGrams,omitempty"`
	CaloriesKcal *float64  `json:"caloriesKcal,omitempty"`
	PhotoRef     string    `json:"photoRef,omitempty"`
}

func (MealEvent) Kind() EventKind        { return KindMeal }
func (m MealEvent) EventTime() time.Time { return m.Timestamp }
func (MealEvent) isPayload()             {}

// Validate checks the meal's invariants.
func (m MealEvent) Validate() error {
	if m.SubjectID == "" {
		return fmt.Errorf("%w: meal without subject", ErrInvalidEvent)
	}
	if m.CarbsGrams < 0 {
		return fmt.Errorf("%w: carbs must not be negative, got %v", ErrInvalidEvent, m.CarbsGrams)
	}
	for name, v := range map[string]*float64{"protein": m.ProteinGrams, "fat": m.FatGrams, "calories": m.CaloriesKcal} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%w: %s must not be negative, got %v", ErrInvalidEvent, name, *v)
		}
	}
	return nil
}

// TreatmentEvent is an insulin or medication dose.
type TreatmentEvent struct {
	ID             string        `json:"id"`
	SubjectID      string        `json:"subjectId"`
	Timestamp      time.Time     `json:"timestamp"`
	Type           TreatmentKind `json:"kind"`
	InsulinClass   InsulinClass  `json:"insulinClass,omitempty"`
	MedicationName string        `json:"medicationName,omitempty"`
	DoseAmount     float64       `json:"doseAmount"`
	DoseUnit       string        `json:"doseUnit"`
}

func (TreatmentEvent) Kind() EventKind        { return KindTreatment }
func (t TreatmentEvent) EventTime() time.Time { return t.Timestamp }
func (TreatmentEvent) isPayload()             {}

// Validate checks the treatment's invariants.
func (t TreatmentEvent) Validate() error {
	if t.SubjectID == "" {
		return fmt.Errorf("%w: treatment without subject", ErrInvalidEvent)
	}
	switch t.Type {
	case TreatmentInsulin:
		switch t.InsulinClass {
		case "", InsulinBasal, InsulinRapid:
		default:
			return fmt.Errorf("%w: unknown insulin class %q", ErrInvalidEvent, t.InsulinClass)
		}
	case TreatmentPill:
		if t.InsulinClass != "" {
			return fmt.Errorf("%w: pill treatment cannot have insulin class", ErrInvalidEvent)
		}
	default:
		return fmt.Errorf("%w: unknown treatment kind %q", ErrInvalidEvent, t.Type)
	}
	if t.DoseAmount < 0 {
		return fmt.Errorf("%w: dose must not be negative, got %v", ErrInvalidEvent, t.DoseAmount)
	}
	return nil
}

// ChartPoint is one plotted item on the combined glucose/meal/treatment timeline.
// Glucose is nil when no reading in the window can anchor the point.
type ChartPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      EventKind `json:"kind"`
	Glucose   *float64  `json:"glucose"`
	Payload   Payload   `json:"payload"`
}

// Plottable reports whether the point has a glucose value to sit on the curve.
func (p ChartPoint) Plottable() bool {
	return p.Glucose != nil
}
