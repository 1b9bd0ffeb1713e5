// Package storage provides storage abstractions for the diabetes dashboard.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Cristi184/diabetDashApp-sub000/internal/domain"
)

// Store is the interface for persistent storage.
type Store interface {
	EventStore
	MessageStore

	// Lifecycle
	Close() error
}

// EventStore holds a subject's glucose readings, meals and treatments.
type EventStore interface {
	// Glucose readings
	SaveGlucoseReadings(ctx context.Context, readings ...domain.GlucoseReading) error
	QueryGlucoseReadings(ctx context.Context, subjectID string, period Period) ([]domain.GlucoseReading, error)
	DeleteGlucoseReading(ctx context.Context, id string) error

	// Meals
	SaveMeal(ctx context.Context, meal domain.MealEvent) error
	QueryMeals(ctx context.Context, subjectID string, period Period) ([]domain.MealEvent, error)

	// Treatments
	SaveTreatment(ctx context.Context, treatment domain.TreatmentEvent) error
	QueryTreatments(ctx context.Context, subjectID string, period Period) ([]domain.TreatmentEvent, error)
}

// MessageStore holds direct messages.
type MessageStore interface {
	InsertMessage(ctx context.Context, msg domain.DirectMessage) error
	GetMessage(ctx context.Context, id string) (domain.DirectMessage, error)
	QueryMessages(ctx context.Context, filter MessageFilter) ([]domain.DirectMessage, error)
	// UpdateReadFlag sets is_read on the given messages and returns the rows whose flag changed.
	UpdateReadFlag(ctx context.Context, isRead bool, ids ...string) ([]domain.DirectMessage, error)
}

// Period bounds a query to [Since, Until). A zero bound is open.
type Period struct {
	Since time.Time
	Until time.Time
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	if !p.Since.IsZero() && t.Before(p.Since) {
		return false
	}
	if !p.Until.IsZero() && !t.Before(p.Until) {
		return false
	}
	return true
}

// MessageFilter selects messages for QueryMessages.
// With CounterpartyID set only the conversation between the two users is returned;
// otherwise every message ParticipantID sent or received.
type MessageFilter struct {
	ParticipantID  string
	CounterpartyID string
	Limit          int
}

// ErrNotFound is returned when a record is not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e ErrNotFound) Error() string {
	return e.Resource + " not found: " + e.ID
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	var nf ErrNotFound
	return errors.As(err, &nf)
}
