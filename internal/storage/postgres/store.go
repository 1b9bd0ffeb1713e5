// Package postgres provides a PostgreSQL implementation of the storage.Store interface
// and a LISTEN/NOTIFY feed of direct message changes.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Cristi184/diabetDashApp-sub000/internal/domain"
	"github.com/Cristi184/diabetDashApp-sub000/internal/storage"
)

// NewPool opens a connection pool and verifies it with a ping.
func NewPool(ctx context.Context, databaseURL string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns > 0 {
		cfg.MinConns = minConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// Store is a PostgreSQL implementation of storage.Store.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates the schema if needed and returns a store backed by pool.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Pool returns the underlying pool.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func fromNullableTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}

// periodClause restricts ts to the period starting at placeholder $next.
// Rows with a NULL ts are always returned so callers can count them as data errors.
func periodClause(p storage.Period, next int) (string, []any) {
	var conds []string
	var args []any
	if !p.Since.IsZero() {
		conds = append(conds, fmt.Sprintf("ts >= $%d", next+len(args)))
		args = append(args, p.Since)
	}
	if !p.Until.IsZero() {
		conds = append(conds, fmt.Sprintf("ts < $%d", next+len(args)))
		args = append(args, p.Until)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " AND (ts IS NULL OR (" + strings.Join(conds, " AND ") + "))", args
}

// Glucose reading methods

func (s *Store) SaveGlucoseReadings(ctx context.Context, readings ...domain.GlucoseReading) error {
	batch := &pgx.Batch{}
	for _, r := range readings {
		if err := r.Validate(); err != nil {
			return err
		}
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		batch.Queue(`
			INSERT INTO glucose_readings (id, subject_id, value, ts, note)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET subject_id = EXCLUDED.subject_id, value = EXCLUDED.value,
				ts = EXCLUDED.ts, note = EXCLUDED.note
		`, r.ID, r.SubjectID, r.Value, nullableTime(r.Timestamp), r.Note)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save glucose readings: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *Store) QueryGlucoseReadings(ctx context.Context, subjectID string, period storage.Period) ([]domain.GlucoseReading, error) {
	clause, args := periodClause(period, 2)
	rows, err := s.pool.Query(ctx, `
		SELECT id, subject_id, value, ts, note FROM glucose_readings
		WHERE subject_id = $1`+clause+`
		ORDER BY ts ASC NULLS FIRST, id ASC
	`, append([]any{subjectID}, args...)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []domain.GlucoseReading
	for rows.Next() {
		var r domain.GlucoseReading
		var ts *time.Time
		if err := rows.Scan(&r.ID, &r.SubjectID, &r.Value, &ts, &r.Note); err != nil {
			return nil, err
		}
		r.Timestamp = fromNullableTime(ts)
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

func (s *Store) DeleteGlucoseReading(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM glucose_readings WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound{Resource: "glucose reading", ID: id}
	}
	return nil
}

// Meal methods

func (s *Store) SaveMeal(ctx context.Context, meal domain.MealEvent) error {
	if err := meal.Validate(); err != nil {
		return err
	}
	if meal.ID == "" {
		meal.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO meals (id, subject_id, ts, name, carbs_g, protein_g, fat_g, calories_kcal, photo_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET subject_id = EXCLUDED.subject_id, ts = EXCLUDED.ts, name = EXCLUDED.name,
			carbs_g = EXCLUDED.carbs_g, protein_g = EXCLUDED.protein_g, fat_g = EXCLUDED.fat_g,
			calories_kcal = EXCLUDED.calories_kcal, photo_ref = EXCLUDED.photo_ref
	`, meal.ID, meal.SubjectID, nullableTime(meal.Timestamp), meal.Name, meal.CarbsGrams,
		meal.ProteinGrams, meal.FatGrams, meal.CaloriesKcal, meal.PhotoRef)
	return err
}

func (s *Store) QueryMeals(ctx context.Context, subjectID string, period storage.Period) ([]domain.MealEvent, error) {
	clause, args := periodClause(period, 2)
	rows, err := s.pool.Query(ctx, `
		SELECT id, subject_id, ts, name, carbs_g, protein_g, fat_g, calories_kcal, photo_ref FROM meals
		WHERE subject_id = $1`+clause+`
		ORDER BY ts ASC NULLS FIRST, id ASC
	`, append([]any{subjectID}, args...)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meals []domain.MealEvent
	for rows.Next() {
		var m domain.MealEvent
		var ts *time.Time
		if err := rows.Scan(&m.ID, &m.SubjectID, &ts, &m.Name, &m.CarbsGrams, &m.ProteinGrams, &m.FatGrams, &m.CaloriesKcal, &m.PhotoRef); err != nil {
			return nil, err
		}
		m.Timestamp = fromNullableTime(ts)
		meals = append(meals, m)
	}
	return meals, rows.Err()
}

// Treatment methods

func (s *Store) SaveTreatment(ctx context.Context, t domain.TreatmentEvent) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO treatments (id, subject_id, ts, kind, insulin_class, medication_name, dose_amount, dose_unit)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET subject_id = EXCLUDED.subject_id, ts = EXCLUDED.ts, kind = EXCLUDED.kind,
			insulin_class = EXCLUDED.insulin_class, medication_name = EXCLUDED.medication_name,
			dose_amount = EXCLUDED.dose_amount, dose_unit = EXCLUDED.dose_unit
	`, t.ID, t.SubjectID, nullableTime(t.Timestamp), string(t.Type), string(t.InsulinClass), t.MedicationName, t.DoseAmount, t.DoseUnit)
	return err
}

func (s *Store) QueryTreatments(ctx context.Context, subjectID string, period storage.Period) ([]domain.TreatmentEvent, error) {
	clause, args := periodClause(period, 2)
	rows, err := s.pool.Query(ctx, `
		SELECT id, subject_id, ts, kind, insulin_class, medication_name, dose_amount, dose_unit FROM treatments
		WHERE subject_id = $1`+clause+`
		ORDER BY ts ASC NULLS FIRST, id ASC
	`, append([]any{subjectID}, args...)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var treatments []domain.TreatmentEvent
	for rows.Next() {
		var t domain.TreatmentEvent
		var ts *time.Time
		var kind, class string
		if err := rows.Scan(&t.ID, &t.SubjectID, &ts, &kind, &class, &t.MedicationName, &t.DoseAmount, &t.DoseUnit); err != nil {
			return nil, err
		}
		t.Timestamp = fromNullableTime(ts)
		t.Type = domain.TreatmentKind(kind)
		t.InsulinClass = domain.InsulinClass(class)
		treatments = append(treatments, t)
	}
	return treatments, rows.Err()
}

// Direct message methods

const messageColumns = "id, sender_id, receiver_id, body, is_read, created_at"

func scanMessage(row pgx.Row) (domain.DirectMessage, error) {
	var m domain.DirectMessage
	if err := row.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Body, &m.IsRead, &m.CreatedAt); err != nil {
		return domain.DirectMessage{}, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}

func (s *Store) InsertMessage(ctx context.Context, msg domain.DirectMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO direct_messages (`+messageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, msg.ID, msg.SenderID, msg.ReceiverID, msg.Body, msg.IsRead, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message %s: %w", msg.ID, err)
	}
	return nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (domain.DirectMessage, error) {
	msg, err := scanMessage(s.pool.QueryRow(ctx, `
		SELECT `+messageColumns+` FROM direct_messages WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DirectMessage{}, storage.ErrNotFound{Resource: "message", ID: id}
	}
	return msg, err
}

func (s *Store) QueryMessages(ctx context.Context, filter storage.MessageFilter) ([]domain.DirectMessage, error) {
	var where string
	var args []any
	if filter.CounterpartyID != "" {
		where = "(sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)"
		args = []any{filter.ParticipantID, filter.CounterpartyID}
	} else {
		where = "sender_id = $1 OR receiver_id = $1"
		args = []any{filter.ParticipantID}
	}

	query := "SELECT " + messageColumns + " FROM direct_messages WHERE " + where + " ORDER BY created_at ASC, id ASC"
	if filter.Limit > 0 {
		query = "SELECT * FROM (SELECT " + messageColumns + " FROM direct_messages WHERE " + where +
			fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d) recent ORDER BY created_at ASC, id ASC", len(args)+1)
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []domain.DirectMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func (s *Store) UpdateReadFlag(ctx context.Context, isRead bool, ids ...string) ([]domain.DirectMessage, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		UPDATE direct_messages SET is_read = $1
		WHERE id = ANY($2) AND is_read IS DISTINCT FROM $1
		RETURNING `+messageColumns, isRead, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to update read flags: %w", err)
	}
	defer rows.Close()

	var updated []domain.DirectMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		updated = append(updated, msg)
	}
	return updated, rows.Err()
}

// Verify interface compliance
var _ storage.Store = (*Store)(nil)
