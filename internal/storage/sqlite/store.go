// Package sqlite provides a SQLite implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Cristi184/diabetDashApp-sub000/internal/domain"
	"github.com/Cristi184/diabetDashApp-sub000/internal/storage"

	_ "modernc.org/sqlite"
)

// Store is a SQLite implementation of storage.Store.
type Store struct {
	db *sql.DB
}

// NewMemoryStore creates an in-memory SQLite store.
func NewMemoryStore() (*Store, error) {
	return newStore(":memory:")
}

// NewFileStore creates a file-based SQLite store.
func NewFileStore(path string) (*Store, error) {
	return newStore(path)
}

func newStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func toMillis(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func fromMillis(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.UnixMilli(v.Int64).UTC()
}

func toNullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func fromNullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// periodClause restricts ts to the period. Rows with a NULL ts are always returned
// so callers can count them as data errors.
func periodClause(p storage.Period) (string, []any) {
	var conds []string
	var args []any
	if !p.Since.IsZero() {
		conds = append(conds, "ts >= ?")
		args = append(args, p.Since.UnixMilli())
	}
	if !p.Until.IsZero() {
		conds = append(conds, "ts < ?")
		args = append(args, p.Until.UnixMilli())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " AND (ts IS NULL OR (" + strings.Join(conds, " AND ") + "))", args
}

// Glucose reading methods

func (s *Store) SaveGlucoseReadings(ctx context.Context, readings ...domain.GlucoseReading) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO glucose_readings (id, subject_id, value, ts, note)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range readings {
		if err := r.Validate(); err != nil {
			return err
		}
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.SubjectID, r.Value, toMillis(r.Timestamp), r.Note); err != nil {
			return fmt.Errorf("failed to save glucose reading %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

func (s *Store) QueryGlucoseReadings(ctx context.Context, subjectID string, period storage.Period) ([]domain.GlucoseReading, error) {
	clause, args := periodClause(period)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subject_id, value, ts, note FROM glucose_readings
		WHERE subject_id = ?`+clause+`
		ORDER BY ts ASC, id ASC
	`, append([]any{subjectID}, args...)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []domain.GlucoseReading
	for rows.Next() {
		var r domain.GlucoseReading
		var ts sql.NullInt64
		if err := rows.Scan(&r.ID, &r.SubjectID, &r.Value, &ts, &r.Note); err != nil {
			return nil, err
		}
		r.Timestamp = fromMillis(ts)
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

func (s *Store) DeleteGlucoseReading(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM glucose_readings WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
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
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO meals (id, subject_id, ts, name, carbs_g, protein_g, fat_g, calories_kcal, photo_ref)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, meal.ID, meal.SubjectID, toMillis(meal.Timestamp), meal.Name, meal.CarbsGrams,
		toNullFloat(meal.ProteinGrams), toNullFloat(meal.FatGrams), toNullFloat(meal.CaloriesKcal), meal.PhotoRef)
	return err
}

func (s *Store) QueryMeals(ctx context.Context, subjectID string, period storage.Period) ([]domain.MealEvent, error) {
	clause, args := periodClause(period)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subject_id, ts, name, carbs_g, protein_g, fat_g, calories_kcal, photo_ref FROM meals
		WHERE subject_id = ?`+clause+`
		ORDER BY ts ASC, id ASC
	`, append([]any{subjectID}, args...)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meals []domain.MealEvent
	for rows.Next() {
		var m domain.MealEvent
		var ts sql.NullInt64
		var protein, fat, calories sql.NullFloat64
		if err := rows.Scan(&m.ID, &m.SubjectID, &ts, &m.Name, &m.CarbsGrams, &protein, &fat, &calories, &m.PhotoRef); err != nil {
			return nil, err
		}
		m.Timestamp = fromMillis(ts)
		m.ProteinGrams = fromNullFloat(protein)
		m.FatGrams = fromNullFloat(fat)
		m.CaloriesKcal = fromNullFloat(calories)
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
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO treatments (id, subject_id, ts, kind, insulin_class, medication_name, dose_amount, dose_unit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.SubjectID, toMillis(t.Timestamp), string(t.Type), string(t.InsulinClass), t.MedicationName, t.DoseAmount, t.DoseUnit)
	return err
}

func (s *Store) QueryTreatments(ctx context.Context, subjectID string, period storage.Period) ([]domain.TreatmentEvent, error) {
	clause, args := periodClause(period)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subject_id, ts, kind, insulin_class, medication_name, dose_amount, dose_unit FROM treatments
		WHERE subject_id = ?`+clause+`
		ORDER BY ts ASC, id ASC
	`, append([]any{subjectID}, args...)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var treatments []domain.TreatmentEvent
	for rows.Next() {
		var t domain.TreatmentEvent
		var ts sql.NullInt64
		var kind, class string
		if err := rows.Scan(&t.ID, &t.SubjectID, &ts, &kind, &class, &t.MedicationName, &t.DoseAmount, &t.DoseUnit); err != nil {
			return nil, err
		}
		t.Timestamp = fromMillis(ts)
		t.Type = domain.TreatmentKind(kind)
		t.InsulinClass = domain.InsulinClass(class)
		treatments = append(treatments, t)
	}
	return treatments, rows.Err()
}

// Direct message methods

const messageColumns = "id, sender_id, receiver_id, body, is_read, created_at"

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (domain.DirectMessage, error) {
	var m domain.DirectMessage
	var createdAt int64
	if err := row.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Body, &m.IsRead, &createdAt); err != nil {
		return domain.DirectMessage{}, err
	}
	m.CreatedAt = time.UnixMilli(createdAt).UTC()
	return m, nil
}

func (s *Store) InsertMessage(ctx context.Context, msg domain.DirectMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO direct_messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.SenderID, msg.ReceiverID, msg.Body, msg.IsRead, msg.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert message %s: %w", msg.ID, err)
	}
	return nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (domain.DirectMessage, error) {
	msg, err := scanMessage(s.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM direct_messages WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DirectMessage{}, storage.ErrNotFound{Resource: "message", ID: id}
	}
	return msg, err
}

func (s *Store) QueryMessages(ctx context.Context, filter storage.MessageFilter) ([]domain.DirectMessage, error) {
	var where string
	var args []any
	if filter.CounterpartyID != "" {
		where = "(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)"
		args = []any{filter.ParticipantID, filter.CounterpartyID, filter.CounterpartyID, filter.ParticipantID}
	} else {
		where = "sender_id = ? OR receiver_id = ?"
		args = []any{filter.ParticipantID, filter.ParticipantID}
	}

	query := "SELECT " + messageColumns + " FROM direct_messages WHERE " + where + " ORDER BY created_at ASC, id ASC"
	if filter.Limit > 0 {
		// Most recent Limit messages, still returned oldest first.
		query = "SELECT * FROM (SELECT " + messageColumns + " FROM direct_messages WHERE " + where +
			" ORDER BY created_at DESC, id DESC LIMIT ?) ORDER BY created_at ASC, id ASC"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
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
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var updated []domain.DirectMessage
	for _, id := range ids {
		res, err := tx.ExecContext(ctx, `
			UPDATE direct_messages SET is_read = ? WHERE id = ? AND is_read != ?
		`, isRead, id, isRead)
		if err != nil {
			return nil, fmt.Errorf("failed to update read flag for %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			continue
		}
		msg, err := scanMessage(tx.QueryRowContext(ctx, `
			SELECT `+messageColumns+` FROM direct_messages WHERE id = ?
		`, id))
		if err != nil {
			return nil, err
		}
		updated = append(updated, msg)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return updated, nil
}

// Verify interface compliance
var _ storage.Store = (*Store)(nil)
