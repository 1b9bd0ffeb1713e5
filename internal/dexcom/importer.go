package dexcom

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/Cristi184/diabetDashApp-sub000/internal/bloodsugar"
	"github.com/Cristi184/diabetDashApp-sub000/internal/domain"
	"github.com/Cristi184/diabetDashApp-sub000/internal/storage"
)

// Fetcher returns recent CGM readings.
type Fetcher interface {
	FetchReadings(ctx context.Context, maxCount, minutes int) ([]Reading, error)
}

// ImportResult reports what an import did.
type ImportResult struct {
	Imported int `json:"imported"`
	// Skipped counts readings with a malformed timestamp or a non-positive value.
	Skipped int `json:"skipped"`
}

// Importer copies Dexcom readings into the glucose store.
type Importer struct {
	fetcher Fetcher
	store   storage.EventStore
	logger  zerolog.Logger
}

// NewImporter creates an importer.
func NewImporter(fetcher Fetcher, store storage.EventStore, logger zerolog.Logger) *Importer {
	return &Importer{fetcher: fetcher, store: store, logger: logger}
}

// ReadingID derives a stable id so that importing the same reading twice overwrites it.
func ReadingID(subjectID string, ms int64) string {
	return "dexcom-" + subjectID + "-" + strconv.FormatInt(ms, 10)
}

// Import fetches up to maxCount readings from the last minutes minutes and saves them for subjectID.
func (i *Importer) Import(ctx context.Context, subjectID string, minutes, maxCount int) (ImportResult, error) {
	readings, err := i.fetcher.FetchReadings(ctx, maxCount, minutes)
	if err != nil {
		return ImportResult{}, err
	}

	var res ImportResult
	out := make([]domain.GlucoseReading, 0, len(readings))
	for _, r := range readings {
		ts := r.Time()
		if ts.IsZero() || r.Value <= 0 {
			res.Skipped++
			i.logger.Warn().Str("wt", r.WT).Int("value", r.Value).Msg("skipping malformed dexcom reading")
			continue
		}
		out = append(out, domain.GlucoseReading{
			ID:        ReadingID(subjectID, ts.UnixMilli()),
			SubjectID: subjectID,
			Value:     float64(r.Value),
			Timestamp: ts,
			Note:      "dexcom " + bloodsugar.MapTrendArrow(r.Trend),
		})
	}

	if len(out) > 0 {
		if err := i.store.SaveGlucoseReadings(ctx, out...); err != nil {
			return res, fmt.Errorf("failed to save dexcom readings: %w", err)
		}
	}
	res.Imported = len(out)

	i.logger.Info().
		Str("subject_id", subjectID).
		Int("imported", res.Imported).
		Int("skipped", res.Skipped).
		Msg("dexcom import finished")
	return res, nil
}
