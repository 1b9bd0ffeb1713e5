// Package bloodsugar classifies glucose values and summarizes readings.
package bloodsugar

import (
	"math"
	"strings"
	"time"

	"github.com/Cristi184/diabetDashApp-sub000/internal/domain"
)

// RangeStatus represents the glucose range classification.
type RangeStatus string

const (
	RangeUrgentLow RangeStatus = "urgentLow"
	RangeLow       RangeStatus = "low"
	RangeNormal    RangeStatus = "normal"
	RangeHigh      RangeStatus = "high"
	RangeVeryHigh  RangeStatus = "veryHigh"
)

// Glucose thresholds in mg/dL.
const (
	ThresholdUrgentLow = 55
	ThresholdLow       = 70
	ThresholdHigh      = 180
	ThresholdVeryHigh  = 250
)

// StaleThreshold is how old a reading can be before it's considered stale.
const StaleThreshold = 10 * time.Minute

// TrendArrows maps Dexcom trend names to text arrows.
var TrendArrows = map[string]string{
	"doubleup":      "^^",
	"singleup":      "^",
	"fortyfiveup":   "/",
	"flat":          "-",
	"fortyfivedown": "\\",
	"singledown":    "v",
	"doubledown":    "vv",
}

// ClassifyRange determines the range status for a glucose value.
func ClassifyRange(mgdl float64) RangeStatus {
	if mgdl < ThresholdUrgentLow {
		return RangeUrgentLow
	}
	if mgdl < ThresholdLow {
		return RangeLow
	}
	if mgdl <= ThresholdHigh {
		return RangeNormal
	}
	if mgdl <= ThresholdVeryHigh {
		return RangeHigh
	}
	return RangeVeryHigh
}

// MapTrendArrow converts a Dexcom trend string to a display arrow.
func MapTrendArrow(trend string) string {
	lower := strings.ToLower(trend)
	if arrow, ok := TrendArrows[lower]; ok {
		return arrow
	}
	return "?"
}

// IsStaleReading checks if a reading taken at ts is older than the stale threshold at now.
func IsStaleReading(ts, now time.Time) bool {
	return now.Sub(ts) >= StaleThreshold
}

// MgdlToMmol converts mg/dL to mmol/L, rounded to one decimal.
func MgdlToMmol(mgdl float64) float64 {
	return math.Round(mgdl/18.0182*10) / 10
}

// Summary describes the readings of one window.
type Summary struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	// InRange counts readings per range status.
	InRange map[RangeStatus]int `json:"inRange"`
}

// TimeInRange returns the share of readings classified as normal, between 0 and 1.
func (s Summary) TimeInRange() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.InRange[RangeNormal]) / float64(s.Count)
}

// Summarize computes count, mean, extremes and range distribution of readings.
func Summarize(readings []domain.GlucoseReading) Summary {
	s := Summary{InRange: make(map[RangeStatus]int)}
	if len(readings) == 0 {
		return s
	}

	var total float64
	s.Min, s.Max = math.Inf(1), math.Inf(-1)
	for _, r := range readings {
		total += r.Value
		s.Min = math.Min(s.Min, r.Value)
		s.Max = math.Max(s.Max, r.Value)
		s.InRange[ClassifyRange(r.Value)]++
	}
	s.Count = len(readings)
	s.Mean = total / float64(s.Count)
	return s
}
