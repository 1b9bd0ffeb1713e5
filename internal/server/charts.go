package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Cristi184/diabetDashApp-sub000/internal/bloodsugar"
	"github.com/Cristi184/diabetDashApp-sub000/internal/chart"
	"github.com/Cristi184/diabetDashApp-sub000/internal/domain"
	"github.com/Cristi184/diabetDashApp-sub000/internal/navigator"
	"github.com/Cristi184/diabetDashApp-sub000/internal/timewindow"
)

const viewClinician = "clinician"

type chartPoint struct {
	Timestamp   time.Time              `json:"timestamp"`
	Kind        domain.EventKind       `json:"kind"`
	Glucose     *float64               `json:"glucose"`
	GlucoseMmol *float64               `json:"glucoseMmol,omitempty"`
	RangeStatus bloodsugar.RangeStatus `json:"rangeStatus,omitempty"`
	Payload     domain.Payload         `json:"payload"`
}

type chartResponse struct {
	SubjectID   string                 `json:"subjectId"`
	Granularity timewindow.Granularity `json:"range"`
	Offset      int                    `json:"offset"`
	Action      string                 `json:"action,omitempty"`
	Window      timewindow.Window      `json:"window"`
	Points      []chartPoint           `json:"points"`
	Empty       bool                   `json:"empty"` // never set alongside Error
	DataErrors  int                    `json:"dataErrors"`
	Stale       bool                   `json:"stale"`
	Summary     bloodsugar.Summary     `json:"summary"`
	TimeInRange float64                `json:"timeInRange"`
	Error       string                 `json:"error,omitempty"`
}

func newChartResponse(subjectID string, g timewindow.Granularity, offset int, res chart.Result) chartResponse {
	points := make([]chartPoint, 0, len(res.Points))
	var readings []domain.GlucoseReading
	for _, p := range res.Points {
		cp := chartPoint{Timestamp: p.Timestamp, Kind: p.Kind, Glucose: p.Glucose, Payload: p.Payload}
		if p.Plottable() {
			mmol := bloodsugar.MgdlToMmol(*p.Glucose)
			cp.GlucoseMmol = &mmol
			cp.RangeStatus = bloodsugar.ClassifyRange(*p.Glucose)
		}
		if r, ok := p.Payload.(domain.GlucoseReading); ok {
			readings = append(readings, r)
		}
		points = append(points, cp)
	}

	summary := bloodsugar.Summarize(readings)
	return chartResponse{
		SubjectID:   subjectID,
		Granularity: g,
		Offset:      offset,
		Window:      res.Window,
		Points:      points,
		Empty:       res.Empty(),
		DataErrors:  res.DataErrors,
		Stale:       res.Stale,
		Summary:     summary,
		TimeInRange: summary.TimeInRange(),
	}
}

// handleChart serves GET /api/subjects/:id/chart?range=day|week|month|2months|3months&offset=-n&dx=px&view=clinician.
// dx is the horizontal drag distance of a swipe applied to offset.
func (s *Server) handleChart(c echo.Context) error {
	subjectID := c.Param("id")

	rangeParam := c.QueryParam("range")
	if rangeParam == "" {
		rangeParam = string(timewindow.Day)
	}
	g, err := timewindow.ParseGranularity(rangeParam)
	if err != nil {
		return badRequest(c, err.Error())
	}

	offset := 0
	if raw := c.QueryParam("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil {
			return badRequest(c, "offset must be an integer")
		}
	}
	if offset < timewindow.MinOffset {
		return respondError(c, timewindow.ErrOffsetOutOfRange)
	}

	// A drag gesture moves from offset before the window is resolved.
	var action string
	if raw := c.QueryParam("dx"); raw != "" {
		dx, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return badRequest(c, "dx must be a number")
		}
		if offset > 0 {
			return respondError(c, timewindow.ErrFutureOffset)
		}
		nav := navigator.New(
			navigator.WithGranularity(g),
			navigator.WithOffset(offset),
			navigator.WithSwipeThreshold(s.swipeThreshold),
		)
		action = nav.HandleDrag(0, dx).String()
		offset = nav.Offset()
	}

	var opts []chart.AlignOption
	if c.QueryParam("view") == viewClinician {
		opts = append(opts, chart.WithoutTreatments())
	}

	now := s.now().In(s.loc)
	res, err := s.charts.ChartPoints(c.Request().Context(), subjectID, g, offset, now, opts...)
	if err != nil {
		var fetchErr *chart.FetchError
		if errors.As(err, &fetchErr) {
			body := newChartResponse(subjectID, g, offset, res)
			body.Action = action
			body.Empty = false
			body.Error = err.Error()
			return c.JSON(http.StatusBadGateway, body)
		}
		return respondError(c, err)
	}
	body := newChartResponse(subjectID, g, offset, res)
	body.Action = action
	return c.JSON(http.StatusOK, body)
}
