package chart

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/simplelru"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Cristi184/diabetDashApp-sub000/internal/domain"
	"github.com/Cristi184/diabetDashApp-sub000/internal/storage"
	"github.com/Cristi184/diabetDashApp-sub000/internal/timewindow"
)

// Collection names used in FetchError.
const (
	CollectionGlucose    = "glucose_readings"
	CollectionMeals      = "meals"
	CollectionTreatments = "treatments"
)

// DefaultCacheSize is the number of last-known-good results kept per service.
const DefaultCacheSize = 128

// FetchError reports that one of the event collections could not be loaded.
type FetchError struct {
	Collection string
	Err        error
}

func (e *FetchError) Error() string {
	return "failed to fetch " + e.Collection + ": " + e.Err.Error()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Result is the chart data for one window.
type Result struct {
	Window     timewindow.Window   `json:"window"`
	Points     []domain.ChartPoint `json:"points"`
	DataErrors int                 `json:"dataErrors"`
	// Stale is set when Points come from an earlier successful fetch because the latest one failed.
	Stale bool `json:"stale"`
}

// Empty reports whether the window holds no events at all.
func (r Result) Empty() bool {
	return len(r.Points) == 0
}

// Service loads a subject's events for a window and aligns them.
type Service struct {
	events       storage.EventStore
	fetchTimeout time.Duration
	logger       zerolog.Logger

	mu    sync.Mutex
	cache *simplelru.LRU
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceConfig)

type serviceConfig struct {
	cacheSize    int
	fetchTimeout time.Duration
	logger       zerolog.Logger
}

// WithCacheSize sets how many last-known-good results are retained.
func WithCacheSize(n int) ServiceOption {
	return func(c *serviceConfig) { c.cacheSize = n }
}

// WithFetchTimeout bounds the concurrent collection fetch. Zero disables the bound.
func WithFetchTimeout(d time.Duration) ServiceOption {
	return func(c *serviceConfig) { c.fetchTimeout = d }
}

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) ServiceOption {
	return func(c *serviceConfig) { c.logger = l }
}

// NewService creates a chart service reading from events.
func NewService(events storage.EventStore, opts ...ServiceOption) (*Service, error) {
	cfg := serviceConfig{cacheSize: DefaultCacheSize, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	cache, err := simplelru.NewLRU(cfg.cacheSize, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create chart cache: %w", err)
	}

	return &Service{
		events:       events,
		fetchTimeout: cfg.fetchTimeout,
		logger:       cfg.logger,
		cache:        cache,
	}, nil
}

// ChartPoints resolves the window for (g, offset) relative to now, fetches the three
// collections concurrently and aligns them.
//
// Invalid granularity or offset errors are returned unchanged. A failed fetch returns a
// *FetchError; when an earlier result for the same window exists it is returned too,
// marked Stale. If ctx is cancelled the fetched data is discarded and ctx.Err() returned.
func (s *Service) ChartPoints(ctx context.Context, subjectID string, g timewindow.Granularity, offset int, now time.Time, opts ...AlignOption) (Result, error) {
	w, err := timewindow.Resolve(g, offset, now)
	if err != nil {
		return Result{}, err
	}

	cfg := newAlignConfig(opts)
	key := cacheKey(subjectID, g, w, cfg)

	fetchCtx := ctx
	if s.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
	}

	var (
		readings   []domain.GlucoseReading
		meals      []domain.MealEvent
		treatments []domain.TreatmentEvent
	)
	period := storage.Period{Since: w.Start, Until: w.End}

	eg, gctx := errgroup.WithContext(fetchCtx)
	eg.Go(func() error {
		var err error
		readings, err = s.events.QueryGlucoseReadings(gctx, subjectID, period)
		if err != nil {
			return &FetchError{Collection: CollectionGlucose, Err: err}
		}
		return nil
	})
	if cfg.meals {
		eg.Go(func() error {
			var err error
			meals, err = s.events.QueryMeals(gctx, subjectID, period)
			if err != nil {
				return &FetchError{Collection: CollectionMeals, Err: err}
			}
			return nil
		})
	}
	if cfg.treatments {
		eg.Go(func() error {
			var err error
			treatments, err = s.events.QueryTreatments(gctx, subjectID, period)
			if err != nil {
				return &FetchError{Collection: CollectionTreatments, Err: err}
			}
			return nil
		})
	}

	err = eg.Wait()
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}
	if err != nil {
		log := s.logger.Warn().Err(err).Str("subject_id", subjectID).Stringer("window", w)
		if cached, ok := s.lookup(key); ok {
			log.Msg("chart fetch failed, serving last known good")
			cached.Stale = true
			return cached, err
		}
		log.Msg("chart fetch failed")
		return Result{Window: w}, err
	}

	a := Align(w, readings, meals, treatments, opts...)
	if a.DataErrors > 0 {
		s.logger.Warn().
			Str("subject_id", subjectID).
			Int("data_errors", a.DataErrors).
			Msg("dropped events with unreadable timestamps")
	}

	res := Result{Window: w, Points: a.Points, DataErrors: a.DataErrors}
	s.remember(key, res)
	return res, nil
}

func cacheKey(subjectID string, g timewindow.Granularity, w timewindow.Window, cfg alignConfig) string {
	return fmt.Sprintf("%s|%s|%d|%t|%t", subjectID, g, w.Start.UnixNano(), cfg.meals, cfg.treatments)
}

func (s *Service) lookup(key string) (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.cache.Get(key)
	if !ok {
		return Result{}, false
	}
	res := v.(Result)
	res.Points = slices.Clone(res.Points)
	return res, true
}

func (s *Service) remember(key string, res Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res.Points = slices.Clone(res.Points)
	_ = s.cache.Add(key, res)
}
