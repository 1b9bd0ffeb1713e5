// Package server exposes charts, events and direct messages over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/Cristi184/diabetDashApp-sub000/internal/chart"
	"github.com/Cristi184/diabetDashApp-sub000/internal/chat"
	"github.com/Cristi184/diabetDashApp-sub000/internal/domain"
	"github.com/Cristi184/diabetDashApp-sub000/internal/realtime"
	"github.com/Cristi184/diabetDashApp-sub000/internal/storage"
	"github.com/Cristi184/diabetDashApp-sub000/internal/timewindow"
)

// Deps are the services the HTTP layer is built on. Messages should publish its
// changes to PubSub so that WebSocket clients see them.
type Deps struct {
	Charts   *chart.Service
	Events   storage.EventStore
	Messages storage.MessageStore
	PubSub   realtime.PubSub
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for access logs and connection errors.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithLocation sets the time zone whose calendar bounds chart windows.
func WithLocation(loc *time.Location) Option {
	return func(s *Server) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithAutoMarkRead sets whether WebSocket sessions mark inbound messages read on delivery.
func WithAutoMarkRead(enabled bool) Option {
	return func(s *Server) { s.autoMarkRead = enabled }
}

// WithSwipeThreshold sets the drag distance the chart endpoint treats as a swipe.
func WithSwipeThreshold(px float64) Option {
	return func(s *Server) { s.swipeThreshold = px }
}

// WithAllowedOrigins sets the origins allowed to open WebSockets. "*" allows any.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.allowedOrigins = origins }
}

// Server is the HTTP API.
type Server struct {
	echo     *echo.Echo
	charts   *chart.Service
	events   storage.EventStore
	messages storage.MessageStore
	pubsub   realtime.PubSub
	inbox    *chat.Inbox

	loc            *time.Location
	now            func() time.Time
	autoMarkRead   bool
	swipeThreshold float64
	allowedOrigins []string
	upgrader       *websocket.Upgrader
	logger         zerolog.Logger

	closing   chan struct{}
	closeOnce sync.Once
	conns     sync.WaitGroup
}

// New builds the server and registers its routes.
func New(deps Deps, opts ...Option) *Server {
	s := &Server{
		charts:       deps.Charts,
		events:       deps.Events,
		messages:     deps.Messages,
		pubsub:       deps.PubSub,
		inbox:        chat.NewInbox(deps.Messages),
		loc:          time.Local,
		now:          time.Now,
		autoMarkRead: true,
		logger:       zerolog.Nop(),
		closing:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.upgrader = newUpgrader(s.allowedOrigins)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(Recovery(s.logger))
	e.Use(RequestID())
	e.Use(Logger(s.logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	api := e.Group("/api")
	api.GET("/subjects/:id/chart", s.handleChart)
	api.POST("/subjects/:id/glucose", s.handleSaveGlucose)
	api.DELETE("/glucose/:id", s.handleDeleteGlucose)
	api.POST("/subjects/:id/meals", s.handleSaveMeal)
	api.POST("/subjects/:id/treatments", s.handleSaveTreatment)
	api.GET("/users/:id/conversations", s.handleConversations)
	api.GET("/conversations/:viewer/:counterparty/messages", s.handleMessages)
	api.POST("/messages", s.handleSendMessage)
	api.POST("/messages/read", s.handleMarkRead)
	api.GET("/ws", s.handleWebSocket)

	s.echo = e
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("starting server")
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, closes WebSocket connections and waits for them.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.closing) })
	err := s.echo.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var fetchErr *chart.FetchError
	switch {
	case errors.Is(err, timewindow.ErrInvalidGranularity),
		errors.Is(err, timewindow.ErrFutureOffset),
		errors.Is(err, timewindow.ErrOffsetOutOfRange),
		errors.Is(err, domain.ErrInvalidEvent):
		return http.StatusBadRequest
	case storage.IsNotFound(err):
		return http.StatusNotFound
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c echo.Context, err error) error {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		// Surfaces in the access log.
		return err
	}
	return c.JSON(status, errorResponse{Error: err.Error()})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}
