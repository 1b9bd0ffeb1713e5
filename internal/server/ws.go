package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/Cristi184/diabetDashApp-sub000/internal/chat"
	"github.com/Cristi184/diabetDashApp-sub000/internal/domain"
)

// Frame types exchanged over the chat WebSocket.
const (
	FrameHistory = "history" // server: current conversation, oldest first
	FrameMessage = "message" // server: a message newly added to the conversation
	FrameRead    = "read"    // server: read flag changed; client: mark ids read
	FrameError   = "error"   // server: a failed request or background write
	FrameSend    = "send"    // client: send body to the counterparty
)

const (
	sendBufferSize   = 256
	wsRequestTimeout = 10 * time.Second
	closeGracePeriod = time.Second
)

// newUpgrader accepts origins listed in allowed, any origin for "*", and
// otherwise falls back to gorilla's same-origin check.
func newUpgrader(allowed []string) *websocket.Upgrader {
	u := &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if len(allowed) == 0 {
		return u
	}
	if slices.Contains(allowed, "*") {
		u.CheckOrigin = func(r *http.Request) bool { return true }
		return u
	}
	u.CheckOrigin = func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
	return u
}

// Frame is a server-to-client WebSocket message.
type Frame struct {
	Type     string                 `json:"type"`
	Message  *domain.DirectMessage  `json:"message,omitempty"`
	Messages []domain.DirectMessage `json:"messages,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// ClientFrame is a client-to-server WebSocket message.
type ClientFrame struct {
	Type string   `json:"type"`
	Body string   `json:"body,omitempty"`
	IDs  []string `json:"ids,omitempty"`
}

// wsConn bridges one chat.Session to one WebSocket connection.
type wsConn struct {
	ws      *websocket.Conn
	session *chat.Session
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	logger  zerolog.Logger
}

// enqueue never blocks; frames are dropped once the connection is gone or its buffer is full.
func (c *wsConn) enqueue(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		c.logger.Error().Err(err).Str("frame", f.Type).Msg("failed to encode frame")
		return
	}

	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- data:
	case <-c.done:
	default:
		c.logger.Warn().Str("frame", f.Type).Msg("websocket send buffer full, dropping frame")
	}
}

func (c *wsConn) close() {
	c.once.Do(func() {
		close(c.done)
		if err := c.session.Close(); err != nil {
			c.logger.Warn().Err(err).Msg("failed to close chat session")
		}
		if c.ws != nil {
			_ = c.ws.Close()
		}
	})
}

// handleWebSocket serves GET /api/ws?viewer=&counterparty=, a live conversation stream.
func (s *Server) handleWebSocket(c echo.Context) error {
	viewerID := c.QueryParam("viewer")
	counterpartyID := c.QueryParam("counterparty")
	if viewerID == "" || counterpartyID == "" {
		return badRequest(c, "viewer and counterparty are required")
	}
	if viewerID == counterpartyID {
		return badRequest(c, "viewer and counterparty must differ")
	}

	rid, _ := c.Get("request_id").(string)
	conn := &wsConn{
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
		logger: s.logger.With().
			Str("request_id", rid).
			Str("viewer_id", viewerID).
			Str("counterparty_id", counterpartyID).
			Logger(),
	}
	conn.session = chat.NewSession(s.messages, s.pubsub, viewerID,
		chat.WithAutoMarkRead(s.autoMarkRead),
		chat.WithLogger(s.logger),
		chat.WithReadStateHandler(func(m domain.DirectMessage) {
			conn.enqueue(Frame{Type: FrameRead, Message: &m})
		}),
		chat.WithErrorHandler(func(err error) {
			conn.enqueue(Frame{Type: FrameError, Error: err.Error()})
		}),
	)

	ctx := c.Request().Context()
	err := conn.session.Subscribe(ctx, counterpartyID, func(m domain.DirectMessage) {
		conn.enqueue(Frame{Type: FrameMessage, Message: &m})
	})
	if err != nil {
		_ = conn.session.Close()
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	}

	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already replied.
		_ = conn.session.Close()
		conn.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return nil
	}
	conn.ws = ws

	history, err := conn.session.LoadHistory(ctx)
	if err != nil {
		conn.enqueue(Frame{Type: FrameError, Error: err.Error()})
	} else {
		conn.enqueue(Frame{Type: FrameHistory, Messages: history})
	}

	s.conns.Add(2)
	go s.writePump(conn)
	go s.readPump(conn)

	return nil
}

// readPump applies client frames to the session until the connection fails.
func (s *Server) readPump(conn *wsConn) {
	defer s.conns.Done()
	defer conn.close()

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}

		var f ClientFrame
		if err := json.Unmarshal(data, &f); err != nil {
			conn.enqueue(Frame{Type: FrameError, Error: "malformed frame"})
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), wsRequestTimeout)
		switch f.Type {
		case FrameSend:
			_, err = conn.session.Send(ctx, f.Body)
		case FrameRead:
			err = conn.session.MarkRead(ctx, f.IDs...)
		default:
			err = fmt.Errorf("unknown frame type %q", f.Type)
		}
		cancel()

		if err != nil {
			conn.enqueue(Frame{Type: FrameError, Error: err.Error()})
		}
	}
}

// writePump writes queued frames until the connection closes or the server shuts down.
func (s *Server) writePump(conn *wsConn) {
	defer s.conns.Done()
	defer conn.close()

	for {
		select {
		case data := <-conn.send:
			if err := conn.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-conn.done:
			return
		case <-s.closing:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			_ = conn.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
			return
		}
	}
}
