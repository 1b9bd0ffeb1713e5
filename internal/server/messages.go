package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Cristi184/diabetDashApp-sub000/internal/domain"
	"github.com/Cristi184/diabetDashApp-sub000/internal/storage"
)

type sendMessageRequest struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Body       string `json:"body"`
}

type markReadRequest struct {
	IDs []string `json:"ids"`
}

type markReadResponse struct {
	Updated []domain.DirectMessage `json:"updated"`
}

func (s *Server) handleConversations(c echo.Context) error {
	convs, err := s.inbox.Conversations(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	if convs == nil {
		convs = []domain.Conversation{}
	}
	return c.JSON(http.StatusOK, convs)
}

// handleMessages returns the conversation between :viewer and :counterparty, oldest first.
// ?limit=n keeps only the n most recent.
func (s *Server) handleMessages(c echo.Context) error {
	filter := storage.MessageFilter{
		ParticipantID:  c.Param("viewer"),
		CounterpartyID: c.Param("counterparty"),
	}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return badRequest(c, "limit must be a non-negative integer")
		}
		filter.Limit = limit
	}

	msgs, err := s.messages.QueryMessages(c.Request().Context(), filter)
	if err != nil {
		return respondError(c, err)
	}
	if msgs == nil {
		msgs = []domain.DirectMessage{}
	}
	return c.JSON(http.StatusOK, msgs)
}

func (s *Server) handleSendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid message")
	}

	msg := domain.NewDirectMessage(req.SenderID, req.ReceiverID, req.Body)
	if err := msg.Validate(); err != nil {
		return respondError(c, err)
	}
	if err := s.messages.InsertMessage(c.Request().Context(), msg); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, msg)
}

func (s *Server) handleMarkRead(c echo.Context) error {
	var req markReadRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	if len(req.IDs) == 0 {
		return badRequest(c, "ids must not be empty")
	}

	updated, err := s.messages.UpdateReadFlag(c.Request().Context(), true, req.IDs...)
	if err != nil {
		return respondError(c, err)
	}
	if updated == nil {
		updated = []domain.DirectMessage{}
	}
	return c.JSON(http.StatusOK, markReadResponse{Updated: updated})
}
