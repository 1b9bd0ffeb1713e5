package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DirectMessage is a message between a patient and a clinician.
type DirectMessage struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Body       string    `json:"body"`
	IsRead     bool      `json:"isRead"`
	CreatedAt  time.Time `json:"createdAt"`
}

// NewDirectMessage creates an unread message with a fresh ID and the current timestamp.
func NewDirectMessage(senderID, receiverID, body string) DirectMessage {
	return DirectMessage{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Body:       body,
		CreatedAt:  time.Now().UTC(),
	}
}

// Validate checks the message's invariants.
func (m DirectMessage) Validate() error {
	if m.SenderID == "" || m.ReceiverID == "" {
		return fmt.Errorf("%w: message needs sender and receiver", ErrInvalidEvent)
	}
	if m.SenderID == m.ReceiverID {
		return fmt.Errorf("%w: sender and receiver are the same user", ErrInvalidEvent)
	}
	if m.Body == "" {
		return fmt.Errorf("%w: empty message body", ErrInvalidEvent)
	}
	return nil
}

// Counterparty returns the participant that is not viewerID, or "" if viewerID is not a participant.
func (m DirectMessage) Counterparty(viewerID string) string {
	switch viewerID {
	case m.SenderID:
		return m.ReceiverID
	case m.ReceiverID:
		return m.SenderID
	default:
		return ""
	}
}

// Between reports whether the message was exchanged by a and b, in either direction.
func (m DirectMessage) Between(a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

// Conversation summarizes the messages a viewer exchanged with one counterparty.
type Conversation struct {
	CounterpartyID string         `json:"counterpartyId"`
	LastMessage    *DirectMessage `json:"lastMessage,omitempty"`
	UnreadCount    int            `json:"unreadCount"`
}
