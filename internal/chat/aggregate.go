package chat

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/Cristi184/diabetDashApp-sub000/internal/domain"
	"github.com/Cristi184/diabetDashApp-sub000/internal/storage"
)

// Aggregate groups a viewer's messages by counterparty. Messages the viewer did not send
// or receive are ignored. Conversations are ordered most recent first.
func Aggregate(messages []domain.DirectMessage, viewerID string) []domain.Conversation {
	byCounterparty := make(map[string]*domain.Conversation)

	for _, msg := range messages {
		counterparty := msg.Counterparty(viewerID)
		if counterparty == "" {
			continue
		}

		conv, ok := byCounterparty[counterparty]
		if !ok {
			conv = &domain.Conversation{CounterpartyID: counterparty}
			byCounterparty[counterparty] = conv
		}

		if conv.LastMessage == nil || compareMessages(msg, *conv.LastMessage) > 0 {
			m := msg
			conv.LastMessage = &m
		}
		if msg.ReceiverID == viewerID && !msg.IsRead {
			conv.UnreadCount++
		}
	}

	out := make([]domain.Conversation, 0, len(byCounterparty))
	for _, conv := range byCounterparty {
		out = append(out, *conv)
	}
	slices.SortFunc(out, func(a, b domain.Conversation) int {
		if c := b.LastMessage.CreatedAt.Compare(a.LastMessage.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.CounterpartyID, b.CounterpartyID)
	})
	return out
}

// Inbox lists a user's conversations.
type Inbox struct {
	store storage.MessageStore
}

// NewInbox creates an Inbox reading from store.
func NewInbox(store storage.MessageStore) *Inbox {
	return &Inbox{store: store}
}

// Conversations returns viewerID's conversations, most recent first.
func (i *Inbox) Conversations(ctx context.Context, viewerID string) ([]domain.Conversation, error) {
	msgs, err := i.store.QueryMessages(ctx, storage.MessageFilter{ParticipantID: viewerID})
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	return Aggregate(msgs, viewerID), nil
}
