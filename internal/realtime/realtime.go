// Package realtime delivers direct-message row changes to subscribers.
// Subscriptions filter on one column of the direct_messages table, the way
// database change feeds do.
package realtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/Cristi184/diabetDashApp-sub000/internal/domain"
)

// EventType is the kind of row change.
type EventType string

const (
	Insert EventType = "INSERT"
	Update EventType = "UPDATE"
)

// Column is a filterable direct_messages column.
type Column string

const (
	ColumnSenderID   Column = "sender_id"
	ColumnReceiverID Column = "receiver_id"
)

var (
	// ErrInvalidFilter is returned when subscribing with an incomplete or unknown filter.
	ErrInvalidFilter = errors.New("invalid subscription filter")
	// ErrClosed is returned when subscribing to a closed hub.
	ErrClosed = errors.New("pubsub closed")
)

// Filter selects the changes a subscription receives: rows with the given event type
// whose Column equals Value.
type Filter struct {
	Event  EventType
	Column Column
	Value  string
}

// Validate checks that the filter names a known event and column and a value.
func (f Filter) Validate() error {
	switch f.Event {
	case Insert, Update:
	default:
		return fmt.Errorf("%w: unknown event %q", ErrInvalidFilter, f.Event)
	}
	switch f.Column {
	case ColumnSenderID, ColumnReceiverID:
	default:
		return fmt.Errorf("%w: unknown column %q", ErrInvalidFilter, f.Column)
	}
	if f.Value == "" {
		return fmt.Errorf("%w: empty value", ErrInvalidFilter)
	}
	return nil
}

// Matches reports whether c passes the filter.
func (f Filter) Matches(c Change) bool {
	if c.Type != f.Event {
		return false
	}
	switch f.Column {
	case ColumnSenderID:
		return c.Message.SenderID == f.Value
	case ColumnReceiverID:
		return c.Message.ReceiverID == f.Value
	}
	return false
}

func (f Filter) String() string {
	return string(f.Event) + ":" + string(f.Column) + "=eq." + f.Value
}

// Change is a row change on direct_messages.
type Change struct {
	Type    EventType            `json:"type"`
	Message domain.DirectMessage `json:"record"`
}

// topics returns the filter keys that match c.
func (c Change) topics() []string {
	return []string{
		Filter{Event: c.Type, Column: ColumnSenderID, Value: c.Message.SenderID}.String(),
		Filter{Event: c.Type, Column: ColumnReceiverID, Value: c.Message.ReceiverID}.String(),
	}
}

// Handler receives changes for one subscription. Calls for a single subscription are sequential.
type Handler func(Change)

// Handle identifies a subscription.
type Handle string

// PubSub attaches and detaches filtered change subscriptions.
type PubSub interface {
	// Subscribe attaches handler to changes matching filter. ctx bounds the attach only.
	Subscribe(ctx context.Context, filter Filter, handler Handler) (Handle, error)
	// Unsubscribe detaches a subscription. Unknown or already detached handles are not an error.
	Unsubscribe(h Handle) error
}

// Publisher fans a change out to matching subscriptions.
type Publisher interface {
	Publish(ctx context.Context, c Change) error
}
