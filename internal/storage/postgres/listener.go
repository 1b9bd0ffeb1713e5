package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/Cristi184/diabetDashApp-sub000/internal/realtime"
	"github.com/Cristi184/diabetDashApp-sub000/internal/storage"
)

// notification is the payload raised by notify_direct_message.
type notification struct {
	Type realtime.EventType `json:"type"`
	ID   string             `json:"id"`
}

func decodeNotification(payload string) (notification, error) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return notification{}, fmt.Errorf("failed to decode notification: %w", err)
	}
	switch n.Type {
	case realtime.Insert, realtime.Update:
	default:
		return notification{}, fmt.Errorf("unexpected notification type %q", n.Type)
	}
	if n.ID == "" {
		return notification{}, errors.New("notification without message id")
	}
	return n, nil
}

// Listener turns direct_messages notifications into realtime changes.
type Listener struct {
	pool      *pgxpool.Pool
	store     storage.MessageStore
	publisher realtime.Publisher
	logger    zerolog.Logger
}

// NewListener creates a listener that loads notified rows from store and publishes them.
func NewListener(pool *pgxpool.Pool, store storage.MessageStore, publisher realtime.Publisher, logger zerolog.Logger) *Listener {
	return &Listener{pool: pool, store: store, publisher: publisher, logger: logger}
}

// Run listens until ctx is done. It holds one pool connection for its lifetime.
func (l *Listener) Run(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{NotifyChannel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", NotifyChannel, err)
	}
	l.logger.Info().Str("channel", NotifyChannel).Msg("listening for message changes")

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wait for notification: %w", err)
		}
		if err := l.dispatch(ctx, n.Payload); err != nil {
			l.logger.Error().Err(err).Str("payload", n.Payload).Msg("failed to dispatch notification")
		}
	}
}

func (l *Listener) dispatch(ctx context.Context, payload string) error {
	n, err := decodeNotification(payload)
	if err != nil {
		return err
	}

	msg, err := l.store.GetMessage(ctx, n.ID)
	if err != nil {
		return fmt.Errorf("failed to load message %s: %w", n.ID, err)
	}
	return l.publisher.Publish(ctx, realtime.Change{Type: n.Type, Message: msg})
}
