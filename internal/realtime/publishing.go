package realtime

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Cristi184/diabetDashApp-sub000/internal/domain"
	"github.com/Cristi184/diabetDashApp-sub000/internal/storage"
)

// PublishingStore wraps a MessageStore and publishes a Change after every successful
// insert or read-flag update, the way row triggers feed a database change stream.
type PublishingStore struct {
	storage.MessageStore
	publisher Publisher
	logger    zerolog.Logger
}

var _ storage.MessageStore = (*PublishingStore)(nil)

// NewPublishingStore wraps store so that writes are published to publisher.
func NewPublishingStore(store storage.MessageStore, publisher Publisher, logger zerolog.Logger) *PublishingStore {
	return &PublishingStore{MessageStore: store, publisher: publisher, logger: logger}
}

// InsertMessage stores msg and publishes an Insert change.
func (s *PublishingStore) InsertMessage(ctx context.Context, msg domain.DirectMessage) error {
	if err := s.MessageStore.InsertMessage(ctx, msg); err != nil {
		return err
	}
	s.publish(ctx, Change{Type: Insert, Message: msg})
	return nil
}

// UpdateReadFlag updates the flags and publishes an Update change per changed row.
func (s *PublishingStore) UpdateReadFlag(ctx context.Context, isRead bool, ids ...string) ([]domain.DirectMessage, error) {
	updated, err := s.MessageStore.UpdateReadFlag(ctx, isRead, ids...)
	if err != nil {
		return nil, err
	}
	for _, msg := range updated {
		s.publish(ctx, Change{Type: Update, Message: msg})
	}
	return updated, nil
}

// publish never fails the write; the row is already committed.
func (s *PublishingStore) publish(ctx context.Context, c Change) {
	if err := s.publisher.Publish(ctx, c); err != nil {
		s.logger.Error().Err(err).
			Str("type", string(c.Type)).
			Str("message_id", c.Message.ID).
			Msg("failed to publish message change")
	}
}
