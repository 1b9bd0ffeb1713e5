// Package chat keeps a viewer's live view of one direct-message conversation and
// summarizes their inbox.
package chat

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/rs/zerolog"

	"github.com/Cristi184/diabetDashApp-sub000/internal/domain"
	"github.com/Cristi184/diabetDashApp-sub000/internal/realtime"
	"github.com/Cristi184/diabetDashApp-sub000/internal/storage"
)

const (
	// DefaultMarkReadTimeout bounds the background mark-as-read write.
	DefaultMarkReadTimeout = 10 * time.Second
	// DefaultHistoryLimit is the number of messages LoadHistory fetches.
	DefaultHistoryLimit = 200
)

var (
	// ErrSubscriptionFailed is wrapped by every SubscriptionError.
	ErrSubscriptionFailed = errors.New("subscription failed")
	// ErrNotSubscribed is returned by operations that need an open conversation.
	ErrNotSubscribed = errors.New("no conversation subscribed")
	// ErrSessionClosed is returned after Close.
	ErrSessionClosed = errors.New("chat session closed")
)

// SubscriptionError reports which change feed could not be attached.
// It matches both ErrSubscriptionFailed and the underlying cause with errors.Is.
type SubscriptionError struct {
	Filter realtime.Filter
	Err    error
}

func (e *SubscriptionError) Error() string {
	return "failed to subscribe to " + e.Filter.String() + ": " + e.Err.Error()
}

func (e *SubscriptionError) Unwrap() []error {
	return []error{ErrSubscriptionFailed, e.Err}
}

// Option configures a Session.
type Option func(*Session)

// WithAutoMarkRead controls whether inbound messages from the counterparty are marked
// read as soon as they arrive. Enabled by default.
func WithAutoMarkRead(enabled bool) Option {
	return func(s *Session) { s.autoMarkRead = enabled }
}

// WithReadStateHandler is called when a known message's read flag changes.
func WithReadStateHandler(fn func(domain.DirectMessage)) Option {
	return func(s *Session) { s.onReadState = fn }
}

// WithErrorHandler receives background failures, such as a failed mark-as-read.
func WithErrorHandler(fn func(error)) Option {
	return func(s *Session) { s.onError = fn }
}

// WithLogger sets the session logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithMarkReadTimeout bounds each background mark-as-read write.
func WithMarkReadTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.markTimeout = d
		}
	}
}

// WithHistoryLimit sets how many recent messages LoadHistory fetches.
func WithHistoryLimit(n int) Option {
	return func(s *Session) { s.historyLimit = n }
}

// Session is one viewer's live conversation with a single counterparty.
//
// Every message id enters local state at most once, however many change feeds deliver it.
// Subscribing again tears down the previous feeds, and changes still in flight from them
// are ignored.
type Session struct {
	store    storage.MessageStore
	pubsub   realtime.PubSub
	viewerID string

	autoMarkRead bool
	markTimeout  time.Duration
	historyLimit int
	onReadState  func(domain.DirectMessage)
	onError      func(error)
	logger       zerolog.Logger

	// subMu serializes Subscribe, Unsubscribe and Close.
	subMu sync.Mutex

	mu             sync.Mutex
	counterpartyID string
	generation     uint64
	handles        []realtime.Handle
	ids            mapset.Set[string]
	messages       []domain.DirectMessage
	onMessage      func(domain.DirectMessage)
	closed         bool

	inflight sync.WaitGroup
}

// NewSession creates a session for viewerID. Call Subscribe to open a conversation.
func NewSession(store storage.MessageStore, pubsub realtime.PubSub, viewerID string, opts ...Option) *Session {
	s := &Session{
		store:        store,
		pubsub:       pubsub,
		viewerID:     viewerID,
		autoMarkRead: true,
		markTimeout:  DefaultMarkReadTimeout,
		historyLimit: DefaultHistoryLimit,
		logger:       zerolog.Nop(),
		ids:          mapset.NewThreadUnsafeSet[string](),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("viewer_id", viewerID).Logger()
	return s
}

// ViewerID returns the user this session belongs to.
func (s *Session) ViewerID() string {
	return s.viewerID
}

// CounterpartyID returns the currently subscribed counterparty, or "".
func (s *Session) CounterpartyID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counterpartyID
}

// Subscribe opens the conversation with counterpartyID. Any previous subscription is
// torn down first. onMessage is called once for every message newly added to local state.
//
// Three feeds are attached: inserts received by the viewer, inserts sent by the viewer
// and read-flag updates on messages received by the viewer. If any of them fails the
// others are detached and a *SubscriptionError is returned.
func (s *Session) Subscribe(ctx context.Context, counterpartyID string, onMessage func(domain.DirectMessage)) error {
	if counterpartyID == "" || counterpartyID == s.viewerID {
		return fmt.Errorf("invalid counterparty %q", counterpartyID)
	}

	s.subMu.Lock()
	defer s.subMu.Unlock()

	if err := s.teardown(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to detach previous subscription")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.counterpartyID != counterpartyID {
		s.ids.Clear()
		s.messages = nil
	}
	s.counterpartyID = counterpartyID
	s.onMessage = onMessage
	gen := s.generation
	s.mu.Unlock()

	feeds := []struct {
		filter  realtime.Filter
		handler realtime.Handler
	}{
		{
			realtime.Filter{Event: realtime.Insert, Column: realtime.ColumnReceiverID, Value: s.viewerID},
			func(c realtime.Change) { s.handleInsert(gen, c.Message) },
		},
		{
			realtime.Filter{Event: realtime.Insert, Column: realtime.ColumnSenderID, Value: s.viewerID},
			func(c realtime.Change) { s.handleInsert(gen, c.Message) },
		},
		{
			realtime.Filter{Event: realtime.Update, Column: realtime.ColumnReceiverID, Value: s.viewerID},
			func(c realtime.Change) { s.handleUpdate(gen, c.Message) },
		},
	}

	handles := make([]realtime.Handle, 0, len(feeds))
	for _, feed := range feeds {
		h, err := s.pubsub.Subscribe(ctx, feed.filter, feed.handler)
		if err != nil {
			for _, attached := range handles {
				_ = s.pubsub.Unsubscribe(attached)
			}
			s.mu.Lock()
			s.generation++
			s.mu.Unlock()

			subErr := &SubscriptionError{Filter: feed.filter, Err: err}
			s.logger.Error().Err(subErr).Str("counterparty_id", counterpartyID).Msg("subscription failed")
			return subErr
		}
		handles = append(handles, h)
	}

	s.mu.Lock()
	s.handles = handles
	s.mu.Unlock()

	s.logger.Debug().Str("counterparty_id", counterpartyID).Msg("subscribed to conversation")
	return nil
}

// Unsubscribe detaches the current feeds. Calling it without a subscription is a no-op.
func (s *Session) Unsubscribe() error {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return s.teardown()
}

// teardown invalidates in-flight callbacks and detaches all handles. Callers hold subMu.
func (s *Session) teardown() error {
	s.mu.Lock()
	s.generation++
	handles := s.handles
	s.handles = nil
	s.mu.Unlock()

	var errs []error
	for _, h := range handles {
		if err := s.pubsub.Unsubscribe(h); err != nil {
			errs = append(errs, fmt.Errorf("failed to unsubscribe %s: %w", h, err))
		}
	}
	return errors.Join(errs...)
}

// Close unsubscribes and waits for background mark-as-read writes to finish.
func (s *Session) Close() error {
	s.subMu.Lock()
	err := s.teardown()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.subMu.Unlock()

	s.inflight.Wait()
	return err
}

func (s *Session) handleInsert(gen uint64, msg domain.DirectMessage) {
	s.mu.Lock()
	if gen != s.generation || !msg.Between(s.viewerID, s.counterpartyID) {
		s.mu.Unlock()
		return
	}
	if !s.ids.Add(msg.ID) {
		s.mu.Unlock()
		return
	}
	s.insertLocked(msg)

	onMessage := s.onMessage
	markRead := s.autoMarkRead && msg.ReceiverID == s.viewerID && !msg.IsRead
	if markRead {
		s.inflight.Add(1)
	}
	s.mu.Unlock()

	if onMessage != nil {
		onMessage(msg)
	}
	if markRead {
		go s.markReadAsync(msg.ID)
	}
}

func (s *Session) handleUpdate(gen uint64, msg domain.DirectMessage) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	updated, changed := s.setReadLocked(msg.ID, msg.IsRead)
	s.mu.Unlock()

	if changed && s.onReadState != nil {
		s.onReadState(updated)
	}
}

// markReadAsync persists the read flag without blocking message delivery.
func (s *Session) markReadAsync(ids ...string) {
	defer s.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.markTimeout)
	defer cancel()

	if _, err := s.store.UpdateReadFlag(ctx, true, ids...); err != nil {
		err = fmt.Errorf("failed to mark messages as read: %w", err)
		s.logger.Error().Err(err).Strs("message_ids", ids).Msg("auto mark-as-read failed")
		if s.onError != nil {
			s.onError(err)
		}
	}
}

// insertLocked adds msg keeping messages ordered by CreatedAt, then ID.
func (s *Session) insertLocked(msg domain.DirectMessage) {
	i, _ := slices.BinarySearchFunc(s.messages, msg, compareMessages)
	s.messages = slices.Insert(s.messages, i, msg)
}

func (s *Session) setReadLocked(id string, isRead bool) (domain.DirectMessage, bool) {
	for i := range s.messages {
		if s.messages[i].ID != id {
			continue
		}
		if s.messages[i].IsRead == isRead {
			return s.messages[i], false
		}
		s.messages[i].IsRead = isRead
		return s.messages[i], true
	}
	return domain.DirectMessage{}, false
}

func compareMessages(a, b domain.DirectMessage) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// Messages returns a snapshot of the conversation, oldest first.
func (s *Session) Messages() []domain.DirectMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

// LoadHistory fetches recent messages of the open conversation and merges them into
// local state without invoking onMessage. Unread inbound messages are marked read in the
// background when auto mark-as-read is enabled.
func (s *Session) LoadHistory(ctx context.Context) ([]domain.DirectMessage, error) {
	s.mu.Lock()
	counterpartyID, gen := s.counterpartyID, s.generation
	s.mu.Unlock()

	if counterpartyID == "" {
		return nil, ErrNotSubscribed
	}

	history, err := s.store.QueryMessages(ctx, storage.MessageFilter{
		ParticipantID:  s.viewerID,
		CounterpartyID: counterpartyID,
		Limit:          s.historyLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation history: %w", err)
	}

	s.mu.Lock()
	if gen != s.generation {
		// The conversation changed while loading.
		msgs := slices.Clone(s.messages)
		s.mu.Unlock()
		return msgs, nil
	}

	var unread []string
	for _, msg := range history {
		if s.ids.Add(msg.ID) {
			s.insertLocked(msg)
		} else {
			s.setReadLocked(msg.ID, msg.IsRead)
		}
		if msg.ReceiverID == s.viewerID && !msg.IsRead {
			unread = append(unread, msg.ID)
		}
	}
	markRead := s.autoMarkRead && len(unread) > 0
	if markRead {
		s.inflight.Add(1)
	}
	msgs := slices.Clone(s.messages)
	s.mu.Unlock()

	if markRead {
		go s.markReadAsync(unread...)
	}
	return msgs, nil
}

// Send stores a new message to the counterparty. The message reaches local state through
// the sender feed, not directly.
func (s *Session) Send(ctx context.Context, body string) (domain.DirectMessage, error) {
	s.mu.Lock()
	counterpartyID, closed := s.counterpartyID, s.closed
	s.mu.Unlock()

	if closed {
		return domain.DirectMessage{}, ErrSessionClosed
	}
	if counterpartyID == "" {
		return domain.DirectMessage{}, ErrNotSubscribed
	}

	msg := domain.NewDirectMessage(s.viewerID, counterpartyID, body)
	if err := msg.Validate(); err != nil {
		return domain.DirectMessage{}, err
	}
	if err := s.store.InsertMessage(ctx, msg); err != nil {
		return domain.DirectMessage{}, fmt.Errorf("failed to send message: %w", err)
	}
	return msg, nil
}

// MarkRead persists the read flag for ids and reflects it locally. Already read messages are left as is.
func (s *Session) MarkRead(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.store.UpdateReadFlag(ctx, true, ids...); err != nil {
		return fmt.Errorf("failed to mark messages as read: %w", err)
	}

	s.mu.Lock()
	for _, id := range ids {
		s.setReadLocked(id, true)
	}
	s.mu.Unlock()
	return nil
}
