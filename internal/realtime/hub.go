package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultBufferSize is the per-subscription queue length.
const DefaultBufferSize = 256

// Hub is an in-process PubSub. Subscriptions are indexed by filter key and each one
// drains its own buffered queue on a dedicated goroutine.
type Hub struct {
	mu         sync.RWMutex
	subs       map[Handle]*subscription
	topics     map[string]map[Handle]*subscription // filter key -> subscriptions
	closed     bool
	bufferSize int
	logger     zerolog.Logger
}

type subscription struct {
	filter  Filter
	handler Handler
	queue   chan Change
	done    chan struct{}
}

func (s *subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case c := <-s.queue:
			// Unsubscribe may race with a queued change.
			select {
			case <-s.done:
				return
			default:
			}
			s.handler(c)
		}
	}
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithBufferSize sets the per-subscription queue length.
func WithBufferSize(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.bufferSize = n
		}
	}
}

// WithHubLogger sets the hub logger.
func WithHubLogger(l zerolog.Logger) HubOption {
	return func(h *Hub) { h.logger = l }
}

// NewHub creates a Hub ready to accept subscriptions.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		subs:       make(map[Handle]*subscription),
		topics:     make(map[string]map[Handle]*subscription),
		bufferSize: DefaultBufferSize,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

var (
	_ PubSub    = (*Hub)(nil)
	_ Publisher = (*Hub)(nil)
)

// Subscribe registers handler for changes matching filter.
func (h *Hub) Subscribe(ctx context.Context, filter Filter, handler Handler) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := filter.Validate(); err != nil {
		return "", err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return "", ErrClosed
	}

	handle := Handle(uuid.NewString())
	sub := &subscription{
		filter:  filter,
		handler: handler,
		queue:   make(chan Change, h.bufferSize),
		done:    make(chan struct{}),
	}

	key := filter.String()
	if h.topics[key] == nil {
		h.topics[key] = make(map[Handle]*subscription)
	}
	h.topics[key][handle] = sub
	h.subs[handle] = sub

	go sub.run()

	h.logger.Debug().Str("handle", string(handle)).Str("filter", key).Msg("subscription attached")
	return handle, nil
}

// Unsubscribe removes a subscription. It is safe to call more than once.
func (h *Hub) Unsubscribe(handle Handle) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.remove(handle)
	return nil
}

func (h *Hub) remove(handle Handle) {
	sub, ok := h.subs[handle]
	if !ok {
		return
	}

	key := sub.filter.String()
	if subscribers, ok := h.topics[key]; ok {
		delete(subscribers, handle)
		if len(subscribers) == 0 {
			delete(h.topics, key)
		}
	}
	delete(h.subs, handle)
	close(sub.done)
}

// Publish queues c for every subscription whose filter matches it.
// A subscription with a full queue misses the change.
func (h *Hub) Publish(_ context.Context, c Change) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, key := range c.topics() {
		for handle, sub := range h.topics[key] {
			select {
			case sub.queue <- c:
			default:
				h.logger.Warn().
					Str("handle", string(handle)).
					Str("message_id", c.Message.ID).
					Msg("subscription queue full, dropping change")
			}
		}
	}
	return nil
}

// SubscriptionCount returns the number of attached subscriptions.
func (h *Hub) SubscriptionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close detaches every subscription and rejects new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for handle := range h.subs {
		h.remove(handle)
	}
	h.closed = true
	return nil
}
