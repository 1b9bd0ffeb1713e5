package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cristi184/diabetDashApp-sub000/internal/domain"
)

func message(id, from, to string) domain.DirectMessage {
	return domain.DirectMessage{ID: id, SenderID: from, ReceiverID: to, Body: "hi", CreatedAt: time.Now().UTC()}
}

func collect(buffer int) (Handler, <-chan Change) {
	ch := make(chan Change, buffer)
	return func(c Change) { ch <- c }, ch
}

func receive(t *testing.T, ch <-chan Change) Change {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change")
		return Change{}
	}
}

func assertNoChange(t *testing.T, ch <-chan Change) {
	t.Helper()
	select {
	case c := <-ch:
		t.Fatalf("unexpected change %+v", c)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFilterValidate(t *testing.T) {
	assert.NoError(t, Filter{Event: Insert, Column: ColumnReceiverID, Value: "u1"}.Validate())
	assert.ErrorIs(t, Filter{Event: "DELETE", Column: ColumnReceiverID, Value: "u1"}.Validate(), ErrInvalidFilter)
	assert.ErrorIs(t, Filter{Event: Insert, Column: "body", Value: "u1"}.Validate(), ErrInvalidFilter)
	assert.ErrorIs(t, Filter{Event: Insert, Column: ColumnSenderID}.Validate(), ErrInvalidFilter)
}

func TestFilterMatches(t *testing.T) {
	c := Change{Type: Insert, Message: message("m1", "a", "b")}

	assert.True(t, Filter{Event: Insert, Column: ColumnSenderID, Value: "a"}.Matches(c))
	assert.True(t, Filter{Event: Insert, Column: ColumnReceiverID, Value: "b"}.Matches(c))
	assert.False(t, Filter{Event: Insert, Column: ColumnReceiverID, Value: "a"}.Matches(c))
	assert.False(t, Filter{Event: Update, Column: ColumnSenderID, Value: "a"}.Matches(c))
}

func TestHubDeliversMatchingChanges(t *testing.T) {
	hub := NewHub()
	t.Cleanup(func() { _ = hub.Close() })
	ctx := context.Background()

	toB, toBCh := collect(4)
	fromA, fromACh := collect(4)
	other, otherCh := collect(4)

	_, err := hub.Subscribe(ctx, Filter{Event: Insert, Column: ColumnReceiverID, Value: "b"}, toB)
	require.NoError(t, err)
	_, err = hub.Subscribe(ctx, Filter{Event: Insert, Column: ColumnSenderID, Value: "a"}, fromA)
	require.NoError(t, err)
	_, err = hub.Subscribe(ctx, Filter{Event: Insert, Column: ColumnReceiverID, Value: "c"}, other)
	require.NoError(t, err)
	assert.Equal(t, 3, hub.SubscriptionCount())

	msg := message("m1", "a", "b")
	require.NoError(t, hub.Publish(ctx, Change{Type: Insert, Message: msg}))

	assert.Equal(t, msg, receive(t, toBCh).Message)
	assert.Equal(t, msg, receive(t, fromACh).Message)
	assertNoChange(t, otherCh)
}

func TestHubPreservesOrderPerSubscription(t *testing.T) {
	hub := NewHub()
	t.Cleanup(func() { _ = hub.Close() })

	handler, ch := collect(16)
	_, err := hub.Subscribe(context.Background(), Filter{Event: Insert, Column: ColumnReceiverID, Value: "b"}, handler)
	require.NoError(t, err)

	ids := []string{"m1", "m2", "m3", "m4"}
	for _, id := range ids {
		require.NoError(t, hub.Publish(context.Background(), Change{Type: Insert, Message: message(id, "a", "b")}))
	}

	for _, id := range ids {
		assert.Equal(t, id, receive(t, ch).Message.ID)
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub()
	t.Cleanup(func() { _ = hub.Close() })

	handler, ch := collect(4)
	handle, err := hub.Subscribe(context.Background(), Filter{Event: Update, Column: ColumnReceiverID, Value: "b"}, handler)
	require.NoError(t, err)

	require.NoError(t, hub.Unsubscribe(handle))
	require.NoError(t, hub.Unsubscribe(handle))
	require.NoError(t, hub.Unsubscribe("unknown"))
	assert.Equal(t, 0, hub.SubscriptionCount())

	require.NoError(t, hub.Publish(context.Background(), Change{Type: Update, Message: message("m1", "a", "b")}))
	assertNoChange(t, ch)
}

func TestHubRejectsInvalidSubscriptions(t *testing.T) {
	hub := NewHub()
	handler, _ := collect(1)

	_, err := hub.Subscribe(context.Background(), Filter{Event: Insert}, handler)
	assert.ErrorIs(t, err, ErrInvalidFilter)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = hub.Subscribe(ctx, Filter{Event: Insert, Column: ColumnSenderID, Value: "a"}, handler)
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, hub.Close())
	_, err = hub.Subscribe(context.Background(), Filter{Event: Insert, Column: ColumnSenderID, Value: "a"}, handler)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestHubDropsWhenQueueFull(t *testing.T) {
	hub := NewHub(WithBufferSize(1))
	t.Cleanup(func() { _ = hub.Close() })

	release := make(chan struct{})
	delivered := make(chan Change, 8)
	handler := func(c Change) {
		<-release
		delivered <- c
	}
	_, err := hub.Subscribe(context.Background(), Filter{Event: Insert, Column: ColumnReceiverID, Value: "b"}, handler)
	require.NoError(t, err)

	// Publish never blocks, even when the subscriber is stuck.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			_ = hub.Publish(context.Background(), Change{Type: Insert, Message: message("m", "a", "b")})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	close(release)
}
