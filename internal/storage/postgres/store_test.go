package postgres

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cristi184/diabetDashApp-sub000/internal/domain"
	"github.com/Cristi184/diabetDashApp-sub000/internal/realtime"
	"github.com/Cristi184/diabetDashApp-sub000/internal/storage"
	"github.com/Cristi184/diabetDashApp-sub000/internal/storage/sqlite"
)

func TestPeriodClause(t *testing.T) {
	since := time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)
	until := since.Add(24 * time.Hour)

	tests := []struct {
		name   string
		period storage.Period
		clause string
		args   []any
	}{
		{"open", storage.Period{}, "", nil},
		{"bounded", storage.Period{Since: since, Until: until}, " AND (ts IS NULL OR (ts >= $2 AND ts < $3))", []any{since, until}},
		{"since only", storage.Period{Since: since}, " AND (ts IS NULL OR (ts >= $2))", []any{since}},
		{"until only", storage.Period{Until: until}, " AND (ts IS NULL OR (ts < $2))", []any{until}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clause, args := periodClause(tt.period, 2)
			assert.Equal(t, tt.clause, clause)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestNullableTime(t *testing.T) {
	assert.Nil(t, nullableTime(time.Time{}))

	now := time.Now()
	require.NotNil(t, nullableTime(now))
	assert.True(t, fromNullableTime(nullableTime(now)).Equal(now))
	assert.True(t, fromNullableTime(nil).IsZero())
}

func TestSchemaNotifiesOnMessageChanges(t *testing.T) {
	assert.Contains(t, schema, "AFTER INSERT ON direct_messages")
	assert.Contains(t, schema, "AFTER UPDATE OF is_read ON direct_messages")
	assert.Contains(t, schema, "pg_notify('"+NotifyChannel+"'")
	assert.True(t, strings.Contains(schema, "ts TIMESTAMPTZ,"), "event timestamps must be nullable")
}

func TestDecodeNotification(t *testing.T) {
	n, err := decodeNotification(`{"type":"INSERT","id":"m1"}`)
	require.NoError(t, err)
	assert.Equal(t, realtime.Insert, n.Type)
	assert.Equal(t, "m1", n.ID)

	n, err = decodeNotification(`{"type":"UPDATE","id":"m2"}`)
	require.NoError(t, err)
	assert.Equal(t, realtime.Update, n.Type)

	for _, payload := range []string{`not json`, `{"type":"DELETE","id":"m1"}`, `{"type":"INSERT"}`} {
		_, err := decodeNotification(payload)
		assert.Error(t, err, payload)
	}
}

func TestListenerDispatch(t *testing.T) {
	store, err := sqlite.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	msg := domain.NewDirectMessage("doc", "pat", "see you thursday")
	require.NoError(t, store.InsertMessage(ctx, msg))

	hub := realtime.NewHub()
	t.Cleanup(func() { _ = hub.Close() })
	got := make(chan realtime.Change, 1)
	_, err = hub.Subscribe(ctx, realtime.Filter{Event: realtime.Insert, Column: realtime.ColumnReceiverID, Value: "pat"}, func(c realtime.Change) {
		got <- c
	})
	require.NoError(t, err)

	l := NewListener(nil, store, hub, zerolog.Nop())
	require.NoError(t, l.dispatch(ctx, `{"type":"INSERT","id":"`+msg.ID+`"}`))

	select {
	case c := <-got:
		assert.Equal(t, msg.ID, c.Message.ID)
		assert.Equal(t, "see you thursday", c.Message.Body)
	case <-time.After(2 * time.Second):
		t.Fatal("change not delivered")
	}

	err = l.dispatch(ctx, `{"type":"UPDATE","id":"missing"}`)
	assert.True(t, storage.IsNotFound(err))
}
