package dexcom

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int64
	}{
		{
			name:     "valid timestamp",
			input:    "Date(1705887600000)",
			expected: 1705887600000,
		},
		{
			name:     "timestamp with offset suffix",
			input:    "Date(1705887600000-0500)",
			expected: 1705887600000,
		},
		{
			name:     "invalid format - no Date wrapper",
			input:    "1705887600000",
			expected: 0,
		},
		{
			name:     "invalid format - empty",
			input:    "",
			expected: 0,
		},
		{
			name:     "invalid format - malformed",
			input:    "Date(abc)",
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseTimestamp(tt.input)
			if result != tt.expected {
				t.Errorf("ParseTimestamp(%q) = %d, want %d", tt.input, result, tt.expected)
			}
		})
	}
}

func TestReadingTime(t *testing.T) {
	r := Reading{WT: "Date(1705887600000)"}
	assert.Equal(t, time.UnixMilli(1705887600000).UTC(), r.Time())

	assert.True(t, Reading{WT: "garbage"}.Time().IsZero())
}

// fakeShare serves the three Share endpoints used by the client.
type fakeShare struct {
	fetches     atomic.Int32
	logins      atomic.Int32
	failFetches int32
	badPassword bool
	readings    []Reading
}

func (f *fakeShare) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/General/AuthenticatePublisherAccount", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if f.badPassword {
			http.Error(w, `{"Code":"AccountPasswordInvalid"}`, http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode("account-1")
	})
	mux.HandleFunc("/General/LoginPublisherAccountById", func(w http.ResponseWriter, r *http.Request) {
		f.logins.Add(1)
		_ = json.NewEncoder(w).Encode("session-1")
	})
	mux.HandleFunc("/Publisher/ReadPublisherLatestGlucoseValues", func(w http.ResponseWriter, r *http.Request) {
		n := f.fetches.Add(1)
		assert.Equal(t, "session-1", r.URL.Query().Get("sessionId"))
		if n <= f.failFetches {
			http.Error(w, `{"Code":"SessionIdNotFound"}`, http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(f.readings)
	})
	return mux
}

func newTestClient(t *testing.T, share *fakeShare) *Client {
	srv := httptest.NewServer(share.handler(t))
	t.Cleanup(srv.Close)

	c := NewClient("user", "pass")
	c.BaseURL = srv.URL
	return c
}

func TestFetchReadings(t *testing.T) {
	share := &fakeShare{readings: []Reading{
		{WT: "Date(1705887600000)", Value: 120, Trend: "Flat"},
		{WT: "Date(1705887300000)", Value: 118, Trend: "FortyFiveUp"},
	}}
	c := newTestClient(t, share)

	readings, err := c.FetchReadings(context.Background(), 10, 60)
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, 120, readings[0].Value)
	assert.Equal(t, "Flat", readings[0].Trend)

	// The session is reused.
	_, err = c.FetchReadings(context.Background(), 10, 60)
	require.NoError(t, err)
	assert.Equal(t, int32(1), share.logins.Load())
}

func TestFetchReadingsReauthenticatesOnce(t *testing.T) {
	share := &fakeShare{failFetches: 1, readings: []Reading{{WT: "Date(1705887600000)", Value: 99}}}
	c := newTestClient(t, share)

	readings, err := c.FetchReadings(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Len(t, readings, 1)
	assert.Equal(t, int32(2), share.logins.Load())
}

func TestFetchReadingsGivesUpAfterRetry(t *testing.T) {
	share := &fakeShare{failFetches: 5}
	c := newTestClient(t, share)

	_, err := c.FetchReadings(context.Background(), 1, 10)
	require.Error(t, err)
	assert.Equal(t, int32(2), share.fetches.Load())
}

func TestFetchReadingsUnauthorized(t *testing.T) {
	share := &fakeShare{badPassword: true}
	c := newTestClient(t, share)

	_, err := c.FetchReadings(context.Background(), 1, 10)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Zero(t, share.fetches.Load())
}
