// Package dexcom reads CGM readings from the Dexcom Share service and imports
// them as glucose readings.
package dexcom

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"
)

// Dexcom Share API endpoints (US region)
const (
	BaseURL = "https://share2.dexcom.com/ShareWebServices/Services"
	AppID   = "d89443d2-327c-4a6f-89e5-496bbb0317db"
)

// ErrUnauthorized is returned when Dexcom rejects the credentials.
var ErrUnauthorized = errors.New("dexcom authentication failed")

var timestampPattern = regexp.MustCompile(`Date\((\d+)(?:[+-]\d{4})?\)`)

// Client is an HTTP client for the Dexcom Share API.
type Client struct {
	Username   string
	Password   string
	BaseURL    string
	HTTPClient *http.Client
	sessionID  string
}

// NewClient creates a new Dexcom API client.
func NewClient(username, password string) *Client {
	return &Client{
		Username: username,
		Password: password,
		BaseURL:  BaseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Reading represents a glucose reading from Dexcom.
type Reading struct {
	WT    string // Timestamp like "Date(1234567890000)"
	ST    string // System time
	DT    string // Display time
	Value int    // Glucose in mg/dL
	Trend string // Trend direction
}

// Time returns the reading's wall time, or the zero time if WT is malformed.
func (r Reading) Time() time.Time {
	ms := ParseTimestamp(r.WT)
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// postJSON posts body and decodes a JSON response into out.
func (c *Client) postJSON(ctx context.Context, path string, body any, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fmt.Errorf("status %d: %s", resp.StatusCode, string(data))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to parse response: %w", err)
	}
	return resp.StatusCode, nil
}

// authenticate gets a session ID from Dexcom.
func (c *Client) authenticate(ctx context.Context) error {
	// Step 1: Get account ID
	var accountID string
	if _, err := c.postJSON(ctx, "/General/AuthenticatePublisherAccount", map[string]string{
		"accountName":   c.Username,
		"password":      c.Password,
		"applicationId": AppID,
	}, &accountID); err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	// Step 2: Get session ID
	if _, err := c.postJSON(ctx, "/General/LoginPublisherAccountById", map[string]string{
		"accountId":     accountID,
		"password":      c.Password,
		"applicationId": AppID,
	}, &c.sessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	return nil
}

// FetchReadings fetches up to maxCount readings from the last minutes minutes, newest first.
func (c *Client) FetchReadings(ctx context.Context, maxCount, minutes int) ([]Reading, error) {
	// Authenticate if we don't have a session
	if c.sessionID == "" {
		if err := c.authenticate(ctx); err != nil {
			return nil, err
		}
	}

	readings, status, err := c.fetch(ctx, maxCount, minutes)
	if err != nil && status != 0 && status != http.StatusOK {
		// Session might have expired, re-authenticate once
		c.sessionID = ""
		if err := c.authenticate(ctx); err != nil {
			return nil, err
		}
		readings, _, err = c.fetch(ctx, maxCount, minutes)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch readings: %w", err)
	}
	return readings, nil
}

func (c *Client) fetch(ctx context.Context, maxCount, minutes int) ([]Reading, int, error) {
	q := url.Values{}
	q.Set("sessionId", c.sessionID)
	q.Set("minutes", strconv.Itoa(minutes))
	q.Set("maxCount", strconv.Itoa(maxCount))

	var readings []Reading
	status, err := c.postJSON(ctx, "/Publisher/ReadPublisherLatestGlucoseValues?"+q.Encode(), nil, &readings)
	return readings, status, err
}

// ParseTimestamp parses a Dexcom timestamp "Date(1234567890000)" to Unix milliseconds.
func ParseTimestamp(wt string) int64 {
	matches := timestampPattern.FindStringSubmatch(wt)
	if len(matches) < 2 {
		return 0
	}
	ms, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return 0
	}
	return ms
}
