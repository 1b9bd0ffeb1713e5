package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Level: "info", Output: &buf})
	require.NoError(t, err)

	log.Debug().Msg("hidden")
	log.Info().Str("subject_id", "p1").Msg("chart served")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "p1", entry["subject_id"])
	assert.Equal(t, "chart served", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Level: "DEBUG", Format: "console", Output: &buf})
	require.NoError(t, err)

	log.Debug().Msg("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestNewInvalid(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)

	_, err = New(Config{Format: "xml"})
	assert.Error(t, err)
}
