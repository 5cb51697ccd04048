package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONOutputCarriesKeyValues(t *testing.T) {
	var buf bytes.Buffer
	Setup(LevelDebug, "json", &buf)
	t.Cleanup(func() { Setup(LevelInfo, "console", nil) })

	Error("placement failed", errors.New("boom"), "request", "gym", "slots", 2, "dangling")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "placement failed", line["message"])
	assert.Equal(t, "boom", line["error"])
	assert.Equal(t, "gym", line["request"])
	assert.EqualValues(t, 2, line["slots"])
	_, ok := line["dangling"]
	assert.False(t, ok)
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	Setup(LevelInfo, "json", &buf)
	t.Cleanup(func() { Setup(LevelInfo, "console", nil) })

	Debug("hidden")
	Info("shown")

	out := buf.String()
	assert.False(t, strings.Contains(out, "hidden"))
	assert.True(t, strings.Contains(out, "shown"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelError, ParseLevel(" ERROR "))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}
