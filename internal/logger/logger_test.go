package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		m := map[string]interface{}{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestStructuredLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(Config{Level: LevelInfo, Format: FormatJSON}, &buf)

	log.Info("synced", "kind", "tickers", "count", 3, "dangling")
	log.Debug("hidden")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "synced", lines[0]["msg"])
	assert.Equal(t, "tickers", lines[0]["kind"])
	assert.EqualValues(t, 3, lines[0]["count"])
	assert.NotContains(t, lines[0], "dangling")
}

func TestStructuredLoggerContextRunID(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(Config{Level: LevelDebug}, &buf)

	ctx := ContextWithRunID(context.Background(), "run-1")
	log.WithContext(ctx).WithField("tick", 2).Warn("tick done")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "run-1", lines[0]["run_id"])
	assert.EqualValues(t, 2, lines[0]["tick"])
	assert.Equal(t, "warning", lines[0]["level"])
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(Config{Level: "bogus"}, &buf)
	assert.Equal(t, LevelInfo, log.GetLevel())

	child := log.WithField("a", 1)
	log.SetLevel(LevelError)
	assert.Equal(t, LevelError, log.GetLevel())

	child.Warn("dropped")
	assert.Empty(t, buf.String())
}

func TestFetchLogger(t *testing.T) {
	var buf bytes.Buffer
	fl := NewFetchLogger(NewWithWriter(Config{Level: LevelDebug}, &buf))

	fl.LogFetch("bybit", "tickers", 20*time.Millisecond, nil)
	fl.LogFetch("coingecko", "prices", time.Second, errors.New("boom"))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "debug", lines[0]["level"])
	assert.Equal(t, "warning", lines[1]["level"])
	assert.Equal(t, "boom", lines[1]["error"])
}
