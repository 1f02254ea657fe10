package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	return m
}

func TestLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, zerolog.DebugLevel).With(String("component", "scheduler"))

	l.Info("cycle done",
		String("symbol", "600519"),
		Int("alerts", 2),
		Duration("took", 1500*time.Millisecond),
		Bool("partial", true),
		Strings("unavailable", []string{"sentiment"}),
		Error(errors.New("boom")),
	)

	m := decodeLine(t, &buf)
	assert.Equal(t, "info", m["level"])
	assert.Equal(t, "cycle done", m["message"])
	assert.Equal(t, "scheduler", m["component"])
	assert.Equal(t, "600519", m["symbol"])
	assert.Equal(t, float64(2), m["alerts"])
	assert.Equal(t, float64(1500), m["took"])
	assert.Equal(t, true, m["partial"])
	assert.Equal(t, []any{"sentiment"}, m["unavailable"])
	assert.Equal(t, "boom", m["error"])
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, zerolog.WarnLevel)

	l.Debug("hidden")
	l.Info("hidden")
	assert.Zero(t, buf.Len())

	l.Warn("shown")
	assert.Equal(t, "warn", decodeLine(t, &buf)["level"])
}

func TestErrorFieldIgnoresNil(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, zerolog.InfoLevel).With(Error(nil)).Error("no cause", Error(nil))

	m := decodeLine(t, &buf)
	_, ok := m["error"]
	assert.False(t, ok)
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud", Output: "stdout"})
	assert.Error(t, err)

	l, err := New(&Config{Level: "info", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestNopDiscards(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop().With(String("k", "v")).Error("dropped", Error(errors.New("x")))
	})
}
