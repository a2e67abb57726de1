package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("whatever"))
}

func TestInitWriterFiltersByLevel(t *testing.T) {
	prev := Log
	t.Cleanup(func() { Log = prev })

	var buf bytes.Buffer
	InitWriter(&buf, "warn")

	Info("room_joined", "room", "abc")
	assert.Empty(t, buf.String())

	Warn("room_join_failed", "room", "abc")
	assert.Contains(t, buf.String(), "room_join_failed")
	assert.Contains(t, buf.String(), "room=abc")
}
