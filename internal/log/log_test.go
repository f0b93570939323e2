package log

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestKeyValuesBecomeFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Use(zap.New(core))

	Info("holidays fetched", "country", "ZA", "year", 2025, 42, "ignored", "dangling")
	Error("fetch failed", errors.New("boom"), "country", "US")

	entries := logs.All()
	require.Len(t, entries, 2)

	info := entries[0].ContextMap()
	assert.Equal(t, "ZA", info["country"])
	assert.EqualValues(t, 2025, info["year"])
	assert.NotContains(t, info, "dangling")

	errEntry := entries[1]
	assert.Equal(t, zapcore.ErrorLevel, errEntry.Level)
	assert.Equal(t, "boom", errEntry.ContextMap()["err"])
	assert.Equal(t, "US", errEntry.ContextMap()["country"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, LevelError, ParseLevel("ERROR"))
	assert.Equal(t, LevelInfo, ParseLevel("chatty"))
}
