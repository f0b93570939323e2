package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronosync/internal/model"
)

func TestParseSource(t *testing.T) {
	src, err := parseSource("public:za")
	require.NoError(t, err)
	assert.Equal(t, model.PublicHolidays("ZA", ""), src)

	src, err = parseSource("US")
	require.NoError(t, err)
	assert.Equal(t, model.SourcePublic, src.Kind)

	src, err = parseSource("custom:UM-123")
	require.NoError(t, err)
	assert.Equal(t, model.CustomCalendar("UM-123", ""), src)

	_, err = parseSource("weird:x")
	assert.ErrorIs(t, err, model.ErrSourceKind)
	_, err = parseSource("custom:")
	assert.ErrorIs(t, err, model.ErrSourceID)
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestSlotsCommands(t *testing.T) {
	t.Setenv("CHRONOSYNC_API_KEY", "")
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "chronosync.yaml")
	cfg := "database: " + filepath.Join(dir, "db.sqlite") + "\n" +
		"state_file: " + filepath.Join(dir, "state.json") + "\n" +
		"holidays:\n  cache_dir: " + filepath.Join(dir, "cache") + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))

	_, err := run(t, "--config", cfgPath, "slots", "set", "2", "public:za")
	require.NoError(t, err)

	out, err := run(t, "--config", cfgPath, "slots")
	require.NoError(t, err)
	assert.Contains(t, out, "[2] public:ZA ZA")
	assert.Contains(t, out, "[0] (empty)")

	_, err = run(t, "--config", cfgPath, "slots", "set", "8", "public:za")
	assert.Error(t, err)

	_, err = run(t, "--config", cfgPath, "slots", "clear", "2")
	require.NoError(t, err)
	out, err = run(t, "--config", cfgPath, "slots")
	require.NoError(t, err)
	assert.Contains(t, out, "[2] (empty)")
}

func TestMonthRejectsBadMonth(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "chronosync.yaml")
	cfg := "database: " + filepath.Join(dir, "db.sqlite") + "\n" +
		"state_file: " + filepath.Join(dir, "state.json") + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))

	_, err := run(t, "--config", cfgPath, "month", "March")
	assert.Error(t, err)

	out, err := run(t, "--config", cfgPath, "month", "2025-03")
	require.NoError(t, err)
	assert.Contains(t, out, "March 2025")
	assert.Contains(t, out, "no events")
}
