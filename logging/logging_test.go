package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Setup(Config{Level: "debug", Format: "json"}, &buf))
	t.Cleanup(func() { _ = Setup(DefaultConfig(), nil) })

	Module("registry").Debug("model loaded", slog.String("model", "grain"))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "registry", record["module"])
	assert.Equal(t, "grain", record["model"])
	assert.Equal(t, "model loaded", record["msg"])
}

func TestSetupFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Setup(Config{Level: "warn"}, &buf))
	t.Cleanup(func() { _ = Setup(DefaultConfig(), nil) })

	Module("classifier").Info("dropped")
	assert.Empty(t, buf.String())

	Module("classifier").Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestSetupRejectsUnknownValues(t *testing.T) {
	assert.Error(t, Setup(Config{Level: "loud"}, nil))
	assert.Error(t, Setup(Config{Level: "info", Format: "xml"}, nil))
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"":        slog.LevelInfo,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
