package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_DefaultsToInfo(t *testing.T) {
	buf := new(bytes.Buffer)
	l, err := New(Options{Output: buf})
	require.NoError(t, err)

	l.Debug("hidden")
	l.Info("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNew_VerboseEnablesDebug(t *testing.T) {
	buf := new(bytes.Buffer)
	l, err := New(Options{Verbose: true, Output: buf})
	require.NoError(t, err)

	l.Debug("pipeline stage")

	assert.Contains(t, buf.String(), "pipeline stage")
	assert.Contains(t, buf.String(), "debug")
}

func TestNew_JSONFormat(t *testing.T) {
	buf := new(bytes.Buffer)
	l, err := New(Options{Format: "json", Output: buf})
	require.NoError(t, err)

	l.Warn("conversion failed", zap.String("source", "anexo"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "conversion failed", entry["msg"])
	assert.Equal(t, "anexo", entry["source"])
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestNew_InvalidFormat(t *testing.T) {
	_, err := New(Options{Format: "xml"})
	assert.Error(t, err)
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l := zap.NewExample()
	assert.Same(t, l, OrNop(l))
}

func TestSection(t *testing.T) {
	buf := new(bytes.Buffer)
	l, err := New(Options{Verbose: true, Output: buf})
	require.NoError(t, err)

	Section(l, "Extraction")

	assert.Contains(t, buf.String(), "=== Extraction ===")
}
