package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRoot_JSON(t *testing.T) {
	var buf bytes.Buffer
	root, err := NewRoot(Config{Level: "debug", Format: "json"}, &buf)
	require.NoError(t, err)

	New(root, "offline").Warn("dropping %d records", 3)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "offline", line["component"])
	assert.Equal(t, "dropping 3 records", line["msg"])
	assert.Equal(t, "warning", line["level"])
}

func TestNewRoot_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	root, err := NewRoot(Config{Level: "warn"}, &buf)
	require.NoError(t, err)

	l := New(root, "test")
	l.Info("hidden")
	l.Debug("hidden")
	assert.Empty(t, buf.String())

	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewRoot_Invalid(t *testing.T) {
	_, err := NewRoot(Config{Level: "loud"}, nil)
	assert.Error(t, err)

	_, err = NewRoot(Config{Format: "xml"}, nil)
	assert.Error(t, err)
}
