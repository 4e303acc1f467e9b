package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "warn", false)
	require.NoError(t, err)

	l.Info().Msg("dropped")
	cl := Component(l, "runner")
	cl.Warn().Str("run_id", "abc").Msg("kept")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kept", line["message"])
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "runner", line["component"])
	assert.Equal(t, "strategy-lab", line["service"])
	assert.Equal(t, "abc", line["run_id"])
	assert.Contains(t, line, "time")
}

func TestNew_DefaultsAndErrors(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "", true)
	require.NoError(t, err)
	l.Debug().Msg("hidden")
	l.Info().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	_, err = New(&buf, "loud", false)
	assert.Error(t, err)
}
