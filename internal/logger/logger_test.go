package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"udp2serial/internal/config"
)

func TestNewLogger_Level(t *testing.T) {
	log, err := NewLogger(config.LogConf{Level: "warn"})
	require.NoError(t, err)
	assert.Equal(t, "warning", log.GetLevel())

	_, err = NewLogger(config.LogConf{Level: "loud"})
	assert.Error(t, err)
}

func TestWith_AddsFields(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLoggerWithOutput(config.LogConf{Level: "info"}, &buf)
	require.NoError(t, err)

	log.With(Fields{"module": "relay"}).Info("routing miss")
	log.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, "module=relay")
	assert.Contains(t, out, "routing miss")
	assert.NotContains(t, out, "hidden")
}
