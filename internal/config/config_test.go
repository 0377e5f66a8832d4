package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := NewConfig("")
	require.NoError(t, err)
	assert.Equal(t, 10008, cfg.UDP.Port)
	assert.Equal(t, 20*time.Millisecond, cfg.UDP.ReadTimeout.Duration)
	assert.Equal(t, 512, cfg.UDP.MaxDatagram)
	assert.Equal(t, 100*time.Millisecond, cfg.Discovery.PollInterval.Duration)
	assert.Zero(t, cfg.Discovery.Timeout.Duration)
	assert.Equal(t, 250, cfg.Discovery.ServerMaxPacketSize)
	assert.Equal(t, "defer", cfg.Relay.Overflow)
	assert.Equal(t, 9600, cfg.Serial.BaudRate)
	assert.False(t, cfg.MQTT.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestNewConfig_File(t *testing.T) {
	path := writeConfig(t, `
[logger]
log-level = "debug"

[udp]
port = 20000
reply-port = 10008
read-timeout = "50ms"

[serial]
baud = 115200

[discovery]
timeout = "30s"

[relay]
overflow = "drop"

[mqtt]
enabled = true
server = "broker"
topic-prefix = "lights"
`)
	cfg, err := NewConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, 20000, cfg.UDP.Port)
	assert.Equal(t, 10008, cfg.UDP.ReplyPort)
	assert.Equal(t, 50*time.Millisecond, cfg.UDP.ReadTimeout.Duration)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, 30*time.Second, cfg.Discovery.Timeout.Duration)
	assert.Equal(t, "drop", cfg.Relay.Overflow)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "broker", cfg.MQTT.Host)
	assert.Equal(t, "1883", cfg.MQTT.Port, "unset keys keep defaults")
	assert.Equal(t, 512, cfg.UDP.MaxDatagram, "unset keys keep defaults")
}

func TestNewConfig_Invalid(t *testing.T) {
	for name, body := range map[string]string{
		"duration": "[udp]\nread-timeout = \"soon\"\n",
		"overflow": "[relay]\noverflow = \"spill\"\n",
		"port":     "[udp]\nport = 70000\n",
		"parity":   "[serial]\nparity = \"mark\"\n",
	} {
		_, err := NewConfig(writeConfig(t, body))
		assert.Error(t, err, name)
	}

	_, err := NewConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestNewConfig_SampleFile(t *testing.T) {
	cfg, err := NewConfig("../../configs/relay.toml")
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.UDP, cfg.UDP)
	assert.Equal(t, def.Discovery, cfg.Discovery)
	assert.Equal(t, def.Relay, cfg.Relay)
	assert.Equal(t, def.MQTT, cfg.MQTT)
	assert.Equal(t, "9600 8N1", cfg.Serial.String())
}
