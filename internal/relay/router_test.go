package relay

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"udp2serial/internal/config"
	"udp2serial/internal/discovery"
	"udp2serial/internal/logger"
	"udp2serial/internal/protocol"
	"udp2serial/internal/serialport"
)

func testLogger(t *testing.T, out io.Writer) *logger.Log {
	t.Helper()
	if out == nil {
		out = io.Discard
	}
	log, err := logger.NewLoggerWithOutput(config.LogConf{Level: "debug"}, out)
	require.NoError(t, err)
	return log
}

func firmware(crc bool, maxSize int, indices ...int) serialport.Firmware {
	f := serialport.Firmware{Minor: 3, CRC: crc, MaxPacketSize: maxSize, HardwareIndices: indices}
	for range indices {
		f.Devices = append(f.Devices, protocol.DeviceInfo{Name: "light", Type: "0", Product: "1"})
	}
	return f
}

// discover runs the handshake against firmware ports and hands back silent
// ports for the steady state.
func discover(t *testing.T, fws ...serialport.Firmware) ([]*serialport.TestablePort, []*discovery.Device, *discovery.NegotiatedConfig) {
	t.Helper()
	ports := make([]*serialport.TestablePort, len(fws))
	devices := make([]*discovery.Device, len(fws))
	for i, f := range fws {
		ports[i] = serialport.NewFirmwarePort(f)
		devices[i] = discovery.NewDevice(i, "/dev/ttyTEST", ports[i], discovery.DeviceOptions{})
	}

	h := discovery.NewHandshake(testLogger(t, nil), devices, discovery.Options{ServerMaxPacketSize: 250})
	for i := 0; !h.Step(); i++ {
		require.Less(t, i, 10, "handshake did not settle")
	}
	cfg, err := h.Result()
	require.NoError(t, err)

	for _, p := range ports {
		p.Respond = nil
		p.ResetWrites()
	}
	return ports, devices, cfg
}

func mustParse(t *testing.T, raw string) protocol.Message {
	t.Helper()
	m, err := protocol.ParseMessage(raw)
	require.NoError(t, err)
	return m
}

func TestRouter(t *testing.T) {
	_, _, cfg := discover(t, firmware(true, 200, 1), firmware(true, 200, 2, 3))
	r := NewRouter(cfg)

	tests := []struct {
		raw     string
		targets []int
	}{
		{"6", []int{0, 1}},
		{"7", []int{0, 1}},
		{"6,0,1,2", []int{0, 1}},
		{"2,0,1,255,0,0", []int{0, 1}},
		{"6,1,1,2", []int{0}},
		{"2,3,1,255,0,0", []int{1}},
		{protocol.DiscoveryMarker, []int{0, 1}},
	}
	for _, tt := range tests {
		q := NewQueue(2)
		targets, err := r.Route(mustParse(t, tt.raw), q)
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.targets, targets, tt.raw)
		for _, s := range tt.targets {
			assert.Len(t, q[s], 1, tt.raw)
		}
		assert.Equal(t, len(tt.targets), q.Len(), tt.raw)
	}
}

func TestRouter_UnknownIndex(t *testing.T) {
	_, _, cfg := discover(t, firmware(true, 200, 1))
	q := NewQueue(1)

	targets, err := NewRouter(cfg).Route(mustParse(t, "2,9,1,2,3"), q)
	assert.True(t, errors.Is(err, protocol.ErrUnknownHardwareIndex))
	assert.Empty(t, targets)
	assert.Zero(t, q.Len())
}

func TestRouter_NoIndex(t *testing.T) {
	_, _, cfg := discover(t, firmware(true, 200, 1))
	_, err := NewRouter(cfg).Route(mustParse(t, "3"), NewQueue(1))
	assert.True(t, errors.Is(err, protocol.ErrMalformedPacket))
}

func TestRouter_SkipsFailedDevices(t *testing.T) {
	good := serialport.NewFirmwarePort(firmware(false, 200, 1))
	devices := []*discovery.Device{
		discovery.NewDevice(0, "/dev/ttyTEST0", good, discovery.DeviceOptions{}),
		discovery.NewDevice(1, "/dev/ttyTEST1", serialport.NewTestablePort(), discovery.DeviceOptions{}),
	}
	h := discovery.NewHandshake(testLogger(t, nil), devices, discovery.Options{})
	h.Step()
	h.Step()
	// The silent device never becomes ready; negotiate from what is there.
	cfg, err := discovery.Negotiate(devices, 250)
	require.NoError(t, err)

	q := NewQueue(2)
	targets, err := NewRouter(cfg).Route(mustParse(t, "6,0"), q)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, targets)
	assert.Empty(t, q[1])
}

func TestQueue_Reset(t *testing.T) {
	q := NewQueue(2)
	q[0] = append(q[0], protocol.Message{})
	q[1] = append(q[1], protocol.Message{}, protocol.Message{})
	assert.Equal(t, 3, q.Len())
	q.Reset()
	assert.Zero(t, q.Len())
}
