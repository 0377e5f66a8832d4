package discovery

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"udp2serial/internal/config"
	"udp2serial/internal/logger"
	"udp2serial/internal/protocol"
	"udp2serial/internal/serialport"
)

func testLogger(t *testing.T) *logger.Log {
	t.Helper()
	log, err := logger.NewLoggerWithOutput(config.LogConf{Level: "debug"}, io.Discard)
	require.NoError(t, err)
	return log
}

func firmware(crc bool, names []string, indices ...int) serialport.Firmware {
	f := serialport.Firmware{Minor: 3, CRC: crc, MaxPacketSize: 200, HardwareIndices: indices}
	for _, n := range names {
		f.Devices = append(f.Devices, protocol.DeviceInfo{Name: n, Type: "0", Product: "1"})
	}
	return f
}

func devicesFor(ports ...serialport.Port) []*Device {
	devices := make([]*Device, len(ports))
	for i, p := range ports {
		devices[i] = NewDevice(i, "/dev/ttyTEST", p, DeviceOptions{})
	}
	return devices
}

func TestHandshake_TwoDevices(t *testing.T) {
	devices := devicesFor(
		serialport.NewFirmwarePort(firmware(true, []string{"desk"}, 1)),
		serialport.NewFirmwarePort(firmware(true, []string{"shelf", "window"}, 2, 3)),
	)
	h := NewHandshake(testLogger(t), devices, Options{ServerMaxPacketSize: 250})

	assert.False(t, h.Step(), "first step only negotiates the version")
	for _, d := range devices {
		assert.Equal(t, AwaitingStateReply, d.State())
		assert.Equal(t, 200, d.MaxPacketSize())
	}
	assert.True(t, h.Step())

	cfg, err := h.Result()
	require.NoError(t, err)
	assert.Equal(t, []int{1}, devices[0].HardwareIndices())
	assert.Equal(t, []int{2, 3}, devices[1].HardwareIndices())
	assert.Equal(t, 3, cfg.DeviceCount)
	assert.True(t, cfg.UseCRC)
	assert.Equal(t, []int{0, 1}, cfg.ActiveSerials())
	assert.Equal(t, []int{1, 2, 3}, cfg.HardwareIndices())

	serial, ok := cfg.Route(3)
	assert.True(t, ok)
	assert.Equal(t, 1, serial)
	_, ok = cfg.Route(0)
	assert.False(t, ok, "index 0 is never routable")
	_, ok = cfg.Route(9)
	assert.False(t, ok)

	assert.Equal(t,
		"DISCOVERY_PACKET,3,3,1,1,250,3@desk,0,1,shelf,0,1,window,0,1&",
		cfg.DiscoveryReply())
}

func TestHandshake_RequestsOnTheWire(t *testing.T) {
	port := serialport.NewFirmwarePort(firmware(false, []string{"desk"}, 4))
	h := NewHandshake(testLogger(t), devicesFor(port), Options{})
	h.Step()
	h.Step()

	assert.Equal(t, []string{"DISCOVERY_PACKET;", "6&;"}, port.Written())
}

func TestHandshake_RejectsUnsupportedVersion(t *testing.T) {
	port := serialport.NewTestablePort()
	port.Respond = func(w string) string {
		if w == protocol.DiscoveryRequest {
			return "DISCOVERY_PACKET,2,0,1,0,200,1@desk,0,1&;"
		}
		return ""
	}
	devices := devicesFor(port)
	h := NewHandshake(testLogger(t), devices, Options{})

	for i := 0; i < 3; i++ {
		assert.False(t, h.Step())
	}
	assert.Equal(t, Undiscovered, devices[0].State())
	assert.Len(t, port.Written(), 3, "a rejected device is asked again every poll")
}

func TestHandshake_ReassemblesSplitReply(t *testing.T) {
	port := serialport.NewTestablePort()
	devices := devicesFor(port)
	h := NewHandshake(testLogger(t), devices, Options{})

	reply := firmware(false, []string{"desk"}, 1).Respond(protocol.DiscoveryRequest)
	port.AddReadData(reply[:10])
	h.Step()
	assert.Equal(t, Undiscovered, devices[0].State())

	port.AddReadData(reply[10:])
	h.Step()
	assert.Equal(t, AwaitingStateReply, devices[0].State())
}

func TestHandshake_UnterminatedDiscoveryReply(t *testing.T) {
	f := firmware(true, []string{"desk"}, 1)
	port := serialport.NewTestablePort()
	port.Respond = func(w string) string {
		if w == protocol.DiscoveryRequest {
			return "DISCOVERY_PACKET,3,3,1,0,200,1@desk,0,1&"
		}
		return f.Respond(w)
	}
	devices := devicesFor(port)
	h := NewHandshake(testLogger(t), devices, Options{})

	h.Step()
	assert.Equal(t, AwaitingStateReply, devices[0].State())
	assert.Equal(t, 200, devices[0].MaxPacketSize())
	assert.Equal(t, "desk", devices[0].Reply().Devices[0].Name)
	assert.Empty(t, devices[0].stream.Pending())

	assert.True(t, h.Step())
	assert.Equal(t, []int{1}, devices[0].HardwareIndices())
}

func TestHandshake_StateReplyNeedsValidCRC(t *testing.T) {
	f := firmware(true, []string{"desk"}, 1)
	port := serialport.NewTestablePort()
	port.Respond = func(w string) string {
		if w == protocol.DiscoveryRequest {
			return f.Respond(w)
		}
		return "6,1,1,0,255,0,0,1,100,10,0,0,0&#1&;"
	}
	devices := devicesFor(port)
	h := NewHandshake(testLogger(t), devices, Options{})

	h.Step()
	h.Step()
	h.Step()
	assert.Equal(t, AwaitingStateReply, devices[0].State())
}

func TestHandshake_Timeout(t *testing.T) {
	silent := serialport.NewTestablePort()
	good := serialport.NewFirmwarePort(firmware(false, []string{"desk"}, 1))
	devices := devicesFor(silent, good)

	h := NewHandshake(testLogger(t), devices, Options{Timeout: time.Second})
	clock := time.Unix(1000, 0)
	h.now = func() time.Time { return clock }

	assert.False(t, h.Step())
	assert.False(t, h.Step())
	assert.Equal(t, Ready, devices[1].State())

	clock = clock.Add(2 * time.Second)
	assert.True(t, h.Step())
	assert.Equal(t, Failed, devices[0].State())

	cfg, err := h.Result()
	require.NoError(t, err)
	assert.Equal(t, []int{1}, cfg.ActiveSerials())
	assert.Equal(t, 2, cfg.SerialCount())
}

func TestHandshake_AllFailed(t *testing.T) {
	devices := devicesFor(serialport.NewTestablePort())
	h := NewHandshake(testLogger(t), devices, Options{Timeout: time.Second})
	clock := time.Unix(1000, 0)
	h.now = func() time.Time { return clock }

	h.Step()
	clock = clock.Add(time.Minute)
	require.True(t, h.Step())

	_, err := h.Result()
	assert.True(t, errors.Is(err, ErrNoDevices))
	assert.True(t, errors.Is(err, ErrDiscoveryTimeout))
}

func TestHandshake_RunCanceled(t *testing.T) {
	devices := devicesFor(serialport.NewTestablePort())
	h := NewHandshake(testLogger(t), devices, Options{PollInterval: time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := h.Run(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestHandshake_Run(t *testing.T) {
	devices := devicesFor(serialport.NewFirmwarePort(firmware(true, []string{"desk"}, 1)))
	h := NewHandshake(testLogger(t), devices, Options{PollInterval: time.Millisecond})

	cfg, err := h.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.DeviceCount)
}

func TestNegotiate_Conflicts(t *testing.T) {
	devices := devicesFor(
		serialport.NewFirmwarePort(firmware(false, []string{"a"}, 1, 2)),
		serialport.NewFirmwarePort(firmware(false, []string{"b"}, 2, 5)),
	)
	h := NewHandshake(testLogger(t), devices, Options{})
	h.Step()
	require.True(t, h.Step())

	cfg, err := h.Result()
	require.NoError(t, err)
	assert.Equal(t, []int{2}, cfg.Conflicts())
	owner, _ := cfg.Route(2)
	assert.Equal(t, 0, owner)
	assert.Equal(t, 5, cfg.DeviceCount)
	assert.False(t, cfg.UseCRC)
}

func TestDevice_ReadPacketsCap(t *testing.T) {
	port := serialport.NewTestablePort()
	d := NewDevice(0, "/dev/ttyTEST", port, DeviceOptions{ReadChunk: 4, ReadCap: 8})

	port.AddReadData("6&;7&;0,1&;")
	packets, err := d.ReadPackets()
	require.NoError(t, err)
	assert.Equal(t, []string{"6&", "7&"}, packets, "only 8 bytes are drained per poll")

	packets, err = d.ReadPackets()
	require.NoError(t, err)
	assert.Equal(t, []string{"0,1&"}, packets)
}

func TestDevice_WriteError(t *testing.T) {
	port := serialport.NewTestablePort()
	port.WriteError = errors.New("unplugged")
	d := NewDevice(2, "/dev/ttyTEST", port, DeviceOptions{})
	assert.Error(t, d.Write("6&;"))
}
