package discovery

import (
	"errors"
	"time"
)

var (
	ErrDiscoveryTimeout = errors.New("discovery timed out")
	ErrNoDevices        = errors.New("no serial device completed discovery")
)

// State is the handshake progress of one serial device.
type State int

const (
	Undiscovered State = iota
	AwaitingStateReply
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Undiscovered:
		return "undiscovered"
	case AwaitingStateReply:
		return "awaiting-state-reply"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Options controls the handshake.
type Options struct {
	PollInterval        time.Duration // PollInterval - пауза между попытками.
	Timeout             time.Duration // Timeout - 0 означает ждать бесконечно.
	ServerMaxPacketSize int           // ServerMaxPacketSize - размер пакета, объявляемый сети.
}

// DeviceOptions controls serial reads of a device.
type DeviceOptions struct {
	ReadChunk     int // ReadChunk - байт за один вызов Read.
	ReadCap       int // ReadCap - максимум байт за один опрос.
	FragmentLimit int // FragmentLimit - предел незавершенного хвоста.
}
