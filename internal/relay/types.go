package relay

import (
	"fmt"
	"net"
	"time"
)

// OverflowPolicy decides what happens to messages that do not fit in the
// first packet built for a device in a cycle.
type OverflowPolicy int

const (
	// OverflowDefer sends the overflow in further packets in the same cycle.
	OverflowDefer OverflowPolicy = iota
	// OverflowDrop sends one packet per device per cycle, skipping messages
	// that do not fit.
	OverflowDrop
)

// ParseOverflowPolicy parses "defer" or "drop".
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch s {
	case "", "defer":
		return OverflowDefer, nil
	case "drop":
		return OverflowDrop, nil
	}
	return OverflowDefer, fmt.Errorf("unknown overflow policy %q", s)
}

func (p OverflowPolicy) String() string {
	if p == OverflowDrop {
		return "drop"
	}
	return "defer"
}

// Options configures the relay loop.
type Options struct {
	ReadTimeout   time.Duration  // ReadTimeout - ожидание датаграммы за один цикл.
	MaxDatagram   int            // MaxDatagram - размер буфера приема.
	ReplyPort     int            // ReplyPort - 0 означает порт отправителя.
	Overflow      OverflowPolicy // Overflow - политика переполнения пакета.
	StatsInterval time.Duration  // StatsInterval - период вывода счетчиков, 0 - выключено.
}

// PacketConn is the part of *net.UDPConn the relay uses.
type PacketConn interface {
	ReadFromUDP(b []byte) (int, *net.UDPAddr, error)
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
	SetReadDeadline(t time.Time) error
	LocalAddr() net.Addr
	Close() error
}

// StatusSink receives relay status for mirroring elsewhere.
type StatusSink interface {
	PublishStats(s Stats)
	PublishPacket(serialIndex int, packet string)
}

type noopSink struct{}

func (noopSink) PublishStats(Stats)        {}
func (noopSink) PublishPacket(int, string) {}
