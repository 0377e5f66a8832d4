package relay

import (
	"fmt"

	"udp2serial/internal/discovery"
	"udp2serial/internal/protocol"
)

// Queue holds the messages bound for each serial index in the current cycle.
type Queue [][]protocol.Message

// NewQueue allocates a queue for n serial devices.
func NewQueue(n int) Queue {
	return make(Queue, n)
}

// Reset empties every entry, keeping the backing arrays.
func (q Queue) Reset() {
	for i := range q {
		q[i] = q[i][:0]
	}
}

// Len returns the number of queued messages across all devices.
func (q Queue) Len() int {
	n := 0
	for _, msgs := range q {
		n += len(msgs)
	}
	return n
}

// Router maps messages to serial devices.
type Router struct {
	cfg *discovery.NegotiatedConfig
	all []int
}

// NewRouter конструктор.
func NewRouter(cfg *discovery.NegotiatedConfig) *Router {
	return &Router{cfg: cfg, all: cfg.ActiveSerials()}
}

// Route appends m to the queue entry of every target serial index and returns
// the targets. The discovery marker, hardware index 0 and broadcast headers
// without an index go to every active device; an explicit nonzero index goes
// to its owner only.
func (r *Router) Route(m protocol.Message, q Queue) ([]int, error) {
	var targets []int
	switch {
	case m.Discovery, m.HasIndex && m.Index == 0:
		targets = r.all
	case !m.HasIndex:
		if !m.Header.Broadcast() {
			return nil, fmt.Errorf("%w: %s message without hardware index", protocol.ErrMalformedPacket, m.Header)
		}
		targets = r.all
	default:
		serial, ok := r.cfg.Route(m.Index)
		if !ok {
			return nil, fmt.Errorf("%w %d", protocol.ErrUnknownHardwareIndex, m.Index)
		}
		targets = []int{serial}
	}

	for _, s := range targets {
		q[s] = append(q[s], m)
	}
	return targets, nil
}
