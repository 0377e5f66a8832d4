// Package relay runs the steady-state loop between the UDP socket and the
// serial devices. Everything happens on the goroutine calling Run.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"udp2serial/internal/discovery"
	"udp2serial/internal/logger"
	"udp2serial/internal/protocol"
)

// Relay moves packets between one UDP peer and the discovered serial devices.
type Relay struct {
	log     logger.Logger
	conn    PacketConn
	devices []*discovery.Device
	cfg     *discovery.NegotiatedConfig
	router  *Router
	queue   Queue
	opts    Options
	sink    StatusSink

	peer      *net.UDPAddr
	stats     Stats
	buf       []byte
	lastStats time.Time
	now       func() time.Time
}

// New creates a relay. devices must be indexed by their serial index and cfg
// must come from the handshake over the same devices.
func New(log logger.Logger, conn PacketConn, devices []*discovery.Device, cfg *discovery.NegotiatedConfig, opts Options) *Relay {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 20 * time.Millisecond
	}
	if opts.MaxDatagram <= 0 {
		opts.MaxDatagram = 512
	}
	return &Relay{
		log:     log,
		conn:    conn,
		devices: devices,
		cfg:     cfg,
		router:  NewRouter(cfg),
		queue:   NewQueue(len(devices)),
		opts:    opts,
		sink:    noopSink{},
		buf:     make([]byte, opts.MaxDatagram),
		now:     time.Now,
	}
}

// SetSink mirrors relay status to s.
func (r *Relay) SetSink(s StatusSink) {
	if s == nil {
		s = noopSink{}
	}
	r.sink = s
}

// Stats returns a copy of the counters.
func (r *Relay) Stats() Stats { return r.stats }

// Peer returns the address serial traffic is currently sent to.
func (r *Relay) Peer() *net.UDPAddr { return r.peer }

// Run ticks until ctx is done or the socket fails.
func (r *Relay) Run(ctx context.Context) error {
	r.log.With(logger.Fields{"module": "relay"}).Infof("relaying %s <-> %d serial devices, overflow policy %s",
		r.conn.LocalAddr(), len(r.cfg.ActiveSerials()), r.opts.Overflow)
	r.lastStats = r.now()

	for {
		select {
		case <-ctx.Done():
			r.reportStats()
			return nil
		default:
		}
		if err := r.Tick(); err != nil {
			return err
		}
		if r.opts.StatsInterval > 0 && r.now().Sub(r.lastStats) >= r.opts.StatsInterval {
			r.reportStats()
		}
	}
}

// Tick runs one scheduling iteration: the network side first, then every
// serial device.
func (r *Relay) Tick() error {
	if err := r.pollNetwork(); err != nil {
		return err
	}
	r.pollSerial()
	return nil
}

func (r *Relay) reportStats() {
	r.lastStats = r.now()
	r.stats.LogStats(r.log)
	r.sink.PublishStats(r.stats)
}

func (r *Relay) pollNetwork() error {
	if err := r.conn.SetReadDeadline(r.now().Add(r.opts.ReadTimeout)); err != nil {
		return fmt.Errorf("set udp read deadline: %w", err)
	}
	n, addr, err := r.conn.ReadFromUDP(r.buf)
	if err != nil {
		if isTimeout(err) {
			return nil
		}
		if errors.Is(err, net.ErrClosed) {
			return err
		}
		r.log.With(logger.Fields{"module": "udp"}).Warnf("udp read: %v", err)
		return nil
	}
	if n == 0 {
		return nil
	}

	peer := *addr
	if r.opts.ReplyPort != 0 {
		peer.Port = r.opts.ReplyPort
	}
	r.peer = &peer

	r.handleDatagram(r.buf[:n])
	return nil
}

func (r *Relay) handleDatagram(data []byte) {
	log := r.log.With(logger.Fields{"module": "udp"})
	r.stats.DatagramsIn++

	if protocol.IsDiscoveryQuery(data) {
		r.stats.DiscoveryQueries++
		r.send(r.cfg.DiscoveryReply())
		return
	}

	packets, rest := protocol.SplitPackets(data)
	if len(packets) == 0 && len(rest) > 0 {
		// Датаграмма без терминатора считается одним пакетом.
		packets = []string{string(rest)}
	} else if len(rest) > 0 {
		r.stats.FragmentsDropped++
		log.Debugf("dropped unterminated fragment %q", rest)
	}

	r.queue.Reset()
	for _, p := range packets {
		payload, err := protocol.CheckPacket(p, r.cfg.UseCRC)
		if err != nil {
			r.stats.CRCFailures++
			log.Debugf("packet discarded: %v", err)
			continue
		}
		for _, raw := range protocol.SplitMessages(payload) {
			m, err := protocol.ParseMessage(raw)
			if err != nil {
				r.stats.Malformed++
				log.Debug(err)
				continue
			}
			if _, err := r.router.Route(m, r.queue); err != nil {
				if errors.Is(err, protocol.ErrUnknownHardwareIndex) {
					r.stats.RoutingMisses++
					log.Warnf("routing miss: %v, message %q dropped", err, raw)
				} else {
					r.stats.Malformed++
					log.Debug(err)
				}
				continue
			}
			r.stats.MessagesRouted++
		}
	}
	r.flush()
}

// flush writes the queued messages of this cycle to their devices.
func (r *Relay) flush() {
	for idx, msgs := range r.queue {
		if len(msgs) == 0 {
			continue
		}
		d := r.devices[idx]
		log := r.log.With(logger.Fields{"module": "serial", "serial": idx})

		a := Assemble(msgs, d.MaxPacketSize(), d.UseCRC(), r.opts.Overflow)
		r.stats.DeferredMessages += a.Deferred
		r.stats.DroppedMessages += a.Dropped
		if a.Dropped > 0 {
			log.Warnf("%d messages did not fit in max packet size %d", a.Dropped, d.MaxPacketSize())
		}
		for _, p := range a.Packets {
			if err := d.Write(p); err != nil {
				r.stats.WriteErrors++
				log.Warn(err)
				break
			}
			r.stats.PacketsToSerial++
		}
	}
}

func (r *Relay) pollSerial() {
	multi := len(r.cfg.ActiveSerials()) > 1
	for _, d := range r.devices {
		if !d.Active() {
			continue
		}
		log := r.log.With(logger.Fields{"module": "serial", "serial": d.Index})

		discarded := d.DiscardedFragments()
		packets, err := d.ReadPackets()
		if err != nil {
			log.Debug(err)
		}
		r.stats.FragmentsDropped += d.DiscardedFragments() - discarded

		for _, p := range packets {
			r.stats.SerialPacketsIn++
			payload, err := protocol.CheckPacket(p, d.UseCRC())
			if err != nil {
				r.stats.SerialCRCFailures++
				continue
			}
			if r.peer == nil {
				r.stats.NoPeerDrops++
				continue
			}
			if multi {
				for _, m := range r.expand(d, payload) {
					r.send(protocol.FramePacket([]string{m}, r.cfg.UseCRC))
				}
			} else {
				r.send(p + string(protocol.PacketTerminator))
			}
			r.sink.PublishPacket(d.Index, p)
		}
	}
}

// expand rewrites broadcast updates from a device into one message per
// hardware index that device owns.
func (r *Relay) expand(d *discovery.Device, payload string) []string {
	var out []string
	for _, raw := range protocol.SplitMessages(payload) {
		m, err := protocol.ParseMessage(raw)
		if err != nil || m.Discovery || !m.Header.Broadcast() || !m.HasIndex || m.Index != 0 {
			out = append(out, raw)
			continue
		}
		for _, hw := range d.HardwareIndices() {
			out = append(out, m.WithIndex(hw).String())
		}
	}
	return out
}

func (r *Relay) send(packet string) {
	if _, err := r.conn.WriteToUDP([]byte(packet), r.peer); err != nil {
		r.stats.WriteErrors++
		r.log.With(logger.Fields{"module": "udp"}).Debugf("udp send to %s: %v", r.peer, err)
		return
	}
	r.stats.DatagramsOut++
}
