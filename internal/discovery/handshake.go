package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"udp2serial/internal/logger"
	"udp2serial/internal/protocol"
)

// Handshake drives every serial device through discovery. Devices advance
// independently; the handshake is settled once each one is Ready or Failed.
type Handshake struct {
	log     logger.Logger
	devices []*Device
	opts    Options
	started map[int]time.Time
	now     func() time.Time
}

// NewHandshake конструктор.
func NewHandshake(log logger.Logger, devices []*Device, opts Options) *Handshake {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	if opts.ServerMaxPacketSize <= 0 {
		opts.ServerMaxPacketSize = 250
	}
	return &Handshake{
		log:     log,
		devices: devices,
		opts:    opts,
		started: make(map[int]time.Time),
		now:     time.Now,
	}
}

// Run polls until the handshake settles or ctx is done, then negotiates.
func (h *Handshake) Run(ctx context.Context) (*NegotiatedConfig, error) {
	t := time.NewTicker(h.opts.PollInterval)
	defer t.Stop()

	for !h.Step() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return h.Result()
}

// Step advances every unsettled device once and reports whether all are settled.
func (h *Handshake) Step() bool {
	now := h.now()
	settled := true
	for _, d := range h.devices {
		if d.state == Ready || d.state == Failed {
			continue
		}
		h.advance(d, now)
		if d.state != Ready && d.state != Failed {
			settled = false
		}
	}
	return settled
}

// Result negotiates the configuration from the settled devices.
func (h *Handshake) Result() (*NegotiatedConfig, error) {
	var failed []string
	for _, d := range h.devices {
		if d.state == Failed {
			failed = append(failed, fmt.Sprintf("#%d %s", d.Index, d.Path))
		}
	}

	cfg, err := Negotiate(h.devices, h.opts.ServerMaxPacketSize)
	if err != nil {
		if len(failed) > 0 {
			return nil, fmt.Errorf("%w: %w (%s)", err, ErrDiscoveryTimeout, strings.Join(failed, ", "))
		}
		return nil, err
	}
	if len(failed) > 0 {
		h.log.With(logger.Fields{"module": "discovery"}).Warnf("excluded serial devices that never finished discovery: %s", strings.Join(failed, ", "))
	}
	for _, hw := range cfg.Conflicts() {
		h.log.With(logger.Fields{"module": "discovery"}).Warnf("hardware index %d is reported by several serial devices, keeping the first", hw)
	}
	return cfg, nil
}

func (h *Handshake) advance(d *Device, now time.Time) {
	log := h.log.With(logger.Fields{"module": "discovery", "serial": d.Index})

	start, ok := h.started[d.Index]
	if !ok {
		h.started[d.Index] = now
		start = now
	}
	if h.opts.Timeout > 0 && now.Sub(start) > h.opts.Timeout {
		log.Errorf("%s: %s gave no valid answer in %v while %s", ErrDiscoveryTimeout, d.Path, h.opts.Timeout, d.state)
		d.fail()
		return
	}

	switch d.state {
	case Undiscovered:
		if err := d.Write(protocol.DiscoveryRequest); err != nil {
			log.Debug(err)
			return
		}
		packets, err := d.ReadPackets()
		if err != nil {
			log.Debug(err)
		}
		if p, ok := d.takeDiscoveryReply(); ok {
			packets = append(packets, p)
		}
		for _, p := range packets {
			if !strings.HasPrefix(p, protocol.DiscoveryMarker) {
				continue
			}
			reply, err := protocol.ParseDiscoveryReply(p)
			if err != nil {
				log.Debugf("discovery reply rejected: %v", err)
				continue
			}
			if err := reply.Validate(); err != nil {
				log.Warnf("discovery reply rejected: %v", err)
				continue
			}
			d.accept(reply)
			log.Infof("protocol %d.%d, crc %v, max packet size %d, %d devices", reply.Major, reply.Minor, reply.CRC, reply.MaxPacketSize, reply.Count)
			return
		}

	case AwaitingStateReply:
		if err := d.Write(protocol.StateUpdateRequest(d.UseCRC())); err != nil {
			log.Debug(err)
			return
		}
		packets, err := d.ReadPackets()
		if err != nil {
			log.Debug(err)
		}
		for _, p := range packets {
			indices, err := protocol.ParseStateReply(p, d.UseCRC())
			if err != nil {
				log.Debugf("state reply rejected: %v", err)
				continue
			}
			d.ready(indices)
			log.Infof("serial device #%d found with lighting devices %v", d.Index, indices)
			return
		}
	}
}
