package discovery

import (
	"fmt"
	"sort"

	"udp2serial/internal/protocol"
)

// NegotiatedConfig is the outcome of the handshake. It is built once and
// only read afterwards.
type NegotiatedConfig struct {
	Major               int
	Minor               int
	UseCRC              bool
	DeviceCount         int
	ServerMaxPacketSize int
	Devices             []protocol.DeviceInfo

	routes    map[int]int
	active    []int
	serials   int
	reply     string
	conflicts []int
}

// Negotiate builds the configuration from the devices that reached Ready.
// Protocol version and CRC usage are taken from the first ready device.
// A hardware index claimed by two devices stays with the lower serial index.
func Negotiate(devices []*Device, serverMaxPacketSize int) (*NegotiatedConfig, error) {
	cfg := &NegotiatedConfig{
		ServerMaxPacketSize: serverMaxPacketSize,
		routes:              make(map[int]int),
		serials:             len(devices),
	}

	first := true
	for _, d := range devices {
		if !d.Active() {
			continue
		}
		r := d.Reply()
		if first {
			cfg.Major, cfg.Minor, cfg.UseCRC = r.Major, r.Minor, r.CRC
			first = false
		}
		cfg.active = append(cfg.active, d.Index)
		cfg.Devices = append(cfg.Devices, r.Devices...)
		for _, hw := range d.HardwareIndices() {
			if owner, ok := cfg.routes[hw]; ok && owner != d.Index {
				cfg.conflicts = append(cfg.conflicts, hw)
				continue
			}
			cfg.routes[hw] = d.Index
			if hw > cfg.DeviceCount {
				cfg.DeviceCount = hw
			}
		}
	}
	if first {
		return nil, ErrNoDevices
	}

	cfg.reply = protocol.DiscoveryReply{
		Major:         cfg.Major,
		Minor:         cfg.Minor,
		CRC:           cfg.UseCRC,
		Capabilities:  protocol.CapabilityServer,
		MaxPacketSize: cfg.ServerMaxPacketSize,
		Count:         cfg.DeviceCount,
		Devices:       cfg.Devices,
	}.String()
	return cfg, nil
}

// Route returns the serial index owning a hardware index.
func (c *NegotiatedConfig) Route(hardwareIndex int) (int, bool) {
	if hardwareIndex == 0 {
		return 0, false
	}
	serial, ok := c.routes[hardwareIndex]
	return serial, ok
}

// ActiveSerials lists the serial indices of ready devices in order.
func (c *NegotiatedConfig) ActiveSerials() []int {
	return append([]int(nil), c.active...)
}

// SerialCount is the number of attached serial lines, ready or not.
func (c *NegotiatedConfig) SerialCount() int { return c.serials }

// DiscoveryReply returns the cached answer to network discovery queries.
func (c *NegotiatedConfig) DiscoveryReply() string { return c.reply }

// Conflicts lists hardware indices reported by more than one device.
func (c *NegotiatedConfig) Conflicts() []int {
	return append([]int(nil), c.conflicts...)
}

// HardwareIndices returns every routable hardware index, ascending.
func (c *NegotiatedConfig) HardwareIndices() []int {
	out := make([]int, 0, len(c.routes))
	for hw := range c.routes {
		out = append(out, hw)
	}
	sort.Ints(out)
	return out
}

func (c *NegotiatedConfig) String() string {
	crc := "off"
	if c.UseCRC {
		crc = "on"
	}
	return fmt.Sprintf("protocol %d.%d, crc %s, %d lighting devices on %d of %d serial lines",
		c.Major, c.Minor, crc, c.DeviceCount, len(c.active), c.serials)
}
