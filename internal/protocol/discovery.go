package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// SupportedMajorVersion is the only firmware protocol major version accepted.
	SupportedMajorVersion = 3

	// MaxDeviceCount and MaxPacketSizeLimit are exclusive upper bounds for a
	// discovery reply to be accepted.
	MaxDeviceCount     = 20
	MaxPacketSizeLimit = 500

	// CapabilityServer is announced by the relay in its own discovery reply.
	CapabilityServer = 1

	// StateReplyFields is the field count of a state update sent by a device.
	StateReplyFields = 13

	discoveryHeaderFields = 7
)

// DiscoveryRequest is written to a serial device to start the handshake.
var DiscoveryRequest = DiscoveryMarker + string(PacketTerminator)

// IsDiscoveryQuery reports whether a datagram is a bare discovery request.
func IsDiscoveryQuery(data []byte) bool {
	s := strings.TrimSpace(string(data))
	return strings.TrimSuffix(s, string(PacketTerminator)) == DiscoveryMarker
}

// StateUpdateRequest builds the packet asking a device for its state.
func StateUpdateRequest(useCRC bool) string {
	return FramePacket([]string{strconv.Itoa(int(HeaderStateUpdate))}, useCRC)
}

// ParseDiscoveryReply decodes
// DISCOVERY_PACKET,maj,min,crc,caps,maxSize,count@name,type,product,...&
// It checks the shape only; see Validate for acceptance.
func ParseDiscoveryReply(packet string) (DiscoveryReply, error) {
	var r DiscoveryReply
	packet = strings.TrimSuffix(strings.TrimSpace(packet), string(PacketTerminator))
	if !strings.HasPrefix(packet, DiscoveryMarker) {
		return r, malformed(packet, "missing discovery marker")
	}

	body := packet
	if i := strings.IndexByte(body, MessageDelimiter); i >= 0 {
		body = body[:i]
	}
	header, names := body, ""
	if i := strings.IndexByte(body, NameDelimiter); i >= 0 {
		header, names = body[:i], body[i+1:]
	}

	fields := strings.Split(header, string(FieldDelimiter))
	if len(fields) != discoveryHeaderFields || fields[0] != DiscoveryMarker {
		return r, malformed(packet, "expected %d header fields, got %d", discoveryHeaderFields, len(fields))
	}
	values := make([]int, discoveryHeaderFields-1)
	for i, f := range fields[1:] {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return r, malformed(packet, "header field %d is not an integer", i+1)
		}
		values[i] = v
	}
	if values[2] != 0 && values[2] != 1 {
		return r, malformed(packet, "crc flag must be 0 or 1, got %d", values[2])
	}
	r.Major, r.Minor = values[0], values[1]
	r.CRC = values[2] == 1
	r.Capabilities = values[3]
	r.MaxPacketSize = values[4]
	r.Count = values[5]
	if r.Count < 0 {
		return r, malformed(packet, "negative device count")
	}

	var entries []string
	if names != "" {
		entries = strings.Split(names, string(FieldDelimiter))
	}
	if len(entries) != 3*r.Count {
		return r, malformed(packet, "expected %d name entries, got %d", 3*r.Count, len(entries))
	}
	for i := 0; i < r.Count; i++ {
		r.Devices = append(r.Devices, DeviceInfo{
			Name:    entries[3*i],
			Type:    entries[3*i+1],
			Product: entries[3*i+2],
		})
	}
	return r, nil
}

// Validate reports why a reply is not acceptable for a serial device.
func (r DiscoveryReply) Validate() error {
	switch {
	case r.Major != SupportedMajorVersion:
		return fmt.Errorf("unsupported protocol version %d.%d", r.Major, r.Minor)
	case r.Count >= MaxDeviceCount:
		return fmt.Errorf("device count %d exceeds limit %d", r.Count, MaxDeviceCount-1)
	case r.MaxPacketSize >= MaxPacketSizeLimit:
		return fmt.Errorf("max packet size %d exceeds limit %d", r.MaxPacketSize, MaxPacketSizeLimit-1)
	case r.MaxPacketSize <= PacketOverhead:
		return fmt.Errorf("max packet size %d leaves no room for messages", r.MaxPacketSize)
	}
	return nil
}

func (r DiscoveryReply) String() string {
	crc := 0
	if r.CRC {
		crc = 1
	}
	var b strings.Builder
	b.WriteString(BuildMessage(
		DiscoveryMarker,
		strconv.Itoa(r.Major),
		strconv.Itoa(r.Minor),
		strconv.Itoa(crc),
		strconv.Itoa(r.Capabilities),
		strconv.Itoa(r.MaxPacketSize),
		strconv.Itoa(r.Count),
	))
	b.WriteByte(NameDelimiter)
	entries := make([]string, 0, 3*len(r.Devices))
	for _, d := range r.Devices {
		entries = append(entries, d.Name, d.Type, d.Product)
	}
	b.WriteString(strings.Join(entries, string(FieldDelimiter)))
	b.WriteByte(MessageDelimiter)
	return b.String()
}

// ParseStateReply checks a device's answer to a state update request and
// returns the distinct hardware indices it reports, in order of appearance.
func ParseStateReply(packet string, useCRC bool) ([]int, error) {
	payload, err := CheckPacket(packet, useCRC)
	if err != nil {
		return nil, err
	}
	raw := SplitMessages(payload)
	if len(raw) == 0 {
		return nil, malformed(packet, "no messages")
	}

	var indices []int
	seen := make(map[int]bool)
	for _, s := range raw {
		m, err := ParseMessage(s)
		if err != nil {
			return nil, err
		}
		if m.Header != HeaderStateUpdate || m.Fields() != StateReplyFields {
			return nil, malformed(s, "not a %d field state update", StateReplyFields)
		}
		if m.Index == 0 {
			return nil, malformed(s, "hardware index 0 is reserved")
		}
		if !seen[m.Index] {
			seen[m.Index] = true
			indices = append(indices, m.Index)
		}
	}
	return indices, nil
}
