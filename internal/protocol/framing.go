package protocol

import (
	"bytes"
	"strings"
)

const (
	FieldDelimiter   = ','
	MessageDelimiter = '&'
	PacketTerminator = ';'
	CRCDelimiter     = '#'
	NameDelimiter    = '@'

	// PacketOverhead is reserved in every packet for the CRC segment and terminator.
	PacketOverhead = 16

	// DefaultFragmentLimit bounds the unterminated tail kept between serial reads.
	DefaultFragmentLimit = 1024
)

// SplitPackets splits buf on the packet terminator. Complete packets are
// returned trimmed of surrounding whitespace; the bytes after the last
// terminator are returned as rest.
func SplitPackets(buf []byte) (packets []string, rest []byte) {
	for {
		i := bytes.IndexByte(buf, PacketTerminator)
		if i < 0 {
			break
		}
		if p := strings.TrimSpace(string(buf[:i])); p != "" {
			packets = append(packets, p)
		}
		buf = buf[i+1:]
	}
	return packets, bytes.TrimSpace(buf)
}

// SplitMessages splits a packet payload into messages, skipping empty segments.
func SplitMessages(payload string) []string {
	parts := strings.Split(payload, string(MessageDelimiter))
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// BuildMessage joins fields with the field delimiter.
func BuildMessage(fields ...string) string {
	return strings.TrimSuffix(strings.Join(fields, string(FieldDelimiter)), string(FieldDelimiter))
}

// BuildPacket packs messages from the head of the list while the body stays
// under maxSize-PacketOverhead. It stops at the first message that does not
// fit and reports how many messages were consumed. A zero count with a
// non-empty list means the head message alone exceeds the budget.
func BuildPacket(messages []string, maxSize int, useCRC bool) (packet string, consumed int) {
	var body strings.Builder
	for _, m := range messages {
		if body.Len()+len(m) >= maxSize-PacketOverhead {
			break
		}
		body.WriteString(m)
		body.WriteByte(MessageDelimiter)
		consumed++
	}
	if consumed == 0 {
		return "", 0
	}
	return finish(body.String(), useCRC), consumed
}

// FramePacket frames all messages into one packet with no size limit.
func FramePacket(messages []string, useCRC bool) string {
	var body strings.Builder
	for _, m := range messages {
		body.WriteString(m)
		body.WriteByte(MessageDelimiter)
	}
	return finish(body.String(), useCRC)
}

func finish(body string, useCRC bool) string {
	if useCRC {
		body = AppendCRC(body)
	}
	return body + string(PacketTerminator)
}

// CheckPacket strips the terminator and CRC segment from a packet and
// returns its payload. With useCRC set the segment must be present and match.
func CheckPacket(packet string, useCRC bool) (string, error) {
	packet = strings.TrimSuffix(strings.TrimSpace(packet), string(PacketTerminator))
	i := strings.LastIndexByte(packet, CRCDelimiter)
	if i < 0 {
		if useCRC {
			return packet, malformed(packet, "missing crc segment")
		}
		return packet, nil
	}
	payload := packet[:i]
	if !useCRC {
		return payload, nil
	}
	claimed := strings.TrimRight(packet[i+1:], string(MessageDelimiter)+" \r\n")
	if !Verify(payload, claimed) {
		return payload, ErrCRCMismatch
	}
	return payload, nil
}

// Reassembler buffers a serial byte stream and yields complete packets.
type Reassembler struct {
	buf   []byte
	limit int

	// Discarded counts fragments thrown away for exceeding the limit.
	Discarded int
}

// NewReassembler returns a Reassembler that keeps at most limit unterminated bytes.
func NewReassembler(limit int) *Reassembler {
	if limit <= 0 {
		limit = DefaultFragmentLimit
	}
	return &Reassembler{limit: limit}
}

// Feed appends p to the pending fragment and returns every completed packet.
func (r *Reassembler) Feed(p []byte) []string {
	r.buf = append(r.buf, p...)
	packets, rest := SplitPackets(r.buf)
	if len(rest) > r.limit {
		r.Discarded++
		rest = nil
	}
	r.buf = append(r.buf[:0], rest...)
	return packets
}

// Cut removes the buffered input up to and including the first delim and
// returns it, provided the buffer starts with prefix. Discovery replies end
// with '&' and may arrive without a terminator.
func (r *Reassembler) Cut(prefix string, delim byte) (string, bool) {
	buf := bytes.TrimLeft(r.buf, " \t\r\n")
	if !bytes.HasPrefix(buf, []byte(prefix)) {
		return "", false
	}
	i := bytes.IndexByte(buf, delim)
	if i < 0 {
		return "", false
	}
	out := string(buf[:i+1])
	r.buf = append(r.buf[:0], buf[i+1:]...)
	return out, true
}

// Pending returns the buffered, not yet terminated bytes.
func (r *Reassembler) Pending() []byte {
	return r.buf
}
