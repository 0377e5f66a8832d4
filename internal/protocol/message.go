package protocol

import (
	"strconv"
	"strings"
)

// DiscoveryMarker opens discovery requests and replies.
const DiscoveryMarker = "DISCOVERY_PACKET"

// ParseMessage decodes one message. Every field must be a non-negative integer,
// except for the bare discovery marker which is returned as a pass-through
// message.
func ParseMessage(raw string) (Message, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Message{}, malformed(raw, "empty message")
	}
	if raw == DiscoveryMarker {
		return Message{Discovery: true}, nil
	}

	parts := strings.Split(raw, string(FieldDelimiter))
	values := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Message{}, malformed(raw, "field %d is not an integer", i)
		}
		if v < 0 {
			return Message{}, malformed(raw, "field %d is negative", i)
		}
		values[i] = v
	}

	m := Message{Header: HeaderType(values[0])}
	if len(values) > 1 {
		m.Index = values[1]
		m.HasIndex = true
		m.Args = values[2:]
	}
	return m, nil
}

// Fields returns the number of fields in the message.
func (m Message) Fields() int {
	if !m.HasIndex {
		return 1
	}
	return 2 + len(m.Args)
}

// WithIndex returns a copy of the message addressed to another hardware index.
func (m Message) WithIndex(index int) Message {
	m.Index = index
	m.HasIndex = true
	m.Args = append([]int(nil), m.Args...)
	return m
}

func (m Message) String() string {
	if m.Discovery {
		return DiscoveryMarker
	}
	fields := make([]string, 0, m.Fields())
	fields = append(fields, strconv.Itoa(int(m.Header)))
	if m.HasIndex {
		fields = append(fields, strconv.Itoa(m.Index))
		for _, a := range m.Args {
			fields = append(fields, strconv.Itoa(a))
		}
	}
	return BuildMessage(fields...)
}
