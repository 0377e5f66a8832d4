package relay

import (
	"udp2serial/internal/protocol"
)

// Assembly is the outcome of packing one device's queue.
type Assembly struct {
	Packets  []string
	Deferred int // Deferred - сообщения, ушедшие не в первом пакете.
	Dropped  int // Dropped - сообщения, не отправленные вовсе.
}

// Assemble packs queued messages into packets no larger than maxSize. A
// leading discovery marker is emitted verbatim before everything else.
func Assemble(msgs []protocol.Message, maxSize int, useCRC bool, policy OverflowPolicy) Assembly {
	var a Assembly
	if len(msgs) > 0 && msgs[0].Discovery {
		a.Packets = append(a.Packets, protocol.DiscoveryRequest)
		msgs = msgs[1:]
	}

	raw := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Discovery {
			continue
		}
		raw = append(raw, m.String())
	}

	if policy == OverflowDrop {
		return dropOverflow(a, raw, maxSize, useCRC)
	}

	first := true
	for len(raw) > 0 {
		packet, n := protocol.BuildPacket(raw, maxSize, useCRC)
		if n == 0 {
			// Too large for this device on its own.
			a.Dropped++
			raw = raw[1:]
			continue
		}
		a.Packets = append(a.Packets, packet)
		if !first {
			a.Deferred += n
		}
		first = false
		raw = raw[n:]
	}
	return a
}

// dropOverflow builds a single packet, skipping every message that does not
// fit and still packing later ones that do.
func dropOverflow(a Assembly, raw []string, maxSize int, useCRC bool) Assembly {
	var fit []string
	used := 0
	for _, m := range raw {
		if used+len(m) >= maxSize-protocol.PacketOverhead {
			a.Dropped++
			continue
		}
		fit = append(fit, m)
		used += len(m) + 1
	}
	if len(fit) > 0 {
		a.Packets = append(a.Packets, protocol.FramePacket(fit, useCRC))
	}
	return a
}
