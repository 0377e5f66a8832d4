package relay

import (
	"udp2serial/internal/logger"
)

// Stats counts what the relay did since start. It is owned by the relay
// goroutine; copies are handed out by value.
type Stats struct {
	DatagramsIn       int `json:"datagrams_in"`
	DiscoveryQueries  int `json:"discovery_queries"`
	CRCFailures       int `json:"crc_failures"`
	Malformed         int `json:"malformed"`
	RoutingMisses     int `json:"routing_misses"`
	MessagesRouted    int `json:"messages_routed"`
	PacketsToSerial   int `json:"packets_to_serial"`
	DeferredMessages  int `json:"deferred_messages"`
	DroppedMessages   int `json:"dropped_messages"`
	FragmentsDropped  int `json:"fragments_dropped"`
	SerialPacketsIn   int `json:"serial_packets_in"`
	SerialCRCFailures int `json:"serial_crc_failures"`
	DatagramsOut      int `json:"datagrams_out"`
	NoPeerDrops       int `json:"no_peer_drops"`
	WriteErrors       int `json:"write_errors"`
}

// LogStats writes the counters at info level.
func (s Stats) LogStats(log logger.Logger) {
	log.With(logger.Fields{
		"module":        "relay",
		"udp_in":        s.DatagramsIn,
		"udp_out":       s.DatagramsOut,
		"serial_in":     s.SerialPacketsIn,
		"serial_out":    s.PacketsToSerial,
		"routed":        s.MessagesRouted,
		"crc_fail":      s.CRCFailures + s.SerialCRCFailures,
		"malformed":     s.Malformed,
		"routing_miss":  s.RoutingMisses,
		"deferred":      s.DeferredMessages,
		"dropped":       s.DroppedMessages,
		"write_errors":  s.WriteErrors,
		"no_peer_drops": s.NoPeerDrops,
	}).Info("relay statistics")
}
