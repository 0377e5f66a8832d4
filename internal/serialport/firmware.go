package serialport

import (
	"strconv"

	"udp2serial/internal/protocol"
)

// Firmware answers the discovery handshake the way a lighting controller
// does. It is meant to be plugged into TestablePort.Respond.
type Firmware struct {
	Minor           int
	CRC             bool
	MaxPacketSize   int
	Devices         []protocol.DeviceInfo
	HardwareIndices []int
}

// Respond returns the controller's answer to one written packet.
func (f Firmware) Respond(written string) string {
	switch written {
	case protocol.DiscoveryRequest:
		return protocol.DiscoveryReply{
			Major:         protocol.SupportedMajorVersion,
			Minor:         f.Minor,
			CRC:           f.CRC,
			MaxPacketSize: f.MaxPacketSize,
			Count:         len(f.Devices),
			Devices:       f.Devices,
		}.String() + string(protocol.PacketTerminator)
	case protocol.StateUpdateRequest(f.CRC):
		messages := make([]string, 0, len(f.HardwareIndices))
		for _, hw := range f.HardwareIndices {
			messages = append(messages, StateMessage(hw))
		}
		return protocol.FramePacket(messages, f.CRC)
	}
	return ""
}

// StateMessage is a 13 field state update for one hardware index.
func StateMessage(hardwareIndex int) string {
	return protocol.BuildMessage("6", strconv.Itoa(hardwareIndex), "1", "0", "255", "0", "0", "1", "100", "10", "0", "0", "0")
}

// NewFirmwarePort returns a TestablePort driven by f.
func NewFirmwarePort(f Firmware) *TestablePort {
	p := NewTestablePort()
	p.Respond = f.Respond
	return p
}
