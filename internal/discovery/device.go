package discovery

import (
	"fmt"

	"udp2serial/internal/protocol"
	"udp2serial/internal/serialport"
)

// Device is the record of one attached serial line. Its negotiated values
// change only while the handshake runs.
type Device struct {
	Index int    // Index - порядковый номер последовательного устройства.
	Path  string // Path - путь к устройству.

	port     serialport.Port
	opts     DeviceOptions
	stream   *protocol.Reassembler
	readBuf  []byte
	state    State
	reply    protocol.DiscoveryReply
	hardware []int
}

// NewDevice wraps an opened port as serial device number index.
func NewDevice(index int, path string, port serialport.Port, opts DeviceOptions) *Device {
	if opts.ReadChunk <= 0 {
		opts.ReadChunk = 200
	}
	if opts.ReadCap < opts.ReadChunk {
		opts.ReadCap = opts.ReadChunk
	}
	return &Device{
		Index:   index,
		Path:    path,
		port:    port,
		opts:    opts,
		stream:  protocol.NewReassembler(opts.FragmentLimit),
		readBuf: make([]byte, opts.ReadChunk),
	}
}

func (d *Device) State() State { return d.state }

// Active reports whether the device takes part in the relay.
func (d *Device) Active() bool { return d.state == Ready }

func (d *Device) MaxPacketSize() int { return d.reply.MaxPacketSize }

func (d *Device) UseCRC() bool { return d.reply.CRC }

// Reply returns the accepted discovery reply.
func (d *Device) Reply() protocol.DiscoveryReply { return d.reply }

// HardwareIndices returns the lighting devices behind this serial line.
func (d *Device) HardwareIndices() []int {
	return append([]int(nil), d.hardware...)
}

// DiscardedFragments counts unterminated input dropped for being too long.
func (d *Device) DiscardedFragments() int { return d.stream.Discarded }

// Write sends one packet.
func (d *Device) Write(packet string) error {
	n, err := d.port.Write([]byte(packet))
	if err != nil {
		return fmt.Errorf("serial %d (%s) write: %w", d.Index, d.Path, err)
	}
	if n != len(packet) {
		return fmt.Errorf("serial %d (%s) short write: %d of %d bytes", d.Index, d.Path, n, len(packet))
	}
	return nil
}

// ReadPackets drains the bytes currently available, up to the read cap, and
// returns the packets completed by them. Unterminated input is kept for the
// next call.
func (d *Device) ReadPackets() ([]string, error) {
	total := 0
	var packets []string
	for total < d.opts.ReadCap {
		n, err := d.port.Read(d.readBuf)
		if n > 0 {
			total += n
			packets = append(packets, d.stream.Feed(d.readBuf[:n])...)
		}
		if err != nil {
			return packets, fmt.Errorf("serial %d (%s) read: %w", d.Index, d.Path, err)
		}
		if n == 0 {
			break
		}
	}
	return packets, nil
}

// takeDiscoveryReply returns an unterminated discovery reply waiting in the
// stream buffer.
func (d *Device) takeDiscoveryReply() (string, bool) {
	return d.stream.Cut(protocol.DiscoveryMarker, protocol.MessageDelimiter)
}

// Close closes the underlying port.
func (d *Device) Close() error {
	return d.port.Close()
}

func (d *Device) accept(reply protocol.DiscoveryReply) {
	d.reply = reply
	d.state = AwaitingStateReply
}

func (d *Device) ready(indices []int) {
	d.hardware = append([]int(nil), indices...)
	d.state = Ready
}

func (d *Device) fail() {
	d.state = Failed
}
