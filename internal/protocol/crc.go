package protocol

import "strconv"

// crcTable holds the 16 half-byte steps of the reflected CRC-32 polynomial.
var crcTable = [16]uint32{
	0x00000000, 0x1db71064, 0x3b6e20c8, 0x26d930ac,
	0x76dc4190, 0x6b6b51f4, 0x4db26158, 0x5005713c,
	0xedb88320, 0xf00f9344, 0xd6d6a3e8, 0xcb61b38c,
	0x9b64c2b0, 0x86d3d2d4, 0xa00ae278, 0xbdbdf21c,
}

// Checksum computes the packet CRC over payload, low nibble first.
func Checksum(payload []byte) uint32 {
	crc := ^uint32(0)
	for _, b := range payload {
		crc = crcTable[(crc^uint32(b))&0x0f] ^ (crc >> 4)
		crc = crcTable[(crc^uint32(b>>4))&0x0f] ^ (crc >> 4)
	}
	return ^crc
}

// ChecksumString returns the decimal wire form of the payload CRC.
func ChecksumString(payload string) string {
	return strconv.FormatUint(uint64(Checksum([]byte(payload))), 10)
}

// Verify compares the claimed CRC with the computed one as decimal strings.
func Verify(payload, claimed string) bool {
	return ChecksumString(payload) == claimed
}

// AppendCRC adds the "#<crc>&" segment to a packet body.
func AppendCRC(body string) string {
	return body + string(CRCDelimiter) + ChecksumString(body) + string(MessageDelimiter)
}
