package wire

import (
	"encoding/binary"
	"net"
)

// StatusSize is the fixed size of a status broadcast datagram. Only Header
// (for the sonar id) and IPAddr are inspected by the driver; the rest of
// the vendor's status struct is treated as an opaque binary schema.
const StatusSize = HeaderSize + 4 + 4 + 4

// Status is a parsed UDP status broadcast.
type Status struct {
	Header      Header
	DeviceID    uint32
	StatusFlags uint32
	IPAddr      [4]byte // network-endianness IPv4 address bytes
}

// ParseStatus decodes a fixed-size status datagram. ok is false if buf is
// not exactly StatusSize bytes.
func ParseStatus(buf []byte) (Status, bool) {
	if len(buf) != StatusSize {
		return Status{}, false
	}
	var s Status
	s.Header = ParseHeader(buf[0:HeaderSize])
	s.DeviceID = binary.LittleEndian.Uint32(buf[HeaderSize : HeaderSize+4])
	s.StatusFlags = binary.LittleEndian.Uint32(buf[HeaderSize+4 : HeaderSize+8])
	copy(s.IPAddr[:], buf[HeaderSize+8:HeaderSize+12])
	return s, true
}

// IP returns the sonar's IPv4 address, recovered from the status message's
// network-endianness ip_addr field.
func (s Status) IP() net.IP {
	return net.IPv4(s.IPAddr[0], s.IPAddr[1], s.IPAddr[2], s.IPAddr[3])
}
