/*************************************************************************
 * Copyright 2024 ENSTA Bretagne Robotics. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package wire implements the Oculus sonar wire protocol: header framing,
// ping payload layouts (v1/v2), fire command encoding, and the config
// acknowledgment rules the firmware actually follows.
package wire

import (
	"encoding/binary"
	"errors"
)

// Message ids the driver must route. Names are illustrative; they bind to
// whatever values the connected firmware generation actually emits.
const (
	MsgDummy            uint16 = 0x14
	MsgSimpleFire       uint16 = 0x15
	MsgPingResultLegacy uint16 = 0x22
	MsgPingResult       uint16 = 0x23
	MsgUserConfig       uint16 = 0x19
)

// Magic is the little-endian magic value that marks a valid header.
const Magic uint16 = 0x4f53

// HeaderSize is the fixed, packed size of a Header on the wire.
const HeaderSize = 16

// ErrInvalidHeader is returned when the first two bytes of a buffer are not Magic.
var ErrInvalidHeader = errors.New("wire: invalid header magic")

// Header is the fixed 16-byte record prefixing every framed message.
type Header struct {
	Magic       uint16
	SrcID       uint16
	DstID       uint16
	MsgID       uint16
	MsgVersion  uint16
	PayloadSize uint32
	Reserved    uint16
}

// Valid reports whether h carries the expected magic.
func (h Header) Valid() bool {
	return h.Magic == Magic
}

// PutHeader serializes h into buf (which must be at least HeaderSize long),
// little-endian, matching the vendor's packed struct layout.
func PutHeader(buf []byte, h Header) {
	_ = buf[HeaderSize-1]
	binary.LittleEndian.PutUint16(buf[0:2], h.Magic)
	binary.LittleEndian.PutUint16(buf[2:4], h.SrcID)
	binary.LittleEndian.PutUint16(buf[4:6], h.DstID)
	binary.LittleEndian.PutUint16(buf[6:8], h.MsgID)
	binary.LittleEndian.PutUint16(buf[8:10], h.MsgVersion)
	binary.LittleEndian.PutUint32(buf[10:14], h.PayloadSize)
	binary.LittleEndian.PutUint16(buf[14:16], h.Reserved)
}

// ParseHeader decodes a raw 16-byte header without validating it.
func ParseHeader(buf []byte) Header {
	_ = buf[HeaderSize-1]
	return Header{
		Magic:       binary.LittleEndian.Uint16(buf[0:2]),
		SrcID:       binary.LittleEndian.Uint16(buf[2:4]),
		DstID:       binary.LittleEndian.Uint16(buf[4:6]),
		MsgID:       binary.LittleEndian.Uint16(buf[6:8]),
		MsgVersion:  binary.LittleEndian.Uint16(buf[8:10]),
		PayloadSize: binary.LittleEndian.Uint32(buf[10:14]),
		Reserved:    binary.LittleEndian.Uint16(buf[14:16]),
	}
}

// ValidateHeader decodes buf and returns it only if the magic checks out.
// Callers that get ErrInvalidHeader must resynchronize: drop one byte and
// retry, per the protocol desync recovery in client.Client.
func ValidateHeader(buf []byte) (Header, error) {
	h := ParseHeader(buf)
	if !h.Valid() {
		return Header{}, ErrInvalidHeader
	}
	return h, nil
}

// IsPing reports whether a valid header identifies a ping result message,
// in either the current or legacy message id.
func IsPing(h Header) bool {
	return h.Valid() && (h.MsgID == MsgPingResult || h.MsgID == MsgPingResultLegacy)
}

// IsDummy reports whether a valid header identifies a dummy (standby ack) message.
func IsDummy(h Header) bool {
	return h.Valid() && h.MsgID == MsgDummy
}
