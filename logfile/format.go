/*************************************************************************
 * Copyright 2024 ENSTA Bretagne Robotics. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package logfile implements FileReader (C8) and the on-disk record
// formats shared with Recorder (C7): a 40-byte LogFileHeader followed by a
// stream of 28-byte-header LogItem records.
package logfile

import (
	"encoding/binary"
	"errors"
	"math"
)

// ItemType enumerates the LogItem payload families this package knows
// about. Other values may appear in a file written by other tooling and
// must be skipped by readers.
type ItemType uint16

const (
	ItemOculusSonar      ItemType = 0x11
	ItemOculusSonarStamp ItemType = 0x12
)

const (
	// FileHeaderMagic identifies a valid LogFileHeader.
	FileHeaderMagic uint32 = 0x11223344
	// FileHeaderSize is the on-disk size of a LogFileHeader.
	FileHeaderSize = 40
	// CurrentVersion is the only version this package writes.
	CurrentVersion uint16 = 1
	// ItemMagic identifies a valid LogItem.
	ItemMagic uint32 = 0xAABBCCDD
	// ItemHeaderSize is the on-disk size of a LogItem header (excluding payload).
	ItemHeaderSize = 28
	// StampPayloadSize is the size of an OculusSonarStamp payload.
	StampPayloadSize = 16

	sourceFieldSize = 12
)

var sourceTag = [sourceFieldSize]byte{'O', 'c', 'u', 'l', 'u', 's'}

// ErrLogFormatInvalid reports a fatal structural problem with a log file:
// wrong magic at the file or item level, or a nonzero encryption field.
var ErrLogFormatInvalid = errors.New("logfile: invalid format")

// FileHeader is the 40-byte record written once at file open.
//
//	offset  0: magic        u32
//	offset  4: header_size  u32
//	offset  8: source       [12]byte
//	offset 20: version      u16
//	offset 22: encryption   u16
//	offset 24: key          i64
//	offset 32: time         f64
type FileHeader struct {
	Magic      uint32
	HeaderSize uint32
	Source     [sourceFieldSize]byte
	Version    uint16
	Encryption uint16
	Key        int64
	Time       float64
}

// NewFileHeader builds the header this package writes, stamping the
// current wall-clock time in seconds.
func NewFileHeader(timeSeconds float64) FileHeader {
	return FileHeader{
		Magic:      FileHeaderMagic,
		HeaderSize: FileHeaderSize,
		Source:     sourceTag,
		Version:    CurrentVersion,
		Encryption: 0,
		Key:        0,
		Time:       timeSeconds,
	}
}

// Encode serializes h to its 40-byte little-endian wire form.
func (h FileHeader) Encode() []byte {
	buf := make([]byte, FileHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.HeaderSize)
	copy(buf[8:20], h.Source[:])
	binary.LittleEndian.PutUint16(buf[20:22], h.Version)
	binary.LittleEndian.PutUint16(buf[22:24], h.Encryption)
	binary.LittleEndian.PutUint64(buf[24:32], uint64(h.Key))
	binary.LittleEndian.PutUint64(buf[32:40], math.Float64bits(h.Time))
	return buf
}

// ParseFileHeader validates and decodes a 40-byte buffer. Wrong magic or a
// nonzero Encryption field is reported via ErrLogFormatInvalid; a version
// other than CurrentVersion is accepted (callers may warn, per spec.md
// §4.8, but decoding proceeds).
func ParseFileHeader(buf []byte) (FileHeader, error) {
	if len(buf) < FileHeaderSize {
		return FileHeader{}, ErrLogFormatInvalid
	}
	var h FileHeader
	h.Magic = binary.LittleEndian.Uint32(buf[0:4])
	if h.Magic != FileHeaderMagic {
		return FileHeader{}, ErrLogFormatInvalid
	}
	h.HeaderSize = binary.LittleEndian.Uint32(buf[4:8])
	copy(h.Source[:], buf[8:20])
	h.Version = binary.LittleEndian.Uint16(buf[20:22])
	h.Encryption = binary.LittleEndian.Uint16(buf[22:24])
	if h.Encryption != 0 {
		return FileHeader{}, ErrLogFormatInvalid
	}
	h.Key = int64(binary.LittleEndian.Uint64(buf[24:32]))
	h.Time = math.Float64frombits(binary.LittleEndian.Uint64(buf[32:40]))
	return h, nil
}

// ItemHeader is the 28-byte per-record header preceding each item's
// payload. This driver never compresses, so OriginalSize always equals
// PayloadSize; the wire form folds them into a single field plus two
// reserved bytes, rather than spending 8 bytes on a redundant pair.
//
//	offset  0: magic        u32
//	offset  4: header_size  u32
//	offset  8: type         u16
//	offset 10: version      u16
//	offset 12: time         f64
//	offset 20: compression  u16
//	offset 22: reserved     u16
//	offset 24: payload_size u32
type ItemHeader struct {
	Magic        uint32
	HeaderSize   uint32
	Type         ItemType
	Version      uint16
	Time         float64
	Compression  uint16
	OriginalSize uint32
	PayloadSize  uint32
}

// NewItemHeader builds a header for a payload of the given type, size, and
// timestamp (seconds since epoch).
func NewItemHeader(t ItemType, timeSeconds float64, payloadSize uint32) ItemHeader {
	return ItemHeader{
		Magic:        ItemMagic,
		HeaderSize:   ItemHeaderSize,
		Type:         t,
		Version:      CurrentVersion,
		Time:         timeSeconds,
		Compression:  0,
		OriginalSize: payloadSize,
		PayloadSize:  payloadSize,
	}
}

// Encode serializes h to its 28-byte little-endian wire form.
func (h ItemHeader) Encode() []byte {
	buf := make([]byte, ItemHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.HeaderSize)
	binary.LittleEndian.PutUint16(buf[8:10], uint16(h.Type))
	binary.LittleEndian.PutUint16(buf[10:12], h.Version)
	binary.LittleEndian.PutUint64(buf[12:20], math.Float64bits(h.Time))
	binary.LittleEndian.PutUint16(buf[20:22], h.Compression)
	binary.LittleEndian.PutUint32(buf[24:28], h.PayloadSize)
	return buf
}

// ParseItemHeader validates and decodes a 28-byte buffer.
func ParseItemHeader(buf []byte) (ItemHeader, error) {
	if len(buf) < ItemHeaderSize {
		return ItemHeader{}, ErrLogFormatInvalid
	}
	var h ItemHeader
	h.Magic = binary.LittleEndian.Uint32(buf[0:4])
	if h.Magic != ItemMagic {
		return ItemHeader{}, ErrLogFormatInvalid
	}
	h.HeaderSize = binary.LittleEndian.Uint32(buf[4:8])
	h.Type = ItemType(binary.LittleEndian.Uint16(buf[8:10]))
	h.Version = binary.LittleEndian.Uint16(buf[10:12])
	h.Time = math.Float64frombits(binary.LittleEndian.Uint64(buf[12:20]))
	h.Compression = binary.LittleEndian.Uint16(buf[20:22])
	h.PayloadSize = binary.LittleEndian.Uint32(buf[24:28])
	h.OriginalSize = h.PayloadSize
	return h, nil
}

// EncodeStamp packs a nanosecond-precision timestamp split as
// {seconds, nanoseconds} into its 16-byte wire form.
func EncodeStamp(seconds, nanoseconds uint64) []byte {
	buf := make([]byte, StampPayloadSize)
	binary.LittleEndian.PutUint64(buf[0:8], seconds)
	binary.LittleEndian.PutUint64(buf[8:16], nanoseconds)
	return buf
}

// DecodeStamp unpacks an OculusSonarStamp payload.
func DecodeStamp(buf []byte) (seconds, nanoseconds uint64, ok bool) {
	if len(buf) < StampPayloadSize {
		return 0, 0, false
	}
	return binary.LittleEndian.Uint64(buf[0:8]), binary.LittleEndian.Uint64(buf[8:16]), true
}
