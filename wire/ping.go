package wire

import (
	"encoding/binary"
	"math"
)

// pingMetaCommon holds the fields every ping metadata version exposes,
// independent of where v1/v2 place them in the payload.
type pingMetaCommon struct {
	fire            PingConfig
	pingIndex       uint32
	pingFiringDate  uint32
	frequency       float64
	temperature     float64
	pressure        float64
	speedOfSound    float64
	rangeResolution float64
	nRanges         uint16
	nBeams          uint16
	imageOffset     uint32
	imageSize       uint32
	dataSizeCode    uint8
}

// Offsets within the per-version metadata block. v2 carries 8 extra
// reserved/auxiliary bytes between range_resolution and n_ranges relative
// to v1 (firmware quirk: the v2 metadata struct grew without a version
// bump to the shared fields ahead of it).
const (
	metaFireSize  = firePayloadSize // 40
	metaV1Size    = metaFireSize + 4 + 4 + 8*5 + 2 + 2 + 4 + 4 + 1 + 3
	metaV2Size    = metaV1Size + 8
	pingIndexOff  = metaFireSize
	firingDateOff = pingIndexOff + 4
	freqOff       = firingDateOff + 4
	tempOff       = freqOff + 8
	pressOff      = tempOff + 8
	sosOff        = pressOff + 8
	rangeResOff   = sosOff + 8
)

func parsePingMetaCommon(version uint16, payload []byte) (pingMetaCommon, bool) {
	size := metaV1Size
	if version == 2 {
		size = metaV2Size
	}
	if len(payload) < size {
		return pingMetaCommon{}, false
	}
	tail := rangeResOff + 8
	if version == 2 {
		tail += 8 // skip the v2-only reserved bytes
	}
	c := pingMetaCommon{
		fire:            DecodeFireCommand(Header{}, payload[0:metaFireSize]),
		pingIndex:       binary.LittleEndian.Uint32(payload[pingIndexOff : pingIndexOff+4]),
		pingFiringDate:  binary.LittleEndian.Uint32(payload[firingDateOff : firingDateOff+4]),
		frequency:       getFloat64(payload[freqOff : freqOff+8]),
		temperature:     getFloat64(payload[tempOff : tempOff+8]),
		pressure:        getFloat64(payload[pressOff : pressOff+8]),
		speedOfSound:    getFloat64(payload[sosOff : sosOff+8]),
		rangeResolution: getFloat64(payload[rangeResOff : rangeResOff+8]),
		nRanges:         binary.LittleEndian.Uint16(payload[tail : tail+2]),
		nBeams:          binary.LittleEndian.Uint16(payload[tail+2 : tail+4]),
		imageOffset:     binary.LittleEndian.Uint32(payload[tail+4 : tail+8]),
		imageSize:       binary.LittleEndian.Uint32(payload[tail+8 : tail+12]),
		dataSizeCode:    payload[tail+12],
	}
	return c, true
}

// PingView is a tagged view over a ping result message's payload, exposing
// the fields the driver and recorders care about without committing to
// either wire layout.
type PingView struct {
	version uint16
	common  pingMetaCommon
	payload []byte

	sampleSize int
	hasGains   bool
}

// ParsePing builds a PingView from a message whose header passed IsPing.
// ok is false if the payload is too short to hold the fixed metadata; it is
// never false merely because the geometry looks inconsistent (that shows up
// as SampleSize()==0, per spec's "surfaced as data" error policy).
func ParsePing(h Header, payload []byte) (PingView, bool) {
	version := h.MsgVersion
	common, ok := parsePingMetaCommon(version, payload)
	if !ok {
		return PingView{}, false
	}
	v := PingView{version: version, common: common, payload: payload}
	v.sampleSize, v.hasGains = resolveSampleSizeAndGains(version, common, payload)
	return v, true
}

func metaSize(version uint16) int {
	if version == 2 {
		return metaV2Size
	}
	return metaV1Size
}

func validSampleSizeFromCode(code uint8) (int, bool) {
	switch code {
	case 0:
		return 1, true
	case 1:
		return 2, true
	case 2:
		return 3, true
	case 3:
		return 4, true
	default:
		return 0, false
	}
}

// deriveSampleSize implements the row-stride division from §4.1: a row is
// image_size/n_ranges bytes, minus 4 for the gain column if present, and
// that must divide evenly by n_beams.
func deriveSampleSize(imageSize uint32, nRanges, nBeams uint16, hasGains bool) int {
	if nRanges == 0 || nBeams == 0 {
		return 0
	}
	if imageSize%uint32(nRanges) != 0 {
		return 0
	}
	rowStride := int64(imageSize) / int64(nRanges)
	if hasGains {
		rowStride -= 4
	}
	if rowStride <= 0 || rowStride%int64(nBeams) != 0 {
		return 0
	}
	return int(rowStride / int64(nBeams))
}

func resolveSampleSizeAndGains(version uint16, c pingMetaCommon, payload []byte) (int, bool) {
	validSize, validCode := validSampleSizeFromCode(c.dataSizeCode)

	if version == 2 {
		// v2's send-gains flag is unreliable; always infer from geometry.
		if validCode {
			ideal := uint64(validSize) * uint64(c.nBeams) * uint64(c.nRanges)
			return validSize, uint64(c.imageSize) > ideal
		}
		if s := deriveSampleSize(c.imageSize, c.nRanges, c.nBeams, false); s > 0 {
			return s, false
		}
		if s := deriveSampleSize(c.imageSize, c.nRanges, c.nBeams, true); s > 0 {
			return s, true
		}
		return 0, false
	}

	// v1: the flag is trustworthy.
	hasGains := c.fire.Flags&FlagSendGains != 0
	if validCode {
		return validSize, hasGains
	}
	if s := deriveSampleSize(c.imageSize, c.nRanges, c.nBeams, hasGains); s > 0 {
		return s, hasGains
	}
	return 0, false
}

// Version returns 1 or 2.
func (v PingView) Version() int {
	if v.version == 2 {
		return 2
	}
	return 1
}

func (v PingView) NRanges() uint16            { return v.common.nRanges }
func (v PingView) NBeams() uint16             { return v.common.nBeams }
func (v PingView) ImageOffset() uint32        { return v.common.imageOffset }
func (v PingView) ImageSize() uint32          { return v.common.imageSize }
func (v PingView) DataSizeCode() uint8        { return v.common.dataSizeCode }
func (v PingView) PingIndex() uint32          { return v.common.pingIndex }
func (v PingView) PingFiringDate() uint32     { return v.common.pingFiringDate }
func (v PingView) Frequency() float64         { return v.common.frequency }
func (v PingView) Temperature() float64       { return v.common.temperature }
func (v PingView) Pressure() float64          { return v.common.pressure }
func (v PingView) SpeedOfSound() float64      { return v.common.speedOfSound }
func (v PingView) RangeResolution() float64   { return v.common.rangeResolution }
func (v PingView) Range() float64             { return v.common.fire.Range }
func (v PingView) GainPercent() float64       { return v.common.fire.GainPercent }
func (v PingView) MasterMode() uint8          { return v.common.fire.MasterMode }
func (v PingView) FireCommand() PingConfig    { return v.common.fire }

// HasGains reports whether each image row is prefixed by a 4-byte gain.
func (v PingView) HasGains() bool { return v.hasGains }

// SampleSize returns 1/2/3/4 bytes per pixel sample, or 0 if the payload's
// geometry is inconsistent (PingPayloadInconsistent, surfaced as data per
// spec's error policy, not as an error return).
func (v PingView) SampleSize() int { return v.sampleSize }

// BearingTableOffset is the offset (from the start of the payload) of the
// 2-bytes-per-beam signed bearing table, in hundredths of a degree.
func (v PingView) BearingTableOffset() int { return metaSize(v.version) }

// RowStride is the number of bytes per range row in the pixel image,
// including the optional 4-byte gain column.
func (v PingView) RowStride() int {
	if v.sampleSize == 0 {
		return 0
	}
	stride := v.sampleSize * int(v.common.nBeams)
	if v.hasGains {
		stride += 4
	}
	return stride
}

// Bearings returns the per-beam bearing, in hundredths of a degree.
func (v PingView) Bearings() []int16 {
	off := v.BearingTableOffset()
	n := int(v.common.nBeams)
	if off+2*n > len(v.payload) {
		return nil
	}
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(v.payload[off+2*i : off+2*i+2]))
	}
	return out
}

// Row returns the raw bytes of range row i (gain column included if
// present), or nil if the geometry is inconsistent or i is out of range.
func (v PingView) Row(i int) []byte {
	stride := v.RowStride()
	if stride == 0 || i < 0 || i >= int(v.common.nRanges) {
		return nil
	}
	start := int(v.common.imageOffset) + i*stride
	end := start + stride
	if end > len(v.payload) {
		return nil
	}
	return v.payload[start:end]
}

// RowGain returns the per-row gain coefficient for row i, derived from the
// row's leading 4-byte unsigned integer as 1/sqrt(g). Returns 0, false if
// the ping has no gain column or the row is unavailable.
func (v PingView) RowGain(i int) (float64, bool) {
	if !v.hasGains {
		return 0, false
	}
	row := v.Row(i)
	if len(row) < 4 {
		return 0, false
	}
	g := binary.LittleEndian.Uint32(row[0:4])
	if g == 0 {
		return 0, false
	}
	return 1 / math.Sqrt(float64(g)), true
}
