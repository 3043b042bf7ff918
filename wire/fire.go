package wire

// PingRate selects how often (and whether) the sonar fires.
type PingRate uint8

// Illustrative ping rate values; firmware treats Standby as "stop firing
// without disconnecting".
const (
	PingRateNormal  PingRate = 0
	PingRateHigh    PingRate = 1
	PingRateHighest PingRate = 2
	PingRateLow     PingRate = 3
	PingRateLowest  PingRate = 4
	PingRateStandby PingRate = 5
)

// Flag bits within PingConfig.Flags.
const (
	FlagRangeInMeters uint8 = 1 << 0
	FlagData16Bit     uint8 = 1 << 1
	FlagSendGains     uint8 = 1 << 2
	FlagSimplePing    uint8 = 1 << 3
)

// MasterMode selects the sonar's coarse imaging regime.
const (
	MasterModeLowFrequency  uint8 = 1
	MasterModeHighFrequency uint8 = 2
)

// UnverifiedMsgID is the sentinel msg id request_ping_config stamps onto
// the config it returns when it exhausts its retry budget without seeing a
// matching acknowledgment.
const UnverifiedMsgID uint16 = 0

// PingConfig is the fire command: the parameters that drive the sonar into
// a particular imaging configuration. Header is populated when the config
// is built from a received message (current_ping_config, request_ping_config)
// and is otherwise the caller's scratch space.
type PingConfig struct {
	Header        Header
	MasterMode    uint8
	PingRate      PingRate
	NetworkSpeed  uint8
	Gamma         uint8
	Flags         uint8
	Range         float64
	GainPercent   float64
	SpeedOfSound  float64 // 0 => derive from salinity
	Salinity      float64
}

// DefaultPingConfig returns the configuration the driver applies on every
// (re)connection, matching the firmware's own power-on defaults.
func DefaultPingConfig() PingConfig {
	return PingConfig{
		MasterMode:   MasterModeHighFrequency,
		PingRate:     PingRateNormal,
		NetworkSpeed: 0xff,
		Gamma:        127,
		Range:        2.54,
		GainPercent:  50,
		Flags:        FlagRangeInMeters | FlagSendGains | FlagSimplePing,
	}
}

// firePayloadSize is the size in bytes of the fixed fields SIMPLE_FIRE
// carries after the header (master_mode..salinity): five u8 fields padded
// to 8 bytes, then four float64 fields.
const firePayloadSize = 8 + 8*4

// Encode serializes cfg as a SIMPLE_FIRE message body (header + payload),
// stamping the header fields send_ping_config is responsible for.
func (cfg PingConfig) Encode() []byte {
	buf := make([]byte, HeaderSize+firePayloadSize)
	h := cfg.Header
	h.Magic = Magic
	h.MsgID = MsgSimpleFire
	h.PayloadSize = uint32(firePayloadSize)
	PutHeader(buf, h)

	p := buf[HeaderSize:]
	p[0] = cfg.MasterMode
	p[1] = uint8(cfg.PingRate)
	p[2] = cfg.NetworkSpeed
	p[3] = cfg.Gamma
	p[4] = cfg.Flags
	putFloat64(p[8:16], cfg.Range)
	putFloat64(p[16:24], cfg.GainPercent)
	putFloat64(p[24:32], cfg.SpeedOfSound)
	putFloat64(p[32:40], cfg.Salinity)
	return buf
}

// DecodeFireCommand parses a SIMPLE_FIRE payload (as embedded inside a ping
// result's copy of the fire command that produced it) into a PingConfig.
func DecodeFireCommand(h Header, payload []byte) PingConfig {
	cfg := PingConfig{Header: h}
	if len(payload) < firePayloadSize {
		return cfg
	}
	cfg.MasterMode = payload[0]
	cfg.PingRate = PingRate(payload[1])
	cfg.NetworkSpeed = payload[2]
	cfg.Gamma = payload[3]
	cfg.Flags = payload[4]
	cfg.Range = getFloat64(payload[8:16])
	cfg.GainPercent = getFloat64(payload[16:24])
	cfg.SpeedOfSound = getFloat64(payload[24:32])
	cfg.Salinity = getFloat64(payload[32:40])
	return cfg
}
