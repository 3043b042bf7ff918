package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPingConfigEncodeDecodeRoundTrip(t *testing.T) {
	cfg := DefaultPingConfig()
	cfg.Range = 12.5
	cfg.GainPercent = 75
	cfg.SpeedOfSound = 1500
	cfg.Salinity = 35

	data := cfg.Encode()
	h, err := ValidateHeader(data[:HeaderSize])
	require.NoError(t, err)
	require.Equal(t, MsgSimpleFire, h.MsgID)
	require.Equal(t, uint32(firePayloadSize), h.PayloadSize)

	got := DecodeFireCommand(h, data[HeaderSize:])
	require.Equal(t, cfg.MasterMode, got.MasterMode)
	require.Equal(t, cfg.PingRate, got.PingRate)
	require.Equal(t, cfg.Gamma, got.Gamma)
	require.Equal(t, cfg.Flags, got.Flags)
	require.InDelta(t, cfg.Range, got.Range, 1e-9)
	require.InDelta(t, cfg.GainPercent, got.GainPercent, 1e-9)
	require.InDelta(t, cfg.SpeedOfSound, got.SpeedOfSound, 1e-9)
	require.InDelta(t, cfg.Salinity, got.Salinity, 1e-9)
}

func TestDefaultPingConfig(t *testing.T) {
	cfg := DefaultPingConfig()
	require.Equal(t, MasterModeHighFrequency, cfg.MasterMode)
	require.Equal(t, PingRateNormal, cfg.PingRate)
	require.NotZero(t, cfg.Flags&FlagRangeInMeters)
	require.NotZero(t, cfg.Flags&FlagSendGains)
	require.NotZero(t, cfg.Flags&FlagSimplePing)
}
