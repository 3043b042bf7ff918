package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigEquivalentStandbyAcksWithDummy(t *testing.T) {
	req := DefaultPingConfig()
	req.PingRate = PingRateStandby
	require.True(t, ConfigEquivalent(req, Header{Magic: Magic, MsgID: MsgDummy}, PingConfig{}))
	require.False(t, ConfigEquivalent(req, Header{Magic: Magic, MsgID: MsgPingResult}, PingConfig{}))
}

func TestConfigEquivalentToleratesGainJitter(t *testing.T) {
	req := DefaultPingConfig()
	req.SpeedOfSound = 1500
	feedback := req
	feedback.GainPercent += 0.05 // within gainChangeThreshold
	feedback.SpeedOfSound += 0.05

	require.True(t, ConfigEquivalent(req, Header{Magic: Magic, MsgID: MsgPingResult}, feedback))

	feedback.GainPercent = req.GainPercent + 1
	require.False(t, ConfigEquivalent(req, Header{Magic: Magic, MsgID: MsgPingResult}, feedback))
}

func TestConfigEquivalentUsesSalinityWhenSpeedOfSoundUnset(t *testing.T) {
	req := DefaultPingConfig()
	req.SpeedOfSound = 0
	req.Salinity = 35
	feedback := req
	feedback.Salinity += 0.05
	feedback.SpeedOfSound = 1480 // ignored since req didn't request a fixed speed of sound

	require.True(t, ConfigEquivalent(req, Header{Magic: Magic, MsgID: MsgPingResult}, feedback))
}

func TestConfigChanged(t *testing.T) {
	prev := DefaultPingConfig()
	next := prev
	require.False(t, ConfigChanged(prev, next))

	next.MasterMode = MasterModeLowFrequency
	require.True(t, ConfigChanged(prev, next))

	next = prev
	next.Range += 0.0001 // below rangeChangeThreshold
	require.False(t, ConfigChanged(prev, next))

	next.Range = prev.Range + 1
	require.True(t, ConfigChanged(prev, next))
}
