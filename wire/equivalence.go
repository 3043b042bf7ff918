package wire

import "math"

// thresholds for config_changed's float comparisons.
const (
	rangeChangeThreshold    = 1e-3
	gainChangeThreshold     = 0.1
	soundSpeedChangeThresh  = 0.1
	salinityChangeThreshold = 0.1
)

// ConfigEquivalent implements the firmware acknowledgment rule: a Standby
// request is acknowledged by a DUMMY message; any other request is
// acknowledged by a ping result whose echoed fire command matches on the
// integer fields and range exactly, and on gain/speed-of-sound-or-salinity
// within tolerance. ping_rate is deliberately never compared — the
// firmware never echoes it.
func ConfigEquivalent(req PingConfig, feedbackHeader Header, feedback PingConfig) bool {
	if req.PingRate == PingRateStandby {
		return IsDummy(feedbackHeader)
	}
	if !IsPing(feedbackHeader) {
		return false
	}
	if req.MasterMode != feedback.MasterMode ||
		req.Gamma != feedback.Gamma ||
		req.Flags != feedback.Flags ||
		req.Range != feedback.Range {
		return false
	}
	if math.Abs(req.GainPercent-feedback.GainPercent) >= gainChangeThreshold {
		return false
	}
	if req.SpeedOfSound != 0 {
		return math.Abs(req.SpeedOfSound-feedback.SpeedOfSound) < soundSpeedChangeThresh
	}
	return math.Abs(req.Salinity-feedback.Salinity) < salinityChangeThreshold
}

// ConfigChanged reports whether next differs from prev in any field that
// matters to a config-change subscriber: an exact change in any integer
// field, or a float change beyond the tolerance firmware jitter normally
// produces.
func ConfigChanged(prev, next PingConfig) bool {
	if prev.MasterMode != next.MasterMode ||
		prev.PingRate != next.PingRate ||
		prev.NetworkSpeed != next.NetworkSpeed ||
		prev.Gamma != next.Gamma ||
		prev.Flags != next.Flags {
		return true
	}
	if math.Abs(prev.Range-next.Range) > rangeChangeThreshold {
		return true
	}
	if math.Abs(prev.GainPercent-next.GainPercent) > gainChangeThreshold {
		return true
	}
	if math.Abs(prev.SpeedOfSound-next.SpeedOfSound) > soundSpeedChangeThresh {
		return true
	}
	if math.Abs(prev.Salinity-next.Salinity) > salinityChangeThreshold {
		return true
	}
	return false
}
