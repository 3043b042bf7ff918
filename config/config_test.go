package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleINI = `
[global]
sonar-address = 192.168.2.3
status-port = 9999
checker-period = 500ms
log-level = WARN

[recording]
enabled = true
path = /tmp/session.oculus
overwrite = true

[broadcast]
enabled = true
port = 52150
`

func TestLoadConfigBytesAndVerify(t *testing.T) {
	c, err := LoadConfigBytes([]byte(sampleINI))
	require.NoError(t, err)
	require.Equal(t, "192.168.2.3", c.Global.Sonar_Address)
	require.Equal(t, 9999, c.Global.Status_Port)

	r, err := c.Verify()
	require.NoError(t, err)
	require.Equal(t, "192.168.2.3", r.Global.SonarAddress)
	require.Equal(t, 9999, r.Global.StatusPort)
	require.Equal(t, 500_000_000, int(r.Global.CheckerPeriod))
	require.Equal(t, "WARN", r.Global.LogLevel)
	require.True(t, r.Recording.Enabled)
	require.Equal(t, "/tmp/session.oculus", r.Recording.Path)
	require.True(t, r.Broadcast.Enabled)
	require.Equal(t, 52150, r.Broadcast.Port)

	// Data-Port was never set in the INI, so it falls back to Default().
	require.Equal(t, Default().Global.DataPort, r.Global.DataPort)
}

func TestVerifyRejectsInvalidLogLevel(t *testing.T) {
	c, err := LoadConfigBytes([]byte("[global]\nlog-level = NOPE\n"))
	require.NoError(t, err)
	_, err = c.Verify()
	require.ErrorIs(t, err, ErrInvalidLogLevel)
}

func TestVerifyRejectsBadDuration(t *testing.T) {
	c, err := LoadConfigBytes([]byte("[global]\nchecker-period = notaduration\n"))
	require.NoError(t, err)
	_, err = c.Verify()
	require.Error(t, err)
}

func TestDefaultIsVerifiable(t *testing.T) {
	var c Config
	r, err := c.Verify()
	require.NoError(t, err)
	require.Equal(t, Default().Global.LogLevel, r.Global.LogLevel)
}

func TestLoadConfigBytesTooLarge(t *testing.T) {
	big := make([]byte, maxConfigSize+1)
	_, err := LoadConfigBytes(big)
	require.ErrorIs(t, err, ErrConfigFileTooLarge)
}

func TestAppendDefaultPort(t *testing.T) {
	require.Equal(t, ":52102", AppendDefaultPort("", 52102))
	require.Equal(t, "host:52102", AppendDefaultPort("host", 52102))
	require.Equal(t, "host:9000", AppendDefaultPort("host:9000", 52102))
}
