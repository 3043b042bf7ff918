package oculuslog

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

type nopCloserBuf struct{ *bytes.Buffer }

func (nopCloserBuf) Close() error { return nil }

func TestLevelFromStringRoundTrip(t *testing.T) {
	for _, lvl := range []Level{OFF, DEBUG, INFO, WARN, ERROR, CRITICAL} {
		got, err := LevelFromString(lvl.String())
		require.NoError(t, err)
		require.Equal(t, lvl, got)
	}
	_, err := LevelFromString("bogus")
	require.ErrorIs(t, err, ErrInvalidLevel)
}

func TestLoggerDropsBelowConfiguredLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(nopCloserBuf{buf})
	l.SetLevel(WARN)

	l.Infof("should not appear")
	require.Zero(t, buf.Len())

	l.Warnf("should appear")
	require.NotZero(t, buf.Len())
}

func TestNewDiscardNeverPanics(t *testing.T) {
	l := NewDiscard()
	l.Criticalf("anything")
	require.NoError(t, l.Close())
}

func TestAddWriterFansOut(t *testing.T) {
	a, b := &bytes.Buffer{}, &bytes.Buffer{}
	l := New(nopCloserBuf{a})
	l.AddWriter(nopCloserBuf{b})
	l.Infof("hello")
	require.NotZero(t, a.Len())
	require.NotZero(t, b.Len())
}

var _ io.WriteCloser = nopCloserBuf{}
