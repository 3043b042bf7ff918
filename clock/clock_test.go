package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestElapsedGrowsAndResetsToZero(t *testing.T) {
	c := New()
	time.Sleep(5 * time.Millisecond)
	require.Greater(t, c.Elapsed(), time.Duration(0))

	c.Reset()
	require.Less(t, c.Elapsed(), 5*time.Millisecond)
}

func TestSecondsMatchesElapsed(t *testing.T) {
	c := New()
	time.Sleep(5 * time.Millisecond)
	require.InDelta(t, c.Elapsed().Seconds(), c.Seconds(), 0.01)
}
