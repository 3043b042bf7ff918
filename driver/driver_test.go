package driver

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ENSTABretagneRobotics/oculus-driver/wire"
)

func dummyMessage() wire.Message {
	return wire.NewMessage(wire.Header{Magic: wire.Magic, MsgID: wire.MsgDummy}, nil, time.Now())
}

// buildV1PingMessage lays out a v1 ping result payload (fire command +
// scalar metadata + geometry + bearing table + image) carrying fire as its
// embedded fire command, with no per-row gains, mirroring the layout
// wire.ParsePing expects (see wire/ping_test.go's buildMetaCommon for the
// same construction against the package's own unexported offsets).
func buildV1PingMessage(fire wire.PingConfig) wire.Message {
	const nRanges, nBeams = uint16(2), uint16(3)

	fireBytes := fire.Encode()[wire.HeaderSize:]
	metaSize := len(fireBytes) + 4 + 4 + 8*5 + 2 + 2 + 4 + 4 + 1 + 3 // +3 reserved, per wire's metaV1Size
	meta := make([]byte, metaSize)
	copy(meta, fireBytes)

	tail := len(fireBytes) + 4 + 4 + 8*5
	imageSize := uint32(nRanges) * uint32(nBeams) // sampleSize=1, no gain column
	imageOffset := uint32(metaSize) + 2*uint32(nBeams)
	binary.LittleEndian.PutUint16(meta[tail:tail+2], nRanges)
	binary.LittleEndian.PutUint16(meta[tail+2:tail+4], nBeams)
	binary.LittleEndian.PutUint32(meta[tail+4:tail+8], imageOffset)
	binary.LittleEndian.PutUint32(meta[tail+8:tail+12], imageSize)
	meta[tail+12] = 0 // dataSizeCode 0 -> 1 byte/sample

	payload := make([]byte, int(imageOffset)+int(imageSize))
	copy(payload, meta)

	h := wire.Header{Magic: wire.Magic, MsgID: wire.MsgPingResult, MsgVersion: 1}
	return wire.NewMessage(h, payload, time.Now())
}

func TestSendPingConfigUpdatesBookkeepingEvenWhenDisconnected(t *testing.T) {
	d := New("127.0.0.1:0")

	cfg := wire.DefaultPingConfig()
	cfg.PingRate = 15
	ok := d.SendPingConfig(cfg)
	require.False(t, ok) // not connected, send fails

	d.mu.Lock()
	got := d.lastConfig.PingRate
	nonStandby := d.lastNonStandbyPingRate
	d.mu.Unlock()
	require.EqualValues(t, 15, got)
	require.EqualValues(t, 15, nonStandby)
}

func TestStandbyAndResume(t *testing.T) {
	d := New("127.0.0.1:0")

	cfg := wire.DefaultPingConfig()
	cfg.PingRate = 20
	d.SendPingConfig(cfg)

	d.Standby()
	d.mu.Lock()
	require.Equal(t, wire.PingRateStandby, d.lastConfig.PingRate)
	d.mu.Unlock()

	d.Resume()
	d.mu.Lock()
	require.EqualValues(t, 20, d.lastConfig.PingRate)
	d.mu.Unlock()
}

func TestCurrentPingConfigTimesOutWithoutMessage(t *testing.T) {
	d := New("127.0.0.1:0", WithBlockingTimeout(50*time.Millisecond))
	_, err := d.CurrentPingConfig()
	require.Error(t, err)
}

func TestCurrentPingConfigReturnsLastConfigStampedWithHeader(t *testing.T) {
	d := New("127.0.0.1:0", WithBlockingTimeout(time.Second))

	go func() {
		time.Sleep(10 * time.Millisecond)
		d.handleMessage(dummyMessage())
	}()

	cfg, err := d.CurrentPingConfig()
	require.NoError(t, err)
	require.Equal(t, wire.MsgDummy, cfg.Header.MsgID)
}

func TestRequestPingConfigExhaustsRetryBudgetWithoutPingFeedback(t *testing.T) {
	d := New("127.0.0.1:0", WithBlockingTimeout(5*time.Millisecond))

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(2 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				d.handleMessage(dummyMessage())
			}
		}
	}()
	defer close(stop)

	_, err := d.RequestPingConfig(wire.DefaultPingConfig())
	require.ErrorIs(t, err, ErrConfigUnverified)
}

func TestRequestPingConfigStandbySucceedsWithDummyFeedback(t *testing.T) {
	d := New("127.0.0.1:0", WithBlockingTimeout(50*time.Millisecond))

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(2 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				d.handleMessage(dummyMessage())
			}
		}
	}()
	defer close(stop)

	req := wire.DefaultPingConfig()
	req.PingRate = wire.PingRateStandby
	got, err := d.RequestPingConfig(req)
	require.NoError(t, err)
	require.NotEqual(t, wire.UnverifiedMsgID, got.Header.MsgID)
}

func TestHandleMessageDummySetsStandbyAndFiresCallbacks(t *testing.T) {
	d := New("127.0.0.1:0")

	cfg := wire.DefaultPingConfig()
	cfg.PingRate = 30
	d.SendPingConfig(cfg)

	dummyFired := make(chan wire.Message, 1)
	d.AddDummyCallback(func(m wire.Message) { dummyFired <- m })

	configChanges := make(chan struct{ prev, next wire.PingConfig }, 1)
	d.AddConfigChangeCallback(func(prev, next wire.PingConfig) {
		configChanges <- struct{ prev, next wire.PingConfig }{prev, next}
	})

	d.handleMessage(dummyMessage())

	select {
	case <-dummyFired:
	case <-time.After(time.Second):
		t.Fatal("dummy callback never fired")
	}

	select {
	case change := <-configChanges:
		require.EqualValues(t, 30, change.prev.PingRate)
		require.Equal(t, wire.PingRateStandby, change.next.PingRate)
	case <-time.After(time.Second):
		t.Fatal("config-change callback never fired")
	}

	d.mu.Lock()
	require.Equal(t, wire.PingRateStandby, d.lastConfig.PingRate)
	d.mu.Unlock()
}

func TestHandleMessagePingAppliesModeTwoGainRescaleWithoutSpuriousConfigChange(t *testing.T) {
	d := New("127.0.0.1:0")

	fire := wire.DefaultPingConfig()
	fire.MasterMode = wire.MasterModeHighFrequency // 2
	fire.GainPercent = 70

	d.mu.Lock()
	d.lastConfig = fire
	d.lastConfig.GainPercent = 50 // the rescaled value a prior ping already settled on
	d.mu.Unlock()

	configChanged := false
	d.AddConfigChangeCallback(func(prev, next wire.PingConfig) { configChanged = true })

	pingFired := make(chan wire.PingView, 1)
	d.AddPingCallback(func(v wire.PingView) { pingFired <- v })

	d.handleMessage(buildV1PingMessage(fire))

	select {
	case <-pingFired:
	case <-time.After(time.Second):
		t.Fatal("ping callback never fired")
	}

	d.mu.Lock()
	got := d.lastConfig.GainPercent
	d.mu.Unlock()
	require.InDelta(t, 50, got, 1e-9)
	require.False(t, configChanged, "rescaled gain should match prior lastConfig, no config-change expected")
}

func TestRecorderOpenWritesMessagesAndClose(t *testing.T) {
	d := New("127.0.0.1:0")
	path := filepath.Join(t.TempDir(), "session.oculus")

	require.NoError(t, d.RecorderOpen(path, false))
	require.True(t, d.IsRecording())

	d.handleMessage(dummyMessage())
	d.handleMessage(dummyMessage())

	require.NoError(t, d.RecorderClose())
	require.False(t, d.IsRecording())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestRecorderOpenTwiceFails(t *testing.T) {
	d := New("127.0.0.1:0")
	path := filepath.Join(t.TempDir(), "session.oculus")
	require.NoError(t, d.RecorderOpen(path, false))
	defer d.RecorderClose()

	err := d.RecorderOpen(path, false)
	require.Error(t, err)
}
