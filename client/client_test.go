package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ENSTABretagneRobotics/oculus-driver/wire"
)

func statusBroadcast(t *testing.T, statusAddr net.Addr, dataPort int) {
	t.Helper()
	buf := make([]byte, wire.StatusSize)
	wire.PutHeader(buf, wire.Header{Magic: wire.Magic})
	copy(buf[wire.HeaderSize+8:wire.HeaderSize+12], []byte{127, 0, 0, 1})

	conn, err := net.Dial("udp4", statusAddr.String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write(buf)
	require.NoError(t, err)
}

func TestClientConnectsAndReceivesMessage(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	dataPort := ln.Addr().(*net.TCPAddr).Port

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	c := New("127.0.0.1:0", WithDataPort(dataPort), WithCheckerPeriod(50*time.Millisecond))

	received := make(chan wire.Message, 1)
	c.OnMessage = func(m wire.Message) { received <- m }
	stateChanges := make(chan State, 8)
	c.OnStateChange = func(s State) { stateChanges <- s }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))
	defer c.Stop()

	statusBroadcast(t, c.Status().Addr(), dataPort)

	var conn net.Conn
	select {
	case conn = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("sonar-side listener never accepted a connection")
	}
	defer conn.Close()

	require.Eventually(t, func() bool { return c.State() == Connected }, 2*time.Second, 10*time.Millisecond)

	msg := wire.NewMessage(wire.Header{Magic: wire.Magic, MsgID: wire.MsgDummy}, nil, time.Now())
	_, err = conn.Write(msg.Data)
	require.NoError(t, err)

	select {
	case got := <-received:
		require.True(t, wire.IsDummy(got.Header))
	case <-time.After(2 * time.Second):
		t.Fatal("OnMessage was never called")
	}
}

// TestClientResyncsAfterStrayByte exercises S4 "Resynchronization on
// desync": a stray byte ahead of a valid header must not be delivered as a
// message, and the real message that follows it must still arrive intact.
func TestClientResyncsAfterStrayByte(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	dataPort := ln.Addr().(*net.TCPAddr).Port

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	c := New("127.0.0.1:0", WithDataPort(dataPort), WithCheckerPeriod(50*time.Millisecond))

	received := make(chan wire.Message, 1)
	c.OnMessage = func(m wire.Message) { received <- m }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))
	defer c.Stop()

	statusBroadcast(t, c.Status().Addr(), dataPort)

	var conn net.Conn
	select {
	case conn = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("sonar-side listener never accepted a connection")
	}
	defer conn.Close()

	require.Eventually(t, func() bool { return c.State() == Connected }, 2*time.Second, 10*time.Millisecond)

	msg := wire.NewMessage(wire.Header{Magic: wire.Magic, MsgID: wire.MsgDummy}, nil, time.Now())
	stray := append([]byte{0xAB}, msg.Data...)
	_, err = conn.Write(stray)
	require.NoError(t, err)

	select {
	case got := <-received:
		require.True(t, wire.IsDummy(got.Header))
	case <-time.After(2 * time.Second):
		t.Fatal("OnMessage was never called after resync")
	}
}

// TestClientLivenessCheckerForcesReconnectOnStaleConnection exercises S6
// "Liveness watchdog": once connected, if no message arrives within
// 3*checkerPeriod the client must force-close the stale connection and
// reconnect.
func TestClientLivenessCheckerForcesReconnectOnStaleConnection(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	dataPort := ln.Addr().(*net.TCPAddr).Port

	accepted := make(chan net.Conn, 2)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			accepted <- conn
		}
	}()

	c := New("127.0.0.1:0", WithDataPort(dataPort), WithCheckerPeriod(20*time.Millisecond))

	stateChanges := make(chan State, 16)
	c.OnStateChange = func(s State) { stateChanges <- s }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))
	defer c.Stop()

	statusBroadcast(t, c.Status().Addr(), dataPort)

	var first net.Conn
	select {
	case first = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("sonar-side listener never accepted the first connection")
	}
	defer first.Close()

	require.Eventually(t, func() bool { return c.State() == Connected }, 2*time.Second, 10*time.Millisecond)

	// Feed nothing past 3*checkerPeriod: the liveness checker must force a
	// reconnect, which shows up as a Lost transition followed by a second
	// accepted connection.
	var sawLost bool
	deadline := time.After(2 * time.Second)
	for !sawLost {
		select {
		case s := <-stateChanges:
			if s == Lost {
				sawLost = true
			}
		case <-deadline:
			t.Fatal("liveness checker never forced a Lost transition")
		}
	}

	select {
	case second := <-accepted:
		defer second.Close()
	case <-time.After(2 * time.Second):
		t.Fatal("client never reconnected after liveness-forced close")
	}
}

func TestSendFailsWhenNotConnected(t *testing.T) {
	c := New("127.0.0.1:0", WithDataPort(1))
	ok, err := c.Send([]byte("x"))
	require.Error(t, err)
	require.False(t, ok)
}

func TestStateString(t *testing.T) {
	require.Equal(t, "Initializing", Initializing.String())
	require.Equal(t, "Attempting", Attempting.String())
	require.Equal(t, "Connected", Connected.String())
	require.Equal(t, "Lost", Lost.String())
}
