/*************************************************************************
 * Copyright 2024 ENSTA Bretagne Robotics. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package statuslistener implements StatusListener (C2): a passive UDP
// receiver for sonar status broadcasts that drives connection discovery
// and liveness tracking.
package statuslistener

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/ENSTABretagneRobotics/oculus-driver/callback"
	"github.com/ENSTABretagneRobotics/oculus-driver/clock"
	"github.com/ENSTABretagneRobotics/oculus-driver/oculuslog"
	"github.com/ENSTABretagneRobotics/oculus-driver/wire"
)

// DefaultPort is the well-known port sonars broadcast status on.
const DefaultPort = 52102

// Health summarizes the listener's recent receive history, supplementing
// spec.md's narration of C2 with the up/down tracking
// original_source/src/StatusListener.cpp keeps internally.
type Health struct {
	LastSeen        time.Time
	ConsecutiveGood int
	ConsecutiveBad  int
}

// StatusListener binds a UDP socket and fans out well-formed status
// broadcasts to subscribers, resetting its Clock on every good receive.
type StatusListener struct {
	log   *oculuslog.Logger
	clock *clock.Clock
	reg   *callback.Registry[func(wire.Status)]

	addr string

	mu     sync.Mutex
	conn   *net.UDPConn
	cancel context.CancelFunc
	done   chan struct{}
	health Health
}

// New constructs a listener bound to addr (host:port, typically
// "0.0.0.0:52102") when Start is called. logger may be nil.
func New(addr string, logger *oculuslog.Logger) *StatusListener {
	if logger == nil {
		logger = oculuslog.NewDiscard()
	}
	return &StatusListener{
		log:   logger,
		clock: clock.New(),
		reg:   callback.New[func(wire.Status)](),
		addr:  addr,
	}
}

// Start binds the socket and launches the receive loop. It returns once
// the socket is bound; the loop itself runs until Stop is called or ctx is
// done.
func (l *StatusListener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return errors.New("statuslistener: already started")
	}
	lc := net.ListenConfig{Control: reuseAddrControl}
	pc, err := lc.ListenPacket(ctx, "udp4", l.addr)
	if err != nil {
		return err
	}
	conn := pc.(*net.UDPConn)
	l.conn = conn
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.run(runCtx, conn)
	return nil
}

// Stop closes the socket and waits for the receive loop to exit.
func (l *StatusListener) Stop() error {
	l.mu.Lock()
	conn := l.conn
	cancel := l.cancel
	done := l.done
	l.mu.Unlock()
	if conn == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}
	err := conn.Close()
	if done != nil {
		<-done
	}
	l.mu.Lock()
	l.conn = nil
	l.mu.Unlock()
	return err
}

func (l *StatusListener) run(ctx context.Context, conn *net.UDPConn) {
	defer close(l.done)
	buf := make([]byte, wire.StatusSize+64) // oversized; we validate exact length below
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.log.Warnf("status listener read error: %v", err)
			l.recordBad()
			continue
		}
		if n != wire.StatusSize {
			l.log.Warnf("status listener got %d bytes, want %d", n, wire.StatusSize)
			l.recordBad()
			continue
		}
		status, ok := wire.ParseStatus(buf[:n])
		if !ok {
			l.recordBad()
			continue
		}
		l.clock.Reset()
		l.recordGood()
		l.reg.Call(func(fn func(wire.Status)) { fn(status) })
	}
}

func (l *StatusListener) recordGood() {
	l.mu.Lock()
	l.health.LastSeen = time.Now()
	l.health.ConsecutiveGood++
	l.health.ConsecutiveBad = 0
	l.mu.Unlock()
}

func (l *StatusListener) recordBad() {
	l.mu.Lock()
	l.health.ConsecutiveBad++
	l.health.ConsecutiveGood = 0
	l.mu.Unlock()
}

// Addr returns the bound socket's local address, or nil if not started.
// Useful when binding to port 0 (e.g. in tests) and needing to discover
// the port actually chosen.
func (l *StatusListener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Health returns a snapshot of the listener's recent receive history.
func (l *StatusListener) Health() Health {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.health
}

// Clock exposes the liveness clock so callers composing a StatusListener
// into a larger state machine (client.Client) can watch it directly.
func (l *StatusListener) Clock() *clock.Clock { return l.clock }

// OnStatus registers a permanent status subscriber and returns its id.
func (l *StatusListener) OnStatus(fn func(wire.Status)) uint32 {
	return l.reg.Add(fn)
}

// RemoveOnStatus removes a previously registered subscriber.
func (l *StatusListener) RemoveOnStatus(id uint32) bool {
	return l.reg.Remove(id)
}

// OnNextStatus blocks until exactly one more status broadcast is received,
// or timeout elapses.
func (l *StatusListener) OnNextStatus(timeout time.Duration) (wire.Status, error) {
	return callback.OnNext(l.reg, func(result *wire.Status, done chan<- struct{}) func(wire.Status) {
		return func(s wire.Status) {
			*result = s
			select {
			case done <- struct{}{}:
			default:
			}
		}
	}, timeout)
}
