/*************************************************************************
 * Copyright 2024 ENSTA Bretagne Robotics. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package driver implements Driver (C6): the protocol policy layered on
// top of Client — ping configuration, standby/resume, feedback matching,
// config-change detection, and typed callback fan-out.
package driver

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ENSTABretagneRobotics/oculus-driver/callback"
	"github.com/ENSTABretagneRobotics/oculus-driver/client"
	"github.com/ENSTABretagneRobotics/oculus-driver/oculuslog"
	"github.com/ENSTABretagneRobotics/oculus-driver/recorder"
	"github.com/ENSTABretagneRobotics/oculus-driver/statuslistener"
	"github.com/ENSTABretagneRobotics/oculus-driver/wire"
)

// ErrConfigUnverified is returned by RequestPingConfig when its retry
// budget is exhausted without a matching acknowledgment. Per spec.md's
// Open Question (c), this replaces the source's sentinel msg_id=0 return
// as the primary signal; the returned config still carries the sentinel in
// its Header.MsgID for callers that inspect it directly.
var ErrConfigUnverified = errors.New("driver: ping config unverified after retry budget exhausted")

const (
	// DefaultConfigRequestAttempts bounds request_ping_config's retry loop.
	DefaultConfigRequestAttempts = 100
	// DefaultBlockingTimeout bounds current_ping_config and each attempt of
	// request_ping_config.
	DefaultBlockingTimeout = 5 * time.Second
)

// Session identifies one Driver instance for logging/recording purposes.
// Supplements spec.md: the source has no notion of a session id. The id
// is generated once in New and returned by Session(); it is not written
// into the logger's output or into recordings.
type Session struct {
	ID uuid.UUID
}

// Option configures a Driver at construction.
type Option func(*Driver)

func WithLogger(l *oculuslog.Logger) Option { return func(d *Driver) { d.log = l } }
func WithDataPort(port int) Option          { return func(d *Driver) { d.clientOpts = append(d.clientOpts, client.WithDataPort(port)) } }
func WithCheckerPeriod(t time.Duration) Option {
	return func(d *Driver) { d.clientOpts = append(d.clientOpts, client.WithCheckerPeriod(t)) }
}
func WithBackoff(min, max time.Duration) Option {
	return func(d *Driver) { d.clientOpts = append(d.clientOpts, client.WithBackoff(min, max)) }
}
func WithBlockingTimeout(t time.Duration) Option { return func(d *Driver) { d.blockingTimeout = t } }

// Driver is the top-level API surface described in spec.md §6.
type Driver struct {
	log             *oculuslog.Logger
	client          *client.Client
	clientOpts      []client.Option
	blockingTimeout time.Duration
	session         Session

	mu                     sync.Mutex
	lastConfig             wire.PingConfig
	lastNonStandbyPingRate wire.PingRate

	msgReg          *callback.Registry[func(wire.Message)]
	pingReg         *callback.Registry[func(wire.PingView)]
	dummyReg        *callback.Registry[func(wire.Message)]
	configChangeReg *callback.Registry[func(prev, next wire.PingConfig)]

	rec        *recorder.Recorder
	recCbID    uint32
	recording  bool
	recMu      sync.Mutex
}

// New constructs a Driver whose discovery listener binds statusAddr
// (typically "0.0.0.0:52102").
func New(statusAddr string, opts ...Option) *Driver {
	d := &Driver{
		lastConfig:      wire.DefaultPingConfig(),
		blockingTimeout: DefaultBlockingTimeout,
		session:         Session{ID: uuid.New()},
		msgReg:          callback.New[func(wire.Message)](),
		pingReg:         callback.New[func(wire.PingView)](),
		dummyReg:        callback.New[func(wire.Message)](),
		configChangeReg: callback.New[func(prev, next wire.PingConfig)](),
	}
	d.lastNonStandbyPingRate = d.lastConfig.PingRate
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = oculuslog.NewDiscard()
	}
	d.clientOpts = append(d.clientOpts, client.WithLogger(d.log))
	d.client = client.New(statusAddr, d.clientOpts...)
	d.client.OnMessage = d.handleMessage
	d.client.OnConnect = d.onConnect
	return d
}

// Session returns this Driver's session identity.
func (d *Driver) Session() Session { return d.session }

// Status exposes the composed StatusListener (via Client).
func (d *Driver) Status() *statuslistener.StatusListener { return d.client.Status() }

// State returns the underlying Client's connection state.
func (d *Driver) State() client.State { return d.client.State() }

// Start begins discovery and connection management.
func (d *Driver) Start(ctx context.Context) error {
	return d.client.Start(ctx)
}

// Stop tears down the connection, discovery listener, and (if open) the
// recorder.
func (d *Driver) Stop() error {
	err := d.client.Stop()
	d.RecorderClose()
	return err
}

func (d *Driver) onConnect() {
	d.mu.Lock()
	cfg := d.lastConfig
	d.mu.Unlock()
	d.SendPingConfig(cfg)
}

// SendPingConfig stamps cfg's header for transmission and writes it as a
// SIMPLE_FIRE message. Because the firmware never echoes ping_rate, the
// driver updates its notion of last_config.PingRate immediately rather than
// waiting for feedback; similarly it remembers the last non-Standby rate so
// Resume can restore it later.
func (d *Driver) SendPingConfig(cfg wire.PingConfig) bool {
	cfg.NetworkSpeed = 0xff
	data := cfg.Encode()

	d.mu.Lock()
	d.lastConfig.PingRate = cfg.PingRate
	if cfg.PingRate != wire.PingRateStandby {
		d.lastNonStandbyPingRate = cfg.PingRate
	}
	d.mu.Unlock()

	ok, err := d.client.Send(data)
	if err != nil {
		d.log.Warnf("send_ping_config: %v", err)
		return false
	}
	return ok
}

// CurrentPingConfig blocks until the next message arrives and returns
// last_config stamped with that message's header, or ErrTimeoutReached if
// none arrives within the blocking timeout.
func (d *Driver) CurrentPingConfig() (wire.PingConfig, error) {
	return callback.OnNext(d.msgReg, func(result *wire.PingConfig, done chan<- struct{}) func(wire.Message) {
		return func(m wire.Message) {
			d.mu.Lock()
			cfg := d.lastConfig
			d.mu.Unlock()
			cfg.Header = m.Header
			*result = cfg
			select {
			case done <- struct{}{}:
			default:
			}
		}
	}, d.blockingTimeout)
}

// RequestPingConfig forces per-row gains on, then sends req and waits for a
// matching acknowledgment up to DefaultConfigRequestAttempts times. It
// returns ErrConfigUnverified if none of the attempts are acknowledged.
func (d *Driver) RequestPingConfig(req wire.PingConfig) (wire.PingConfig, error) {
	req.Flags |= wire.FlagSendGains
	for attempt := 0; attempt < DefaultConfigRequestAttempts; attempt++ {
		d.SendPingConfig(req)
		msg, err := callback.OnNext(d.msgReg, func(result *wire.Message, done chan<- struct{}) func(wire.Message) {
			return func(m wire.Message) {
				*result = m
				select {
				case done <- struct{}{}:
				default:
				}
			}
		}, d.blockingTimeout)
		if err != nil {
			continue
		}
		feedback, ok := feedbackConfig(msg)
		if !ok {
			continue
		}
		if wire.ConfigEquivalent(req, msg.Header, feedback) {
			feedback.Header = msg.Header
			return feedback, nil
		}
	}
	unverified := req
	unverified.Header.MsgID = wire.UnverifiedMsgID
	return unverified, ErrConfigUnverified
}

// feedbackConfig extracts the PingConfig a message carries, if any: a ping
// result's embedded fire command, or a zero PingConfig for DUMMY (a
// Standby request's acknowledgment carries no fire command of its own;
// wire.ConfigEquivalent checks IsDummy(m.Header) directly in that case, so
// the zero value is never inspected). Anything else carries no feedback.
func feedbackConfig(m wire.Message) (wire.PingConfig, bool) {
	if wire.IsDummy(m.Header) {
		return wire.PingConfig{}, true
	}
	if !wire.IsPing(m.Header) {
		return wire.PingConfig{}, false
	}
	view, ok := wire.ParsePing(m.Header, m.Payload())
	if !ok {
		return wire.PingConfig{}, false
	}
	return view.FireCommand(), true
}

// Standby sends the current configuration with PingRate set to Standby.
func (d *Driver) Standby() bool {
	d.mu.Lock()
	cfg := d.lastConfig
	d.mu.Unlock()
	cfg.PingRate = wire.PingRateStandby
	return d.SendPingConfig(cfg)
}

// Resume restores the last non-Standby ping rate and sends it.
func (d *Driver) Resume() bool {
	d.mu.Lock()
	cfg := d.lastConfig
	rate := d.lastNonStandbyPingRate
	d.mu.Unlock()
	cfg.PingRate = rate
	return d.SendPingConfig(cfg)
}

// handleMessage is Client's OnMessage hook: it applies the firmware quirks
// documented in spec.md §9 (ping_rate never echoed, mode-2 gain remap,
// standby acknowledged by DUMMY), detects config changes, and fans the
// message out to subscribers in the order spec.md §5 requires:
// config-change, then message, then ping/dummy.
func (d *Driver) handleMessage(msg wire.Message) {
	d.mu.Lock()
	prev := d.lastConfig
	d.mu.Unlock()

	next := prev
	switch {
	case wire.IsPing(msg.Header):
		if view, ok := wire.ParsePing(msg.Header, msg.Payload()); ok {
			next = view.FireCommand()
			next.PingRate = prev.PingRate
			if next.MasterMode == wire.MasterModeHighFrequency {
				next.GainPercent = (next.GainPercent - 40) * 100 / 60
			}
		}
	case wire.IsDummy(msg.Header):
		next.PingRate = wire.PingRateStandby
	}

	if wire.ConfigChanged(prev, next) {
		d.configChangeReg.Call(func(fn func(prev, next wire.PingConfig)) { fn(prev, next) })
	}

	d.mu.Lock()
	d.lastConfig = next
	d.mu.Unlock()

	d.msgReg.Call(func(fn func(wire.Message)) { fn(msg) })

	if wire.IsPing(msg.Header) {
		if view, ok := wire.ParsePing(msg.Header, msg.Payload()); ok {
			d.pingReg.Call(func(fn func(wire.PingView)) { fn(view) })
		}
	} else if wire.IsDummy(msg.Header) {
		d.dummyReg.Call(func(fn func(wire.Message)) { fn(msg) })
	}
}

// AddMessageCallback registers a permanent subscriber called for every
// parsed message, regardless of type.
func (d *Driver) AddMessageCallback(fn func(wire.Message)) uint32 { return d.msgReg.Add(fn) }

// RemoveMessageCallback removes a previously registered message subscriber.
func (d *Driver) RemoveMessageCallback(id uint32) bool { return d.msgReg.Remove(id) }

// OnNextMessage blocks for one message.
func (d *Driver) OnNextMessage(timeout time.Duration) (wire.Message, error) {
	return callback.OnNext(d.msgReg, func(result *wire.Message, done chan<- struct{}) func(wire.Message) {
		return func(m wire.Message) {
			*result = m
			select {
			case done <- struct{}{}:
			default:
			}
		}
	}, timeout)
}

// AddPingCallback registers a permanent subscriber called for every ping result.
func (d *Driver) AddPingCallback(fn func(wire.PingView)) uint32 { return d.pingReg.Add(fn) }

// RemovePingCallback removes a previously registered ping subscriber.
func (d *Driver) RemovePingCallback(id uint32) bool { return d.pingReg.Remove(id) }

// OnNextPing blocks for one ping result.
func (d *Driver) OnNextPing(timeout time.Duration) (wire.PingView, error) {
	return callback.OnNext(d.pingReg, func(result *wire.PingView, done chan<- struct{}) func(wire.PingView) {
		return func(v wire.PingView) {
			*result = v
			select {
			case done <- struct{}{}:
			default:
			}
		}
	}, timeout)
}

// AddDummyCallback registers a permanent subscriber called for every DUMMY message.
func (d *Driver) AddDummyCallback(fn func(wire.Message)) uint32 { return d.dummyReg.Add(fn) }

// RemoveDummyCallback removes a previously registered dummy subscriber.
func (d *Driver) RemoveDummyCallback(id uint32) bool { return d.dummyReg.Remove(id) }

// AddConfigChangeCallback registers a permanent subscriber called whenever
// the driver observes a material change in configuration.
func (d *Driver) AddConfigChangeCallback(fn func(prev, next wire.PingConfig)) uint32 {
	return d.configChangeReg.Add(fn)
}

// RemoveConfigChangeCallback removes a previously registered subscriber.
func (d *Driver) RemoveConfigChangeCallback(id uint32) bool { return d.configChangeReg.Remove(id) }

// RecorderOpen opens path for recording and registers an internal message
// subscriber that writes every subsequent message to it (C7, driven as a
// message callback per spec.md §2's control-flow diagram).
func (d *Driver) RecorderOpen(path string, overwrite bool) error {
	d.recMu.Lock()
	defer d.recMu.Unlock()
	if d.recording {
		return errors.New("driver: already recording")
	}
	r, err := recorder.Open(path, overwrite)
	if err != nil {
		return err
	}
	d.rec = r
	d.recCbID = d.msgReg.Add(func(m wire.Message) {
		if err := d.rec.Write(m); err != nil {
			d.log.Errorf("recorder write failed: %v", err)
		}
	})
	d.recording = true
	return nil
}

// RecorderClose stops recording and closes the underlying file, if open.
func (d *Driver) RecorderClose() error {
	d.recMu.Lock()
	defer d.recMu.Unlock()
	if !d.recording {
		return nil
	}
	d.msgReg.Remove(d.recCbID)
	err := d.rec.Close()
	d.rec = nil
	d.recording = false
	return err
}

// IsRecording reports whether a recorder is currently open.
func (d *Driver) IsRecording() bool {
	d.recMu.Lock()
	defer d.recMu.Unlock()
	return d.recording
}
