/*************************************************************************
 * Copyright 2024 ENSTA Bretagne Robotics. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package client implements Client (C5): the TCP connection state machine
// that drives the Codec from the socket. It composes a StatusListener for
// discovery and owns the reconnect/liveness policy; Driver (package driver)
// layers protocol policy on top by setting OnMessage/OnConnect.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/ENSTABretagneRobotics/oculus-driver/clock"
	"github.com/ENSTABretagneRobotics/oculus-driver/oculuslog"
	"github.com/ENSTABretagneRobotics/oculus-driver/statuslistener"
	"github.com/ENSTABretagneRobotics/oculus-driver/wire"
)

// State is the connection state machine's current state.
type State int

const (
	Initializing State = iota
	Attempting
	Connected
	Lost
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "Initializing"
	case Attempting:
		return "Attempting"
	case Connected:
		return "Connected"
	case Lost:
		return "Lost"
	}
	return "Unknown"
}

// Defaults per spec.md §9 Open Questions.
const (
	DefaultCheckerPeriod     = time.Second
	DefaultBackoffMin        = 100 * time.Millisecond
	DefaultBackoffMax        = 2 * time.Second
	DefaultDesyncRetryBudget = 1024
	DefaultDataPort          = 52100
)

// ErrProtocolDesync is returned internally (and logged) when the resync
// retry budget is exhausted without finding a valid header.
var ErrProtocolDesync = errors.New("client: protocol desync retry budget exhausted")

// Option configures a Client at construction.
type Option func(*Client)

func WithCheckerPeriod(d time.Duration) Option   { return func(c *Client) { c.checkerPeriod = d } }
func WithBackoff(min, max time.Duration) Option  { return func(c *Client) { c.backoffMin, c.backoffMax = min, max } }
func WithDesyncBudget(n int) Option              { return func(c *Client) { c.desyncBudget = n } }
func WithDataPort(port int) Option               { return func(c *Client) { c.dataPort = port } }
func WithLogger(l *oculuslog.Logger) Option      { return func(c *Client) { c.log = l } }

// Client is the TCP state machine. Construct with New, then Start. The
// exported hooks are how Driver layers protocol policy on top without this
// package knowing anything about ping configs.
type Client struct {
	log      *oculuslog.Logger
	status   *statuslistener.StatusListener
	liveness *clock.Clock

	dataPort      int
	checkerPeriod time.Duration
	backoffMin    time.Duration
	backoffMax    time.Duration
	desyncBudget  int

	// OnMessage is called for every fully parsed message, on the receive
	// goroutine, in wire order. It must not block.
	OnMessage func(wire.Message)
	// OnConnect is called once a TCP connection is established, before any
	// message is read.
	OnConnect func()
	// OnStateChange is called on every state transition.
	OnStateChange func(State)

	mu        sync.Mutex
	state     State
	conn      net.Conn
	remoteIP  net.IP
	sendMu    sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Client whose discovery listener binds statusAddr
// (typically "0.0.0.0:52102").
func New(statusAddr string, opts ...Option) *Client {
	c := &Client{
		liveness:      clock.New(),
		dataPort:      DefaultDataPort,
		checkerPeriod: DefaultCheckerPeriod,
		backoffMin:    DefaultBackoffMin,
		backoffMax:    DefaultBackoffMax,
		desyncBudget:  DefaultDesyncRetryBudget,
		state:         Initializing,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = oculuslog.NewDiscard()
	}
	c.status = statuslistener.New(statusAddr, c.log)
	return c
}

// Status exposes the composed StatusListener so Driver (and applications)
// can register additional status subscribers.
func (c *Client) Status() *statuslistener.StatusListener { return c.status }

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	if c.OnStateChange != nil {
		c.OnStateChange(s)
	}
}

// Start binds the status listener and, once the first status broadcast
// arrives, begins the connect/receive/liveness loop. Start returns once the
// listener is bound; connection establishment happens asynchronously.
func (c *Client) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	if err := c.status.Start(runCtx); err != nil {
		cancel()
		return err
	}

	discovered := make(chan wire.Status, 1)
	id := c.status.OnStatus(func(s wire.Status) {
		select {
		case discovered <- s:
		default:
		}
	})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		select {
		case status := <-discovered:
			c.status.RemoveOnStatus(id)
			c.remoteIP = status.IP()
			c.setState(Attempting)
			c.runConnection(runCtx)
		case <-runCtx.Done():
			c.status.RemoveOnStatus(id)
			return
		}
	}()

	c.wg.Add(1)
	go c.runChecker(runCtx)

	return nil
}

// Stop cancels the connect/receive/checker goroutines, closes the socket
// and the status listener, and waits for everything to exit.
func (c *Client) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.closeConn()
	err := c.status.Stop()
	c.wg.Wait()
	return err
}

func (c *Client) closeConn() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// runConnection is the outer connect-retry loop; it runs until ctx is done.
func (c *Client) runConnection(ctx context.Context) {
	backoff := c.backoffMin
	addr := fmt.Sprintf("%s:%d", c.remoteIP.String(), c.dataPort)
	for {
		if ctx.Err() != nil {
			return
		}
		dialer := net.Dialer{Timeout: 2 * time.Second}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warnf("connect to %s failed: %v", addr, err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff *= 2
			if backoff > c.backoffMax {
				backoff = c.backoffMax
			}
			continue
		}
		backoff = c.backoffMin
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.setState(Connected)
		c.liveness.Reset()
		c.log.Infof("connected to %s", addr)
		if c.OnConnect != nil {
			c.OnConnect()
		}

		c.receiveLoop(ctx, conn)

		c.closeConn()
		if ctx.Err() != nil {
			c.setState(Lost)
			return
		}
		c.setState(Lost)
		c.log.Warnf("connection to %s lost, reconnecting", addr)
		c.setState(Attempting)
	}
}

// receiveLoop implements the header/payload read cycle and resync, per
// spec.md §4.5's state transition table, returning when the connection
// fails or ctx is cancelled.
func (c *Client) receiveLoop(ctx context.Context, conn net.Conn) {
	header := make([]byte, wire.HeaderSize)
	budget := c.desyncBudget
	for {
		if ctx.Err() != nil {
			return
		}
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		h, err := wire.ValidateHeader(header)
		if err != nil {
			// Resync: drop one byte and retry until a valid header
			// reappears in the stream, or the retry budget runs out.
			if budget <= 0 {
				c.log.Errorf("%v, closing connection", ErrProtocolDesync)
				return
			}
			budget--
			copy(header, header[1:])
			if _, err := io.ReadFull(conn, header[wire.HeaderSize-1:]); err != nil {
				return
			}
			continue
		}
		budget = c.desyncBudget

		payload := make([]byte, h.PayloadSize)
		if h.PayloadSize > 0 {
			if _, err := io.ReadFull(conn, payload); err != nil {
				return
			}
		}
		msg := wire.NewMessage(h, payload, time.Now())
		c.liveness.Reset()
		if c.OnMessage != nil {
			c.OnMessage(msg)
		}
	}
}

// runChecker force-closes the connection when more than 3*checkerPeriod has
// elapsed since the last fully parsed message, driving a reconnect.
func (c *Client) runChecker(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.checkerPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.State() != Connected {
				continue
			}
			if c.liveness.Elapsed() > 3*c.checkerPeriod {
				c.log.Warnf("liveness checker: no message in %s, forcing reconnect", c.liveness.Elapsed())
				c.closeConn()
			}
		}
	}
}

// Send writes data to the socket under the send mutex; it never blocks the
// receive path. It returns an error if not connected, and (false, nil) if
// the write was short.
func (c *Client) Send(data []byte) (bool, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return false, errors.New("client: not connected")
	}
	n, err := conn.Write(data)
	if err != nil {
		return false, err
	}
	return n == len(data), nil
}
