/*************************************************************************
 * Copyright 2024 ENSTA Bretagne Robotics. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package reactor implements Reactor (C9): the top-level lifecycle that
// hosts StatusListener, Client and Driver for the duration of a process.
// The source models this as a single-threaded cooperative event loop; here
// it is a goroutine tree coordinated by golang.org/x/sync/errgroup and
// context cancellation, the idiomatic Go equivalent (grounded on the same
// pattern ingest.IngestMuxer uses to track one goroutine per running
// component against a shared die/up signal).
package reactor

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ENSTABretagneRobotics/oculus-driver/driver"
)

// Reactor owns a Driver's Start/Stop lifecycle and exposes Run for
// callers (typically cmd/oculus-record) that want to block until the
// surrounding context is cancelled.
type Reactor struct {
	d *driver.Driver

	mu     sync.Mutex
	cancel context.CancelFunc
	eg     *errgroup.Group
	done   bool
}

// New wraps d. Ownership of d's lifecycle passes to the Reactor: callers
// should use Start/Stop (or Run) instead of calling d.Start/d.Stop
// directly.
func New(d *driver.Driver) *Reactor {
	return &Reactor{d: d}
}

// Start launches the Driver under a cancellable context derived from ctx
// and returns immediately; the Driver's own goroutines continue running
// until Stop is called or ctx is cancelled.
func (r *Reactor) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	runCtx, cancel := context.WithCancel(ctx)
	eg, egCtx := errgroup.WithContext(runCtx)
	r.cancel = cancel
	r.eg = eg

	if err := r.d.Start(egCtx); err != nil {
		cancel()
		return err
	}
	eg.Go(func() error {
		<-egCtx.Done()
		return nil
	})
	return nil
}

// Run starts the Driver and blocks until ctx is cancelled, then stops it.
func (r *Reactor) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return r.Stop()
}

// Stop cancels the reactor's context, joins its goroutine tree, and stops
// the Driver. Safe to call multiple times.
func (r *Reactor) Stop() error {
	r.mu.Lock()
	cancel := r.cancel
	eg := r.eg
	already := r.done
	r.done = true
	r.mu.Unlock()
	if already {
		return nil
	}
	if cancel != nil {
		cancel()
	}
	if eg != nil {
		_ = eg.Wait()
	}
	return r.d.Stop()
}
