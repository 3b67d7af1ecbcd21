// Copyright (c) 2026 Keymaster Team
// keyps - authorized_keys synchronization agent
// This source code is licensed under the MIT license found in the LICENSE file.

// Package daemon drives periodic reconciliation and the shutdown cleanup.
//
// A Daemon runs two goroutines. The ticker sends Refresh on the control
// channel once at start and then after every interval. The worker is the
// only goroutine that touches the target: it takes events off the channel
// one at a time, so cycles never overlap, and on Quit it strips the managed
// block and exits. Events sent while a cycle runs wait their turn; nothing
// cancels a cycle halfway.
package daemon // import "github.com/toeirei/keyps/internal/daemon"

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"

	"github.com/toeirei/keyps/internal/logging"
	"github.com/toeirei/keyps/internal/reconcile"
)

// Event is a request on the control channel.
type Event int

const (
	Refresh Event = iota
	Reload
	Quit
)

func (e Event) String() string {
	switch e {
	case Refresh:
		return "refresh"
	case Reload:
		return "reload"
	case Quit:
		return "quit"
	default:
		return "unknown"
	}
}

// State is the lifecycle position of a Daemon. It only moves forward.
type State int32

const (
	Running State = iota
	Stopping
	Terminated
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Reconciler is what the worker drives. *reconcile.Service implements it.
type Reconciler interface {
	Refresh(ctx context.Context) reconcile.Outcome
	Cleanup(ctx context.Context) reconcile.Outcome
}

// DefaultInterval is used when Config.Interval is not positive.
const DefaultInterval = 10 * time.Second

// Config wires a Daemon.
type Config struct {
	Reconciler Reconciler
	Interval   time.Duration
	// Clock defaults to clock.WallClock.
	Clock clock.Clock
	// OnCycle, when set, receives every outcome on the worker goroutine.
	OnCycle func(reconcile.Outcome)
}

// Daemon owns the worker and ticker goroutines.
type Daemon struct {
	cfg    Config
	events chan Event
	done   chan struct{}
	state  atomic.Int32

	stopOnce sync.Once
}

// Start launches the worker and ticker and returns immediately. The first
// refresh is queued right away.
func Start(cfg Config) *Daemon {
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}

	d := &Daemon{
		cfg:    cfg,
		events: make(chan Event),
		done:   make(chan struct{}),
	}
	d.state.Store(int32(Running))

	go d.work()
	go d.tick()
	return d
}

// State reports the current lifecycle state.
func (d *Daemon) State() State {
	return State(d.state.Load())
}

// Done is closed once the worker has exited.
func (d *Daemon) Done() <-chan struct{} {
	return d.done
}

// Reload forwards a reload request. It is accepted and logged; no
// configuration is reread.
func (d *Daemon) Reload() {
	d.send(Reload)
}

// Stop asks the worker to quit and blocks until it has removed the
// managed block and exited. Safe to call more than once.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() {
		d.send(Quit)
	})
	<-d.done
}

// send enqueues e unless the worker is already gone.
func (d *Daemon) send(e Event) bool {
	select {
	case d.events <- e:
		return true
	case <-d.done:
		return false
	}
}

func (d *Daemon) tick() {
	for {
		if !d.send(Refresh) {
			return
		}
		select {
		case <-d.cfg.Clock.After(d.cfg.Interval):
		case <-d.done:
			return
		}
	}
}

func (d *Daemon) work() {
	defer close(d.done)
	defer d.state.Store(int32(Terminated))

	ctx := context.Background()
	for e := range d.events {
		switch e {
		case Refresh:
			d.report(d.cfg.Reconciler.Refresh(ctx))
		case Reload:
			logging.Infof("reload requested; configuration reload is not supported, continuing every %s with current settings", d.cfg.Interval)
		case Quit:
			d.state.Store(int32(Stopping))
			logging.L.Debug("stopping, removing managed block")
			d.report(d.cfg.Reconciler.Cleanup(ctx))
			return
		default:
			logging.Debugf("ignoring unknown event %d", int(e))
		}
	}
}

func (d *Daemon) report(o reconcile.Outcome) {
	if d.cfg.OnCycle != nil {
		d.cfg.OnCycle(o)
	}
}
