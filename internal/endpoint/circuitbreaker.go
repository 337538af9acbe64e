// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// This file implements the per-endpoint circuit breaker of spec.md 4.C.
// The mutex-guarded FSM and rolling-window streak tracking are grounded
// on brennhill-gasoline-mcp-ai-devtools/internal/capture/circuit_breaker.go,
// generalized from a two-state rate limiter to the three-state
// closed/open/half-open machine the spec calls for.
package endpoint

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrCircuitOpen is returned by Pool.Acquire when the breaker is open or
// the half-open probe budget is exhausted.
var ErrCircuitOpen = errors.New("endpoint: circuit open")

// BreakerState is one of the three circuit breaker states.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes the trip and recovery thresholds.
type BreakerConfig struct {
	FailureThreshold     int           // consecutive failures to trip; default 5
	FailureRateThreshold float64       // default 0.5
	MinRequestWindow     int           // minimum samples before rate-tripping; default 20
	OpenTimeout          time.Duration // default 60s
	MaxHalfOpenRequests  int           // default 3
	MinProbeInterval     time.Duration // optional extra pacing between half-open probes; 0 disables
}

func (c *BreakerConfig) setDefaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.FailureRateThreshold <= 0 {
		c.FailureRateThreshold = 0.5
	}
	if c.MinRequestWindow <= 0 {
		c.MinRequestWindow = 20
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 60 * time.Second
	}
	if c.MaxHalfOpenRequests <= 0 {
		c.MaxHalfOpenRequests = 3
	}
}

// CircuitBreaker is a per-endpoint failure gate. Every exported method is
// safe for concurrent use.
type CircuitBreaker struct {
	mu  sync.Mutex
	cfg BreakerConfig

	state             BreakerState
	openedAt          time.Time
	consecFails       int
	windowOK          int
	windowFail        int
	halfOpenUsed      int
	halfOpenSuccesses int

	// probeLimiter additionally paces half-open probe admission when
	// MinProbeInterval is configured, on top of the MaxHalfOpenRequests
	// budget — bursty retries from a caller-side retry loop otherwise
	// could exhaust the whole half-open budget in a single instant.
	probeLimiter *rate.Limiter
}

// NewCircuitBreaker constructs a breaker in the Closed state.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	cfg.setDefaults()
	cb := &CircuitBreaker{cfg: cfg, state: StateClosed}
	if cfg.MinProbeInterval > 0 {
		cb.probeLimiter = rate.NewLimiter(rate.Every(cfg.MinProbeInterval), 1)
	}
	return cb
}

// Allow reports whether a new request may proceed, transitioning Open to
// Half-Open once OpenTimeout has elapsed. It must be called immediately
// before attempting the request; the caller then reports the outcome via
// RecordSuccess or RecordFailure.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(cb.openedAt) < cb.cfg.OpenTimeout {
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.halfOpenUsed = 0
		cb.halfOpenSuccesses = 0
		fallthrough
	case StateHalfOpen:
		if cb.halfOpenUsed >= cb.cfg.MaxHalfOpenRequests {
			return ErrCircuitOpen
		}
		if cb.probeLimiter != nil && !cb.probeLimiter.Allow() {
			return ErrCircuitOpen
		}
		cb.halfOpenUsed++
		return nil
	default:
		return nil
	}
}

// RecordSuccess reports a successful request outcome.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.halfOpenSuccesses++
		if cb.halfOpenSuccesses >= cb.cfg.MaxHalfOpenRequests {
			cb.reset()
		}
	case StateClosed:
		cb.consecFails = 0
		cb.windowOK++
		cb.maybeResetWindow()
	}
}

// RecordFailure reports a failed request outcome, evaluating the trip
// conditions.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.trip()
		return
	case StateClosed:
		cb.consecFails++
		cb.windowFail++
		if cb.consecFails >= cb.cfg.FailureThreshold {
			cb.trip()
			return
		}
		total := cb.windowOK + cb.windowFail
		if total >= cb.cfg.MinRequestWindow {
			rate := float64(cb.windowFail) / float64(total)
			if rate >= cb.cfg.FailureRateThreshold {
				cb.trip()
				return
			}
		}
		cb.maybeResetWindow()
	}
}

// ReleaseWithoutOutcome accounts for an acquire that was cancelled by the
// consumer before any request outcome was known: it must not count as a
// failure (spec.md 4.C).
func (cb *CircuitBreaker) ReleaseWithoutOutcome() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateHalfOpen && cb.halfOpenUsed > 0 {
		cb.halfOpenUsed--
	}
}

func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.openedAt = time.Now()
	cb.consecFails = 0
	cb.windowOK = 0
	cb.windowFail = 0
	cb.halfOpenUsed = 0
	cb.halfOpenSuccesses = 0
}

func (cb *CircuitBreaker) reset() {
	cb.state = StateClosed
	cb.consecFails = 0
	cb.windowOK = 0
	cb.windowFail = 0
	cb.halfOpenUsed = 0
	cb.halfOpenSuccesses = 0
}

// maybeResetWindow caps the rolling window so a long healthy streak does
// not let a later burst of failures look proportionally small forever.
func (cb *CircuitBreaker) maybeResetWindow() {
	total := cb.windowOK + cb.windowFail
	if total >= cb.cfg.MinRequestWindow*4 {
		cb.windowOK = 0
		cb.windowFail = 0
	}
}

// State returns the current state, for metrics and health reporting.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
