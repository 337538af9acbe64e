// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// This file implements the bounded connection pool of spec.md 4.C. The
// pool-singleton-by-key idea is grounded on internal/repository/dbConnection.go's
// sync.Once-guarded global handle, generalized here to a map of
// per-endpoint pools keyed by URL rather than one process-wide database
// handle.
package endpoint

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAcquireTimeout = errors.New("endpoint: acquire timeout")
	ErrPoolClosed     = errors.New("endpoint: pool closed")
	ErrUnknownScheme  = errors.New("endpoint: unsupported scheme")
)

// Dialer opens a fresh transport connection to an endpoint URL. tcp and
// tls are backed by net.Dial/tls.Dial; serial and ws are modeled as
// net.Conn-compatible dialers supplied by the caller so the core pool
// stays transport-agnostic (spec.md names the four schemes without
// mandating a particular serial or websocket library).
type Dialer func(ctx context.Context, url EndpointURL) (net.Conn, error)

// PoolConfig tunes a single endpoint's connection pool.
type PoolConfig struct {
	Min            int
	Max            int
	IdleTimeout    time.Duration
	MaxLifetime    time.Duration
	AcquireTimeout time.Duration
}

func (c *PoolConfig) setDefaults() {
	if c.Max <= 0 {
		c.Max = 4
	}
	if c.Min < 0 {
		c.Min = 0
	}
	if c.Min > c.Max {
		c.Min = c.Max
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	if c.MaxLifetime <= 0 {
		c.MaxLifetime = 30 * time.Minute
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 5 * time.Second
	}
}

type pooledConn struct {
	id        uuid.UUID
	conn      net.Conn
	createdAt time.Time
	idleSince time.Time
}

func (pc *pooledConn) expired(cfg PoolConfig, now time.Time) bool {
	if now.Sub(pc.createdAt) > cfg.MaxLifetime {
		return true
	}
	if !pc.idleSince.IsZero() && now.Sub(pc.idleSince) > cfg.IdleTimeout {
		return true
	}
	return false
}

// Pool is a bounded, per-endpoint connection pool with a co-located
// circuit breaker. A Pool is a singleton per URL, looked up through the
// package-level Registry (spec.md: "Endpoint pools and circuit breakers
// are per-endpoint singletons, looked up by URL").
type Pool struct {
	url    EndpointURL
	cfg    PoolConfig
	dialer Dialer
	cb     *CircuitBreaker

	mu      sync.Mutex
	idle    []*pooledConn
	numOpen int
	waiters chan struct{}
	closed  bool
}

// NewPool constructs a pool for a single endpoint URL. It does not dial
// eagerly; connections are dialed on demand by Acquire, up to cfg.Max.
// cfg.Min is not enforced: the pool neither pre-dials nor keeps open a
// minimum number of connections.
func NewPool(url EndpointURL, cfg PoolConfig, bcfg BreakerConfig, dialer Dialer) *Pool {
	cfg.setDefaults()
	return &Pool{
		url:     url,
		cfg:     cfg,
		dialer:  dialer,
		cb:      NewCircuitBreaker(bcfg),
		waiters: make(chan struct{}, cfg.Max),
	}
}

// Breaker exposes the pool's circuit breaker for health/metrics reporting.
func (p *Pool) Breaker() *CircuitBreaker { return p.cb }

// Handle is a leased connection. Close returns it to the pool (or
// discards it, if Taint was called) and must be called exactly once.
type Handle struct {
	pool    *Pool
	conn    *pooledConn
	tainted bool
	closed  bool
	counted bool // whether the breaker is expecting a RecordSuccess/RecordFailure
}

// Conn exposes the underlying net.Conn for protocol codecs to read/write.
func (h *Handle) Conn() net.Conn { return h.conn.conn }

// ID returns the opaque slot id assigned to this connection when it was
// dialed, stable across idle/reacquire cycles. Useful for correlating
// pool-level log lines and metrics with a specific physical connection
// without leaking net.Conn identity or reusing a numeric counter that
// could collide across pools.
func (h *Handle) ID() uuid.UUID { return h.conn.id }

// Taint marks the underlying connection as broken; it will be discarded
// rather than returned to the pool on Close, and the circuit breaker
// records a failure.
func (h *Handle) Taint() {
	h.tainted = true
}

// Close returns the handle to its pool, applying the circuit breaker
// outcome recorded via Taint (failure) or the absence of it (success).
func (h *Handle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	if h.counted {
		if h.tainted {
			h.pool.cb.RecordFailure()
		} else {
			h.pool.cb.RecordSuccess()
		}
	}
	return h.pool.release(h.conn, h.tainted)
}

// Acquire blocks up to cfg.AcquireTimeout for a connection, consulting
// the circuit breaker first. If the context is cancelled by the caller
// before a slot is granted, the attempt does not count as a breaker
// failure.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	if err := p.cb.Allow(); err != nil {
		return nil, err
	}

	acquired := false
	defer func() {
		if !acquired {
			p.cb.ReleaseWithoutOutcome()
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}
		now := time.Now()
		for len(p.idle) > 0 {
			pc := p.idle[len(p.idle)-1]
			p.idle = p.idle[:len(p.idle)-1]
			if pc.expired(p.cfg, now) {
				_ = pc.conn.Close()
				p.numOpen--
				continue
			}
			p.mu.Unlock()
			acquired = true
			return &Handle{pool: p, conn: pc, counted: true}, nil
		}
		if p.numOpen < p.cfg.Max {
			p.numOpen++
			p.mu.Unlock()
			conn, err := p.dialer(ctx, p.url)
			if err != nil {
				p.mu.Lock()
				p.numOpen--
				p.mu.Unlock()
				p.cb.RecordFailure()
				return nil, err
			}
			acquired = true
			return &Handle{pool: p, conn: &pooledConn{id: uuid.New(), conn: conn, createdAt: time.Now()}, counted: true}, nil
		}
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ErrAcquireTimeout
		case <-time.After(5 * time.Millisecond):
			// Poll for a returned connection; pools are small (<= a few
			// dozen), so this avoids a dedicated wait-channel per acquire.
		}
	}
}

func (p *Pool) release(pc *pooledConn, tainted bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if tainted || p.closed {
		p.numOpen--
		return pc.conn.Close()
	}
	pc.idleSince = time.Now()
	p.idle = append(p.idle, pc)
	return nil
}

// Close closes every idle connection and marks the pool closed; handles
// already leased are discarded on their own Close.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	var firstErr error
	for _, pc := range p.idle {
		if err := pc.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.idle = nil
	return firstErr
}

// tcpDialer is the default Dialer for the tcp scheme.
func tcpDialer(ctx context.Context, url EndpointURL) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", url.HostPort())
}

// tlsDialer is the default Dialer for the tls scheme.
func tlsDialer(ctx context.Context, url EndpointURL) (net.Conn, error) {
	var d net.Dialer
	return tls.DialWithDialer(&d, "tcp", url.HostPort(), &tls.Config{ServerName: url.Host})
}
