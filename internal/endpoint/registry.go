// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package endpoint

import "sync"

// Registry hands out per-URL singleton pools, mirroring the
// sync.Once-guarded singleton pattern of internal/repository/dbConnection.go
// generalized to a keyed map since the gateway talks to many endpoints,
// not one database.
type Registry struct {
	mu            sync.Mutex
	pools         map[string]*Pool
	defaultPool   PoolConfig
	defaultBreak  BreakerConfig
	customDialers map[Scheme]Dialer
}

// NewRegistry constructs a Registry applying defaultPool/defaultBreak as
// defaults for any endpoint not given explicit overrides via GetOrCreate.
func NewRegistry(defaultPool PoolConfig, defaultBreak BreakerConfig) *Registry {
	return &Registry{
		pools:         make(map[string]*Pool),
		defaultPool:   defaultPool,
		defaultBreak:  defaultBreak,
		customDialers: make(map[Scheme]Dialer),
	}
}

// RegisterDialer installs a Dialer for a scheme the core pool does not
// dial natively (serial, ws). Must be called before the first Get for
// that scheme.
func (r *Registry) RegisterDialer(scheme Scheme, d Dialer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.customDialers[scheme] = d
}

// Get returns the singleton Pool for url, constructing it with the
// registry's default pool/breaker configuration on first lookup.
func (r *Registry) Get(url EndpointURL) *Pool {
	return r.GetOrCreate(url, r.defaultPool, r.defaultBreak)
}

// GetOrCreate returns the singleton Pool for url, constructing it with
// the given configuration if it does not yet exist. Subsequent calls for
// the same URL ignore the passed configuration and return the existing
// pool.
func (r *Registry) GetOrCreate(url EndpointURL, pcfg PoolConfig, bcfg BreakerConfig) *Pool {
	key := url.Key()

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pools[key]; ok {
		return p
	}
	p := NewPool(url, pcfg, bcfg, defaultDialer(r, url.Scheme))
	r.pools[key] = p
	return p
}

// CloseAll closes every pool currently tracked by the registry.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for _, p := range r.pools {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Snapshot returns the breaker state of every tracked endpoint, for the
// health aggregator.
func (r *Registry) Snapshot() map[string]BreakerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]BreakerState, len(r.pools))
	for key, p := range r.pools {
		out[key] = p.Breaker().State()
	}
	return out
}
