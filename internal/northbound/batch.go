// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package northbound

import (
	"sync"
	"time"

	"github.com/iotgw/edgegateway/internal/frame"
)

// BatchConfig tunes the per-device batch size and time triggers of
// spec.md 4.H.
type BatchConfig struct {
	BatchSize    int
	BatchTimeout time.Duration
}

func (c *BatchConfig) setDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = time.Second
	}
}

type deviceBatch struct {
	points    []PointPayload
	lastFlush time.Time
}

// Batcher maintains one current batch per device and decides, on every
// AddPoint, whether the batch should flush now.
type Batcher struct {
	cfg BatchConfig

	mu      sync.Mutex
	devices map[string]*deviceBatch
}

// NewBatcher constructs a Batcher with the given trigger configuration.
func NewBatcher(cfg BatchConfig) *Batcher {
	cfg.setDefaults()
	return &Batcher{cfg: cfg, devices: make(map[string]*deviceBatch)}
}

// AddPoint appends f to deviceID's current batch and reports whether the
// batch now meets a flush trigger (size or elapsed time since last flush).
// The caller is expected to call Flush promptly afterward when true is
// returned.
func (b *Batcher) AddPoint(deviceID string, f *frame.DataFrame) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	d, ok := b.devices[deviceID]
	if !ok {
		d = &deviceBatch{lastFlush: time.Now()}
		b.devices[deviceID] = d
	}
	d.points = append(d.points, NewPointPayload(f))

	if len(d.points) >= b.cfg.BatchSize {
		return true
	}
	return time.Since(d.lastFlush) >= b.cfg.BatchTimeout
}

// Flush drains deviceID's current batch into a Message and resets it. The
// second return is false if the batch was empty (nothing to flush).
func (b *Batcher) Flush(deviceID string) (Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	d, ok := b.devices[deviceID]
	if !ok || len(d.points) == 0 {
		return Message{}, false
	}
	msg := Message{
		DeviceID:    deviceID,
		TimestampMs: time.Now().UnixMilli(),
		Points:      d.points,
	}
	d.points = nil
	d.lastFlush = time.Now()
	return msg, true
}

// PendingDevices returns the device IDs with a non-empty current batch,
// used by the periodic time-trigger sweep to find batches that have gone
// stale without a new point arriving to re-check the timeout.
func (b *Batcher) PendingDevices() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.devices))
	for id, d := range b.devices {
		if len(d.points) > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// ShouldFlushNow reports whether deviceID's batch has aged past
// BatchTimeout, without mutating anything. Used by the sweep alongside
// PendingDevices.
func (b *Batcher) ShouldFlushNow(deviceID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.devices[deviceID]
	if !ok || len(d.points) == 0 {
		return false
	}
	return time.Since(d.lastFlush) >= b.cfg.BatchTimeout
}
