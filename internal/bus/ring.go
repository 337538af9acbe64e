// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// This file implements the broadcast ring described in spec.md 4.B: a
// fixed-capacity slot array shared by every subscriber, each tracking its
// own read cursor. The buffer-chain-with-independent-cursors idea is the
// same shape as the teacher's linked buffer chain in
// pkg/metricstore/buffer.go, simplified to a flat ring since the bus does
// not need unbounded history (that is the WAL's job) — only bounded
// fan-out with lag detection.
package bus

import (
	"sync"

	"github.com/iotgw/edgegateway/internal/frame"
)

// LagError is returned by Receiver.Recv when the subscriber fell capacity
// envelopes behind the ring's write position. Dropped reports how many
// envelopes were skipped; the subscriber's cursor has already jumped past
// them.
type LagError struct {
	Dropped uint64
}

func (e *LagError) Error() string {
	return "bus: subscriber lagged, envelopes dropped"
}

// ring is a power-of-two-capacity broadcast buffer. Slot i holds the
// envelope whose Seq&mask == i, i.e. the most recent envelope to have
// occupied that slot. A publish never blocks on subscribers: it simply
// overwrites the slot and bumps the write position.
type ring struct {
	mu       sync.Mutex
	cond     *sync.Cond
	slots    []frame.Envelope
	occupied []bool
	mask     uint64
	head     uint64 // seq of the next envelope to be written (== count published)
	closed   bool
}

func newRing(capacity int) *ring {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic("bus: ring capacity must be a power of two")
	}
	r := &ring{
		slots:    make([]frame.Envelope, capacity),
		occupied: make([]bool, capacity),
		mask:     uint64(capacity - 1),
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

func (r *ring) capacity() uint64 { return r.mask + 1 }

// publish writes env (with Seq already assigned by the caller) into its
// slot and wakes every blocked subscriber.
func (r *ring) publish(env frame.Envelope) {
	r.mu.Lock()
	idx := env.Seq & r.mask
	r.slots[idx] = env
	r.occupied[idx] = true
	if env.Seq+1 > r.head {
		r.head = env.Seq + 1
	}
	r.mu.Unlock()
	r.cond.Broadcast()
}

func (r *ring) close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cond.Broadcast()
}

// next returns the envelope at cursor, blocking until it is available, the
// ring closes, or the subscriber lags. If the envelope at cursor has
// already been overwritten, next reports a LagError and advances cursor to
// the current tail (head - capacity).
func (r *ring) next(cursor uint64) (frame.Envelope, uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		if r.head > cursor+r.capacity() {
			dropped := r.head - r.capacity() - cursor
			newCursor := r.head - r.capacity()
			return frame.Envelope{}, newCursor, &LagError{Dropped: dropped}
		}
		if cursor < r.head {
			idx := cursor & r.mask
			if r.occupied[idx] && r.slots[idx].Seq == cursor {
				return r.slots[idx], cursor + 1, nil
			}
			// Slot already overwritten by a newer envelope: treat as lag.
			dropped := r.head - r.capacity() - cursor
			newCursor := r.head - r.capacity()
			if r.head < r.capacity() {
				newCursor = 0
				dropped = 0
			}
			return frame.Envelope{}, newCursor, &LagError{Dropped: dropped}
		}
		if r.closed {
			return frame.Envelope{}, cursor, errSubscriberClosed
		}
		r.cond.Wait()
	}
}
