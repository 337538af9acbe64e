// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package northbound

import "sync"

// OutboundItem is one serialized message waiting to be published.
type OutboundItem struct {
	Topic      string
	Payload    []byte
	Compressed bool
	QoS        byte
}

// OutboundBuffer is the bounded queue of spec.md 4.H between the batcher
// and the MQTT publisher: filled by Flush, drained by the publish loop.
// When full, the oldest unsent item is dropped to keep fresh data
// flowing — un-ack'd QoS 1/2 items are only removed by the publisher once
// the broker acks them, so dropping here only ever discards items that
// have not yet been handed to the client.
type OutboundBuffer struct {
	mu       sync.Mutex
	items    []OutboundItem
	capacity int
	dropped  uint64
}

// NewOutboundBuffer builds a buffer holding at most capacity items.
func NewOutboundBuffer(capacity int) *OutboundBuffer {
	if capacity <= 0 {
		capacity = 1000
	}
	return &OutboundBuffer{capacity: capacity}
}

// Push enqueues item, dropping the oldest queued item first if the buffer
// is already at capacity. Returns true if an item was dropped to make
// room.
func (b *OutboundBuffer) Push(item OutboundItem) (dropped bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) >= b.capacity {
		b.items = b.items[1:]
		b.dropped++
		dropped = true
	}
	b.items = append(b.items, item)
	return dropped
}

// Peek returns the oldest item without removing it, for a publisher that
// must retry until broker ack before advancing.
func (b *OutboundBuffer) Peek() (OutboundItem, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == 0 {
		return OutboundItem{}, false
	}
	return b.items[0], true
}

// Pop removes the oldest item, called once the publisher has confirmed
// delivery (or decided not to retry, e.g. QoS 0).
func (b *OutboundBuffer) Pop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) > 0 {
		b.items = b.items[1:]
	}
}

func (b *OutboundBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// DroppedCount returns the number of items discarded for capacity so far.
func (b *OutboundBuffer) DroppedCount() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
