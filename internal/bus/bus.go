// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package bus implements the Frame Bus of spec.md 4.B: a bounded
// broadcast ring buffer backed by a write-ahead log, with per-subscriber
// backlog tracking, filter-based subscription, and crash recovery.
package bus

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/iotgw/edgegateway/internal/frame"
	"github.com/iotgw/edgegateway/pkg/log"
)

var (
	// ErrOverflow names the ring-overflow outcome of the publish contract
	// in spec.md 4.B. Publish never returns it: the ring overwrites old
	// slots instead of blocking on consumers, and a closed bus reports
	// ErrClosed.
	ErrOverflow         = errors.New("bus: overflow")
	ErrClosed           = errors.New("bus: closed")
	errSubscriberClosed = errors.New("bus: subscriber closed")
)

// DefaultCapacity is the ring's default slot count (spec.md 4.B).
const DefaultCapacity = 1024

// Config configures a Bus.
type Config struct {
	Capacity int // power of two, default DefaultCapacity
	WAL      WALConfig
}

// Metrics is the narrow set of hooks the bus drives; a real Prometheus
// registration (internal/metrics) implements this interface so the bus
// package itself stays free of a Prometheus import.
type Metrics interface {
	SetRingUsed(n int)
	IncPublishTotal()
	IncDropTotal()
	SetBacklogLag(subscriberID string, lag uint64)
	SetWalBytes(n int64)
	ObserveWalFlushDuration(seconds float64)
}

type noopMetrics struct{}

func (noopMetrics) SetRingUsed(int)                {}
func (noopMetrics) IncPublishTotal()                {}
func (noopMetrics) IncDropTotal()                   {}
func (noopMetrics) SetBacklogLag(string, uint64)    {}
func (noopMetrics) SetWalBytes(int64)               {}
func (noopMetrics) ObserveWalFlushDuration(float64) {}

// Bus is the process-wide frame bus singleton described in spec.md 9
// ("Global state"): constructed once at startup, passed by reference
// thereafter, with explicit constructors so tests can build isolated
// instances.
type Bus struct {
	ring *ring
	wal  *WAL

	mu      sync.Mutex
	nextSeq uint64

	subMu     sync.Mutex
	subs      map[*Receiver]struct{}
	nextSubID uint64

	metrics Metrics
	closed  int32
}

// New constructs a Bus with its own ring and WAL rooted at cfg.WAL.DataDir.
// Call Recover immediately after New and before any Publish if the WAL
// directory may hold prior data.
func New(cfg Config, metrics Metrics) (*Bus, error) {
	cap := cfg.Capacity
	if cap == 0 {
		cap = DefaultCapacity
	}
	w, err := OpenWAL(cfg.WAL)
	if err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Bus{
		ring:    newRing(cap),
		wal:     w,
		subs:    make(map[*Receiver]struct{}),
		metrics: metrics,
	}, nil
}

// Recover rehydrates the bus from its WAL, returning in Seq order every
// envelope whose Seq is at or above the manifest's lowest kept seq (all
// of them if GC has never run). It arms the bus so the next Publish
// assigns one past the highest seq found in the WAL (spec.md 4.B
// invariant), and moves the ring's write position there so receivers
// subscribed afterwards start at that seq.
func (b *Bus) Recover() ([]frame.Envelope, error) {
	gcWatermark, err := ReadManifest(b.wal.cfg.DataDir)
	if err != nil {
		return nil, err
	}

	recs, err := b.wal.Recover()
	if err != nil {
		return nil, err
	}

	var out []frame.Envelope
	var maxSeq uint64
	for _, r := range recs {
		if r.Seq > maxSeq {
			maxSeq = r.Seq
		}
		if r.Seq < gcWatermark {
			continue
		}
		env, _, err := frame.DecodeEnvelope(r.Payload)
		if err != nil {
			log.Warnf("bus: recover: dropping unparseable envelope at seq %d: %v", r.Seq, err)
			continue
		}
		out = append(out, env)
	}

	b.mu.Lock()
	if maxSeq+1 > b.nextSeq {
		b.nextSeq = maxSeq + 1
	}
	next := b.nextSeq
	b.mu.Unlock()

	b.ring.mu.Lock()
	if next > b.ring.head {
		b.ring.head = next
	}
	b.ring.mu.Unlock()
	return out, nil
}

// Publish assigns the next seq, appends the encoded envelope to the WAL,
// then broadcasts it to every subscriber. It never blocks on consumers.
func (b *Bus) Publish(env frame.Envelope) (uint64, error) {
	if atomic.LoadInt32(&b.closed) != 0 {
		return 0, ErrClosed
	}

	b.mu.Lock()
	env.Seq = b.nextSeq
	b.nextSeq++
	payload, err := frame.EncodeEnvelope(env)
	if err != nil {
		b.mu.Unlock()
		return 0, err
	}
	if err := b.wal.Append(env.Seq, payload); err != nil {
		b.mu.Unlock()
		b.metrics.IncDropTotal()
		return 0, err
	}
	b.ring.publish(env)
	b.mu.Unlock()

	b.metrics.IncPublishTotal()
	b.metrics.SetRingUsed(int(b.ring.capacity()))
	if n, err := b.wal.Bytes(); err == nil {
		b.metrics.SetWalBytes(n)
	}
	return env.Seq, nil
}

// GC advances the WAL's retention watermark. Callers (service wiring)
// invoke this once all persistent downstream consumers have acknowledged
// progress past keepFromSeq.
func (b *Bus) GC(keepFromSeq uint64) error {
	return b.wal.GC(keepFromSeq)
}

// Close releases the WAL and unblocks every subscriber's pending Recv.
func (b *Bus) Close() error {
	if !atomic.CompareAndSwapInt32(&b.closed, 0, 1) {
		return nil
	}
	b.ring.close()
	return b.wal.Close()
}

// --- subscription ---

// FilterKind selects which subscriber-side filter variant is active.
type FilterKind int

const (
	FilterAll FilterKind = iota
	FilterDataOnly
	FilterCmdOnly
	FilterTagPrefix
	FilterPredicate
)

// Filter determines, at the subscriber side, which envelopes a Receiver
// surfaces from Recv. The ring itself never segments by topic (spec.md
// 4.B).
type Filter struct {
	Kind      FilterKind
	TagPrefix string
	Predicate func(frame.Envelope) bool
}

func AllFilter() Filter          { return Filter{Kind: FilterAll} }
func DataOnlyFilter() Filter     { return Filter{Kind: FilterDataOnly} }
func CmdOnlyFilter() Filter      { return Filter{Kind: FilterCmdOnly} }
func TagPrefixFilter(p string) Filter {
	return Filter{Kind: FilterTagPrefix, TagPrefix: p}
}
func PredicateFilter(f func(frame.Envelope) bool) Filter {
	return Filter{Kind: FilterPredicate, Predicate: f}
}

func (f Filter) match(env frame.Envelope) bool {
	switch f.Kind {
	case FilterAll:
		return true
	case FilterDataOnly:
		return env.Kind == frame.EnvelopeData
	case FilterCmdOnly:
		return env.Kind == frame.EnvelopeCmd || env.Kind == frame.EnvelopeCmdAck
	case FilterTagPrefix:
		if env.Kind != frame.EnvelopeData || env.Data == nil {
			return false
		}
		return strings.HasPrefix(env.Data.Tag, f.TagPrefix)
	case FilterPredicate:
		return f.Predicate != nil && f.Predicate(env)
	default:
		return false
	}
}

// Receiver is a subscriber's handle to the bus: an independent read
// cursor plus the filter applied at Recv time.
type Receiver struct {
	id      uint64
	bus     *Bus
	filter  Filter
	cursor  uint64
	stopped int32
}

// Subscribe returns a Receiver whose cursor starts at the bus's current
// write position: it observes only envelopes published after Subscribe
// returns.
func (b *Bus) Subscribe(filter Filter) *Receiver {
	b.ring.mu.Lock()
	cursor := b.ring.head
	b.ring.mu.Unlock()

	b.subMu.Lock()
	b.nextSubID++
	r := &Receiver{id: b.nextSubID, bus: b, filter: filter, cursor: cursor}
	b.subs[r] = struct{}{}
	b.subMu.Unlock()
	return r
}

// Close detaches the receiver from the bus. A publish never waits for
// Close, and any in-flight Recv returns errSubscriberClosed only once the
// whole bus closes; detaching early just stops counting this receiver's
// backlog.
func (r *Receiver) Close() {
	if !atomic.CompareAndSwapInt32(&r.stopped, 0, 1) {
		return
	}
	r.bus.subMu.Lock()
	delete(r.bus.subs, r)
	r.bus.subMu.Unlock()
}

// Recv blocks until the next envelope matching the receiver's filter is
// available, the bus closes, or the receiver lags past the ring's
// capacity (LagError, with the cursor already advanced to the new tail).
func (r *Receiver) Recv() (frame.Envelope, error) {
	for {
		env, next, err := r.bus.ring.next(r.cursor)
		r.cursor = next
		if err != nil {
			var lag *LagError
			if errors.As(err, &lag) {
				r.bus.metrics.SetBacklogLag(r.idString(), lag.Dropped)
				return frame.Envelope{}, err
			}
			return frame.Envelope{}, err
		}
		if r.filter.match(env) {
			return env, nil
		}
		// Not a match: keep advancing without surfacing it to the caller.
	}
}

func (r *Receiver) idString() string {
	return "sub-" + itoa(r.id)
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
