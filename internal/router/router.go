// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package router

import (
	"errors"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/iotgw/edgegateway/internal/bus"
	"github.com/iotgw/edgegateway/internal/frame"
	"github.com/iotgw/edgegateway/pkg/log"
)

// ErrDuplicateCmdID is returned by Submit when cmd_id is already pending or
// in flight, per spec.md 4.G's fingerprint-uniqueness requirement.
var ErrDuplicateCmdID = errors.New("router: duplicate cmd_id")

// Metrics is the narrow interface the router reports through, implemented
// against prometheus/client_golang by internal/metrics so this package never
// imports it directly (mirrors internal/bus.Metrics).
type Metrics interface {
	IncSubmitTotal()
	IncDispatchTotal()
	IncPublishFailTotal()
	IncTimeoutTotal()
	IncUnknownAckTotal()
	SetQueueDepth(priority int32, depth int)
}

type noopMetrics struct{}

func (noopMetrics) IncSubmitTotal()                         {}
func (noopMetrics) IncDispatchTotal()                       {}
func (noopMetrics) IncPublishFailTotal()                    {}
func (noopMetrics) IncTimeoutTotal()                        {}
func (noopMetrics) IncUnknownAckTotal()                     {}
func (noopMetrics) SetQueueDepth(priority int32, depth int) {}

// Config tunes the router's dispatch tick and default per-command timeout.
type Config struct {
	TickInterval   time.Duration // worker pop interval, spec.md 4.G says ~10ms
	SweepInterval  time.Duration // timeout sweep cadence
	DefaultTimeout time.Duration // used when CmdFrame.TimeoutMs is zero
}

func (c *Config) setDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = 10 * time.Millisecond
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 500 * time.Millisecond
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 5 * time.Second
	}
}

// inflightCmd is a dispatched command awaiting (or having missed) its ack.
type inflightCmd struct {
	ack       chan frame.CmdAckFrame
	deadline  time.Time
	delivered bool
}

// Router implements spec.md 4.G: submit/enqueue, priority dispatch onto the
// bus, ack correlation via a bus subscription, and a periodic timeout sweep.
// Grounded on the teacher's taskManager package's gocron-scheduled
// background workers (internal/taskManager/commitJobService.go), adapted
// from calendar-scheduled jobs to a fast dispatch tick plus a slower sweep.
type Router struct {
	b       *bus.Bus
	q       *priorityQueue
	cfg     Config
	metrics Metrics

	mu       sync.Mutex
	inflight map[uint64]*inflightCmd

	sched    gocron.Scheduler
	acks     *bus.Receiver
	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New builds a Router bound to b. Call Start to begin dispatching.
func New(b *bus.Bus, cfg Config, metrics Metrics) (*Router, error) {
	cfg.setDefaults()
	if metrics == nil {
		metrics = noopMetrics{}
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Router{
		b:        b,
		q:        newPriorityQueue(),
		cfg:      cfg,
		metrics:  metrics,
		inflight: make(map[uint64]*inflightCmd),
		sched:    sched,
		stopCh:   make(chan struct{}),
	}, nil
}

// Submit enqueues cmd at its priority class and returns a channel that
// receives exactly one CmdAckFrame: the real ack if one arrives before
// cmd.TimeoutMs elapses, or a synthesized timeout ack otherwise. Duplicate
// cmd_id (still pending, in flight, or already dispatched) is rejected —
// per spec.md 4.G, retries must mint a new cmd_id.
func (r *Router) Submit(cmd *frame.CmdFrame) (<-chan frame.CmdAckFrame, error) {
	r.mu.Lock()
	if _, dup := r.inflight[cmd.CmdID]; dup {
		r.mu.Unlock()
		return nil, ErrDuplicateCmdID
	}
	timeout := r.cfg.DefaultTimeout
	if cmd.TimeoutMs > 0 {
		timeout = time.Duration(cmd.TimeoutMs) * time.Millisecond
	}
	ack := make(chan frame.CmdAckFrame, 1)
	r.inflight[cmd.CmdID] = &inflightCmd{ack: ack, deadline: time.Now().Add(timeout)}
	r.mu.Unlock()

	if err := r.q.push(&pendingCmd{cmd: cmd, ack: ack}); err != nil {
		r.mu.Lock()
		delete(r.inflight, cmd.CmdID)
		r.mu.Unlock()
		return nil, err
	}
	r.metrics.IncSubmitTotal()
	return ack, nil
}

// Start spawns the dispatch worker, the ack-correlation subscriber, and the
// gocron-scheduled timeout sweep.
func (r *Router) Start() {
	r.acks = r.b.Subscribe(bus.PredicateFilter(func(env frame.Envelope) bool {
		return env.Kind == frame.EnvelopeCmdAck
	}))

	r.wg.Add(2)
	go r.dispatchLoop()
	go r.ackLoop()

	if _, err := r.sched.NewJob(
		gocron.DurationJob(r.cfg.SweepInterval),
		gocron.NewTask(r.sweepTimeouts),
	); err != nil {
		log.Errorf("router: failed to register timeout sweep job: %s", err)
	}
	r.sched.Start()
}

// Stop halts dispatch, the ack subscriber, and the sweep scheduler.
func (r *Router) Stop() error {
	r.stopOnce.Do(func() { close(r.stopCh) })
	if r.acks != nil {
		r.acks.Close()
	}
	r.wg.Wait()
	return r.sched.Shutdown()
}

func (r *Router) dispatchLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			p := r.q.pop()
			if p == nil {
				continue
			}
			r.dispatch(p)
		}
	}
}

// dispatch publishes the command envelope on the bus so auditors can
// observe it, and considers it "sent" at that point — actual execution is
// the owning driver's responsibility, correlated later via CmdAckFrame.
func (r *Router) dispatch(p *pendingCmd) {
	_, err := r.b.Publish(frame.NewCmdEnvelope(p.cmd))
	if err != nil {
		r.metrics.IncPublishFailTotal()
		r.failInflight(p.cmd.CmdID, frame.CmdAckFrame{
			CmdID:    p.cmd.CmdID,
			Success:  false,
			ErrorMsg: "publish failed: " + err.Error(),
		})
		return
	}
	r.metrics.IncDispatchTotal()
}

func (r *Router) ackLoop() {
	defer r.wg.Done()
	for {
		env, err := r.acks.Recv()
		if err != nil {
			return
		}
		if env.CmdAck == nil {
			continue
		}
		if !r.failInflight(env.CmdAck.CmdID, *env.CmdAck) {
			r.metrics.IncUnknownAckTotal()
		}
	}
}

// failInflight delivers result to the waiting ack channel for cmdID if one
// is still registered, removing it from the inflight map. Returns false if
// no such command was being tracked (dropped as an unknown ack upstream).
func (r *Router) failInflight(cmdID uint64, result frame.CmdAckFrame) bool {
	r.mu.Lock()
	c, ok := r.inflight[cmdID]
	if ok {
		delete(r.inflight, cmdID)
	}
	r.mu.Unlock()
	if !ok || c.delivered {
		return ok
	}
	c.delivered = true
	c.ack <- result
	return true
}

// sweepTimeouts drops any still-pending queued command and any dispatched
// command whose deadline has passed, delivering a synthetic timeout ack.
func (r *Router) sweepTimeouts() {
	now := time.Now()
	r.mu.Lock()
	var expired []uint64
	for cmdID, c := range r.inflight {
		if !now.Before(c.deadline) {
			expired = append(expired, cmdID)
		}
	}
	r.mu.Unlock()

	for _, cmdID := range expired {
		r.q.removeByCmdID(cmdID)
		if r.failInflight(cmdID, frame.CmdAckFrame{
			CmdID:       cmdID,
			Success:     false,
			ErrorMsg:    "timeout",
			TimestampNs: uint64(now.UnixNano()),
		}) {
			r.metrics.IncTimeoutTotal()
		}
	}
}
