// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package router implements the command router of spec.md 4.G: a
// priority-queued submit/dispatch path for downstream CmdFrames with
// cmd_id-keyed ack correlation and a timeout sweep.
package router

import (
	"fmt"
	"sync"

	"github.com/iotgw/edgegateway/internal/frame"
)

// ErrQueueFull is returned by push when a priority class is at capacity.
var ErrQueueFull = fmt.Errorf("router: queue full")

// priorityCaps gives each of the four fixed priority classes its own
// independent backlog cap, indexed by frame.Priority*.
var priorityCaps = [4]int{
	frame.PriorityLow:       100,
	frame.PriorityNormal:    500,
	frame.PriorityHigh:      200,
	frame.PriorityEmergency: 50,
}

// pendingCmd is one queued command awaiting dispatch.
type pendingCmd struct {
	cmd *frame.CmdFrame
	ack chan frame.CmdAckFrame
}

// priorityQueue holds four independently-capped FIFO lanes and drains them
// Emergency, High, Normal, Low.
type priorityQueue struct {
	mu    sync.Mutex
	lanes [4][]*pendingCmd
}

func newPriorityQueue() *priorityQueue {
	return &priorityQueue{}
}

// push enqueues cmd at its priority class, failing if that lane is full.
func (q *priorityQueue) push(p *pendingCmd) error {
	prio := p.cmd.Priority
	if prio < 0 || int(prio) >= len(q.lanes) {
		return fmt.Errorf("router: invalid priority %d", prio)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.lanes[prio]) >= priorityCaps[prio] {
		return fmt.Errorf("%w: priority %d at capacity %d", ErrQueueFull, prio, priorityCaps[prio])
	}
	q.lanes[prio] = append(q.lanes[prio], p)
	return nil
}

// pop removes and returns the next command to dispatch, draining
// Emergency, then High, Normal, Low. Returns nil if every lane is empty.
func (q *priorityQueue) pop() *pendingCmd {
	q.mu.Lock()
	defer q.mu.Unlock()
	for prio := len(q.lanes) - 1; prio >= 0; prio-- {
		if len(q.lanes[prio]) == 0 {
			continue
		}
		p := q.lanes[prio][0]
		q.lanes[prio] = q.lanes[prio][1:]
		return p
	}
	return nil
}

// removeByCmdID drops a still-pending command (used by the timeout sweep)
// and reports whether it was found. Dispatched-but-unacked commands are not
// tracked here — they live in Router.inflight instead.
func (q *priorityQueue) removeByCmdID(cmdID uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for prio := range q.lanes {
		lane := q.lanes[prio]
		for i, p := range lane {
			if p.cmd.CmdID == cmdID {
				q.lanes[prio] = append(lane[:i], lane[i+1:]...)
				return true
			}
		}
	}
	return false
}

func (q *priorityQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, lane := range q.lanes {
		n += len(lane)
	}
	return n
}
