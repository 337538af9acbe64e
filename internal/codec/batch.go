// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package codec

import "sort"

// PollBatch is a single register-range request covering one or more
// RegPoints that share a function code and endpoint.
type PollBatch struct {
	Function FunctionCode
	Start    uint16
	Count    uint16 // number of 16-bit registers spanned
	Points   []RegPoint
}

// BuildPollBatches groups points by function code, sorts each group by
// address, and greedily merges consecutive points into batches bounded
// by maxRegsPerReq (spec.md 4.D). Points on different function codes
// never share a batch.
func BuildPollBatches(points []RegPoint, maxRegsPerReq uint16) []PollBatch {
	byFunc := make(map[FunctionCode][]RegPoint)
	for _, p := range points {
		byFunc[p.Function] = append(byFunc[p.Function], p)
	}

	var funcs []FunctionCode
	for fc := range byFunc {
		funcs = append(funcs, fc)
	}
	sort.Slice(funcs, func(i, j int) bool { return funcs[i] < funcs[j] })

	var out []PollBatch
	for _, fc := range funcs {
		out = append(out, mergeOneFunction(fc, byFunc[fc], maxRegsPerReq)...)
	}
	return out
}

func mergeOneFunction(fc FunctionCode, points []RegPoint, maxRegsPerReq uint16) []PollBatch {
	sort.Slice(points, func(i, j int) bool { return points[i].Address < points[j].Address })

	var out []PollBatch
	var cur *PollBatch
	for _, p := range points {
		if cur == nil {
			cur = &PollBatch{Function: fc, Start: p.Address, Points: []RegPoint{p}}
			continue
		}
		newEnd := p.End()
		curEnd := cur.Start + cur.spanSoFar() - 1
		if p.Address > curEnd+1 {
			// Gap: leave as a separate batch.
			cur.Count = cur.spanSoFar()
			out = append(out, *cur)
			cur = &PollBatch{Function: fc, Start: p.Address, Points: []RegPoint{p}}
			continue
		}
		span := newEnd - cur.Start + 1
		if span <= maxRegsPerReq {
			cur.Points = append(cur.Points, p)
			continue
		}
		// Merging would exceed the per-request register cap: close the
		// current batch and start a new one at this point.
		cur.Count = cur.spanSoFar()
		out = append(out, *cur)
		cur = &PollBatch{Function: fc, Start: p.Address, Points: []RegPoint{p}}
	}
	if cur != nil {
		cur.Count = cur.spanSoFar()
		out = append(out, *cur)
	}
	return out
}

// spanSoFar computes the register count covering every point currently
// assigned to the batch, from Start to the furthest point's End.
func (b *PollBatch) spanSoFar() uint16 {
	end := b.Start
	for _, p := range b.Points {
		if p.End() > end {
			end = p.End()
		}
	}
	return end - b.Start + 1
}
