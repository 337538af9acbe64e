// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package frame

// Quality conveys how trustworthy a DataFrame's Value is.
type Quality uint8

const (
	QualityBad       Quality = 0
	QualityUncertain Quality = 1
	QualityGood      Quality = 2
)

// DataFrame is a single timestamped measurement of one tag. Immutable after
// publish: nothing mutates a DataFrame once it is handed to the bus.
type DataFrame struct {
	Tag         string
	Value       Value
	Quality     Quality
	TimestampNs uint64
	Meta        map[string]string
}

// CmdFrame is a downstream write request targeting a single tag, issued by
// some origin (REST handler, MQTT command topic, ...) and routed to the
// driver that owns Tag.
type CmdFrame struct {
	CmdID       uint64
	Tag         string
	Value       Value
	Origin      string
	Priority    int32
	TimeoutMs   uint32
	TimestampNs uint64
}

// Priority class bounds for CmdFrame.Priority, matching the Command Router's
// four fixed queues.
const (
	PriorityLow       int32 = 0
	PriorityNormal    int32 = 1
	PriorityHigh      int32 = 2
	PriorityEmergency int32 = 3
)

// CmdAckFrame reports the terminal outcome of a previously-submitted CmdFrame.
type CmdAckFrame struct {
	CmdID       uint64
	Success     bool
	ActualValue *Value
	ErrorMsg    string
	TimestampNs uint64
}
