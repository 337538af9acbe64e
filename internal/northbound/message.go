// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package northbound implements the MQTT northbound batcher of spec.md
// 4.H: per-device batching, zstd compression above a size threshold, a
// bounded outbound buffer, and a reconnecting MQTT publisher.
package northbound

import (
	"encoding/json"

	"github.com/iotgw/edgegateway/internal/frame"
)

// PointPayload is the JSON-serializable projection of a DataFrame. Value is
// rendered as a native JSON type (bool/number/string) rather than frame's
// internal tagged union, since frame.Value has no exported fields for
// encoding/json to reach.
type PointPayload struct {
	Tag         string      `json:"tag"`
	Value       interface{} `json:"value"`
	Quality     string      `json:"quality"`
	TimestampNs uint64      `json:"timestamp_ns"`
}

func qualityString(q frame.Quality) string {
	switch q {
	case frame.QualityGood:
		return "good"
	case frame.QualityUncertain:
		return "uncertain"
	default:
		return "bad"
	}
}

func valueAsJSON(v frame.Value) interface{} {
	switch v.Kind() {
	case frame.KindBool:
		return v.AsBool()
	case frame.KindI64:
		i, _ := v.AsI64()
		return i
	case frame.KindF64:
		f, _ := v.AsF64()
		return f
	default:
		return v.AsString()
	}
}

// NewPointPayload projects a DataFrame into its wire representation.
func NewPointPayload(f *frame.DataFrame) PointPayload {
	return PointPayload{
		Tag:         f.Tag,
		Value:       valueAsJSON(f.Value),
		Quality:     qualityString(f.Quality),
		TimestampNs: f.TimestampNs,
	}
}

// Message is the batched payload published per spec.md 4.H: one message per
// flushed device batch.
type Message struct {
	DeviceID    string         `json:"device_id"`
	TimestampMs int64          `json:"timestamp_ms"`
	Points      []PointPayload `json:"points"`
}

// Marshal renders m as its wire JSON form.
func (m Message) Marshal() ([]byte, error) {
	return json.Marshal(m)
}
