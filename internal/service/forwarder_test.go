// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iotgw/edgegateway/internal/bus"
	"github.com/iotgw/edgegateway/internal/frame"
	"github.com/iotgw/edgegateway/internal/northbound"
)

func newTestBus(t *testing.T) *bus.Bus {
	t.Helper()
	b, err := bus.New(bus.Config{
		Capacity: 64,
		WAL: bus.WALConfig{
			DataDir:       t.TempDir(),
			SegmentBytes:  1 << 20,
			FlushInterval: 5 * time.Millisecond,
		},
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func dataEnvelope(deviceID, tag string, v float64) frame.Envelope {
	env := frame.NewDataEnvelope(&frame.DataFrame{
		Tag:     tag,
		Value:   frame.F64Value(v),
		Quality: frame.QualityGood,
	})
	env.Data.Meta = map[string]string{"device_id": deviceID}
	return env
}

func TestForwarderFlushesOnBatchSizeTrigger(t *testing.T) {
	b := newTestBus(t)
	outbound := northbound.NewOutboundBuffer(0)
	comp := northbound.NewCompressor(northbound.CompressConfig{})
	batcher := northbound.NewBatcher(northbound.BatchConfig{BatchSize: 2, BatchTimeout: time.Hour})

	f := newForwarder(b, batcher, comp, outbound, nil, "gateway/telemetry", 0)
	f.start()
	t.Cleanup(f.stop)

	_, err := b.Publish(dataEnvelope("plc1", "t1", 1))
	require.NoError(t, err)
	_, err = b.Publish(dataEnvelope("plc1", "t1", 2))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return outbound.Len() == 1
	}, time.Second, 5*time.Millisecond)

	item, ok := outbound.Peek()
	require.True(t, ok)
	require.Equal(t, "gateway/telemetry/plc1", item.Topic)
}

func TestForwarderFlushesAgedBatchOnTicker(t *testing.T) {
	b := newTestBus(t)
	outbound := northbound.NewOutboundBuffer(0)
	comp := northbound.NewCompressor(northbound.CompressConfig{})
	batcher := northbound.NewBatcher(northbound.BatchConfig{BatchSize: 1000, BatchTimeout: 10 * time.Millisecond})

	f := newForwarder(b, batcher, comp, outbound, nil, "gateway/telemetry", 0)
	f.start()
	t.Cleanup(f.stop)

	_, err := b.Publish(dataEnvelope("plc2", "t1", 42))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return outbound.Len() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestForwarderIgnoresEnvelopesWithoutDeviceID(t *testing.T) {
	b := newTestBus(t)
	outbound := northbound.NewOutboundBuffer(0)
	comp := northbound.NewCompressor(northbound.CompressConfig{})
	batcher := northbound.NewBatcher(northbound.BatchConfig{BatchSize: 1, BatchTimeout: time.Hour})

	f := newForwarder(b, batcher, comp, outbound, nil, "gateway/telemetry", 0)
	f.start()
	t.Cleanup(f.stop)

	env := frame.NewDataEnvelope(&frame.DataFrame{Tag: "t1", Value: frame.F64Value(1), Quality: frame.QualityGood})
	_, err := b.Publish(env)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, outbound.Len())
}
