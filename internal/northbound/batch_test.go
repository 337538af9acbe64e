// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package northbound

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iotgw/edgegateway/internal/frame"
)

func point(tag string, v float64) *frame.DataFrame {
	return &frame.DataFrame{Tag: tag, Value: frame.F64Value(v), Quality: frame.QualityGood}
}

func TestBatcherFlushesOnSize(t *testing.T) {
	b := NewBatcher(BatchConfig{BatchSize: 3, BatchTimeout: time.Hour})

	require.False(t, b.AddPoint("dev1", point("t1", 1)))
	require.False(t, b.AddPoint("dev1", point("t1", 2)))
	require.True(t, b.AddPoint("dev1", point("t1", 3)))

	msg, ok := b.Flush("dev1")
	require.True(t, ok)
	require.Equal(t, "dev1", msg.DeviceID)
	require.Len(t, msg.Points, 3)

	_, ok = b.Flush("dev1")
	require.False(t, ok)
}

func TestBatcherFlushesOnTime(t *testing.T) {
	b := NewBatcher(BatchConfig{BatchSize: 1000, BatchTimeout: 10 * time.Millisecond})
	require.False(t, b.AddPoint("dev1", point("t1", 1)))

	time.Sleep(15 * time.Millisecond)
	require.True(t, b.AddPoint("dev1", point("t1", 2)))
}

func TestBatcherDevicesAreIndependent(t *testing.T) {
	b := NewBatcher(BatchConfig{BatchSize: 2, BatchTimeout: time.Hour})
	require.False(t, b.AddPoint("dev1", point("t1", 1)))
	require.False(t, b.AddPoint("dev2", point("t2", 1)))

	msg, ok := b.Flush("dev1")
	require.True(t, ok)
	require.Len(t, msg.Points, 1)
}

func TestBatcherShouldFlushNowMatchesTimeTrigger(t *testing.T) {
	b := NewBatcher(BatchConfig{BatchSize: 1000, BatchTimeout: 10 * time.Millisecond})
	b.AddPoint("dev1", point("t1", 1))
	require.False(t, b.ShouldFlushNow("dev1"))

	time.Sleep(15 * time.Millisecond)
	require.True(t, b.ShouldFlushNow("dev1"))
	require.Contains(t, b.PendingDevices(), "dev1")
}
