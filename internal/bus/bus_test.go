// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bus

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iotgw/edgegateway/internal/frame"
)

func newTestBus(t *testing.T, capacity int) *Bus {
	t.Helper()
	dir := t.TempDir()
	b, err := New(Config{
		Capacity: capacity,
		WAL: WALConfig{
			DataDir:       dir,
			SegmentBytes:  1 << 20,
			FlushInterval: 5 * time.Millisecond,
		},
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func dataEnvelope(tag string, v float64) frame.Envelope {
	return frame.NewDataEnvelope(&frame.DataFrame{
		Tag:     tag,
		Value:   frame.F64Value(v),
		Quality: frame.QualityGood,
	})
}

// TestPublishOrderingNoLag covers spec.md 8's ordering property: with a
// subscriber that keeps up, Recv returns strictly increasing Seq with no
// gaps.
func TestPublishOrderingNoLag(t *testing.T) {
	b := newTestBus(t, 16)
	sub := b.Subscribe(AllFilter())

	const n = 50
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			_, err := b.Publish(dataEnvelope("t", float64(i)))
			require.NoError(t, err)
		}
	}()

	for i := 0; i < n; i++ {
		env, err := sub.Recv()
		require.NoError(t, err)
		require.Equal(t, uint64(i), env.Seq)
	}
	wg.Wait()
}

// TestMultiSubscriberFanout checks every subscriber observes the same
// sequence independently.
func TestMultiSubscriberFanout(t *testing.T) {
	b := newTestBus(t, 16)
	sub1 := b.Subscribe(AllFilter())
	sub2 := b.Subscribe(AllFilter())

	_, err := b.Publish(dataEnvelope("a", 1))
	require.NoError(t, err)
	_, err = b.Publish(dataEnvelope("b", 2))
	require.NoError(t, err)

	for _, s := range []*Receiver{sub1, sub2} {
		e0, err := s.Recv()
		require.NoError(t, err)
		require.Equal(t, uint64(0), e0.Seq)
		e1, err := s.Recv()
		require.NoError(t, err)
		require.Equal(t, uint64(1), e1.Seq)
	}
}

// TestLaggingSubscriber reproduces the scenario in spec.md 8: a
// capacity-8 ring, a sleeping consumer, and 10 published frames. The
// first 8 Recv calls must not all succeed before the lag is detected,
// and the final Recv calls must observe the two trailing, unlagged
// envelopes.
func TestLaggingSubscriber(t *testing.T) {
	b := newTestBus(t, 8)
	sub := b.Subscribe(AllFilter())

	for i := 0; i < 10; i++ {
		_, err := b.Publish(dataEnvelope("t", float64(i)))
		require.NoError(t, err)
	}

	var lagErr *LagError
	sawLag := false
	var lastSeq uint64
	for {
		env, err := sub.Recv()
		if err != nil {
			require.True(t, errors.As(err, &lagErr))
			require.GreaterOrEqual(t, lagErr.Dropped, uint64(2))
			sawLag = true
			continue
		}
		lastSeq = env.Seq
		if lastSeq == 9 {
			break
		}
	}
	require.True(t, sawLag)
	require.Equal(t, uint64(9), lastSeq)
}

// TestFilterDataOnly verifies subscriber-side filtering skips non-data
// envelopes without the caller observing them.
func TestFilterDataOnly(t *testing.T) {
	b := newTestBus(t, 16)
	sub := b.Subscribe(DataOnlyFilter())

	_, err := b.Publish(frame.NewCmdEnvelope(&frame.CmdFrame{CmdID: 1, Tag: "x"}))
	require.NoError(t, err)
	_, err = b.Publish(dataEnvelope("t", 1))
	require.NoError(t, err)

	env, err := sub.Recv()
	require.NoError(t, err)
	require.Equal(t, frame.EnvelopeData, env.Kind)
}

// TestRecoverAfterRestart simulates a crash: a bus is published to, then
// a fresh bus is opened against the same WAL directory and must recover
// every previously published envelope in order.
func TestRecoverAfterRestart(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Capacity: 16, WAL: WALConfig{DataDir: dir, SegmentBytes: 1 << 20, FlushInterval: 5 * time.Millisecond}}

	b1, err := New(cfg, nil)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := b1.Publish(dataEnvelope("t", float64(i)))
		require.NoError(t, err)
	}
	require.NoError(t, b1.Close())

	b2, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b2.Close() })

	recovered, err := b2.Recover()
	require.NoError(t, err)
	require.Len(t, recovered, 5)
	for i, env := range recovered {
		require.Equal(t, uint64(i), env.Seq)
	}

	// Publishing after recovery continues the seq sequence.
	seq, err := b2.Publish(dataEnvelope("t", 99))
	require.NoError(t, err)
	require.Equal(t, uint64(5), seq)
}

// TestRecoverRespectsGC checks that envelopes below the GC watermark are
// not replayed.
func TestRecoverRespectsGC(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Capacity: 16, WAL: WALConfig{DataDir: dir, SegmentBytes: 1 << 20, FlushInterval: 5 * time.Millisecond}}

	b1, err := New(cfg, nil)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := b1.Publish(dataEnvelope("t", float64(i)))
		require.NoError(t, err)
	}
	require.NoError(t, b1.GC(3))
	require.NoError(t, b1.Close())

	b2, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b2.Close() })

	recovered, err := b2.Recover()
	require.NoError(t, err)
	for _, env := range recovered {
		require.GreaterOrEqual(t, env.Seq, uint64(3))
	}
}

func TestSubscribeStartsAtCurrentHead(t *testing.T) {
	b := newTestBus(t, 16)
	_, err := b.Publish(dataEnvelope("before", 1))
	require.NoError(t, err)

	sub := b.Subscribe(AllFilter())
	_, err = b.Publish(dataEnvelope("after", 2))
	require.NoError(t, err)

	env, err := sub.Recv()
	require.NoError(t, err)
	require.Equal(t, "after", env.Data.Tag)
}

func TestCloseUnblocksReceiver(t *testing.T) {
	b := newTestBus(t, 16)
	sub := b.Subscribe(AllFilter())

	done := make(chan error, 1)
	go func() {
		_, err := sub.Recv()
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, b.Close())

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Recv did not unblock after Close")
	}
}
