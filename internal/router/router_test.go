// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iotgw/edgegateway/internal/bus"
	"github.com/iotgw/edgegateway/internal/frame"
)

func newTestRouter(t *testing.T, cfg Config) (*Router, *bus.Bus) {
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

	r, err := New(b, cfg, nil)
	require.NoError(t, err)
	r.Start()
	t.Cleanup(func() { _ = r.Stop() })
	return r, b
}

func TestSubmitRejectsDuplicateCmdID(t *testing.T) {
	r, _ := newTestRouter(t, Config{})
	cmd := &frame.CmdFrame{CmdID: 1, Tag: "plc1.temp", Priority: frame.PriorityNormal}
	_, err := r.Submit(cmd)
	require.NoError(t, err)

	_, err = r.Submit(cmd)
	require.ErrorIs(t, err, ErrDuplicateCmdID)
}

func TestDispatchedCommandAppearsOnBus(t *testing.T) {
	r, b := newTestRouter(t, Config{TickInterval: time.Millisecond})
	sub := b.Subscribe(bus.CmdOnlyFilter())
	defer sub.Close()

	cmd := &frame.CmdFrame{CmdID: 42, Tag: "plc1.setpoint", Priority: frame.PriorityHigh}
	_, err := r.Submit(cmd)
	require.NoError(t, err)

	env, err := sub.Recv()
	require.NoError(t, err)
	require.Equal(t, frame.EnvelopeCmd, env.Kind)
	require.Equal(t, uint64(42), env.Cmd.CmdID)
}

func TestAckCorrelationDeliversToWaiter(t *testing.T) {
	r, b := newTestRouter(t, Config{TickInterval: time.Millisecond})

	cmd := &frame.CmdFrame{CmdID: 7, Tag: "plc1.setpoint", Priority: frame.PriorityNormal}
	ackCh, err := r.Submit(cmd)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := b.Publish(frame.NewCmdAckEnvelope(&frame.CmdAckFrame{CmdID: 7, Success: true}))
		return err == nil
	}, time.Second, time.Millisecond)

	select {
	case ack := <-ackCh:
		require.True(t, ack.Success)
		require.Equal(t, uint64(7), ack.CmdID)
	case <-time.After(time.Second):
		t.Fatal("ack not delivered")
	}
}

func TestUnknownAckIsDropped(t *testing.T) {
	r, b := newTestRouter(t, Config{TickInterval: time.Millisecond})
	_, err := b.Publish(frame.NewCmdAckEnvelope(&frame.CmdAckFrame{CmdID: 9999, Success: true}))
	require.NoError(t, err)

	// no waiting Submit call registered cmd_id 9999; nothing should panic
	// or block, and the router keeps serving subsequent commands.
	cmd := &frame.CmdFrame{CmdID: 1, Tag: "plc1.x", Priority: frame.PriorityLow}
	ackCh, err := r.Submit(cmd)
	require.NoError(t, err)
	select {
	case <-ackCh:
		t.Fatal("unexpected ack delivery")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTimeoutSweepSignalsAckChannel(t *testing.T) {
	r, _ := newTestRouter(t, Config{
		TickInterval:  time.Millisecond,
		SweepInterval: 10 * time.Millisecond,
	})

	cmd := &frame.CmdFrame{CmdID: 5, Tag: "plc1.x", Priority: frame.PriorityLow, TimeoutMs: 5}
	ackCh, err := r.Submit(cmd)
	require.NoError(t, err)

	select {
	case ack := <-ackCh:
		require.False(t, ack.Success)
		require.Equal(t, "timeout", ack.ErrorMsg)
	case <-time.After(time.Second):
		t.Fatal("timeout ack not delivered")
	}
}
