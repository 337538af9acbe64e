// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package driver

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iotgw/edgegateway/internal/endpoint"
	"github.com/iotgw/edgegateway/internal/frame"
)

type fakeDriver struct {
	initErr    error
	connectErr error
	runCount   int32
	failAlways bool
	blockUntil chan struct{}
}

func (f *fakeDriver) Meta() Meta                   { return Meta{Name: "fake", Version: "1.0.0", APIVersion: 1} }
func (f *fakeDriver) Init(json.RawMessage) error   { return f.initErr }
func (f *fakeDriver) Connect(*endpoint.Pool) error { return f.connectErr }
func (f *fakeDriver) Write(*frame.CmdFrame) error  { return nil }
func (f *fakeDriver) Shutdown() error              { return nil }

func (f *fakeDriver) ReadLoop(ctx context.Context, pub Publisher) error {
	atomic.AddInt32(&f.runCount, 1)
	if f.blockUntil != nil {
		select {
		case <-ctx.Done():
			return nil
		case <-f.blockUntil:
			return nil
		}
	}
	if f.failAlways {
		return errTest
	}
	<-ctx.Done()
	return nil
}

var errTest = context.DeadlineExceeded

type noopPublisher struct{}

func (noopPublisher) Publish(env frame.Envelope) (uint64, error) { return 0, nil }

func TestSupervisorInitTransitionsToActive(t *testing.T) {
	d := &fakeDriver{}
	s := NewSupervisor("d1", d, noopPublisher{}, SupervisorConfig{})
	require.NoError(t, s.Init(nil, nil))
	require.Equal(t, StateActive, s.State())
}

func TestSupervisorInitFailurePropagatesToFailedState(t *testing.T) {
	d := &fakeDriver{initErr: errTest}
	s := NewSupervisor("d1", d, noopPublisher{}, SupervisorConfig{})
	require.Error(t, s.Init(nil, nil))
	require.Equal(t, StateFailed, s.State())
}

func TestSupervisorRestartsOnAbnormalExit(t *testing.T) {
	d := &fakeDriver{failAlways: true}
	s := NewSupervisor("d1", d, noopPublisher{}, SupervisorConfig{
		BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, MaxConsecutiveFailures: 1000,
	})
	require.NoError(t, s.Init(nil, nil))
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&d.runCount) >= 3
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, s.Stop())
}

func TestSupervisorEntersFailedAfterMaxConsecutiveFailures(t *testing.T) {
	d := &fakeDriver{failAlways: true}
	s := NewSupervisor("d1", d, noopPublisher{}, SupervisorConfig{
		BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, MaxConsecutiveFailures: 3,
	})
	require.NoError(t, s.Init(nil, nil))
	s.Start(context.Background())

	require.Eventually(t, func() bool {
		return s.State() == StateFailed
	}, time.Second, time.Millisecond)
}

func TestSupervisorGracefulStopCallsShutdown(t *testing.T) {
	block := make(chan struct{})
	d := &fakeDriver{blockUntil: block}
	s := NewSupervisor("d1", d, noopPublisher{}, SupervisorConfig{GracefulTimeout: time.Second})
	require.NoError(t, s.Init(nil, nil))
	s.Start(context.Background())

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, s.Stop())
	require.Equal(t, StateShutdown, s.State())
}

func TestSupervisorAttachDetach(t *testing.T) {
	d := &fakeDriver{}
	s := NewSupervisor("d1", d, noopPublisher{}, SupervisorConfig{})
	require.NoError(t, s.Attach("dev1"))
	require.Contains(t, s.AttachedDevices(), "dev1")
	s.Detach("dev1")
	require.NotContains(t, s.AttachedDevices(), "dev1")
}

func TestBackoffWithJitterClampsToMax(t *testing.T) {
	d := backoffWithJitter(time.Second, 2*time.Second, 10, 0.2)
	require.LessOrEqual(t, d, 2*time.Second+400*time.Millisecond)
}
