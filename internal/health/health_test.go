// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package health

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAggregatorOverallHealthyWhenAllHealthy(t *testing.T) {
	a := NewAggregator(time.Hour)
	a.Register("a", func() CheckResult { return CheckResult{Status: StatusHealthy} })
	a.Register("b", func() CheckResult { return CheckResult{Status: StatusHealthy} })
	a.Start()
	defer a.Stop()

	snap := a.Snapshot()
	require.Equal(t, StatusHealthy, snap.Overall)
	require.Len(t, snap.Components, 2)
}

func TestAggregatorOverallIsWorstOfAll(t *testing.T) {
	a := NewAggregator(time.Hour)
	a.Register("good", func() CheckResult { return CheckResult{Status: StatusHealthy} })
	a.Register("bad", func() CheckResult { return CheckResult{Status: StatusUnhealthy, Error: fmt.Errorf("boom")} })
	a.Register("meh", func() CheckResult { return CheckResult{Status: StatusDegraded} })
	a.Start()
	defer a.Stop()

	snap := a.Snapshot()
	require.Equal(t, StatusUnhealthy, snap.Overall)
}

func TestAggregatorUnknownWithNoCheckers(t *testing.T) {
	a := NewAggregator(time.Hour)
	a.Start()
	defer a.Stop()
	require.Equal(t, StatusUnknown, a.Snapshot().Overall)
}

func TestAggregatorUnregisterRemovesResult(t *testing.T) {
	a := NewAggregator(time.Hour)
	a.Register("a", func() CheckResult { return CheckResult{Status: StatusHealthy} })
	a.Start()
	defer a.Stop()
	require.Len(t, a.Snapshot().Components, 1)

	a.Unregister("a")
	require.Len(t, a.Snapshot().Components, 0)
}

func TestAggregatorPollsOnInterval(t *testing.T) {
	a := NewAggregator(10 * time.Millisecond)
	calls := 0
	a.Register("a", func() CheckResult {
		calls++
		return CheckResult{Status: StatusHealthy}
	})
	a.Start()
	defer a.Stop()

	require.Eventually(t, func() bool { return calls >= 3 }, time.Second, 5*time.Millisecond)
}

func TestHandlerReturns200WhenHealthy(t *testing.T) {
	a := NewAggregator(time.Hour)
	a.Register("a", func() CheckResult { return CheckResult{Status: StatusHealthy} })
	a.Start()
	defer a.Stop()

	rr := httptest.NewRecorder()
	a.Handler()(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestHandlerReturns503WhenUnhealthy(t *testing.T) {
	a := NewAggregator(time.Hour)
	a.Register("a", func() CheckResult { return CheckResult{Status: StatusUnhealthy, Error: fmt.Errorf("down")} })
	a.Start()
	defer a.Stop()

	rr := httptest.NewRecorder()
	a.Handler()(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Contains(t, rr.Body.String(), "down")
}
