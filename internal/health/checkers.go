// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package health

import (
	"fmt"
	"runtime"

	"github.com/iotgw/edgegateway/internal/driver"
	"github.com/iotgw/edgegateway/internal/endpoint"
)

// DriverChecker reports a single driver Supervisor's health from its own
// state machine: Active is Healthy, Paused is Degraded (intentionally
// idle, not broken), Failed/Shutdown is Unhealthy.
func DriverChecker(sup *driver.Supervisor) Checker {
	return func() CheckResult {
		switch sup.State() {
		case driver.StateActive:
			return CheckResult{Status: StatusHealthy}
		case driver.StatePaused:
			return CheckResult{Status: StatusDegraded}
		case driver.StateFailed:
			return CheckResult{Status: StatusUnhealthy, Error: fmt.Errorf("driver failed")}
		case driver.StateShutdown:
			return CheckResult{Status: StatusUnhealthy, Error: fmt.Errorf("driver shut down")}
		default:
			return CheckResult{Status: StatusUnknown}
		}
	}
}

// EndpointRegistryChecker reports Degraded if any endpoint's circuit
// breaker is Open or HalfOpen (a device is currently unreachable or being
// probed), Healthy if every breaker is Closed, Unknown if no endpoints
// have been registered yet.
func EndpointRegistryChecker(reg *endpoint.Registry) Checker {
	return func() CheckResult {
		snap := reg.Snapshot()
		if len(snap) == 0 {
			return CheckResult{Status: StatusUnknown}
		}
		for _, state := range snap {
			if state != endpoint.StateClosed {
				return CheckResult{Status: StatusDegraded, Error: fmt.Errorf("one or more endpoint circuit breakers are open")}
			}
		}
		return CheckResult{Status: StatusHealthy}
	}
}

// SystemChecker reports coarse process health (goroutine count), flagging
// Degraded above a configurable threshold as a cheap leak indicator. It
// never reports Unhealthy on its own — runtime exhaustion shows up first
// as failures in the components that actually depend on it.
func SystemChecker(maxGoroutines int) Checker {
	if maxGoroutines <= 0 {
		maxGoroutines = 10000
	}
	return func() CheckResult {
		n := runtime.NumGoroutine()
		if n > maxGoroutines {
			return CheckResult{Status: StatusDegraded, Error: fmt.Errorf("goroutine count %d exceeds threshold %d", n, maxGoroutines)}
		}
		return CheckResult{Status: StatusHealthy}
	}
}
