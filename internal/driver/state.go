// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package driver

// State is one of the Supervisor-driven driver lifecycle states
// (spec.md 4.E). Drivers never transition their own recorded state; only
// the Supervisor does.
type State int

const (
	StateInit State = iota
	StateActive
	StatePaused
	StateFailed
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateActive:
		return "active"
	case StatePaused:
		return "paused"
	case StateFailed:
		return "failed"
	case StateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}
