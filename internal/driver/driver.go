// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package driver implements the Driver Supervisor of spec.md 4.E: the
// fixed driver contract, its state machine, and the restart/backoff run
// loop that hosts a driver's read_loop.
package driver

import (
	"context"
	"encoding/json"

	"github.com/iotgw/edgegateway/internal/endpoint"
	"github.com/iotgw/edgegateway/internal/frame"
)

// Result mirrors the spec's `Result` return convention: every driver
// lifecycle call either succeeds or reports an error, without relying on
// panics for control flow.
type Result = error

// Meta describes a driver implementation, independent of any particular
// instance of it.
type Meta struct {
	Name       string
	Version    string
	Protocol   string
	APIVersion int
}

// Publisher is the narrow slice of the bus a driver needs: the ability
// to publish data and command-ack frames, without exposing subscribe or
// WAL control.
type Publisher interface {
	Publish(env frame.Envelope) (uint64, error)
}

// Driver is the contract every protocol driver implements (spec.md 4.E).
// Supervisor owns the driver's lifecycle; the driver itself never
// transitions its own recorded state.
type Driver interface {
	Meta() Meta
	Init(configJSON json.RawMessage) Result
	Connect(pool *endpoint.Pool) Result
	ReadLoop(ctx context.Context, pub Publisher) Result
	Write(cmd *frame.CmdFrame) Result
	Shutdown() Result
}
