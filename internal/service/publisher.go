// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package service wires every gateway component (frame bus, endpoint
// registry, driver supervisors, command router, northbound batcher,
// metrics, health) into a single running daemon, the way the teacher's
// cmd/cc-backend/{main,server,init}.go wire the HTTP server, repository,
// and background workers together.
package service

import (
	"github.com/iotgw/edgegateway/internal/driver"
	"github.com/iotgw/edgegateway/internal/frame"
)

// devicePublisher wraps the bus so every DataFrame a driver publishes is
// stamped with the device id that owns it before reaching the bus. The
// driver contract (internal/driver.Driver) never mentions a device id —
// only the Supervisor that started a particular instance of it knows
// which device that instance is attached to — so the tagging happens
// here rather than inside the driver or the bus itself.
type devicePublisher struct {
	deviceID string
	bus      driver.Publisher
}

func newDevicePublisher(deviceID string, b driver.Publisher) *devicePublisher {
	return &devicePublisher{deviceID: deviceID, bus: b}
}

func (p *devicePublisher) Publish(env frame.Envelope) (uint64, error) {
	if env.Kind == frame.EnvelopeData && env.Data != nil {
		if env.Data.Meta == nil {
			env.Data.Meta = map[string]string{}
		}
		env.Data.Meta["device_id"] = p.deviceID
	}
	return p.bus.Publish(env)
}
