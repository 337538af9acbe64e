// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iotgw/edgegateway/internal/frame"
)

type captureBus struct {
	envelopes []frame.Envelope
}

func (c *captureBus) Publish(env frame.Envelope) (uint64, error) {
	c.envelopes = append(c.envelopes, env)
	return uint64(len(c.envelopes)), nil
}

func TestDevicePublisherStampsDeviceID(t *testing.T) {
	cb := &captureBus{}
	p := newDevicePublisher("plc1", cb)

	_, err := p.Publish(frame.NewDataEnvelope(&frame.DataFrame{Tag: "t1", Value: frame.F64Value(1)}))
	require.NoError(t, err)
	require.Len(t, cb.envelopes, 1)
	require.Equal(t, "plc1", cb.envelopes[0].Data.Meta["device_id"])
}

func TestDevicePublisherPassesThroughNonDataEnvelopes(t *testing.T) {
	cb := &captureBus{}
	p := newDevicePublisher("plc1", cb)

	_, err := p.Publish(frame.NewCmdAckEnvelope(&frame.CmdAckFrame{CmdID: 1}))
	require.NoError(t, err)
	require.Len(t, cb.envelopes, 1)
	require.Nil(t, cb.envelopes[0].Data)
}

func TestDevicePublisherPreservesExistingMeta(t *testing.T) {
	cb := &captureBus{}
	p := newDevicePublisher("plc1", cb)

	_, err := p.Publish(frame.NewDataEnvelope(&frame.DataFrame{
		Tag: "t1", Value: frame.F64Value(1), Meta: map[string]string{"unit": "celsius"},
	}))
	require.NoError(t, err)
	require.Equal(t, "celsius", cb.envelopes[0].Data.Meta["unit"])
	require.Equal(t, "plc1", cb.envelopes[0].Data.Meta["device_id"])
}
