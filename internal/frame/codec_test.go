// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package frame

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValueRoundTrip(t *testing.T) {
	values := []Value{
		BoolValue(true),
		BoolValue(false),
		I64Value(-42),
		I64Value(0),
		F64Value(25.5),
		F64Value(math.NaN()),
		F64Value(math.Inf(1)),
		StringValue("sensor.temp"),
		StringValue(""),
		BytesValue([]byte{0x00, 0xff, 0x10}),
	}

	for _, v := range values {
		var buf bytes.Buffer
		require.NoError(t, encodeValue(&buf, v))
		got, n, err := decodeValue(buf.Bytes())
		require.NoError(t, err)
		require.Equal(t, buf.Len(), n)
		require.True(t, v.Equal(got), "round trip mismatch for %v", v)
	}
}

func TestEnvelopeRoundTripDataFrame(t *testing.T) {
	env := NewDataEnvelope(&DataFrame{
		Tag:         "plc1.sensor.temp",
		Value:       F64Value(25.0),
		Quality:     QualityGood,
		TimestampNs: 1234567890,
		Meta:        map[string]string{"unit": "C", "source": "modbus"},
	})
	env.Seq = 7

	enc, err := EncodeEnvelope(env)
	require.NoError(t, err)

	dec, n, err := DecodeEnvelope(enc)
	require.NoError(t, err)
	require.Equal(t, len(enc), n)
	require.Equal(t, env.Seq, dec.Seq)
	require.Equal(t, env.Kind, dec.Kind)
	require.Equal(t, env.Data.Tag, dec.Data.Tag)
	require.True(t, env.Data.Value.Equal(dec.Data.Value))
	require.Equal(t, env.Data.Quality, dec.Data.Quality)
	require.Equal(t, env.Data.TimestampNs, dec.Data.TimestampNs)
	require.Equal(t, env.Data.Meta, dec.Data.Meta)

	// Re-encoding the decoded envelope must byte-for-byte match the original.
	enc2, err := EncodeEnvelope(dec)
	require.NoError(t, err)
	require.Equal(t, enc, enc2)
}

func TestEnvelopeRoundTripCmdFrame(t *testing.T) {
	env := NewCmdEnvelope(&CmdFrame{
		CmdID:       42,
		Tag:         "valve.open",
		Value:       BoolValue(true),
		Origin:      "rest-api",
		Priority:    PriorityNormal,
		TimeoutMs:   5000,
		TimestampNs: 999,
	})
	env.Seq = 1

	enc, err := EncodeEnvelope(env)
	require.NoError(t, err)
	dec, _, err := DecodeEnvelope(enc)
	require.NoError(t, err)
	require.Equal(t, env.Cmd.CmdID, dec.Cmd.CmdID)
	require.Equal(t, env.Cmd.Tag, dec.Cmd.Tag)
	require.Equal(t, env.Cmd.Priority, dec.Cmd.Priority)
}

func TestEnvelopeRoundTripCmdAck(t *testing.T) {
	av := I64Value(1)
	env := NewCmdAckEnvelope(&CmdAckFrame{
		CmdID:       42,
		Success:     true,
		ActualValue: &av,
		TimestampNs: 1000,
	})
	env.Seq = 2

	enc, err := EncodeEnvelope(env)
	require.NoError(t, err)
	dec, _, err := DecodeEnvelope(enc)
	require.NoError(t, err)
	require.True(t, dec.CmdAck.Success)
	require.NotNil(t, dec.CmdAck.ActualValue)
	require.True(t, dec.CmdAck.ActualValue.Equal(av))

	envFail := NewCmdAckEnvelope(&CmdAckFrame{
		CmdID:    43,
		Success:  false,
		ErrorMsg: "timeout",
	})
	enc2, err := EncodeEnvelope(envFail)
	require.NoError(t, err)
	dec2, _, err := DecodeEnvelope(enc2)
	require.NoError(t, err)
	require.False(t, dec2.CmdAck.Success)
	require.Nil(t, dec2.CmdAck.ActualValue)
	require.Equal(t, "timeout", dec2.CmdAck.ErrorMsg)
}

func TestDecodeEnvelopeTruncated(t *testing.T) {
	_, _, err := DecodeEnvelope([]byte{0, 1, 2})
	require.ErrorIs(t, err, ErrTruncated)
}

func TestTagTooLong(t *testing.T) {
	longTag := make([]byte, MaxTagLen+1)
	for i := range longTag {
		longTag[i] = 'a'
	}
	env := NewDataEnvelope(&DataFrame{Tag: string(longTag), Value: BoolValue(true)})
	_, err := EncodeEnvelope(env)
	require.ErrorIs(t, err, ErrTagTooLong)
}
