// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package frame

// EnvelopeKind discriminates the payload carried by an Envelope.
type EnvelopeKind uint8

const (
	EnvelopeData EnvelopeKind = iota
	EnvelopeCmd
	EnvelopeCmdAck
)

// Envelope wraps a DataFrame, CmdFrame, or CmdAckFrame with a bus-assigned
// sequence number. The bus hands out envelopes in strictly increasing Seq
// order per subscriber (barring lag, which skips a range of Seq rather than
// reordering it).
type Envelope struct {
	Seq    uint64
	Kind   EnvelopeKind
	Data   *DataFrame
	Cmd    *CmdFrame
	CmdAck *CmdAckFrame
}

// NewDataEnvelope builds an unsequenced envelope around a DataFrame; the bus
// assigns Seq on publish.
func NewDataEnvelope(f *DataFrame) Envelope {
	return Envelope{Kind: EnvelopeData, Data: f}
}

// NewCmdEnvelope builds an unsequenced envelope around a CmdFrame.
func NewCmdEnvelope(f *CmdFrame) Envelope {
	return Envelope{Kind: EnvelopeCmd, Cmd: f}
}

// NewCmdAckEnvelope builds an unsequenced envelope around a CmdAckFrame.
func NewCmdAckEnvelope(f *CmdAckFrame) Envelope {
	return Envelope{Kind: EnvelopeCmdAck, CmdAck: f}
}
