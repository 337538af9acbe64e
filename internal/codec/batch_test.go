// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildPollBatchesMergesAdjacent(t *testing.T) {
	points := []RegPoint{
		{Tag: "a", Address: 0, Function: FuncReadHoldingRegisters, DataType: TypeU16},
		{Tag: "b", Address: 1, Function: FuncReadHoldingRegisters, DataType: TypeU16},
		{Tag: "c", Address: 2, Function: FuncReadHoldingRegisters, DataType: TypeU16},
	}
	batches := BuildPollBatches(points, 125)
	require.Len(t, batches, 1)
	require.Equal(t, uint16(0), batches[0].Start)
	require.Equal(t, uint16(3), batches[0].Count)
}

func TestBuildPollBatchesSplitsOnGap(t *testing.T) {
	points := []RegPoint{
		{Tag: "a", Address: 0, Function: FuncReadHoldingRegisters, DataType: TypeU16},
		{Tag: "b", Address: 10, Function: FuncReadHoldingRegisters, DataType: TypeU16},
	}
	batches := BuildPollBatches(points, 125)
	require.Len(t, batches, 2)
}

func TestBuildPollBatchesRespectsMaxRegsPerReq(t *testing.T) {
	points := []RegPoint{
		{Tag: "a", Address: 0, Function: FuncReadHoldingRegisters, DataType: TypeU16},
		{Tag: "b", Address: 1, Function: FuncReadHoldingRegisters, DataType: TypeU16},
		{Tag: "c", Address: 2, Function: FuncReadHoldingRegisters, DataType: TypeU16},
	}
	batches := BuildPollBatches(points, 2)
	require.Len(t, batches, 2)
	require.Equal(t, uint16(0), batches[0].Start)
	require.Equal(t, uint16(2), batches[0].Count)
	require.Equal(t, uint16(2), batches[1].Start)
	require.Equal(t, uint16(1), batches[1].Count)
}

func TestBuildPollBatchesSeparatesFunctionCodes(t *testing.T) {
	points := []RegPoint{
		{Tag: "a", Address: 0, Function: FuncReadHoldingRegisters, DataType: TypeU16},
		{Tag: "b", Address: 0, Function: FuncReadInputRegisters, DataType: TypeU16},
	}
	batches := BuildPollBatches(points, 125)
	require.Len(t, batches, 2)
}

func TestBuildPollBatchesMultiRegisterPoint(t *testing.T) {
	points := []RegPoint{
		{Tag: "a", Address: 0, Function: FuncReadHoldingRegisters, DataType: TypeF32},
		{Tag: "b", Address: 2, Function: FuncReadHoldingRegisters, DataType: TypeU16},
	}
	batches := BuildPollBatches(points, 125)
	require.Len(t, batches, 1)
	require.Equal(t, uint16(3), batches[0].Count)
}
