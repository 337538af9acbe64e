// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package codec

import (
	"math"

	"github.com/iotgw/edgegateway/internal/frame"
)

// CompiledPoint pairs a RegPoint with its compiled scale expression, so
// the poll loop does not recompile an expression on every cycle.
type CompiledPoint struct {
	Point RegPoint
	scale *ScaleExpr
}

// CompilePoint compiles p's scale expression once, for reuse across
// every poll cycle.
func CompilePoint(p RegPoint) (CompiledPoint, error) {
	s, err := CompileScale(p.Scale)
	if err != nil {
		return CompiledPoint{}, err
	}
	return CompiledPoint{Point: p, scale: s}, nil
}

// DecodeFrame extracts this point's words from a batch's register
// payload (words indexed relative to the batch start address), applies
// the scale expression, and returns a DataFrame. Decode or scale
// failures produce a DataFrame with QualityBad rather than an error,
// since one bad point must not fail an entire poll batch.
func (cp CompiledPoint) DecodeFrame(batchStart uint16, batchWords []uint16, timestampNs uint64) *frame.DataFrame {
	offset := int(cp.Point.Address - batchStart)
	width := cp.Point.DataType.RegWidth()
	if offset < 0 || offset+width > len(batchWords) {
		return &frame.DataFrame{Tag: cp.Point.Tag, Value: frame.F64Value(0), Quality: frame.QualityBad, TimestampNs: timestampNs}
	}

	raw, boolVal, err := DecodeScalar(batchWords[offset:offset+width], cp.Point.DataType, cp.Point.WordOrder)
	if err != nil {
		return &frame.DataFrame{Tag: cp.Point.Tag, Value: frame.F64Value(0), Quality: frame.QualityBad, TimestampNs: timestampNs}
	}
	if cp.Point.DataType == TypeBool {
		return &frame.DataFrame{Tag: cp.Point.Tag, Value: frame.BoolValue(boolVal), Quality: frame.QualityGood, TimestampNs: timestampNs}
	}

	scaled, err := cp.scale.Apply(raw)
	if err != nil {
		return &frame.DataFrame{Tag: cp.Point.Tag, Value: frame.F64Value(raw), Quality: frame.QualityBad, TimestampNs: timestampNs}
	}
	return &frame.DataFrame{Tag: cp.Point.Tag, Value: frame.F64Value(scaled), Quality: frame.QualityGood, TimestampNs: timestampNs}
}

// EncodeWrite computes the register words to write for a command value,
// applying the inverse of Scale when present. v is assumed already in
// engineering units; Invert requires an invertible "value OP
// constant" form, which covers all four supported operators. For
// integer register types, an inverted value within a relative 1e-9 of
// an integer is rounded to it, so floating-point residue such as
// 25.5 / 0.1 = 254.99999999999986 still encodes as 255.
func (cp CompiledPoint) EncodeWrite(v float64) ([]uint16, error) {
	raw, err := cp.scale.Invert(v)
	if err != nil {
		return nil, err
	}
	if cp.Point.DataType != TypeF32 && cp.Point.DataType != TypeF64 {
		if r := math.Round(raw); math.Abs(raw-r) <= 1e-9*math.Max(1, math.Abs(r)) {
			raw = r
		}
	}
	return EncodeScalar(raw, cp.Point.DataType, cp.Point.WordOrder)
}
