// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScaleEmptyIsIdentity(t *testing.T) {
	s, err := CompileScale("")
	require.NoError(t, err)
	got, err := s.Apply(42)
	require.NoError(t, err)
	require.Equal(t, 42.0, got)
}

func TestScaleMultiply(t *testing.T) {
	s, err := CompileScale("value * 0.1")
	require.NoError(t, err)
	got, err := s.Apply(255)
	require.NoError(t, err)
	require.InDelta(t, 25.5, got, 1e-9)
}

func TestScaleDivideByZeroFailsQuality(t *testing.T) {
	s, err := CompileScale("value / 0")
	require.NoError(t, err)
	_, err = s.Apply(10)
	require.ErrorIs(t, err, ErrDivisionByZero)
}

func TestScaleAddSubtract(t *testing.T) {
	add, err := CompileScale("value + 5")
	require.NoError(t, err)
	got, err := add.Apply(10)
	require.NoError(t, err)
	require.Equal(t, 15.0, got)

	sub, err := CompileScale("value - 5")
	require.NoError(t, err)
	got, err = sub.Apply(10)
	require.NoError(t, err)
	require.Equal(t, 5.0, got)
}

func TestScaleInvertRoundTrip(t *testing.T) {
	s, err := CompileScale("value * 0.1")
	require.NoError(t, err)
	scaled, err := s.Apply(255)
	require.NoError(t, err)
	raw, err := s.Invert(scaled)
	require.NoError(t, err)
	require.InDelta(t, 255, raw, 1e-6)
}

func TestScaleRejectsUnsupportedGrammar(t *testing.T) {
	_, err := CompileScale("value * value")
	require.ErrorIs(t, err, errInvalidScale)
}
