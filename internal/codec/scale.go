// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// This file evaluates the restricted "value OP constant" scale
// expressions of spec.md 4.D. Compiling once with expr-lang/expr and
// running the resulting vm.Program against a small env map mirrors
// internal/tagger/classifyJob.go's rule-evaluation pattern, narrowed here
// to a single-variable arithmetic expression instead of a full
// boolean rule language.
package codec

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

var (
	// ErrDivisionByZero fails a point's quality when its scale expression
	// divides by zero (spec.md 4.D).
	ErrDivisionByZero = errors.New("codec: scale division by zero")
	errInvalidScale   = errors.New("codec: invalid scale expression")
)

// scalePattern constrains scale expressions to the grammar spec.md 4.D
// names: "value OP constant" with OP one of + - * /. Anchoring the
// grammar here (rather than trusting expr-lang's general expression
// parser) is what lets Invert recover the operator and constant needed
// for write-path encoding.
var scalePattern = regexp.MustCompile(`^\s*value\s*([+\-*/])\s*(-?[0-9]+(?:\.[0-9]+)?)\s*$`)

// ScaleExpr is a compiled "value OP constant" expression.
type ScaleExpr struct {
	src      string
	program  *vm.Program
	op       byte
	constant float64
}

// CompileScale compiles a scale expression. An empty src is valid and
// represents "no scaling" (Apply returns the raw value unchanged).
func CompileScale(src string) (*ScaleExpr, error) {
	if src == "" {
		return &ScaleExpr{src: src}, nil
	}
	m := scalePattern.FindStringSubmatch(src)
	if m == nil {
		return nil, fmt.Errorf("%w: %q: must be \"value OP constant\"", errInvalidScale, src)
	}
	constant, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", errInvalidScale, src, err)
	}
	program, err := expr.Compile(src, expr.Env(map[string]float64{"value": 0}), expr.AsFloat64())
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", errInvalidScale, src, err)
	}
	return &ScaleExpr{src: src, program: program, op: m[1][0], constant: constant}, nil
}

// Apply evaluates the scale expression against raw, returning the scaled
// result. A compiled expression that divides by zero reports
// ErrDivisionByZero so the caller can mark the point's quality bad
// instead of publishing +Inf/NaN.
func (s *ScaleExpr) Apply(raw float64) (float64, error) {
	if s.program == nil {
		return raw, nil
	}
	out, err := expr.Run(s.program, map[string]float64{"value": raw})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errInvalidScale, err)
	}
	f, ok := out.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: expression did not return a number", errInvalidScale)
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, ErrDivisionByZero
	}
	return f, nil
}

// Invert computes the raw register value that, once scaled by Apply,
// would yield v — used when encoding a write command expressed in
// engineering units back into wire units.
func (s *ScaleExpr) Invert(v float64) (float64, error) {
	if s.program == nil {
		return v, nil
	}
	switch s.op {
	case '+':
		return v - s.constant, nil
	case '-':
		return v + s.constant, nil
	case '*':
		if s.constant == 0 {
			return 0, ErrDivisionByZero
		}
		return v / s.constant, nil
	case '/':
		return v * s.constant, nil
	default:
		return 0, fmt.Errorf("%w: unknown operator %q", errInvalidScale, string(s.op))
	}
}

// String returns the original expression source, empty for no-op scales.
func (s *ScaleExpr) String() string { return s.src }
