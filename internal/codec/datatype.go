// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package codec implements the register-oriented protocol codec of
// spec.md 4.D, using Modbus as the reference wire protocol: point
// batching, endian-aware scalar decode/encode, and scale-expression
// evaluation.
package codec

import "fmt"

// DataType is a register-mapped scalar type. Width is expressed in
// 16-bit Modbus registers.
type DataType int

const (
	TypeU16 DataType = iota
	TypeI16
	TypeU32
	TypeI32
	TypeF32
	TypeF64
	TypeBool
)

// RegWidth returns how many 16-bit registers a value of this type spans.
func (t DataType) RegWidth() int {
	switch t {
	case TypeU16, TypeI16, TypeBool:
		return 1
	case TypeU32, TypeI32, TypeF32:
		return 2
	case TypeF64:
		return 4
	default:
		return 1
	}
}

func (t DataType) String() string {
	switch t {
	case TypeU16:
		return "u16"
	case TypeI16:
		return "i16"
	case TypeU32:
		return "u32"
	case TypeI32:
		return "i32"
	case TypeF32:
		return "f32"
	case TypeF64:
		return "f64"
	case TypeBool:
		return "bool"
	default:
		return fmt.Sprintf("datatype(%d)", int(t))
	}
}

// WordOrder controls how multi-register values are assembled from wire
// words. Modbus is big-endian by convention; WordOrderLittle swaps the
// register order (word-swap) while each register's two bytes remain
// wire-native big-endian, per spec.md 4.D.
type WordOrder int

const (
	WordOrderBig WordOrder = iota
	WordOrderLittle
)

// FunctionCode identifies the Modbus function used to reach a point's
// register range, which determines which requests may be batched
// together (spec.md 4.D: batching is scoped to points sharing a
// function code and endpoint).
type FunctionCode int

const (
	FuncReadHoldingRegisters FunctionCode = 3
	FuncReadInputRegisters   FunctionCode = 4
	FuncReadCoils            FunctionCode = 1
	FuncWriteSingleRegister  FunctionCode = 6
	FuncWriteMultiple        FunctionCode = 16
)

// RegPoint describes a single tagged value mapped onto a register range.
type RegPoint struct {
	Tag       string
	Address   uint16
	Function  FunctionCode
	DataType  DataType
	WordOrder WordOrder
	Scale     string // optional "value OP constant" expression
}

// End returns the address of the last register this point occupies.
func (p RegPoint) End() uint16 {
	return p.Address + uint16(p.DataType.RegWidth()) - 1
}
