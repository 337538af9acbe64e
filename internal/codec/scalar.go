// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package codec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ErrRegisterWidthMismatch is returned when a point's datatype does not
// fit within the register words supplied for decode/encode.
var ErrRegisterWidthMismatch = fmt.Errorf("codec: register width mismatch")

// orderWords returns words in wire-write order: for WordOrderBig the
// first register is the most significant word (Modbus default); for
// WordOrderLittle the register order is reversed while each register's
// two bytes stay big-endian on the wire (spec.md 4.D).
func orderWords(words []uint16, order WordOrder) []uint16 {
	if order == WordOrderBig {
		return words
	}
	out := make([]uint16, len(words))
	for i, w := range words {
		out[len(words)-1-i] = w
	}
	return out
}

// wordsToBytes packs words (already in big-endian significance order)
// into a big-endian byte buffer, matching Modbus's on-wire byte order
// within each register.
func wordsToBytes(words []uint16) []byte {
	buf := make([]byte, len(words)*2)
	for i, w := range words {
		binary.BigEndian.PutUint16(buf[i*2:], w)
	}
	return buf
}

func bytesToWords(b []byte) []uint16 {
	words := make([]uint16, len(b)/2)
	for i := range words {
		words[i] = binary.BigEndian.Uint16(b[i*2:])
	}
	return words
}

// DecodeScalar interprets words (exactly DataType.RegWidth() long) as dt,
// applying order for multi-register types.
func DecodeScalar(words []uint16, dt DataType, order WordOrder) (float64, bool, error) {
	if len(words) != dt.RegWidth() {
		return 0, false, fmt.Errorf("%w: %s needs %d registers, got %d", ErrRegisterWidthMismatch, dt, dt.RegWidth(), len(words))
	}
	ordered := orderWords(words, order)
	raw := wordsToBytes(ordered)

	switch dt {
	case TypeBool:
		return 0, words[0] != 0, nil
	case TypeU16:
		return float64(binary.BigEndian.Uint16(raw)), false, nil
	case TypeI16:
		return float64(int16(binary.BigEndian.Uint16(raw))), false, nil
	case TypeU32:
		return float64(binary.BigEndian.Uint32(raw)), false, nil
	case TypeI32:
		return float64(int32(binary.BigEndian.Uint32(raw))), false, nil
	case TypeF32:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(raw))), false, nil
	case TypeF64:
		return math.Float64frombits(binary.BigEndian.Uint64(raw)), false, nil
	default:
		return 0, false, fmt.Errorf("codec: unknown datatype %d", int(dt))
	}
}

// EncodeScalar is the inverse of DecodeScalar: it produces the register
// words for a numeric value, failing if the value cannot be represented
// in the target width (spec.md 4.D).
func EncodeScalar(v float64, dt DataType, order WordOrder) ([]uint16, error) {
	var raw []byte
	switch dt {
	case TypeBool:
		w := uint16(0)
		if v != 0 {
			w = 0xFF00
		}
		return []uint16{w}, nil
	case TypeU16:
		if v < 0 || v > math.MaxUint16 || v != math.Trunc(v) {
			return nil, fmt.Errorf("%w: %v does not fit in u16", ErrRegisterWidthMismatch, v)
		}
		raw = make([]byte, 2)
		binary.BigEndian.PutUint16(raw, uint16(v))
	case TypeI16:
		if v < math.MinInt16 || v > math.MaxInt16 || v != math.Trunc(v) {
			return nil, fmt.Errorf("%w: %v does not fit in i16", ErrRegisterWidthMismatch, v)
		}
		raw = make([]byte, 2)
		binary.BigEndian.PutUint16(raw, uint16(int16(v)))
	case TypeU32:
		if v < 0 || v > math.MaxUint32 || v != math.Trunc(v) {
			return nil, fmt.Errorf("%w: %v does not fit in u32", ErrRegisterWidthMismatch, v)
		}
		raw = make([]byte, 4)
		binary.BigEndian.PutUint32(raw, uint32(v))
	case TypeI32:
		if v < math.MinInt32 || v > math.MaxInt32 || v != math.Trunc(v) {
			return nil, fmt.Errorf("%w: %v does not fit in i32", ErrRegisterWidthMismatch, v)
		}
		raw = make([]byte, 4)
		binary.BigEndian.PutUint32(raw, uint32(int32(v)))
	case TypeF32:
		f32 := float32(v)
		raw = make([]byte, 4)
		binary.BigEndian.PutUint32(raw, math.Float32bits(f32))
	case TypeF64:
		raw = make([]byte, 8)
		binary.BigEndian.PutUint64(raw, math.Float64bits(v))
	default:
		return nil, fmt.Errorf("codec: unknown datatype %d", int(dt))
	}
	return orderWords(bytesToWords(raw), order), nil
}
