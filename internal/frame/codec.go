// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// This file implements the deterministic binary encoding of spec.md 4.A:
// little-endian scalars, length-prefixed strings/bytes/maps, a 1-byte kind
// tag and 4-byte length prefix per envelope, no external schema registry.
// The record layout mirrors the manual binary framing style used by the
// teacher's WAL (pkg/metricstore/walCheckpoint.go): fixed-width headers
// followed by length-prefixed variable fields, decoded with encoding/binary
// rather than reflection-based serialization.
package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	ErrTruncated   = errors.New("frame: truncated record")
	ErrUnknownKind = errors.New("frame: unknown kind tag")
	ErrTagTooLong  = errors.New("frame: tag exceeds 255 bytes")
)

// MaxTagLen is the maximum length of a dotted tag identifier (spec.md 3).
const MaxTagLen = 255

// EncodeEnvelope serializes env deterministically. Decoding the result with
// DecodeEnvelope yields a byte-for-byte equal Envelope (spec.md 8.3).
func EncodeEnvelope(env Envelope) ([]byte, error) {
	var payload bytes.Buffer
	var err error

	switch env.Kind {
	case EnvelopeData:
		err = encodeDataFrame(&payload, env.Data)
	case EnvelopeCmd:
		err = encodeCmdFrame(&payload, env.Cmd)
	case EnvelopeCmdAck:
		err = encodeCmdAckFrame(&payload, env.CmdAck)
	default:
		return nil, ErrUnknownKind
	}
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 13+payload.Len())
	out = append(out, byte(env.Kind))
	out = appendU64(out, env.Seq)
	out = appendU32(out, uint32(payload.Len()))
	out = append(out, payload.Bytes()...)
	return out, nil
}

// DecodeEnvelope parses a single envelope from the front of b, returning the
// envelope and the number of bytes consumed.
func DecodeEnvelope(b []byte) (Envelope, int, error) {
	if len(b) < 13 {
		return Envelope{}, 0, ErrTruncated
	}
	kind := EnvelopeKind(b[0])
	seq := binary.LittleEndian.Uint64(b[1:9])
	plen := binary.LittleEndian.Uint32(b[9:13])
	total := 13 + int(plen)
	if len(b) < total {
		return Envelope{}, 0, ErrTruncated
	}
	payload := b[13:total]

	env := Envelope{Seq: seq, Kind: kind}
	var err error
	switch kind {
	case EnvelopeData:
		env.Data, err = decodeDataFrame(payload)
	case EnvelopeCmd:
		env.Cmd, err = decodeCmdFrame(payload)
	case EnvelopeCmdAck:
		env.CmdAck, err = decodeCmdAckFrame(payload)
	default:
		return Envelope{}, 0, fmt.Errorf("%w: %d", ErrUnknownKind, kind)
	}
	if err != nil {
		return Envelope{}, 0, err
	}
	return env, total, nil
}

// --- value ---

func encodeValue(buf *bytes.Buffer, v Value) error {
	buf.WriteByte(byte(v.kind))
	switch v.kind {
	case KindBool:
		if v.b {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case KindI64:
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], uint64(v.i))
		buf.Write(tmp[:])
	case KindF64:
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v.f))
		buf.Write(tmp[:])
	case KindString:
		writeLenPrefixed32(buf, []byte(v.s))
	case KindBytes:
		writeLenPrefixed32(buf, v.by)
	default:
		return fmt.Errorf("frame: encode: %w: %d", ErrUnknownKind, v.kind)
	}
	return nil
}

func decodeValue(b []byte) (Value, int, error) {
	if len(b) < 1 {
		return Value{}, 0, ErrTruncated
	}
	kind := Kind(b[0])
	rest := b[1:]
	switch kind {
	case KindBool:
		if len(rest) < 1 {
			return Value{}, 0, ErrTruncated
		}
		return BoolValue(rest[0] != 0), 2, nil
	case KindI64:
		if len(rest) < 8 {
			return Value{}, 0, ErrTruncated
		}
		return I64Value(int64(binary.LittleEndian.Uint64(rest[:8]))), 9, nil
	case KindF64:
		if len(rest) < 8 {
			return Value{}, 0, ErrTruncated
		}
		return F64Value(math.Float64frombits(binary.LittleEndian.Uint64(rest[:8]))), 9, nil
	case KindString:
		s, n, err := readLenPrefixed32(rest)
		if err != nil {
			return Value{}, 0, err
		}
		return StringValue(string(s)), 1 + n, nil
	case KindBytes:
		by, n, err := readLenPrefixed32(rest)
		if err != nil {
			return Value{}, 0, err
		}
		cp := make([]byte, len(by))
		copy(cp, by)
		return BytesValue(cp), 1 + n, nil
	default:
		return Value{}, 0, fmt.Errorf("frame: decode: %w: %d", ErrUnknownKind, kind)
	}
}

// --- DataFrame ---

func encodeDataFrame(buf *bytes.Buffer, f *DataFrame) error {
	if len(f.Tag) > MaxTagLen {
		return ErrTagTooLong
	}
	writeLenPrefixed16(buf, []byte(f.Tag))
	if err := encodeValue(buf, f.Value); err != nil {
		return err
	}
	buf.WriteByte(byte(f.Quality))
	appendU64Buf(buf, f.TimestampNs)
	writeStringMap(buf, f.Meta)
	return nil
}

func decodeDataFrame(b []byte) (*DataFrame, error) {
	tag, n, err := readLenPrefixed16(b)
	if err != nil {
		return nil, err
	}
	b = b[n:]

	val, n, err := decodeValue(b)
	if err != nil {
		return nil, err
	}
	b = b[n:]

	if len(b) < 1+8 {
		return nil, ErrTruncated
	}
	quality := Quality(b[0])
	ts := binary.LittleEndian.Uint64(b[1:9])
	b = b[9:]

	meta, _, err := readStringMap(b)
	if err != nil {
		return nil, err
	}

	return &DataFrame{
		Tag:         string(tag),
		Value:       val,
		Quality:     quality,
		TimestampNs: ts,
		Meta:        meta,
	}, nil
}

// --- CmdFrame ---

func encodeCmdFrame(buf *bytes.Buffer, f *CmdFrame) error {
	appendU64Buf(buf, f.CmdID)
	writeLenPrefixed16(buf, []byte(f.Tag))
	if err := encodeValue(buf, f.Value); err != nil {
		return err
	}
	writeLenPrefixed16(buf, []byte(f.Origin))
	appendU32Buf(buf, uint32(f.Priority))
	appendU32Buf(buf, f.TimeoutMs)
	appendU64Buf(buf, f.TimestampNs)
	return nil
}

func decodeCmdFrame(b []byte) (*CmdFrame, error) {
	if len(b) < 8 {
		return nil, ErrTruncated
	}
	cmdID := binary.LittleEndian.Uint64(b[:8])
	b = b[8:]

	tag, n, err := readLenPrefixed16(b)
	if err != nil {
		return nil, err
	}
	b = b[n:]

	val, n, err := decodeValue(b)
	if err != nil {
		return nil, err
	}
	b = b[n:]

	origin, n, err := readLenPrefixed16(b)
	if err != nil {
		return nil, err
	}
	b = b[n:]

	if len(b) < 16 {
		return nil, ErrTruncated
	}
	priority := int32(binary.LittleEndian.Uint32(b[0:4]))
	timeoutMs := binary.LittleEndian.Uint32(b[4:8])
	ts := binary.LittleEndian.Uint64(b[8:16])

	return &CmdFrame{
		CmdID:       cmdID,
		Tag:         string(tag),
		Value:       val,
		Origin:      string(origin),
		Priority:    priority,
		TimeoutMs:   timeoutMs,
		TimestampNs: ts,
	}, nil
}

// --- CmdAckFrame ---

func encodeCmdAckFrame(buf *bytes.Buffer, f *CmdAckFrame) error {
	appendU64Buf(buf, f.CmdID)
	if f.Success {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	if f.ActualValue != nil {
		buf.WriteByte(1)
		if err := encodeValue(buf, *f.ActualValue); err != nil {
			return err
		}
	} else {
		buf.WriteByte(0)
	}
	writeLenPrefixed16(buf, []byte(f.ErrorMsg))
	appendU64Buf(buf, f.TimestampNs)
	return nil
}

func decodeCmdAckFrame(b []byte) (*CmdAckFrame, error) {
	if len(b) < 10 {
		return nil, ErrTruncated
	}
	cmdID := binary.LittleEndian.Uint64(b[:8])
	success := b[8] != 0
	hasVal := b[9] != 0
	b = b[10:]

	var actual *Value
	if hasVal {
		v, n, err := decodeValue(b)
		if err != nil {
			return nil, err
		}
		actual = &v
		b = b[n:]
	}

	errMsg, n, err := readLenPrefixed16(b)
	if err != nil {
		return nil, err
	}
	b = b[n:]

	if len(b) < 8 {
		return nil, ErrTruncated
	}
	ts := binary.LittleEndian.Uint64(b[:8])

	return &CmdAckFrame{
		CmdID:       cmdID,
		Success:     success,
		ActualValue: actual,
		ErrorMsg:    string(errMsg),
		TimestampNs: ts,
	}, nil
}

// --- shared helpers ---

func appendU64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU64Buf(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}

func appendU32Buf(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func writeLenPrefixed16(buf *bytes.Buffer, b []byte) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], uint16(len(b)))
	buf.Write(tmp[:])
	buf.Write(b)
}

func readLenPrefixed16(b []byte) ([]byte, int, error) {
	if len(b) < 2 {
		return nil, 0, ErrTruncated
	}
	l := int(binary.LittleEndian.Uint16(b[:2]))
	if len(b) < 2+l {
		return nil, 0, ErrTruncated
	}
	return b[2 : 2+l], 2 + l, nil
}

func writeLenPrefixed32(buf *bytes.Buffer, b []byte) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(len(b)))
	buf.Write(tmp[:])
	buf.Write(b)
}

func readLenPrefixed32(b []byte) ([]byte, int, error) {
	if len(b) < 4 {
		return nil, 0, ErrTruncated
	}
	l := int(binary.LittleEndian.Uint32(b[:4]))
	if len(b) < 4+l {
		return nil, 0, ErrTruncated
	}
	return b[4 : 4+l], 4 + l, nil
}

func writeStringMap(buf *bytes.Buffer, m map[string]string) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], uint16(len(m)))
	buf.Write(tmp[:])
	// Deterministic iteration order is required for byte-equal round trips.
	for _, k := range sortedKeys(m) {
		writeLenPrefixed16(buf, []byte(k))
		writeLenPrefixed16(buf, []byte(m[k]))
	}
}

func readStringMap(b []byte) (map[string]string, int, error) {
	if len(b) < 2 {
		return nil, 0, ErrTruncated
	}
	count := int(binary.LittleEndian.Uint16(b[:2]))
	b = b[2:]
	consumed := 2
	if count == 0 {
		return nil, consumed, nil
	}
	m := make(map[string]string, count)
	for i := 0; i < count; i++ {
		k, n, err := readLenPrefixed16(b)
		if err != nil {
			return nil, 0, err
		}
		b = b[n:]
		consumed += n

		v, n, err := readLenPrefixed16(b)
		if err != nil {
			return nil, 0, err
		}
		b = b[n:]
		consumed += n

		m[string(k)] = string(v)
	}
	return m, consumed, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// insertion sort is fine at map-sized-meta scale and avoids importing sort here
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}
