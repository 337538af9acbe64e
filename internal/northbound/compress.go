// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package northbound

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// CompressConfig tunes zstd compression of outbound batch payloads.
type CompressConfig struct {
	Enabled   bool
	Threshold int // bytes; only payloads larger than this are compressed
	Level     int // zstd.EncoderLevel value, default 2 (zstd.SpeedDefault)
}

func (c *CompressConfig) setDefaults() {
	if c.Threshold <= 0 {
		c.Threshold = 1024
	}
	if c.Level <= 0 {
		c.Level = int(zstd.SpeedDefault)
	}
}

// Compressor wraps a reusable zstd encoder. zstd.NewWriter is expensive to
// construct per call, so one encoder is built per Compressor and reused
// across every CompressIfAboveThreshold call (the library's own EncodeAll
// is safe for concurrent use on one *zstd.Encoder).
type Compressor struct {
	cfg CompressConfig
	enc *zstd.Encoder

	once    sync.Once
	initErr error
}

// NewCompressor builds a Compressor from cfg. The underlying zstd encoder
// is constructed lazily on first use so a disabled Compressor never pays
// for one.
func NewCompressor(cfg CompressConfig) *Compressor {
	cfg.setDefaults()
	return &Compressor{cfg: cfg}
}

func (c *Compressor) encoder() (*zstd.Encoder, error) {
	c.once.Do(func() {
		c.enc, c.initErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevel(c.cfg.Level)))
	})
	return c.enc, c.initErr
}

// CompressIfAboveThreshold applies zstd to data and returns (compressed,
// true) if compression is enabled and len(data) exceeds the configured
// threshold; otherwise it returns (data, false) unchanged. The boolean is
// the out-of-band compression indicator spec.md 4.H says must travel with
// the message (carried by the caller as a topic suffix or MQTT
// user-property, not encoded into the payload itself).
func (c *Compressor) CompressIfAboveThreshold(data []byte) ([]byte, bool, error) {
	if !c.cfg.Enabled || len(data) <= c.cfg.Threshold {
		return data, false, nil
	}
	enc, err := c.encoder()
	if err != nil {
		return nil, false, fmt.Errorf("northbound: zstd encoder: %w", err)
	}
	return enc.EncodeAll(data, nil), true, nil
}

// Close releases the underlying encoder's resources.
func (c *Compressor) Close() error {
	if c.enc != nil {
		return c.enc.Close()
	}
	return nil
}
