// Copyright 2024 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package pgzsink

import (
	"bytes"
	"compress/gzip"
	"fmt"

	klauspost "github.com/klauspost/compress/gzip"
)

// Codec encodes a single block of bytes into a standalone gzip member at
// the given compression level. Each call is independent: no dictionary or
// other state is shared across calls, so the resulting members can be
// concatenated freely (per RFC 1952's multi-member rule).
type Codec interface {
	Encode(level int, p []byte) ([]byte, error)
}

// GzipCodec encodes blocks using the standard library's compress/gzip. It
// is the default codec: zero additional dependencies.
type GzipCodec struct{}

// Encode implements Codec.
func (GzipCodec) Encode(level int, p []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("pgzsink: gzip writer: %w", err)
	}
	if _, err := w.Write(p); err != nil {
		w.Close()
		return nil, fmt.Errorf("pgzsink: gzip write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("pgzsink: gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

// KlauspostCodec encodes blocks using github.com/klauspost/compress/gzip,
// a drop-in replacement with a faster DEFLATE implementation. Opt in via
// Builder.Codec(KlauspostCodec{}) when throughput matters more than
// avoiding the extra dependency.
type KlauspostCodec struct{}

// Encode implements Codec.
func (KlauspostCodec) Encode(level int, p []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := klauspost.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("pgzsink: klauspost gzip writer: %w", err)
	}
	if _, err := w.Write(p); err != nil {
		w.Close()
		return nil, fmt.Errorf("pgzsink: klauspost gzip write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("pgzsink: klauspost gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

var (
	_ Codec = GzipCodec{}
	_ Codec = KlauspostCodec{}
)
