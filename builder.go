// Copyright 2024 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package pgzsink provides a streaming byte sink that produces a valid
// gzip-format output on the fly, distributing DEFLATE compression across a
// fixed pool of worker goroutines while preserving the original input
// order. Callers write arbitrary byte chunks; the sink partitions them
// into fixed-size blocks, compresses blocks in parallel, and emits a
// single concatenated, order-preserving gzip stream to a downstream
// io.Writer.
//
// Each emitted block is its own standalone gzip member: there is no
// shared DEFLATE dictionary across blocks, so the compression ratio on
// small or highly-compressible inputs will not match a single-stream
// encoder. What is gained is that CPU-heavy compression work is no longer
// serialized behind a single producer.
package pgzsink

import (
	"io"
	"log"
)

// Builder accumulates configuration for a Sink. Every setter returns the
// Builder itself so calls can be chained; construction fails, at Build
// time, rather than panicking, mirroring
// philipaconrad-gzipstreamwriter's NewGzipStreamWriterLevel.
type Builder struct {
	downstream io.Writer
	cfg        *config
}

// NewBuilder returns a Builder that will write its compressed, ordered
// gzip stream to downstream. downstream is written to, and exclusively
// owned, by the Sink's background coordinator once Build is called.
func NewBuilder(downstream io.Writer) *Builder {
	return &Builder{
		downstream: downstream,
		cfg:        defaultConfig(),
	}
}

// BlockSize sets the number of uncompressed bytes per emitted gzip
// member. n must be > 0, checked at Build.
func (b *Builder) BlockSize(n int) *Builder {
	b.cfg.blockSize = n
	return b
}

// CompressionLevel sets the DEFLATE compression level, in [0, 9],
// checked at Build.
func (b *Builder) CompressionLevel(level int) *Builder {
	b.cfg.compressionLevel = level
	return b
}

// WorkerCount sets the number of worker goroutines used to compress
// blocks in parallel. n must be in [1, hardware_threads], checked at
// Build.
func (b *Builder) WorkerCount(n int) *Builder {
	b.cfg.workerCount = n
	return b
}

// Codec overrides the block codec. The default is GzipCodec{} (stdlib
// compress/gzip); KlauspostCodec{} is also provided for higher
// throughput.
func (b *Builder) Codec(c Codec) *Builder {
	b.cfg.codec = c
	return b
}

// Logger routes trace output through l instead of discarding it. Useful
// for diagnosing pipeline stalls; verbose by design, not intended for
// steady-state production use.
func (b *Builder) Logger(l *log.Logger) *Builder {
	b.cfg.logger = stdLogger{l: l}
	return b
}

// SendProgress arranges for one Progress event to be sent on ch per
// emitted block, in order, after its bytes have reached the downstream
// writer. ch is never closed by the Sink; the caller owns it and should
// close it only after Finish returns.
func (b *Builder) SendProgress(ch chan<- Progress) *Builder {
	b.cfg.progressCh = ch
	return b
}

// Build validates the accumulated configuration, launches the background
// coordinator, and returns a ready Sink. Configuration is frozen after
// Build: subsequent calls on the Builder do not affect the returned Sink.
func (b *Builder) Build() (*Sink, error) {
	cfg := *b.cfg
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return newSink(b.downstream, &cfg), nil
}
