// Copyright 2024 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package pgzsink

import (
	"io"
	"sync"
)

// Sink is the user-facing byte sink returned by Builder.Build. Writes
// accumulate into an internal buffer; once more than a block's worth of
// bytes has arrived, a full block is handed to the pipeline for parallel
// compression. Sink is not safe for concurrent use by multiple
// goroutines: there is exactly one producer.
type Sink struct {
	cfg   *config
	coord *coordinator
	seq   uint64
	buf   []byte

	mu     sync.Mutex // guards closed and err; buf is never touched concurrently
	closed bool
	err    error
}

func newSink(downstream io.Writer, cfg *config) *Sink {
	return &Sink{
		cfg:   cfg,
		coord: newCoordinator(downstream, cfg),
		buf:   make([]byte, 0, cfg.blockSize),
	}
}

// sticky returns the latched error, if any, set by the first failed
// operation on this Sink, or a ChannelClosedError once Finish has
// consumed the Sink. Mirrors gzipstreamwriter.go's z.err guard at the top
// of every public method.
func (s *Sink) sticky() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.closed {
		return &ChannelClosedError{Queue: "ingest"}
	}
	return nil
}

func (s *Sink) latch(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
	return s.err
}

// Write appends p to the front-end buffer. Whenever the buffer holds more
// than block_size bytes, complete blocks are split off and handed to the
// ingest queue, in order, blocking as needed: this is the sink's sole
// backpressure mechanism. On success n == len(p) always, since p is
// always appended to the buffer even when shipping a block blocks the
// caller.
//
// A single large Write may contain more than one block's worth of bytes;
// Write loops, shipping one complete block at a time, until at most
// block_size bytes remain buffered -- matching moby/pgzip's Writer.Write loop (see
// DESIGN.md).
func (s *Sink) Write(p []byte) (int, error) {
	if err := s.sticky(); err != nil {
		return 0, err
	}
	s.buf = append(s.buf, p...)
	for len(s.buf) > s.cfg.blockSize {
		if err := s.shipBlock(s.buf[:s.cfg.blockSize]); err != nil {
			return len(p), s.latch(err)
		}
		s.buf = append([]byte(nil), s.buf[s.cfg.blockSize:]...)
	}
	return len(p), nil
}

// Flush atomically takes the entire current buffer content (possibly
// empty, possibly smaller than block_size) and enqueues it as one block,
// blocking until it is accepted by the ingest queue. It does not wait for
// compression or the downstream write to complete: the block it enqueues
// becomes its own gzip member, appearing strictly before anything
// enqueued by a subsequent Write.
func (s *Sink) Flush() error {
	if err := s.sticky(); err != nil {
		return err
	}
	if err := s.flushLocked(); err != nil {
		return s.latch(err)
	}
	return nil
}

// flushLocked ships the current buffer as one block, bypassing the
// sticky/closed check: Finish uses this directly for its final flush,
// since by the time Finish runs it has already marked the Sink closed.
func (s *Sink) flushLocked() error {
	blk := s.buf
	s.buf = make([]byte, 0, s.cfg.blockSize)
	return s.shipBlock(blk)
}

func (s *Sink) shipBlock(data []byte) error {
	owned := make([]byte, len(data))
	copy(owned, data)
	blk := block{seq: s.seq, data: owned}
	s.seq++
	return s.coord.submit(blk)
}

// Finish performs one final flush, closes the ingest queue, and waits for
// the coordinator to fully drain. It returns the coordinator's aggregate
// error, if any -- the authoritative place errors raised inside the
// pipeline (compression failures, downstream write/flush failures) are
// surfaced. After Finish returns, the Sink is consumed: no further
// operation is valid.
func (s *Sink) Finish() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return s.err
	}
	s.closed = true
	s.mu.Unlock()

	flushErr := s.flushLocked()
	coordErr := s.coord.closeIngest()
	if flushErr != nil {
		return s.latch(flushErr)
	}
	if coordErr != nil {
		return s.latch(coordErr)
	}
	return nil
}
