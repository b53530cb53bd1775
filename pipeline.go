// Copyright 2024 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package pgzsink

import (
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"time"

	cerrors "cloudeng.io/errors"

	"github.com/cosnicolaou/pgzsink/internal/workerpool"
)

// emitItem is what the dispatcher hands the writer: a handle to a
// pending compression result plus the bookkeeping the writer needs to
// report Progress without re-touching the original block.
type emitItem struct {
	seq              uint64
	uncompressedSize int
	handle           *workerpool.Handle
}

// coordinator is the pipeline's background goroutine group: a dispatcher
// that submits blocks to the worker pool and forwards handles in order,
// and a writer that resolves handles in order and writes their bytes
// downstream. It is the direct descendant of pbzip2's Decompressor
// (parallel.go), with reordering REDESIGNED from a container/heap (needed
// there because bzip2 block boundaries are discovered by scanning) to a
// plain ordered channel of handles: compression assigns no new ordering
// information, so the dispatcher's own submission order is already the
// correct emit order and no reordering step is needed.
type coordinator struct {
	cfg        *config
	downstream io.Writer

	pool     *workerpool.Pool
	ingestCh chan block
	emitCh   chan emitItem
	cancel   chan struct{}

	errs     cerrors.M
	errOnce  sync.Once
	dispWg   sync.WaitGroup
	writeWg  sync.WaitGroup
	doneCh   chan error
}

func newCoordinator(downstream io.Writer, cfg *config) *coordinator {
	c := &coordinator{
		cfg:        cfg,
		downstream: downstream,
		pool:       workerpool.New(cfg.workerCount),
		ingestCh:   make(chan block, cfg.workerCount),
		emitCh:     make(chan emitItem, cfg.workerCount),
		cancel:     make(chan struct{}),
		doneCh:     make(chan error, 1),
	}
	c.dispWg.Add(1)
	c.writeWg.Add(1)
	go func() {
		c.dispatch()
		c.dispWg.Done()
	}()
	go func() {
		c.write()
		c.writeWg.Done()
	}()
	go func() {
		c.dispWg.Wait()
		c.writeWg.Wait()
		c.pool.Close()
		c.doneCh <- c.errs.Err()
		close(c.doneCh)
	}()
	return c
}

// recordErr latches err (if non-nil) as part of the aggregate result and
// unblocks anyone selecting on cancel, so the dispatcher and any blocked
// Sink.Write/Flush caller stop trying to make progress against a pipeline
// that has already failed. Mirrors moby/pgzip's pushedErr channel.
func (c *coordinator) recordErr(err error) {
	if err == nil {
		return
	}
	c.errs.Append(err)
	c.errOnce.Do(func() { close(c.cancel) })
}

// dispatch reads blocks from the ingest queue in FIFO order, submits each
// to the worker pool, and forwards the resulting handle to the emit queue
// without awaiting it -- awaiting here would serialize the pipeline.
func (c *coordinator) dispatch() {
	defer close(c.emitCh)
	level := c.cfg.compressionLevel
	codec := c.cfg.codec
	for {
		select {
		case blk, ok := <-c.ingestCh:
			if !ok {
				return
			}
			data := blk.data
			handle := c.pool.Submit(func() ([]byte, error) {
				return codec.Encode(level, data)
			})
			item := emitItem{seq: blk.seq, uncompressedSize: len(data), handle: handle}
			select {
			case c.emitCh <- item:
			case <-c.cancel:
				return
			}
		case <-c.cancel:
			return
		}
	}
}

// write reads handles from the emit queue in FIFO order, blocks until
// each resolves, and writes the resulting bytes downstream with a single
// call. Once any error has been recorded it keeps draining the emit
// queue (so the dispatcher and worker pool can still make progress and
// exit cleanly) but stops touching the downstream writer.
func (c *coordinator) write() {
	for item := range c.emitCh {
		start := time.Now()
		res := item.handle.Wait()
		if res.Err != nil {
			var panicErr *workerpool.PanicError
			if errors.As(res.Err, &panicErr) {
				c.recordErr(&WorkerPanicError{Err: panicErr})
			} else {
				c.recordErr(&IOError{Op: "compress block", Err: res.Err})
			}
			continue
		}
		if c.failed() {
			continue
		}
		if _, err := c.downstream.Write(res.Data); err != nil {
			c.recordErr(&IOError{Op: "downstream write", Err: err})
			continue
		}
		c.cfg.logger.Printf("pgzsink: wrote block %d (%d -> %d bytes)", item.seq, item.uncompressedSize, len(res.Data))
		if c.cfg.progressCh != nil {
			c.cfg.progressCh <- Progress{
				Seq:              item.seq,
				UncompressedSize: item.uncompressedSize,
				CompressedSize:   len(res.Data),
				CRC32:            gzipMemberCRC(res.Data),
				Duration:         time.Since(start),
			}
		}
	}
	if !c.failed() {
		if f, ok := c.downstream.(interface{ Flush() error }); ok {
			if err := f.Flush(); err != nil {
				c.recordErr(&IOError{Op: "downstream flush", Err: err})
			}
		}
	}
}

func (c *coordinator) failed() bool {
	select {
	case <-c.cancel:
		return true
	default:
		return false
	}
}

// submit hands a block to the ingest queue, blocking until accepted or
// until the pipeline has already failed. It is the sole backpressure
// mechanism: the ingest queue's capacity (worker_count) bounds how far
// the front end can run ahead of compression.
func (c *coordinator) submit(blk block) error {
	select {
	case c.ingestCh <- blk:
		return nil
	case <-c.cancel:
		return &ChannelClosedError{Queue: "ingest"}
	}
}

// closeIngest signals end-of-input and waits for the coordinator to fully
// drain and terminate, returning its aggregate error.
func (c *coordinator) closeIngest() error {
	close(c.ingestCh)
	return <-c.doneCh
}

// gzipMemberCRC extracts the CRC-32 field from a standalone gzip member's
// trailer (RFC 1952: the last 8 bytes are CRC32 then ISIZE, both
// little-endian). Returns 0 if p is too short to contain a trailer.
func gzipMemberCRC(p []byte) uint32 {
	if len(p) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint32(p[len(p)-8 : len(p)-4])
}
