// Copyright 2024 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package pgzsink

import "runtime"

// DefaultBlockSize is the default number of bytes per compressed block.
const DefaultBlockSize = 131072

// DefaultCompressionLevel is the default DEFLATE compression level.
const DefaultCompressionLevel = 3

// config holds the frozen, validated settings for a Sink, built from a
// Builder's accumulated options.
type config struct {
	blockSize        int
	compressionLevel int
	workerCount      int
	codec            Codec
	logger           logger
	progressCh       chan<- Progress
}

func defaultConfig() *config {
	return &config{
		blockSize:        DefaultBlockSize,
		compressionLevel: DefaultCompressionLevel,
		workerCount:      runtime.GOMAXPROCS(-1),
		codec:            GzipCodec{},
		logger:           discardLogger{},
	}
}

func (c *config) validate() error {
	if c.blockSize <= 0 {
		return &ConfigError{Field: "block_size", Reason: "must be > 0"}
	}
	if c.compressionLevel < 0 || c.compressionLevel > 9 {
		return &ConfigError{Field: "compression_level", Reason: "must be in [0, 9]"}
	}
	maxWorkers := runtime.GOMAXPROCS(-1)
	if c.workerCount < 1 || c.workerCount > maxWorkers {
		return &ConfigError{Field: "worker_count", Reason: "must be in [1, hardware_threads]"}
	}
	return nil
}
