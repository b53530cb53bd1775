// Copyright 2024 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package pgzsink

import "time"

// Progress reports one block's journey through the pipeline, sent after
// its compressed bytes have been written to the downstream sink. Events
// are sent in strictly increasing Seq order, matching emit order (and
// therefore input order).
type Progress struct {
	Seq              uint64
	UncompressedSize int
	CompressedSize   int
	CRC32            uint32
	Duration         time.Duration
}
