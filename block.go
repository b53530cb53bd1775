// Copyright 2024 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package pgzsink

// block is one partition of the input stream, owned exclusively by
// whichever pipeline stage currently holds it (front-end buffer,
// dispatcher, or worker). It is never aliased: ownership transfers by
// channel send. seq is the block's position in input order (0-based),
// carried through only for Progress reporting and diagnostics -- output
// ordering itself is structural, enforced by the ingest/emit channels,
// never by seq comparisons.
type block struct {
	seq  uint64
	data []byte
}
