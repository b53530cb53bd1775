// Copyright 2024 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package pgzsink_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/cosnicolaou/pgzsink"
)

// panicCodec panics on every Encode call, simulating a worker goroutine
// that crashes instead of returning an error.
type panicCodec struct{}

func (panicCodec) Encode(int, []byte) ([]byte, error) {
	panic("codec exploded")
}

func TestWorkerPanicSurfacesAsWorkerPanicError(t *testing.T) {
	var out bytes.Buffer
	sink, err := pgzsink.NewBuilder(&out).
		BlockSize(1).
		WorkerCount(1).
		Codec(panicCodec{}).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	_, writeErr := sink.Write([]byte("x"))
	finishErr := sink.Finish()

	var panicErr *pgzsink.WorkerPanicError
	if errors.As(writeErr, &panicErr) || errors.As(finishErr, &panicErr) {
		return
	}
	t.Fatalf("expected a *pgzsink.WorkerPanicError from Write/Finish, got write=%v finish=%v", writeErr, finishErr)
}
