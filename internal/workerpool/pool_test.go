// Copyright 2024 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package workerpool

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestSubmitResolves(t *testing.T) {
	p := New(4)
	defer p.Close()

	var handles []*Handle
	for i := 0; i < 20; i++ {
		i := i
		handles = append(handles, p.Submit(func() ([]byte, error) {
			return []byte(fmt.Sprintf("block-%d", i)), nil
		}))
	}
	for i, h := range handles {
		res := h.Wait()
		if res.Err != nil {
			t.Fatalf("handle %d: unexpected error: %v", i, res.Err)
		}
		if got, want := string(res.Data), fmt.Sprintf("block-%d", i); got != want {
			t.Errorf("handle %d: got %q, want %q", i, got, want)
		}
	}
}

func TestSubmitPropagatesError(t *testing.T) {
	p := New(2)
	defer p.Close()

	h := p.Submit(func() ([]byte, error) {
		return nil, fmt.Errorf("boom")
	})
	res := h.Wait()
	if res.Err == nil || res.Err.Error() != "boom" {
		t.Fatalf("got %v, want boom", res.Err)
	}
}

func TestSubmitRecoversPanic(t *testing.T) {
	p := New(1)
	defer p.Close()

	h := p.Submit(func() ([]byte, error) {
		panic("kaboom")
	})
	res := h.Wait()
	if res.Err == nil {
		t.Fatal("expected an error from a panicking job")
	}
	var pe *PanicError
	if _, ok := res.Err.(*PanicError); !ok {
		t.Fatalf("got %T (%v), want %T", res.Err, res.Err, pe)
	}

	// The pool must still be usable after a panic in one job.
	h2 := p.Submit(func() ([]byte, error) { return []byte("ok"), nil })
	if res2 := h2.Wait(); res2.Err != nil || string(res2.Data) != "ok" {
		t.Fatalf("pool did not recover from panic: %+v", res2)
	}
}

func TestCloseJoinsWorkers(t *testing.T) {
	start := NumActiveWorkers()

	p := New(8)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Submit(func() ([]byte, error) {
				time.Sleep(time.Millisecond)
				return nil, nil
			})
		}()
	}
	wg.Wait()
	p.Close()

	if got := NumActiveWorkers(); got != start {
		t.Errorf("goroutine leak: got %d active workers, want %d", got, start)
	}
}
