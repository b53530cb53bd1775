// Copyright 2024 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package pgzsink

import "log"

// logger is the minimal tracing surface the coordinator needs. It
// generalizes pbzip2's verbose-gated log.Printf calls (see parallel.go's
// trace method) into a "bring your own *log.Logger, default to discard"
// shape.
type logger interface {
	Printf(format string, args ...any)
}

// discardLogger is the default logger: it drops every message.
type discardLogger struct{}

func (discardLogger) Printf(string, ...any) {}

// stdLogger adapts a stdlib *log.Logger to the logger interface.
type stdLogger struct {
	l *log.Logger
}

func (s stdLogger) Printf(format string, args ...any) {
	s.l.Printf(format, args...)
}
