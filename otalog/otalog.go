/*
 * Copyright (c) 2024, The esp-homekit-ota authors
 * All rights reserved.
 *
 * Redistribution and use in source and binary forms, with or without
 * modification, are permitted provided that the following conditions are met:
 *
 *  * Redistributions of source code must retain the above copyright notice,
 *    this list of conditions and the following disclaimer.
 *
 *  * Redistributions in binary form must reproduce the above copyright notice,
 *    this list of conditions and the following disclaimer in the documentation
 *    and/or other materials provided with the distribution.
 *
 * THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
 * AND ANY EXPRESS OR IMPLIED WARRANTIES ARE DISCLAIMED. IN NO EVENT SHALL THE
 * COPYRIGHT HOLDER OR CONTRIBUTORS BE LIABLE FOR ANY DAMAGES ARISING IN ANY
 * WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF
 * SUCH DAMAGE.
 */

// Package otalog is the terse phase-line logger described by the core's
// error handling design: one line per phase (INIT, NEW CONNECTION, DNS..,
// Socket.., Connect.., SSL.., DOWNLOADING FILE, Sign result: OK/ERROR) on
// top of the standard library's log.Logger.
package otalog

import (
	"io"
	"log"
)

// Logger wraps a *log.Logger. A nil *Logger is valid and silently discards
// everything, since a microcontroller build may have no UART console wired
// up at all.
type Logger struct {
	l *log.Logger
}

// New builds a Logger that writes to w.
func New(w io.Writer) *Logger {
	return &Logger{l: log.New(w, "", log.LstdFlags)}
}

// OrDiscard returns lg, or a Logger that writes nowhere if lg is nil. Every
// entry point in this module calls this once so downstream code never has
// to nil-check before logging.
func (lg *Logger) OrDiscard() *Logger {
	if lg == nil {
		return &Logger{l: log.New(io.Discard, "", 0)}
	}
	return lg
}

// Info logs an informational line.
func (lg *Logger) Info(format string, args ...interface{}) {
	if lg == nil || lg.l == nil {
		return
	}
	lg.l.Printf("INFO "+format, args...)
}

// Error logs an error line.
func (lg *Logger) Error(format string, args ...interface{}) {
	if lg == nil || lg.l == nil {
		return
	}
	lg.l.Printf("ERROR "+format, args...)
}

// Phase emits one of the bare phase markers spec'd for the core's
// user-visible behavior (e.g. "NEW CONNECTION", "DNS..", "SSL..").
func (lg *Logger) Phase(phase string) {
	if lg == nil || lg.l == nil {
		return
	}
	lg.l.Print(phase)
}
