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

// Package flashsink holds the two fetch.Sink implementations: Writer, which
// streams a firmware image into flash sector by sector while withholding
// its first byte as a commit token, and BufferSink, which appends small
// payloads (version strings, signatures) into a caller-owned buffer.
package flashsink

import (
	"sync"

	"github.com/Tedspider/esp-homekit-ota/errkind"
)

// SectorSize is the flash erase granularity.
const SectorSize = 4096

// FlashDriver is the narrow hardware interface the core needs from the
// platform's flash layer: erase, read, write, each reporting success.
type FlashDriver interface {
	EraseSector(addr uint32) error
	Write(addr uint32, data []byte) error
	Read(addr uint32, buf []byte) error
}

// FirstByteCache holds the single withheld byte of an in-progress image.
// It is the Go replacement for the reference's static file_first_byte; a
// FirstByteCache lives on the Session and is shared, by pointer, between the Writer
// that withholds the byte and the Finalize call that later plants it.
type FirstByteCache struct {
	mu    sync.Mutex
	value byte
	valid bool
}

// Set records b as the withheld first byte.
func (c *FirstByteCache) Set(b byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = b
	c.valid = true
}

// Get returns the cached byte, or ok=false if nothing has been cached yet.
func (c *FirstByteCache) Get() (byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.valid
}

// Writer streams a firmware image into flash starting at StartSector,
// erasing sectors as they're needed and withholding the image's first byte
// in FirstByte instead of writing it to the still-0xFF slot header.
type Writer struct {
	Driver      FlashDriver
	StartSector uint32
	FirstByte   *FirstByteCache

	writespace uint32
	collected  uint32
}

// Write implements fetch.Sink, dispatching one arrived chunk to flash.
func (w *Writer) Write(chunk []byte) error {
	n := uint32(len(chunk))
	if n == 0 {
		return nil
	}

	if w.writespace < n {
		// collected+writespace is always sector-aligned relative to
		// StartSector: it only changes by +SectorSize, at an erase. Erasing
		// at StartSector+collected instead (as the reference does, relying
		// on every chunk happening to be exactly one sector) would erase
		// already-written bytes whenever a Write call's size doesn't line
		// up with the sector boundary.
		next := w.StartSector + w.collected + w.writespace
		if err := w.Driver.EraseSector(next); err != nil {
			return errkind.New(errkind.FlashErase, err.Error())
		}
		w.writespace += SectorSize
	}

	var err error
	if w.collected == 0 {
		w.FirstByte.Set(chunk[0])
		if len(chunk) > 1 {
			err = w.Driver.Write(w.StartSector+1, chunk[1:])
		}
	} else {
		err = w.Driver.Write(w.StartSector+w.collected, chunk)
	}
	if err != nil {
		return errkind.New(errkind.FlashWrite, err.Error())
	}

	w.writespace -= n
	w.collected += n
	return nil
}

// FlashBacked reports that this sink requires a Content-Range response to
// learn the total image size, since flash has no room to improvise.
func (w *Writer) FlashBacked() bool { return true }

// BufferSink appends arriving chunks into a fixed-capacity caller buffer.
// Unlike the reference's buffer writer, which overwrites on every call and
// only happens to be correct because version/signature payloads fit in one
// TCP segment, BufferSink appends — a multi-segment small file is handled
// correctly rather than by accident.
type BufferSink struct {
	buf []byte
	cap int
	n   int
}

// NewBufferSink allocates a BufferSink with capacity cap bytes.
func NewBufferSink(capacity int) *BufferSink {
	return &BufferSink{buf: make([]byte, capacity), cap: capacity}
}

// Write implements fetch.Sink.
func (b *BufferSink) Write(chunk []byte) error {
	if b.n+len(chunk) > b.cap {
		return errkind.New(errkind.BufferOverflow, "payload exceeds buffer capacity")
	}
	copy(b.buf[b.n:], chunk)
	b.n += len(chunk)
	return nil
}

// FlashBacked reports false: a buffer sink can infer the total length from
// Content-Length alone when no Content-Range is present.
func (b *BufferSink) FlashBacked() bool { return false }

// Bytes returns the bytes written so far.
func (b *BufferSink) Bytes() []byte { return b.buf[:b.n] }
