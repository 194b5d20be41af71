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

// Package errkind holds the graded fetch-path error taxonomy shared by
// transport, fetch and flashsink, so a caller several layers up can still
// switch on Kind without unwrapping a chain of sentinel errors.
package errkind

import "fmt"

// Kind is one of the failure categories an OTA fetch can terminate with.
type Kind int

const (
	DNSorConnect Kind = iota + 1
	SocketCreate
	TlsHandshake
	BadStatus
	BadResponse
	RedirectLoop
	FileTooBig
	FlashErase
	FlashWrite
	BufferOverflow
	InvalidSink
)

func (k Kind) String() string {
	switch k {
	case DNSorConnect:
		return "dns-or-connect"
	case SocketCreate:
		return "socket-create"
	case TlsHandshake:
		return "tls-handshake"
	case BadStatus:
		return "bad-status"
	case BadResponse:
		return "bad-response"
	case RedirectLoop:
		return "redirect-loop"
	case FileTooBig:
		return "file-too-big"
	case FlashErase:
		return "flash-erase"
	case FlashWrite:
		return "flash-write"
	case BufferOverflow:
		return "buffer-overflow"
	case InvalidSink:
		return "invalid-sink"
	default:
		return fmt.Sprintf("errkind(%d)", int(k))
	}
}

// Error is the typed failure every fetch-path operation returns on failure.
// Detail carries the underlying cause for logs; callers that only care about
// the category should compare Kind.
type Error struct {
	Kind   Kind
	Detail string
}

// New builds an *Error of the given Kind.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return "ota: " + e.Kind.String()
	}
	return fmt.Sprintf("ota: %s: %s", e.Kind, e.Detail)
}
