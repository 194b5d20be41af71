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

// Package fetch implements the ranged HTTP(S) downloader: redirect
// resolution over a minimal two-byte probe GET, and the chunked streaming
// fetch that dispatches arriving bytes to a Sink (flash or buffer backed).
// It speaks raw HTTP/1.1 over a transport.Connect'd net.Conn rather than
// net/http, since the reference never gets a full response in one read and
// this core needs to control exactly how many bytes are outstanding at
// once. Every Read is preceded by transport.ResetRecvDeadline, so a server
// that stops responding mid-stream surfaces as a timeout error instead of
// hanging forever.
package fetch

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/Tedspider/esp-homekit-ota/errkind"
	"github.com/Tedspider/esp-homekit-ota/otalog"
	"github.com/Tedspider/esp-homekit-ota/transport"
)

const (
	// ChunkSize is the per-request ranged GET size: a sector's worth of
	// payload, matching the reference's "collected+4095" window.
	ChunkSize = 4096

	// HeaderBufferLen bounds how much of a redirect-probe response this
	// fetcher will buffer while hunting for the header terminator.
	HeaderBufferLen = 4096

	// DefaultMaxRedirects is the implementation-defined MAX_302_JUMPS bound.
	DefaultMaxRedirects = 8

	recvScratch = 512
)

// Sink receives the bytes of a downloaded asset in order, starting at
// offset 0. FlashBacked reports whether the destination requires a
// Content-Range response (true) or can infer the total length from
// Content-Length alone (false, buffer sinks).
type Sink interface {
	Write(chunk []byte) error
	FlashBacked() bool
}

// Target names where a fetch begins: a repo (host[/path]) and the file to
// retrieve within it.
type Target struct {
	Host     string
	Location string
	Port     uint16
	TLS      bool
}

// Result is what a completed GetFileEx call reports back, including the
// resolved final host/location so a caller session can cache them the way
// the reference caches last_host/last_location.
type Result struct {
	BytesWritten  int
	FinalHost     string
	FinalLocation string
}

// ResolveFinalLocation issues two-byte ranged-GET probes against host/location,
// following 302 responses (including protocol-relative Location targets)
// until a 200/206 terminal response is seen. It sends at most maxRedirects
// probes, so a chain must end in 200/206 within fewer than maxRedirects
// hops; otherwise it fails with RedirectLoop.
func ResolveFinalLocation(host, location string, port uint16, tls bool, maxRedirects int, log *otalog.Logger) (finalHost, finalLocation string, err error) {
	log = log.OrDiscard()

	for jumps := 0; jumps < maxRedirects; jumps++ {
		log.Info("Forwarding: %s/%s", host, location)

		conn, cerr := transport.Connect(transport.Target{Host: host, Port: port, TLS: tls}, log)
		if cerr != nil {
			return "", "", cerr
		}

		status, headers, perr := probeLocation(conn, host, location, log)
		conn.Close()
		if perr != nil {
			return "", "", perr
		}

		switch {
		case status == 200 || status == 206:
			return host, location, nil

		case status == 302:
			value, ok := headerValue(headers, "location")
			if !ok {
				return "", "", errkind.New(errkind.BadResponse, "302 with no Location header")
			}
			nh, nl, ok := redirectTarget(value)
			if !ok {
				return "", "", errkind.New(errkind.BadResponse, "unparseable Location header")
			}
			host, location = nh, nl

		default:
			return "", "", errkind.New(errkind.BadStatus, fmt.Sprintf("status %d", status))
		}
	}

	return "", "", errkind.New(errkind.RedirectLoop, fmt.Sprintf("exceeded %d redirects", maxRedirects))
}

// probeLocation sends a "Range: bytes=0-1" GET and returns the parsed status
// code and whatever header bytes were collected.
func probeLocation(conn net.Conn, host, location string, log *otalog.Logger) (int, []byte, error) {
	req := buildRequest(host, location, "0-1")
	if _, err := conn.Write([]byte(req)); err != nil {
		return 0, nil, errkind.New(errkind.DNSorConnect, err.Error())
	}

	buf := make([]byte, 0, recvScratch)
	scratch := make([]byte, recvScratch)
	for len(buf) < HeaderBufferLen {
		if err := transport.ResetRecvDeadline(conn); err != nil {
			return 0, nil, errkind.New(errkind.DNSorConnect, err.Error())
		}
		n, err := conn.Read(scratch)
		if n > 0 {
			buf = append(buf, scratch[:n]...)
		}
		if _, ok := splitHeaderBody(buf); ok {
			break
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return 0, nil, errkind.New(errkind.DNSorConnect, err.Error())
		}
		if n == 0 {
			break
		}
	}

	code, ok := parseStatusCode(buf)
	if !ok {
		return 0, buf, errkind.New(errkind.BadResponse, "unparseable status line")
	}
	return code, buf, nil
}

// buildRequest renders the fixed HTTP/1.1 request the core ever sends: a
// ranged GET for the given byte range against location on host.
func buildRequest(host, location, rangeSpec string) string {
	var b strings.Builder
	b.WriteString("GET /")
	b.WriteString(location)
	b.WriteString(" HTTP/1.1\r\nHost: ")
	b.WriteString(host)
	b.WriteString("\r\nRange: bytes=")
	b.WriteString(rangeSpec)
	b.WriteString(headerTerminator)
	return b.String()
}

// GetFileEx streams the asset at target into sink, reconnecting
// transparently on mid-stream disconnects and enforcing maxFileSize against
// the server-declared total length.
func GetFileEx(target Target, sink Sink, maxFileSize int, log *otalog.Logger) (Result, error) {
	log = log.OrDiscard()

	host, location, err := ResolveFinalLocation(target.Host, target.Location, target.Port, target.TLS, DefaultMaxRedirects, log)
	if err != nil {
		return Result{}, err
	}

	log.Phase("DOWNLOADING FILE")

	conn, err := transport.Connect(transport.Target{Host: host, Port: target.Port, TLS: target.TLS}, log)
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if conn != nil {
			conn.Close()
		}
	}()

	collected := 0
	total := 1 // seeded so the loop body runs at least once.

	for collected < total {
		hi := collected + ChunkSize - 1
		req := buildRequest(host, location, strconv.Itoa(collected)+"-"+strconv.Itoa(hi))
		if _, err := conn.Write([]byte(req)); err != nil {
			conn.Close()
			conn, err = transport.Connect(transport.Target{Host: host, Port: target.Port, TLS: target.TLS}, log)
			if err != nil {
				return Result{}, err
			}
			continue
		}

		clength, newTotal, consumed, disconnected, ferr := readOneRequest(conn, sink, total, collected, maxFileSize)
		collected += consumed
		if ferr != nil {
			return Result{}, ferr
		}
		if newTotal > 0 {
			total = newTotal
		}
		_ = clength

		if disconnected && collected < total {
			conn.Close()
			conn, err = transport.Connect(transport.Target{Host: host, Port: target.Port, TLS: target.TLS}, log)
			if err != nil {
				return Result{}, err
			}
		}
	}

	log.Info("%d bytes received", collected)
	return Result{BytesWritten: collected, FinalHost: host, FinalLocation: location}, nil
}

// readOneRequest reads one ranged-GET response to completion (its declared
// Content-Length worth of body), dispatching body bytes to sink as they
// arrive and handling the header/body split within the first packet.
func readOneRequest(conn net.Conn, sink Sink, total, collected, maxFileSize int) (clength, newTotal, consumed int, disconnected bool, err error) {
	headerBuf := make([]byte, 0, recvScratch)
	scratch := make([]byte, recvScratch)

	var bodyStart int
	haveHeaders := false

	for !haveHeaders {
		if err := transport.ResetRecvDeadline(conn); err != nil {
			return 0, 0, 0, false, errkind.New(errkind.DNSorConnect, err.Error())
		}
		n, rerr := conn.Read(scratch)
		if n > 0 {
			headerBuf = append(headerBuf, scratch[:n]...)
		}
		if bs, ok := splitHeaderBody(headerBuf); ok {
			bodyStart = bs
			haveHeaders = true
			break
		}
		if rerr != nil {
			if rerr == io.EOF {
				return 0, 0, 0, true, nil
			}
			return 0, 0, 0, false, errkind.New(errkind.DNSorConnect, rerr.Error())
		}
		if n == 0 {
			return 0, 0, 0, true, nil
		}
		if len(headerBuf) > HeaderBufferLen {
			break
		}
	}

	cl, ok := headerInt(headerBuf, "content-length")
	if !ok {
		return 0, 0, 0, false, errkind.New(errkind.BadResponse, "missing Content-Length")
	}
	clength = cl

	if total <= 1 {
		if crValue, ok := headerValue(headerBuf, "content-range"); ok {
			t, ok := parseContentRange(crValue)
			if !ok {
				return 0, 0, 0, false, errkind.New(errkind.BadResponse, "unparseable Content-Range")
			}
			newTotal = t
		} else if sink.FlashBacked() {
			return 0, 0, 0, false, errkind.New(errkind.BadResponse, "no Content-Range for flash sink")
		} else {
			newTotal = cl
		}

		if newTotal > maxFileSize {
			return 0, 0, 0, false, errkind.New(errkind.FileTooBig, fmt.Sprintf("%d exceeds max %d", newTotal, maxFileSize))
		}
	}

	body := headerBuf[bodyStart:]
	recvBytes := len(body)
	if recvBytes > 0 {
		if err := sink.Write(body); err != nil {
			return 0, 0, 0, false, err
		}
	}

	for recvBytes < clength {
		if err := transport.ResetRecvDeadline(conn); err != nil {
			return 0, 0, 0, false, errkind.New(errkind.DNSorConnect, err.Error())
		}
		n, rerr := conn.Read(scratch)
		if n > 0 {
			chunk := scratch[:n]
			if len(chunk) > clength-recvBytes {
				chunk = chunk[:clength-recvBytes]
			}
			if err := sink.Write(chunk); err != nil {
				return 0, 0, 0, false, err
			}
			recvBytes += len(chunk)
		}
		if rerr != nil {
			if rerr == io.EOF {
				return clength, newTotal, recvBytes, recvBytes < clength, nil
			}
			return 0, 0, 0, false, errkind.New(errkind.DNSorConnect, rerr.Error())
		}
		if n == 0 {
			return clength, newTotal, recvBytes, recvBytes < clength, nil
		}
	}

	return clength, newTotal, recvBytes, false, nil
}
