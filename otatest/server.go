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

// Package otatest is a fake firmware host used by the fetch and ota tests:
// an httprouter-routed server that serves ranged GETs, 302 redirect chains
// (including protocol-relative Location targets), and simulated mid-stream
// disconnects, so the fetch/flashsink/verify pipeline can be exercised
// without a real network.
package otatest

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/julienschmidt/httprouter"
)

// Asset is a static byte blob the server serves at a given path.
type Asset struct {
	Data []byte

	// TruncateAt, if nonzero, is an absolute byte offset into Data. The
	// first non-probe response whose range straddles this offset is cut
	// short there and the connection is dropped, simulating a peer that
	// disconnects mid-download. It fires only once.
	TruncateAt int

	// OmitContentRange suppresses the Content-Range response header even
	// for a ranged request, to exercise the flash-sink "no Content-Range"
	// failure path.
	OmitContentRange bool

	// FakeTotal, if nonzero, overrides the "/Z" total reported in
	// Content-Range, to exercise the oversize-rejection path without
	// actually serving millions of bytes.
	FakeTotal int
}

// Server is a minimal ranged-GET/redirect fixture host.
type Server struct {
	mu        sync.Mutex
	assets    map[string]*Asset
	redirects map[string]string
	truncated map[string]bool

	listener net.Listener
}

// NewServer returns an empty Server; routes are added with AddAsset and
// AddRedirect before calling Start.
func NewServer() *Server {
	return &Server{
		assets:    make(map[string]*Asset),
		redirects: make(map[string]string),
		truncated: make(map[string]bool),
	}
}

// AddAsset registers a static file at path.
func (s *Server) AddAsset(path string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[strings.TrimPrefix(path, "/")] = &Asset{Data: data}
}

// AddTruncatingAsset registers a file whose first non-probe response that
// covers absolute offset truncateAt is cut short at that offset and the
// connection dropped, to exercise reconnect-and-resume.
func (s *Server) AddTruncatingAsset(path string, data []byte, truncateAt int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[strings.TrimPrefix(path, "/")] = &Asset{Data: data, TruncateAt: truncateAt}
}

// AddAssetNoContentRange registers a file that never reports Content-Range,
// only Content-Length, even for a ranged request.
func (s *Server) AddAssetNoContentRange(path string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[strings.TrimPrefix(path, "/")] = &Asset{Data: data, OmitContentRange: true}
}

// AddOversizeAsset registers a file that reports fakeTotal as its total
// size in Content-Range while actually only serving len(data) bytes.
func (s *Server) AddOversizeAsset(path string, data []byte, fakeTotal int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[strings.TrimPrefix(path, "/")] = &Asset{Data: data, FakeTotal: fakeTotal}
}

// AddRedirect makes path respond with a 302 pointing at location.
func (s *Server) AddRedirect(path, location string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redirects[strings.TrimPrefix(path, "/")] = location
}

// Start listens on an ephemeral local port and begins serving.
func (s *Server) Start() (host string, port uint16, err error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", 0, err
	}
	s.listener = ln

	router := httprouter.New()
	router.GET("/*path", s.handle)
	go http.Serve(ln, router)

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), uint16(addr.Port), nil
}

// Close stops the server.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	path := strings.TrimPrefix(ps.ByName("path"), "/")

	s.mu.Lock()
	location, isRedirect := s.redirects[path]
	asset, isAsset := s.assets[path]
	s.mu.Unlock()

	if isRedirect {
		w.Header().Set("Location", location)
		w.WriteHeader(http.StatusFound)
		return
	}
	if !isAsset {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	lo, hi, ranged := parseRangeHeader(r.Header.Get("Range"), len(asset.Data))
	if !ranged {
		lo, hi = 0, len(asset.Data)-1
	}
	chunk := asset.Data[lo : hi+1]

	total := len(asset.Data)
	if asset.FakeTotal > 0 {
		total = asset.FakeTotal
	}
	if !asset.OmitContentRange {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", lo, hi, total))
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(chunk)))
	w.WriteHeader(http.StatusPartialContent)

	// The two-byte "Range: bytes=0-1" request is the redirect-resolution
	// probe (see fetch.ResolveFinalLocation), never the real streaming
	// download; truncation must only ever fire against the latter.
	isProbe := lo == 0 && hi == 1

	// TruncateAt is an absolute offset into the asset. If it falls inside
	// this response's range, serve only up to it and drop the connection,
	// simulating a peer that disconnects partway through one response body.
	s.mu.Lock()
	shouldTruncate := !isProbe && asset.TruncateAt > 0 && !s.truncated[path] &&
		lo <= asset.TruncateAt && asset.TruncateAt < hi+1
	if shouldTruncate {
		s.truncated[path] = true
	}
	s.mu.Unlock()

	if shouldTruncate {
		n := asset.TruncateAt - lo
		w.Write(chunk[:n])
		if hj, ok := w.(http.Hijacker); ok {
			if conn, bufrw, err := hj.Hijack(); err == nil {
				bufrw.Flush()
				conn.Close()
			}
		}
		return
	}

	w.Write(chunk)
}

// parseRangeHeader parses a "bytes=lo-hi" Range header value.
func parseRangeHeader(value string, total int) (lo, hi int, ok bool) {
	const prefix = "bytes="
	if !strings.HasPrefix(value, prefix) {
		return 0, 0, false
	}
	parts := strings.SplitN(value[len(prefix):], "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	lo, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	hi, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	if hi >= total {
		hi = total - 1
	}
	if lo > hi {
		return 0, 0, false
	}
	return lo, hi, true
}
