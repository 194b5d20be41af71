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

package fetch

import (
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"
)

const headerTerminator = "\r\n\r\n"

// findCI returns the index of the first case-insensitive occurrence of sub
// within s, or -1 if absent. The reference's strstr_lc computes
// strlen(haystack) - strlen(needle) as an unsigned loop bound, which
// underflows into a huge value when the haystack is shorter than the
// needle; this version simply never starts a comparison window that would
// run past the end of s.
func findCI(s, sub string) int {
	if sub == "" {
		return 0
	}
	if len(s) < len(sub) {
		return -1
	}
	for i := 0; i+len(sub) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(sub)], sub) {
			return i
		}
	}
	return -1
}

// parseStatusCode extracts the numeric status code from a response's status
// line, searching case-insensitively for "HTTP/1.1 " the way the reference
// does with strstr_lc(buffer, "http/1.1 ").
func parseStatusCode(buf []byte) (int, bool) {
	s := string(buf)
	idx := findCI(s, "http/1.1 ")
	if idx < 0 {
		return 0, false
	}
	rest := s[idx+len("http/1.1 "):]
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return 0, false
	}
	code, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, false
	}
	return code, true
}

// headerValue returns the trimmed value of the named header, located as a
// "\r\n<name>:" line the way the reference locates "\ncontent-length:" and
// "\nlocation:". The returned value is only the text up to the next CR.
func headerValue(buf []byte, name string) (string, bool) {
	s := string(buf)
	needle := "\n" + name + ":"
	idx := findCI(s, needle)
	if idx < 0 {
		return "", false
	}
	start := idx + len(needle)
	if start > len(s) {
		return "", false
	}
	rest := s[start:]
	if end := strings.IndexByte(rest, '\r'); end >= 0 {
		rest = rest[:end]
	}
	value := strings.TrimPrefix(rest, " ")
	if !httpguts.ValidHeaderFieldValue(value) {
		return "", false
	}
	return value, true
}

// headerInt parses the named header as a decimal integer.
func headerInt(buf []byte, name string) (int, bool) {
	v, ok := headerValue(buf, name)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseContentRange parses a "bytes X-Y/Z" Content-Range value and returns
// Z, the total resource length.
func parseContentRange(value string) (int, bool) {
	idx := findCI(value, "bytes ")
	if idx < 0 {
		return 0, false
	}
	rest := value[idx+len("bytes "):]
	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return 0, false
	}
	total, err := strconv.Atoi(strings.TrimSpace(rest[slash+1:]))
	if err != nil {
		return 0, false
	}
	return total, true
}

// splitHeaderBody locates the end of the header block in buf. If the body
// has already arrived in the same segment, bodyStart is its offset;
// otherwise ok is false and the caller must receive more bytes before
// headers can be parsed.
func splitHeaderBody(buf []byte) (bodyStart int, ok bool) {
	idx := strings.Index(string(buf), headerTerminator)
	if idx < 0 {
		return 0, false
	}
	return idx + len(headerTerminator), true
}

// redirectTarget extracts the host and location from a Location header
// value, handling the protocol-relative "//host/path" form the reference
// strips with strstr_lc(location, "//").
func redirectTarget(value string) (host, location string, ok bool) {
	v := strings.TrimPrefix(value, " ")
	if idx := findCI(v, "//"); idx >= 0 {
		v = v[idx+2:]
	}
	host, location = SplitRepo(v)
	if host == "" || !httpguts.ValidHostHeader(host) {
		return "", "", false
	}
	return host, location, true
}
