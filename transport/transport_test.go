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

package transport

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
)

func TestTargetString(t *testing.T) {
	target := Target{Host: "example.com", Port: 8443, TLS: true}
	if got, want := target.String(), "example.com:8443"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestResolveHostLiteralIP(t *testing.T) {
	for _, host := range []string{"127.0.0.1", "::1", "10.0.0.5"} {
		got, err := resolveHost(host)
		if err != nil {
			t.Fatalf("resolveHost(%q): %v", host, err)
		}
		if got != host {
			t.Fatalf("resolveHost(%q) = %q, want passthrough", host, got)
		}
	}
}

func TestIsResourceExhausted(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{syscall.EMFILE, true},
		{syscall.ENFILE, true},
		{&net.OpError{Op: "dial", Err: syscall.EMFILE}, true},
		{syscall.ECONNREFUSED, false},
		{fmt.Errorf("wrapped: %w", syscall.ENFILE), true},
		{errors.New("unrelated"), false},
	}
	for _, c := range cases {
		if got := isResourceExhausted(c.err); got != c.want {
			t.Fatalf("isResourceExhausted(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}
