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

// Package transport opens the one kind of connection this core ever needs:
// a TCP socket to host:port, optionally upgraded to TLS 1.2 with the
// server's certificate chain deliberately unchecked (the update's
// authenticity comes from the embedded ECDSA P-384 signature, not from the
// certificate chain). It resolves the host itself instead of leaning on
// net.Resolver's cgo/pure-Go split, and exposes RecvTimeout/ResetRecvDeadline
// so callers can arm the same ~1.2s per-read timeout the reference firmware
// sets with setsockopt(SO_RCVTIMEO).
package transport

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/miekg/dns"
	utls "github.com/refraction-networking/utls"

	"github.com/Tedspider/esp-homekit-ota/errkind"
	"github.com/Tedspider/esp-homekit-ota/otalog"
)

const (
	dialTimeout = 5 * time.Second
	// RecvTimeout matches the reference's `struct timeval { 1, 200000 }`.
	// Go puts a *net.TCPConn's file descriptor in non-blocking mode and
	// services it through the runtime's poller, so SO_RCVTIMEO (which only
	// governs blocking recv()) has no effect here; ResetRecvDeadline below
	// is the functioning equivalent.
	RecvTimeout = 1200 * time.Millisecond
)

// Target names a connection endpoint: a host, a port, and whether to
// negotiate TLS on top of the raw TCP stream.
type Target struct {
	Host string
	Port uint16
	TLS  bool
}

func (t Target) String() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(int(t.Port)))
}

// Connect opens a connection to target, resolving DNS, dialing TCP, pinning
// the receive timeout, and optionally layering TLS, logging one phase line
// per step. On any failure every resource acquired so far is released
// before returning: each failure path after the dial closes the raw
// connection itself, replacing the reference's graded fall-through release
// table.
func Connect(target Target, log *otalog.Logger) (net.Conn, error) {
	log = log.OrDiscard()
	log.Phase("NEW CONNECTION")

	log.Phase("DNS..")
	ip, err := resolveHost(target.Host)
	if err != nil {
		log.Error("DNS: %v", err)
		return nil, errkind.New(errkind.DNSorConnect, err.Error())
	}

	log.Phase("Socket..")
	dialer := &net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.Dial("tcp", net.JoinHostPort(ip, strconv.Itoa(int(target.Port))))
	if err != nil {
		if isResourceExhausted(err) {
			log.Error("Socket: %v", err)
			return nil, errkind.New(errkind.SocketCreate, err.Error())
		}
		log.Error("Connect: %v", err)
		return nil, errkind.New(errkind.DNSorConnect, err.Error())
	}
	log.Phase("Connect..OK")

	if err := ResetRecvDeadline(conn); err != nil {
		conn.Close()
		return nil, errkind.New(errkind.DNSorConnect, err.Error())
	}

	if !target.TLS {
		return conn, nil
	}

	log.Phase("SSL..")
	tlsConn, err := upgradeTLS(conn, target.Host)
	if err != nil {
		conn.Close()
		log.Error("SSL: %v", err)
		return nil, errkind.New(errkind.TlsHandshake, err.Error())
	}
	log.Phase("SSL..OK")

	return tlsConn, nil
}

// resolveHost looks up an A/AAAA record for host, family-unspecified like
// the reference's getaddrinfo(AF_UNSPEC) call. Literal IP addresses pass
// straight through.
func resolveHost(host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	conf, cerr := dns.ClientConfigFromFile("/etc/resolv.conf")
	if cerr != nil || len(conf.Servers) == 0 {
		// No resolver config on this host (sandboxed build, or a host used
		// only to cross-compile for the device, which always has its own
		// lwIP DNS server configured before an OTA session starts). Fall
		// back to the stdlib resolver rather than fail outright.
		addrs, lerr := net.LookupHost(host)
		if lerr != nil || len(addrs) == 0 {
			return "", fmt.Errorf("resolve %q: %w", host, lerr)
		}
		return addrs[0], nil
	}

	client := &dns.Client{Timeout: dialTimeout}
	server := net.JoinHostPort(conf.Servers[0], conf.Port)

	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		msg := new(dns.Msg)
		msg.SetQuestion(dns.Fqdn(host), qtype)
		reply, _, err := client.Exchange(msg, server)
		if err != nil || reply == nil {
			continue
		}
		for _, ans := range reply.Answer {
			switch rr := ans.(type) {
			case *dns.A:
				return rr.A.String(), nil
			case *dns.AAAA:
				return rr.AAAA.String(), nil
			}
		}
	}

	return "", fmt.Errorf("resolve %q: no A/AAAA record", host)
}

func isResourceExhausted(err error) bool {
	return errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE)
}

// ResetRecvDeadline arms conn's read deadline RecvTimeout from now. A
// deadline is a fixed point in time, not a rolling per-call budget, so
// every caller that performs more than one Read on conn — probeLocation
// and readOneRequest in package fetch — must call this again before each
// Read, the same way the reference's receive-timeout chain resets on every
// recv() attempt.
func ResetRecvDeadline(conn net.Conn) error {
	return conn.SetReadDeadline(time.Now().Add(RecvTimeout))
}

// upgradeTLS wraps conn in a TLS 1.2 client session with the Go client hello
// fingerprint (we aren't trying to impersonate a browser, just want utls's
// fine-grained control over version/cipher selection) and certificate
// verification disabled.
func upgradeTLS(conn net.Conn, host string) (net.Conn, error) {
	cfg := &utls.Config{
		ServerName:         host,
		InsecureSkipVerify: true,
		MinVersion:         tls.VersionTLS12,
		MaxVersion:         tls.VersionTLS12,
	}

	uconn := utls.UClient(conn, cfg, utls.HelloGolang)
	if err := uconn.Handshake(); err != nil {
		return nil, err
	}
	return uconn, nil
}
