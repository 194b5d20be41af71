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

// Package ota is the Public API: init, get_file, get_version, get_sign,
// verify_sign, finalize_file, reboot, wired together around one
// encapsulated *Session value. Session replaces the reference's
// process-wide static singletons (TLS context, public key,
// last_host/last_location, file_first_byte) with a single value created
// once by Init and threaded through every later call — only one fetch may
// be in flight on a Session at a time, a constraint this package documents
// but does not enforce, exactly as the reference does not enforce it
// either.
package ota

import (
	"crypto/ecdsa"

	"github.com/Tedspider/esp-homekit-ota/bootctl"
	"github.com/Tedspider/esp-homekit-ota/errkind"
	"github.com/Tedspider/esp-homekit-ota/fetch"
	"github.com/Tedspider/esp-homekit-ota/flashsink"
	"github.com/Tedspider/esp-homekit-ota/otalog"
	"github.com/Tedspider/esp-homekit-ota/verify"
)

// VersionFileSize bounds the buffer get_version allocates for a fetched
// version string.
const VersionFileSize = 64

// FlashLayout names the two boot-slot offsets and the commit-sidecar base
// address a device's flash map fixes at build time.
type FlashLayout struct {
	Boot0Sector      uint32
	Boot1Sector      uint32
	SPIFlashBaseAddr uint32
}

// MaxFileSize computes MAXFILESIZE for this layout. The boot-stage build
// (haaboot) bounds the image by slot 1, from Boot1Sector up to the commit
// sidecar at SPIFlashBaseAddr; the application build bounds it by slot 0,
// from Boot0Sector up to Boot1Sector. Each keeps a 16-byte safety margin,
// mirroring the reference's two #ifdef HAABOOT branches of the MAXFILESIZE
// macro.
func MaxFileSize(layout FlashLayout, haaboot bool) int {
	if haaboot {
		return int(layout.SPIFlashBaseAddr-layout.Boot1Sector) - 16
	}
	return int(layout.Boot1Sector-layout.Boot0Sector) - 16
}

// Session is the encapsulated replacement for the reference's static
// globals: it owns the flash driver, the bootloader liaison, the decoded
// public key, the logger, and the withheld first-byte cache for whichever
// fetch is currently in flight.
type Session struct {
	Layout  FlashLayout
	Haaboot bool

	Flash flashsink.FlashDriver
	Boot  bootctl.Bootloader

	PubKey *ecdsa.PublicKey
	Log    *otalog.Logger

	// Restart is the platform hook Reboot invokes after its grace period.
	// When nil, Reboot waits out the grace period and then does nothing.
	Restart func()

	firstByte    flashsink.FirstByteCache
	lastHost     string
	lastLocation string
}

// Init decodes the embedded public key and normalizes the rboot
// configuration to the expected two-slot layout. It is idempotent: calling
// it twice leaves the bootloader configuration bit-identical to one call.
func Init(layout FlashLayout, haaboot bool, flash flashsink.FlashDriver, boot bootctl.Bootloader, pubKeyDER []byte, log *otalog.Logger) (*Session, error) {
	log = log.OrDiscard()
	log.Phase("INIT")

	pub, err := verify.DecodePublicKey(pubKeyDER)
	if err != nil {
		return nil, err
	}

	if err := bootctl.EnsureLayout(boot, layout.Boot0Sector, layout.Boot1Sector); err != nil {
		return nil, err
	}

	return &Session{
		Layout:  layout,
		Haaboot: haaboot,
		Flash:   flash,
		Boot:    boot,
		PubKey:  pub,
		Log:     log,
	}, nil
}

// GetFile streams file from repo into flash starting at sector. It returns
// the number of bytes written.
func (s *Session) GetFile(repo, file string, sector uint32, port uint16, tls bool) (int, error) {
	host, location := fetch.SplitRepo(repo)
	location = fetch.JoinFile(location, file)

	sink := &flashsink.Writer{Driver: s.Flash, StartSector: sector, FirstByte: &s.firstByte}
	maxSize := MaxFileSize(s.Layout, s.Haaboot)

	res, err := fetch.GetFileEx(fetch.Target{Host: host, Location: location, Port: port, TLS: tls}, sink, maxSize, s.Log)
	if err != nil {
		return 0, err
	}
	s.lastHost, s.lastLocation = res.FinalHost, res.FinalLocation
	return res.BytesWritten, nil
}

// GetVersion fetches a small ASCII version file and returns its contents.
func (s *Session) GetVersion(repo, file string, port uint16, tls bool) (string, error) {
	host, location := fetch.SplitRepo(repo)
	location = fetch.JoinFile(location, file)

	sink := flashsink.NewBufferSink(VersionFileSize)
	res, err := fetch.GetFileEx(fetch.Target{Host: host, Location: location, Port: port, TLS: tls}, sink, VersionFileSize, s.Log)
	if err != nil {
		return "", err
	}
	s.lastHost, s.lastLocation = res.FinalHost, res.FinalLocation
	return string(sink.Bytes()), nil
}

// GetSign fetches file's companion signature file (file + SignSuffix) and
// returns it as a fixed-size array, ready for VerifySign.
func (s *Session) GetSign(repo, file string, port uint16, tls bool) ([verify.SignSize]byte, int, error) {
	var out [verify.SignSize]byte

	host, location := fetch.SplitRepo(repo)
	location = fetch.JoinFile(location, fetch.SignatureName(file))

	sink := flashsink.NewBufferSink(verify.SignSize)
	res, err := fetch.GetFileEx(fetch.Target{Host: host, Location: location, Port: port, TLS: tls}, sink, verify.SignSize, s.Log)
	if err != nil {
		return out, 0, err
	}
	s.lastHost, s.lastLocation = res.FinalHost, res.FinalLocation
	copy(out[:], sink.Bytes())
	return out, res.BytesWritten, nil
}

// VerifySign hashes the flashed image starting at sector and checks
// signature against the session's public key. A false return with a nil
// error means the signature simply didn't verify; callers must not call
// FinalizeFile in that case.
func (s *Session) VerifySign(sector uint32, filesize int, signature [verify.SignSize]byte) (bool, error) {
	firstByte, ok := s.firstByte.Get()
	if !ok {
		return false, errkind.New(errkind.BadResponse, "no cached first byte; GetFile must run before VerifySign")
	}

	ok2, err := verify.VerifySignature(s.Flash, sector, filesize, firstByte, signature, s.PubKey)
	if err != nil {
		s.Log.Error("Sign result: ERROR (%v)", err)
		return false, err
	}

	state := bootctl.CommitStateFailed
	if ok2 {
		s.Log.Info("Sign result: OK")
		state = bootctl.CommitStateOK
	} else {
		s.Log.Info("Sign result: ERROR")
	}
	// Records the outcome in the commit sidecar the way sign_check_client
	// does; a no-op in the haaboot build. Failure here is logged, not
	// propagated — the verification result itself already stands.
	if err := bootctl.SetCommitState(s.Flash, s.Layout.SPIFlashBaseAddr, state); err != nil {
		s.Log.Error("commit sidecar: %v", err)
	}

	return ok2, nil
}

// FinalizeFile writes the withheld first byte to sector, arming the image
// to pass the bootloader's magic-byte check. Only call this after
// VerifySign has returned true.
func (s *Session) FinalizeFile(sector uint32) error {
	firstByte, ok := s.firstByte.Get()
	if !ok {
		return errkind.New(errkind.BadResponse, "no cached first byte; GetFile must run before FinalizeFile")
	}
	return bootctl.Finalize(s.Flash, sector, firstByte)
}

// Reboot waits bootctl.RebootGrace for pending log output to flush, then
// invokes the platform restart hook.
func (s *Session) Reboot() {
	s.Log.Phase("REBOOT")
	restart := s.Restart
	if restart == nil {
		restart = func() {}
	}
	bootctl.Reboot(restart)
}

// LastLocation returns the host/location pair that served the most recent
// successfully-resolved fetch, the equivalent of the reference's
// last_host/last_location scratch buffers.
func (s *Session) LastLocation() (host, location string) {
	return s.lastHost, s.lastLocation
}
