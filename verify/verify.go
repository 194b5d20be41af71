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

// Package verify streams a flashed image through SHA-384 and checks the
// hash against an embedded ECDSA P-384 public key, entirely with the
// standard library: crypto/sha512, crypto/ecdsa, crypto/x509, math/big.
// There is no third-party crypto dependency in the example pack that
// offers raw (r, s) P-384 verification over stdlib's own crypto/ecdsa, so
// this component is stdlib end to end (see DESIGN.md).
package verify

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha512"
	"crypto/x509"
	"math/big"

	"github.com/Tedspider/esp-homekit-ota/errkind"
)

// SignSize is the byte length of a raw P-384 ECDSA signature: a 48-byte r
// followed by a 48-byte s, the IEEE P1363 encoding implied by SIGNSIZE=96
// in the reference rather than variable-length ASN.1 DER.
const SignSize = 96

// BlockSize is the read granularity used while hashing flash contents.
const BlockSize = 1024

// FlashReader is the narrow read-only view of flash this package needs.
type FlashReader interface {
	Read(addr uint32, buf []byte) error
}

// DecodePublicKey parses a SubjectPublicKeyInfo DER-encoded P-384 public
// key, the form the reference's compiled-in public key takes.
func DecodePublicKey(der []byte) (*ecdsa.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, err
	}
	ecpub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, errkind.New(errkind.BadResponse, "public key is not ECDSA")
	}
	if ecpub.Curve != elliptic.P384() {
		return nil, errkind.New(errkind.BadResponse, "public key is not on P-384")
	}
	return ecpub, nil
}

// VerifySignature hashes filesize bytes of flash starting at startSector
// with SHA-384 — substituting firstByte for the still-0xFF byte 0 — and
// verifies the raw (r, s) signature against pub. It returns false (not an
// error) for a merely invalid signature; only I/O failures against flash
// are reported as errors.
func VerifySignature(reader FlashReader, startSector uint32, filesize int, firstByte byte, signature [SignSize]byte, pub *ecdsa.PublicKey) (bool, error) {
	h := sha512.New384()
	block := make([]byte, BlockSize)

	remaining := filesize
	addr := startSector
	first := true

	for remaining > 0 {
		n := BlockSize
		if remaining < n {
			n = remaining
		}
		if err := reader.Read(addr, block[:n]); err != nil {
			return false, errkind.New(errkind.BadResponse, err.Error())
		}
		if first {
			block[0] = firstByte
			first = false
		}
		h.Write(block[:n])
		addr += uint32(n)
		remaining -= n
	}

	digest := h.Sum(nil)
	r := new(big.Int).SetBytes(signature[:SignSize/2])
	s := new(big.Int).SetBytes(signature[SignSize/2:])

	return ecdsa.Verify(pub, digest, r, s), nil
}
