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

package verify_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha512"
	"crypto/x509"
	"testing"

	"github.com/Tedspider/esp-homekit-ota/flashsink"
	"github.com/Tedspider/esp-homekit-ota/verify"
)

func signImage(t *testing.T, priv *ecdsa.PrivateKey, image []byte) [verify.SignSize]byte {
	t.Helper()
	h := sha512.Sum384(image)
	r, s, err := ecdsa.Sign(rand.Reader, priv, h[:])
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	var sig [verify.SignSize]byte
	r.FillBytes(sig[:verify.SignSize/2])
	s.FillBytes(sig[verify.SignSize/2:])
	return sig
}

func TestVerifySignatureRoundTrip(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey: %v", err)
	}
	pub, err := verify.DecodePublicKey(der)
	if err != nil {
		t.Fatalf("DecodePublicKey: %v", err)
	}

	image := make([]byte, 10000)
	for i := range image {
		image[i] = byte(i * 7)
	}
	firstByte := image[0]

	driver := flashsink.NewMemDriver(len(image) + flashsink.SectorSize)
	// byte 0 is withheld on flash: overwrite it to 0xFF the way the Writer
	// leaves it, and feed the cached value separately, exactly as
	// ota.Session.VerifySign does.
	withheld := append([]byte(nil), image...)
	for sector := 0; sector*flashsink.SectorSize < len(withheld); sector++ {
		driver.EraseSector(uint32(sector * flashsink.SectorSize))
	}
	withheld[0] = 0xFF
	if err := driver.Write(0, withheld); err != nil {
		t.Fatalf("seed flash: %v", err)
	}

	sig := signImage(t, priv, image)

	ok, err := verify.VerifySignature(driver, 0, len(image), firstByte, sig, pub)
	if err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}
	if !ok {
		t.Fatalf("VerifySignature = false, want true")
	}

	// A corrupted signature must not verify.
	badSig := sig
	badSig[0] ^= 0xFF
	ok, err = verify.VerifySignature(driver, 0, len(image), firstByte, badSig, pub)
	if err != nil {
		t.Fatalf("VerifySignature (bad sig): %v", err)
	}
	if ok {
		t.Fatalf("VerifySignature with corrupted signature = true, want false")
	}
}

func TestDecodePublicKeyRejectsNonP384(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey: %v", err)
	}
	if _, err := verify.DecodePublicKey(der); err == nil {
		t.Fatalf("DecodePublicKey accepted a P-256 key")
	}
}
