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

//go:build !haaboot

package bootctl

import (
	"github.com/Tedspider/esp-homekit-ota/errkind"
	"github.com/Tedspider/esp-homekit-ota/flashsink"
)

// CommitSidecarOffset is the byte offset within the commit sidecar sector
// that records verification outcome (the "third byte" of the reference's
// magic table, magic1[2]).
const CommitSidecarOffset = 2

// CommitStateOK and CommitStateFailed are the two values SetCommitState
// ever writes to the sidecar byte, matching the reference's magic1[1]
// ('A') for a passing verification and magic1[2] ('P') for a failing one.
const (
	CommitStateOK     byte = 'A'
	CommitStateFailed byte = 'P'
)

// SetCommitState records verify_sign's outcome in the commit sidecar
// sector at sidecarAddr, the way sign_check_client does: read the whole
// sector, leave it untouched if its sidecar byte already equals state,
// otherwise patch
// byte CommitSidecarOffset in RAM and erase+rewrite the full sector (a
// flash cell can only go from erased to written once, so the surrounding
// bytes have to be carried through the erase rather than the one byte
// overwritten in place). This build of the package is linked into the
// application image, never the boot-stage verifier, matching the
// original's `#ifndef HAABOOT` guard around sign_check_client.
func SetCommitState(driver flashsink.FlashDriver, sidecarAddr uint32, state byte) error {
	sector := make([]byte, flashsink.SectorSize)
	if err := driver.Read(sidecarAddr, sector); err != nil {
		return errkind.New(errkind.BadResponse, err.Error())
	}
	if sector[CommitSidecarOffset] == state {
		return nil
	}

	sector[CommitSidecarOffset] = state
	if err := driver.EraseSector(sidecarAddr); err != nil {
		return errkind.New(errkind.FlashErase, err.Error())
	}
	if err := driver.Write(sidecarAddr, sector); err != nil {
		return errkind.New(errkind.FlashWrite, err.Error())
	}
	return nil
}
