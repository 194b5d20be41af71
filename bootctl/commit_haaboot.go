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

//go:build haaboot

package bootctl

import "github.com/Tedspider/esp-homekit-ota/flashsink"

// CommitSidecarOffset matches the non-boot build's constant so callers can
// reference it regardless of which build tag is active.
const CommitSidecarOffset = 2

// CommitStateOK and CommitStateFailed match the non-boot build's constants
// so callers can pass them to SetCommitState regardless of build tag.
const (
	CommitStateOK     byte = 'A'
	CommitStateFailed byte = 'P'
)

// SetCommitState is a no-op in the boot-stage build: the original's
// ota_verify_sign omits the sidecar write entirely under #ifdef HAABOOT,
// since the boot-stage verifier has no business recording orchestrator
// state.
func SetCommitState(driver flashsink.FlashDriver, sidecarAddr uint32, state byte) error {
	return nil
}
