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

// Package bootctl is the rboot liaison: it normalizes the two-slot boot
// configuration on init, plants the withheld first byte of a verified
// image on finalize, and triggers a delayed system restart.
package bootctl

import (
	"time"

	"github.com/Tedspider/esp-homekit-ota/errkind"
	"github.com/Tedspider/esp-homekit-ota/flashsink"
)

// RebootGrace is how long Reboot waits before calling the restart hook, the
// "short grace period (~1s) for log flush" called for in the original.
const RebootGrace = time.Second

// SlotConfig mirrors rboot's persistent configuration record: how many ROM
// slots exist, their flash offsets, and which one is active.
type SlotConfig struct {
	Count      uint8
	Roms       [2]uint32
	CurrentRom uint8
}

// Bootloader is the narrow interface the core needs from rboot's
// configuration store.
type Bootloader interface {
	GetConfig() (SlotConfig, error)
	SetConfig(SlotConfig) error
}

// EnsureLayout reads the current rboot configuration and, unless it already
// describes the expected two-slot layout with slot 0 active, overwrites it.
// This is what makes repeated init calls idempotent and self-healing
// against a corrupted boot table.
func EnsureLayout(bl Bootloader, boot0Sector, boot1Sector uint32) error {
	want := SlotConfig{Count: 2, Roms: [2]uint32{boot0Sector, boot1Sector}, CurrentRom: 0}

	current, err := bl.GetConfig()
	if err != nil {
		return err
	}
	if current == want {
		return nil
	}
	return bl.SetConfig(want)
}

// Finalize writes the withheld first byte to sector, arming the
// freshly-downloaded image to pass the bootloader's magic-byte check on
// next reset. Callers MUST only call this after a successful
// verify.VerifySignature.
func Finalize(driver flashsink.FlashDriver, sector uint32, firstByte byte) error {
	if err := driver.Write(sector, []byte{firstByte}); err != nil {
		return errkind.New(errkind.FlashWrite, err.Error())
	}
	return nil
}

// Reboot waits RebootGrace for pending log output to flush, then invokes
// restart, the platform hook that actually resets the device.
func Reboot(restart func()) {
	time.Sleep(RebootGrace)
	restart()
}
