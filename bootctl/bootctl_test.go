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

package bootctl_test

import (
	"testing"
	"time"

	"github.com/Tedspider/esp-homekit-ota/bootctl"
	"github.com/Tedspider/esp-homekit-ota/flashsink"
)

func TestEnsureLayoutIsIdempotent(t *testing.T) {
	bl := bootctl.NewMemConfig(bootctl.SlotConfig{Count: 1, Roms: [2]uint32{0, 0}, CurrentRom: 0})

	if err := bootctl.EnsureLayout(bl, 0x1000, 0x81000); err != nil {
		t.Fatalf("EnsureLayout (first): %v", err)
	}
	first, _ := bl.GetConfig()
	if !bl.Written() {
		t.Fatalf("expected SetConfig to be called on a stale layout")
	}

	bl2 := bootctl.NewMemConfig(first)
	if err := bootctl.EnsureLayout(bl2, 0x1000, 0x81000); err != nil {
		t.Fatalf("EnsureLayout (second): %v", err)
	}
	if bl2.Written() {
		t.Fatalf("EnsureLayout rewrote an already-correct layout")
	}

	second, _ := bl2.GetConfig()
	if second != first {
		t.Fatalf("config changed across idempotent calls: %+v != %+v", second, first)
	}
}

func TestFinalizeWritesWithheldByte(t *testing.T) {
	driver := flashsink.NewMemDriver(flashsink.SectorSize)
	if err := driver.EraseSector(0); err != nil {
		t.Fatalf("EraseSector: %v", err)
	}

	if err := bootctl.Finalize(driver, 0, 0x55); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	got := make([]byte, 1)
	if err := driver.Read(0, got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got[0] != 0x55 {
		t.Fatalf("byte 0 = %#x, want 0x55", got[0])
	}
}

func TestSetCommitStateIsIdempotentAndPreservesSector(t *testing.T) {
	driver := flashsink.NewMemDriver(flashsink.SectorSize)
	if err := driver.EraseSector(0); err != nil {
		t.Fatalf("EraseSector: %v", err)
	}
	seed := make([]byte, flashsink.SectorSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	if err := driver.Write(0, seed); err != nil {
		t.Fatalf("seed sector: %v", err)
	}

	if err := bootctl.SetCommitState(driver, 0, bootctl.CommitStateOK); err != nil {
		t.Fatalf("SetCommitState: %v", err)
	}

	got := make([]byte, flashsink.SectorSize)
	if err := driver.Read(0, got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got[bootctl.CommitSidecarOffset] != bootctl.CommitStateOK {
		t.Fatalf("sidecar byte = %#x, want %#x", got[bootctl.CommitSidecarOffset], bootctl.CommitStateOK)
	}
	for i, b := range got {
		if i == bootctl.CommitSidecarOffset {
			continue
		}
		if b != seed[i] {
			t.Fatalf("byte %d = %#x, want untouched %#x", i, b, seed[i])
		}
	}

	// Writing the same state again must succeed and leave the state as is.
	// SetCommitState erases before it rewrites, so MemDriver would accept a
	// repeat erase+rewrite too; this call only checks that no error results.
	if err := bootctl.SetCommitState(driver, 0, bootctl.CommitStateOK); err != nil {
		t.Fatalf("SetCommitState (repeat): %v", err)
	}
}

func TestRebootWaitsThenRestarts(t *testing.T) {
	done := make(chan struct{})
	start := time.Now()
	go func() {
		bootctl.Reboot(func() { close(done) })
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("Reboot never invoked restart")
	}
	if elapsed := time.Since(start); elapsed < bootctl.RebootGrace {
		t.Fatalf("Reboot returned after %v, want at least %v", elapsed, bootctl.RebootGrace)
	}
}
