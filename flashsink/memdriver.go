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

package flashsink

import "fmt"

// MemDriver is an in-memory FlashDriver standing in for real SPI flash in
// tests, the same role an in-process fixture plays for a socket.
// Every byte starts erased (0xFF); EraseSector resets a sector's worth of
// bytes to 0xFF and Write requires the destination to already be erased,
// catching a sink that writes over bytes it wrote earlier without erasing
// them in between. Since a fresh MemDriver is erased throughout, a missing
// erase before the first write into a sector is not detected.
type MemDriver struct {
	mem []byte
}

// NewMemDriver allocates a MemDriver of size bytes, all pre-erased.
func NewMemDriver(size int) *MemDriver {
	m := make([]byte, size)
	for i := range m {
		m[i] = 0xFF
	}
	return &MemDriver{mem: m}
}

// EraseSector resets the sector containing addr to all 0xFF.
func (m *MemDriver) EraseSector(addr uint32) error {
	start := (addr / SectorSize) * SectorSize
	end := start + SectorSize
	if int(end) > len(m.mem) {
		return fmt.Errorf("erase out of range: addr %d", addr)
	}
	for i := start; i < end; i++ {
		m.mem[i] = 0xFF
	}
	return nil
}

// Write copies data to addr. It fails if any destination byte is not
// currently erased (0xFF), the same "sector must be erased before write"
// invariant the real flash driver enforces in hardware.
func (m *MemDriver) Write(addr uint32, data []byte) error {
	if int(addr)+len(data) > len(m.mem) {
		return fmt.Errorf("write out of range: addr %d len %d", addr, len(data))
	}
	for i, b := range data {
		if m.mem[int(addr)+i] != 0xFF {
			return fmt.Errorf("write to non-erased byte at %d", int(addr)+i)
		}
		m.mem[int(addr)+i] = b
	}
	return nil
}

// Read copies len(buf) bytes starting at addr into buf.
func (m *MemDriver) Read(addr uint32, buf []byte) error {
	if int(addr)+len(buf) > len(m.mem) {
		return fmt.Errorf("read out of range: addr %d len %d", addr, len(buf))
	}
	copy(buf, m.mem[addr:int(addr)+len(buf)])
	return nil
}
