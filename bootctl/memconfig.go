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

package bootctl

// MemConfig is an in-memory Bootloader standing in for rboot's persistent
// configuration store in tests.
type MemConfig struct {
	cfg SlotConfig
	set bool
}

// NewMemConfig returns a MemConfig seeded with an arbitrary starting
// configuration, as if read from a flash region nobody has initialized yet.
func NewMemConfig(initial SlotConfig) *MemConfig {
	return &MemConfig{cfg: initial}
}

// GetConfig implements Bootloader.
func (m *MemConfig) GetConfig() (SlotConfig, error) {
	return m.cfg, nil
}

// SetConfig implements Bootloader.
func (m *MemConfig) SetConfig(cfg SlotConfig) error {
	m.cfg = cfg
	m.set = true
	return nil
}

// Written reports whether SetConfig has ever been called.
func (m *MemConfig) Written() bool {
	return m.set
}
