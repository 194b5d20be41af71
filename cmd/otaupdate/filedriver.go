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

package main

import (
	"os"

	"github.com/Tedspider/esp-homekit-ota/flashsink"
)

// FileDriver is a flashsink.FlashDriver backed by a local file, standing in
// for the device's SPI flash chip when this core runs on a host instead of
// a microcontroller: erasing a sector fills it with 0xFF, writing and
// reading go through pwrite/pread-style offset calls on the file.
type FileDriver struct {
	f *os.File
}

// OpenFileDriver opens (creating if necessary) a flash image file of at
// least size bytes.
func OpenFileDriver(path string, size int64) (*FileDriver, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	if info, err := f.Stat(); err == nil && info.Size() < size {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, err
		}
	}
	return &FileDriver{f: f}, nil
}

// Close releases the underlying file.
func (d *FileDriver) Close() error { return d.f.Close() }

// EraseSector implements flashsink.FlashDriver.
func (d *FileDriver) EraseSector(addr uint32) error {
	start := (int64(addr) / flashsink.SectorSize) * flashsink.SectorSize
	fill := make([]byte, flashsink.SectorSize)
	for i := range fill {
		fill[i] = 0xFF
	}
	_, err := d.f.WriteAt(fill, start)
	return err
}

// Write implements flashsink.FlashDriver.
func (d *FileDriver) Write(addr uint32, data []byte) error {
	_, err := d.f.WriteAt(data, int64(addr))
	return err
}

// Read implements flashsink.FlashDriver.
func (d *FileDriver) Read(addr uint32, buf []byte) error {
	_, err := d.f.ReadAt(buf, int64(addr))
	return err
}
