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

// Command otaupdate drives the ota package from a workstation against a
// real or test firmware host, using a local file in place of the device's
// SPI flash chip. It exists to exercise the library end to end without an
// actual ESP8266.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	ota "github.com/Tedspider/esp-homekit-ota"
	"github.com/Tedspider/esp-homekit-ota/bootctl"
	"github.com/Tedspider/esp-homekit-ota/otalog"
)

// layoutFlags are the flash-map addresses shared by every subcommand that
// touches flash, mirroring the build-time BOOT0SECTOR/BOOT1SECTOR/
// SPIFLASH_BASE_ADDR constants the reference bakes in at compile time.
type layoutFlags struct {
	FlashFile string `help:"Path to the local file standing in for SPI flash." default:"flash.img" type:"path"`
	Boot0     uint32 `help:"Boot slot 0 sector address." default:"0"`
	Boot1     uint32 `help:"Boot slot 1 sector address." default:"1024"`
	BaseAddr  uint32 `help:"Commit-sidecar base address (SPIFLASH_BASE_ADDR)." default:"2097152"`
	Haaboot   bool   `help:"Build the session as the HAA bootloader variant instead of the application variant."`
	PubKey    string `help:"Path to the DER-encoded SubjectPublicKeyInfo signing key." required:""`
}

func (l layoutFlags) open() (*FileDriver, ota.FlashLayout, []byte, error) {
	layout := ota.FlashLayout{Boot0Sector: l.Boot0, Boot1Sector: l.Boot1, SPIFlashBaseAddr: l.BaseAddr}
	driver, err := OpenFileDriver(l.FlashFile, int64(l.BaseAddr)+4096)
	if err != nil {
		return nil, layout, nil, err
	}
	der, err := os.ReadFile(l.PubKey)
	if err != nil {
		driver.Close()
		return nil, layout, nil, err
	}
	return driver, layout, der, nil
}

func (l layoutFlags) session(log *otalog.Logger) (*ota.Session, *FileDriver, error) {
	driver, layout, der, err := l.open()
	if err != nil {
		return nil, nil, err
	}
	bl := bootctl.NewMemConfig(bootctl.SlotConfig{})
	s, err := ota.Init(layout, l.Haaboot, driver, bl, der, log)
	if err != nil {
		driver.Close()
		return nil, nil, err
	}
	return s, driver, nil
}

// repoFlags are the arguments identifying where a file lives on the
// firmware host, mirroring get_file/get_version/get_sign's (repo, file,
// port, tls) parameters.
type repoFlags struct {
	Repo string `arg:"" help:"Host, or host/path, to fetch from."`
	File string `arg:"" help:"File name relative to repo."`
	Port uint16 `help:"TCP port." default:"443"`
	TLS  bool   `help:"Use TLS." default:"true"`
}

type getFileCmd struct {
	layoutFlags
	repoFlags
	Sector uint32 `help:"Flash sector to write into. Defaults to Boot1." default:"0"`
}

func (c *getFileCmd) Run(log *otalog.Logger) error {
	s, driver, err := c.layoutFlags.session(log)
	if err != nil {
		return err
	}
	defer driver.Close()

	sector := c.Sector
	if sector == 0 {
		sector = c.Boot1
	}
	n, err := s.GetFile(c.Repo, c.File, sector, c.Port, c.TLS)
	if err != nil {
		return err
	}
	fmt.Printf("wrote %d bytes to sector %d of %s\n", n, sector, c.FlashFile)
	return nil
}

type getVersionCmd struct {
	layoutFlags
	repoFlags
}

func (c *getVersionCmd) Run(log *otalog.Logger) error {
	s, driver, err := c.layoutFlags.session(log)
	if err != nil {
		return err
	}
	defer driver.Close()

	v, err := s.GetVersion(c.Repo, c.File, c.Port, c.TLS)
	if err != nil {
		return err
	}
	fmt.Println(v)
	return nil
}

type getSignCmd struct {
	layoutFlags
	repoFlags
	Out string `help:"Where to write the fetched signature." default:"firmware.sig"`
}

func (c *getSignCmd) Run(log *otalog.Logger) error {
	s, driver, err := c.layoutFlags.session(log)
	if err != nil {
		return err
	}
	defer driver.Close()

	sig, n, err := s.GetSign(c.Repo, c.File, c.Port, c.TLS)
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.Out, sig[:n], 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %d-byte signature to %s\n", n, c.Out)
	return nil
}

type verifySignCmd struct {
	layoutFlags
	Sector   uint32 `help:"Flash sector the image starts at." default:"0"`
	Filesize int    `help:"Image size in bytes, as returned by get-file." required:""`
	SigFile  string `help:"Path to the signature previously fetched with get-sign." required:""`
}

func (c *verifySignCmd) Run(log *otalog.Logger) error {
	s, driver, err := c.layoutFlags.session(log)
	if err != nil {
		return err
	}
	defer driver.Close()

	sector := c.Sector
	if sector == 0 {
		sector = c.Boot1
	}

	raw, err := os.ReadFile(c.SigFile)
	if err != nil {
		return err
	}
	var sig [96]byte
	copy(sig[:], raw)

	ok, err := s.VerifySign(sector, c.Filesize, sig)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("signature INVALID")
		os.Exit(1)
	}
	fmt.Println("signature OK")
	return nil
}

type finalizeCmd struct {
	layoutFlags
	Sector uint32 `help:"Flash sector the image starts at." default:"0"`
}

func (c *finalizeCmd) Run(log *otalog.Logger) error {
	s, driver, err := c.layoutFlags.session(log)
	if err != nil {
		return err
	}
	defer driver.Close()

	sector := c.Sector
	if sector == 0 {
		sector = c.Boot1
	}
	if err := s.FinalizeFile(sector); err != nil {
		return err
	}
	fmt.Println("finalized")
	return nil
}

type rebootCmd struct {
	layoutFlags
}

func (c *rebootCmd) Run(log *otalog.Logger) error {
	s, driver, err := c.layoutFlags.session(log)
	if err != nil {
		return err
	}
	defer driver.Close()

	s.Restart = func() { fmt.Println("reboot: restart hook fired") }
	s.Reboot()
	return nil
}

var cli struct {
	Verbose bool `help:"Log every phase to stderr instead of discarding it." short:"v"`

	GetFile    getFileCmd    `cmd:"" name:"get-file" help:"Stream a firmware image into the local flash file."`
	GetVersion getVersionCmd `cmd:"" name:"get-version" help:"Fetch a small ASCII version file."`
	GetSign    getSignCmd    `cmd:"" name:"get-sign" help:"Fetch a file's companion signature."`
	VerifySign verifySignCmd `cmd:"" name:"verify-sign" help:"Verify a previously-fetched signature against flashed bytes."`
	Finalize   finalizeCmd   `cmd:"" name:"finalize" help:"Commit a verified image by writing its withheld first byte."`
	Reboot     rebootCmd     `cmd:"" name:"reboot" help:"Run the reboot grace period and fire the restart hook."`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("otaupdate"),
		kong.Description("Workstation driver for the esp-homekit-ota firmware update core."),
		kong.UsageOnError(),
	)

	var log *otalog.Logger
	if cli.Verbose {
		log = otalog.New(os.Stderr)
	}

	err := ctx.Run(log)
	ctx.FatalIfErrorf(err)
}
