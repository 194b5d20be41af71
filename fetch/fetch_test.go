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

package fetch_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Tedspider/esp-homekit-ota/errkind"
	"github.com/Tedspider/esp-homekit-ota/fetch"
	"github.com/Tedspider/esp-homekit-ota/flashsink"
	"github.com/Tedspider/esp-homekit-ota/otatest"
)

func startServer(t *testing.T) (*otatest.Server, string, uint16) {
	t.Helper()
	srv := otatest.NewServer()
	host, port, err := srv.Start()
	if err != nil {
		t.Fatalf("start fixture server: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv, host, port
}

func TestGetFileExHappyPath(t *testing.T) {
	srv, host, port := startServer(t)
	srv.AddAsset("v", []byte("1.2.3\n"))

	sink := flashsink.NewBufferSink(64)
	res, err := fetch.GetFileEx(fetch.Target{Host: host, Location: "v", Port: port}, sink, 64, nil)
	if err != nil {
		t.Fatalf("GetFileEx: %v", err)
	}
	if res.BytesWritten != 6 {
		t.Fatalf("bytes written = %d, want 6", res.BytesWritten)
	}
	if got := string(sink.Bytes()); got != "1.2.3\n" {
		t.Fatalf("body = %q, want %q", got, "1.2.3\n")
	}
}

func TestResolveFinalLocationRedirectChain(t *testing.T) {
	srv, host, port := startServer(t)
	srv.AddRedirect("v", fmt.Sprintf("//%s/v2", host))
	srv.AddAsset("v2", []byte("1.2.3\n"))

	finalHost, finalLocation, err := fetch.ResolveFinalLocation(host, "v", port, false, fetch.DefaultMaxRedirects, nil)
	if err != nil {
		t.Fatalf("ResolveFinalLocation: %v", err)
	}
	if finalHost != host || finalLocation != "v2" {
		t.Fatalf("resolved to %s/%s, want %s/v2", finalHost, finalLocation, host)
	}
}

func TestGetFileExRedirectChainEndToEnd(t *testing.T) {
	srv, host, port := startServer(t)
	srv.AddRedirect("v", fmt.Sprintf("//%s/v2", host))
	srv.AddAsset("v2", []byte("1.2.3\n"))

	sink := flashsink.NewBufferSink(64)
	res, err := fetch.GetFileEx(fetch.Target{Host: host, Location: "v", Port: port}, sink, 64, nil)
	if err != nil {
		t.Fatalf("GetFileEx: %v", err)
	}
	if string(sink.Bytes()) != "1.2.3\n" {
		t.Fatalf("body = %q", sink.Bytes())
	}
	if res.FinalLocation != "v2" {
		t.Fatalf("FinalLocation = %q, want v2", res.FinalLocation)
	}
}

func TestGetFileExRedirectLoop(t *testing.T) {
	srv, host, port := startServer(t)
	srv.AddRedirect("x", fmt.Sprintf("//%s/x", host))

	sink := flashsink.NewBufferSink(64)
	_, err := fetch.GetFileEx(fetch.Target{Host: host, Location: "x", Port: port}, sink, 64, nil)
	var ke *errkind.Error
	if !errors.As(err, &ke) || ke.Kind != errkind.RedirectLoop {
		t.Fatalf("err = %v, want RedirectLoop", err)
	}
}

func TestGetFileExMidStreamDrop(t *testing.T) {
	srv, host, port := startServer(t)

	total := 131072 + 4096
	data := make([]byte, total)
	for i := range data {
		data[i] = byte(i)
	}
	// 133120 falls inside the chunk covering 131072-135167, so the drop
	// happens partway through a response body rather than cleanly between
	// two chunk requests.
	srv.AddTruncatingAsset("fw", data, 133120)

	driver := flashsink.NewMemDriver(total + flashsink.SectorSize)
	sink := &flashsink.Writer{Driver: driver, StartSector: 0, FirstByte: &flashsink.FirstByteCache{}}

	res, err := fetch.GetFileEx(fetch.Target{Host: host, Location: "fw", Port: port}, sink, total+1, nil)
	if err != nil {
		t.Fatalf("GetFileEx: %v", err)
	}
	if res.BytesWritten != total {
		t.Fatalf("bytes written = %d, want %d", res.BytesWritten, total)
	}
}

func TestGetFileExOversizeRejection(t *testing.T) {
	srv, host, port := startServer(t)
	srv.AddOversizeAsset("fw", make([]byte, 4096), 9000000)

	driver := flashsink.NewMemDriver(8192)
	sink := &flashsink.Writer{Driver: driver, StartSector: 0, FirstByte: &flashsink.FirstByteCache{}}

	_, err := fetch.GetFileEx(fetch.Target{Host: host, Location: "fw", Port: port}, sink, 1048576, nil)
	var ke *errkind.Error
	if !errors.As(err, &ke) || ke.Kind != errkind.FileTooBig {
		t.Fatalf("err = %v, want FileTooBig", err)
	}
}

func TestGetFileExNoContentRangeIntoFlashSink(t *testing.T) {
	srv, host, port := startServer(t)
	srv.AddAssetNoContentRange("fw", []byte("abcdef"))

	driver := flashsink.NewMemDriver(8192)
	sink := &flashsink.Writer{Driver: driver, StartSector: 0, FirstByte: &flashsink.FirstByteCache{}}

	_, err := fetch.GetFileEx(fetch.Target{Host: host, Location: "fw", Port: port}, sink, 8192, nil)
	var ke *errkind.Error
	if !errors.As(err, &ke) || ke.Kind != errkind.BadResponse {
		t.Fatalf("err = %v, want BadResponse", err)
	}
}

func TestGetFileExNoContentRangeIntoBufferSinkIsOK(t *testing.T) {
	srv, host, port := startServer(t)
	srv.AddAssetNoContentRange("v", []byte("1.2.3\n"))

	sink := flashsink.NewBufferSink(64)
	res, err := fetch.GetFileEx(fetch.Target{Host: host, Location: "v", Port: port}, sink, 64, nil)
	if err != nil {
		t.Fatalf("GetFileEx: %v", err)
	}
	if res.BytesWritten != 6 {
		t.Fatalf("bytes written = %d, want 6", res.BytesWritten)
	}
}
