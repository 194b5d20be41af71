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

package fetch

import "strings"

// SignSuffix is appended to a firmware file name to form the name of its
// companion signature file.
const SignSuffix = ".sig"

// SplitRepo decomposes a repo string of the form "host[/path...]" into a
// bare host and a location with no leading slash, the same split the
// reference performs with two strchr('/') scans.
func SplitRepo(repo string) (host, location string) {
	if idx := strings.IndexByte(repo, '/'); idx >= 0 {
		return repo[:idx], repo[idx+1:]
	}
	return repo, ""
}

// JoinFile appends file to location with a single separating slash, or
// returns file unchanged if location is empty.
func JoinFile(location, file string) string {
	if location == "" {
		return file
	}
	return location + "/" + file
}

// SignatureName returns the conventional signature file name for file.
func SignatureName(file string) string {
	return file + SignSuffix
}
