// SPDX-License-Identifier: MIT

//go:build !windows

package fsutil

import "syscall"

// FreeSpace reports the number of bytes available to unprivileged users on
// the filesystem containing path.
func FreeSpace(path string) (int64, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return 0, err
	}
	return int64(st.Bavail) * int64(st.Bsize), nil //nolint:unconvert // Bsize width differs per platform
}
