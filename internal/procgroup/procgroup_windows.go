// SPDX-License-Identifier: MIT

//go:build windows

package procgroup

import (
	"os/exec"
	"syscall"
)

// Set is a no-op on windows; process groups are a unix concept.
func Set(cmd *exec.Cmd) {}

// Kill falls back to terminating only the leader process.
func Kill(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
