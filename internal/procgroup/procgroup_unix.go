// SPDX-License-Identifier: MIT

//go:build unix

// Package procgroup confines spawned encoder processes to their own process
// group so cancellation reaps the whole tree, not just the leader. ffmpeg
// may fork helpers that would otherwise outlive a killed parent.
package procgroup

import (
	"errors"
	"os/exec"
	"syscall"
)

// Set makes cmd start as the leader of a new process group. Must be called
// before the command starts for Kill to cover the whole tree.
func Set(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// Kill signals the whole process group of cmd. A process that already exited
// is not an error.
func Kill(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		return err
	}

	// Negative PGID addresses every process in the group.
	if err := syscall.Kill(-pgid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}
