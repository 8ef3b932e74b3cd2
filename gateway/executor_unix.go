// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package gateway

import (
	"os/exec"
	"syscall"
)

// setProcessGroup runs the command in its own process group and kills
// the whole group on cancellation, so children of the shell do not
// outlive it and hold the output pipes open.
func setProcessGroup(process *exec.Cmd) {
	process.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	process.Cancel = func() error {
		return syscall.Kill(-process.Process.Pid, syscall.SIGKILL)
	}
}
