// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"strings"

	"github.com/clawpal/clawpal/doctor"
)

// CommandSystemRun is the only command the node advertises.
const CommandSystemRun = "system.run"

// readPrefixes are the programs whose invocation, followed by
// arguments, is treated as read-only.
var readPrefixes = []string{
	"cat ", "ls ", "head ", "tail ", "wc ", "grep ",
	"find ", "which ", "echo ", "ps ", "df ", "free ",
}

// readCommands are the bare commands treated as read-only.
var readCommands = []string{"date", "uname", "uptime", "hostname"}

// Classify decides whether an invocation is read-only. Only system.run
// commands can be, and only by the leading program of the shell command
// line; arguments and redirections are not inspected.
func Classify(command, shell string) doctor.InvokeType {
	if command != CommandSystemRun {
		return doctor.InvokeWrite
	}
	for _, prefix := range readPrefixes {
		if strings.HasPrefix(shell, prefix) {
			return doctor.InvokeRead
		}
	}
	trimmed := strings.TrimSpace(shell)
	for _, name := range readCommands {
		if trimmed == name {
			return doctor.InvokeRead
		}
	}
	return doctor.InvokeWrite
}
