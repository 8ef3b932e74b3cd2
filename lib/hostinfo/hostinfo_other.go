// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package hostinfo

import (
	"os"
	"runtime"
)

func collectHost(_, _ string) Snapshot {
	snapshot := Snapshot{OS: runtime.GOOS, Arch: runtime.GOARCH, CPUCount: runtime.NumCPU()}
	snapshot.Hostname, _ = os.Hostname()
	return snapshot
}
