// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports the build version announced in gateway
// handshakes and printed by --version.
package version

import (
	"runtime/debug"
	"sync"
)

// Version is overridden at link time:
//
//	go build -ldflags "-X github.com/clawpal/clawpal/lib/version.Version=0.4.1"
var Version = ""

var (
	resolveOnce sync.Once
	resolved    string
)

// Short returns the version string, falling back to the main module
// version from build info and then to "dev".
func Short() string {
	resolveOnce.Do(func() {
		resolved = Version
		if resolved != "" {
			return
		}
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			resolved = info.Main.Version
			return
		}
		resolved = "dev"
	})
	return resolved
}

// Info returns the version plus the VCS revision when the binary was
// built from a checkout, e.g. "0.4.1 (a1b2c3d)".
func Info() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Short()
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && len(setting.Value) >= 7 {
			return Short() + " (" + setting.Value[:7] + ")"
		}
	}
	return Short()
}
