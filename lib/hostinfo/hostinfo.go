// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hostinfo

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/clawpal/clawpal/lib/config"
)

// maxConfigBytes bounds how much of the gateway config is quoted.
const maxConfigBytes = 16 << 10

// Snapshot is what Collect found.
type Snapshot struct {
	Hostname string
	Kernel   string
	OS       string
	Arch     string

	CPUModel string
	CPUCount int

	MemoryTotalMB     int
	MemoryAvailableMB int

	// Load holds the 1, 5 and 15 minute load averages when HasLoad.
	Load    [3]float64
	HasLoad bool

	Uptime time.Duration

	RootTotalBytes uint64
	RootFreeBytes  uint64

	// GatewayConfigPath is the file GatewayConfig was read from.
	GatewayConfigPath string
	GatewayConfig     string
	GatewayCheck      *config.CheckReport
}

// Options select what Collect reads beyond the host itself.
type Options struct {
	// GatewayConfigPath is the local gateway's openclaw.json. Empty
	// skips the config.
	GatewayConfigPath string
}

// Collect takes a snapshot of this host.
func Collect(options Options) Snapshot {
	snapshot := collectHost("/proc", "/")
	if options.GatewayConfigPath != "" {
		readGatewayConfig(&snapshot, options.GatewayConfigPath)
	}
	return snapshot
}

// readGatewayConfig quotes the config at path with its token redacted
// and attaches the static check of it.
func readGatewayConfig(snapshot *Snapshot, path string) {
	snapshot.GatewayConfigPath = path
	report := config.CheckOpenClawConfig(path)
	snapshot.GatewayCheck = &report

	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	if len(data) > maxConfigBytes {
		data = append(data[:maxConfigBytes:maxConfigBytes], "\n... (truncated)"...)
	}
	text := string(data)
	if local, err := config.ReadLocalGateway(path); err == nil && local.Token != "" {
		text = strings.ReplaceAll(text, local.Token, "<redacted>")
	}
	snapshot.GatewayConfig = text
}

// Context renders the snapshot as the text block sent with the
// diagnosis prompt.
func (s Snapshot) Context() string {
	var builder strings.Builder
	line := func(label, format string, args ...any) {
		fmt.Fprintf(&builder, "%s: %s\n", label, fmt.Sprintf(format, args...))
	}

	if s.Hostname != "" {
		line("hostname", "%s", s.Hostname)
	}
	if s.Kernel != "" {
		line("kernel", "%s", s.Kernel)
	}
	line("os", "%s/%s", s.OS, s.Arch)
	switch {
	case s.CPUModel != "":
		line("cpu", "%s (%d logical)", s.CPUModel, s.CPUCount)
	case s.CPUCount > 0:
		line("cpu", "%d logical", s.CPUCount)
	}
	if s.MemoryTotalMB > 0 {
		line("memory", "%d MiB total, %d MiB available", s.MemoryTotalMB, s.MemoryAvailableMB)
	}
	if s.HasLoad {
		line("load", "%.2f %.2f %.2f", s.Load[0], s.Load[1], s.Load[2])
	}
	if s.Uptime > 0 {
		line("uptime", "%s", formatUptime(s.Uptime))
	}
	if s.RootTotalBytes > 0 {
		line("root filesystem", "%s free of %s", formatBytes(s.RootFreeBytes), formatBytes(s.RootTotalBytes))
	}

	if s.GatewayCheck != nil {
		builder.WriteString(s.GatewayCheck.String())
	}
	if s.GatewayConfig != "" {
		fmt.Fprintf(&builder, "gateway config %s:\n%s", s.GatewayConfigPath, s.GatewayConfig)
		if !strings.HasSuffix(s.GatewayConfig, "\n") {
			builder.WriteByte('\n')
		}
	}
	return builder.String()
}

func formatUptime(uptime time.Duration) string {
	days := int(uptime / (24 * time.Hour))
	hours := int(uptime % (24 * time.Hour) / time.Hour)
	minutes := int(uptime % time.Hour / time.Minute)
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

func formatBytes(bytes uint64) string {
	const gib = 1 << 30
	if bytes >= gib {
		return fmt.Sprintf("%.1f GiB", float64(bytes)/gib)
	}
	return fmt.Sprintf("%d MiB", bytes>>20)
}
