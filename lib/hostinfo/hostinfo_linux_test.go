// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hostinfo

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeSyntheticFile creates root/path with content.
func writeSyntheticFile(t *testing.T, root, path, content string) {
	t.Helper()
	fullPath := filepath.Join(root, path)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(fullPath), err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", fullPath, err)
	}
}

func TestCollectHostFromSyntheticProc(t *testing.T) {
	root := t.TempDir()
	writeSyntheticFile(t, root, "proc/cpuinfo",
		"processor\t: 0\nvendor_id\t: GenuineIntel\nmodel name\t: Intel(R) Xeon(R) CPU E5-2680 v4 @ 2.40GHz\n\n"+
			"processor\t: 1\nmodel name\t: Intel(R) Xeon(R) CPU E5-2680 v4 @ 2.40GHz\n")
	writeSyntheticFile(t, root, "proc/meminfo",
		"MemTotal:       16384000 kB\nMemFree:         1024000 kB\nMemAvailable:    8192000 kB\n")
	writeSyntheticFile(t, root, "proc/loadavg", "0.52 0.58 0.59 1/467 12345\n")
	writeSyntheticFile(t, root, "proc/uptime", "93784.50 180000.00\n")

	snapshot := collectHost(filepath.Join(root, "proc"), root)
	if snapshot.CPUModel != "Intel(R) Xeon(R) CPU E5-2680 v4 @ 2.40GHz" {
		t.Errorf("cpu model = %q", snapshot.CPUModel)
	}
	if snapshot.MemoryTotalMB != 16000 || snapshot.MemoryAvailableMB != 8000 {
		t.Errorf("memory = %d / %d", snapshot.MemoryTotalMB, snapshot.MemoryAvailableMB)
	}
	if !snapshot.HasLoad || snapshot.Load != [3]float64{0.52, 0.58, 0.59} {
		t.Errorf("load = %v (%v)", snapshot.Load, snapshot.HasLoad)
	}
	if snapshot.Uptime != 93784*time.Second+500*time.Millisecond {
		t.Errorf("uptime = %v", snapshot.Uptime)
	}
	if snapshot.RootTotalBytes == 0 || snapshot.RootFreeBytes > snapshot.RootTotalBytes {
		t.Errorf("root filesystem = %d free of %d", snapshot.RootFreeBytes, snapshot.RootTotalBytes)
	}
	if snapshot.Kernel == "" || snapshot.OS != "linux" {
		t.Errorf("kernel %q os %q", snapshot.Kernel, snapshot.OS)
	}
}

func TestCollectHostWithoutProc(t *testing.T) {
	root := t.TempDir()
	snapshot := collectHost(filepath.Join(root, "proc"), root)
	if snapshot.CPUModel != "" || snapshot.MemoryTotalMB != 0 || snapshot.HasLoad || snapshot.Uptime != 0 {
		t.Errorf("snapshot from an empty tree = %+v", snapshot)
	}
	if snapshot.CPUCount == 0 {
		t.Error("runtime CPU count missing")
	}
}

func TestReadLoadRejectsGarbage(t *testing.T) {
	root := t.TempDir()
	writeSyntheticFile(t, root, "loadavg", "0.1 x 0.3\n")
	if _, ok := readLoad(filepath.Join(root, "loadavg")); ok {
		t.Error("malformed loadavg parsed")
	}
}
