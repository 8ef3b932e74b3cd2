// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hostinfo

import (
	"bufio"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// collectHost reads /proc under procRoot and statfs of rootPath, so tests can
// point it at a synthetic tree.
func collectHost(procRoot, rootPath string) Snapshot {
	snapshot := Snapshot{OS: runtime.GOOS, Arch: runtime.GOARCH, CPUCount: runtime.NumCPU()}
	snapshot.Hostname, _ = os.Hostname()

	var utsname unix.Utsname
	if err := unix.Uname(&utsname); err == nil {
		snapshot.Kernel = unix.ByteSliceToString(utsname.Release[:])
	}

	snapshot.CPUModel = readCPUModel(filepath.Join(procRoot, "cpuinfo"))
	snapshot.MemoryTotalMB, snapshot.MemoryAvailableMB = readMemory(filepath.Join(procRoot, "meminfo"))
	snapshot.Load, snapshot.HasLoad = readLoad(filepath.Join(procRoot, "loadavg"))
	snapshot.Uptime = readUptime(filepath.Join(procRoot, "uptime"))

	var stat unix.Statfs_t
	if err := unix.Statfs(rootPath, &stat); err == nil {
		blockSize := uint64(stat.Bsize)
		snapshot.RootTotalBytes = stat.Blocks * blockSize
		snapshot.RootFreeBytes = stat.Bavail * blockSize
	}
	return snapshot
}

// readCPUModel returns the first "model name" of /proc/cpuinfo.
func readCPUModel(path string) string {
	file, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		name, value, found := strings.Cut(scanner.Text(), ":")
		if found && strings.TrimSpace(name) == "model name" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// readMemory returns MemTotal and MemAvailable from /proc/meminfo in
// MiB.
func readMemory(path string) (totalMB, availableMB int) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		kilobytes, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			totalMB = kilobytes / 1024
		case "MemAvailable:":
			availableMB = kilobytes / 1024
		}
	}
	return totalMB, availableMB
}

// readLoad parses "0.52 0.58 0.59 1/467 12345".
func readLoad(path string) ([3]float64, bool) {
	var load [3]float64
	data, err := os.ReadFile(path)
	if err != nil {
		return load, false
	}
	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		return load, false
	}
	for index := range load {
		value, err := strconv.ParseFloat(fields[index], 64)
		if err != nil {
			return [3]float64{}, false
		}
		load[index] = value
	}
	return load, true
}

// readUptime parses the first field of /proc/uptime, in seconds.
func readUptime(path string) time.Duration {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0
	}
	seconds, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}
