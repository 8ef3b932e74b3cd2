// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package doctor

import (
	"slices"
	"strings"
	"sync"
)

// PatternFor derives the approval pattern "{command}:{pathPrefix}" for
// an invocation. The path prefix is the path argument cut after its
// last separator, or the whole path when it has none.
//
// Shell invocations usually carry no path argument. For those the
// command part becomes "{command} {program}" and the path is the first
// word of the command line that contains a separator, so approving
// "cat /etc/hosts" covers "cat /etc/resolv.conf" but not "rm /etc/hosts".
func PatternFor(invoke Invoke) string {
	command := invoke.Command
	path := invoke.Path()
	if path == "" {
		if fields := strings.Fields(invoke.ShellCommand()); len(fields) > 0 {
			command += " " + fields[0]
			for _, field := range fields[1:] {
				if strings.ContainsAny(field, `/\`) {
					path = field
					break
				}
			}
		}
	}
	return command + ":" + pathPrefix(path)
}

func pathPrefix(path string) string {
	index := strings.LastIndexAny(path, `/\`)
	if index < 0 {
		return path
	}
	return path[:index+1]
}

// ApprovalPatternCache is the set of approved patterns. It lives for
// the process, not the session, and is safe for concurrent use.
type ApprovalPatternCache struct {
	mutex    sync.RWMutex
	patterns map[string]struct{}
}

// NewApprovalPatternCache returns an empty cache.
func NewApprovalPatternCache() *ApprovalPatternCache {
	return &ApprovalPatternCache{patterns: make(map[string]struct{})}
}

// Add records pattern and reports whether it was new.
func (cache *ApprovalPatternCache) Add(pattern string) bool {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	if _, exists := cache.patterns[pattern]; exists {
		return false
	}
	cache.patterns[pattern] = struct{}{}
	return true
}

// Contains reports whether pattern has been approved.
func (cache *ApprovalPatternCache) Contains(pattern string) bool {
	cache.mutex.RLock()
	defer cache.mutex.RUnlock()
	_, exists := cache.patterns[pattern]
	return exists
}

// Len returns the number of approved patterns.
func (cache *ApprovalPatternCache) Len() int {
	cache.mutex.RLock()
	defer cache.mutex.RUnlock()
	return len(cache.patterns)
}

// Patterns returns the approved patterns in sorted order.
func (cache *ApprovalPatternCache) Patterns() []string {
	cache.mutex.RLock()
	defer cache.mutex.RUnlock()
	out := make([]string, 0, len(cache.patterns))
	for pattern := range cache.patterns {
		out = append(out, pattern)
	}
	slices.Sort(out)
	return out
}

// Clear forgets every pattern. Session reset does not call this; it is
// the explicit operator action.
func (cache *ApprovalPatternCache) Clear() {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	clear(cache.patterns)
}
