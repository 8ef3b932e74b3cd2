// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package hostinfo collects a snapshot of the local system for the
// diagnostic prompt: host identity, kernel, CPU, memory, load, root
// filesystem usage, and the gateway's own config file with its auth
// token redacted.
//
// Probing never fails. Files that are missing or unreadable leave
// their fields zero, and [Snapshot.Context] omits zero fields, so a
// container without /proc still yields a usable context.
//
// On Linux the values come from /proc, uname(2) and statfs(2). Other
// platforms report only what the Go runtime knows.
package hostinfo
