// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework behind the clawpal binary:
// a tree of [Command] values dispatched by name, pflag flag sets parsed
// per command, typo suggestions for unknown commands and flags, and the
// logger every command shares.
package cli
