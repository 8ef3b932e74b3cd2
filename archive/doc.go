// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive stores finished diagnostic sessions in SQLite.
//
// Each session is one row keyed by session key. The searchable fields
// (target, agent, start and end time, message counts) are columns; the
// transcript itself is a single zstd-compressed CBOR blob, decoded only
// when a session is loaded. The store keeps a bounded number of
// sessions and prunes the oldest, by end time, on every write.
//
// [Store] implements [doctor.Archiver], so a controller configured with
// one archives each session as it is replaced or reset.
package archive
