// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR configuration used for everything
// ClawPal writes to its own storage.
//
// JSON stays the format of the gateway wire protocol, since the gateway
// defines it. Archived transcripts are internal, so they are encoded as
// deterministic CBOR (RFC 8949 §4.2) and, for the archive blob column,
// compressed with zstd:
//
//	blob, err := codec.MarshalCompressed(messages)
//	err = codec.UnmarshalCompressed(blob, &messages)
//
// Values decoded into interface-typed targets use map[string]any, so
// tool-call arguments survive a round trip with the same shape the
// gateway delivered them in.
package codec
