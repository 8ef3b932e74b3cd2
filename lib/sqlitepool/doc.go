// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens zombiezen.com/go/sqlite connection pools
// with the pragmas ClawPal's local stores expect: WAL journaling,
// NORMAL synchronous, a busy timeout for writer contention, and an
// in-memory temp store.
//
// The session archive is the only consumer. It passes its schema as
// OnConnect so every pooled connection sees the tables before first
// use:
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:      filepath.Join(dataDir, "archive.db"),
//	    OnConnect: func(conn *sqlite.Conn) error {
//	        return sqlitex.ExecuteScript(conn, schema, nil)
//	    },
//	})
//
// Connections are not safe for concurrent use: Take one per goroutine
// and Put it back when done.
package sqlitepool
