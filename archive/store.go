// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/clawpal/clawpal/doctor"
	"github.com/clawpal/clawpal/lib/codec"
	"github.com/clawpal/clawpal/lib/sqlitepool"
)

// DefaultMaxSessions is how many sessions a store keeps when
// Config.MaxSessions is zero.
const DefaultMaxSessions = 200

// ErrNotFound is returned by Load and Delete for an unknown session key.
var ErrNotFound = errors.New("archive: session not found")

const schema = `
	CREATE TABLE IF NOT EXISTS sessions (
		session_key   TEXT PRIMARY KEY,
		target        TEXT NOT NULL,
		agent_id      TEXT NOT NULL,
		started_at    INTEGER NOT NULL,
		ended_at      INTEGER NOT NULL,
		message_count INTEGER NOT NULL,
		tool_calls    INTEGER NOT NULL,
		messages      BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_ended ON sessions(ended_at);
`

// Config describes a store to open.
type Config struct {
	// Path is the SQLite database file. Its directory must exist.
	Path string

	// MaxSessions bounds the number of archived sessions. Defaults to
	// DefaultMaxSessions.
	MaxSessions int

	Logger *slog.Logger
}

// Summary describes an archived session without its transcript.
type Summary struct {
	Session      doctor.Session
	StartedAt    time.Time
	EndedAt      time.Time
	MessageCount int
	ToolCalls    int
}

// Store is a SQLite-backed session archive. It is safe for concurrent
// use.
type Store struct {
	pool        *sqlitepool.Pool
	maxSessions int
	logger      *slog.Logger
}

var _ doctor.Archiver = (*Store)(nil)

// Open opens or creates the archive at config.Path.
func Open(config Config) (*Store, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxSessions := config.MaxSessions
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   config.Path,
		Logger: logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	return &Store{pool: pool, maxSessions: maxSessions, logger: logger}, nil
}

// Close waits for in-flight operations and closes the database.
func (store *Store) Close() error {
	return store.pool.Close()
}

// Archive writes record, replacing any session with the same key, and
// prunes the oldest sessions beyond the configured maximum.
func (store *Store) Archive(ctx context.Context, record doctor.SessionRecord) (err error) {
	if record.Session.Key == "" {
		return errors.New("archive: session without a key")
	}
	blob, err := codec.MarshalCompressed(record.Messages)
	if err != nil {
		return fmt.Errorf("archive: encoding %s: %w", record.Session.Key, err)
	}
	toolCalls := 0
	for _, message := range record.Messages {
		if message.Kind == doctor.MessageToolCall {
			toolCalls++
		}
	}

	conn, err := store.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	defer store.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("archive: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	err = sqlitex.Execute(conn, `
		INSERT INTO sessions
			(session_key, target, agent_id, started_at, ended_at, message_count, tool_calls, messages)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_key) DO UPDATE SET
			target = excluded.target,
			agent_id = excluded.agent_id,
			started_at = excluded.started_at,
			ended_at = excluded.ended_at,
			message_count = excluded.message_count,
			tool_calls = excluded.tool_calls,
			messages = excluded.messages`,
		&sqlitex.ExecOptions{Args: []any{
			record.Session.Key,
			record.Session.Target,
			record.Session.AgentID,
			record.StartedAt.UnixNano(),
			record.EndedAt.UnixNano(),
			len(record.Messages),
			toolCalls,
			blob,
		}})
	if err != nil {
		return fmt.Errorf("archive: writing %s: %w", record.Session.Key, err)
	}

	err = sqlitex.Execute(conn, `
		DELETE FROM sessions WHERE session_key NOT IN (
			SELECT session_key FROM sessions ORDER BY ended_at DESC, rowid DESC LIMIT ?
		)`,
		&sqlitex.ExecOptions{Args: []any{store.maxSessions}})
	if err != nil {
		return fmt.Errorf("archive: pruning: %w", err)
	}
	if pruned := conn.Changes(); pruned > 0 {
		store.logger.Info("archive pruned", "removed", pruned, "max_sessions", store.maxSessions)
	}

	store.logger.Debug("session archived",
		"session_key", record.Session.Key,
		"messages", len(record.Messages),
		"compressed_bytes", len(blob),
	)
	return nil
}

// List returns up to limit sessions, most recently ended first. A limit
// of zero or less returns all of them.
func (store *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	conn, err := store.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	defer store.pool.Put(conn)

	if limit <= 0 {
		limit = -1
	}
	var summaries []Summary
	err = sqlitex.Execute(conn, `
		SELECT session_key, target, agent_id, started_at, ended_at, message_count, tool_calls
		FROM sessions ORDER BY ended_at DESC, rowid DESC LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				summaries = append(summaries, Summary{
					Session: doctor.Session{
						Key:     stmt.ColumnText(0),
						Target:  stmt.ColumnText(1),
						AgentID: stmt.ColumnText(2),
					},
					StartedAt:    time.Unix(0, stmt.ColumnInt64(3)),
					EndedAt:      time.Unix(0, stmt.ColumnInt64(4)),
					MessageCount: stmt.ColumnInt(5),
					ToolCalls:    stmt.ColumnInt(6),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("archive: listing sessions: %w", err)
	}
	return summaries, nil
}

// Load returns the archived session with sessionKey.
func (store *Store) Load(ctx context.Context, sessionKey string) (doctor.SessionRecord, error) {
	conn, err := store.pool.Take(ctx)
	if err != nil {
		return doctor.SessionRecord{}, fmt.Errorf("archive: %w", err)
	}
	defer store.pool.Put(conn)

	var record doctor.SessionRecord
	var blob []byte
	found := false
	err = sqlitex.Execute(conn, `
		SELECT target, agent_id, started_at, ended_at, messages
		FROM sessions WHERE session_key = ?`,
		&sqlitex.ExecOptions{
			Args: []any{sessionKey},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				record.Session = doctor.Session{Key: sessionKey, Target: stmt.ColumnText(0), AgentID: stmt.ColumnText(1)}
				record.StartedAt = time.Unix(0, stmt.ColumnInt64(2))
				record.EndedAt = time.Unix(0, stmt.ColumnInt64(3))
				blob = make([]byte, stmt.ColumnLen(4))
				stmt.ColumnBytes(4, blob)
				return nil
			},
		})
	if err != nil {
		return doctor.SessionRecord{}, fmt.Errorf("archive: loading %s: %w", sessionKey, err)
	}
	if !found {
		return doctor.SessionRecord{}, fmt.Errorf("%w: %s", ErrNotFound, sessionKey)
	}
	if err := codec.UnmarshalCompressed(blob, &record.Messages); err != nil {
		return doctor.SessionRecord{}, fmt.Errorf("archive: decoding %s: %w", sessionKey, err)
	}
	return record, nil
}

// Delete removes the archived session with sessionKey.
func (store *Store) Delete(ctx context.Context, sessionKey string) error {
	conn, err := store.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	defer store.pool.Put(conn)

	if err := sqlitex.Execute(conn, "DELETE FROM sessions WHERE session_key = ?", &sqlitex.ExecOptions{
		Args: []any{sessionKey},
	}); err != nil {
		return fmt.Errorf("archive: deleting %s: %w", sessionKey, err)
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionKey)
	}
	return nil
}
