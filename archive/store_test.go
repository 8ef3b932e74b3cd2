// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/clawpal/clawpal/archive"
	"github.com/clawpal/clawpal/doctor"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T, maxSessions int) *archive.Store {
	t.Helper()
	store, err := archive.Open(archive.Config{
		Path:        filepath.Join(t.TempDir(), "archive.db"),
		MaxSessions: maxSessions,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRecord(key string, ended time.Time) doctor.SessionRecord {
	invoke := &doctor.Invoke{
		ID: "inv-1", Type: doctor.InvokeRead, Command: "system.run",
		Args: map[string]any{"command": []any{"sh", "-lc", "uptime"}, "timeoutMs": 1500.0},
	}
	return doctor.SessionRecord{
		Session:   doctor.Session{Key: key, Target: "local", AgentID: "main"},
		StartedAt: ended.Add(-time.Minute),
		EndedAt:   ended,
		Messages: []doctor.Message{
			{ID: 1, Kind: doctor.MessageUser, Text: "diagnose", CreatedAt: ended.Add(-time.Minute)},
			{ID: 2, Kind: doctor.MessageToolCall, Invoke: invoke, Status: doctor.StatusAuto, CreatedAt: ended.Add(-50 * time.Second)},
			{ID: 3, Kind: doctor.MessageToolResult, InvokeID: "inv-1", Result: json.RawMessage(`{"stdout":"up 3 days"}`), CreatedAt: ended.Add(-40 * time.Second)},
			{ID: 4, Kind: doctor.MessageAssistant, Text: "Load is normal.", CreatedAt: ended.Add(-123 * time.Millisecond)},
		},
	}
}

func TestArchiveAndLoad(t *testing.T) {
	store := openTestStore(t, 0)
	ctx := context.Background()
	record := sampleRecord("agent:main:diagnostic:local:a", epoch)

	if err := store.Archive(ctx, record); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	loaded, err := store.Load(ctx, record.Session.Key)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Session != record.Session || !loaded.EndedAt.Equal(record.EndedAt) || !loaded.StartedAt.Equal(record.StartedAt) {
		t.Errorf("loaded session %+v ended %v", loaded.Session, loaded.EndedAt)
	}
	if len(loaded.Messages) != 4 {
		t.Fatalf("loaded %d messages, want 4", len(loaded.Messages))
	}
	call := loaded.Messages[1]
	if call.Invoke == nil || call.Invoke.ShellCommand() != "uptime" || call.Status != doctor.StatusAuto {
		t.Errorf("tool call = %+v", call)
	}
	if got := loaded.Messages[2].ResultText(); got != "up 3 days" {
		t.Errorf("result text = %q", got)
	}
	if !loaded.Messages[3].CreatedAt.Equal(record.Messages[3].CreatedAt) {
		t.Errorf("message time %v, want %v", loaded.Messages[3].CreatedAt, record.Messages[3].CreatedAt)
	}
}

func TestArchiveReplacesSameKey(t *testing.T) {
	store := openTestStore(t, 0)
	ctx := context.Background()
	record := sampleRecord("k", epoch)
	store.Archive(ctx, record)
	record.Messages = record.Messages[:1]
	if err := store.Archive(ctx, record); err != nil {
		t.Fatalf("second Archive: %v", err)
	}
	summaries, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(summaries) != 1 || summaries[0].MessageCount != 1 || summaries[0].ToolCalls != 0 {
		t.Errorf("summaries = %+v", summaries)
	}
}

func TestListNewestFirstAndPrunes(t *testing.T) {
	store := openTestStore(t, 3)
	ctx := context.Background()
	for index := range 5 {
		record := sampleRecord(fmt.Sprintf("s%d", index), epoch.Add(time.Duration(index)*time.Hour))
		if err := store.Archive(ctx, record); err != nil {
			t.Fatalf("Archive %d: %v", index, err)
		}
	}

	summaries, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var keys []string
	for _, summary := range summaries {
		keys = append(keys, summary.Session.Key)
	}
	if fmt.Sprint(keys) != "[s4 s3 s2]" {
		t.Errorf("kept %v, want [s4 s3 s2]", keys)
	}
	if summaries[0].ToolCalls != 1 || summaries[0].MessageCount != 4 {
		t.Errorf("summary counts = %+v", summaries[0])
	}
	if _, err := store.Load(ctx, "s0"); !errors.Is(err, archive.ErrNotFound) {
		t.Errorf("Load pruned session = %v, want ErrNotFound", err)
	}

	limited, err := store.List(ctx, 1)
	if err != nil || len(limited) != 1 || limited[0].Session.Key != "s4" {
		t.Errorf("List(1) = %+v, %v", limited, err)
	}
}

func TestDelete(t *testing.T) {
	store := openTestStore(t, 0)
	ctx := context.Background()
	store.Archive(ctx, sampleRecord("gone", epoch))

	if err := store.Delete(ctx, "gone"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, "gone"); !errors.Is(err, archive.ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
	if _, err := store.Load(ctx, "gone"); !errors.Is(err, archive.ErrNotFound) {
		t.Errorf("Load deleted = %v", err)
	}
}

func TestArchiveRequiresKey(t *testing.T) {
	store := openTestStore(t, 0)
	if err := store.Archive(context.Background(), doctor.SessionRecord{}); err == nil {
		t.Error("archived a session without a key")
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	first, err := archive.Open(archive.Config{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := first.Archive(context.Background(), sampleRecord("persisted", epoch)); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	first.Close()

	second, err := archive.Open(archive.Config{Path: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	if _, err := second.Load(context.Background(), "persisted"); err != nil {
		t.Errorf("Load after reopen: %v", err)
	}
}

// silentGateway accepts every call.
type silentGateway struct{}

func (silentGateway) SendChat(context.Context, doctor.ChatRequest) error           { return nil }
func (silentGateway) ApproveInvoke(context.Context, doctor.ApprovalRequest) error { return nil }
func (silentGateway) RejectInvoke(context.Context, string, string) error          { return nil }

func TestControllerArchivesOnReset(t *testing.T) {
	store := openTestStore(t, 0)
	controller, err := doctor.NewController(doctor.ControllerConfig{Gateway: silentGateway{}, Archiver: store})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	defer controller.Close()

	controller.Handle(doctor.OperatorConnected{})
	session, err := controller.StartDiagnosis(context.Background(), doctor.DiagnosisRequest{Target: "local", AgentID: "main"})
	if err != nil {
		t.Fatalf("StartDiagnosis: %v", err)
	}
	controller.Handle(doctor.ChatFinal{SessionKey: session.Key, Text: "All good."})
	controller.Reset()

	record, err := store.Load(context.Background(), session.Key)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(record.Messages) != 2 || record.Messages[1].Text != "All good." || record.Session.Active {
		t.Errorf("archived %+v", record)
	}
}
