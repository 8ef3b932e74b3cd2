// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/clawpal/clawpal/archive"
	"github.com/clawpal/clawpal/cmd/clawpal/cli"
	"github.com/clawpal/clawpal/doctor"
	"github.com/clawpal/clawpal/gateway"
	"github.com/clawpal/clawpal/lib/config"
)

func TestCheckCommand(t *testing.T) {
	directory := t.TempDir()
	healthy := filepath.Join(directory, "openclaw.json")
	if err := os.WriteFile(healthy, []byte(`{
		// local gateway
		"agents": {"list": [{"id": "main"}]},
		"gateway": {"port": 18789},
	}`), 0o600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := checkCommand(&out).Execute([]string{"--file", healthy}); err != nil {
		t.Fatalf("healthy config: %v", err)
	}
	if !strings.Contains(out.String(), "score 100 (healthy)") {
		t.Errorf("output = %q", out.String())
	}

	out.Reset()
	err := checkCommand(&out).Execute([]string{"--file", filepath.Join(directory, "missing.json")})
	var exit *cli.ExitError
	if !errors.As(err, &exit) || exit.Code != 1 {
		t.Fatalf("missing config: err = %v, want exit code 1", err)
	}
	if !strings.Contains(out.String(), "(unhealthy)") {
		t.Errorf("output = %q", out.String())
	}
}

func TestLoadConfigReportsValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clawpal.yaml")
	if err := os.WriteFile(path, []byte("paths:\n  data: relative/dir\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfig(path); err == nil || !strings.Contains(err.Error(), "paths.data must be absolute") {
		t.Fatalf("loadConfig = %v, want validation error", err)
	}
}

func TestHistoryListsArchivedSessions(t *testing.T) {
	directory := t.TempDir()
	configPath := filepath.Join(directory, "clawpal.yaml")
	if err := os.WriteFile(configPath, []byte("paths:\n  data: "+directory+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	store, err := openStore(filepath.Join(directory, "archive.db"), 0, nil)
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	record := doctor.SessionRecord{
		Session:   doctor.Session{Key: "agent:main:diagnostic:local:one", Target: "local", AgentID: "main"},
		StartedAt: started,
		EndedAt:   started.Add(time.Minute),
		Messages: []doctor.Message{
			{ID: 1, Kind: doctor.MessageUser, Text: "is it up?", CreatedAt: started},
			{ID: 2, Kind: doctor.MessageAssistant, Text: "It is.", CreatedAt: started},
		},
	}
	if err := store.Archive(t.Context(), record); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	store.Close()

	var out bytes.Buffer
	history := historyCommand(&out)
	if err := history.Execute([]string{"list", "--config", configPath}); err != nil {
		t.Fatalf("history list: %v", err)
	}
	if !strings.Contains(out.String(), "agent:main:diagnostic:local:one") {
		t.Errorf("list output = %q", out.String())
	}

	out.Reset()
	if err := history.Execute([]string{"show", "--config", configPath, record.Session.Key}); err != nil {
		t.Fatalf("history show: %v", err)
	}
	if !strings.Contains(out.String(), "you› is it up?") || !strings.Contains(out.String(), "agent› It is.") {
		t.Errorf("show output = %q", out.String())
	}

	out.Reset()
	if err := history.Execute([]string{"delete", "--config", configPath, record.Session.Key}); err != nil {
		t.Fatalf("history delete: %v", err)
	}
	err = history.Execute([]string{"show", "--config", configPath, record.Session.Key})
	if !errors.Is(err, archive.ErrNotFound) {
		t.Fatalf("show after delete = %v, want ErrNotFound", err)
	}
}

func TestWriteSummariesEmpty(t *testing.T) {
	var out bytes.Buffer
	if err := writeSummaries(&out, nil); err != nil {
		t.Fatal(err)
	}
	if out.String() != "no archived sessions\n" {
		t.Fatalf("output = %q", out.String())
	}
}

func TestGatewayClientRejectsBadTimeouts(t *testing.T) {
	identity, err := gateway.GenerateIdentity()
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.DiscardHandler)

	cfg := config.Default()
	cfg.Gateway.RequestTimeout = "soon"
	if _, err := newGatewayClient(cfg, identity, logger); err == nil || !strings.Contains(err.Error(), "gateway.request_timeout") {
		t.Fatalf("bad request timeout: err = %v", err)
	}

	cfg = config.Default()
	cfg.Gateway.UserPendingAfter = "-5s"
	if _, err := newGatewayClient(cfg, identity, logger); err == nil || !strings.Contains(err.Error(), "gateway.user_pending_after") {
		t.Fatalf("negative user pending delay: err = %v", err)
	}

	client, err := newGatewayClient(config.Default(), identity, logger)
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	client.Close()
}
