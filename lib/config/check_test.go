// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func findingIDs(report CheckReport) []string {
	var ids []string
	for _, finding := range report.Findings {
		ids = append(ids, finding.ID)
	}
	return ids
}

func TestCheckHealthyConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "openclaw.json")
	writeFile(t, path, `{
		// comments and trailing commas are allowed
		"agents": {"defaults": {"model": "gpt-4o"}},
		"gateway": {"port": 18789,},
	}`)
	report := CheckOpenClawConfig(path)
	if report.Score != 100 || len(report.Findings) != 0 || !report.Healthy() {
		t.Errorf("report = %+v", report)
	}
}

func TestCheckFindings(t *testing.T) {
	tests := []struct {
		name    string
		content string
		mode    os.FileMode
		ids     []string
		score   int
	}{
		{"missing agents", `{"gateway": {"port": 1}}`, 0o600, []string{"field.agents"}, 90},
		{"bad port", `{"agents": {}, "gateway": {"port": 70000}}`, 0o600, []string{"field.port"}, 80},
		{"zero port", `{"agents": {}, "gateway": {"port": 0}}`, 0o600, []string{"field.port"}, 80},
		{"string port", `{"agents": {}, "gateway": {"port": "80"}}`, 0o600, []string{"field.port"}, 80},
		{"syntax", `{"agents": `, 0o600, []string{"json.syntax"}, 60},
		{"read-only", `{"agents": {}}`, 0o400, []string{"permission.config"}, 80},
		{"everything", `{"gateway": {"port": 99999}}`, 0o400, []string{"permission.config", "field.agents", "field.port"}, 50},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "openclaw.json")
			if err := os.WriteFile(path, []byte(test.content), test.mode); err != nil {
				t.Fatal(err)
			}
			report := CheckOpenClawConfig(path)
			if got := strings.Join(findingIDs(report), ","); got != strings.Join(test.ids, ",") {
				t.Errorf("findings = %s, want %s", got, strings.Join(test.ids, ","))
			}
			if report.Score != test.score {
				t.Errorf("score = %d, want %d", report.Score, test.score)
			}
		})
	}
}

func TestCheckMissingFile(t *testing.T) {
	report := CheckOpenClawConfig(filepath.Join(t.TempDir(), "absent.json"))
	if len(report.Findings) != 2 || report.Findings[0].Message != "config file does not exist" || report.Findings[1].ID != "field.agents" {
		t.Errorf("findings = %+v", report.Findings)
	}
	if report.Healthy() {
		t.Error("missing config reported healthy")
	}
	text := report.String()
	if !strings.Contains(text, "unhealthy") || !strings.Contains(text, "[error] permission.config") {
		t.Errorf("String() = %q", text)
	}
}
