// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/jsonc"
)

// Severity grades a config finding.
type Severity string

const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warn"
)

// HealthyScore is the lowest score a healthy config has.
const HealthyScore = 80

// Finding is one problem with the local gateway config.
type Finding struct {
	ID       string
	Severity Severity
	Message  string
	Hint     string
	penalty  int
}

// CheckReport is the result of CheckOpenClawConfig.
type CheckReport struct {
	Path     string
	Score    int
	Findings []Finding
}

// Healthy reports whether the score reaches HealthyScore.
func (r CheckReport) Healthy() bool {
	return r.Score >= HealthyScore
}

// String renders the report as plain text, one finding per line.
func (r CheckReport) String() string {
	var builder strings.Builder
	status := "healthy"
	if !r.Healthy() {
		status = "unhealthy"
	}
	fmt.Fprintf(&builder, "gateway config %s: score %d (%s)\n", r.Path, r.Score, status)
	for _, finding := range r.Findings {
		fmt.Fprintf(&builder, "  [%s] %s: %s", finding.Severity, finding.ID, finding.Message)
		if finding.Hint != "" {
			fmt.Fprintf(&builder, " (%s)", finding.Hint)
		}
		builder.WriteByte('\n')
	}
	return builder.String()
}

// CheckOpenClawConfig statically checks the gateway config at path. It
// never fails: an unreadable file is itself a finding.
func CheckOpenClawConfig(path string) CheckReport {
	report := CheckReport{Path: path, Score: 100}
	add := func(finding Finding) {
		for _, existing := range report.Findings {
			if existing.ID == finding.ID {
				return
			}
		}
		report.Findings = append(report.Findings, finding)
		report.Score = max(report.Score-finding.penalty, 0)
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		add(Finding{
			ID: "permission.config", Severity: SeverityError, penalty: 20,
			Message: "config file does not exist", Hint: "create the file then retry",
		})
		// Checked as an empty config from here on.
		data = []byte("{}")
	case err != nil:
		add(Finding{
			ID: "permission.config", Severity: SeverityError, penalty: 20,
			Message: "config file is inaccessible", Hint: "grant read permission then retry",
		})
		return report
	}
	if info, statErr := os.Stat(path); statErr == nil && info.Mode().Perm()&0o222 == 0 {
		add(Finding{
			ID: "permission.config", Severity: SeverityError, penalty: 20,
			Message: "config file is read-only", Hint: "grant write permission then retry",
		})
	}

	var document map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &document); err != nil {
		add(Finding{
			ID: "json.syntax", Severity: SeverityError, penalty: 40,
			Message: "invalid JSON5 syntax", Hint: "remove trailing garbage and unmatched quotes",
		})
		return report
	}

	if _, exists := document["agents"]; !exists {
		add(Finding{
			ID: "field.agents", Severity: SeverityWarn, penalty: 10,
			Message: "missing agents section", Hint: "add agents.defaults with minimal values",
		})
	}
	if gateway, ok := document["gateway"].(map[string]any); ok {
		if port, present := gateway["port"]; present {
			number, isNumber := port.(float64)
			if !isNumber || number < 1 || number > 65535 || number != float64(int(number)) {
				add(Finding{
					ID: "field.port", Severity: SeverityError, penalty: 20,
					Message: fmt.Sprintf("gateway port %v is invalid", port),
				})
			}
		}
	}
	return report
}
