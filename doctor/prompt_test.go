// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package doctor

import (
	"strings"
	"testing"
)

func TestDiagnosisPromptCarriesContextVerbatim(t *testing.T) {
	context := "  hostname: test\n\tload: 0.10 0.20 0.30\n\ngateway config /x:\n  {}\n"
	prompt := DiagnosisPrompt("local", context)
	if !strings.HasSuffix(prompt, "Current system state:\n"+context) {
		t.Fatalf("context altered in prompt:\n%q", prompt)
	}

	unterminated := DiagnosisPrompt("local", "  uptime: 5m")
	if !strings.HasSuffix(unterminated, "Current system state:\n  uptime: 5m\n") {
		t.Errorf("prompt = %q", unterminated)
	}
}

func TestDiagnosisPromptOmitsBlankContext(t *testing.T) {
	prompt := DiagnosisPrompt("host-7", " \n\t")
	if strings.Contains(prompt, "Current system state") {
		t.Fatalf("blank context produced a section:\n%s", prompt)
	}
	if !strings.Contains(prompt, `target "host-7"`) {
		t.Errorf("prompt does not name the target:\n%s", prompt)
	}
}
