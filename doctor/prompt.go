// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package doctor

import (
	"fmt"
	"strings"
)

// DiagnosisPrompt builds the opening message of a session. The system
// context is passed through verbatim.
func DiagnosisPrompt(target, systemContext string) string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "You are diagnosing the OpenClaw installation on target %q.\n", target)
	builder.WriteString("Inspect the machine with the system.run tool on this node. ")
	builder.WriteString("Each command is shown to the operator, who approves or rejects it; ")
	builder.WriteString("prefer read-only commands and explain why you need anything that changes state.\n")
	builder.WriteString("Report what you find, the likely cause, and the fix you propose.\n")
	if strings.TrimSpace(systemContext) != "" {
		builder.WriteString("\nCurrent system state:\n")
		builder.WriteString(systemContext)
		if !strings.HasSuffix(systemContext, "\n") {
			builder.WriteString("\n")
		}
	}
	return builder.String()
}

// expiredResultText is the chat message that carries a result the
// gateway no longer accepts as an invoke result.
func expiredResultText(invoke Invoke, output string) string {
	if output == "" {
		output = "(no output)"
	}
	return fmt.Sprintf("The operator approved `%s` after the invoke timed out. Its result:\n\n%s", invoke.Summary(), output)
}
