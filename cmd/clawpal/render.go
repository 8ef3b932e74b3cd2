// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/clawpal/clawpal/doctor"
)

// maxResultLines is how many lines of tool output are shown inline.
const maxResultLines = 20

// renderer formats transcript entries as terminal lines.
type renderer struct {
	width int

	user      lipgloss.Style
	assistant lipgloss.Style
	tool      lipgloss.Style
	output    lipgloss.Style
	dim       lipgloss.Style
	statuses  map[doctor.InvokeStatus]lipgloss.Style
	failure   lipgloss.Style
}

// newRenderer styles output for w, which decides the color profile.
// width bounds each tool output line; zero means 100 columns.
func newRenderer(w io.Writer, width int) *renderer {
	if width <= 0 {
		width = 100
	}
	profile := lipgloss.NewRenderer(w)
	return &renderer{
		width:     width,
		user:      profile.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		assistant: profile.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		tool:      profile.NewStyle().Foreground(lipgloss.Color("14")),
		output:    profile.NewStyle().Foreground(lipgloss.Color("250")),
		dim:       profile.NewStyle().Faint(true),
		failure:   profile.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		statuses: map[doctor.InvokeStatus]lipgloss.Style{
			doctor.StatusPending:  profile.NewStyle().Foreground(lipgloss.Color("11")),
			doctor.StatusApproved: profile.NewStyle().Foreground(lipgloss.Color("10")),
			doctor.StatusAuto:     profile.NewStyle().Foreground(lipgloss.Color("6")),
			doctor.StatusRejected: profile.NewStyle().Foreground(lipgloss.Color("9")),
		},
	}
}

// message renders one transcript entry, possibly over several lines.
func (r *renderer) message(message doctor.Message) string {
	switch message.Kind {
	case doctor.MessageUser:
		first, _, more := strings.Cut(strings.TrimSpace(message.Text), "\n")
		if more {
			first += " …"
		}
		return r.user.Render("you›") + " " + ansi.Truncate(first, r.width, "…")
	case doctor.MessageAssistant:
		return r.assistant.Render("agent›") + " " + message.Text
	case doctor.MessageToolCall:
		return r.toolCall(message)
	case doctor.MessageToolResult:
		return r.toolResult(message)
	}
	return message.Text
}

func (r *renderer) toolCall(message doctor.Message) string {
	if message.Invoke == nil {
		return ""
	}
	invoke := message.Invoke
	status := r.status(message.Status)
	if message.Status == doctor.StatusRejected && message.Reason != "" {
		status += r.dim.Render(" (" + message.Reason + ")")
	}
	return fmt.Sprintf("%s %s %s  %s  %s",
		r.tool.Render("tool›"),
		r.dim.Render("["+invoke.ID+"]"),
		invoke.Type,
		ansi.Truncate(invoke.Summary(), r.width, "…"),
		status,
	)
}

func (r *renderer) status(status doctor.InvokeStatus) string {
	style, ok := r.statuses[status]
	if !ok {
		return string(status)
	}
	return style.Render(string(status))
}

func (r *renderer) toolResult(message doctor.Message) string {
	text := strings.TrimRight(message.ResultText(), "\n")
	if text == "" {
		text = "(no output)"
	}
	lines := strings.Split(text, "\n")
	hidden := 0
	if len(lines) > maxResultLines {
		hidden = len(lines) - maxResultLines
		lines = lines[:maxResultLines]
	}
	var builder strings.Builder
	builder.WriteString(r.dim.Render("  ↳ [" + message.InvokeID + "]"))
	for _, line := range lines {
		builder.WriteString("\n    ")
		builder.WriteString(r.output.Render(ansi.Truncate(ansi.Strip(line), r.width, "…")))
	}
	if hidden > 0 {
		builder.WriteString("\n    ")
		builder.WriteString(r.dim.Render(fmt.Sprintf("… %d more lines", hidden)))
	}
	return builder.String()
}

// links renders the connection state line.
func (r *renderer) links(snapshot doctor.Snapshot) string {
	state := func(up bool) string {
		if up {
			return r.statuses[doctor.StatusApproved].Render("up")
		}
		return r.failure.Render("down")
	}
	mode := "manual"
	if snapshot.FullAuto {
		mode = "full-auto"
	}
	return fmt.Sprintf("operator %s  bridge %s  %s  %d pending",
		state(snapshot.Connected), state(snapshot.BridgeConnected), mode, len(pendingInvokes(snapshot)))
}

// failureLine renders a surfaced error.
func (r *renderer) failureLine(message string) string {
	return r.failure.Render("error›") + " " + message
}

// pendingInvokes returns the undecided invocations in arrival order.
func pendingInvokes(snapshot doctor.Snapshot) []doctor.PendingInvoke {
	var pending []doctor.PendingInvoke
	for _, entry := range snapshot.Pending {
		if entry.Status == doctor.StatusPending {
			pending = append(pending, entry)
		}
	}
	return pending
}
