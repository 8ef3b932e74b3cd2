// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"

	"github.com/clawpal/clawpal/doctor"
)

func newTestView() *transcriptView {
	return newTranscriptView(newRenderer(&bytes.Buffer{}, 80))
}

func plain(lines []string) []string {
	out := make([]string, len(lines))
	for index, line := range lines {
		out[index] = ansi.Strip(line)
	}
	return out
}

func shellCall(id int64, invokeID string, status doctor.InvokeStatus) doctor.Message {
	return doctor.Message{
		ID:   id,
		Kind: doctor.MessageToolCall,
		Invoke: &doctor.Invoke{
			ID:      invokeID,
			Type:    doctor.InvokeRead,
			Command: "system.run",
			Args:    map[string]any{"command": "uptime"},
		},
		Status: status,
	}
}

func TestViewHoldsStreamingReply(t *testing.T) {
	view := newTestView()
	snapshot := doctor.Snapshot{
		Session:   doctor.Session{Key: "s1", Active: true},
		Connected: true,
		Messages: []doctor.Message{
			{ID: 1, Kind: doctor.MessageUser, Text: "hello"},
			{ID: 2, Kind: doctor.MessageAssistant, Text: "Let me"},
		},
		Streaming: "Let me",
	}

	lines := plain(view.update(snapshot))
	if len(lines) != 2 {
		t.Fatalf("first update = %q, want links and user line", lines)
	}
	if !strings.HasPrefix(lines[0], "operator up  bridge down  manual  0 pending") {
		t.Errorf("links line = %q", lines[0])
	}
	if lines[1] != "you› hello" {
		t.Errorf("user line = %q", lines[1])
	}

	snapshot.Messages[1].Text = "Let me check."
	snapshot.Streaming = ""
	lines = plain(view.update(snapshot))
	if len(lines) != 1 || lines[0] != "agent› Let me check." {
		t.Fatalf("after final = %q", lines)
	}

	if lines := view.update(snapshot); len(lines) != 0 {
		t.Fatalf("unchanged snapshot printed %q", plain(lines))
	}
}

func TestViewReprintsToolCallOnStatusChange(t *testing.T) {
	view := newTestView()
	snapshot := doctor.Snapshot{
		Session:  doctor.Session{Key: "s1", Active: true},
		Messages: []doctor.Message{shellCall(1, "inv-1", doctor.StatusPending)},
		Pending:  []doctor.PendingInvoke{{Invoke: *shellCall(1, "inv-1", "").Invoke, Status: doctor.StatusPending}},
	}
	lines := plain(view.update(snapshot))
	if len(lines) != 2 || !strings.Contains(lines[1], "[inv-1]") || !strings.HasSuffix(lines[1], "pending") {
		t.Fatalf("pending update = %q", lines)
	}
	if !strings.HasSuffix(lines[0], "1 pending") {
		t.Errorf("links line = %q, want 1 pending", lines[0])
	}

	snapshot.Messages[0].Status = doctor.StatusApproved
	snapshot.Pending = nil
	result, _ := json.Marshal(map[string]any{"stdout": "up 3 days\n"})
	snapshot.Messages = append(snapshot.Messages, doctor.Message{ID: 2, Kind: doctor.MessageToolResult, InvokeID: "inv-1", Result: result})
	lines = plain(view.update(snapshot))
	if len(lines) != 3 {
		t.Fatalf("approved update = %q, want links, call, result", lines)
	}
	if !strings.HasSuffix(lines[1], "approved") {
		t.Errorf("call line = %q", lines[1])
	}
	if !strings.Contains(lines[2], "↳ [inv-1]") || !strings.HasSuffix(lines[2], "\n    up 3 days") {
		t.Errorf("result = %q", lines[2])
	}
}

func TestViewStartsOverOnNewSession(t *testing.T) {
	view := newTestView()
	first := doctor.Snapshot{
		Session:  doctor.Session{Key: "s1"},
		Messages: []doctor.Message{{ID: 1, Kind: doctor.MessageUser, Text: "one"}},
	}
	view.update(first)

	second := doctor.Snapshot{
		Session:  doctor.Session{Key: "s2"},
		Messages: []doctor.Message{{ID: 1, Kind: doctor.MessageUser, Text: "two"}},
	}
	lines := plain(view.update(second))
	if len(lines) != 1 || lines[0] != "you› two" {
		t.Fatalf("new session = %q", lines)
	}
}

func TestViewPrintsErrorOnce(t *testing.T) {
	view := newTestView()
	snapshot := doctor.Snapshot{Error: "doctor: agent error: quota"}
	lines := plain(view.update(snapshot))
	if len(lines) != 2 || lines[1] != "error› doctor: agent error: quota" {
		t.Fatalf("error update = %q", lines)
	}
	if lines := view.update(snapshot); len(lines) != 0 {
		t.Fatalf("repeated error printed %q", plain(lines))
	}
}

func TestToolResultIsCapped(t *testing.T) {
	var output strings.Builder
	for index := range 25 {
		fmt.Fprintf(&output, "line %d\n", index)
	}
	result, _ := json.Marshal(output.String())
	rendered := ansi.Strip(newRenderer(&bytes.Buffer{}, 80).message(doctor.Message{
		Kind:     doctor.MessageToolResult,
		InvokeID: "inv-9",
		Result:   result,
	}))
	lines := strings.Split(rendered, "\n")
	if len(lines) != 1+maxResultLines+1 {
		t.Fatalf("got %d lines, want %d", len(lines), maxResultLines+2)
	}
	if last := lines[len(lines)-1]; last != "    … 5 more lines" {
		t.Errorf("last line = %q", last)
	}
}

func TestRejectedCallShowsReason(t *testing.T) {
	message := shellCall(1, "inv-4", doctor.StatusRejected)
	message.Reason = "not now"
	rendered := ansi.Strip(newRenderer(&bytes.Buffer{}, 80).message(message))
	if !strings.Contains(rendered, "rejected") || !strings.HasSuffix(rendered, "(not now)") {
		t.Fatalf("rendered = %q", rendered)
	}
}
