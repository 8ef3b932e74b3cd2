// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/clawpal/clawpal/doctor"
)

// transcriptView turns successive snapshots into the lines not yet
// printed. A tool call is printed again when its status changes; an
// assistant message is printed once its turn stops streaming.
type transcriptView struct {
	renderer *renderer
	session  string
	printed  map[int64]doctor.InvokeStatus
	links    string
	failure  string
}

func newTranscriptView(renderer *renderer) *transcriptView {
	return &transcriptView{renderer: renderer, printed: make(map[int64]doctor.InvokeStatus)}
}

// update returns the lines snapshot adds to what was printed before.
func (view *transcriptView) update(snapshot doctor.Snapshot) []string {
	if snapshot.Session.Key != view.session {
		view.session = snapshot.Session.Key
		clear(view.printed)
	}

	var lines []string
	if links := view.renderer.links(snapshot); links != view.links {
		view.links = links
		lines = append(lines, links)
	}

	last := len(snapshot.Messages) - 1
	for index, message := range snapshot.Messages {
		status, seen := view.printed[message.ID]
		switch message.Kind {
		case doctor.MessageAssistant:
			stillStreaming := index == last && (snapshot.Streaming != "" || snapshot.Loading)
			if seen || stillStreaming {
				continue
			}
		case doctor.MessageToolCall:
			if seen && status == message.Status {
				continue
			}
		default:
			if seen {
				continue
			}
		}
		view.printed[message.ID] = message.Status
		lines = append(lines, view.renderer.message(message))
	}

	if snapshot.Error != view.failure {
		view.failure = snapshot.Error
		if snapshot.Error != "" {
			lines = append(lines, view.renderer.failureLine(snapshot.Error))
		}
	}
	return lines
}
