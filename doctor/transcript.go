// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package doctor

import "time"

// Transcript is the ordered sequence of messages for a session. It is
// not safe for concurrent use; the controller guards it.
type Transcript struct {
	messages []Message
	nextID   int64
}

// Len returns the number of messages.
func (transcript *Transcript) Len() int {
	return len(transcript.messages)
}

// Messages returns a copy of the transcript. Invoke values are copied;
// their Args maps are shared and must be treated as read-only.
func (transcript *Transcript) Messages() []Message {
	out := make([]Message, len(transcript.messages))
	copy(out, transcript.messages)
	for index := range out {
		if out[index].Invoke != nil {
			invoke := *out[index].Invoke
			out[index].Invoke = &invoke
		}
	}
	return out
}

// append adds message with the next local id and returns that id.
func (transcript *Transcript) append(message Message, now time.Time) int64 {
	transcript.nextID++
	message.ID = transcript.nextID
	message.CreatedAt = now
	transcript.messages = append(transcript.messages, message)
	return message.ID
}

// last returns the final entry, or nil when the transcript is empty.
func (transcript *Transcript) last() *Message {
	if len(transcript.messages) == 0 {
		return nil
	}
	return &transcript.messages[len(transcript.messages)-1]
}

func (transcript *Transcript) toolCall(invokeID string) *Message {
	for index := range transcript.messages {
		message := &transcript.messages[index]
		if message.Kind == MessageToolCall && message.Invoke != nil && message.Invoke.ID == invokeID {
			return message
		}
	}
	return nil
}

func (transcript *Transcript) hasToolResult(invokeID string) bool {
	for index := range transcript.messages {
		message := &transcript.messages[index]
		if message.Kind == MessageToolResult && message.InvokeID == invokeID {
			return true
		}
	}
	return false
}

// setStatus updates the tool-call message for invokeID. It reports
// false when there is no such message.
func (transcript *Transcript) setStatus(invokeID string, status InvokeStatus, reason string) bool {
	message := transcript.toolCall(invokeID)
	if message == nil {
		return false
	}
	message.Status = status
	message.Reason = reason
	return true
}

// clear drops every message. Ids keep increasing so that a renderer
// never sees a reused identity.
func (transcript *Transcript) clear() {
	transcript.messages = nil
}
