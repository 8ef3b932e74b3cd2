// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package doctor

import "time"

// TurnAccumulator tracks the assistant utterance currently streaming
// and decides, for each chat event, whether it continues the last
// assistant message or starts a new one.
//
// Delta text is cumulative: each delta carries the whole utterance so
// far, so continuing a turn replaces the message text rather than
// appending to it.
type TurnAccumulator struct {
	streaming string
	turnEnded bool
}

// Streaming returns the text of the utterance in progress.
func (accumulator *TurnAccumulator) Streaming() string {
	return accumulator.streaming
}

// TurnEnded reports whether the next non-empty delta starts a new
// assistant message.
func (accumulator *TurnAccumulator) TurnEnded() bool {
	return accumulator.turnEnded
}

// Delta applies a streaming delta and reports whether the transcript
// changed. Empty deltas are ignored entirely.
func (accumulator *TurnAccumulator) Delta(transcript *Transcript, text string, now time.Time) bool {
	if text == "" {
		return false
	}
	accumulator.streaming = text
	if accumulator.turnEnded {
		accumulator.turnEnded = false
		transcript.append(Message{Kind: MessageAssistant, Text: text}, now)
		return true
	}
	appendOrReplace(transcript, text, now)
	return true
}

// Final applies the end of an utterance and reports whether visible
// content arrived. An empty final means the agent ended its turn to
// call a tool: the transcript is untouched, but the next delta will
// start a new message.
func (accumulator *TurnAccumulator) Final(transcript *Transcript, text string, now time.Time) bool {
	if text == "" {
		accumulator.turnEnded = true
		return false
	}
	if accumulator.turnEnded {
		transcript.append(Message{Kind: MessageAssistant, Text: text}, now)
	} else {
		appendOrReplace(transcript, text, now)
	}
	accumulator.turnEnded = true
	accumulator.streaming = ""
	return true
}

// Interrupt ends the current utterance without content. A tool result
// or a user message does this: whatever the agent says next is a new
// turn.
func (accumulator *TurnAccumulator) Interrupt() {
	accumulator.streaming = ""
	accumulator.turnEnded = true
}

// Reset returns the accumulator to its initial state.
func (accumulator *TurnAccumulator) Reset() {
	*accumulator = TurnAccumulator{}
}

// appendOrReplace overwrites the last message when it is a plain
// assistant message. An assistant message carrying a tool call is never
// overwritten.
func appendOrReplace(transcript *Transcript, text string, now time.Time) {
	if last := transcript.last(); last != nil && last.Kind == MessageAssistant && last.Invoke == nil {
		last.Text = text
		return
	}
	transcript.append(Message{Kind: MessageAssistant, Text: text}, now)
}
