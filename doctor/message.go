// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package doctor

import (
	"encoding/json"
	"strings"
	"time"
)

// Session identifies one diagnosis attempt. Target and AgentID are
// locked when the session starts.
type Session struct {
	Key     string `cbor:"key" json:"key"`
	Target  string `cbor:"target" json:"target"`
	AgentID string `cbor:"agent_id" json:"agentId"`
	Active  bool   `cbor:"active" json:"active"`
}

// InvokeType distinguishes side-effect-free invocations, which are
// eligible for pattern auto-approval, from everything else.
type InvokeType string

const (
	InvokeRead  InvokeType = "read"
	InvokeWrite InvokeType = "write"
)

// Invoke is a tool invocation requested by the agent.
type Invoke struct {
	// ID is assigned by the gateway and unique per gateway.
	ID      string         `cbor:"id" json:"id"`
	Type    InvokeType     `cbor:"type" json:"type"`
	Command string         `cbor:"command" json:"command"`
	Args    map[string]any `cbor:"args,omitempty" json:"args,omitempty"`
}

// Path returns the invocation's "path" argument, or "" when it has
// none.
func (invoke Invoke) Path() string {
	path, _ := invoke.Args["path"].(string)
	return path
}

// ShellCommand returns the command line of a shell invocation. The
// "command" argument is either a string or an argv array whose last
// element is the command line (["sh", "-lc", "ls /etc"]).
func (invoke Invoke) ShellCommand() string {
	switch command := invoke.Args["command"].(type) {
	case string:
		return command
	case []any:
		if len(command) == 0 {
			return ""
		}
		last, _ := command[len(command)-1].(string)
		return last
	case []string:
		if len(command) == 0 {
			return ""
		}
		return command[len(command)-1]
	}
	return ""
}

// Summary renders the invocation for a one-line display.
func (invoke Invoke) Summary() string {
	if shell := invoke.ShellCommand(); shell != "" {
		return shell
	}
	if path := invoke.Path(); path != "" {
		return invoke.Command + " " + path
	}
	return invoke.Command
}

// MessageKind is the variant of a transcript entry.
type MessageKind string

const (
	MessageUser       MessageKind = "user"
	MessageAssistant  MessageKind = "assistant"
	MessageToolCall   MessageKind = "tool-call"
	MessageToolResult MessageKind = "tool-result"
)

// InvokeStatus is the decision state shown on a tool-call message.
type InvokeStatus string

const (
	StatusPending  InvokeStatus = "pending"
	StatusApproved InvokeStatus = "approved"
	StatusAuto     InvokeStatus = "auto"
	StatusRejected InvokeStatus = "rejected"
)

// Message is one transcript entry. Which fields are set depends on
// Kind: Text for user and assistant messages, Invoke and Status for
// tool calls, InvokeID and Result for tool results.
//
// ID is assigned locally, increases monotonically, and exists only to
// give renderers a stable identity.
type Message struct {
	ID        int64           `cbor:"id" json:"id"`
	Kind      MessageKind     `cbor:"kind" json:"kind"`
	Text      string          `cbor:"text,omitempty" json:"text,omitempty"`
	Invoke    *Invoke         `cbor:"invoke,omitempty" json:"invoke,omitempty"`
	Status    InvokeStatus    `cbor:"status,omitempty" json:"status,omitempty"`
	InvokeID  string          `cbor:"invoke_id,omitempty" json:"invokeId,omitempty"`
	Result    json.RawMessage `cbor:"result,omitempty" json:"result,omitempty"`
	Reason    string          `cbor:"reason,omitempty" json:"reason,omitempty"`
	CreatedAt time.Time       `cbor:"created_at" json:"createdAt"`
}

// ResultText returns a tool result as display text: the "stdout" and
// "stderr" fields of an object payload when present, a bare string
// payload unquoted, and the raw JSON otherwise.
func (message Message) ResultText() string {
	if len(message.Result) == 0 {
		return ""
	}
	var text string
	if json.Unmarshal(message.Result, &text) == nil {
		return text
	}
	var output struct {
		Stdout string `json:"stdout"`
		Stderr string `json:"stderr"`
		Error  string `json:"error"`
	}
	if json.Unmarshal(message.Result, &output) == nil &&
		(output.Stdout != "" || output.Stderr != "" || output.Error != "") {
		parts := make([]string, 0, 3)
		for _, part := range []string{output.Stdout, output.Stderr, output.Error} {
			if part != "" {
				parts = append(parts, strings.TrimRight(part, "\n"))
			}
		}
		return strings.Join(parts, "\n")
	}
	return string(message.Result)
}
