// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"
)

// actionKind is what a line typed into the session asks for.
type actionKind int

const (
	actionNone actionKind = iota
	actionMessage
	actionApprove
	actionReject
	actionAuto
	actionStatus
	actionStop
	actionReset
	actionReconnect
	actionHelp
	actionQuit
)

// action is a parsed input line.
type action struct {
	kind actionKind
	// text is the chat message, or the rejection reason.
	text string
	// invokeID is empty or "-" when the newest pending invoke is meant.
	invokeID string
	enabled  bool
}

const replHelp = `Type a message to talk to the agent, or a command:
  /approve [id]          run a pending command (default: the newest)
  /reject [id] [reason]  refuse a pending command (id - means the newest)
  /auto on|off           approve every command without asking
  /status                show links and pending commands
  /stop                  end the session, keep the transcript
  /reset                 archive and clear the session, re-register the node, start over
  /reconnect             reconnect to the gateway
  /quit                  leave`

// parseAction parses one input line.
func parseAction(line string) (action, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return action{kind: actionNone}, nil
	}
	if !strings.HasPrefix(line, "/") {
		return action{kind: actionMessage, text: line}, nil
	}

	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]
	switch name {
	case "/approve", "/a":
		if len(args) > 1 {
			return action{}, fmt.Errorf("usage: /approve [id]")
		}
		parsed := action{kind: actionApprove}
		if len(args) == 1 {
			parsed.invokeID = args[0]
		}
		return parsed, nil
	case "/reject", "/r":
		parsed := action{kind: actionReject}
		if len(args) > 0 {
			parsed.invokeID = args[0]
			parsed.text = strings.Join(args[1:], " ")
		}
		return parsed, nil
	case "/auto":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return action{}, fmt.Errorf("usage: /auto on|off")
		}
		return action{kind: actionAuto, enabled: args[0] == "on"}, nil
	case "/status":
		return action{kind: actionStatus}, nil
	case "/stop":
		return action{kind: actionStop}, nil
	case "/reset":
		return action{kind: actionReset}, nil
	case "/reconnect":
		return action{kind: actionReconnect}, nil
	case "/help", "/?":
		return action{kind: actionHelp}, nil
	case "/quit", "/exit", "/q":
		return action{kind: actionQuit}, nil
	}
	return action{}, fmt.Errorf("unknown command %s (try /help)", name)
}
