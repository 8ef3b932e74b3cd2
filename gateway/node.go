// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"encoding/json"
	"fmt"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/clawpal/clawpal/doctor"
	"github.com/clawpal/clawpal/lib/clock"
)

const (
	userPendingMessage = "The command is awaiting user approval in ClawPal. " +
		"The user may execute it shortly; if so, the result will be provided as a follow-up message."
	evictedMessage = "Too many pending invokes, oldest evicted"
	staleMessage   = "Node reconnected, rejecting stale invoke"
)

// nodeCommands are advertised in the node handshake. The gateway
// exposes them to the agent as tools.
var nodeCommands = []string{CommandSystemRun}

// invokeRequestPayload is the payload of a node.invoke.request event.
// Arguments arrive either JSON-encoded in ParamsJSON or inline in
// Params.
type invokeRequestPayload struct {
	ID         string          `json:"id"`
	Command    string          `json:"command"`
	NodeID     string          `json:"nodeId"`
	ParamsJSON *string         `json:"paramsJSON"`
	Params     json.RawMessage `json:"params"`
}

// parseInvokeRequest decodes and classifies an invoke request. It
// returns the invocation and the gateway's node id for the reply.
func parseInvokeRequest(payload json.RawMessage) (doctor.Invoke, string, error) {
	var request invokeRequestPayload
	if err := json.Unmarshal(payload, &request); err != nil {
		return doctor.Invoke{}, "", fmt.Errorf("gateway: decoding invoke request: %w", err)
	}
	if request.ID == "" {
		return doctor.Invoke{}, "", fmt.Errorf("gateway: invoke request without an id")
	}

	var args map[string]any
	switch {
	case request.ParamsJSON != nil:
		if err := json.Unmarshal([]byte(*request.ParamsJSON), &args); err != nil {
			return doctor.Invoke{}, "", fmt.Errorf("gateway: decoding paramsJSON of %s: %w", request.ID, err)
		}
	case len(request.Params) > 0 && string(request.Params) != "null":
		if err := json.Unmarshal(request.Params, &args); err != nil {
			return doctor.Invoke{}, "", fmt.Errorf("gateway: decoding params of %s: %w", request.ID, err)
		}
	}

	invoke := doctor.Invoke{ID: request.ID, Command: request.Command, Args: args}
	invoke.Type = Classify(invoke.Command, invoke.ShellCommand())
	return invoke, request.NodeID, nil
}

// nodeInvoke is an invocation held on the node until it is decided.
type nodeInvoke struct {
	invoke  doctor.Invoke
	nodeID  string
	expired bool
	timer   *clock.Timer
}

// invokeTable holds undecided invocations in arrival order, at most
// limit of them. Until the link is authenticated, arrivals are held
// without timers; they belong to a previous node session.
type invokeTable struct {
	mutex         sync.Mutex
	entries       *orderedmap.OrderedMap[string, *nodeInvoke]
	limit         int
	authenticated bool
}

func newInvokeTable(limit int) *invokeTable {
	return &invokeTable{entries: orderedmap.New[string, *nodeInvoke](), limit: limit}
}

// add stores entry, evicting the oldest entries to stay within the
// limit. A duplicate id is not stored. When the table is authenticated
// arm is called, under the table lock, to start the entry's timer.
func (table *invokeTable) add(entry *nodeInvoke, arm func() *clock.Timer) (added, live bool, evicted []*nodeInvoke) {
	table.mutex.Lock()
	defer table.mutex.Unlock()
	if _, exists := table.entries.Get(entry.invoke.ID); exists {
		return false, table.authenticated, nil
	}
	for table.entries.Len() >= table.limit {
		oldest := table.entries.Oldest()
		if oldest == nil {
			break
		}
		table.entries.Delete(oldest.Key)
		evicted = append(evicted, oldest.Value)
	}
	table.entries.Set(entry.invoke.ID, entry)
	if table.authenticated {
		entry.timer = arm()
	}
	return true, table.authenticated, evicted
}

// take removes and returns the entry for id.
func (table *invokeTable) take(id string) (*nodeInvoke, bool) {
	table.mutex.Lock()
	defer table.mutex.Unlock()
	entry, exists := table.entries.Delete(id)
	return entry, exists
}

// expire marks id expired if it is still undecided. It returns the
// entry's node id for the USER_PENDING reply.
func (table *invokeTable) expire(id string) (string, bool) {
	table.mutex.Lock()
	defer table.mutex.Unlock()
	entry, exists := table.entries.Get(id)
	if !exists || entry.expired {
		return "", false
	}
	entry.expired = true
	return entry.nodeID, true
}

// authenticate marks the table live and returns everything that arrived
// before, for rejection as stale.
func (table *invokeTable) authenticate() []*nodeInvoke {
	table.mutex.Lock()
	defer table.mutex.Unlock()
	table.authenticated = true
	return table.drainLocked()
}

// reset empties the table and stops its timers. The table is no longer
// authenticated.
func (table *invokeTable) reset() {
	table.mutex.Lock()
	defer table.mutex.Unlock()
	table.authenticated = false
	for _, entry := range table.drainLocked() {
		entry.timer.Stop()
	}
}

func (table *invokeTable) drainLocked() []*nodeInvoke {
	var drained []*nodeInvoke
	for pair := table.entries.Oldest(); pair != nil; pair = pair.Next() {
		drained = append(drained, pair.Value)
	}
	table.entries = orderedmap.New[string, *nodeInvoke]()
	return drained
}

// len returns the number of held invocations.
func (table *invokeTable) len() int {
	table.mutex.Lock()
	defer table.mutex.Unlock()
	return table.entries.Len()
}
