// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package doctor

import (
	"encoding/json"
	"time"
)

// maxEarlyResults bounds how many results are held for invocations the
// table has not seen yet.
const maxEarlyResults = 50

// PendingInvoke is an in-flight invocation.
type PendingInvoke struct {
	Invoke Invoke
	Status InvokeStatus
	SeenAt time.Time
}

// PendingInvokeTable records which invocations are in flight and which
// have been resolved during the session. An id that was resolved is
// never admitted again. Not safe for concurrent use.
type PendingInvokeTable struct {
	entries  map[string]*PendingInvoke
	order    []string
	resolved map[string]struct{}

	// early holds results that arrived before their invocation.
	early map[string]json.RawMessage
}

// NewPendingInvokeTable returns an empty table.
func NewPendingInvokeTable() *PendingInvokeTable {
	return &PendingInvokeTable{
		entries:  make(map[string]*PendingInvoke),
		resolved: make(map[string]struct{}),
		early:    make(map[string]json.RawMessage),
	}
}

// Len returns the number of in-flight invocations.
func (table *PendingInvokeTable) Len() int {
	return len(table.entries)
}

// Seen reports whether id is in flight or was resolved this session.
func (table *PendingInvokeTable) Seen(id string) bool {
	if _, exists := table.entries[id]; exists {
		return true
	}
	_, resolved := table.resolved[id]
	return resolved
}

// Insert admits invoke with pending status. It reports false, and
// changes nothing, when the id was already seen.
func (table *PendingInvokeTable) Insert(invoke Invoke, now time.Time) bool {
	if table.Seen(invoke.ID) {
		return false
	}
	table.entries[invoke.ID] = &PendingInvoke{Invoke: invoke, Status: StatusPending, SeenAt: now}
	table.order = append(table.order, invoke.ID)
	return true
}

// Get returns the in-flight entry for id.
func (table *PendingInvokeTable) Get(id string) (*PendingInvoke, bool) {
	entry, exists := table.entries[id]
	return entry, exists
}

// Resolve removes id from the table and remembers it as resolved. It
// reports whether id was in flight.
func (table *PendingInvokeTable) Resolve(id string) bool {
	if _, exists := table.entries[id]; !exists {
		return false
	}
	delete(table.entries, id)
	table.resolved[id] = struct{}{}
	for index, ordered := range table.order {
		if ordered == id {
			table.order = append(table.order[:index], table.order[index+1:]...)
			break
		}
	}
	return true
}

// List returns the in-flight entries in arrival order.
func (table *PendingInvokeTable) List() []PendingInvoke {
	out := make([]PendingInvoke, 0, len(table.order))
	for _, id := range table.order {
		out = append(out, *table.entries[id])
	}
	return out
}

// holdEarly keeps a result whose invocation has not arrived. Results
// beyond maxEarlyResults are dropped.
//
// Only the bridge link produces results, and the node executes a
// command only after an approval reached it, so a result implies the
// invocation was approved somewhere: by this process before a
// reconnect, or by another operator sharing the gateway. The early
// result stands in for that approval when the invocation shows up; it
// is the one path that marks a tool call approved without a local
// decision.
func (table *PendingInvokeTable) holdEarly(id string, result json.RawMessage) bool {
	if _, exists := table.early[id]; exists || len(table.early) >= maxEarlyResults {
		return false
	}
	table.early[id] = result
	return true
}

// takeEarly returns and forgets a held result for id.
func (table *PendingInvokeTable) takeEarly(id string) (json.RawMessage, bool) {
	result, exists := table.early[id]
	if exists {
		delete(table.early, id)
	}
	return result, exists
}

// Clear empties the table, including the resolved set.
func (table *PendingInvokeTable) Clear() {
	clear(table.entries)
	clear(table.resolved)
	clear(table.early)
	table.order = nil
}
