// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package doctor runs one interactive troubleshooting conversation
// between a remote reasoning agent, the operator, and the local node
// that executes the agent's commands.
//
// Two links feed it. The operator link carries chat: streaming deltas
// and final replies from the agent. The node (bridge) link carries
// tool invocations the agent wants executed here and the results of
// the ones that ran. The links have no defined relative order, and
// either may redeliver. [Controller] reconciles both streams into one
// ordered [Transcript]:
//
//   - [Event] is a closed set of variants. Every inbound event enters
//     through [Controller.Handle] (or [Controller.Run], which drains a
//     channel into Handle), and each is applied atomically under the
//     controller's single mutex.
//   - Every event except link status is discarded unless a session is
//     active. [Controller.Reset] therefore fences off events replayed
//     by a reconnecting node before the next diagnosis starts.
//   - [TurnAccumulator] decides whether a streamed delta continues the
//     current assistant message or opens a new one. It remembers that
//     a turn ended even when the final event carried no text, so a
//     delta for the next turn that races ahead of the previous turn's
//     tool call still starts a new message.
//   - [PendingInvokeTable] is the record of which invocations were seen
//     and which were resolved. Redelivered invokes and results are
//     silent no-ops.
//   - [ApprovalPatternCache] remembers approved command/directory
//     patterns for the life of the process. It is injected, so several
//     controllers (or successive sessions of one) share it.
//
// There is one approval path. A manual [Controller.Approve], full-auto
// mode, and a pattern match all go through the same primitive; only
// the caller differs. Forwarding a decision happens outside the lock,
// so an approval in flight never stalls the next inbound event, and a
// failed forward is reported in the snapshot's error without reverting
// the decision already shown in the transcript.
//
// [ConnectionManager] owns the lifecycle of the two links: operator
// first, then node, with a single automatic pairing approval and retry
// when the node is refused as unpaired. It reports link status to the
// controller as ordinary events. The package never talks to the network
// itself; the [Gateway] and [Dialer] collaborators do.
package doctor
