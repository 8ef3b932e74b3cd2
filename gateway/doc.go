// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package gateway speaks the OpenClaw gateway's WebSocket protocol for
// the doctor session. [Client] implements both [doctor.Dialer] and
// [doctor.Gateway]: it opens an operator link that carries chat with
// the agent and a node link that registers this host as the executor
// of the agent's system.run tool.
//
// Every frame is a JSON text message of one of three shapes:
//
//	{"type":"req","id":"n1","method":"connect","params":{...}}
//	{"type":"res","id":"n1","ok":true,"payload":{...}}
//	{"type":"event","event":"chat","payload":{...}}
//
// A link is authenticated by a challenge handshake. The gateway sends a
// connect.challenge event with a nonce; the client answers with a
// connect request whose device block is an Ed25519 signature over the
// client's identity, role, scopes, the signing time, the auth token,
// and the nonce. A device the gateway has never paired is refused with
// an error wrapping [doctor.ErrPairingRequired].
//
// On the node link invocations are held in a bounded table until the
// operator decides. The gateway gives up on an invocation after 30
// seconds, so at 25 seconds the node answers USER_PENDING and marks the
// invocation expired; it stays executable, and its eventual result is
// reported with Expired set so the controller relays it through chat.
// Invocations that arrive while the node link is still authenticating
// were queued for a previous node session and are answered STALE.
package gateway
