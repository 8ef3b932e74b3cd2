// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts the wall clock so that timer-driven behavior
// can be tested deterministically.
//
// The gateway links use timers in two places: the handshake waits a
// bounded time for the connect challenge and for the connect response,
// and the node link schedules a USER_PENDING notice for invokes that
// sit without a decision. Production code injects [Real]; tests inject
// [Fake] and move time forward with [FakeClock.Advance].
package clock
