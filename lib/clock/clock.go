// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock tells the time and schedules deadline callbacks.
type Clock interface {
	Now() time.Time

	// AfterFunc runs f in its own goroutine (real clock) or inside
	// Advance (fake clock) once d has elapsed.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer cancels a callback scheduled by AfterFunc. The zero Timer and a
// nil *Timer are valid and cancel nothing.
type Timer struct {
	cancel func() bool
}

// Stop cancels the callback and reports whether it had not run yet.
func (t *Timer) Stop() bool {
	if t == nil || t.cancel == nil {
		return false
	}
	return t.cancel()
}
