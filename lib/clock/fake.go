// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"slices"
	"sync"
	"time"
)

// FakeClock only moves when Advance is called. Callbacks run
// synchronously inside Advance in deadline order, ties in the order
// they were scheduled. A callback must not call Advance.
//
// Code under test usually arms its timer on another goroutine (the
// gateway link arms the request timeout after writing the frame), so
// a test that advances immediately can race the arming. WaitForTimers
// closes that gap:
//
//	go func() { done <- link.request(ctx, "chat.send", params) }()
//	fake.WaitForTimers(1)
//	fake.Advance(gateway.DefaultRequestTimeout)
type FakeClock struct {
	mutex     sync.Mutex
	now       time.Time
	scheduled []*scheduledCall
	armed     *sync.Cond
}

type scheduledCall struct {
	deadline time.Time
	run      func()
}

// Fake returns a FakeClock reading start.
func Fake(start time.Time) *FakeClock {
	fake := &FakeClock{now: start}
	fake.armed = sync.NewCond(&fake.mutex)
	return fake
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.now
}

// AfterFunc schedules f for the Advance that reaches now+d. A
// non-positive d runs f before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{}
	}

	call := &scheduledCall{run: f}
	c.mutex.Lock()
	call.deadline = c.now.Add(d)
	c.scheduled = append(c.scheduled, call)
	c.armed.Broadcast()
	c.mutex.Unlock()

	return &Timer{cancel: func() bool {
		c.mutex.Lock()
		defer c.mutex.Unlock()
		index := slices.Index(c.scheduled, call)
		if index < 0 {
			return false
		}
		c.scheduled = slices.Delete(c.scheduled, index, index+1)
		return true
	}}
}

// Advance moves the clock forward by d and runs every callback whose
// deadline it reaches.
func (c *FakeClock) Advance(d time.Duration) {
	c.mutex.Lock()
	c.now = c.now.Add(d)
	var due []*scheduledCall
	c.scheduled = slices.DeleteFunc(c.scheduled, func(call *scheduledCall) bool {
		if call.deadline.After(c.now) {
			return false
		}
		due = append(due, call)
		return true
	})
	c.mutex.Unlock()

	slices.SortStableFunc(due, func(a, b *scheduledCall) int {
		return a.deadline.Compare(b.deadline)
	})
	for _, call := range due {
		call.run()
	}
}

// WaitForTimers blocks until at least n callbacks are scheduled, so a
// test can advance past a deadline armed by another goroutine.
func (c *FakeClock) WaitForTimers(n int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for len(c.scheduled) < n {
		c.armed.Wait()
	}
}

// PendingCount returns how many callbacks are scheduled and not yet run.
func (c *FakeClock) PendingCount() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.scheduled)
}
