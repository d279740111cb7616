// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock frozen at initial. Time moves only when
// Advance is called; every waiter registered via After, Sleep, or
// NewTicker fires when the clock passes its deadline.
//
// FakeClock is safe for concurrent use.
func Fake(initial time.Time) *FakeClock {
	fake := &FakeClock{current: initial}
	fake.registered = sync.NewCond(&fake.mu)
	return fake
}

// FakeClock is a deterministic Clock for tests.
type FakeClock struct {
	mu         sync.Mutex
	current    time.Time
	waiters    []*waiter
	registered *sync.Cond
}

type waiter struct {
	deadline time.Time
	channel  chan time.Time

	// interval is non-zero for tickers; the waiter is rescheduled at
	// deadline+interval after firing.
	interval time.Duration
	stopped  bool
}

// Now returns the current fake time.
func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// After registers a one-shot waiter. Receives immediately if d <= 0.
func (f *FakeClock) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- f.current
		return channel
	}
	f.waiters = append(f.waiters, &waiter{deadline: f.current.Add(d), channel: channel})
	f.registered.Broadcast()
	return channel
}

// NewTicker registers a repeating waiter. Panics if d <= 0.
func (f *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	channel := make(chan time.Time, 1)
	pending := &waiter{deadline: f.current.Add(d), channel: channel, interval: d}
	f.waiters = append(f.waiters, pending)
	f.registered.Broadcast()

	return &Ticker{
		C: channel,
		stopFunc: func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			pending.stopped = true
		},
	}
}

// Sleep blocks until the clock advances past the deadline.
func (f *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-f.After(d)
}

// Advance moves the clock forward by d and fires every waiter whose
// deadline falls within the new time, in deadline order. Channel sends
// are non-blocking, matching time.Ticker's drop-if-full behavior. A
// ticker spanning multiple intervals fires once per interval.
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.current = f.current.Add(d)
	target := f.current
	f.mu.Unlock()

	for {
		expired := f.takeExpired(target)
		if len(expired) == 0 {
			return
		}
		sort.Slice(expired, func(i, j int) bool {
			return expired[i].deadline.Before(expired[j].deadline)
		})
		for _, pending := range expired {
			select {
			case pending.channel <- target:
			default:
			}
		}
	}
}

// WaitForTimers blocks until at least n waiters are registered. This
// removes the race between a goroutine registering its ticker and the
// test advancing the clock.
func (f *FakeClock) WaitForTimers(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.activeLocked() < n {
		f.registered.Wait()
	}
}

// PendingCount returns the number of active waiters.
func (f *FakeClock) PendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activeLocked()
}

func (f *FakeClock) activeLocked() int {
	count := 0
	for _, pending := range f.waiters {
		if !pending.stopped {
			count++
		}
	}
	return count
}

// takeExpired removes expired waiters, rescheduling tickers for their
// next interval, and returns the set to fire.
func (f *FakeClock) takeExpired(target time.Time) []*waiter {
	f.mu.Lock()
	defer f.mu.Unlock()

	var expired, remaining []*waiter
	for _, pending := range f.waiters {
		if pending.stopped {
			continue
		}
		if !pending.deadline.After(target) {
			expired = append(expired, pending)
		} else {
			remaining = append(remaining, pending)
		}
	}
	for _, pending := range expired {
		if pending.interval > 0 {
			pending.deadline = pending.deadline.Add(pending.interval)
			remaining = append(remaining, pending)
		}
	}
	f.waiters = remaining
	return expired
}
