// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	fake := Fake(time.Unix(1000, 0))
	waiting := fake.After(10 * time.Second)

	select {
	case <-waiting:
		t.Fatal("fired before Advance")
	default:
	}

	fake.Advance(10 * time.Second)
	select {
	case fired := <-waiting:
		if !fired.Equal(time.Unix(1010, 0)) {
			t.Errorf("fire time = %v, want %v", fired, time.Unix(1010, 0))
		}
	default:
		t.Fatal("did not fire after Advance")
	}
}

func TestFakeAfterNonPositiveFiresImmediately(t *testing.T) {
	fake := Fake(time.Unix(0, 0))
	select {
	case <-fake.After(0):
	default:
		t.Fatal("After(0) should fire immediately")
	}
}

func TestFakeTickerRepeats(t *testing.T) {
	fake := Fake(time.Unix(0, 0))
	ticker := fake.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for cycle := 0; cycle < 3; cycle++ {
		fake.Advance(30 * time.Second)
		select {
		case <-ticker.C:
		default:
			t.Fatalf("cycle %d: no tick after Advance", cycle)
		}
	}
}

func TestFakeTickerStop(t *testing.T) {
	fake := Fake(time.Unix(0, 0))
	ticker := fake.NewTicker(time.Second)
	ticker.Stop()

	fake.Advance(5 * time.Second)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker fired")
	default:
	}
	if fake.PendingCount() != 0 {
		t.Errorf("PendingCount = %d, want 0", fake.PendingCount())
	}
}

func TestWaitForTimers(t *testing.T) {
	fake := Fake(time.Unix(0, 0))
	done := make(chan struct{})
	go func() {
		fake.Sleep(time.Minute)
		close(done)
	}()

	fake.WaitForTimers(1)
	fake.Advance(time.Minute)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Sleep did not return after Advance")
	}
}
