package ratelimit

import (
	"sync"
	"time"
)

// SlidingWindow counts events over a rolling time period. Every admitted
// event keeps its own timestamp and leaves the window exactly one window
// length after it was recorded, so no request ages out early.
type SlidingWindow struct {
	window   time.Duration
	events   []event
	total    int64
	lastSeen time.Time
	mu       sync.Mutex
}

// event is one admitted TryAdd, oldest first in SlidingWindow.events.
type event struct {
	at    time.Time
	value int64
}

// NewSlidingWindow creates a window of the given length.
func NewSlidingWindow(window time.Duration) *SlidingWindow {
	return &SlidingWindow{window: window}
}

// TryAdd records value at now if the window total would stay within limit.
// It returns whether the value was recorded, the total after the call, and,
// when rejected, how long until enough of the window expires to admit it.
func (sw *SlidingWindow) TryAdd(now time.Time, value, limit int64) (bool, int64, time.Duration) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.lastSeen = now
	sw.pruneLocked(now)

	if sw.total+value > limit {
		return false, sw.total, sw.retryAfterLocked(now, sw.total+value-limit)
	}

	// Clock steps backwards are recorded at the newest timestamp so the
	// slice stays ordered.
	at := now
	if n := len(sw.events); n > 0 && at.Before(sw.events[n-1].at) {
		at = sw.events[n-1].at
	}
	sw.events = append(sw.events, event{at: at, value: value})
	sw.total += value
	return true, sw.total, 0
}

// Sum returns the total count of events still inside the window.
func (sw *SlidingWindow) Sum(now time.Time) int64 {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.pruneLocked(now)
	return sw.total
}

// LastSeen returns the time of the most recent TryAdd.
func (sw *SlidingWindow) LastSeen() time.Time {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.lastSeen
}

// Reset forgets every event.
func (sw *SlidingWindow) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.events = nil
	sw.total = 0
}

// pruneLocked drops events strictly older than the window.
// Caller must hold the lock.
func (sw *SlidingWindow) pruneLocked(now time.Time) {
	cutoff := now.Add(-sw.window)

	i := 0
	for i < len(sw.events) && sw.events[i].at.Before(cutoff) {
		sw.total -= sw.events[i].value
		i++
	}
	if i == 0 {
		return
	}
	if i == len(sw.events) {
		sw.events = sw.events[:0]
		return
	}
	sw.events = append(sw.events[:0], sw.events[i:]...)
}

// retryAfterLocked returns how long until excess requests have aged out,
// walking events oldest first. Caller must hold the lock.
func (sw *SlidingWindow) retryAfterLocked(now time.Time, excess int64) time.Duration {
	var freed int64
	for _, e := range sw.events {
		freed += e.value
		if freed >= excess {
			// An event is pruned once it is strictly older than the window.
			return e.at.Add(sw.window).Sub(now) + time.Nanosecond
		}
	}
	return sw.window
}
