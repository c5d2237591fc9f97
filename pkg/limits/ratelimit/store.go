package ratelimit

import (
	"sync"
	"time"
)

// Store holds one SlidingWindow per caller key under a shared Policy.
type Store struct {
	mu      sync.RWMutex
	policy  Policy
	windows map[string]*SlidingWindow
	now     Clock
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(c Clock) Option {
	return func(s *Store) {
		s.now = c
	}
}

// NewStore creates an empty store enforcing policy.
func NewStore(policy Policy, opts ...Option) *Store {
	s := &Store{
		policy:  policy,
		windows: make(map[string]*SlidingWindow),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Allow records one request for key if the policy admits it.
func (s *Store) Allow(key string) CheckResult {
	return s.AllowN(key, 1)
}

// AllowN records n requests for key if the policy admits all of them. The
// store lock is held in read mode until the window has recorded the
// request, so Prune and SetPolicy cannot drop the window in between.
func (s *Store) AllowN(key string, n int64) CheckResult {
	now := s.now()

	s.mu.RLock()
	if w, ok := s.windows[key]; ok {
		res := check(w, s.policy, now, n)
		s.mu.RUnlock()
		return res
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok {
		w = NewSlidingWindow(s.policy.Window)
		s.windows[key] = w
	}
	return check(w, s.policy, now, n)
}

func check(w *SlidingWindow, policy Policy, now time.Time, n int64) CheckResult {
	limit := int64(policy.Requests)

	ok, count, retry := w.TryAdd(now, n, limit)

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	return CheckResult{
		Allowed:    ok,
		Limit:      limit,
		Remaining:  remaining,
		RetryAfter: retry,
	}
}

// Policy returns the active policy.
func (s *Store) Policy() Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy
}

// SetPolicy replaces the policy and drops every existing window.
func (s *Store) SetPolicy(p Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.policy = p
	s.windows = make(map[string]*SlidingWindow)
}

// Prune removes keys not seen for longer than idle whose windows hold no
// live events, and returns how many were removed.
func (s *Store) Prune(idle time.Duration) int {
	now := s.now()
	cutoff := now.Add(-idle)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, w := range s.windows {
		if w.LastSeen().Before(cutoff) && w.Sum(now) == 0 {
			delete(s.windows, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.windows)
}
