package ratelimit

import "time"

// Policy is the limit applied to every caller key.
type Policy struct {
	// Requests is the number of requests allowed per window.
	Requests int

	// Window is the sliding window length.
	Window time.Duration
}

// CheckResult contains the result of a rate limit check.
type CheckResult struct {
	// Allowed indicates if the request is permitted.
	Allowed bool

	// Limit is the configured limit value.
	Limit int64

	// Remaining is how many requests remain in the current window.
	Remaining int64

	// RetryAfter is how long until a slot frees up. Zero when allowed.
	RetryAfter time.Duration
}

// Clock returns the current time. Tests inject a controllable clock.
type Clock func() time.Time
