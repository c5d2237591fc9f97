// Package ratelimit provides the per-caller sliding window limiter used by
// the security gate.
//
// # Sliding Window
//
// Each caller key owns a SlidingWindow holding the timestamp of every
// admitted request. TryAdd drops requests older than the window, sums the
// rest and, only if the sum stays within the limit, records the request. The whole check-and-record
// happens under the window's lock, so two concurrent requests can never
// both take the last slot.
//
//	store := ratelimit.NewStore(ratelimit.Policy{Requests: 60, Window: time.Minute})
//	if res := store.Allow(callerIP); !res.Allowed {
//	    // reject with res.RetryAfter
//	}
//
// # Keyed Store
//
// Store maps caller keys to windows. Keys are created on first use and
// removed by Prune once idle and empty. SetPolicy swaps the limit at runtime; existing
// windows are discarded so every caller starts fresh under the new policy.
//
// # Thread Safety
//
// All types are safe for concurrent use. Requests take the store lock in
// read mode and the window lock of their own key, so unrelated callers
// never contend with each other. Prune and SetPolicy take the store lock
// exclusively.
package ratelimit
