// Package limits groups the proxy's admission limits. The per-caller
// sliding window lives in limits/ratelimit; the daily request quota is
// enforced by the security gate on top of usage totals.
package limits
