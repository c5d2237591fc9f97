package security

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mercator-hq/conduit/pkg/limits/ratelimit"
	"mercator-hq/conduit/pkg/providers"
	"mercator-hq/conduit/pkg/usage"
)

const adminToken = "admin-token-0123456789"

func newRequest(remote string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/proxy", strings.NewReader("{}"))
	r.RemoteAddr = remote
	return r
}

func mustGate(t *testing.T, cfg GateConfig) *Gate {
	t.Helper()
	g, err := NewGate(cfg)
	if err != nil {
		t.Fatalf("NewGate() error = %v", err)
	}
	return g
}

// failingUsage always fails to read.
type failingUsage struct{ *usage.MemoryStore }

func (failingUsage) Read(context.Context, string, time.Time) (usage.Totals, error) {
	return usage.Totals{}, errors.New("disk on fire")
}

// ============================================================================
// Caller Identification Tests
// ============================================================================

func TestCallerKey(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		xff     string
		trusted bool
		want    string
	}{
		{"ipv4 remote", "203.0.113.7:5555", "", false, "203.0.113.7"},
		{"ipv6 remote", "[2001:db8::1]:443", "", false, "2001:db8::1"},
		{"mapped ipv4", "[::ffff:10.0.0.1]:80", "", false, "10.0.0.1"},
		{"xff ignored when untrusted", "10.0.0.1:1", "198.51.100.2", false, "10.0.0.1"},
		{"xff first hop when trusted", "10.0.0.1:1", "198.51.100.2, 10.0.0.9", true, "198.51.100.2"},
		{"garbage xff falls back", "10.0.0.1:1", "not-an-ip", true, "10.0.0.1"},
		{"remote without port", "10.0.0.3", "", false, "10.0.0.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRequest(tt.remote)
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := CallerKey(r, tt.trusted); got != tt.want {
				t.Errorf("CallerKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ============================================================================
// Gate Tests
// ============================================================================

func TestGate_RateLimit(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := ratelimit.NewStore(
		ratelimit.Policy{Requests: 3, Window: time.Minute},
		ratelimit.WithClock(func() time.Time { return now }),
	)

	var reasons []string
	g := mustGate(t, GateConfig{
		Limiter:  limiter,
		OnReject: func(reason string) { reasons = append(reasons, reason) },
	})

	for i := 0; i < 3; i++ {
		if _, err := g.PerformSecurityChecks(newRequest("10.0.0.1:1")); err != nil {
			t.Fatalf("request %d: unexpected error %v", i+1, err)
		}
	}

	_, err := g.PerformSecurityChecks(newRequest("10.0.0.1:1"))
	perr, ok := err.(*providers.ProxyError)
	if !ok || perr.Code != providers.CodeRateLimitExceeded {
		t.Fatalf("4th request error = %v, want RATE_LIMIT_EXCEEDED", err)
	}
	if perr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d, want 429", perr.StatusCode)
	}
	if perr.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want positive", perr.RetryAfter)
	}
	if len(reasons) != 1 || reasons[0] != ReasonRateLimit {
		t.Errorf("reasons = %v, want [rate_limit]", reasons)
	}

	// Another caller is unaffected.
	if _, err := g.PerformSecurityChecks(newRequest("10.0.0.2:1")); err != nil {
		t.Errorf("other caller rejected: %v", err)
	}

	now = now.Add(time.Minute + time.Second)
	if _, err := g.PerformSecurityChecks(newRequest("10.0.0.1:1")); err != nil {
		t.Errorf("request after window rejected: %v", err)
	}
}

func TestGate_BlockedNetworks(t *testing.T) {
	g := mustGate(t, GateConfig{BlockedNetworks: []string{"192.0.2.0/24", "2001:db8::/32"}})

	tests := []struct {
		remote  string
		blocked bool
	}{
		{"192.0.2.15:80", true},
		{"192.0.3.1:80", false},
		{"[2001:db8::5]:80", true},
		{"[2001:db9::5]:80", false},
	}

	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			_, err := g.PerformSecurityChecks(newRequest(tt.remote))
			if tt.blocked && !providers.IsCode(err, providers.CodeForbidden) {
				t.Errorf("error = %v, want FORBIDDEN", err)
			}
			if !tt.blocked && err != nil {
				t.Errorf("unexpected error %v", err)
			}
		})
	}
}

func TestGate_InvalidBlockedNetwork(t *testing.T) {
	if _, err := NewGate(GateConfig{BlockedNetworks: []string{"not-a-cidr"}}); err == nil {
		t.Error("NewGate() expected error for invalid CIDR")
	}
}

func TestGate_BodySize(t *testing.T) {
	g := mustGate(t, GateConfig{MaxBodyBytes: 10})

	r := httptest.NewRequest(http.MethodPost, "/proxy", strings.NewReader(strings.Repeat("x", 11)))
	_, err := g.PerformSecurityChecks(r)
	if !providers.IsCode(err, providers.CodeInvalidRequest) {
		t.Errorf("error = %v, want INVALID_REQUEST", err)
	}

	r = httptest.NewRequest(http.MethodPost, "/proxy", strings.NewReader("0123456789"))
	if _, err := g.PerformSecurityChecks(r); err != nil {
		t.Errorf("body at limit rejected: %v", err)
	}
}

func TestGate_AdminRole(t *testing.T) {
	g := mustGate(t, GateConfig{AdminTokens: []string{adminToken}})

	tests := []struct {
		name   string
		header string
		want   Role
	}{
		{"no header", "", RoleUser},
		{"admin token", "Bearer " + adminToken, RoleAdmin},
		{"lowercase scheme", "bearer " + adminToken, RoleAdmin},
		{"wrong token", "Bearer admin-token-0123456780", RoleUser},
		{"prefix of token", "Bearer admin-token", RoleUser},
		{"not bearer", "Basic " + adminToken, RoleUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRequest("10.0.0.1:1")
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			id, err := g.PerformSecurityChecks(r)
			if err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if id.Role != tt.want {
				t.Errorf("Role = %q, want %q", id.Role, tt.want)
			}
		})
	}
}

func TestGate_DailyQuota(t *testing.T) {
	now := time.Date(2026, 1, 1, 18, 0, 0, 0, time.UTC)
	store := usage.NewMemoryStore()
	for i := 0; i < 2; i++ {
		store.Increment(context.Background(), usage.Record{Caller: "10.0.0.1", Provider: "openai", Model: "m", Time: now})
	}

	g := mustGate(t, GateConfig{
		Usage:       store,
		DailyQuota:  2,
		AdminTokens: []string{adminToken},
		Now:         func() time.Time { return now },
	})

	_, err := g.PerformSecurityChecks(newRequest("10.0.0.1:1"))
	perr, ok := err.(*providers.ProxyError)
	if !ok || perr.Code != providers.CodeRateLimitExceeded {
		t.Fatalf("error = %v, want RATE_LIMIT_EXCEEDED", err)
	}
	if perr.RetryAfter != 6*time.Hour {
		t.Errorf("RetryAfter = %v, want 6h (next UTC midnight)", perr.RetryAfter)
	}

	r := newRequest("10.0.0.1:1")
	r.Header.Set("Authorization", "Bearer "+adminToken)
	if _, err := g.PerformSecurityChecks(r); err != nil {
		t.Errorf("admin rejected by quota: %v", err)
	}

	if _, err := g.PerformSecurityChecks(newRequest("10.0.0.2:1")); err != nil {
		t.Errorf("caller under quota rejected: %v", err)
	}
}

func TestGate_QuotaFailsOpen(t *testing.T) {
	g := mustGate(t, GateConfig{Usage: failingUsage{}, DailyQuota: 1})

	if _, err := g.PerformSecurityChecks(newRequest("10.0.0.1:1")); err != nil {
		t.Errorf("unexpected error %v", err)
	}
}

func TestGate_QuotaConcurrent(t *testing.T) {
	const quota = 5
	g := mustGate(t, GateConfig{Usage: usage.NewMemoryStore(), DailyQuota: quota})

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < quota+20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := g.PerformSecurityChecks(newRequest("10.0.0.1:1")); err == nil {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := admitted.Load(); got != quota {
		t.Errorf("admitted = %d, want exactly %d", got, quota)
	}
}

func TestGate_QuotaSettle(t *testing.T) {
	store := usage.NewMemoryStore()
	store.Increment(context.Background(), usage.Record{Caller: "10.0.0.1", Provider: "openai", Model: "m", Time: time.Now()})
	g := mustGate(t, GateConfig{Usage: store, DailyQuota: 2})

	// One slot is left after the seeded usage.
	id, err := g.PerformSecurityChecks(newRequest("10.0.0.1:1"))
	if err != nil {
		t.Fatalf("first request rejected: %v", err)
	}
	if _, err := g.PerformSecurityChecks(newRequest("10.0.0.1:1")); err == nil {
		t.Fatal("request over quota admitted while the slot is in flight")
	}

	// An unbilled request gives its slot back.
	g.Settle(WithBilling(context.Background()), id)
	id, err = g.PerformSecurityChecks(newRequest("10.0.0.1:1"))
	if err != nil {
		t.Fatalf("slot not returned after unbilled request: %v", err)
	}

	// A billed request keeps it.
	ctx := WithBilling(context.Background())
	MarkBilled(ctx)
	g.Settle(ctx, id)
	if _, err := g.PerformSecurityChecks(newRequest("10.0.0.1:1")); err == nil {
		t.Error("request admitted after the last slot was billed")
	}
}

func TestGate_RateLimitReturnsQuotaSlot(t *testing.T) {
	limiter := ratelimit.NewStore(ratelimit.Policy{Requests: 1, Window: time.Minute})
	g := mustGate(t, GateConfig{Usage: usage.NewMemoryStore(), DailyQuota: 2, Limiter: limiter})

	id, err := g.PerformSecurityChecks(newRequest("10.0.0.1:1"))
	if err != nil {
		t.Fatalf("first request rejected: %v", err)
	}
	ctx := WithBilling(context.Background())
	MarkBilled(ctx)
	g.Settle(ctx, id)

	// Rate limited: the quota slot it took must come back.
	if _, err := g.PerformSecurityChecks(newRequest("10.0.0.1:1")); err == nil {
		t.Fatal("second request passed the rate limit")
	}

	limiter.SetPolicy(ratelimit.Policy{Requests: 10, Window: time.Minute})
	if _, err := g.PerformSecurityChecks(newRequest("10.0.0.1:1")); err != nil {
		t.Errorf("quota slot lost to a rate limited request: %v", err)
	}
}

func TestGate_QuotaResetsDaily(t *testing.T) {
	now := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	g := mustGate(t, GateConfig{
		Usage:      usage.NewMemoryStore(),
		DailyQuota: 1,
		Now:        func() time.Time { return now },
	})

	if _, err := g.PerformSecurityChecks(newRequest("10.0.0.1:1")); err != nil {
		t.Fatalf("first request rejected: %v", err)
	}
	if _, err := g.PerformSecurityChecks(newRequest("10.0.0.1:1")); err == nil {
		t.Fatal("second request admitted")
	}

	now = now.Add(2 * time.Hour)
	if _, err := g.PerformSecurityChecks(newRequest("10.0.0.1:1")); err != nil {
		t.Errorf("request rejected on the next day: %v", err)
	}
}

// ============================================================================
// Header Tests
// ============================================================================

func TestAddSecurityHeaders(t *testing.T) {
	h := http.Header{}
	AddSecurityHeaders(h)

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Referrer-Policy":         "no-referrer",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
		"Cache-Control":           "no-store",
	}
	for k, v := range want {
		if got := h.Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestIdentityContext(t *testing.T) {
	ctx := WithIdentity(context.Background(), Identity{Caller: "10.0.0.1", Role: RoleAdmin})
	id, ok := IdentityFromContext(ctx)
	if !ok || id.Caller != "10.0.0.1" || !id.IsAdmin() {
		t.Errorf("IdentityFromContext() = %+v, %v", id, ok)
	}

	if _, ok := IdentityFromContext(context.Background()); ok {
		t.Error("IdentityFromContext() on empty context returned ok")
	}
}
