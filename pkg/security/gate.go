package security

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"mercator-hq/conduit/pkg/limits/ratelimit"
	"mercator-hq/conduit/pkg/providers"
	"mercator-hq/conduit/pkg/usage"
)

// Rejection reasons passed to GateConfig.OnReject.
const (
	ReasonBlocked   = "blocked"
	ReasonBodySize  = "body_size"
	ReasonQuota     = "quota"
	ReasonRateLimit = "rate_limit"
)

// GateConfig wires the gate's dependencies.
type GateConfig struct {
	// Limiter enforces the per-caller window. Nil disables rate limiting.
	Limiter *ratelimit.Store

	// Usage is read for the daily quota. Nil disables the quota.
	Usage usage.Store

	// DailyQuota caps requests per caller per UTC day. Zero disables it.
	DailyQuota int

	// AdminTokens grant the admin role.
	AdminTokens []string

	// BlockedNetworks are CIDRs whose callers are refused.
	BlockedNetworks []string

	// MaxBodyBytes caps the declared Content-Length. Zero disables the check.
	MaxBodyBytes int64

	// TrustForwardedFor uses the first X-Forwarded-For hop as the caller.
	TrustForwardedFor bool

	// OnReject is called with a Reason* constant for every rejection.
	OnReject func(reason string)

	// Now replaces time.Now.
	Now func() time.Time
}

// Gate runs the pre-parse checks for proxied requests.
type Gate struct {
	limiter     *ratelimit.Store
	usage       usage.Store
	quota       int
	adminTokens [][]byte
	blocked     []netip.Prefix
	maxBody     int64
	trustXFF    bool
	onReject    func(string)
	now         func() time.Time
	logger      *slog.Logger
	ledger      *quotaLedger
}

// NewGate validates cfg and builds a gate.
func NewGate(cfg GateConfig) (*Gate, error) {
	g := &Gate{
		limiter:  cfg.Limiter,
		usage:    cfg.Usage,
		quota:    cfg.DailyQuota,
		maxBody:  cfg.MaxBodyBytes,
		trustXFF: cfg.TrustForwardedFor,
		onReject: cfg.OnReject,
		now:      cfg.Now,
		logger:   slog.Default().With("component", "security.gate"),
		ledger:   newQuotaLedger(),
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.onReject == nil {
		g.onReject = func(string) {}
	}

	for _, cidr := range cfg.BlockedNetworks {
		p, err := netip.ParsePrefix(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid blocked network %q: %w", cidr, err)
		}
		g.blocked = append(g.blocked, p.Masked())
	}

	for _, tok := range cfg.AdminTokens {
		g.adminTokens = append(g.adminTokens, []byte(tok))
	}

	return g, nil
}

// PerformSecurityChecks resolves the caller and rejects blocked, oversized,
// over-quota or rate limited requests. It never reads the body.
func (g *Gate) PerformSecurityChecks(r *http.Request) (Identity, error) {
	id := Identity{
		Caller: CallerKey(r, g.trustXFF),
		Role:   RoleUser,
	}

	if g.isBlocked(id.Caller) {
		g.reject(ReasonBlocked, id)
		return id, providers.NewError(providers.CodeForbidden, "access denied")
	}

	if g.maxBody > 0 && r.ContentLength > g.maxBody {
		g.reject(ReasonBodySize, id)
		return id, providers.NewInvalidRequest("request body exceeds %d bytes", g.maxBody)
	}

	if g.isAdmin(bearerToken(r)) {
		id.Role = RoleAdmin
	}

	if err := g.checkQuota(r, &id); err != nil {
		g.reject(ReasonQuota, id)
		return id, err
	}

	if g.limiter != nil {
		res := g.limiter.Allow(id.Caller)
		if !res.Allowed {
			g.release(id)
			g.reject(ReasonRateLimit, id)
			return id, providers.NewRateLimited("", "Rate limit exceeded", res.RetryAfter)
		}
	}

	return id, nil
}

// checkQuota takes one of the caller's daily slots. On success with a slot
// taken, id carries the reservation for Settle.
func (g *Gate) checkQuota(r *http.Request, id *Identity) error {
	if g.quota <= 0 || g.usage == nil || id.IsAdmin() {
		return nil
	}

	now := g.now()
	entry := g.ledger.entry(id.Caller, now)
	admitted, consumed, err := entry.tryConsume(int64(g.quota), func() (int64, error) {
		totals, err := g.usage.Read(r.Context(), id.Caller, now)
		return totals.Requests, err
	})
	if err != nil {
		// Fail open: a broken usage store must not take the proxy down.
		g.logger.Error("failed to read usage, skipping quota check",
			"caller", id.Caller,
			"error", err,
		)
		return nil
	}
	if !admitted {
		return providers.NewRateLimited("", "Daily request quota exceeded", usage.NextMidnight(now).Sub(now))
	}
	if consumed {
		id.reservation = entry
	}
	return nil
}

// Settle returns the quota slot reserved for id unless the request was
// billed with MarkBilled. Call it once the request has finished.
func (g *Gate) Settle(ctx context.Context, id Identity) {
	if isBilled(ctx) {
		return
	}
	g.release(id)
}

func (g *Gate) release(id Identity) {
	if id.reservation != nil {
		id.reservation.refund()
	}
}

func (g *Gate) isBlocked(caller string) bool {
	if len(g.blocked) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(caller)
	if err != nil {
		return false
	}
	for _, p := range g.blocked {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func (g *Gate) isAdmin(token string) bool {
	if token == "" {
		return false
	}
	matched := 0
	for _, admin := range g.adminTokens {
		matched |= subtle.ConstantTimeCompare([]byte(token), admin)
	}
	return matched == 1
}

func (g *Gate) reject(reason string, id Identity) {
	g.onReject(reason)
	g.logger.Warn("request rejected by security gate",
		"reason", reason,
		"caller", id.Caller,
	)
}
