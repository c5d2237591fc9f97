/*
Package security implements the gate every proxied request passes before its
body is parsed.

# Checks

PerformSecurityChecks identifies the caller by client IP and, in order:

  - rejects callers inside a blocked network with FORBIDDEN
  - rejects a declared Content-Length above the body limit with INVALID_REQUEST
  - resolves the caller's role from an admin bearer token
  - enforces the daily usage quota for non-admin callers
  - enforces the per-caller sliding window rate limit

Rate limit and quota rejections are RATE_LIMIT_EXCEEDED errors carrying a
retry-after hint.

# Daily Quota

The gate keeps a per-caller count of admitted requests for the current UTC
day, seeded from the usage store the first time a caller is seen. A slot is
taken atomically when a request is admitted. Settle gives it back when the
request ends without MarkBilled, so failed calls never count.

# Headers

AddSecurityHeaders sets the hardening headers written on every response,
including errors and CORS preflights.

# Identity

The resolved Identity travels in the request context:

	id, err := gate.PerformSecurityChecks(r)
	if err != nil {
		// write error envelope
	}
	ctx := security.WithBilling(security.WithIdentity(r.Context(), id))
	defer gate.Settle(ctx, id)

HTTPS termination for the listener lives in the tls subpackage.
*/
package security
