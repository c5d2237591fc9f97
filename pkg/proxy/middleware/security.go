package middleware

import (
	"net/http"
	"strings"

	"mercator-hq/conduit/pkg/providers"
	"mercator-hq/conduit/pkg/proxy"
	"mercator-hq/conduit/pkg/security"
	"mercator-hq/conduit/pkg/telemetry/logging"
)

// SecurityHeadersMiddleware sets the fixed security headers before the
// handler runs.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		security.AddSecurityHeaders(w.Header())
		next.ServeHTTP(w, r)
	})
}

// AllowMethods rejects any method not in methods with METHOD_NOT_ALLOWED.
// OPTIONS never reaches it; the CORS middleware answers preflights first.
func AllowMethods(methods ...string) Middleware {
	allow := strings.Join(methods, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, m := range methods {
				if r.Method == m {
					next.ServeHTTP(w, r)
					return
				}
			}

			w.Header().Set("Allow", allow)
			perr := proxy.WriteError(w, providers.NewError(providers.CodeMethodNotAllowed,
				"method "+r.Method+" not allowed"))
			proxy.LogErrorSafely(r.Context(), perr)
		})
	}
}

// GateMiddleware runs the security gate before the handler reads the body.
// On success the caller's identity is stored in the request context, and
// the caller's quota slot is settled once the handler returns.
func GateMiddleware(gate *security.Gate) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := gate.PerformSecurityChecks(r)
			ctx := logging.WithCaller(r.Context(), id.Caller)
			if err != nil {
				perr := proxy.WriteError(w, err)
				proxy.LogErrorSafely(ctx, perr)
				return
			}

			ctx = security.WithBilling(security.WithIdentity(ctx, id))
			defer gate.Settle(ctx, id)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
