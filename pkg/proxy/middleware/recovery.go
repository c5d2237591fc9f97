package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"mercator-hq/conduit/pkg/proxy"
)

// errPanic is never shown to clients; WriteError reports it as UNKNOWN_ERROR
// with a generic message.
var errPanic = errors.New("handler panic")

// RecoveryMiddleware recovers from panics in HTTP handlers and answers with
// the UNKNOWN_ERROR envelope. The panic value and stack are logged but never
// sent to the client. When the handler had already started its response,
// as a stream does, the panic is only logged.
//
// http.ErrAbortHandler is re-raised so that net/http can abort the
// connection as it normally would.
//
// Example usage:
//
//	handler = RecoveryMiddleware(handler)
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := newResponseWriter(w)

		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			slog.ErrorContext(r.Context(), "panic in handler",
				"panic", rec,
				"method", r.Method,
				"path", r.URL.Path,
				"headers_sent", rw.written,
				"stack", string(debug.Stack()),
			)

			if rw.written {
				return
			}
			proxy.WriteError(rw, errPanic)
		}()

		next.ServeHTTP(rw, r)
	})
}
