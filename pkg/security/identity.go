package security

import "context"

// Role is the privilege level of a caller.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Identity is the caller as resolved by the gate.
type Identity struct {
	// Caller is the coarse caller key, the client IP.
	Caller string
	Role   Role

	// reservation is the daily quota slot taken for this request, if any.
	reservation *quotaEntry
}

// IsAdmin reports whether the caller presented an admin token.
func (id Identity) IsAdmin() bool {
	return id.Role == RoleAdmin
}

type contextKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// IdentityFromContext returns the identity stored by WithIdentity.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}
