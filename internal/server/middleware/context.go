package middleware

import (
	"context"

	userdomain "inkwell/backend/internal/user/domain"
)

type contextKey struct{ name string }

var identityKey = contextKey{"identity"}

// Identity is the request-scoped authorization context attached by RequireAuth:
// the live user plus its usable role profiles as of this request.
type Identity struct {
	User     *userdomain.User
	Author   *userdomain.Author
	Admin    *userdomain.Admin
	IsAuthor bool
	IsAdmin  bool
}

// WithIdentity returns a context carrying the authenticated identity.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// GetIdentity returns the identity from context and true if set.
func GetIdentity(ctx context.Context) (*Identity, bool) {
	v, ok := ctx.Value(identityKey).(*Identity)
	return v, ok && v != nil
}
