package auth

import (
	"context"

	"github.com/platinummonkey/thoughtnest/pkg/contextkeys"
)

// Identity is the authenticated caller attached to a request.
type Identity struct {
	UserID   int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Principal is the credential view of a stored user used by login.
type Principal struct {
	Subject      string
	PasswordHash string
}

// Authenticate reports whether password matches the principal's hash. The
// hash is always verified, so a principal without a subject costs the same
// as a wrong password.
func (p Principal) Authenticate(hasher Hasher, password string) bool {
	ok := hasher.Verify(p.PasswordHash, password)
	return ok && p.Subject != ""
}

// FromContext returns the identity attached to ctx, or nil.
func FromContext(ctx context.Context) *Identity {
	identity, ok := ctx.Value(contextkeys.IdentityKey).(*Identity)
	if !ok {
		return nil
	}
	return identity
}

// NewContext returns a copy of ctx carrying identity.
func NewContext(ctx context.Context, identity *Identity) context.Context {
	ctx = contextkeys.WithIdentity(ctx, identity)
	return contextkeys.WithSubject(ctx, identity.Email)
}
