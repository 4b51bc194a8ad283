package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/platinummonkey/thoughtnest/pkg/auth"
	"github.com/platinummonkey/thoughtnest/pkg/httputil"
	"github.com/platinummonkey/thoughtnest/pkg/observability"
)

// TokenValidator verifies session tokens. *auth.TokenService satisfies it.
type TokenValidator interface {
	ExtractSubject(token string) (string, error)
	Validate(token, expectedSubject string, expectedUserID int64) bool
}

// IdentityResolver loads the identity for a token subject.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, email string) (*auth.Identity, error)
}

// Authenticator attaches the caller's identity to requests carrying a valid
// Bearer token. It never rejects a request; routes that need an identity
// wrap their handler with RequireIdentity.
type Authenticator struct {
	tokens   TokenValidator
	resolver IdentityResolver
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(tokens TokenValidator, resolver IdentityResolver) *Authenticator {
	return &Authenticator{tokens: tokens, resolver: resolver}
}

// Handler wraps an HTTP handler with authentication
func (a *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		identity := a.authenticate(r.Context(), token)
		if identity == nil {
			next.ServeHTTP(w, r)
			return
		}

		ctx := auth.NewContext(r.Context(), identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) authenticate(ctx context.Context, token string) *auth.Identity {
	logger := observability.FromContext(ctx)

	subject, err := a.tokens.ExtractSubject(token)
	if err != nil {
		logger.WithError(err).Debug("Ignoring invalid session token")
		return nil
	}

	identity, err := a.resolver.ResolveIdentity(ctx, subject)
	if err != nil {
		logger.WithError(err).Debug("Ignoring session token for unknown user")
		return nil
	}

	if !a.tokens.Validate(token, identity.Email, identity.UserID) {
		logger.Debug("Ignoring session token bound to another account")
		return nil
	}
	return identity
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// RequireIdentity answers 401 unless the request carries an identity.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.FromContext(r.Context()) == nil {
			httputil.WriteUnauthorized(w, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireIdentityFunc is RequireIdentity for handler functions.
func RequireIdentityFunc(next http.HandlerFunc) http.Handler {
	return RequireIdentity(next)
}
