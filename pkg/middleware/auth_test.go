package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/platinummonkey/thoughtnest/pkg/apperr"
	"github.com/platinummonkey/thoughtnest/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type mapResolver map[string]*auth.Identity

func (m mapResolver) ResolveIdentity(_ context.Context, email string) (*auth.Identity, error) {
	if id, ok := m[strings.ToLower(email)]; ok {
		return id, nil
	}
	return nil, apperr.NotFound("User not found")
}

// captureIdentity records the identity the handler saw.
func captureIdentity(seen **auth.Identity) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen = auth.FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

func newTokens(t *testing.T, now func() time.Time) *auth.TokenService {
	t.Helper()
	tokens, err := auth.NewTokenService(testSecret, auth.WithClock(now))
	require.NoError(t, err)
	return tokens
}

func TestAuthenticator_Handler(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tokens := newTokens(t, func() time.Time { return now })
	alice := &auth.Identity{UserID: 1, Username: "alice", Email: "a@x.com"}
	resolver := mapResolver{"a@x.com": alice}

	valid, _, err := tokens.Issue("a@x.com", 1)
	require.NoError(t, err)
	ghost, _, err := tokens.Issue("ghost@x.com", 9)
	require.NoError(t, err)
	// Issued to account 2 while it held a@x.com; the address now belongs to account 1.
	previousOwner, _, err := tokens.Issue("a@x.com", 2)
	require.NoError(t, err)

	other, err := auth.NewTokenService("ffffffffffffffffffffffffffffffff", auth.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	forged, _, err := other.Issue("a@x.com", 1)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   *auth.Identity
	}{
		{"no header", "", nil},
		{"valid token", "Bearer " + valid, alice},
		{"lowercase scheme", "bearer " + valid, alice},
		{"wrong scheme", "Basic " + valid, nil},
		{"empty token", "Bearer ", nil},
		{"garbage", "Bearer not-a-jwt", nil},
		{"unknown subject", "Bearer " + ghost, nil},
		{"foreign signature", "Bearer " + forged, nil},
		{"email now owned by another account", "Bearer " + previousOwner, nil},
	}

	a := NewAuthenticator(tokens, resolver)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen *auth.Identity
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			a.Handler(captureIdentity(&seen)).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusNoContent, rec.Code)
			assert.Equal(t, tt.want, seen)
		})
	}
}

func TestAuthenticator_ExpiredToken(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tokens := newTokens(t, func() time.Time { return now })
	token, _, err := tokens.Issue("a@x.com", 1)
	require.NoError(t, err)

	now = now.Add(24 * time.Hour)

	var seen *auth.Identity
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	NewAuthenticator(tokens, mapResolver{"a@x.com": {UserID: 1, Email: "a@x.com"}}).
		Handler(captureIdentity(&seen)).ServeHTTP(httptest.NewRecorder(), req)

	assert.Nil(t, seen)
}

func TestAuthenticator_EmailChangedEndsSession(t *testing.T) {
	tokens := newTokens(t, time.Now)
	token, _, err := tokens.Issue("a@x.com", 1)
	require.NoError(t, err)

	// The account now lives under a new address; the old subject no longer resolves.
	resolver := mapResolver{"new@x.com": {UserID: 1, Email: "new@x.com"}}

	var seen *auth.Identity
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	NewAuthenticator(tokens, resolver).Handler(captureIdentity(&seen)).ServeHTTP(httptest.NewRecorder(), req)

	assert.Nil(t, seen)
}

func TestRequireIdentity(t *testing.T) {
	called := false
	h := RequireIdentityFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Authentication required", body["message"])
	assert.Equal(t, float64(401), body["status"])
	assert.Nil(t, body["data"])

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(auth.NewContext(req.Context(), &auth.Identity{UserID: 1, Email: "a@x.com"}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}
