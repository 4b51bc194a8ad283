// Package auth provides credential hashing, session token issuance and
// password reset token generation for ThoughtNest.
//
// # Overview
//
// Two token kinds exist and never mix:
//
//   - Session tokens are HS256 JWTs whose subject is the user's email, with a
//     uid claim naming the account. They are valid for 24 hours and verified
//     statelessly with the shared secret.
//   - Reset tokens are opaque random strings. Only their SHA-256 hash is stored,
//     next to an expiry 30 minutes after issuance.
//
// # Session tokens
//
//	tokens, err := auth.NewTokenService(secret, auth.WithTTL(24*time.Hour))
//	token, expiresAt, err := tokens.Issue("a@x.com", user.ID)
//	ok := tokens.Validate(token, "a@x.com", user.ID)
//	subject, err := tokens.ExtractSubject(token)
//
// # Passwords
//
//	hasher := auth.NewBcryptHasher(bcrypt.DefaultCost)
//	hash, err := hasher.Hash("secret")
//	ok := hasher.Verify(hash, "secret")
//
// # Reset tokens
//
//	token, hash, err := auth.GenerateResetToken()
//	// email token, store hash
//	hash = auth.HashResetToken(tokenFromLink)
//
// # Related Packages
//
//   - pkg/middleware: resolves the request identity from a session token
//   - pkg/users: signup, login and the password reset flow
package auth
