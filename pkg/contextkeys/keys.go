// Package contextkeys holds every context key ThoughtNest stores request
// state under. Values are set once by middleware and read by handlers and
// the logger:
//
//	IdentityKey   *auth.Identity   middleware.Authenticator
//	SubjectKey    string (email)   middleware.Authenticator
//	RequestIDKey  string           httputil.RequestIDMiddleware
//	LoggerKey     *observability.Logger  httputil.LoggingMiddleware
//
// Typed accessors live next to the value's type (auth.FromContext,
// observability.GetLogger) so this package imports nothing of ours.
package contextkeys

import "context"

// Key is the type of every ThoughtNest context key.
type Key string

const (
	IdentityKey  Key = "identity"
	SubjectKey   Key = "subject"
	RequestIDKey Key = "request_id"
	LoggerKey    Key = "logger"
)

// WithIdentity stores the authenticated identity.
func WithIdentity(ctx context.Context, identity interface{}) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// WithSubject stores the token subject (the user's email) for log fields.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, SubjectKey, subject)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// Subject returns the stored token subject, or "".
func Subject(ctx context.Context) string {
	return stringValue(ctx, SubjectKey)
}

// RequestID returns the stored request id, or "".
func RequestID(ctx context.Context) string {
	return stringValue(ctx, RequestIDKey)
}

func stringValue(ctx context.Context, key Key) string {
	s, _ := ctx.Value(key).(string)
	return s
}
