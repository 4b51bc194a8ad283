package users

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/platinummonkey/thoughtnest/pkg/apperr"
	"github.com/platinummonkey/thoughtnest/pkg/auth"
	"github.com/platinummonkey/thoughtnest/pkg/mail"
	"github.com/platinummonkey/thoughtnest/pkg/observability"
	"github.com/platinummonkey/thoughtnest/pkg/storage/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.err
}

// lastToken pulls the token out of the most recent reset link.
func (m *recordingMailer) lastToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent)

	for _, field := range strings.Fields(m.sent[len(m.sent)-1].Text) {
		if u, err := url.Parse(field); err == nil && u.Query().Get("token") != "" {
			return u.Query().Get("token")
		}
	}
	t.Fatal("no reset link in message")
	return ""
}

type fixture struct {
	svc     *Service
	store   *memory.Store
	mailer  *recordingMailer
	clock   *clock
	tokens  *auth.TokenService
	metrics *observability.Metrics
	logs    *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	c := &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	tokens, err := auth.NewTokenService(testSecret, auth.WithClock(c.Now))
	require.NoError(t, err)

	store := memory.New()
	mailer := &recordingMailer{}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	var logs bytes.Buffer

	svc := NewService(store, store, tokens, auth.NewBcryptHasher(bcrypt.MinCost), mailer, Options{
		ResetURL: "http://localhost:5173/reset-password",
		Metrics:  metrics,
		Logger:   observability.NewLogger(observability.DebugLevel, &logs),
		Clock:    c.Now,
	})
	return &fixture{svc: svc, store: store, mailer: mailer, clock: c, tokens: tokens, metrics: metrics, logs: &logs}
}

func (f *fixture) signup(t *testing.T, username, email, password string) *auth.Identity {
	t.Helper()
	user, err := f.svc.Signup(context.Background(), SignupRequest{Username: username, Email: email, Password: password})
	require.NoError(t, err)
	return &auth.Identity{UserID: user.ID, Username: user.Username, Email: user.Email}
}

func assertKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, apperr.KindOf(err), "error: %v", err)
}

func TestSignup_StoresHashNotPlaintext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.svc.Signup(ctx, SignupRequest{Username: "alice", Email: " A@X.com ", Password: "pw1"})
	require.NoError(t, err)

	assert.Equal(t, "a@x.com", user.Email)
	assert.NotEqual(t, "pw1", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("pw1")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.SignupsTotal))
}

func TestSignup_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		req   SignupRequest
		field string
		msg   string
	}{
		{"missing username", SignupRequest{Email: "a@x.com", Password: "pw"}, "username", "Username is required"},
		{"short username", SignupRequest{Username: "ab", Email: "a@x.com", Password: "pw"}, "username", "Username must be between 3 and 20 characters"},
		{"missing email", SignupRequest{Username: "alice", Password: "pw"}, "email", "Email is required"},
		{"bad email", SignupRequest{Username: "alice", Email: "nope", Password: "pw"}, "email", "Email should be valid"},
		{"missing password", SignupRequest{Username: "alice", Email: "a@x.com"}, "password", "Password is required"},
		{"long password", SignupRequest{Username: "alice", Email: "a@x.com", Password: strings.Repeat("p", 73)}, "password", "Password must be at most 72 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Signup(context.Background(), tt.req)
			assertKind(t, err, apperr.KindValidationFailed)

			var appErr *apperr.Error
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.msg, appErr.Fields[tt.field])
		})
	}
}

func TestSignup_Conflicts(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "alice", "a@x.com", "pw1")

	_, err := f.svc.Signup(context.Background(), SignupRequest{Username: "alice", Email: "b@x.com", Password: "pw"})
	assertKind(t, err, apperr.KindConflict)
	assert.EqualError(t, err, "conflict: Username already exists")

	_, err = f.svc.Signup(context.Background(), SignupRequest{Username: "bob", Email: "A@x.com", Password: "pw"})
	assertKind(t, err, apperr.KindConflict)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "alice", "a@x.com", "pw1")
	ctx := context.Background()

	res, err := f.svc.Login(ctx, "A@X.COM", "pw1")
	require.NoError(t, err)
	assert.Equal(t, "alice", res.Username)
	assert.Equal(t, f.clock.Now().Add(24*time.Hour), res.ExpiresAt)
	user, err := f.svc.ResolveIdentity(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, f.tokens.Validate(res.Token, "a@x.com", user.UserID))

	f.clock.Advance(24 * time.Hour)
	assert.False(t, f.tokens.Validate(res.Token, "a@x.com", user.UserID))
}

func TestLogin_UniformFailure(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "alice", "a@x.com", "pw1")
	ctx := context.Background()

	_, wrongPassword := f.svc.Login(ctx, "a@x.com", "nope")
	_, unknownUser := f.svc.Login(ctx, "ghost@x.com", "pw1")

	assertKind(t, wrongPassword, apperr.KindUnauthorized)
	assertKind(t, unknownUser, apperr.KindUnauthorized)
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error())
	assert.Equal(t, float64(2), testutil.ToFloat64(f.metrics.LoginAttemptsTotal.WithLabelValues("failure")))

	_, err := f.svc.Login(ctx, "", "")
	assertKind(t, err, apperr.KindValidationFailed)
}

type countingHasher struct {
	auth.Hasher
	mu       sync.Mutex
	verified []string
}

func (h *countingHasher) Verify(hash, password string) bool {
	h.mu.Lock()
	h.verified = append(h.verified, hash)
	h.mu.Unlock()
	return h.Hasher.Verify(hash, password)
}

func TestLogin_UnknownEmailStillVerifiesHash(t *testing.T) {
	f := newFixture(t)
	hasher := &countingHasher{Hasher: auth.NewBcryptHasher(bcrypt.MinCost)}
	svc := NewService(f.store, f.store, f.tokens, hasher, f.mailer, Options{Clock: f.clock.Now})
	ctx := context.Background()

	_, err := svc.Login(ctx, "ghost@x.com", unknownUserPassword)
	assertKind(t, err, apperr.KindUnauthorized)
	_, err = svc.Login(ctx, "ghost@x.com", "pw1")
	assertKind(t, err, apperr.KindUnauthorized)

	require.Len(t, hasher.verified, 2)
	for _, hash := range hasher.verified {
		cost, err := bcrypt.Cost([]byte(hash))
		require.NoError(t, err)
		assert.Equal(t, bcrypt.MinCost, cost)
	}
	assert.Equal(t, hasher.verified[0], hasher.verified[1])
}

func TestResolveIdentity(t *testing.T) {
	f := newFixture(t)
	id := f.signup(t, "alice", "a@x.com", "pw1")

	got, err := f.svc.ResolveIdentity(context.Background(), "A@x.com")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = f.svc.ResolveIdentity(context.Background(), "ghost@x.com")
	assert.True(t, apperr.IsNotFound(err))
}

func TestAccount(t *testing.T) {
	f := newFixture(t)
	id := f.signup(t, "alice", "a@x.com", "pw1")

	info, err := f.svc.Account(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "alice", info.Username)
	assert.Equal(t, 0, info.Total)

	_, err = f.svc.Account(context.Background(), nil)
	assertKind(t, err, apperr.KindUnauthorized)
}

func TestUpdateAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.signup(t, "alice", "a@x.com", "pw1")

	res, err := f.svc.UpdateAccount(ctx, id, UpdateAccountRequest{Username: "alice2"})
	require.NoError(t, err)
	assert.False(t, res.EmailChanged)
	assert.Equal(t, "alice2", res.User.Username)

	res, err = f.svc.UpdateAccount(ctx, id, UpdateAccountRequest{Email: "new@x.com"})
	require.NoError(t, err)
	assert.True(t, res.EmailChanged)

	stored, err := f.store.GetUserByID(ctx, id.UserID)
	require.NoError(t, err)
	assert.Equal(t, "alice2", stored.Username)
	assert.Equal(t, "new@x.com", stored.Email)
}

func TestUpdateAccount_ConflictChangesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.signup(t, "alice", "a@x.com", "pw1")
	f.signup(t, "bob", "b@x.com", "pw2")

	// New username is free, new email is taken: neither may be applied.
	_, err := f.svc.UpdateAccount(ctx, alice, UpdateAccountRequest{Username: "carol", Email: "b@x.com"})
	assertKind(t, err, apperr.KindConflict)
	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "email", appErr.Field)

	_, err = f.svc.UpdateAccount(ctx, alice, UpdateAccountRequest{Username: "bob"})
	assertKind(t, err, apperr.KindConflict)

	stored, err := f.store.GetUserByID(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.Username)
	assert.Equal(t, "a@x.com", stored.Email)
}

func TestUpdateAccount_NoChange(t *testing.T) {
	f := newFixture(t)
	id := f.signup(t, "alice", "a@x.com", "pw1")

	res, err := f.svc.UpdateAccount(context.Background(), id, UpdateAccountRequest{Username: "alice", Email: " "})
	require.NoError(t, err)
	assert.False(t, res.EmailChanged)

	_, err = f.svc.UpdateAccount(context.Background(), id, UpdateAccountRequest{Username: "x"})
	assertKind(t, err, apperr.KindValidationFailed)
}

func TestDeleteAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.signup(t, "alice", "a@x.com", "pw1")

	assertKind(t, f.svc.DeleteAccount(ctx, id, "wrong"), apperr.KindUnauthorized)
	require.NoError(t, f.svc.DeleteAccount(ctx, id, "pw1"))

	_, err := f.store.GetUserByID(ctx, id.UserID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assertKind(t, f.svc.DeleteAccount(ctx, id, "pw1"), apperr.KindNotFound)
}

func TestOnAccountChange(t *testing.T) {
	f := newFixture(t)
	calls := 0
	f.svc.changed = func(context.Context) { calls++ }
	ctx := context.Background()
	id := f.signup(t, "alice", "a@x.com", "pw1")

	_, err := f.svc.UpdateAccount(ctx, id, UpdateAccountRequest{Username: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 0, calls)

	_, err = f.svc.UpdateAccount(ctx, id, UpdateAccountRequest{Username: "alice2"})
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteAccount(ctx, id, "pw1"))
	assert.Equal(t, 2, calls)
}
