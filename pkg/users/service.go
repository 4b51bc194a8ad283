package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/platinummonkey/thoughtnest/pkg/apperr"
	"github.com/platinummonkey/thoughtnest/pkg/auth"
	"github.com/platinummonkey/thoughtnest/pkg/mail"
	"github.com/platinummonkey/thoughtnest/pkg/models"
	"github.com/platinummonkey/thoughtnest/pkg/observability"
	"github.com/platinummonkey/thoughtnest/pkg/validation"
)

const (
	usernameMin = 3
	usernameMax = 20

	msgInvalidCredentials = "Invalid email or password"
	msgUserNotFound       = "User not found"
	msgAuthRequired       = "Authentication required"

	unknownUserPassword = "thoughtnest-unknown-user"
)

// Store persists users and their reset tokens.
type Store interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UpdateProfile(ctx context.Context, id int64, username, email string) error
	DeleteUser(ctx context.Context, id int64) error

	UpsertResetToken(ctx context.Context, token *models.ResetToken) error
	GetResetTokenByHash(ctx context.Context, hash string) (*models.ResetToken, error)
	// RedeemResetToken atomically replaces the owner's password hash and
	// deletes the token. It returns the user id.
	RedeemResetToken(ctx context.Context, hash string, now time.Time, passwordHash string) (int64, error)
}

// ArticleCounter counts a user's articles for the account view.
type ArticleCounter interface {
	CountByAuthor(ctx context.Context, authorID int64) (models.ArticleCounts, error)
}

// Options configures a Service.
type Options struct {
	// ResetURL is the frontend page that receives ?token=.
	ResetURL      string
	ResetTokenTTL time.Duration
	Metrics       *observability.Metrics
	Logger        *observability.Logger
	Clock         func() time.Time
	// OnAccountChange runs after a username or email change and after an
	// account deletion.
	OnAccountChange func(ctx context.Context)
}

// Service implements signup, login, account management and the password
// reset flow.
type Service struct {
	store    Store
	counter  ArticleCounter
	tokens   *auth.TokenService
	hasher   auth.Hasher
	mailer   mail.Mailer
	resetURL string
	resetTTL time.Duration
	metrics  *observability.Metrics
	logger   *observability.Logger
	now      func() time.Time
	changed  func(ctx context.Context)

	dummyOnce sync.Once
	dummy     string
}

// NewService creates a Service.
func NewService(store Store, counter ArticleCounter, tokens *auth.TokenService, hasher auth.Hasher, mailer mail.Mailer, opts Options) *Service {
	ttl := opts.ResetTokenTTL
	if ttl <= 0 {
		ttl = auth.ResetTokenTTL
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	return &Service{
		store:    store,
		counter:  counter,
		tokens:   tokens,
		hasher:   hasher,
		mailer:   mailer,
		resetURL: opts.ResetURL,
		resetTTL: ttl,
		metrics:  opts.Metrics,
		logger:   logger.WithField("component", "users"),
		now:      clock,
		changed:  opts.OnAccountChange,
	}
}

// SignupRequest is the signup payload.
type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AccountInfo is the account view with article counts.
type AccountInfo struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	models.ArticleCounts
}

// UpdateAccountRequest carries the optional new username and email. Blank
// fields are left unchanged.
type UpdateAccountRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// UpdateAccountResult reports the stored user after an update. EmailChanged
// means existing session tokens no longer resolve.
type UpdateAccountResult struct {
	User         *models.User
	EmailChanged bool
}

func checkPassword(v *validation.Validator, field, password string) {
	v.Required(field, password, "Password is required")
	v.MaxBytes(field, password, auth.MaxPasswordBytes, fmt.Sprintf("Password must be at most %d bytes", auth.MaxPasswordBytes))
}

func checkUsername(v *validation.Validator, username string) {
	v.Length("username", username, usernameMin, usernameMax,
		fmt.Sprintf("Username must be between %d and %d characters", usernameMin, usernameMax))
}

// Signup validates req and creates the account. The password is stored only
// as a bcrypt hash.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*models.User, error) {
	username := strings.TrimSpace(req.Username)
	email := models.NormalizeEmail(req.Email)

	v := validation.New()
	v.Required("username", username, "Username is required")
	checkUsername(v, username)
	v.Required("email", email, "Email is required")
	v.Email("email", email, "Email should be valid")
	checkPassword(v, "password", req.Password)
	if err := v.Err(""); err != nil {
		return nil, err
	}

	exists, err := s.store.UsernameExists(ctx, username)
	if err != nil {
		return nil, apperr.Internal("Failed to create user", err)
	}
	if exists {
		return nil, apperr.Conflict("username", "Username already exists")
	}
	exists, err = s.store.EmailExists(ctx, email)
	if err != nil {
		return nil, apperr.Internal("Failed to create user", err)
	}
	if exists {
		return nil, apperr.Conflict("email", "Email already exists")
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apperr.Internal("Failed to create user", err)
	}

	user := &models.User{Username: username, Email: email, PasswordHash: hash}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, classify(err, "Failed to create user")
	}

	if s.metrics != nil {
		s.metrics.SignupsTotal.Inc()
	}
	s.logger.WithField("user_id", user.ID).Info("User signed up")
	return user, nil
}

// Login checks the credentials of the user with email identifier and issues
// a session token. Unknown users and wrong passwords fail the same way.
func (s *Service) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	email := models.NormalizeEmail(identifier)

	v := validation.New()
	v.Required("email", email, "Username or Email is required")
	v.Required("password", password, "Password is required")
	if err := v.Err(""); err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Internal("Login failed", err)
	}

	principal := auth.Principal{PasswordHash: s.dummyHash()}
	if user != nil {
		principal = auth.Principal{Subject: user.Email, PasswordHash: user.PasswordHash}
	}
	if !principal.Authenticate(s.hasher, password) {
		s.recordLogin("failure")
		return nil, apperr.Unauthorized(msgInvalidCredentials)
	}

	token, expiresAt, err := s.tokens.Issue(user.Email, user.ID)
	if err != nil {
		return nil, apperr.Internal("Login failed", err)
	}

	s.recordLogin("success")
	return &LoginResult{Token: token, Username: user.Username, ExpiresAt: expiresAt}, nil
}

// dummyHash is verified in place of a real hash when the email is unknown.
func (s *Service) dummyHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(unknownUserPassword)
		if err != nil {
			s.logger.WithError(err).Warn("Failed to prepare unknown-user hash")
			return
		}
		s.dummy = hash
	})
	return s.dummy
}

func (s *Service) recordLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.LoginAttemptsTotal.WithLabelValues(outcome).Inc()
	}
}

// ResolveIdentity loads the identity for a session token subject.
func (s *Service) ResolveIdentity(ctx context.Context, email string) (*auth.Identity, error) {
	user, err := s.store.GetUserByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	return &auth.Identity{UserID: user.ID, Username: user.Username, Email: user.Email}, nil
}

func (s *Service) currentUser(ctx context.Context, identity *auth.Identity) (*models.User, error) {
	if identity == nil {
		return nil, apperr.Unauthorized(msgAuthRequired)
	}
	user, err := s.store.GetUserByID(ctx, identity.UserID)
	if err != nil {
		return nil, classify(err, msgUserNotFound)
	}
	return user, nil
}

// Account returns the caller's profile and article counts.
func (s *Service) Account(ctx context.Context, identity *auth.Identity) (*AccountInfo, error) {
	user, err := s.currentUser(ctx, identity)
	if err != nil {
		return nil, err
	}
	counts, err := s.counter.CountByAuthor(ctx, user.ID)
	if err != nil {
		return nil, apperr.Internal("Failed to load account", err)
	}
	return &AccountInfo{Username: user.Username, Email: user.Email, ArticleCounts: counts}, nil
}

// UpdateAccount applies the non-blank fields of req. Every uniqueness check
// runs before the single write, so a conflict on either field changes
// nothing.
func (s *Service) UpdateAccount(ctx context.Context, identity *auth.Identity, req UpdateAccountRequest) (*UpdateAccountResult, error) {
	user, err := s.currentUser(ctx, identity)
	if err != nil {
		return nil, err
	}

	username := strings.TrimSpace(req.Username)
	email := models.NormalizeEmail(req.Email)
	changeUsername := username != "" && username != user.Username
	changeEmail := email != "" && email != user.Email

	v := validation.New()
	if changeUsername {
		checkUsername(v, username)
	}
	if changeEmail {
		v.Email("email", email, "Email should be valid")
	}
	if err := v.Err(""); err != nil {
		return nil, err
	}

	if changeUsername {
		exists, err := s.store.UsernameExists(ctx, username)
		if err != nil {
			return nil, apperr.Internal("Failed to update account", err)
		}
		if exists {
			return nil, apperr.Conflict("username", "Username already exists")
		}
	}
	if changeEmail {
		exists, err := s.store.EmailExists(ctx, email)
		if err != nil {
			return nil, apperr.Internal("Failed to update account", err)
		}
		if exists {
			return nil, apperr.Conflict("email", "Email already exists")
		}
	}

	if !changeUsername && !changeEmail {
		return &UpdateAccountResult{User: user}, nil
	}
	if !changeUsername {
		username = user.Username
	}
	if !changeEmail {
		email = user.Email
	}

	if err := s.store.UpdateProfile(ctx, user.ID, username, email); err != nil {
		return nil, classify(err, msgUserNotFound)
	}

	user.Username = username
	user.Email = email
	s.notifyChange(ctx)
	s.logger.WithFields(map[string]interface{}{
		"user_id":       user.ID,
		"email_changed": changeEmail,
	}).Info("Account updated")
	return &UpdateAccountResult{User: user, EmailChanged: changeEmail}, nil
}

// DeleteAccount removes the caller with their articles and reset token after
// confirming the password.
func (s *Service) DeleteAccount(ctx context.Context, identity *auth.Identity, password string) error {
	user, err := s.currentUser(ctx, identity)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(user.PasswordHash, password) {
		return apperr.Unauthorized("Invalid password")
	}
	if err := s.store.DeleteUser(ctx, user.ID); err != nil {
		return classify(err, msgUserNotFound)
	}
	s.notifyChange(ctx)
	s.logger.WithField("user_id", user.ID).Info("Account deleted")
	return nil
}

func (s *Service) notifyChange(ctx context.Context) {
	if s.changed != nil {
		s.changed(ctx)
	}
}

// classify keeps classified store errors and maps the rest.
func classify(err error, notFoundMessage string) error {
	var appErr *apperr.Error
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, apperr.ErrNotFound):
		return apperr.NotFound(notFoundMessage)
	default:
		return apperr.Internal("Database error", err)
	}
}
