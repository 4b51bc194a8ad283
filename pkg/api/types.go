package api

import (
	"context"
	"io"

	"github.com/platinummonkey/thoughtnest/pkg/articles"
	"github.com/platinummonkey/thoughtnest/pkg/auth"
	"github.com/platinummonkey/thoughtnest/pkg/contact"
	"github.com/platinummonkey/thoughtnest/pkg/models"
	"github.com/platinummonkey/thoughtnest/pkg/users"
)

// UserService is the account side of the API. *users.Service satisfies it.
type UserService interface {
	Signup(ctx context.Context, req users.SignupRequest) (*models.User, error)
	Login(ctx context.Context, identifier, password string) (*users.LoginResult, error)
	ResolveIdentity(ctx context.Context, email string) (*auth.Identity, error)
	Account(ctx context.Context, identity *auth.Identity) (*users.AccountInfo, error)
	UpdateAccount(ctx context.Context, identity *auth.Identity, req users.UpdateAccountRequest) (*users.UpdateAccountResult, error)
	DeleteAccount(ctx context.Context, identity *auth.Identity, password string) error

	RequestPasswordReset(ctx context.Context, email string) error
	ValidateResetToken(ctx context.Context, token string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}

// ArticleService is the article side of the API. *articles.Service
// satisfies it.
type ArticleService interface {
	Create(ctx context.Context, identity *auth.Identity, in articles.Input) (*articles.View, error)
	Get(ctx context.Context, id int64) (*articles.View, error)
	ListMine(ctx context.Context, identity *auth.Identity) ([]articles.View, error)
	ListAll(ctx context.Context) ([]articles.View, error)
	ListPublished(ctx context.Context) ([]articles.View, error)
	Update(ctx context.Context, identity *auth.Identity, id int64, in articles.Input) (*articles.View, error)
	Delete(ctx context.Context, identity *auth.Identity, id int64) error
	SetPublished(ctx context.Context, identity *auth.Identity, id int64, published bool) error
	UploadImage(ctx context.Context, identity *auth.Identity, filename string, body io.Reader, size int64, contentType string) (string, error)
}

// ContactService accepts contact form submissions. *contact.Service
// satisfies it.
type ContactService interface {
	Submit(ctx context.Context, req contact.Request) (*models.ContactMessage, error)
}

// loginRequest is the login payload. Identifier holds the email address.
type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type deleteAccountRequest struct {
	Password string `json:"password"`
}

// loginResponse mirrors the token payload the frontend stores.
type loginResponse struct {
	Token     string `json:"token"`
	Username  string `json:"username"`
	ExpiresAt string `json:"expiresAt"`
}
