package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/thoughtnest/pkg/auth"
	"github.com/platinummonkey/thoughtnest/pkg/httputil"
	"github.com/platinummonkey/thoughtnest/pkg/middleware"
	"github.com/platinummonkey/thoughtnest/pkg/users"
)

// AuthHandlers handles signup, login, password reset and account routes
type AuthHandlers struct {
	users    UserService
	limit    limitFunc
	maxBytes int64
}

// RegisterRoutes registers authentication routes
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	r := router.PathPrefix("/api/auth").Subrouter()

	r.Handle("/signup", jsonBody(h.maxBytes, h.signup)).Methods(http.MethodPost)
	r.Handle("/login", h.limit.apply(scopeLogin, jsonBody(h.maxBytes, h.login))).Methods(http.MethodPost)
	r.Handle("/forgot-password", h.limit.apply(scopeForgot, jsonBody(h.maxBytes, h.forgotPassword))).Methods(http.MethodPost)
	r.HandleFunc("/reset-password/validate", h.validateResetToken).Methods(http.MethodGet)
	r.Handle("/reset-password", jsonBody(h.maxBytes, h.resetPassword)).Methods(http.MethodPost)

	r.Handle("/account", middleware.RequireIdentityFunc(h.getAccount)).Methods(http.MethodGet)
	r.Handle("/account", middleware.RequireIdentity(jsonBody(h.maxBytes, h.updateAccount))).Methods(http.MethodPatch, http.MethodPut)
	r.Handle("/account", middleware.RequireIdentity(jsonBody(h.maxBytes, h.deleteAccount))).Methods(http.MethodDelete)
}

// signup handles POST /api/auth/signup
func (h *AuthHandlers) signup(w http.ResponseWriter, r *http.Request) {
	var req users.SignupRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.users.Signup(r.Context(), req)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, "User created successfully", user)
}

// login handles POST /api/auth/login
func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	res, err := h.users.Login(r.Context(), req.Identifier, req.Password)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, "Login successful", loginResponse{
		Token:     res.Token,
		Username:  res.Username,
		ExpiresAt: res.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// forgotPassword handles POST /api/auth/forgot-password
func (h *AuthHandlers) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.users.RequestPasswordReset(r.Context(), req.Email); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, "Password reset email sent", nil)
}

// validateResetToken handles GET /api/auth/reset-password/validate?token=
func (h *AuthHandlers) validateResetToken(w http.ResponseWriter, r *http.Request) {
	token := httputil.ParseQueryString(r, "token", "")
	if err := h.users.ValidateResetToken(r.Context(), token); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, "Token is valid", nil)
}

// resetPassword handles POST /api/auth/reset-password
func (h *AuthHandlers) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.users.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, "Password successfully reset", nil)
}

// getAccount handles GET /api/auth/account
func (h *AuthHandlers) getAccount(w http.ResponseWriter, r *http.Request) {
	info, err := h.users.Account(r.Context(), auth.FromContext(r.Context()))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, "User fetched successfully", info)
}

// updateAccount handles PATCH and PUT /api/auth/account
func (h *AuthHandlers) updateAccount(w http.ResponseWriter, r *http.Request) {
	var req users.UpdateAccountRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	res, err := h.users.UpdateAccount(r.Context(), auth.FromContext(r.Context()), req)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	message := "Account updated successfully"
	if res.EmailChanged {
		message += ". Please log in again to continue."
	}
	httputil.WriteSuccess(w, message, res.User)
}

// deleteAccount handles DELETE /api/auth/account
func (h *AuthHandlers) deleteAccount(w http.ResponseWriter, r *http.Request) {
	var req deleteAccountRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.users.DeleteAccount(r.Context(), auth.FromContext(r.Context()), req.Password); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, "Account deleted", nil)
}
