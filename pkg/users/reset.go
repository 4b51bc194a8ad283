package users

import (
	"context"
	"errors"

	"github.com/platinummonkey/thoughtnest/pkg/apperr"
	"github.com/platinummonkey/thoughtnest/pkg/auth"
	"github.com/platinummonkey/thoughtnest/pkg/mail"
	"github.com/platinummonkey/thoughtnest/pkg/models"
	"github.com/platinummonkey/thoughtnest/pkg/observability"
	"github.com/platinummonkey/thoughtnest/pkg/validation"
	"go.opentelemetry.io/otel/attribute"
)

// RequestPasswordReset issues a reset token for the account with email and
// mails the link. Any earlier token for the account is replaced. When the
// mail cannot be sent the stored token stays valid.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	ctx, span := observability.Tracer().Start(ctx, "users.RequestPasswordReset")
	defer span.End()

	email = models.NormalizeEmail(email)
	v := validation.New()
	v.Required("email", email, "Email is required")
	v.Email("email", email, "Email should be valid")
	if err := v.Err(""); err != nil {
		return err
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, apperr.ErrNotFound) {
		s.recordResetRequest("unknown_email")
		return apperr.NotFound(msgUserNotFound)
	}
	if err != nil {
		return apperr.Internal("Failed to process password reset", err)
	}
	span.SetAttributes(attribute.Int64("user.id", user.ID))

	token, hash, err := auth.GenerateResetToken()
	if err != nil {
		return apperr.Internal("Failed to process password reset", err)
	}
	link, err := mail.ResetLink(s.resetURL, token)
	if err != nil {
		return apperr.Internal("Failed to process password reset", err)
	}

	record := &models.ResetToken{
		UserID:    user.ID,
		TokenHash: hash,
		ExpiresAt: s.now().Add(s.resetTTL),
	}
	if err := s.store.UpsertResetToken(ctx, record); err != nil {
		return apperr.Internal("Failed to process password reset", err)
	}

	if err := s.mailer.Send(ctx, mail.PasswordResetMessage(user.Email, link, s.resetTTL)); err != nil {
		span.RecordError(err)
		s.recordResetRequest("mail_failed")
		s.logger.WithError(err).WithField("user_id", user.ID).Error("Failed to send password reset email")
		return apperr.Upstream("Failed to send password reset email", err)
	}

	s.recordResetRequest("sent")
	s.logger.WithField("user_id", user.ID).Info("Password reset email sent")
	return nil
}

// ValidateResetToken reports whether token can still be redeemed. It does not
// consume the token.
func (s *Service) ValidateResetToken(ctx context.Context, token string) error {
	if !auth.ValidResetTokenFormat(token) {
		return apperr.InvalidOrExpiredToken()
	}
	record, err := s.store.GetResetTokenByHash(ctx, auth.HashResetToken(token))
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.InvalidOrExpiredToken()
	}
	if err != nil {
		return apperr.Internal("Failed to validate token", err)
	}
	if record.Expired(s.now()) {
		return apperr.InvalidOrExpiredToken()
	}
	return nil
}

// ResetPassword redeems token and sets newPassword. The password change and
// the token deletion commit together; a token can be redeemed once.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	ctx, span := observability.Tracer().Start(ctx, "users.ResetPassword")
	defer span.End()

	v := validation.New()
	v.Required("token", token, "Token is required")
	checkPassword(v, "newPassword", newPassword)
	if err := v.Err(""); err != nil {
		return err
	}

	if !auth.ValidResetTokenFormat(token) {
		s.recordRedeem("invalid")
		return apperr.InvalidOrExpiredToken()
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return apperr.Internal("Failed to reset password", err)
	}

	userID, err := s.store.RedeemResetToken(ctx, auth.HashResetToken(token), s.now(), hash)
	if apperr.Is(err, apperr.KindInvalidOrExpiredToken) {
		s.recordRedeem("invalid")
		return err
	}
	if err != nil {
		return apperr.Internal("Failed to reset password", err)
	}

	s.recordRedeem("success")
	s.logger.WithField("user_id", userID).Info("Password reset")
	return nil
}

func (s *Service) recordResetRequest(outcome string) {
	if s.metrics != nil {
		s.metrics.ResetRequestsTotal.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) recordRedeem(outcome string) {
	if s.metrics != nil {
		s.metrics.ResetRedeemsTotal.WithLabelValues(outcome).Inc()
	}
}
