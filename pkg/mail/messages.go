package mail

import (
	"fmt"
	"html"
	"math"
	"net/url"
	"time"

	"github.com/platinummonkey/thoughtnest/pkg/models"
)

const (
	KindPasswordReset = "password_reset"
	KindContact       = "contact"
)

// ResetLink appends token to the frontend reset page URL.
func ResetLink(resetURL, token string) (string, error) {
	u, err := url.Parse(resetURL)
	if err != nil {
		return "", fmt.Errorf("invalid reset URL: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// PasswordResetMessage builds the reset email carrying link.
func PasswordResetMessage(to, link string, ttl time.Duration) Message {
	minutes := int(math.Round(ttl.Minutes()))
	escaped := html.EscapeString(link)

	return Message{
		Kind:    KindPasswordReset,
		To:      []string{to},
		Subject: "Password Reset Request - ThoughtNest",
		Text: fmt.Sprintf("Hello,\n\n"+
			"You requested a password reset. Open the link below to reset your password:\n\n%s\n\n"+
			"This link will expire in %d minutes.\n"+
			"If you did not request this, please ignore this email.\n", link, minutes),
		HTML: fmt.Sprintf("<p>Hello,</p>"+
			"<p>You requested a password reset. Click the link below to reset your password:</p>"+
			"<p><a href=\"%s\">Reset Password</a></p>"+
			"<p>This link will expire in %d minutes.</p>"+
			"<p>If you did not request this, please ignore this email.</p>", escaped, minutes),
	}
}

// ContactNotification builds the admin notice for a contact submission.
// Replies go to the submitter.
func ContactNotification(admin string, msg *models.ContactMessage) Message {
	return Message{
		Kind:    KindContact,
		To:      []string{admin},
		ReplyTo: msg.Email,
		Subject: "New Contact Message from " + msg.Name,
		Text:    fmt.Sprintf("Name: %s\nEmail: %s\n\nMessage:\n%s", msg.Name, msg.Email, msg.Message),
	}
}
