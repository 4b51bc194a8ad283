package mail

import (
	"context"
	"errors"

	"github.com/platinummonkey/thoughtnest/pkg/config"
	"github.com/platinummonkey/thoughtnest/pkg/observability"
)

// ErrNoRecipients is returned for messages without a To address.
var ErrNoRecipients = errors.New("mail: message has no recipients")

// Message is an outbound email. HTML is optional; Text is always sent.
type Message struct {
	// Kind labels the message in logs and metrics, e.g. "password_reset".
	Kind    string
	To      []string
	ReplyTo string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// New returns an SMTP mailer wrapped in the configured retry policy, or a
// LogMailer when no SMTP host is set.
func New(cfg config.MailConfig, logger *observability.Logger, metrics *observability.Metrics) Mailer {
	var base Mailer
	if cfg.Host == "" {
		logger.Warn("SMTP host not configured, outbound mail will only be logged")
		base = NewLogMailer(logger)
	} else {
		base = NewSMTPMailer(cfg)
	}

	return NewRetryingMailer(base, NewRetryPolicy(RetryConfig{
		MaxAttempts:  cfg.MaxAttempts,
		InitialDelay: cfg.InitialBackoff,
		MaxElapsed:   cfg.SendBudget,
	}), logger, metrics)
}
