package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"regexp"
	"strconv"
	"time"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/thoughtnest/pkg/config"
	"github.com/platinummonkey/thoughtnest/pkg/observability"
)

type sendFunc func(e *email.Email, addr string, auth smtp.Auth) error

// SMTPMailer sends mail through an SMTP relay with PLAIN auth.
type SMTPMailer struct {
	addr    string
	auth    smtp.Auth
	from    string
	timeout time.Duration
	send    sendFunc
}

// NewSMTPMailer creates an SMTPMailer from cfg. Auth is skipped when no
// username is configured.
func NewSMTPMailer(cfg config.MailConfig) *SMTPMailer {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &SMTPMailer{
		addr:    cfg.Host + ":" + strconv.Itoa(cfg.Port),
		auth:    auth,
		from:    cfg.From,
		timeout: timeout,
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}
}

// Send delivers msg, giving up when ctx ends or the configured timeout
// passes. The SMTP exchange itself is not interruptible, so an abandoned send
// finishes in the background.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}

	ctx, span := observability.Tracer().Start(ctx, "SMTP.Send",
		trace.WithAttributes(
			attribute.String("mail.kind", msg.Kind),
			attribute.Int("mail.recipients", len(msg.To)),
		),
	)
	defer span.End()

	e := email.NewEmail()
	e.From = m.from
	e.To = msg.To
	e.Subject = msg.Subject
	e.Text = []byte(msg.Text)
	if msg.HTML != "" {
		e.HTML = []byte(msg.HTML)
	}
	if msg.ReplyTo != "" {
		e.ReplyTo = []string{msg.ReplyTo}
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- m.send(e, m.addr, m.auth)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "smtp send failed")
		return fmt.Errorf("failed to send email: %w", err)
	}
	span.SetStatus(codes.Ok, "sent")
	return nil
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct {
	logger *observability.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger *observability.Logger) *LogMailer {
	return &LogMailer{logger: logger.WithField("component", "mail")}
}

var tokenParam = regexp.MustCompile(`([?&]token=)[^&\s"<>]+`)

// redactTokens blanks the value of every token= query parameter in s.
func redactTokens(s string) string {
	return tokenParam.ReplaceAllString(s, "${1}REDACTED")
}

// Send logs msg at info level with reset tokens redacted. The unredacted
// body is only logged at debug level.
func (m *LogMailer) Send(_ context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	logger := m.logger.WithFields(map[string]interface{}{
		"kind":    msg.Kind,
		"to":      msg.To,
		"subject": msg.Subject,
	})
	logger.WithField("body", redactTokens(msg.Text)).Info("outbound mail (not sent)")
	logger.WithField("body", msg.Text).Debug("outbound mail body")
	return nil
}
