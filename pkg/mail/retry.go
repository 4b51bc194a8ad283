package mail

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/platinummonkey/thoughtnest/pkg/observability"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	// MaxElapsed bounds a whole Send, attempts and delays included. Zero
	// leaves it to the caller's context.
	MaxElapsed time.Duration
}

// RetryPolicy implements exponential backoff
type RetryPolicy struct {
	config RetryConfig
}

// NewRetryPolicy creates a retry policy, filling unset fields with 3
// attempts, 500ms initial delay, 10s cap and a multiplier of 2.
func NewRetryPolicy(config RetryConfig) *RetryPolicy {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 500 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 10 * time.Second
	}
	if config.BackoffMultiplier <= 1.0 {
		config.BackoffMultiplier = 2.0
	}
	return &RetryPolicy{config: config}
}

// ShouldRetry reports whether another attempt follows a failed one.
func (p *RetryPolicy) ShouldRetry(attempts int, err error) bool {
	if err == nil || errors.Is(err, ErrNoRecipients) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return attempts < p.config.MaxAttempts
}

// NextRetryDelay returns the delay after the given number of attempts.
func (p *RetryPolicy) NextRetryDelay(attempts int) time.Duration {
	if attempts <= 0 {
		return p.config.InitialDelay
	}

	delay := float64(p.config.InitialDelay) * math.Pow(p.config.BackoffMultiplier, float64(attempts-1))
	if delay > float64(p.config.MaxDelay) {
		return p.config.MaxDelay
	}
	return time.Duration(delay)
}

// RetryingMailer retries a Mailer under a RetryPolicy.
type RetryingMailer struct {
	next    Mailer
	policy  *RetryPolicy
	logger  *observability.Logger
	metrics *observability.Metrics
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewRetryingMailer wraps next. metrics may be nil.
func NewRetryingMailer(next Mailer, policy *RetryPolicy, logger *observability.Logger, metrics *observability.Metrics) *RetryingMailer {
	return &RetryingMailer{
		next:    next,
		policy:  policy,
		logger:  logger.WithField("component", "mail"),
		metrics: metrics,
		sleep:   sleepContext,
	}
}

// Send attempts delivery until it succeeds, the policy gives up, the
// MaxElapsed budget runs out or ctx ends. The last error is returned.
func (m *RetryingMailer) Send(ctx context.Context, msg Message) error {
	if budget := m.policy.config.MaxElapsed; budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	var err error
	for attempt := 1; ; attempt++ {
		err = m.next.Send(ctx, msg)
		if err == nil {
			m.record(msg.Kind, "sent")
			return nil
		}
		if !m.policy.ShouldRetry(attempt, err) || ctx.Err() != nil {
			break
		}

		delay := m.policy.NextRetryDelay(attempt)
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= delay {
			m.logger.WithError(err).WithField("kind", msg.Kind).Warn("mail send failed, no time left to retry")
			break
		}
		m.logger.WithError(err).WithFields(map[string]interface{}{
			"kind":    msg.Kind,
			"attempt": attempt,
			"delay":   delay.String(),
		}).Warn("mail send failed, retrying")

		if sleepErr := m.sleep(ctx, delay); sleepErr != nil {
			break
		}
	}

	m.record(msg.Kind, "failed")
	return err
}

func (m *RetryingMailer) record(kind, outcome string) {
	if m.metrics != nil {
		m.metrics.MailSendTotal.WithLabelValues(kind, outcome).Inc()
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
