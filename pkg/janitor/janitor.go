package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/thoughtnest/pkg/observability"
	"github.com/robfig/cron/v3"
)

// DefaultSchedule purges every 15 minutes.
const DefaultSchedule = "*/15 * * * *"

// TokenPurger deletes reset tokens that expired at or before now.
type TokenPurger interface {
	DeleteExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}

// Options configures a Janitor.
type Options struct {
	Schedule string
	// Timeout bounds a single purge run.
	Timeout time.Duration
	Metrics *observability.Metrics
	Logger  *observability.Logger
	Clock   func() time.Time
}

// Janitor periodically removes expired password reset tokens. Expired tokens
// are already unusable; purging keeps the table small.
type Janitor struct {
	store    TokenPurger
	schedule string
	timeout  time.Duration
	metrics  *observability.Metrics
	logger   *observability.Logger
	now      func() time.Time
	cron     *cron.Cron
}

// New creates a Janitor. The schedule is validated by Start.
func New(store TokenPurger, opts Options) *Janitor {
	schedule := opts.Schedule
	if schedule == "" {
		schedule = DefaultSchedule
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Janitor{
		store:    store,
		schedule: schedule,
		timeout:  timeout,
		metrics:  opts.Metrics,
		logger:   logger.WithField("component", "janitor"),
		now:      clock,
	}
}

// RunOnce purges expired tokens and returns how many were removed.
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	n, err := j.store.DeleteExpiredResetTokens(ctx, j.now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired reset tokens: %w", err)
	}
	if j.metrics != nil {
		j.metrics.ExpiredTokensPurged.Add(float64(n))
	}
	j.logger.WithField("purged", n).Info("Purged expired reset tokens")
	return n, nil
}

// Start schedules RunOnce on the configured cron schedule.
func (j *Janitor) Start() error {
	if j.cron != nil {
		return fmt.Errorf("janitor already started")
	}

	c := cron.New(cron.WithChain(cron.Recover(cronLogger{j.logger})))
	_, err := c.AddFunc(j.schedule, func() {
		if _, err := j.RunOnce(context.Background()); err != nil {
			j.logger.WithError(err).Error("Janitor run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid janitor schedule %q: %w", j.schedule, err)
	}

	j.cron = c
	c.Start()
	j.logger.WithField("schedule", j.schedule).Info("Janitor started")
	return nil
}

// Stop stops scheduling and waits for a running purge or ctx.
func (j *Janitor) Stop(ctx context.Context) error {
	if j.cron == nil {
		return nil
	}
	done := j.cron.Stop()
	select {
	case <-done.Done():
		j.logger.Info("Janitor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts the structured logger to cron.Logger.
type cronLogger struct {
	logger *observability.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithError(err).WithFields(fields(keysAndValues)).Error(msg)
}

func fields(kv []interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return out
}
