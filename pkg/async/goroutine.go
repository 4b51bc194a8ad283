package async

import (
	"context"
	"sync"
	"time"

	"github.com/platinummonkey/thoughtnest/pkg/observability"
)

// Runner starts background tasks detached from the caller's cancellation,
// with panic recovery, a timeout and error logging. Wait lets shutdown
// drain tasks still in flight.
type Runner struct {
	logger *observability.Logger
	wg     sync.WaitGroup
}

// NewRunner creates a Runner that logs task failures to logger.
func NewRunner(logger *observability.Logger) *Runner {
	return &Runner{logger: logger}
}

// Go runs fn in a goroutine. The task context keeps the values of parent
// (request id, trace) but not its deadline, so a handler may return while
// the task continues for up to timeout.
//
//	runner.Go(r.Context(), 10*time.Second, "contact notification", func(ctx context.Context) error {
//	    return mailer.Send(ctx, msg)
//	})
func (r *Runner) Go(parent context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), timeout)
		defer cancel()

		logger := observability.UpdateLoggerWithTraceContext(ctx, r.logger).WithField("task", taskName)
		defer observability.RecoverPanic(logger, taskName)

		if err := fn(ctx); err != nil {
			logger.WithError(err).Error("Background task failed")
		}
	}()
}

// Wait blocks until every started task returns or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
