package async

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/platinummonkey/thoughtnest/pkg/contextkeys"
	"github.com/platinummonkey/thoughtnest/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func newSyncBuffer() *syncBuffer {
	return &syncBuffer{}
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunner_OutlivesParentCancellation(t *testing.T) {
	runner := NewRunner(observability.NewLogger(observability.ErrorLevel, newSyncBuffer()))

	parent, cancel := context.WithCancel(contextkeys.WithRequestID(context.Background(), "req-1"))

	var gotRequestID atomic.Value
	var ctxErr atomic.Value
	release := make(chan struct{})
	runner.Go(parent, time.Second, "detached", func(ctx context.Context) error {
		<-release
		gotRequestID.Store(contextkeys.RequestID(ctx))
		ctxErr.Store(ctx.Err() == nil)
		return nil
	})

	cancel()
	close(release)
	require.NoError(t, runner.Wait(context.Background()))

	assert.Equal(t, "req-1", gotRequestID.Load())
	assert.Equal(t, true, ctxErr.Load())
}

func TestRunner_Timeout(t *testing.T) {
	runner := NewRunner(observability.NewLogger(observability.ErrorLevel, newSyncBuffer()))

	var deadlineHit atomic.Bool
	runner.Go(context.Background(), 10*time.Millisecond, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		deadlineHit.Store(errors.Is(ctx.Err(), context.DeadlineExceeded))
		return ctx.Err()
	})

	require.NoError(t, runner.Wait(context.Background()))
	assert.True(t, deadlineHit.Load())
}

func TestRunner_LogsErrorsAndPanics(t *testing.T) {
	out := newSyncBuffer()
	runner := NewRunner(observability.NewLogger(observability.InfoLevel, out))

	runner.Go(context.Background(), time.Second, "failing", func(ctx context.Context) error {
		return errors.New("smtp unavailable")
	})
	runner.Go(context.Background(), time.Second, "panicking", func(ctx context.Context) error {
		panic("nil map")
	})

	require.NoError(t, runner.Wait(context.Background()))

	logs := out.String()
	assert.True(t, strings.Contains(logs, "smtp unavailable"))
	assert.True(t, strings.Contains(logs, "PANIC recovered"))
	assert.True(t, strings.Contains(logs, `"task":"panicking"`))
}

func TestRunner_WaitHonorsContext(t *testing.T) {
	runner := NewRunner(observability.NewLogger(observability.ErrorLevel, newSyncBuffer()))

	release := make(chan struct{})
	defer close(release)
	runner.Go(context.Background(), time.Minute, "blocked", func(ctx context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, runner.Wait(ctx), context.DeadlineExceeded)
}
