package background_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BradenHooton/bastion/internal/background"
	"github.com/BradenHooton/bastion/internal/services"
	"github.com/stretchr/testify/assert"
)

type countingSweeper struct {
	calls atomic.Int32
}

func (s *countingSweeper) Cleanup() services.CleanupResult {
	s.calls.Add(1)
	return services.CleanupResult{ExpiredCSRFTokens: 1}
}

type stubPurger struct {
	calls atomic.Int32
	days  atomic.Int32
	err   error
}

func (p *stubPurger) Purge(ctx context.Context, retentionDays int) (int64, error) {
	p.calls.Add(1)
	p.days.Store(int32(retentionDays))
	return 3, p.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCleanupManager_RunOnce(t *testing.T) {
	sweeper := &countingSweeper{}
	purger := &stubPurger{}
	cm := background.NewCleanupManager(sweeper, purger, 90, discardLogger(), time.Minute)

	cm.RunOnce(context.Background())

	assert.Equal(t, int32(1), sweeper.calls.Load())
	assert.Equal(t, int32(1), purger.calls.Load())
	assert.Equal(t, int32(90), purger.days.Load())
}

func TestCleanupManager_PurgeErrorDoesNotPanic(t *testing.T) {
	sweeper := &countingSweeper{}
	purger := &stubPurger{err: errors.New("db down")}
	cm := background.NewCleanupManager(sweeper, purger, 90, discardLogger(), time.Minute)

	assert.NotPanics(t, func() { cm.RunOnce(context.Background()) })
}

func TestCleanupManager_WithoutArchive(t *testing.T) {
	sweeper := &countingSweeper{}
	cm := background.NewCleanupManager(sweeper, nil, 0, discardLogger(), time.Minute)

	cm.RunOnce(context.Background())
	assert.Equal(t, int32(1), sweeper.calls.Load())
}

func TestCleanupManager_StartRunsImmediatelyAndStops(t *testing.T) {
	sweeper := &countingSweeper{}
	cm := background.NewCleanupManager(sweeper, nil, 0, discardLogger(), 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		cm.Start(context.Background())
		close(done)
	}()

	assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	cm.Stop()
	cm.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup manager did not stop")
	}
}

func TestCleanupManager_StopsOnContextCancel(t *testing.T) {
	sweeper := &countingSweeper{}
	cm := background.NewCleanupManager(sweeper, nil, 0, discardLogger(), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cm.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return sweeper.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup manager ignored context cancellation")
	}
}
