package graceful

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/1-api-gateway/relaygw/internal/logger"
)

type fakeCounter struct{ n int64 }

func (f *fakeCounter) TotalInFlight() int { return int(atomic.LoadInt64(&f.n)) }

func TestDrain_CompletesOnceCriticalTasksAndInFlightReachZero(t *testing.T) {
	counter := &fakeCounter{}
	Init(counter, logger.Logger)

	atomic.StoreInt64(&counter.n, 1)
	go func() {
		time.Sleep(50 * time.Millisecond)
		atomic.StoreInt64(&counter.n, 0)
	}()

	done := make(chan struct{})
	GoCritical(context.Background(), "test-task", func(context.Context) {
		time.Sleep(10 * time.Millisecond)
		close(done)
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, Drain(ctx))

	select {
	case <-done:
	default:
		t.Fatal("critical task did not run before Drain returned")
	}
}

func TestDrain_TimesOutWhenInFlightNeverClears(t *testing.T) {
	counter := &fakeCounter{}
	Init(counter, logger.Logger)
	atomic.StoreInt64(&counter.n, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.Error(t, Drain(ctx))
}

func TestDraining_FlagTogglesIndependently(t *testing.T) {
	require.False(t, IsDraining())
	SetDraining()
	require.True(t, IsDraining())
}
