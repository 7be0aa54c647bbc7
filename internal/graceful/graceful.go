// Package graceful is the lifecycle manager for clean shutdown: it flips
// a draining flag for the admin/health surface, tracks post-response
// critical tasks (usage persistence, log appends) in a WaitGroup, and
// waits for the in-flight request counter (internal/usage.Recorder) to
// reach zero before the process exits, per SPEC_FULL.md's supplemented
// "Graceful shutdown" feature.
//
// Adapted from the teacher's common/graceful package: the draining flag,
// GoCritical/Drain pair, and ticker-polled wait loop all keep the
// teacher's shape. Dropped: the teacher's own package-level in-flight
// counter and its GinRequestTracker stub — this gateway already counts
// in-flight requests in internal/usage.Recorder (spec.md §3's "in-flight
// request counter"), so graceful.Init wires a reference to that recorder
// instead of keeping a second, competing counter.
package graceful

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	glog "github.com/Laisky/go-utils/v5/log"
	"github.com/Laisky/zap"
)

// inFlightCounter is the minimal view internal/usage.Recorder exposes of
// its in-flight count — kept as an interface so this package does not
// import internal/usage (avoiding a dependency edge the drain loop does
// not otherwise need).
type inFlightCounter interface {
	TotalInFlight() int
}

var (
	recorder inFlightCounter
	draining atomic.Bool
	log      glog.Logger

	wg sync.WaitGroup
)

// Init wires the in-flight counter and logger this package drains
// against. Call once at startup, before serving traffic.
func Init(rec inFlightCounter, l glog.Logger) {
	recorder = rec
	log = l
}

// GoCritical runs fn in a tracked goroutine and decrements the tracked
// count when done. Use for post-response critical tasks (billing writes,
// log appends) that should finish even after the HTTP response has
// already been written, but must still complete before the process exits.
func GoCritical(ctx context.Context, name string, fn func(context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		start := time.Now()
		log.Debug("critical task start", zap.String("name", name))
		fn(ctx)
		log.Debug("critical task done", zap.String("name", name), zap.Duration("elapsed", time.Since(start)))
	}()
}

// Drain waits for every tracked critical task to finish and for the
// in-flight request counter to reach zero, bounded by ctx's deadline.
// Call after http.Server.Shutdown has stopped accepting new connections.
func Drain(ctx context.Context) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for {
		select {
		case <-ctx.Done():
			log.Error("graceful drain timeout", zap.Int("in_flight_requests", inFlight()))
			return ctx.Err()
		case <-done:
			return waitForInFlight(ctx, ticker)
		case <-ticker.C:
			log.Debug("draining...", zap.Int("in_flight_requests", inFlight()))
		}
	}
}

func waitForInFlight(ctx context.Context, ticker *time.Ticker) error {
	if inFlight() == 0 {
		log.Info("graceful drain complete: no in-flight requests")
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			log.Error("graceful drain timeout (requests not zero)", zap.Int("in_flight_requests", inFlight()))
			return ctx.Err()
		case <-ticker.C:
			if inFlight() == 0 {
				log.Info("graceful drain complete")
				return nil
			}
		}
	}
}

func inFlight() int {
	if recorder == nil {
		return 0
	}
	return recorder.TotalInFlight()
}

// SetDraining flips the draining flag to true, for the health endpoint to
// start failing readiness checks ahead of the actual shutdown.
func SetDraining() { draining.Store(true) }

// IsDraining reports whether the server is currently draining.
func IsDraining() bool { return draining.Load() }
