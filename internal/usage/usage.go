// Package usage implements the Usage Recorder (spec.md §4's component 8):
// token aggregation, cost computation via internal/pricing, an
// append-only usage history, and an in-memory in-flight request counter.
//
// Grounded on relay/billing/billing.go's PostConsumeQuotaWithLog: the
// heavy input-validation-with-logged-early-return idiom, and recording a
// billing-side failure to metrics without aborting the caller's request.
// Persistence here is plain JSON (`usage.json`, spec.md §6) rather than
// the teacher's SQL aggregates, since this gateway has no database; cost
// computation is delegated to internal/pricing instead of the teacher's
// ratio-multiplier system.
package usage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Laisky/errors/v2"
	glog "github.com/Laisky/go-utils/v5/log"
	"github.com/Laisky/zap"

	"github.com/1-api-gateway/relaygw/internal/metrics"
	"github.com/1-api-gateway/relaygw/internal/pricing"
)

// Entry is spec.md §3's "Usage entry": immutable once appended.
type Entry struct {
	Timestamp    time.Time      `json:"timestamp"`
	Provider     string         `json:"provider"`
	Model        string         `json:"model"`
	Tokens       pricing.Tokens `json:"tokens"`
	ConnectionId string         `json:"connectionId"`
	CostUSD      float64        `json:"costUsd"`
}

// history is the on-disk shape of usage.json: `{history: [...]}`.
type history struct {
	History []Entry `json:"history"`
}

// Recorder aggregates usage entries in memory, persists them to a JSON
// history file, computes cost via a pricing table, and tracks in-flight
// requests. One Recorder is created per process.
type Recorder struct {
	mu         sync.Mutex
	entries    []Entry
	path       string
	maxHistory int
	pricing    *pricing.Table
	metrics    *metrics.Recorder
	log        glog.Logger
	inFlight   map[string]int
	inFlightMu sync.Mutex
}

// NewRecorder constructs a Recorder backed by path (usually
// $HOME/.relaygw/usage.json). maxHistory bounds the in-memory/persisted
// entry count to the most recent N (0 means unbounded), per spec.md §3's
// "Bounded history optional".
func NewRecorder(path string, maxHistory int, table *pricing.Table, rec *metrics.Recorder, log glog.Logger) *Recorder {
	return &Recorder{
		path:       path,
		maxHistory: maxHistory,
		pricing:    table,
		metrics:    rec,
		log:        log,
		inFlight:   make(map[string]int),
	}
}

// Load reads the existing history file into memory, if present. Called
// once at startup; a missing file is not an error.
func (r *Recorder) Load() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "read usage history")
	}
	var h history
	if err := json.Unmarshal(data, &h); err != nil {
		return errors.Wrap(err, "parse usage history")
	}
	r.mu.Lock()
	r.entries = h.History
	r.mu.Unlock()
	return nil
}

// Record appends a usage entry, computes its cost via the pricing table,
// updates Prometheus counters, and persists the new history — mirroring
// PostConsumeQuotaWithLog's pattern of recording a metrics-side failure
// without returning an error to the caller: a usage-persist failure must
// never fail the HTTP response that already succeeded upstream.
func (r *Recorder) Record(ctx context.Context, provider, model, connectionId string, tokens pricing.Tokens, now time.Time) {
	if provider == "" || model == "" {
		r.log.Error("usage.Record: invalid args", zap.String("provider", provider), zap.String("model", model))
		r.metrics.RecordBillingError("validation_error")
		return
	}

	cost := r.pricing.Cost(provider, model, tokens)
	entry := Entry{
		Timestamp:    now,
		Provider:     provider,
		Model:        model,
		Tokens:       tokens,
		ConnectionId: connectionId,
		CostUSD:      cost,
	}

	r.mu.Lock()
	r.entries = append(r.entries, entry)
	if r.maxHistory > 0 && len(r.entries) > r.maxHistory {
		r.entries = r.entries[len(r.entries)-r.maxHistory:]
	}
	snapshot := append([]Entry(nil), r.entries...)
	r.mu.Unlock()

	r.metrics.RecordTokens(provider, model, tokens.Prompt, tokens.Completion, tokens.Cached, tokens.Reasoning, tokens.CacheCreation)
	r.metrics.RecordCost(provider, model, cost)

	if err := r.persist(snapshot); err != nil {
		r.log.Error("failed to persist usage history - request already completed successfully",
			zap.Error(err), zap.String("provider", provider), zap.String("model", model))
		r.metrics.RecordBillingError("persist_error")
	}
}

func (r *Recorder) persist(entries []Entry) error {
	if r.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(history{History: entries}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal usage history")
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return errors.Wrap(err, "create usage history dir")
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "write usage history tmp file")
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return errors.Wrap(err, "rename usage history tmp file")
	}
	return nil
}

// History returns a snapshot of every recorded entry, most recent last.
func (r *Recorder) History() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// BeginRequest marks model as having one more in-flight request, per
// spec.md §3's "In-flight request counter", and returns the done func the
// caller must invoke exactly once when the request finishes (success or
// failure alike).
func (r *Recorder) BeginRequest(model string) (done func()) {
	r.inFlightMu.Lock()
	r.inFlight[model]++
	r.inFlightMu.Unlock()
	r.metrics.IncInFlight(model)

	var once sync.Once
	return func() {
		once.Do(func() {
			r.inFlightMu.Lock()
			r.inFlight[model]--
			if r.inFlight[model] <= 0 {
				delete(r.inFlight, model)
			}
			r.inFlightMu.Unlock()
			r.metrics.DecInFlight(model)
		})
	}
}

// InFlight returns the current count of in-flight requests for model.
func (r *Recorder) InFlight(model string) int {
	r.inFlightMu.Lock()
	defer r.inFlightMu.Unlock()
	return r.inFlight[model]
}

// TotalInFlight sums the in-flight count across every model, for
// internal/graceful's shutdown drain.
func (r *Recorder) TotalInFlight() int {
	r.inFlightMu.Lock()
	defer r.inFlightMu.Unlock()
	total := 0
	for _, n := range r.inFlight {
		total += n
	}
	return total
}
