// Package pricing holds the per-(provider, model) pricing table described
// in spec.md §3's "Pricing entry": USD-per-million-token rates for input,
// output, and optional cached/reasoning/cache-creation tokens.
//
// Grounded on the teacher's relay/billing/ratio package (a flat
// provider/model -> ratio lookup table with a best-effort fallback), here
// adapted from per-request "ratio" multipliers into absolute USD rates
// since spec.md's pricing entry is expressed directly in dollars rather
// than as a multiplier of a base price.
package pricing

import "sync"

// Entry is one (provider, model) pricing row, all rates in USD per
// million tokens. Zero value rates mean "free" or "unset": Lookup never
// fabricates a rate for a field the entry leaves at zero.
type Entry struct {
	Input         float64 `json:"input"`
	Output        float64 `json:"output"`
	Cached        float64 `json:"cached,omitempty"`
	Reasoning     float64 `json:"reasoning,omitempty"`
	CacheCreation float64 `json:"cache_creation,omitempty"`
}

// Tokens is the per-usage-entry token breakdown Cost consults.
type Tokens struct {
	Prompt        int
	Completion    int
	Cached        int
	Reasoning     int
	CacheCreation int
}

// Cost computes the USD cost of a token breakdown against a pricing
// entry. Cached/reasoning/cache-creation tokens are billed in addition
// to, not instead of, the corresponding prompt/completion counts: callers
// are expected to pass provider-reported totals as-is, matching how each
// wire format already reports them (e.g. OpenAI's cached_tokens is a
// subset annotation, not an additional count — providers differ, and this
// package does not attempt to reconcile that; it only multiplies and
// sums whatever the caller supplies).
func (e Entry) Cost(t Tokens) float64 {
	const million = 1_000_000.0
	cost := float64(t.Prompt)*e.Input/million + float64(t.Completion)*e.Output/million
	if t.Cached > 0 {
		cost += float64(t.Cached) * e.Cached / million
	}
	if t.Reasoning > 0 {
		cost += float64(t.Reasoning) * e.Reasoning / million
	}
	if t.CacheCreation > 0 {
		cost += float64(t.CacheCreation) * e.CacheCreation / million
	}
	return cost
}

// Table is a thread-safe provider/model -> Entry lookup. Missing entries
// are not an error: Lookup returns the zero Entry, which prices every
// token at 0 — spec.md's usage recorder must keep working for providers
// the operator hasn't priced yet.
type Table struct {
	mu      sync.RWMutex
	entries map[string]map[string]Entry
}

// NewTable returns an empty pricing table.
func NewTable() *Table {
	return &Table{entries: make(map[string]map[string]Entry)}
}

// Set stores (or replaces) the pricing entry for provider/model.
func (t *Table) Set(providerId, model string, e Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	byModel, ok := t.entries[providerId]
	if !ok {
		byModel = make(map[string]Entry)
		t.entries[providerId] = byModel
	}
	byModel[model] = e
}

// Lookup returns the pricing entry for providerId/model, and whether one
// was configured. Callers that only need a cost figure can ignore the
// bool and let the zero-value Entry price everything at 0.
func (t *Table) Lookup(providerId, model string) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	byModel, ok := t.entries[providerId]
	if !ok {
		return Entry{}, false
	}
	e, ok := byModel[model]
	return e, ok
}

// All returns a snapshot of every configured entry, keyed by providerId
// then model, for the config surface to serialize.
func (t *Table) All() map[string]map[string]Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]map[string]Entry, len(t.entries))
	for provider, byModel := range t.entries {
		cp := make(map[string]Entry, len(byModel))
		for model, e := range byModel {
			cp[model] = e
		}
		out[provider] = cp
	}
	return out
}

// Cost is a convenience that looks up the entry and computes the cost in
// one call, returning 0 when no pricing entry exists — spec.md's
// best-effort lookup semantics.
func (t *Table) Cost(providerId, model string, tokens Tokens) float64 {
	e, _ := t.Lookup(providerId, model)
	return e.Cost(tokens)
}
