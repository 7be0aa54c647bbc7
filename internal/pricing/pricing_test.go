package pricing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEntry_CostSumsPricedFields(t *testing.T) {
	e := Entry{Input: 3, Output: 15, Cached: 0.3, Reasoning: 15, CacheCreation: 3.75}
	cost := e.Cost(Tokens{Prompt: 1_000_000, Completion: 1_000_000, Cached: 1_000_000, Reasoning: 1_000_000, CacheCreation: 1_000_000})
	require.InDelta(t, 3+15+0.3+15+3.75, cost, 1e-9)
}

func TestEntry_CostIgnoresZeroFields(t *testing.T) {
	e := Entry{Input: 1, Output: 2}
	cost := e.Cost(Tokens{Prompt: 1_000_000, Completion: 1_000_000})
	require.InDelta(t, 3, cost, 1e-9)
}

func TestTable_LookupMissingReturnsZeroEntry(t *testing.T) {
	tbl := NewTable()
	e, ok := tbl.Lookup("openai", "gpt-5")
	require.False(t, ok)
	require.Equal(t, Entry{}, e)
}

func TestTable_CostIsBestEffortZeroWhenUnpriced(t *testing.T) {
	tbl := NewTable()
	require.Equal(t, 0.0, tbl.Cost("openai", "gpt-5", Tokens{Prompt: 1000, Completion: 1000}))
}

func TestTable_SetAndLookupRoundTrips(t *testing.T) {
	tbl := NewTable()
	tbl.Set("openai", "gpt-5", Entry{Input: 3, Output: 15})
	e, ok := tbl.Lookup("openai", "gpt-5")
	require.True(t, ok)
	require.Equal(t, 3.0, e.Input)
	require.Equal(t, 15.0, e.Output)
}

func TestTable_AllReturnsIndependentSnapshot(t *testing.T) {
	tbl := NewTable()
	tbl.Set("openai", "gpt-5", Entry{Input: 3})
	snap := tbl.All()
	snap["openai"]["gpt-5"] = Entry{Input: 999}

	e, _ := tbl.Lookup("openai", "gpt-5")
	require.Equal(t, 3.0, e.Input)
}
