package translate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/1-api-gateway/relaygw/internal/wireformat"
)

func TestStreamRegistry_OpenAIToClaudeEmitsRoleOnce(t *testing.T) {
	reg := newStreamRegistry()
	state := NewStreamState()

	chunk1 := []byte(`{"id":"1","choices":[{"delta":{"content":"hel"}}]}`)
	chunk2 := []byte(`{"id":"1","choices":[{"delta":{"content":"lo"}}]}`)

	out1, err := reg.Translate(wireformat.OpenAI, wireformat.Claude, chunk1, state, nil)
	require.NoError(t, err)
	require.Len(t, out1, 2) // message_start + content_block_delta
	require.Contains(t, string(out1[0]), "message_start")

	out2, err := reg.Translate(wireformat.OpenAI, wireformat.Claude, chunk2, state, nil)
	require.NoError(t, err)
	require.Len(t, out2, 1) // no repeated message_start
	require.Contains(t, string(out2[0]), "content_block_delta")
}

func TestStreamRegistry_ClaudeToolUseSequenceBecomesOpenAIToolCalls(t *testing.T) {
	reg := newStreamRegistry()
	state := NewStreamState()

	start := []byte(`{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"toolu_1","name":"get_weather"}}`)
	delta := []byte(`{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"city\":\"sf\"}"}}`)

	out1, err := reg.Translate(wireformat.Claude, wireformat.OpenAI, start, state, nil)
	require.NoError(t, err)
	require.Len(t, out1, 1)
	var chunk1 map[string]any
	require.NoError(t, json.Unmarshal(out1[0], &chunk1))

	out2, err := reg.Translate(wireformat.Claude, wireformat.OpenAI, delta, state, nil)
	require.NoError(t, err)
	require.Len(t, out2, 1)
	require.Contains(t, string(out2[0]), `"arguments":"{\"city\":\"sf\"}"`)
}

func TestStreamRegistry_SameFormatPassesThrough(t *testing.T) {
	reg := newStreamRegistry()
	state := NewStreamState()
	raw := []byte(`{"id":"1"}`)
	out, err := reg.Translate(wireformat.Gemini, wireformat.Gemini, raw, state, nil)
	require.NoError(t, err)
	require.Equal(t, [][]byte{raw}, out)
}

func TestStreamRegistry_GeminiTerminatorCarriesAccumulatedUsage(t *testing.T) {
	reg := newStreamRegistry()
	state := NewStreamState()
	state.Usage.PromptTokens = 10
	state.Usage.CompletionTokens = 5

	out := reg.Terminator(wireformat.Gemini, state)
	require.Len(t, out, 1)
	require.Contains(t, string(out[0]), `"promptTokenCount":10`)
	require.Contains(t, string(out[0]), `"candidatesTokenCount":5`)
}

func TestStreamRegistry_OpenAITerminatorIsDoneMarker(t *testing.T) {
	reg := newStreamRegistry()
	out := reg.Terminator(wireformat.OpenAI, NewStreamState())
	require.Equal(t, [][]byte{[]byte("[DONE]")}, out)
}
