package translate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/1-api-gateway/relaygw/internal/wireformat"
	"github.com/1-api-gateway/relaygw/internal/wiremodel"
)

func TestTranslateRequest_ClaudeRoundTripPreservesToolCallPairing(t *testing.T) {
	r := NewRegistry()

	claudeBody := []byte(`{
		"model": "claude-3-5-sonnet",
		"system": "be terse",
		"messages": [
			{"role": "user", "content": "what's the weather in sf?"},
			{"role": "assistant", "content": [
				{"type": "tool_use", "id": "toolu_1", "name": "get_weather", "input": {"city": "sf"}}
			]},
			{"role": "user", "content": [
				{"type": "tool_result", "tool_use_id": "toolu_1", "content": "62F and foggy"}
			]}
		],
		"tools": [{"name": "get_weather", "description": "looks up weather", "input_schema": {"type": "object", "properties": {"city": {"type": "string"}}}}]
	}`)

	openAIBody, hub, err := r.TranslateRequest(wireformat.Claude, wireformat.OpenAI, "gpt-4o", claudeBody, false, nil)
	require.NoError(t, err)
	require.NotNil(t, hub)
	require.Len(t, hub.Messages, 4) // system, user, assistant(tool_call), tool
	require.Equal(t, "system", hub.Messages[0].Role)
	require.Equal(t, "tool", hub.Messages[3].Role)
	require.Equal(t, "toolu_1", hub.Messages[3].ToolCallId)
	require.Len(t, hub.Tools, 1)
	require.NotEmpty(t, openAIBody)

	backBody, _, err := r.TranslateRequest(wireformat.OpenAI, wireformat.Claude, "claude-3-5-sonnet", openAIBody, false, nil)
	require.NoError(t, err)
	require.Contains(t, string(backBody), "tool_use_id")
	require.Contains(t, string(backBody), "toolu_1")
}

func TestTranslateRequest_GeminiSanitizesToolSchema(t *testing.T) {
	r := NewRegistry()

	req := &wiremodel.ChatRequest{
		Messages: []wiremodel.Message{{Role: "user", Content: "hi"}},
		Tools: []wiremodel.ToolDefinition{{
			Type: "function",
			Function: wiremodel.FunctionDefinition{
				Name: "lookup",
				Parameters: map[string]any{
					"type":  "object",
					"const": "ignored-at-top-level",
					"properties": map[string]any{
						"q": map[string]any{"type": "string", "pattern": "^a"},
					},
				},
			},
		}},
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)

	out, _, err := r.TranslateRequest(wireformat.OpenAI, wireformat.Gemini, "gemini-1.5-pro", body, false, nil)
	require.NoError(t, err)
	require.NotContains(t, string(out), `"pattern"`)
}

func TestTranslateRequest_SameFormatIsNoop(t *testing.T) {
	r := NewRegistry()
	body := []byte(`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`)
	out, hub, err := r.TranslateRequest(wireformat.OpenAI, wireformat.OpenAI, "gpt-4o", body, false, nil)
	require.NoError(t, err)
	require.Nil(t, hub)
	require.Equal(t, body, out)
}

func TestTranslateRequest_DialectTargetsOnlyReachableFromHub(t *testing.T) {
	r := NewRegistry()
	body := []byte(`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`)
	out, _, err := r.TranslateRequest(wireformat.OpenAI, wireformat.Kiro, "kiro-claude", body, false, nil)
	require.NoError(t, err)
	require.Contains(t, string(out), "conversationState")
}
