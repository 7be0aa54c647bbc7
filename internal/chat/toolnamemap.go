package chat

import (
	"encoding/json"

	"github.com/Laisky/errors/v2"

	"github.com/1-api-gateway/relaygw/internal/executor/anthropicoauth"
	"github.com/1-api-gateway/relaygw/internal/wiremodel"
)

// sanitizeToolNames builds spec.md §3's tool-name map for an Anthropic
// OAuth connection and rewrites every tool name the hub request carries
// — its tool definitions and any prior assistant tool_calls — into
// Claude OAuth's restricted identifier charset, so the upstream request
// never carries a name it would reject. The map (sanitized -> original)
// is stashed on hub.ToolNameMap so the response path can reverse it.
func sanitizeToolNames(hub *wiremodel.ChatRequest) {
	if hub == nil || len(hub.Tools) == 0 {
		return
	}

	names := make([]string, 0, len(hub.Tools))
	for _, t := range hub.Tools {
		names = append(names, t.Function.Name)
	}
	toOriginal := anthropicoauth.BuildToolNameMap(names)
	hub.ToolNameMap = toOriginal

	toSanitized := make(map[string]string, len(toOriginal))
	for sanitized, original := range toOriginal {
		toSanitized[original] = sanitized
	}

	for i := range hub.Tools {
		hub.Tools[i].Function.Name = toSanitized[hub.Tools[i].Function.Name]
	}
	for i := range hub.Messages {
		for j := range hub.Messages[i].ToolCalls {
			tc := &hub.Messages[i].ToolCalls[j]
			if tc.Function == nil {
				continue
			}
			if sanitized, ok := toSanitized[tc.Function.Name]; ok {
				tc.Function.Name = sanitized
			}
		}
	}
}

// restoreStreamToolNames returns a StreamRegistry mutate hook that
// rewrites a hub chunk's tool-call names back to their originals, for an
// Anthropic OAuth connection's streaming response. Returns nil (no
// rewrite) when toolNameMap is empty, e.g. the request carried no tools.
func restoreStreamToolNames(toolNameMap map[string]string) func(*wiremodel.ChatStreamChunk) {
	if len(toolNameMap) == 0 {
		return nil
	}
	return func(chunk *wiremodel.ChatStreamChunk) {
		for i := range chunk.Choices {
			delta := chunk.Choices[i].Delta
			if delta == nil {
				continue
			}
			for j := range delta.ToolCalls {
				tc := &delta.ToolCalls[j]
				if tc.Function == nil || tc.Function.Name == "" {
					continue
				}
				if original, ok := toolNameMap[tc.Function.Name]; ok {
					tc.Function.Name = original
				}
			}
		}
	}
}

// restoreResponseToolNames rewrites tool_use block names in a Claude
// non-streaming response body back to their originals, for an Anthropic
// OAuth connection. Apart from this and the Kiro path (where
// finishNonStreaming aggregates the event stream and encodes a new chat
// response), non-streaming upstream bodies are returned to the client
// byte-for-byte.
func restoreResponseToolNames(toolNameMap map[string]string, body []byte) ([]byte, error) {
	if len(toolNameMap) == 0 {
		return body, nil
	}

	var resp wiremodel.ClaudeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, "decode claude response for tool-name restore")
	}

	changed := false
	for i := range resp.Content {
		if resp.Content[i].Type != "tool_use" || resp.Content[i].Name == "" {
			continue
		}
		if original, ok := toolNameMap[resp.Content[i].Name]; ok {
			resp.Content[i].Name = original
			changed = true
		}
	}
	if !changed {
		return body, nil
	}
	return json.Marshal(&resp)
}
