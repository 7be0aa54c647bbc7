package translate

import (
	"encoding/json"

	"github.com/Laisky/errors/v2"

	"github.com/1-api-gateway/relaygw/internal/wiremodel"
)

// claudeToOpenAI converts an Anthropic Messages request into the OpenAI hub
// shape. System prompt, tool definitions, and tool_use/tool_result pairing
// are preserved per spec.md §4.2's round-trip invariant.
func claudeToOpenAI(body []byte) (*wiremodel.ChatRequest, error) {
	var src wiremodel.ClaudeRequest
	if err := json.Unmarshal(body, &src); err != nil {
		return nil, errors.Wrap(err, "decode claude request")
	}

	out := &wiremodel.ChatRequest{
		Model:       src.Model,
		Stream:      src.Stream,
		Temperature: src.Temperature,
		TopP:        src.TopP,
	}
	if src.MaxTokens > 0 {
		out.MaxTokens = &src.MaxTokens
	}

	if sysText := claudeSystemToText(src.System); sysText != "" {
		out.Messages = append(out.Messages, wiremodel.Message{Role: "system", Content: sysText})
	}

	for _, m := range src.Messages {
		msgs, err := claudeMessageToOpenAI(m)
		if err != nil {
			return nil, err
		}
		out.Messages = append(out.Messages, msgs...)
	}

	for _, t := range src.Tools {
		out.Tools = append(out.Tools, wiremodel.ToolDefinition{
			Type: "function",
			Function: wiremodel.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}

	return out, nil
}

func claudeSystemToText(system any) string {
	switch v := system.(type) {
	case string:
		return v
	case []any:
		text := ""
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if t, _ := m["text"].(string); t != "" {
				if text != "" {
					text += "\n"
				}
				text += t
			}
		}
		return text
	default:
		return ""
	}
}

func claudeMessageToOpenAI(m wiremodel.ClaudeMessage) ([]wiremodel.Message, error) {
	switch content := m.Content.(type) {
	case string:
		return []wiremodel.Message{{Role: m.Role, Content: content}}, nil
	case []any:
		return claudeBlocksToOpenAI(m.Role, content)
	default:
		return []wiremodel.Message{{Role: m.Role}}, nil
	}
}

// claudeBlocksToOpenAI splits a Claude content-block array into zero or more
// OpenAI messages: text/tool_use collapse into one assistant message with
// ToolCalls; each tool_result becomes its own "tool" role message so the
// tool_call_id pairing invariant is preserved across the round trip.
func claudeBlocksToOpenAI(role string, blocks []any) ([]wiremodel.Message, error) {
	var text string
	var toolCalls []wiremodel.Tool
	var toolResults []wiremodel.Message

	for _, raw := range blocks {
		blockJSON, err := json.Marshal(raw)
		if err != nil {
			return nil, errors.Wrap(err, "re-marshal claude content block")
		}
		var block wiremodel.ClaudeContentBlock
		if err := json.Unmarshal(blockJSON, &block); err != nil {
			return nil, errors.Wrap(err, "decode claude content block")
		}

		switch block.Type {
		case "text":
			if text != "" {
				text += "\n"
			}
			text += block.Text
		case "image":
			// No lossless text placeholder location upstream; inline a
			// marker rather than silently dropping the image (spec.md §4.2).
			if text != "" {
				text += "\n"
			}
			text += "[image omitted: " + imageMediaType(block.Source) + "]"
		case "tool_use":
			argsJSON, err := json.Marshal(block.Input)
			if err != nil {
				return nil, errors.Wrap(err, "marshal tool_use input")
			}
			toolCalls = append(toolCalls, wiremodel.Tool{
				Id:   block.Id,
				Type: "function",
				Function: &wiremodel.Function{
					Name:      block.Name,
					Arguments: string(argsJSON),
				},
			})
		case "tool_result":
			toolResults = append(toolResults, wiremodel.Message{
				Role:       "tool",
				Content:    claudeToolResultText(block.Content),
				ToolCallId: block.ToolUseId,
			})
		}
	}

	var out []wiremodel.Message
	if text != "" || len(toolCalls) > 0 {
		out = append(out, wiremodel.Message{Role: role, Content: text, ToolCalls: toolCalls})
	}
	out = append(out, toolResults...)
	return out, nil
}

func imageMediaType(src *wiremodel.ClaudeImageSource) string {
	if src == nil {
		return "unknown"
	}
	return src.MediaType
}

func claudeToolResultText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		text := ""
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if t, _ := m["text"].(string); t != "" {
				if text != "" {
					text += "\n"
				}
				text += t
			}
		}
		return text
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// openAIToClaude renders the OpenAI hub into an Anthropic Messages request.
func openAIToClaude(req *wiremodel.ChatRequest, model string, stream bool) (any, error) {
	out := &wiremodel.ClaudeRequest{
		Model:       model,
		Stream:      stream,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   4096,
	}
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, wiremodel.ClaudeTool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: t.Function.Parameters,
		})
	}

	for _, m := range req.Messages {
		if m.Role == "system" {
			out.System = appendSystemText(out.System, contentToText(m.Content))
			continue
		}
		if m.Role == "tool" {
			out.Messages = append(out.Messages, wiremodel.ClaudeMessage{
				Role: "user",
				Content: []wiremodel.ClaudeContentBlock{{
					Type:      "tool_result",
					ToolUseId: m.ToolCallId,
					Content:   contentToText(m.Content),
				}},
			})
			continue
		}

		blocks := []wiremodel.ClaudeContentBlock{}
		if text := contentToText(m.Content); text != "" {
			blocks = append(blocks, wiremodel.ClaudeContentBlock{Type: "text", Text: text})
		}
		for _, tc := range m.ToolCalls {
			var input map[string]any
			if tc.Function != nil && tc.Function.Arguments != "" {
				_ = json.Unmarshal([]byte(tc.Function.Arguments), &input)
			}
			name := ""
			if tc.Function != nil {
				name = tc.Function.Name
			}
			blocks = append(blocks, wiremodel.ClaudeContentBlock{
				Type:  "tool_use",
				Id:    tc.Id,
				Name:  name,
				Input: input,
			})
		}
		out.Messages = append(out.Messages, wiremodel.ClaudeMessage{Role: m.Role, Content: blocks})
	}

	return out, nil
}

func appendSystemText(existing any, text string) any {
	if text == "" {
		return existing
	}
	if existing == nil {
		return text
	}
	if s, ok := existing.(string); ok {
		return s + "\n" + text
	}
	return existing
}

func contentToText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case nil:
		return ""
	case []wiremodel.ContentPart:
		text := ""
		for _, p := range v {
			if p.Text != "" {
				if text != "" {
					text += "\n"
				}
				text += p.Text
			} else if p.ImageURL != nil {
				if text != "" {
					text += "\n"
				}
				text += "[image omitted]"
			}
		}
		return text
	case []any:
		text := ""
		for _, raw := range v {
			m, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if t, _ := m["text"].(string); t != "" {
				if text != "" {
					text += "\n"
				}
				text += t
			} else if _, hasImg := m["image_url"]; hasImg {
				if text != "" {
					text += "\n"
				}
				text += "[image omitted]"
			}
		}
		return text
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}
