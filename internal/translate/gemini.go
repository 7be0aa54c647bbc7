package translate

import (
	"encoding/json"

	"github.com/Laisky/errors/v2"

	"github.com/1-api-gateway/relaygw/internal/translate/sanitize"
	"github.com/1-api-gateway/relaygw/internal/wiremodel"
)

// geminiToOpenAI converts a GenerateContent request into the OpenAI hub
// shape. Gemini has no distinct "system" message type; systemInstruction
// maps to a leading system message.
func geminiToOpenAI(body []byte) (*wiremodel.ChatRequest, error) {
	var src wiremodel.GeminiRequest
	if err := json.Unmarshal(body, &src); err != nil {
		return nil, errors.Wrap(err, "decode gemini request")
	}

	out := &wiremodel.ChatRequest{}
	if cfg := src.GenerationConfig; cfg != nil {
		out.Temperature = cfg.Temperature
		out.TopP = cfg.TopP
		out.MaxTokens = cfg.MaxOutputTokens
		if len(cfg.StopSequences) > 0 {
			out.Stop = cfg.StopSequences
		}
	}

	if src.SystemInstruction != nil {
		if text := geminiPartsToText(src.SystemInstruction.Parts); text != "" {
			out.Messages = append(out.Messages, wiremodel.Message{Role: "system", Content: text})
		}
	}

	for _, c := range src.Contents {
		role := "user"
		if c.Role == "model" {
			role = "assistant"
		}
		msgs := geminiContentToOpenAI(role, c.Parts)
		out.Messages = append(out.Messages, msgs...)
	}

	for _, t := range src.Tools {
		for _, fd := range t.FunctionDeclarations {
			out.Tools = append(out.Tools, wiremodel.ToolDefinition{
				Type: "function",
				Function: wiremodel.FunctionDefinition{
					Name:        fd.Name,
					Description: fd.Description,
					Parameters:  fd.Parameters,
				},
			})
		}
	}

	return out, nil
}

func geminiPartsToText(parts []wiremodel.GeminiPart) string {
	text := ""
	for _, p := range parts {
		if p.Text == "" {
			continue
		}
		if text != "" {
			text += "\n"
		}
		text += p.Text
	}
	return text
}

func geminiContentToOpenAI(role string, parts []wiremodel.GeminiPart) []wiremodel.Message {
	var text string
	var toolCalls []wiremodel.Tool
	var toolResults []wiremodel.Message

	for _, p := range parts {
		switch {
		case p.Text != "":
			if text != "" {
				text += "\n"
			}
			text += p.Text
		case p.InlineData != nil:
			if text != "" {
				text += "\n"
			}
			text += "[image omitted: " + p.InlineData.MimeType + "]"
		case p.FunctionCall != nil:
			argsJSON, _ := json.Marshal(p.FunctionCall.Args)
			toolCalls = append(toolCalls, wiremodel.Tool{
				Id:   "call_" + p.FunctionCall.Name,
				Type: "function",
				Function: &wiremodel.Function{
					Name:      p.FunctionCall.Name,
					Arguments: string(argsJSON),
				},
			})
		case p.FunctionResponse != nil:
			respJSON, _ := json.Marshal(p.FunctionResponse.Response)
			toolResults = append(toolResults, wiremodel.Message{
				Role:       "tool",
				Content:    string(respJSON),
				ToolCallId: "call_" + p.FunctionResponse.Name,
			})
		}
	}

	var out []wiremodel.Message
	if text != "" || len(toolCalls) > 0 {
		out = append(out, wiremodel.Message{Role: role, Content: text, ToolCalls: toolCalls})
	}
	out = append(out, toolResults...)
	return out
}

// openAIToGemini renders the OpenAI hub into a GenerateContent request. Tool
// parameter schemas are run through the Gemini JSON-Schema sanitizer
// (spec.md §4.2) since Gemini only accepts a restricted JSON-Schema subset.
func openAIToGemini(req *wiremodel.ChatRequest, model string, stream bool) (any, error) {
	out := &wiremodel.GeminiRequest{}

	if req.Temperature != nil || req.TopP != nil || req.MaxTokens != nil {
		out.GenerationConfig = &wiremodel.GeminiGenerationConfig{
			Temperature:     req.Temperature,
			TopP:            req.TopP,
			MaxOutputTokens: req.MaxTokens,
		}
		if stops, ok := req.Stop.([]string); ok {
			out.GenerationConfig.StopSequences = stops
		}
	}

	for _, m := range req.Messages {
		if m.Role == "system" {
			text := contentToText(m.Content)
			if text != "" {
				out.SystemInstruction = &wiremodel.GeminiContent{Parts: []wiremodel.GeminiPart{{Text: text}}}
			}
			continue
		}

		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}

		var parts []wiremodel.GeminiPart
		if m.Role == "tool" {
			var resp map[string]any
			_ = json.Unmarshal([]byte(contentToText(m.Content)), &resp)
			if resp == nil {
				resp = map[string]any{"result": contentToText(m.Content)}
			}
			parts = append(parts, wiremodel.GeminiPart{
				FunctionResponse: &wiremodel.GeminiFuncResponse{Name: m.ToolCallId, Response: resp},
			})
			out.Contents = append(out.Contents, wiremodel.GeminiContent{Role: "function", Parts: parts})
			continue
		}

		if text := contentToText(m.Content); text != "" {
			parts = append(parts, wiremodel.GeminiPart{Text: text})
		}
		for _, tc := range m.ToolCalls {
			var args map[string]any
			name := ""
			if tc.Function != nil {
				name = tc.Function.Name
				_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
			}
			parts = append(parts, wiremodel.GeminiPart{FunctionCall: &wiremodel.GeminiFunctionCall{Name: name, Args: args}})
		}
		out.Contents = append(out.Contents, wiremodel.GeminiContent{Role: role, Parts: parts})
	}

	if len(req.Tools) > 0 {
		decls := make([]wiremodel.GeminiFunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, wiremodel.GeminiFunctionDeclaration{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  sanitize.Schema(t.Function.Parameters),
			})
		}
		out.Tools = []wiremodel.GeminiTool{{FunctionDeclarations: decls}}
	}

	return out, nil
}
