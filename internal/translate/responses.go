package translate

import (
	"encoding/json"

	"github.com/Laisky/errors/v2"

	"github.com/1-api-gateway/relaygw/internal/wiremodel"
)

func responsesToOpenAI(body []byte) (*wiremodel.ChatRequest, error) {
	var src wiremodel.ResponsesRequest
	if err := json.Unmarshal(body, &src); err != nil {
		return nil, errors.Wrap(err, "decode responses request")
	}

	out := &wiremodel.ChatRequest{}
	if src.Instructions != "" {
		out.Messages = append(out.Messages, wiremodel.Message{Role: "system", Content: src.Instructions})
	}

	for _, item := range src.Input {
		switch item.Type {
		case "function_call":
			out.Messages = append(out.Messages, wiremodel.Message{
				Role: "assistant",
				ToolCalls: []wiremodel.Tool{{
					Id:   item.CallId,
					Type: "function",
					Function: &wiremodel.Function{
						Name:      item.Name,
						Arguments: item.Arguments,
					},
				}},
			})
		case "function_call_output":
			outputJSON, _ := json.Marshal(item.Output)
			out.Messages = append(out.Messages, wiremodel.Message{
				Role:       "tool",
				Content:    string(outputJSON),
				ToolCallId: item.CallId,
			})
		default:
			role := item.Role
			if role == "" {
				role = "user"
			}
			out.Messages = append(out.Messages, wiremodel.Message{Role: role, Content: contentToText(item.Content)})
		}
	}

	for _, t := range src.Tools {
		out.Tools = append(out.Tools, wiremodel.ToolDefinition{
			Type: "function",
			Function: wiremodel.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	return out, nil
}

func openAIToResponses(req *wiremodel.ChatRequest, model string, stream bool) (any, error) {
	out := &wiremodel.ResponsesRequest{Model: model, Stream: stream}

	for _, m := range req.Messages {
		switch {
		case m.Role == "system":
			if out.Instructions != "" {
				out.Instructions += "\n"
			}
			out.Instructions += contentToText(m.Content)
		case m.Role == "tool":
			out.Input = append(out.Input, wiremodel.ResponsesInputItem{
				Type:   "function_call_output",
				CallId: m.ToolCallId,
				Output: contentToText(m.Content),
			})
		case len(m.ToolCalls) > 0:
			for _, tc := range m.ToolCalls {
				name, args := "", ""
				if tc.Function != nil {
					name, args = tc.Function.Name, tc.Function.Arguments
				}
				out.Input = append(out.Input, wiremodel.ResponsesInputItem{
					Type:      "function_call",
					CallId:    tc.Id,
					Name:      name,
					Arguments: args,
				})
			}
		default:
			out.Input = append(out.Input, wiremodel.ResponsesInputItem{
				Type:    "message",
				Role:    m.Role,
				Content: contentToText(m.Content),
			})
		}
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, wiremodel.ResponsesToolDefinition{
			Type:        "function",
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
		})
	}

	return out, nil
}
