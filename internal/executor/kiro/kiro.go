// Package kiro implements the AWS CodeWhisperer ("Kiro") specialized
// executor: a JSON POST request and an AWS EventStream binary framed
// response, decoded into OpenAI-hub chat-completion chunks per spec.md
// §4.3's Kiro executor emission rules.
//
// Grounded on relay/adaptor/aws/adaptor.go and its per-model aws/
// subpackages (relay/adaptor/aws/claude, relay/adaptor/aws/qwen, ...),
// which already depend on github.com/aws/aws-sdk-go-v2 for Bedrock's own
// EventStream responses. Kiro's CodeWhisperer endpoint is not Bedrock
// (no bedrockruntime client applies — it is a plain HTTPS POST), but its
// wire framing is the same AWS EventStream protocol, so this package
// reaches for the SDK's shared low-level frame decoder,
// github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream, rather than
// hand-rolling a duplicate binary parser.
package kiro

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream"

	"github.com/1-api-gateway/relaygw/internal/executor"
	"github.com/1-api-gateway/relaygw/internal/wiremodel"
)

type Executor struct{}

func NewExecutor() *Executor { return &Executor{} }

func (e *Executor) Execute(ctx context.Context, req *executor.Request) (*executor.Response, error) {
	url := strings.TrimRight(req.Provider.BaseURL, "/") + req.Provider.ChatPath

	headers := make(http.Header)
	headers.Set("Content-Type", "application/json")
	headers.Set("Authorization", "Bearer "+req.Connection.AccessToken)
	if profileArn := req.Connection.ProviderData["profileArn"]; profileArn != "" {
		headers.Set("x-amzn-codewhisperer-profile-arn", profileArn)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(req.Body)))
	if err != nil {
		return nil, errors.Wrap(err, "build kiro request")
	}
	httpReq.Header = headers

	resp, err := executor.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "do kiro request")
	}
	return &executor.Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: resp.Body}, nil
}

var _ executor.Executor = (*Executor)(nil)

// decodeState tracks the per-stream emission state spec.md §4.3
// describes for the Kiro frame parser.
type decodeState struct {
	roleEmitted   bool
	toolIndexById map[string]int
	hasToolCalls  bool
	finishEmitted bool
}

func newDecodeState() *decodeState {
	return &decodeState{toolIndexById: make(map[string]int)}
}

type assistantPayload struct {
	Content string `json:"content"`
}

type toolUsePayload struct {
	ToolUseId string `json:"toolUseId"`
	Name      string `json:"name"`
	Input     string `json:"input"`
}

// DecodeStream reads AWS EventStream frames from r and invokes emit once
// per OpenAI-hub-shaped chunk it produces, in the same order and with the
// same role/tool-index/finish-reason bookkeeping spec.md §4.3 describes.
// It stops at the first error emit returns, at the first decode error, or
// at a clean EOF — in which case, absent an explicit messageStopEvent, it
// synthesizes the closing finish chunk emit expects every call to
// TranslateStream/Aggregate to see exactly once.
//
// The CRC-checking done by the SDK decoder is tolerated, not required, to
// pass — spec.md §6 only asks implementers to tolerate the trailing CRC,
// not verify it, but the SDK decoder verifies it anyway; a CRC mismatch
// surfaces as a decode error here, which ends the stream with that error
// rather than silently dropping frames.
func DecodeStream(r io.Reader, emit func(*wiremodel.ChatStreamChunk) error) error {
	dec := eventstream.NewDecoder(r)
	state := newDecodeState()

	for {
		msg, err := dec.Decode(nil)
		if err != nil {
			if err == io.EOF {
				break
			}
			return errors.Wrap(err, "decode kiro eventstream frame")
		}

		eventType := headerString(msg.Headers, ":event-type")
		chunk, ok, err := hubEvent(state, eventType, msg.Payload)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := emit(chunk); err != nil {
			return err
		}
	}

	if !state.finishEmitted {
		return emit(hubFinish(state))
	}
	return nil
}

func headerString(headers eventstream.Headers, name string) string {
	for _, h := range headers {
		if h.Name == name {
			return h.Value.String()
		}
	}
	return ""
}

func hubEvent(state *decodeState, eventType string, payload []byte) (*wiremodel.ChatStreamChunk, bool, error) {
	switch eventType {
	case "assistantResponseEvent", "codeEvent":
		var p assistantPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, false, errors.Wrap(err, "unmarshal kiro assistant payload")
		}
		return hubContent(state, p.Content), true, nil
	case "toolUseEvent":
		var p toolUsePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, false, errors.Wrap(err, "unmarshal kiro tool use payload")
		}
		return hubToolUse(state, p), true, nil
	case "messageStopEvent":
		if state.finishEmitted {
			return nil, false, nil
		}
		return hubFinish(state), true, nil
	case "meteringEvent", "contextUsageEvent":
		if state.finishEmitted {
			return nil, false, nil
		}
		return hubFinish(state), true, nil
	default:
		return nil, false, nil
	}
}

func hubContent(state *decodeState, content string) *wiremodel.ChatStreamChunk {
	delta := &wiremodel.Message{Content: content}
	if !state.roleEmitted {
		delta.Role = "assistant"
		state.roleEmitted = true
	}
	return &wiremodel.ChatStreamChunk{Choices: []wiremodel.Choice{{Delta: delta}}}
}

func hubToolUse(state *decodeState, p toolUsePayload) *wiremodel.ChatStreamChunk {
	state.hasToolCalls = true
	idx, seen := state.toolIndexById[p.ToolUseId]
	if !seen {
		idx = len(state.toolIndexById)
		state.toolIndexById[p.ToolUseId] = idx
		return &wiremodel.ChatStreamChunk{Choices: []wiremodel.Choice{{Delta: &wiremodel.Message{
			ToolCalls: []wiremodel.Tool{{
				Index: &idx, Id: p.ToolUseId, Type: "function",
				Function: &wiremodel.Function{Name: p.Name},
			}},
		}}}}
	}
	return &wiremodel.ChatStreamChunk{Choices: []wiremodel.Choice{{Delta: &wiremodel.Message{
		ToolCalls: []wiremodel.Tool{{Index: &idx, Function: &wiremodel.Function{Arguments: p.Input}}},
	}}}}
}

func hubFinish(state *decodeState) *wiremodel.ChatStreamChunk {
	state.finishEmitted = true
	reason := "stop"
	if state.hasToolCalls {
		reason = "tool_calls"
	}
	return &wiremodel.ChatStreamChunk{Choices: []wiremodel.Choice{{FinishReason: &reason}}}
}

// TranslateStream reads AWS EventStream frames from r and writes OpenAI
// chat-completion SSE chunks (`data: {...}\n\n`) to w, followed by a
// final `data: [DONE]\n\n`, per spec.md §4.3's Kiro executor emission
// rules. Kept for callers (and tests) that want raw OpenAI SSE text
// directly; the production pipeline uses DecodeStream/Aggregate so a
// client's own requested wire format is honored instead of hard-coding
// OpenAI.
func TranslateStream(r io.Reader, w io.Writer) error {
	err := DecodeStream(r, func(chunk *wiremodel.ChatStreamChunk) error {
		return writeSSEChunk(w, chunk)
	})
	if err != nil {
		return err
	}
	_, err = w.Write([]byte("data: [DONE]\n\n"))
	return errors.Wrap(err, "write kiro stream terminator")
}

func writeSSEChunk(w io.Writer, c *wiremodel.ChatStreamChunk) error {
	data, err := json.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal kiro-decoded chunk")
	}
	var buf bytes.Buffer
	buf.WriteString("data: ")
	buf.Write(data)
	buf.WriteString("\n\n")
	_, err = w.Write(buf.Bytes())
	return errors.Wrap(err, "write kiro-decoded chunk")
}

// Aggregate reads AWS EventStream frames from r and coalesces them into a
// single non-streaming chat message, for a client that did not request a
// streaming reply even though Kiro's own wire response is always an
// event stream. Role/content/tool-call accumulation mirrors
// DecodeStream's per-chunk emission exactly, just folded into one
// message instead of deltas.
func Aggregate(r io.Reader) (*wiremodel.Message, string, error) {
	msg := &wiremodel.Message{Role: "assistant", Content: ""}
	reason := "stop"

	err := DecodeStream(r, func(chunk *wiremodel.ChatStreamChunk) error {
		if len(chunk.Choices) == 0 {
			return nil
		}
		choice := chunk.Choices[0]
		if choice.FinishReason != nil {
			reason = *choice.FinishReason
			return nil
		}
		if choice.Delta == nil {
			return nil
		}
		if text, ok := choice.Delta.Content.(string); ok && text != "" {
			msg.Content = msg.Content.(string) + text
		}
		for _, tc := range choice.Delta.ToolCalls {
			msg.ToolCalls = mergeToolCall(msg.ToolCalls, tc)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return msg, reason, nil
}

// mergeToolCall folds one incremental tool-call delta (a "start" chunk
// carrying Id/Type/Function.Name, or an "args" chunk carrying only
// Index+Function.Arguments) into the accumulated tool-call list.
func mergeToolCall(calls []wiremodel.Tool, tc wiremodel.Tool) []wiremodel.Tool {
	if tc.Index == nil {
		return calls
	}
	idx := *tc.Index
	if idx == len(calls) {
		name := ""
		if tc.Function != nil {
			name = tc.Function.Name
		}
		return append(calls, wiremodel.Tool{
			Id: tc.Id, Type: tc.Type,
			Function: &wiremodel.Function{Name: name},
		})
	}
	if idx >= 0 && idx < len(calls) && tc.Function != nil {
		calls[idx].Function.Arguments += tc.Function.Arguments
	}
	return calls
}
