package translate

import (
	"encoding/json"

	"github.com/Laisky/errors/v2"

	"github.com/1-api-gateway/relaygw/internal/wireformat"
	"github.com/1-api-gateway/relaygw/internal/wiremodel"
)

// StreamState carries the per-request state the stream transform pipeline
// (spec.md §4.9) must thread across chunks: the assistant role is only
// emitted once, tool-call indices are assigned on first sighting, and usage
// accumulates until the terminator.
type StreamState struct {
	AssistantRoleEmitted bool
	ToolIndexById        map[string]int
	FinishEmitted        bool
	Usage                wiremodel.Usage
}

// NewStreamState returns a zeroed StreamState ready for one request's worth
// of chunks.
func NewStreamState() *StreamState {
	return &StreamState{ToolIndexById: map[string]int{}}
}

func (s *StreamState) toolIndex(id string) int {
	if idx, ok := s.ToolIndexById[id]; ok {
		return idx
	}
	idx := len(s.ToolIndexById)
	s.ToolIndexById[id] = idx
	return idx
}

// toHubChunk parses one upstream SSE payload (already stripped of the
// `data: ` prefix) into the OpenAI hub chunk shape.
type toHubChunk func(raw []byte, state *StreamState) (*wiremodel.ChatStreamChunk, bool, error)

// fromHubChunk renders a hub chunk into zero or more target-format SSE
// payloads (a source chunk can fan out into several target events, e.g. one
// OpenAI delta becoming Claude's content_block_delta plus a later
// content_block_stop).
type fromHubChunk func(chunk *wiremodel.ChatStreamChunk, state *StreamState) ([][]byte, error)

// StreamRegistry is the streaming-chunk counterpart of Registry: a directed
// (source, target) table composed through the OpenAI hub, matching spec.md
// §4.2's "parallel table of streaming chunk translators".
type StreamRegistry struct {
	toHub      map[wireformat.Format]toHubChunk
	fromHub    map[wireformat.Format]fromHubChunk
	terminator map[wireformat.Format]func(state *StreamState) [][]byte
}

func newStreamRegistry() *StreamRegistry {
	r := &StreamRegistry{
		toHub:      map[wireformat.Format]toHubChunk{},
		fromHub:    map[wireformat.Format]fromHubChunk{},
		terminator: map[wireformat.Format]func(state *StreamState) [][]byte{},
	}

	r.toHub[wireformat.OpenAI] = openAIChunkToHub
	r.fromHub[wireformat.OpenAI] = hubChunkToOpenAI
	r.terminator[wireformat.OpenAI] = openAITerminator

	r.toHub[wireformat.Claude] = claudeChunkToHub
	r.fromHub[wireformat.Claude] = hubChunkToClaude
	r.terminator[wireformat.Claude] = claudeTerminator

	r.toHub[wireformat.Gemini] = geminiChunkToHub
	r.fromHub[wireformat.Gemini] = hubChunkToGemini
	r.terminator[wireformat.Gemini] = geminiTerminator

	r.toHub[wireformat.OpenAIResponses] = responsesChunkToHub
	r.fromHub[wireformat.OpenAIResponses] = hubChunkToResponses
	r.terminator[wireformat.OpenAIResponses] = openAITerminator

	return r
}

// Translate converts one raw upstream SSE payload from src's shape into
// tgt's shape. A nil/false return from the hub parser (e.g. a Claude
// message_start event carrying no visible delta) yields no output chunks.
// mutate, when non-nil, is applied to the hub chunk after parsing and
// before rendering into tgt's shape (spec.md §3's tool-name map reversal
// for an Anthropic OAuth connection); pass nil when no such rewrite
// applies.
func (r *StreamRegistry) Translate(src, tgt wireformat.Format, raw []byte, state *StreamState, mutate func(*wiremodel.ChatStreamChunk)) ([][]byte, error) {
	if src == tgt && mutate == nil {
		return [][]byte{raw}, nil
	}

	toHub, ok := r.toHub[src]
	if !ok {
		return nil, errors.Errorf("no stream translator registered for source format %s", src)
	}
	hub, ok, err := toHub(raw, state)
	if err != nil {
		return nil, errors.Wrapf(err, "translate %s stream chunk to hub", src)
	}
	if !ok {
		return nil, nil
	}
	if mutate != nil {
		mutate(hub)
	}

	fromHub, ok := r.fromHub[tgt]
	if !ok {
		return nil, errors.Errorf("no stream translator registered for target format %s", tgt)
	}
	return fromHub(hub, state)
}

// FromHub renders an already-hub-shaped chunk into tgt's wire shape,
// skipping the toHub half of Translate. Kiro's executor produces hub
// chunks directly (its own wire framing is AWS EventStream binary, not a
// registered stream source), so it renders through this entry point
// instead of Translate.
func (r *StreamRegistry) FromHub(tgt wireformat.Format, chunk *wiremodel.ChatStreamChunk, state *StreamState) ([][]byte, error) {
	fromHub, ok := r.fromHub[tgt]
	if !ok {
		return nil, errors.Errorf("no stream translator registered for target format %s", tgt)
	}
	return fromHub(chunk, state)
}

// Terminator returns the target format's stream-end marker(s) (spec.md
// §4.9: `data: [DONE]` for OpenAI, a `message_stop` event for Claude, a
// final usageMetadata chunk for Gemini).
func (r *StreamRegistry) Terminator(tgt wireformat.Format, state *StreamState) [][]byte {
	fn, ok := r.terminator[tgt]
	if !ok {
		return nil
	}
	return fn(state)
}

func accumulateUsage(u *StreamState, usage *wiremodel.Usage) {
	if usage == nil {
		return
	}
	u.Usage.PromptTokens += usage.PromptTokens
	u.Usage.CompletionTokens += usage.CompletionTokens
	u.Usage.TotalTokens += usage.TotalTokens
	u.Usage.CachedTokens += usage.CachedTokens
	u.Usage.ReasoningTokens += usage.ReasoningTokens
	u.Usage.CacheCreationTokens += usage.CacheCreationTokens
}

// ---- OpenAI ----

func openAIChunkToHub(raw []byte, state *StreamState) (*wiremodel.ChatStreamChunk, bool, error) {
	var chunk wiremodel.ChatStreamChunk
	if err := json.Unmarshal(raw, &chunk); err != nil {
		return nil, false, errors.Wrap(err, "decode openai stream chunk")
	}
	accumulateUsage(state, chunk.Usage)
	return &chunk, true, nil
}

func hubChunkToOpenAI(chunk *wiremodel.ChatStreamChunk, state *StreamState) ([][]byte, error) {
	if len(chunk.Choices) > 0 && chunk.Choices[0].Delta != nil && !state.AssistantRoleEmitted {
		chunk.Choices[0].Delta.Role = "assistant"
		state.AssistantRoleEmitted = true
	}
	out, err := json.Marshal(chunk)
	if err != nil {
		return nil, errors.Wrap(err, "encode openai stream chunk")
	}
	return [][]byte{out}, nil
}

func openAITerminator(state *StreamState) [][]byte {
	return [][]byte{[]byte("[DONE]")}
}

// ---- Claude ----

func claudeChunkToHub(raw []byte, state *StreamState) (*wiremodel.ChatStreamChunk, bool, error) {
	var ev wiremodel.ClaudeStreamEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, false, errors.Wrap(err, "decode claude stream event")
	}

	switch ev.Type {
	case "content_block_delta":
		if ev.Delta == nil {
			return nil, false, nil
		}
		delta := &wiremodel.Message{}
		switch ev.Delta.Type {
		case "text_delta":
			delta.Content = ev.Delta.Text
		case "input_json_delta":
			idx := 0
			if ev.Index != nil {
				idx = *ev.Index
			}
			delta.ToolCalls = []wiremodel.Tool{{
				Index:    &idx,
				Function: &wiremodel.Function{Arguments: ev.Delta.PartialJSON},
			}}
		default:
			return nil, false, nil
		}
		return &wiremodel.ChatStreamChunk{Choices: []wiremodel.Choice{{Delta: delta}}}, true, nil
	case "content_block_start":
		if ev.ContentBlock == nil || ev.ContentBlock.Type != "tool_use" {
			return nil, false, nil
		}
		idx := state.toolIndex(ev.ContentBlock.Id)
		return &wiremodel.ChatStreamChunk{Choices: []wiremodel.Choice{{Delta: &wiremodel.Message{
			ToolCalls: []wiremodel.Tool{{
				Index: &idx, Id: ev.ContentBlock.Id, Type: "function",
				Function: &wiremodel.Function{Name: ev.ContentBlock.Name},
			}},
		}}}}, true, nil
	case "message_delta":
		reason := ""
		if ev.Delta != nil {
			reason = claudeStopReasonToOpenAI(ev.Delta.StopReason)
		}
		if ev.Usage != nil {
			accumulateUsage(state, &wiremodel.Usage{
				PromptTokens:        ev.Usage.InputTokens,
				CompletionTokens:    ev.Usage.OutputTokens,
				CacheCreationTokens: ev.Usage.CacheCreationInputTokens,
				CachedTokens:        ev.Usage.CacheReadInputTokens,
			})
		}
		if reason == "" {
			return nil, false, nil
		}
		return &wiremodel.ChatStreamChunk{Choices: []wiremodel.Choice{{FinishReason: &reason}}}, true, nil
	default:
		return nil, false, nil
	}
}

func claudeStopReasonToOpenAI(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	case "tool_use":
		return "tool_calls"
	default:
		return ""
	}
}

func hubChunkToClaude(chunk *wiremodel.ChatStreamChunk, state *StreamState) ([][]byte, error) {
	if len(chunk.Choices) == 0 {
		return nil, nil
	}
	choice := chunk.Choices[0]

	if choice.FinishReason != nil {
		state.FinishEmitted = true
		ev := wiremodel.ClaudeStreamEvent{Type: "message_delta", Delta: &wiremodel.ClaudeStreamDelta{StopReason: openAIFinishToClaude(*choice.FinishReason)}}
		out, err := json.Marshal(ev)
		return [][]byte{out}, err
	}
	if choice.Delta == nil {
		return nil, nil
	}

	var out [][]byte
	if !state.AssistantRoleEmitted {
		state.AssistantRoleEmitted = true
		start, _ := json.Marshal(wiremodel.ClaudeStreamEvent{Type: "message_start"})
		out = append(out, start)
	}
	if text := contentToText(choice.Delta.Content); text != "" {
		ev := wiremodel.ClaudeStreamEvent{Type: "content_block_delta", Delta: &wiremodel.ClaudeStreamDelta{Type: "text_delta", Text: text}}
		b, err := json.Marshal(ev)
		if err != nil {
			return nil, errors.Wrap(err, "encode claude text delta")
		}
		out = append(out, b)
	}
	for _, tc := range choice.Delta.ToolCalls {
		args := ""
		if tc.Function != nil {
			args = tc.Function.Arguments
		}
		idx := 0
		if tc.Index != nil {
			idx = *tc.Index
		}
		ev := wiremodel.ClaudeStreamEvent{Type: "content_block_delta", Index: &idx, Delta: &wiremodel.ClaudeStreamDelta{Type: "input_json_delta", PartialJSON: args}}
		b, err := json.Marshal(ev)
		if err != nil {
			return nil, errors.Wrap(err, "encode claude tool delta")
		}
		out = append(out, b)
	}
	return out, nil
}

func openAIFinishToClaude(reason string) string {
	switch reason {
	case "length":
		return "max_tokens"
	case "tool_calls":
		return "tool_use"
	default:
		return "end_turn"
	}
}

func claudeTerminator(state *StreamState) [][]byte {
	stop, _ := json.Marshal(wiremodel.ClaudeStreamEvent{Type: "message_stop"})
	return [][]byte{stop}
}

// ---- Gemini ----

func geminiChunkToHub(raw []byte, state *StreamState) (*wiremodel.ChatStreamChunk, bool, error) {
	var resp wiremodel.GeminiResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, false, errors.Wrap(err, "decode gemini stream chunk")
	}
	if resp.UsageMetadata != nil {
		accumulateUsage(state, &wiremodel.Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
			CachedTokens:     resp.UsageMetadata.CachedContentTokenCount,
		})
	}
	if len(resp.Candidates) == 0 {
		return nil, false, nil
	}
	msgs := geminiContentToOpenAI("assistant", resp.Candidates[0].Content.Parts)
	if len(msgs) == 0 {
		return nil, false, nil
	}
	delta := &msgs[0]
	var finish *string
	if fr := resp.Candidates[0].FinishReason; fr != "" {
		f := geminiFinishToOpenAI(fr)
		finish = &f
	}
	return &wiremodel.ChatStreamChunk{Choices: []wiremodel.Choice{{Delta: delta, FinishReason: finish}}}, true, nil
}

func geminiFinishToOpenAI(reason string) string {
	switch reason {
	case "MAX_TOKENS":
		return "length"
	case "STOP":
		return "stop"
	default:
		return "stop"
	}
}

func hubChunkToGemini(chunk *wiremodel.ChatStreamChunk, state *StreamState) ([][]byte, error) {
	if len(chunk.Choices) == 0 {
		return nil, nil
	}
	choice := chunk.Choices[0]
	if choice.Delta == nil {
		return nil, nil
	}

	var parts []wiremodel.GeminiPart
	if text := contentToText(choice.Delta.Content); text != "" {
		parts = append(parts, wiremodel.GeminiPart{Text: text})
	}
	for _, tc := range choice.Delta.ToolCalls {
		if tc.Function == nil {
			continue
		}
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		parts = append(parts, wiremodel.GeminiPart{FunctionCall: &wiremodel.GeminiFunctionCall{Name: tc.Function.Name, Args: args}})
	}

	resp := wiremodel.GeminiResponse{Candidates: []wiremodel.GeminiCandidate{{
		Content: wiremodel.GeminiContent{Role: "model", Parts: parts},
	}}}
	if choice.FinishReason != nil {
		resp.Candidates[0].FinishReason = "STOP"
		if *choice.FinishReason == "length" {
			resp.Candidates[0].FinishReason = "MAX_TOKENS"
		}
	}
	out, err := json.Marshal(resp)
	if err != nil {
		return nil, errors.Wrap(err, "encode gemini stream chunk")
	}
	return [][]byte{out}, nil
}

func geminiTerminator(state *StreamState) [][]byte {
	out, _ := json.Marshal(wiremodel.GeminiResponse{UsageMetadata: &wiremodel.GeminiUsageMetadata{
		PromptTokenCount:     state.Usage.PromptTokens,
		CandidatesTokenCount: state.Usage.CompletionTokens,
		TotalTokenCount:      state.Usage.TotalTokens,
	}})
	return [][]byte{out}
}

// ---- OpenAI Responses ----

func responsesChunkToHub(raw []byte, state *StreamState) (*wiremodel.ChatStreamChunk, bool, error) {
	var ev wiremodel.ResponsesStreamEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, false, errors.Wrap(err, "decode responses stream event")
	}

	switch ev.Type {
	case "response.output_text.delta":
		return &wiremodel.ChatStreamChunk{Choices: []wiremodel.Choice{{Delta: &wiremodel.Message{Content: ev.Delta}}}}, true, nil
	case "response.completed", "response.done":
		if ev.Response != nil && ev.Response.Usage != nil {
			accumulateUsage(state, ev.Response.Usage)
		}
		reason := "stop"
		return &wiremodel.ChatStreamChunk{Choices: []wiremodel.Choice{{FinishReason: &reason}}}, true, nil
	default:
		return nil, false, nil
	}
}

func hubChunkToResponses(chunk *wiremodel.ChatStreamChunk, state *StreamState) ([][]byte, error) {
	if len(chunk.Choices) == 0 {
		return nil, nil
	}
	choice := chunk.Choices[0]

	if choice.FinishReason != nil {
		ev := wiremodel.ResponsesStreamEvent{Type: "response.completed"}
		out, err := json.Marshal(ev)
		return [][]byte{out}, err
	}
	if choice.Delta == nil {
		return nil, nil
	}
	ev := wiremodel.ResponsesStreamEvent{Type: "response.output_text.delta", Delta: contentToText(choice.Delta.Content)}
	out, err := json.Marshal(ev)
	if err != nil {
		return nil, errors.Wrap(err, "encode responses stream event")
	}
	return [][]byte{out}, nil
}
