// Package translate implements the bidirectional translator registry
// described in spec.md §4.2: directed (sourceFormat, targetFormat) request
// translators and a parallel table of streaming-chunk translators.
//
// Per the "cross-format tool calls" design note (spec.md §9), OPENAI is the
// hub: translating X→Y is composed as X→OPENAI→Y. No direct edges are
// registered; every pair of formats goes through the hub.
//
// Grounded on relay/adaptor/openai_compatible/claude_convert.go's
// bidirectional-conversion idiom from the teacher.
package translate

import (
	"encoding/json"

	"github.com/Laisky/errors/v2"

	"github.com/1-api-gateway/relaygw/internal/wireformat"
	"github.com/1-api-gateway/relaygw/internal/wiremodel"
)

// ToOpenAI parses a body in a given source format into the OpenAI hub
// representation. It returns only the hub request; tool-name-map entries
// are added later by the caller's mutate hook, not here.
type ToOpenAI func(body []byte) (*wiremodel.ChatRequest, error)

// FromOpenAI renders the OpenAI hub representation into a target format's
// body, given the resolved upstream model name and whether streaming was
// requested.
type FromOpenAI func(req *wiremodel.ChatRequest, model string, stream bool) (any, error)

// Registry is the translator table.
type Registry struct {
	toOpenAI   map[wireformat.Format]ToOpenAI
	fromOpenAI map[wireformat.Format]FromOpenAI
	stream     *StreamRegistry
}

// NewRegistry builds the default registry with every translation spec.md
// §4.2 requires wired in.
func NewRegistry() *Registry {
	r := &Registry{
		toOpenAI:   map[wireformat.Format]ToOpenAI{},
		fromOpenAI: map[wireformat.Format]FromOpenAI{},
		stream:     newStreamRegistry(),
	}

	r.toOpenAI[wireformat.OpenAI] = openAIToOpenAI
	r.fromOpenAI[wireformat.OpenAI] = openAIFromOpenAI

	r.toOpenAI[wireformat.Claude] = claudeToOpenAI
	r.fromOpenAI[wireformat.Claude] = openAIToClaude

	r.toOpenAI[wireformat.Gemini] = geminiToOpenAI
	r.fromOpenAI[wireformat.Gemini] = openAIToGemini

	r.toOpenAI[wireformat.OpenAIResponses] = responsesToOpenAI
	r.fromOpenAI[wireformat.OpenAIResponses] = openAIToResponses

	// Dialects are translation targets only (never a detected source).
	r.fromOpenAI[wireformat.Kiro] = openAIToKiro
	r.fromOpenAI[wireformat.Copilot] = openAIToCopilot
	r.fromOpenAI[wireformat.Antigravity] = openAIToAntigravity
	r.fromOpenAI[wireformat.Qwen] = openAIToQwen
	r.fromOpenAI[wireformat.IFlow] = openAIToIFlow

	return r
}

// TranslateRequest implements spec.md §4.2's
// translateRequest. It takes no credentials or provider argument, so no
// translator adds account-specific identifiers (the Kiro body carries no
// profileArn). mutate, when non-nil, runs against the parsed hub request before it is
// rendered into tgt's shape — Chat Core uses this to sanitize tool names
// for an Anthropic OAuth connection (spec.md §3's "Tool-name map"); pass
// nil when no such rewrite applies.
func (r *Registry) TranslateRequest(src, tgt wireformat.Format, model string, body []byte, stream bool, mutate func(*wiremodel.ChatRequest)) ([]byte, *wiremodel.ChatRequest, error) {
	if src == tgt && mutate == nil {
		return body, nil, nil
	}

	hub, err := r.toHub(src, body)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "translate %s to hub", src)
	}
	if mutate != nil {
		mutate(hub)
	}

	if tgt == wireformat.OpenAI {
		hub.Model = model
		hub.Stream = stream
		out, err := json.Marshal(hub)
		return out, hub, err
	}

	fn, ok := r.fromOpenAI[tgt]
	if !ok {
		return nil, nil, errors.Errorf("no translator registered for target format %s", tgt)
	}
	targetBody, err := fn(hub, model, stream)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "translate hub to %s", tgt)
	}
	out, err := json.Marshal(targetBody)
	return out, hub, err
}

func (r *Registry) toHub(src wireformat.Format, body []byte) (*wiremodel.ChatRequest, error) {
	fn, ok := r.toOpenAI[src]
	if !ok {
		return nil, errors.Errorf("no translator registered for source format %s", src)
	}
	return fn(body)
}

// Stream exposes the streaming-chunk translator table.
func (r *Registry) Stream() *StreamRegistry { return r.stream }

func openAIToOpenAI(body []byte) (*wiremodel.ChatRequest, error) {
	var req wiremodel.ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, errors.Wrap(err, "decode openai request")
	}
	return &req, nil
}

func openAIFromOpenAI(req *wiremodel.ChatRequest, model string, stream bool) (any, error) {
	req.Model = model
	req.Stream = stream
	return req, nil
}
