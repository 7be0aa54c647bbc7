package chat

import (
	"strings"

	"github.com/1-api-gateway/relaygw/internal/wiremodel"
)

// bypassUserMessages are canonical short probes client libraries send to
// warm up a connection or check liveness without wanting a real model
// call, per spec.md §4.8 step 1's "warmup/skip probes identified by
// canonical short user messages".
var bypassUserMessages = map[string]bool{
	"hi": true, "hello": true, "test": true, "ping": true,
}

// bypassUserAgents are recognized client user-agent substrings for
// automated health checks, matching spec.md §4.8 step 1's "recognized
// client user-agents" half of the rule.
var bypassUserAgents = []string{"healthcheck", "warmup", "kube-probe"}

// IsBypassProbe classifies a request as a warmup/skip probe that should
// short-circuit with a synthetic OK response instead of reaching any
// upstream provider.
func IsBypassProbe(req *wiremodel.ChatRequest, userAgent string) bool {
	ua := strings.ToLower(userAgent)
	for _, probe := range bypassUserAgents {
		if strings.Contains(ua, probe) {
			return true
		}
	}

	if len(req.Messages) != 1 {
		return false
	}
	msg := req.Messages[0]
	if msg.Role != "user" {
		return false
	}
	text, ok := msg.Content.(string)
	if !ok {
		return false
	}
	return bypassUserMessages[strings.ToLower(strings.TrimSpace(text))]
}

// SyntheticOK builds the canonical synthetic chat-completion response for
// a bypassed probe request.
func SyntheticOK(model string) *wiremodel.ChatResponse {
	reason := "stop"
	return &wiremodel.ChatResponse{
		Id:      "bypass-ok",
		Object:  "chat.completion",
		Model:   model,
		Choices: []wiremodel.Choice{{
			Index:        0,
			Message:      &wiremodel.Message{Role: "assistant", Content: "OK"},
			FinishReason: &reason,
		}},
	}
}
