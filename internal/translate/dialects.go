package translate

import (
	"github.com/1-api-gateway/relaygw/internal/wiremodel"
)

// Dialect targets (spec.md §4.2) are translation destinations only; no
// gateway client ever sends KIRO/COPILOT/ANTIGRAVITY/QWEN/IFLOW as a source
// format, so only the OpenAI-hub -> dialect direction is registered.

// kiroConversationState mirrors the AWS CodeWhisperer chat request envelope:
// the current turn plus prior history, each wrapped in a userInputMessage or
// assistantResponseMessage union.
type kiroConversationState struct {
	ConversationId string             `json:"conversationId,omitempty"`
	CurrentMessage kiroMessageWrapper `json:"currentMessage"`
	History        []kiroHistoryEntry `json:"history,omitempty"`
}

type kiroMessageWrapper struct {
	UserInputMessage *kiroUserInputMessage `json:"userInputMessage,omitempty"`
}

type kiroUserInputMessage struct {
	Content         string               `json:"content"`
	ModelId         string               `json:"modelId"`
	Origin          string               `json:"origin"`
	UserInputMessageContext map[string]any `json:"userInputMessageContext,omitempty"`
}

type kiroHistoryEntry struct {
	UserInputMessage      *kiroUserInputMessage      `json:"userInputMessage,omitempty"`
	AssistantResponseMessage *kiroAssistantMessage    `json:"assistantResponseMessage,omitempty"`
}

type kiroAssistantMessage struct {
	Content string `json:"content"`
}

type kiroRequest struct {
	ConversationState kiroConversationState `json:"conversationState"`
	ProfileArn        string                `json:"profileArn,omitempty"`
}

// openAIToKiro folds the hub's message list into CodeWhisperer's
// conversationState shape (spec.md §4.3's Kiro executor). System messages
// prepend into the current turn's content since CodeWhisperer has no
// separate system-role slot.
func openAIToKiro(req *wiremodel.ChatRequest, model string, stream bool) (any, error) {
	out := kiroRequest{}
	out.ConversationState.CurrentMessage.UserInputMessage = &kiroUserInputMessage{ModelId: model, Origin: "AI_EDITOR"}

	var system string
	var history []kiroHistoryEntry
	var lastUserText string

	for _, m := range req.Messages {
		text := contentToText(m.Content)
		switch m.Role {
		case "system":
			if system != "" {
				system += "\n"
			}
			system += text
		case "assistant":
			history = append(history, kiroHistoryEntry{AssistantResponseMessage: &kiroAssistantMessage{Content: text}})
		case "tool":
			history = append(history, kiroHistoryEntry{UserInputMessage: &kiroUserInputMessage{Content: text, Origin: "AI_EDITOR"}})
		default:
			if lastUserText != "" {
				history = append(history, kiroHistoryEntry{UserInputMessage: &kiroUserInputMessage{Content: lastUserText, Origin: "AI_EDITOR"}})
			}
			lastUserText = text
		}
	}

	if system != "" {
		if lastUserText != "" {
			lastUserText = system + "\n\n" + lastUserText
		} else {
			lastUserText = system
		}
	}

	out.ConversationState.CurrentMessage.UserInputMessage.Content = lastUserText
	out.ConversationState.History = history
	return &out, nil
}

// openAIToCopilot renders the GitHub Copilot Chat completions body, which is
// OpenAI-compatible save for dropping the `user` field and requiring an
// explicit `intent` flag GitHub's edge rejects requests without.
func openAIToCopilot(req *wiremodel.ChatRequest, model string, stream bool) (any, error) {
	out := *req
	out.Model = model
	out.Stream = stream
	out.User = ""
	return &copilotRequest{ChatRequest: out, Intent: true}, nil
}

type copilotRequest struct {
	wiremodel.ChatRequest
	Intent bool `json:"intent"`
}

// antigravityRequest wraps a Gemini GenerateContent body in the envelope the
// Gemini-CLI/Code-Assist variant expects: the inner request keyed under
// "request" alongside the model id chosen outside the Gemini payload itself.
type antigravityRequest struct {
	Model   string                   `json:"model"`
	Request *wiremodel.GeminiRequest `json:"request"`
}

func openAIToAntigravity(req *wiremodel.ChatRequest, model string, stream bool) (any, error) {
	geminiBody, err := openAIToGemini(req, model, stream)
	if err != nil {
		return nil, err
	}
	gReq, ok := geminiBody.(*wiremodel.GeminiRequest)
	if !ok {
		return nil, nil
	}
	return &antigravityRequest{Model: model, Request: gReq}, nil
}

// openAIToQwen and openAIToIFlow render the plain OpenAI Chat Completions
// body: both providers' chat endpoints are OpenAI-compatible (spec.md §4.3
// lists both under the default executor's compatible-node set); only header
// and credential handling differ, which belongs to the executor, not the
// translator.
func openAIToQwen(req *wiremodel.ChatRequest, model string, stream bool) (any, error) {
	return openAIFromOpenAI(req, model, stream)
}

func openAIToIFlow(req *wiremodel.ChatRequest, model string, stream bool) (any, error) {
	return openAIFromOpenAI(req, model, stream)
}
