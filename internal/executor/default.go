package executor

import (
	"context"
	"net/http"
	"strings"

	"github.com/Laisky/errors/v2"
)

// DefaultExecutor handles every provider spec.md §4.3 lists under "default
// executor": OpenAI, Anthropic (API key), Codex, Qwen, iFlow, GLM, Kimi,
// MiniMax, OpenRouter, and generic OpenAI-/Anthropic-compatible nodes.
// Gemini, Kiro, Copilot, and OAuth connections to Anthropic-family
// providers need enough extra URL/header logic to warrant their own
// Executor implementations (see the gemini/, kiro/, copilot/, and
// anthropicoauth/ subpackages).
type DefaultExecutor struct{}

func NewDefaultExecutor() *DefaultExecutor { return &DefaultExecutor{} }

func (e *DefaultExecutor) Execute(ctx context.Context, req *Request) (*Response, error) {
	url, err := e.buildURL(req)
	if err != nil {
		return nil, errors.Wrap(err, "build request url")
	}

	headers := make(http.Header)
	setupCommonHeaders(headers, req.Stream)
	applyCredentialHeader(headers, req.Provider, req.Connection)

	return doRequest(ctx, http.MethodPost, url, headers, req.Body)
}

// buildURL implements spec.md §4.3's URL-selection rules for every
// default-executor provider.
func (e *DefaultExecutor) buildURL(req *Request) (string, error) {
	p := req.Provider
	base := strings.TrimRight(p.BaseURL, "/")

	switch {
	case p.AnthropicFamily:
		return base + p.ChatPath + "?beta=true", nil
	case p.ResponsesPath != "":
		return base + p.ResponsesPath, nil
	case p.ChatPath != "":
		return base + p.ChatPath, nil
	default:
		return "", errors.Errorf("provider %q has neither a chat nor a responses path configured", p.Id)
	}
}

var _ Executor = (*DefaultExecutor)(nil)
