package chat

import (
	"encoding/json"

	"github.com/1-api-gateway/relaygw/internal/credential"
	"github.com/1-api-gateway/relaygw/internal/executor"
	"github.com/1-api-gateway/relaygw/internal/executor/kiro"
	"github.com/1-api-gateway/relaygw/internal/pricing"
	"github.com/1-api-gateway/relaygw/internal/provider"
	"github.com/1-api-gateway/relaygw/internal/wireformat"
	"github.com/1-api-gateway/relaygw/internal/wiremodel"
)

// kiroRegion is the only AWS region this gateway's Kiro/CodeWhisperer
// provider entry targets (its BaseURL is hardcoded to the same region).
const kiroRegion = "us-east-1"

// executorRefresher picks the RefreshFunc for p, special-casing the AWS
// SSO-OIDC social-auth variant that internal/executor.NewRefresher
// deliberately leaves unhandled (it needs an AWS service client, not a
// plain REST call).
func executorRefresher(p *provider.Provider) credential.RefreshFunc {
	if p.RefreshStyle == provider.RefreshKiroSSOOIDC {
		return kiro.RefreshSSOOIDC(kiroRegion)
	}
	return executor.NewRefresher(p)
}

// extractUsage pulls the token usage block out of a non-streaming
// upstream response body, per the wire format it was returned in.
// Streaming responses get their usage from translate.StreamState instead
// (internal/streampipe accumulates it chunk by chunk).
func extractUsage(format wireformat.Format, body []byte) pricing.Tokens {
	switch format {
	case wireformat.Claude:
		var resp wiremodel.ClaudeResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return pricing.Tokens{}
		}
		return pricing.Tokens{
			Prompt:        resp.Usage.InputTokens,
			Completion:    resp.Usage.OutputTokens,
			Cached:        resp.Usage.CacheReadInputTokens,
			CacheCreation: resp.Usage.CacheCreationInputTokens,
		}
	case wireformat.Gemini, wireformat.Antigravity:
		var resp wiremodel.GeminiResponse
		if err := json.Unmarshal(body, &resp); err != nil || resp.UsageMetadata == nil {
			return pricing.Tokens{}
		}
		return pricing.Tokens{
			Prompt:     resp.UsageMetadata.PromptTokenCount,
			Completion: resp.UsageMetadata.CandidatesTokenCount,
			Cached:     resp.UsageMetadata.CachedContentTokenCount,
		}
	default:
		var resp wiremodel.ChatResponse
		if err := json.Unmarshal(body, &resp); err != nil || resp.Usage == nil {
			return pricing.Tokens{}
		}
		return pricing.Tokens{
			Prompt:        resp.Usage.PromptTokens,
			Completion:    resp.Usage.CompletionTokens,
			Cached:        resp.Usage.CachedTokens,
			Reasoning:     resp.Usage.ReasoningTokens,
			CacheCreation: resp.Usage.CacheCreationTokens,
		}
	}
}
