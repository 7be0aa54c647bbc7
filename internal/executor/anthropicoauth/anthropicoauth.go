// Package anthropicoauth implements the Anthropic-OAuth specialized
// executor: same URL shape as the default executor's Anthropic-family
// branch, but with the oauth-2025-04-20 beta header Claude's OAuth
// endpoint requires, Bearer auth instead of x-api-key, and restricted
// tool-name sanitization (spec.md §3's "Tool-name map").
//
// Grounded on the default executor's Anthropic-family URL/header
// branches (relay/adaptor/interface.go's Adaptor.SetupRequestHeader
// contract), specialized the way relay/adaptor/anthropic's package
// separates Anthropic-API-key behavior from the teacher's broader
// adaptor set.
package anthropicoauth

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/Laisky/errors/v2"

	"github.com/1-api-gateway/relaygw/internal/executor"
)

const oauthBetaHeader = "oauth-2025-04-20"

// restrictedName matches the identifier set Anthropic's OAuth endpoint
// accepts for tool names: letters, digits, and underscores only.
var restrictedName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
var disallowedChar = regexp.MustCompile(`[^A-Za-z0-9_]`)

type Executor struct{}

func NewExecutor() *Executor { return &Executor{} }

func (e *Executor) Execute(ctx context.Context, req *executor.Request) (*executor.Response, error) {
	url := strings.TrimRight(req.Provider.BaseURL, "/") + req.Provider.ChatPath + "?beta=true"

	headers := make(http.Header)
	headers.Set("Content-Type", "application/json")
	headers.Set("anthropic-version", "2023-06-01")
	headers.Set("anthropic-beta", oauthBetaHeader)
	headers.Set("Authorization", "Bearer "+req.Connection.AccessToken)
	if req.Stream {
		headers.Set("Accept", "text/event-stream")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, newBodyReader(req.Body))
	if err != nil {
		return nil, errors.Wrap(err, "build anthropic oauth request")
	}
	httpReq.Header = headers

	resp, err := executor.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "do anthropic oauth request")
	}
	return &executor.Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: resp.Body}, nil
}

func newBodyReader(body []byte) *strings.Reader {
	return strings.NewReader(string(body))
}

// SanitizeToolName rewrites name into Anthropic OAuth's restricted
// identifier charset, returning the original unchanged if it already
// conforms. Chat Core consults this before translating to Claude for an
// OAuth connection and keeps the returned map to reverse the renaming
// when tool_use blocks come back, per spec.md §3's "Tool-name map".
func SanitizeToolName(name string) string {
	if restrictedName.MatchString(name) {
		return name
	}
	return disallowedChar.ReplaceAllString(name, "_")
}

// BuildToolNameMap sanitizes every name in names and returns
// sanitized -> original, so the stream/response translator can restore
// the caller's original tool names.
func BuildToolNameMap(names []string) map[string]string {
	m := make(map[string]string, len(names))
	for _, n := range names {
		m[SanitizeToolName(n)] = n
	}
	return m
}

var _ executor.Executor = (*Executor)(nil)
