// Package gemini implements the Gemini-specific Executor: spec.md §4.3
// calls out Gemini's URL shape (`/{model}:streamGenerateContent?alt=sse`
// or `:generateContent`) and header selection (`x-goog-api-key` for
// apikey auth, `Authorization: Bearer` for OAuth) as distinct enough from
// the default executor to warrant its own strategy.
//
// Grounded on relay/adaptor/gemini's URL-suffix-per-mode convention
// (adapted from the teacher's `relay/adaptor/gemini/adaptor.go`, which
// picks `:generateContent` vs `:streamGenerateContent` off meta.IsStream).
package gemini

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/Laisky/errors/v2"

	"github.com/1-api-gateway/relaygw/internal/executor"
	"github.com/1-api-gateway/relaygw/internal/provider"
)

// Executor builds Gemini's :generateContent / :streamGenerateContent
// URLs and attaches either an x-goog-api-key or OAuth bearer header.
type Executor struct{}

func NewExecutor() *Executor { return &Executor{} }

func (e *Executor) Execute(ctx context.Context, req *executor.Request) (*executor.Response, error) {
	if req.Model == "" {
		return nil, errors.New("gemini executor: model is required to build the request url")
	}

	base := strings.TrimRight(req.Provider.BaseURL, "/")
	method := "generateContent"
	suffix := ""
	if req.Stream {
		method = "streamGenerateContent"
		suffix = "?alt=sse"
	}
	reqURL := base + "/models/" + url.PathEscape(req.Model) + ":" + method + suffix

	headers := make(http.Header)
	headers.Set("Content-Type", "application/json")
	if req.Stream {
		headers.Set("Accept", "text/event-stream")
	}
	if req.Connection.AuthType == provider.AuthOAuth {
		headers.Set("Authorization", "Bearer "+req.Connection.AccessToken)
	} else {
		headers.Set("x-goog-api-key", req.Connection.APIKey)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(string(req.Body)))
	if err != nil {
		return nil, errors.Wrap(err, "build gemini request")
	}
	httpReq.Header = headers

	resp, err := executor.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "do gemini request")
	}
	return &executor.Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: resp.Body}, nil
}

var _ executor.Executor = (*Executor)(nil)
