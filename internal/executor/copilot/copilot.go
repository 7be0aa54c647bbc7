// Package copilot implements the GitHub Copilot specialized executor.
// Copilot's chat-completions endpoint additionally requires an
// Editor-Version and a Copilot-Integration-Id header beyond the default
// executor's Bearer-auth branch, so it gets its own strategy rather than
// overloading DefaultExecutor's header switch.
//
// Grounded on the default executor's Bearer-header branch
// (relay/adaptor/common.go's SetupCommonRequestHeader pattern of adding
// fixed extra headers alongside the common Content-Type/Accept pair).
package copilot

import (
	"context"
	"net/http"
	"strings"

	"github.com/Laisky/errors/v2"

	"github.com/1-api-gateway/relaygw/internal/executor"
)

const (
	editorVersion        = "vscode/1.96.0"
	copilotIntegrationId = "vscode-chat"
)

type Executor struct{}

func NewExecutor() *Executor { return &Executor{} }

func (e *Executor) Execute(ctx context.Context, req *executor.Request) (*executor.Response, error) {
	url := strings.TrimRight(req.Provider.BaseURL, "/") + req.Provider.ChatPath

	headers := make(http.Header)
	headers.Set("Content-Type", "application/json")
	headers.Set("Authorization", "Bearer "+req.Connection.AccessToken)
	headers.Set("Editor-Version", editorVersion)
	headers.Set("Copilot-Integration-Id", copilotIntegrationId)
	if req.Stream {
		headers.Set("Accept", "text/event-stream")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(req.Body)))
	if err != nil {
		return nil, errors.Wrap(err, "build copilot request")
	}
	httpReq.Header = headers

	resp, err := executor.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "do copilot request")
	}
	return &executor.Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: resp.Body}, nil
}

var _ executor.Executor = (*Executor)(nil)
