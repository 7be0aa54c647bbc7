package chat

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/Laisky/errors/v2"
	glog "github.com/Laisky/go-utils/v5/log"
	"github.com/Laisky/zap"

	"github.com/1-api-gateway/relaygw/internal/credential"
	"github.com/1-api-gateway/relaygw/internal/executor"
	"github.com/1-api-gateway/relaygw/internal/executor/anthropicoauth"
	"github.com/1-api-gateway/relaygw/internal/executor/kiro"
	"github.com/1-api-gateway/relaygw/internal/fallback"
	"github.com/1-api-gateway/relaygw/internal/pricing"
	"github.com/1-api-gateway/relaygw/internal/provider"
	"github.com/1-api-gateway/relaygw/internal/reqlog"
	"github.com/1-api-gateway/relaygw/internal/streampipe"
	"github.com/1-api-gateway/relaygw/internal/translate"
	"github.com/1-api-gateway/relaygw/internal/usage"
	"github.com/1-api-gateway/relaygw/internal/wireformat"
	"github.com/1-api-gateway/relaygw/internal/wiremodel"
)

const maxRefreshRetries = 3

// Core implements spec.md §4.8's single-account-attempt pipeline.
type Core struct {
	Providers  *provider.Registry
	Translator *translate.Registry
	Dispatch   *Dispatcher
	Usage      *usage.Recorder
	Ledger     *reqlog.Ledger
	Log        glog.Logger
}

// AttemptInput is one account's worth of input to Chat Core.
type AttemptInput struct {
	Body                       []byte
	AnthropicVersionHeaderSeen bool
	UserAgent                  string
	RequestId                  string
	Model                      string
	ProviderId                 string
	TargetFormatOverride       *wireformat.Format
	Writer                     streampipe.Writer // non-nil only for a streaming client request
	ResponseBodyOut            io.Writer         // non-streaming: where to copy the final upstream JSON
	Persist                    credential.PersistFunc
	ClearError                 func()
}

// AttemptOutcome reports how the attempt ended, for the Chat Handler's
// fallback decision (spec.md §4.7).
type AttemptOutcome struct {
	Handled       bool // true once any response (success, bypass, or fatal) has been written
	StatusCode    int
	Err           error
	Fallback      fallback.Decision
	RefreshFailed bool
}

// Attempt runs spec.md §4.8 steps 1-10 for one (model, connection) pair.
func (c *Core) Attempt(ctx context.Context, p *provider.Provider, conn *credential.Connection, in AttemptInput) AttemptOutcome {
	snap := &reqlog.Snapshot{RequestId: in.RequestId, ClientBody: in.Body}
	defer snap.Emit(c.Log)

	src := wireformat.Detect(in.Body, in.AnthropicVersionHeaderSeen)
	if IsBypassProbe(peekHubShape(in.Body), in.UserAgent) {
		return c.writeBypass(in, in.Model)
	}

	tgt := p.PreferredFormat
	if in.TargetFormatOverride != nil {
		tgt = *in.TargetFormatOverride
	}
	snap.SourceFormat, snap.TargetFormat = src, tgt

	exec := c.Dispatch.For(p, conn)
	var sanitize func(*wiremodel.ChatRequest)
	if _, anthropicOAuth := exec.(*anthropicoauth.Executor); anthropicOAuth {
		sanitize = sanitizeToolNames
	}

	translated, hub, err := c.Translator.TranslateRequest(src, tgt, in.Model, in.Body, in.Writer != nil, sanitize)
	if err != nil {
		return AttemptOutcome{Handled: true, StatusCode: http.StatusBadRequest, Err: errors.Wrap(err, "translate request")}
	}
	snap.TranslatedBody = translated

	var toolNameMap map[string]string
	if hub != nil {
		toolNameMap = hub.ToolNameMap
	}

	done := c.Usage.BeginRequest(in.Model)
	defer done()
	if err := c.Ledger.Append(reqlog.Line{When: time.Now(), Model: in.Model, Provider: p.Id, Account: conn.Id, Status: "PENDING"}); err != nil {
		c.Log.Warn("append pending log line failed", zap.Error(err))
	}

	req := &executor.Request{Provider: p, Connection: conn, Model: in.Model, Body: translated, Stream: in.Writer != nil}
	snap.UpstreamURL = p.BaseURL + p.ChatPath

	resp, err := exec.Execute(ctx, req)
	if err != nil {
		snap.ResponseErr = err
		c.appendLog(in, p, conn, "FAILED")
		return AttemptOutcome{Handled: false, Fallback: fallback.Classify(0, nil, false, conn.ConsecutiveFailures())}
	}
	snap.ResponseStatus = resp.StatusCode
	snap.UpstreamHeaders = resp.Header

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		resp.Body.Close()
		if refreshErr := c.refreshWithRetry(ctx, p, conn, in.Persist); refreshErr != nil {
			c.appendLog(in, p, conn, "FAILED")
			return AttemptOutcome{
				Handled:       false,
				RefreshFailed: true,
				Fallback:      fallback.Classify(resp.StatusCode, nil, true, conn.ConsecutiveFailures()),
			}
		}
		resp, err = exec.Execute(ctx, req)
		if err != nil {
			c.appendLog(in, p, conn, "FAILED")
			return AttemptOutcome{Handled: false, Fallback: fallback.Classify(0, nil, false, conn.ConsecutiveFailures())}
		}
		snap.ResponseStatus = resp.StatusCode
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		snap.ResponseBody = body
		c.appendLog(in, p, conn, "FAILED")
		retryAfter := fallback.ParseRetryAfter(resp.Header.Get("Retry-After"))
		return AttemptOutcome{
			Handled:  false,
			Fallback: fallback.Classify(resp.StatusCode, retryAfter, false, conn.ConsecutiveFailures()),
		}
	}

	if in.ClearError != nil {
		in.ClearError()
	}
	conn.RecordSuccess()

	if in.Writer == nil {
		return c.finishNonStreaming(resp, p, conn, in, snap, toolNameMap)
	}
	return c.finishStreaming(ctx, resp, src, tgt, p, conn, in, snap, toolNameMap)
}

// peekHubShape best-effort decodes body as an OpenAI-hub-shaped request
// (top-level "model"/"messages" with {role, content} entries) purely for
// the bypass check: several source wire formats (OpenAI, Qwen, iFlow,
// OpenRouter, Claude) already share this shape closely enough that a
// lenient decode catches the common warmup-probe case; formats that
// don't (Gemini's "contents") simply fail to match and the request
// proceeds through the normal translate path unaffected.
func peekHubShape(body []byte) *wiremodel.ChatRequest {
	var req wiremodel.ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return &wiremodel.ChatRequest{}
	}
	return &req
}

func (c *Core) finishNonStreaming(resp *executor.Response, p *provider.Provider, conn *credential.Connection, in AttemptInput, snap *reqlog.Snapshot, toolNameMap map[string]string) AttemptOutcome {
	defer resp.Body.Close()

	var body []byte
	var err error
	if p.Id == "kiro" {
		msg, reason, aggErr := kiro.Aggregate(resp.Body)
		if aggErr != nil {
			return AttemptOutcome{Handled: true, StatusCode: http.StatusBadGateway, Err: errors.Wrap(aggErr, "aggregate kiro response")}
		}
		aggregated := &wiremodel.ChatResponse{
			Id:     "kiro-" + in.RequestId,
			Object: "chat.completion",
			Model:  in.Model,
			Choices: []wiremodel.Choice{{
				Index:        0,
				Message:      msg,
				FinishReason: &reason,
			}},
		}
		body, err = json.Marshal(aggregated)
		if err != nil {
			return AttemptOutcome{Handled: true, StatusCode: http.StatusBadGateway, Err: errors.Wrap(err, "marshal aggregated kiro response")}
		}
	} else {
		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return AttemptOutcome{Handled: true, StatusCode: http.StatusBadGateway, Err: errors.Wrap(err, "read upstream response")}
		}
	}

	body, err = restoreResponseToolNames(toolNameMap, body)
	if err != nil {
		return AttemptOutcome{Handled: true, StatusCode: http.StatusBadGateway, Err: errors.Wrap(err, "restore tool names")}
	}
	snap.ResponseBody = body

	tokens := extractUsage(p.PreferredFormat, body)
	c.Usage.Record(context.Background(), p.Id, in.Model, conn.Id, tokens, time.Now())
	c.appendLog(in, p, conn, "OK")

	if in.ResponseBodyOut != nil {
		if _, err := in.ResponseBodyOut.Write(body); err != nil {
			return AttemptOutcome{Handled: true, StatusCode: http.StatusOK, Err: errors.Wrap(err, "write response body")}
		}
	}
	return AttemptOutcome{Handled: true, StatusCode: http.StatusOK}
}

func (c *Core) finishStreaming(ctx context.Context, resp *executor.Response, src, tgt wireformat.Format, p *provider.Provider, conn *credential.Connection, in AttemptInput, snap *reqlog.Snapshot, toolNameMap map[string]string) AttemptOutcome {
	defer resp.Body.Close()

	mutate := restoreStreamToolNames(toolNameMap)

	var result *streampipe.Result
	var err error
	if p.Id == "kiro" {
		result, err = pipeKiro(ctx, resp.Body, in.Writer, src, c.Translator.Stream(), mutate)
	} else {
		result, err = streampipe.Pipe(ctx, resp.Body, in.Writer, src, tgt, c.Translator.Stream(), c.Log, mutate)
	}
	if err != nil {
		return AttemptOutcome{Handled: true, StatusCode: http.StatusBadGateway, Err: errors.Wrap(err, "pipe stream")}
	}

	tokens := pricing.Tokens{
		Prompt:        result.Usage.Usage.PromptTokens,
		Completion:    result.Usage.Usage.CompletionTokens,
		Cached:        result.Usage.Usage.CachedTokens,
		Reasoning:     result.Usage.Usage.ReasoningTokens,
		CacheCreation: result.Usage.Usage.CacheCreationTokens,
	}
	c.Usage.Record(context.Background(), p.Id, in.Model, conn.Id, tokens, time.Now())

	status := "OK"
	if result.Disconnected {
		status = "499"
	}
	c.appendLog(in, p, conn, status)
	return AttemptOutcome{Handled: true, StatusCode: http.StatusOK}
}

// refreshWithRetry implements spec.md §4.8 step 7's "refresh and retry the
// call, up to 3 refresh attempts before giving up and falling back."
func (c *Core) refreshWithRetry(ctx context.Context, p *provider.Provider, conn *credential.Connection, persist credential.PersistFunc) error {
	refresh := executorRefresher(p)
	if refresh == nil {
		return errors.New("no refresh method available for provider")
	}

	var lastErr error
	for attempt := 0; attempt < maxRefreshRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * 200 * time.Millisecond)
		}
		result, err := refresh(ctx, conn)
		if err != nil {
			lastErr = err
			continue
		}
		conn.AccessToken = result.AccessToken
		if result.RefreshToken != "" {
			conn.RefreshToken = result.RefreshToken
		}
		conn.ExpiresAt = time.Now().Add(result.ExpiresIn)
		for k, v := range result.ProviderData {
			if conn.ProviderData == nil {
				conn.ProviderData = map[string]string{}
			}
			conn.ProviderData[k] = v
		}
		if persist != nil {
			if err := persist(conn); err != nil {
				return errors.Wrap(err, "persist refreshed credentials")
			}
		}
		return nil
	}
	return lastErr
}

func (c *Core) appendLog(in AttemptInput, p *provider.Provider, conn *credential.Connection, status string) {
	if err := c.Ledger.Append(reqlog.Line{
		When: time.Now(), Model: in.Model, Provider: p.Id, Account: conn.Id, Status: status,
	}); err != nil {
		c.Log.Warn("append request log line failed", zap.Error(err))
	}
}

func (c *Core) writeBypass(in AttemptInput, model string) AttemptOutcome {
	resp := SyntheticOK(model)
	if in.ResponseBodyOut != nil {
		out, err := json.Marshal(resp)
		if err != nil {
			return AttemptOutcome{Handled: true, StatusCode: http.StatusInternalServerError, Err: err}
		}
		if _, err := in.ResponseBodyOut.Write(out); err != nil {
			return AttemptOutcome{Handled: true, StatusCode: http.StatusInternalServerError, Err: err}
		}
	}
	return AttemptOutcome{Handled: true, StatusCode: http.StatusOK}
}
