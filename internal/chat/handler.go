package chat

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/Laisky/errors/v2"
	glog "github.com/Laisky/go-utils/v5/log"

	"github.com/1-api-gateway/relaygw/internal/combo"
	"github.com/1-api-gateway/relaygw/internal/credential"
	"github.com/1-api-gateway/relaygw/internal/provider"
	"github.com/1-api-gateway/relaygw/internal/streampipe"
	"github.com/1-api-gateway/relaygw/internal/wireformat"
)

// AliasResolution is what an alias or combo name resolves to: the
// provider every model in the list belongs to, and the ordered model
// list to try (length 1 for a plain alias, >1 for a combo, spec.md
// §4.6).
type AliasResolution struct {
	ProviderId           string
	Models               []string
	TargetFormatOverride *wireformat.Format
}

// AliasResolver is the minimal interface the Chat Handler needs from the
// (out-of-scope, per spec.md §1) storage collaborator: turning a
// client-facing model name into the provider and upstream model(s) to
// call. internal/store provides the bbolt-backed implementation.
type AliasResolver interface {
	Resolve(model string) (AliasResolution, bool)
}

// HandlerRequest is the top-level, not-yet-dispatched-to-any-account
// client request, spec.md §4.7's entry point.
type HandlerRequest struct {
	Body                       []byte
	AnthropicVersionHeaderSeen bool
	UserAgent                  string
	RequestId                  string
	Writer                     streampipe.Writer
	ResponseBodyOut            io.Writer
}

// Handler implements spec.md §4.7: parse the request, resolve its model
// to a provider and model list, and loop accounts (and, for a combo,
// models) until one succeeds or every option is exhausted.
type Handler struct {
	Aliases     AliasResolver
	Providers   *provider.Registry
	Connections *credential.Store
	Core        *Core
	Persist     credential.PersistFunc
	Log         glog.Logger
}

// Serve runs the full per-request pipeline and returns the HTTP status
// ultimately written to the client.
func (h *Handler) Serve(ctx context.Context, req HandlerRequest) (int, error) {
	model, err := peekModel(req.Body)
	if err != nil || model == "" {
		return http.StatusBadRequest, errors.New("request is missing a \"model\" field")
	}

	resolution, ok := h.Aliases.Resolve(model)
	if !ok {
		return http.StatusNotFound, errors.Errorf("unknown model or alias %q", model)
	}

	p, ok := h.Providers.Get(resolution.ProviderId)
	if !ok {
		return http.StatusInternalServerError, errors.Errorf("alias %q resolves to unregistered provider %q", model, resolution.ProviderId)
	}

	var lastOutcome AttemptOutcome
	attempt := func(ctx context.Context, upstreamModel string) error {
		outcome := h.attemptAccountLoop(ctx, p, upstreamModel, req)
		lastOutcome = outcome
		if outcome.Handled {
			return nil
		}
		return &combo.RetryableError{Model: upstreamModel, Err: outcome.Err}
	}

	if len(resolution.Models) <= 1 {
		singleModel := model
		if len(resolution.Models) == 1 {
			singleModel = resolution.Models[0]
		}
		if err := attempt(ctx, singleModel); err != nil {
			return h.statusFor(lastOutcome, err)
		}
		return lastOutcome.StatusCode, lastOutcome.Err
	}

	if err := combo.Run(ctx, resolution.Models, attempt, h.Log); err != nil {
		return h.statusFor(lastOutcome, err)
	}
	return lastOutcome.StatusCode, nil
}

func (h *Handler) statusFor(outcome AttemptOutcome, err error) (int, error) {
	var exhausted *combo.ExhaustedError
	if errors.As(err, &exhausted) {
		return http.StatusServiceUnavailable, exhausted
	}
	if outcome.StatusCode != 0 {
		return outcome.StatusCode, err
	}
	return http.StatusBadGateway, err
}

// attemptAccountLoop implements spec.md §4.7's inner loop for one model:
// select the next eligible account, hand it to Chat Core, and on a
// fallback-eligible failure mark the account unavailable and try the
// next one, until an account succeeds, a fatal (non-fallback) error is
// hit, or accounts are exhausted.
func (h *Handler) attemptAccountLoop(ctx context.Context, p *provider.Provider, model string, req HandlerRequest) AttemptOutcome {
	tried := map[string]bool{}
	var last AttemptOutcome

	for {
		conn, err := h.Connections.SelectExcluding(ctx, p.Id, tried, executorRefresher(p), h.Persist, h.Log)
		if err != nil {
			return AttemptOutcome{Handled: false, Err: errors.Wrap(err, "select account")}
		}
		if conn == nil {
			if last.Err == nil {
				last.Err = errors.Errorf("no available connection for provider %q", p.Id)
			}
			return AttemptOutcome{Handled: false, StatusCode: http.StatusServiceUnavailable, Err: last.Err}
		}
		tried[conn.Id] = true

		outcome := h.Core.Attempt(ctx, p, conn, AttemptInput{
			Body:                       req.Body,
			AnthropicVersionHeaderSeen: req.AnthropicVersionHeaderSeen,
			UserAgent:                  req.UserAgent,
			RequestId:                  req.RequestId,
			Model:                      model,
			ProviderId:                p.Id,
			Writer:                     req.Writer,
			ResponseBodyOut:            req.ResponseBodyOut,
			Persist:                    h.Persist,
		})
		last = outcome

		if outcome.Handled {
			return outcome
		}
		if !outcome.Fallback.ShouldFallback {
			return outcome
		}
		conn.RecordFailure(outcome.StatusCode, errString(outcome.Err), time.Now().Add(outcome.Fallback.Cooldown))
	}
}

func peekModel(body []byte) (string, error) {
	var probe struct {
		Model string `json:"model"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return "", errors.Wrap(err, "parse request body")
	}
	return probe.Model, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
