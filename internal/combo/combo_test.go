package combo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/1-api-gateway/relaygw/internal/logger"
)

func TestRun_StopsOnFirstSuccess(t *testing.T) {
	var tried []string
	attempt := func(ctx context.Context, model string) error {
		tried = append(tried, model)
		return nil
	}

	err := Run(context.Background(), []string{"gpt-5", "claude-sonnet", "gemini-pro"}, attempt, logger.Logger)
	require.NoError(t, err)
	require.Equal(t, []string{"gpt-5"}, tried)
}

func TestRun_FallsThroughRetryableFailuresToNextModel(t *testing.T) {
	var tried []string
	attempt := func(ctx context.Context, model string) error {
		tried = append(tried, model)
		if model == "gemini-pro" {
			return nil
		}
		return &RetryableError{Model: model, Err: errTest("all accounts exhausted")}
	}

	err := Run(context.Background(), []string{"gpt-5", "claude-sonnet", "gemini-pro"}, attempt, logger.Logger)
	require.NoError(t, err)
	require.Equal(t, []string{"gpt-5", "claude-sonnet", "gemini-pro"}, tried)
}

func TestRun_SurfacesFatalErrorImmediatelyWithoutTryingLaterModels(t *testing.T) {
	var tried []string
	fatal := errTest("missing model field")
	attempt := func(ctx context.Context, model string) error {
		tried = append(tried, model)
		if model == "claude-sonnet" {
			return fatal
		}
		return &RetryableError{Model: model, Err: errTest("exhausted")}
	}

	err := Run(context.Background(), []string{"gpt-5", "claude-sonnet", "gemini-pro"}, attempt, logger.Logger)
	require.ErrorIs(t, err, fatal)
	require.Equal(t, []string{"gpt-5", "claude-sonnet"}, tried)
}

func TestRun_ExhaustedAllModelsReturns503Error(t *testing.T) {
	attempt := func(ctx context.Context, model string) error {
		return &RetryableError{Model: model, Err: errTest("no accounts")}
	}

	err := Run(context.Background(), []string{"gpt-5", "claude-sonnet"}, attempt, logger.Logger)
	require.Error(t, err)
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 503, exhausted.StatusCode())
	require.Equal(t, []string{"gpt-5", "claude-sonnet"}, exhausted.Models)
}

func TestRun_EmptyModelListIsAnError(t *testing.T) {
	err := Run(context.Background(), nil, func(ctx context.Context, model string) error { return nil }, logger.Logger)
	require.Error(t, err)
}

func TestSubstituteModel_RewritesModelFieldPreservingOtherFields(t *testing.T) {
	body := []byte(`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}],"stream":true}`)
	out, err := SubstituteModel(body, "gpt-5")
	require.NoError(t, err)
	require.Contains(t, string(out), `"model":"gpt-5"`)
	require.Contains(t, string(out), `"stream":true`)
	require.Contains(t, string(out), `"content":"hi"`)
}

type errTest string

func (e errTest) Error() string { return string(e) }
