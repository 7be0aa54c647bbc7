package chat

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/1-api-gateway/relaygw/internal/credential"
	"github.com/1-api-gateway/relaygw/internal/logger"
	"github.com/1-api-gateway/relaygw/internal/metrics"
	"github.com/1-api-gateway/relaygw/internal/pricing"
	"github.com/1-api-gateway/relaygw/internal/provider"
	"github.com/1-api-gateway/relaygw/internal/reqlog"
	"github.com/1-api-gateway/relaygw/internal/translate"
	"github.com/1-api-gateway/relaygw/internal/usage"
)

type stubResolver struct {
	resolution AliasResolution
	ok         bool
}

func (s stubResolver) Resolve(model string) (AliasResolution, bool) { return s.resolution, s.ok }

func newTestHandler(t *testing.T, upstream *httptest.Server, resolver AliasResolver) *Handler {
	t.Helper()
	dir := t.TempDir()

	providers := provider.NewRegistry()
	providers.Register(provider.Provider{
		Id:              "test-openai",
		BaseURL:         upstream.URL,
		ChatPath:        "/v1/chat/completions",
		PreferredFormat: "OPENAI",
		HeaderStyle:     provider.HeaderBearer,
	})

	conns := credential.NewStore()
	conns.Put(&credential.Connection{Id: "conn-1", ProviderId: "test-openai", AuthType: provider.AuthAPIKey, APIKey: "sk-test", IsActive: true})

	table := pricing.NewTable()
	rec := usage.NewRecorder(filepath.Join(dir, "usage.json"), 0, table, metrics.NewRecorder(prometheus.NewRegistry()), logger.Logger)
	ledger := reqlog.NewLedger(filepath.Join(dir, "log.txt"))

	core := &Core{
		Providers:  providers,
		Translator: translate.NewRegistry(),
		Dispatch:   NewDispatcher(),
		Usage:      rec,
		Ledger:     ledger,
		Log:        logger.Logger,
	}

	return &Handler{
		Aliases:     resolver,
		Providers:   providers,
		Connections: conns,
		Core:        core,
		Log:         logger.Logger,
	}
}

func TestHandler_Serve_SuccessfulNonStreamingRequest(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","object":"chat.completion","model":"gpt-5","choices":[{"index":0,"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":5}}`))
	}))
	defer upstream.Close()

	resolver := stubResolver{ok: true, resolution: AliasResolution{ProviderId: "test-openai", Models: []string{"gpt-5"}}}
	h := newTestHandler(t, upstream, resolver)

	var out bytes.Buffer
	status, err := h.Serve(context.Background(), HandlerRequest{
		Body:            []byte(`{"model":"my-alias","messages":[{"role":"user","content":"hello there friend"}]}`),
		RequestId:       "req-1",
		ResponseBodyOut: &out,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, out.String(), `"id":"x"`)
}

func TestHandler_Serve_MissingModelFieldIsBadRequest(t *testing.T) {
	h := newTestHandler(t, httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})), stubResolver{})
	status, err := h.Serve(context.Background(), HandlerRequest{Body: []byte(`{}`)})
	require.Error(t, err)
	require.Equal(t, http.StatusBadRequest, status)
}

func TestHandler_Serve_UnknownAliasIsNotFound(t *testing.T) {
	h := newTestHandler(t, httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})), stubResolver{ok: false})
	status, err := h.Serve(context.Background(), HandlerRequest{Body: []byte(`{"model":"ghost"}`)})
	require.Error(t, err)
	require.Equal(t, http.StatusNotFound, status)
}

func TestHandler_Serve_BypassProbeNeverReachesUpstream(t *testing.T) {
	called := false
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	defer upstream.Close()

	resolver := stubResolver{ok: true, resolution: AliasResolution{ProviderId: "test-openai", Models: []string{"gpt-5"}}}
	h := newTestHandler(t, upstream, resolver)

	var out bytes.Buffer
	status, err := h.Serve(context.Background(), HandlerRequest{
		Body:            []byte(`{"model":"my-alias","messages":[{"role":"user","content":"ping"}]}`),
		ResponseBodyOut: &out,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.False(t, called)
	require.Contains(t, out.String(), `"bypass-ok"`)
}

func TestHandler_Serve_NoEligibleConnectionIsServiceUnavailable(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer upstream.Close()

	resolver := stubResolver{ok: true, resolution: AliasResolution{ProviderId: "test-openai", Models: []string{"gpt-5"}}}
	h := newTestHandler(t, upstream, resolver)
	h.Connections = credential.NewStore() // no connections registered

	status, err := h.Serve(context.Background(), HandlerRequest{
		Body: []byte(`{"model":"my-alias","messages":[{"role":"user","content":"write something long"}]}`),
	})
	require.Error(t, err)
	require.Equal(t, http.StatusServiceUnavailable, status)
}

func TestHandler_Serve_UpstreamErrorFallsBackThenExhausts(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"boom"}}`))
	}))
	defer upstream.Close()

	resolver := stubResolver{ok: true, resolution: AliasResolution{ProviderId: "test-openai", Models: []string{"gpt-5"}}}
	h := newTestHandler(t, upstream, resolver)

	status, err := h.Serve(context.Background(), HandlerRequest{
		Body: []byte(`{"model":"my-alias","messages":[{"role":"user","content":"write something long"}]}`),
	})
	require.Error(t, err)
	require.Equal(t, http.StatusServiceUnavailable, status)
}
