package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/1-api-gateway/relaygw/internal/chat"
	"github.com/1-api-gateway/relaygw/internal/config"
	"github.com/1-api-gateway/relaygw/internal/credential"
	"github.com/1-api-gateway/relaygw/internal/logger"
	"github.com/1-api-gateway/relaygw/internal/metrics"
	"github.com/1-api-gateway/relaygw/internal/pricing"
	"github.com/1-api-gateway/relaygw/internal/provider"
	"github.com/1-api-gateway/relaygw/internal/store"
	"github.com/1-api-gateway/relaygw/internal/usage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*Server, *store.DB) {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	reg := provider.NewRegistry()
	require.NoError(t, db.LoadNodes(reg))

	conns := credential.NewStore()
	table := pricing.NewTable()
	require.NoError(t, db.LoadPricing(table))

	rec := usage.NewRecorder(filepath.Join(t.TempDir(), "usage.json"), 100, table, metrics.NewRecorder(prometheus.NewRegistry()), logger.Logger)
	require.NoError(t, rec.Load())

	handler := &chat.Handler{
		Aliases:     db,
		Providers:   reg,
		Connections: conns,
		Core:        &chat.Core{Log: logger.Logger},
		Persist:     db.PutConnection,
		Log:         logger.Logger,
	}

	return &Server{
		Handler:     handler,
		Store:       db,
		Connections: conns,
		Providers:   reg,
		Pricing:     table,
		Usage:       rec,
		Log:         logger.Logger,
	}, db
}

func doRequest(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(b)
	} else {
		reader = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s.NewRouter(), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRequestID_GeneratedWhenAbsentAndEchoed(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s.NewRouter(), http.MethodGet, "/healthz", nil)
	require.NotEmpty(t, rec.Header().Get("X-Relaygw-Request-Id"))
}

func TestRequestID_CallerSuppliedIsPreserved(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Relaygw-Request-Id", "fixed-id")
	rec := httptest.NewRecorder()
	s.NewRouter().ServeHTTP(rec, req)
	require.Equal(t, "fixed-id", rec.Header().Get("X-Relaygw-Request-Id"))
}

func TestAdminAuth_GatesConfigRoutesWhenTokenConfigured(t *testing.T) {
	prev := config.AdminToken
	config.AdminToken = "secret"
	t.Cleanup(func() { config.AdminToken = prev })

	s, _ := newTestServer(t)
	router := s.NewRouter()

	rec := doRequest(t, router, http.MethodGet, "/v1/connections", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/connections", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminAuth_DisabledWhenNoTokenConfigured(t *testing.T) {
	prev := config.AdminToken
	config.AdminToken = ""
	t.Cleanup(func() { config.AdminToken = prev })

	s, _ := newTestServer(t)
	rec := doRequest(t, s.NewRouter(), http.MethodGet, "/v1/connections", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestConnectionCRUD_PutListDeleteRoundTrip(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.NewRouter()

	rec := doRequest(t, router, http.MethodPut, "/v1/connections/c1", map[string]any{
		"providerId": "openai", "authType": "apikey", "apiKey": "sk-secret", "isActive": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "sk-secret")

	rec = doRequest(t, router, http.MethodGet, "/v1/connections", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"id":"c1"`)

	require.Equal(t, 1, len(s.Connections.All("openai")))

	rec = doRequest(t, router, http.MethodDelete, "/v1/connections/c1", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, s.Connections.All("openai"))
}

func TestAliasCRUD_PutListDeleteRoundTrip(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.NewRouter()

	rec := doRequest(t, router, http.MethodPut, "/v1/aliases/fast", map[string]any{
		"providerId": "openai", "model": "gpt-5-mini",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/v1/aliases", nil)
	require.Contains(t, rec.Body.String(), "gpt-5-mini")

	rec = doRequest(t, router, http.MethodDelete, "/v1/aliases/fast", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/v1/aliases", nil)
	require.JSONEq(t, `{"aliases":[]}`, rec.Body.String())
}

func TestComboCRUD_PutListDeleteRoundTrip(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.NewRouter()

	rec := doRequest(t, router, http.MethodPut, "/v1/combos/all-fast", map[string]any{
		"models": []string{"fast", "openai/gpt-5"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/v1/combos", nil)
	require.Contains(t, rec.Body.String(), "all-fast")

	rec = doRequest(t, router, http.MethodDelete, "/v1/combos/all-fast", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestPutNode_RegistersLiveProvider(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.NewRouter()

	rec := doRequest(t, router, http.MethodPut, "/v1/nodes/my-node", map[string]any{
		"baseUrl": "https://example.com", "anthropicCompatible": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	_, ok := s.Providers.Get("my-node")
	require.True(t, ok)
}

func TestPricingCRUD_PutUpdatesLiveTable(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.NewRouter()

	rec := doRequest(t, router, http.MethodPut, "/v1/pricing", map[string]any{
		"providerId": "openai", "model": "gpt-5", "input": 1.5, "output": 3,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	entry, ok := s.Pricing.Lookup("openai", "gpt-5")
	require.True(t, ok)
	require.Equal(t, 1.5, entry.Input)
}

func TestSettingCRUD_PutGetRoundTrip(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.NewRouter()

	rec := doRequest(t, router, http.MethodPut, "/v1/settings/theme", map[string]any{"value": "dark"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/v1/settings/theme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"name":"theme","value":"dark"}`, rec.Body.String())
}

func TestSettingGet_MissingReturnsNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s.NewRouter(), http.MethodGet, "/v1/settings/ghost", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleModels_MergesAliasesAndActiveConnections(t *testing.T) {
	s, db := newTestServer(t)
	require.NoError(t, db.PutAlias("fast", "openai", "gpt-5-mini"))
	require.NoError(t, db.PutConnection(&credential.Connection{
		Id: "c1", ProviderId: "openai", DefaultModel: "gpt-5", IsActive: true,
	}))
	s.Connections.Put(&credential.Connection{Id: "c1", ProviderId: "openai", DefaultModel: "gpt-5", IsActive: true})

	rec := doRequest(t, s.NewRouter(), http.MethodGet, "/v1/models", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "fast")
	require.Contains(t, rec.Body.String(), "openai/gpt-5")
}

func TestServeChat_UnresolvedAliasRendersJSONError(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s.NewRouter(), http.MethodPost, "/v1/chat/completions", map[string]any{
		"model": "no-such-model", "messages": []map[string]string{{"role": "user", "content": "hi"}},
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "unknown model or alias")
}

func TestServeChat_NoConnectionsConfiguredRendersServiceUnavailable(t *testing.T) {
	s, db := newTestServer(t)
	require.NoError(t, db.PutAlias("fast", "openai", "gpt-5-mini"))

	rec := doRequest(t, s.NewRouter(), http.MethodPost, "/v1/chat/completions", map[string]any{
		"model": "fast", "messages": []map[string]string{{"role": "user", "content": "hi"}},
	})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleGenerateContent_StreamSuffixDetectsSSE(t *testing.T) {
	s, db := newTestServer(t)
	require.NoError(t, db.PutAlias("gem", "gemini", "gemini-2.5-pro"))

	req := httptest.NewRequest(http.MethodPost, "/v1beta/models/gem:streamGenerateContent", bytes.NewBufferString(`{"model":"gem"}`))
	rec := httptest.NewRecorder()
	s.NewRouter().ServeHTTP(rec, req)

	// No connections configured for "gemini" either way; what matters here
	// is that the request reaches the Chat Handler (proving the stream
	// suffix routed correctly) rather than 404-ing on the route itself.
	require.NotEqual(t, http.StatusNotFound, rec.Code)
}
