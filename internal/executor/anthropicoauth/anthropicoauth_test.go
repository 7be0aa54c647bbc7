package anthropicoauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/1-api-gateway/relaygw/internal/credential"
	"github.com/1-api-gateway/relaygw/internal/executor"
	"github.com/1-api-gateway/relaygw/internal/provider"
)

func TestExecutor_SetsOAuthBetaHeaderAndBearerAuth(t *testing.T) {
	var gotBeta, gotAuth, gotURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBeta = r.Header.Get("anthropic-beta")
		gotAuth = r.Header.Get("Authorization")
		gotURL = r.URL.String()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := &provider.Provider{Id: "claude", BaseURL: srv.URL, ChatPath: "/messages"}
	conn := &credential.Connection{AuthType: provider.AuthOAuth, AccessToken: "tok"}

	e := NewExecutor()
	resp, err := e.Execute(context.Background(), &executor.Request{Provider: p, Connection: conn, Body: []byte(`{}`)})
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, "oauth-2025-04-20", gotBeta)
	require.Equal(t, "Bearer tok", gotAuth)
	require.Equal(t, "/messages?beta=true", gotURL)
}

func TestSanitizeToolName_LeavesConformingNamesUnchanged(t *testing.T) {
	require.Equal(t, "get_weather", SanitizeToolName("get_weather"))
}

func TestSanitizeToolName_ReplacesDisallowedCharacters(t *testing.T) {
	require.Equal(t, "get_weather_v2", SanitizeToolName("get-weather.v2"))
}

func TestBuildToolNameMap_MapsSanitizedBackToOriginal(t *testing.T) {
	m := BuildToolNameMap([]string{"get-weather", "search_docs"})
	require.Equal(t, "get-weather", m["get_weather"])
	require.Equal(t, "search_docs", m["search_docs"])
}
