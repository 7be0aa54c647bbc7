package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/1-api-gateway/relaygw/internal/config"
)

func withPort(t *testing.T, port string) {
	t.Helper()
	prev := config.Port
	config.Port = port
	t.Cleanup(func() { config.Port = prev })
}

func TestRun_UnreachableDaemonExitsTwo(t *testing.T) {
	withPort(t, "1") // nothing listens on a privileged low port in test

	var buf bytes.Buffer
	code := run([]string{"status"}, &buf)
	require.Equal(t, 2, code)
	require.Contains(t, buf.String(), "not reachable")
}

func TestRun_StatusRendersConnectionsTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/connections", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"connections":[{"id":"c1","providerId":"openai","authType":"apikey","testStatus":"active","isActive":true}]}`))
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	withPort(t, u.Port())

	var buf bytes.Buffer
	code := run([]string{"status"}, &buf)
	require.Equal(t, 0, code)
	require.Contains(t, buf.String(), "openai")
	require.Contains(t, buf.String(), "c1")
}

func TestRun_HealthzReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	withPort(t, u.Port())

	var buf bytes.Buffer
	code := run([]string{"healthz"}, &buf)
	require.Equal(t, 0, code)
	require.Contains(t, buf.String(), "up")
}

func TestRun_UnknownSubcommandExitsOne(t *testing.T) {
	withPort(t, strconv.Itoa(1))

	var buf bytes.Buffer
	code := run([]string{"bogus"}, &buf)
	require.Equal(t, 1, code)
}
