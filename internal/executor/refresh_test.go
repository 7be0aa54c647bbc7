package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/1-api-gateway/relaygw/internal/credential"
	"github.com/1-api-gateway/relaygw/internal/provider"
)

func TestNewRefresher_JSONStyleSendsJSONBodyAndParsesTokens(t *testing.T) {
	var gotContentType string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"new-access","expires_in":3600}`))
	}))
	defer srv.Close()

	p := &provider.Provider{RefreshStyle: provider.RefreshJSON, OAuthTokenURL: srv.URL, OAuthClientId: "client-1"}
	refresh := NewRefresher(p)
	require.NotNil(t, refresh)

	conn := &credential.Connection{RefreshToken: "old-refresh"}
	result, err := refresh(context.Background(), conn)
	require.NoError(t, err)
	require.Equal(t, "application/json", gotContentType)
	require.Equal(t, "old-refresh", gotBody["refresh_token"])
	require.Equal(t, "new-access", result.AccessToken)
	require.Equal(t, "old-refresh", result.RefreshToken)
}

func TestNewRefresher_FormStyleSendsFormEncodedBody(t *testing.T) {
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, r.ParseForm())
		require.Equal(t, "old-refresh", r.PostForm.Get("refresh_token"))
		_, _ = w.Write([]byte(`{"access_token":"fresh","refresh_token":"rotated","expires_in":60}`))
	}))
	defer srv.Close()

	p := &provider.Provider{RefreshStyle: provider.RefreshFormEncoded, OAuthTokenURL: srv.URL}
	refresh := NewRefresher(p)

	result, err := refresh(context.Background(), &credential.Connection{RefreshToken: "old-refresh"})
	require.NoError(t, err)
	require.Equal(t, "application/x-www-form-urlencoded", gotContentType)
	require.Equal(t, "fresh", result.AccessToken)
	require.Equal(t, "rotated", result.RefreshToken)
}

func TestNewRefresher_BasicAuthStyleSetsAuthorizationHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"access_token":"fresh","expires_in":60}`))
	}))
	defer srv.Close()

	p := &provider.Provider{RefreshStyle: provider.RefreshBasicAuth, OAuthTokenURL: srv.URL, OAuthClientId: "id"}
	refresh := NewRefresher(p)

	conn := &credential.Connection{RefreshToken: "rt", ProviderData: map[string]string{"clientSecret": "secret"}}
	_, err := refresh(context.Background(), conn)
	require.NoError(t, err)
	require.Equal(t, "Basic aWQ6c2VjcmV0", gotAuth)
}

func TestNewRefresher_KiroJSONStyleSendsRefreshTokenOnly(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"access_token":"fresh","expires_in":120}`))
	}))
	defer srv.Close()

	p := &provider.Provider{RefreshStyle: provider.RefreshKiroJSON, OAuthTokenURL: srv.URL}
	refresh := NewRefresher(p)

	_, err := refresh(context.Background(), &credential.Connection{RefreshToken: "kiro-rt"})
	require.NoError(t, err)
	require.Equal(t, "kiro-rt", gotBody["refreshToken"])
}

func TestNewRefresher_NonRefreshableProviderReturnsNilFunc(t *testing.T) {
	p := &provider.Provider{RefreshStyle: provider.RefreshNone}
	require.Nil(t, NewRefresher(p))
}

func TestNewRefresher_NonSuccessStatusIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := &provider.Provider{RefreshStyle: provider.RefreshJSON, OAuthTokenURL: srv.URL}
	refresh := NewRefresher(p)
	_, err := refresh(context.Background(), &credential.Connection{RefreshToken: "rt"})
	require.Error(t, err)
}
