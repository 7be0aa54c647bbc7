package executor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/Laisky/errors/v2"

	"github.com/1-api-gateway/relaygw/internal/credential"
	"github.com/1-api-gateway/relaygw/internal/provider"
)

// NewRefresher builds the credential.RefreshFunc for p's RefreshStyle, per
// spec.md §4.3's "Refresh methods": JSON body for Anthropic, form-encoded
// for OpenAI/Codex/Qwen/Google, Basic auth for iFlow, JSON {refreshToken}
// for Kiro. The AWS SSO-OIDC social-auth variant (RefreshKiroSSOOIDC) is
// not produced here — it needs the `aws-sdk-go-v2/service/ssooidc` client
// rather than a plain POST, and lives in executor/kiro as
// kiro.RefreshSSOOIDC so this package never depends on its own strategy
// subpackages (see the executor/kiro doc comment).
//
// Grounded on relay/adaptor/*'s per-provider token-refresh request
// builders (each adaptor owns its own refresh body shape) generalized
// into one switch over RefreshStyle, since all four remaining shapes here
// are simple enough to share a transport helper.
func NewRefresher(p *provider.Provider) credential.RefreshFunc {
	switch p.RefreshStyle {
	case provider.RefreshJSON:
		return jsonRefresh(p)
	case provider.RefreshFormEncoded:
		return formRefresh(p)
	case provider.RefreshBasicAuth:
		return basicAuthRefresh(p)
	case provider.RefreshKiroJSON:
		return kiroJSONRefresh(p)
	default:
		return nil
	}
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IdToken      string `json:"id_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func doRefreshRequest(ctx context.Context, method, targetURL string, headers http.Header, body []byte) (*refreshResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, targetURL, newBodyReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build refresh request")
	}
	req.Header = headers

	resp, err := HTTPClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do refresh request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Errorf("refresh request failed with status %d", resp.StatusCode)
	}

	var parsed refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errors.Wrap(err, "decode refresh response")
	}
	return &parsed, nil
}

func toResult(conn *credential.Connection, parsed *refreshResponse, providerData map[string]string) *credential.RefreshResult {
	refreshToken := parsed.RefreshToken
	if refreshToken == "" {
		refreshToken = conn.RefreshToken
	}
	result := &credential.RefreshResult{
		AccessToken:  parsed.AccessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    time.Duration(parsed.ExpiresIn) * time.Second,
		ProviderData: providerData,
	}
	if parsed.IdToken != "" {
		if result.ProviderData == nil {
			result.ProviderData = map[string]string{}
		}
		result.ProviderData["id_token"] = parsed.IdToken
	}
	return result
}

func jsonRefresh(p *provider.Provider) credential.RefreshFunc {
	return func(ctx context.Context, conn *credential.Connection) (*credential.RefreshResult, error) {
		body, err := json.Marshal(map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": conn.RefreshToken,
			"client_id":     p.OAuthClientId,
		})
		if err != nil {
			return nil, errors.Wrap(err, "marshal json refresh body")
		}
		headers := make(http.Header)
		headers.Set("Content-Type", "application/json")
		parsed, err := doRefreshRequest(ctx, http.MethodPost, p.OAuthTokenURL, headers, body)
		if err != nil {
			return nil, err
		}
		return toResult(conn, parsed, nil), nil
	}
}

func formRefresh(p *provider.Provider) credential.RefreshFunc {
	return func(ctx context.Context, conn *credential.Connection) (*credential.RefreshResult, error) {
		form := url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {conn.RefreshToken},
			"client_id":     {p.OAuthClientId},
		}
		headers := make(http.Header)
		headers.Set("Content-Type", "application/x-www-form-urlencoded")
		parsed, err := doRefreshRequest(ctx, http.MethodPost, p.OAuthTokenURL, headers, []byte(form.Encode()))
		if err != nil {
			return nil, err
		}
		return toResult(conn, parsed, nil), nil
	}
}

func basicAuthRefresh(p *provider.Provider) credential.RefreshFunc {
	return func(ctx context.Context, conn *credential.Connection) (*credential.RefreshResult, error) {
		form := url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {conn.RefreshToken},
		}
		headers := make(http.Header)
		headers.Set("Content-Type", "application/x-www-form-urlencoded")
		headers.Set("Authorization", "Basic "+basicAuthValue(p.OAuthClientId, conn.ProviderData["clientSecret"]))
		parsed, err := doRefreshRequest(ctx, http.MethodPost, p.OAuthTokenURL, headers, []byte(form.Encode()))
		if err != nil {
			return nil, err
		}
		return toResult(conn, parsed, nil), nil
	}
}

func kiroJSONRefresh(p *provider.Provider) credential.RefreshFunc {
	return func(ctx context.Context, conn *credential.Connection) (*credential.RefreshResult, error) {
		body, err := json.Marshal(map[string]string{"refreshToken": conn.RefreshToken})
		if err != nil {
			return nil, errors.Wrap(err, "marshal kiro refresh body")
		}
		headers := make(http.Header)
		headers.Set("Content-Type", "application/json")
		parsed, err := doRefreshRequest(ctx, http.MethodPost, p.OAuthTokenURL, headers, body)
		if err != nil {
			return nil, err
		}
		return toResult(conn, parsed, nil), nil
	}
}

func basicAuthValue(user, pass string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
}
