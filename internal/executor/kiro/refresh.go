package kiro

import (
	"context"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssooidc"

	"github.com/1-api-gateway/relaygw/internal/credential"
)

// RefreshSSOOIDC implements the social-auth variant of the Kiro refresh
// method (spec.md §4.3 "a separate AWS SSO-OIDC path for the social-auth
// variant"). Unlike the plain JSON {refreshToken} refresh
// (internal/executor.NewRefresher's RefreshKiroJSON case), social-auth
// Kiro connections were issued by AWS's SSO-OIDC device-authorization
// flow and must be renewed through that service's CreateToken API rather
// than a bespoke REST endpoint.
//
// Grounded on relay/adaptor/aws/adaptor.go's use of aws-sdk-go-v2's
// config/credentials packages (promoted here to the actual service client
// those packages exist to support, github.com/aws/aws-sdk-go-v2/service/ssooidc,
// rather than hand-rolling the refresh-token grant as a raw POST).
func RefreshSSOOIDC(region string) credential.RefreshFunc {
	client := ssooidc.New(ssooidc.Options{Region: region})

	return func(ctx context.Context, conn *credential.Connection) (*credential.RefreshResult, error) {
		clientId := conn.ProviderData["ssoClientId"]
		clientSecret := conn.ProviderData["ssoClientSecret"]
		if clientId == "" || clientSecret == "" {
			return nil, errors.New("kiro sso-oidc refresh: missing ssoClientId/ssoClientSecret")
		}

		out, err := client.CreateToken(ctx, &ssooidc.CreateTokenInput{
			ClientId:     aws.String(clientId),
			ClientSecret: aws.String(clientSecret),
			GrantType:    aws.String("refresh_token"),
			RefreshToken: aws.String(conn.RefreshToken),
		})
		if err != nil {
			return nil, errors.Wrap(err, "kiro sso-oidc create token")
		}

		result := &credential.RefreshResult{
			RefreshToken: conn.RefreshToken,
			ExpiresIn:    time.Duration(out.ExpiresIn) * time.Second,
		}
		if out.AccessToken != nil {
			result.AccessToken = *out.AccessToken
		}
		if out.RefreshToken != nil {
			result.RefreshToken = *out.RefreshToken
		}
		if out.IdToken != nil {
			result.ProviderData = map[string]string{"id_token": *out.IdToken}
		}
		return result, nil
	}
}
