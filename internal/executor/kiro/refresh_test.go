package kiro

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/1-api-gateway/relaygw/internal/credential"
)

func TestRefreshSSOOIDC_MissingClientCredentialsIsAnError(t *testing.T) {
	refresh := RefreshSSOOIDC("us-east-1")
	_, err := refresh(context.Background(), &credential.Connection{RefreshToken: "rt"})
	require.Error(t, err)
}
