package credential

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/1-api-gateway/relaygw/internal/logger"
)

func signedIdToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{"exp": exp.Unix(), "sub": "user-1"}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("unused-test-key"))
	require.NoError(t, err)
	return tok
}

func newActiveConn(id string, priority int) *Connection {
	return &Connection{Id: id, ProviderId: "openai", Priority: priority, IsActive: true, CreatedAt: time.Now()}
}

func TestStore_SelectOrdersByPriorityThenCreation(t *testing.T) {
	s := NewStore()
	low := newActiveConn("low-priority", 5)
	high := newActiveConn("high-priority", 1)
	s.Put(low)
	s.Put(high)

	got, err := s.Select(context.Background(), "openai", "", nil, nil, logger.Logger)
	require.NoError(t, err)
	require.Equal(t, "high-priority", got.Id)
}

func TestStore_SelectSkipsCooldownAndExcluded(t *testing.T) {
	s := NewStore()
	cooling := newActiveConn("cooling", 1)
	cooling.CooldownUntil = time.Now().Add(time.Hour)
	ready := newActiveConn("ready", 2)
	s.Put(cooling)
	s.Put(ready)

	got, err := s.Select(context.Background(), "openai", "", nil, nil, logger.Logger)
	require.NoError(t, err)
	require.Equal(t, "ready", got.Id)

	got2, err := s.Select(context.Background(), "openai", "ready", nil, nil, logger.Logger)
	require.NoError(t, err)
	require.Nil(t, got2)
}

func TestStore_SelectReturnsNilWhenNoneEligible(t *testing.T) {
	s := NewStore()
	got, err := s.Select(context.Background(), "openai", "", nil, nil, logger.Logger)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestStore_SelectTriggersProactiveRefreshNearExpiry(t *testing.T) {
	s := NewStore()
	conn := newActiveConn("near-expiry", 1)
	conn.AccessToken = "stale"
	conn.ExpiresAt = time.Now().Add(time.Minute)
	s.Put(conn)

	var refreshCalls int
	refresh := func(ctx context.Context, c *Connection) (*RefreshResult, error) {
		refreshCalls++
		return &RefreshResult{AccessToken: "fresh", ExpiresIn: time.Hour}, nil
	}
	var persisted *Connection
	persist := func(c *Connection) error {
		persisted = c
		return nil
	}

	got, err := s.Select(context.Background(), "openai", "", refresh, persist, logger.Logger)
	require.NoError(t, err)
	require.Equal(t, 1, refreshCalls)
	require.Equal(t, "fresh", got.AccessToken)
	require.Equal(t, "near-expiry", persisted.Id)
}

func TestStore_SelectReturnsUnchangedWhenRefreshFails(t *testing.T) {
	s := NewStore()
	conn := newActiveConn("refresh-fails", 1)
	conn.AccessToken = "stale"
	conn.ExpiresAt = time.Now().Add(time.Minute)
	s.Put(conn)

	refresh := func(ctx context.Context, c *Connection) (*RefreshResult, error) {
		return nil, errTestRefresh
	}

	got, err := s.Select(context.Background(), "openai", "", refresh, nil, logger.Logger)
	require.NoError(t, err)
	require.Equal(t, "stale", got.AccessToken)
}

func TestStore_SelectPeeksIdTokenExpiryWhenExpiresAtMissing(t *testing.T) {
	s := NewStore()
	conn := newActiveConn("id-token-only", 1)
	conn.AccessToken = "stale"
	conn.IdToken = signedIdToken(t, time.Now().Add(time.Minute))
	s.Put(conn)

	var refreshCalls int
	refresh := func(ctx context.Context, c *Connection) (*RefreshResult, error) {
		refreshCalls++
		return &RefreshResult{AccessToken: "fresh", ExpiresIn: time.Hour}, nil
	}

	got, err := s.Select(context.Background(), "openai", "", refresh, nil, logger.Logger)
	require.NoError(t, err)
	require.Equal(t, 1, refreshCalls)
	require.Equal(t, "fresh", got.AccessToken)
}

func TestPeekIdTokenExpiry_ReadsExpClaimWithoutVerifyingSignature(t *testing.T) {
	want := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	got, ok := peekIdTokenExpiry(signedIdToken(t, want))
	require.True(t, ok)
	require.Equal(t, want.Unix(), got.Unix())
}

func TestPeekIdTokenExpiry_ReturnsFalseForGarbage(t *testing.T) {
	_, ok := peekIdTokenExpiry("not-a-jwt")
	require.False(t, ok)
}

func TestConnection_RecordFailureAndSuccess(t *testing.T) {
	c := newActiveConn("flaky", 1)
	c.RecordFailure(500, "boom", time.Now().Add(time.Minute))
	require.Equal(t, StatusError, c.TestStatus)
	require.Equal(t, 1, c.ConsecutiveFailures())

	c.RecordSuccess()
	require.Equal(t, StatusActive, c.TestStatus)
	require.Equal(t, 0, c.ConsecutiveFailures())
	require.True(t, c.CooldownUntil.IsZero())
}

func TestConnection_RecordFailureTruncatesLongMessages(t *testing.T) {
	c := newActiveConn("verbose", 1)
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	c.RecordFailure(500, string(long), time.Now())
	require.Len(t, c.LastError, 100)
}

type testError string

func (e testError) Error() string { return string(e) }

var errTestRefresh = testError("refresh failed")

func TestConnection_RedactedStripsSecrets(t *testing.T) {
	c := newActiveConn("conn-1", 1)
	c.APIKey = "sk-secret"
	c.AccessToken = "at-secret"
	c.RefreshToken = "rt-secret"

	summary := c.Redacted()
	require.Equal(t, "conn-1", summary.Id)
	require.Equal(t, "openai", summary.ProviderId)
	data, err := json.Marshal(summary)
	require.NoError(t, err)
	require.NotContains(t, string(data), "secret")
}
