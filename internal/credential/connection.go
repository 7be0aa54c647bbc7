// Package credential implements the provider connection (account) record
// and the ordered selector described in spec.md §3/§4.4: cooldown
// tracking, priority ordering, and proactive refresh ahead of expiry.
//
// Grounded on the teacher's model/channel.go ability-selection idiom
// (ordered-priority channel selection with a disabled/cooldown state
// machine), adapted from a DB-backed multi-channel abilities table to an
// in-memory per-provider connection list matching this gateway's simpler
// single-process account model.
package credential

import (
	"context"
	"time"

	"github.com/Laisky/errors/v2"
	glog "github.com/Laisky/go-utils/v5/log"
	"github.com/Laisky/zap"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/1-api-gateway/relaygw/internal/config"
	"github.com/1-api-gateway/relaygw/internal/provider"
)

// TestStatus is the connection's last-observed health.
type TestStatus string

const (
	StatusActive  TestStatus = "active"
	StatusError   TestStatus = "error"
	StatusUnknown TestStatus = "unknown"
)

// Connection is a provider connection (account), spec.md §3.
type Connection struct {
	Id              string
	ProviderId      string
	AuthType        provider.AuthType
	DisplayName     string
	Priority        int  // per-provider ordering, lower wins
	GlobalPriority  *int // optional cross-provider override
	DefaultModel    string
	CreatedAt       time.Time

	// Secret material. Never serialized back to API responses (spec.md §3
	// invariant); callers are expected to redact before any external echo.
	APIKey       string
	AccessToken  string
	RefreshToken string
	IdToken      string
	ExpiresAt    time.Time
	ProviderData map[string]string // e.g. profileArn, baseUrl, apiType

	// Operational state.
	TestStatus    TestStatus
	LastError     string
	LastErrorAt   time.Time
	CooldownUntil time.Time
	IsActive      bool

	consecutiveFailures int
}

// ConsecutiveFailures is read by the fallback policy's exponential-backoff
// rule (spec.md §4.5).
func (c *Connection) ConsecutiveFailures() int { return c.consecutiveFailures }

// Summary is the config-surface view of a connection with every secret
// field stripped, per spec.md §3's invariant that "secrets never leave
// the boundary in responses."
type Summary struct {
	Id             string            `json:"id"`
	ProviderId     string            `json:"providerId"`
	AuthType       provider.AuthType `json:"authType"`
	DisplayName    string            `json:"displayName"`
	Priority       int               `json:"priority"`
	GlobalPriority *int              `json:"globalPriority,omitempty"`
	DefaultModel   string            `json:"defaultModel,omitempty"`
	TestStatus     TestStatus        `json:"testStatus"`
	LastError      string            `json:"lastError,omitempty"`
	LastErrorAt    time.Time         `json:"lastErrorAt,omitempty"`
	CooldownUntil  time.Time         `json:"cooldownUntil,omitempty"`
	IsActive       bool              `json:"isActive"`
}

// Redacted builds c's Summary.
func (c *Connection) Redacted() Summary {
	return Summary{
		Id: c.Id, ProviderId: c.ProviderId, AuthType: c.AuthType, DisplayName: c.DisplayName,
		Priority: c.Priority, GlobalPriority: c.GlobalPriority, DefaultModel: c.DefaultModel,
		TestStatus: c.TestStatus, LastError: c.LastError, LastErrorAt: c.LastErrorAt,
		CooldownUntil: c.CooldownUntil, IsActive: c.IsActive,
	}
}

// RecordFailure marks the connection unavailable until cooldownUntil,
// bumping the consecutive-failure counter and recording the truncated
// error message (spec.md §4.5 "Mark-unavailable").
func (c *Connection) RecordFailure(status int, message string, cooldownUntil time.Time) {
	c.consecutiveFailures++
	c.LastError = truncate(message, 100)
	c.LastErrorAt = time.Now()
	c.CooldownUntil = cooldownUntil
	c.TestStatus = StatusError
}

// RecordSuccess clears cooldown/failure state after a successful call.
func (c *Connection) RecordSuccess() {
	c.consecutiveFailures = 0
	c.CooldownUntil = time.Time{}
	c.TestStatus = StatusActive
}

// peekIdTokenExpiry reads the "exp" claim out of an OAuth id_token without
// verifying its signature — the token was already minted by the provider's
// own auth server, so this is only a secondary expiry hint used when a
// refresh response omitted expires_in but carried an id_token (observed
// for some Google-style OAuth flows backing the Gemini executor).
func peekIdTokenExpiry(idToken string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(idToken, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// RefreshFunc performs the provider-specific token refresh and returns the
// new credential fields, or an error. Implemented per-provider by the
// executor package (spec.md §4.3 "Refresh methods").
type RefreshFunc func(ctx context.Context, conn *Connection) (*RefreshResult, error)

// RefreshResult is the normalized {accessToken, refreshToken, expiresIn,
// providerSpecificData} shape spec.md §4.3 requires every refresh method
// to return on 2xx.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string // reused from the request if the provider omits it
	ExpiresIn    time.Duration
	ProviderData map[string]string
}

// PersistFunc is invoked after a successful refresh so the caller can
// write the new tokens to durable storage (spec.md §4.4 "persist the new
// tokens via the provided callback").
type PersistFunc func(conn *Connection) error

// Store holds the in-memory connections, grouped by provider id. A real
// deployment backs it with internal/store; tests and the default
// in-process registry use this directly.
type Store struct {
	byProvider map[string][]*Connection
	group      singleflight.Group
}

func NewStore() *Store {
	return &Store{byProvider: map[string][]*Connection{}}
}

func (s *Store) Put(conn *Connection) {
	s.byProvider[conn.ProviderId] = append(s.byProvider[conn.ProviderId], conn)
}

func (s *Store) All(providerId string) []*Connection {
	return s.byProvider[providerId]
}

// AllProviders lists every provider id currently holding at least one
// connection, for the config surface's GET /v1/models merge (spec.md §6).
func (s *Store) AllProviders() []string {
	out := make([]string, 0, len(s.byProvider))
	for id := range s.byProvider {
		out = append(out, id)
	}
	return out
}

// Replace swaps the full connection set for one provider, used by the
// config CRUD surface to reload a provider's connections from durable
// storage after an add/update/delete without restarting the process.
func (s *Store) Replace(providerId string, conns []*Connection) {
	s.byProvider[providerId] = conns
}

// Select implements spec.md §4.4: order by (globalPriority asc if set,
// priority asc, creation order), filter to eligible connections, and
// proactively refresh a soon-to-expire access token before returning.
//
// Refresh calls for the same connection made concurrently are coalesced
// through singleflight (spec.md §9 "Refresh coalescing") rather than each
// issuing a duplicate network round-trip.
func (s *Store) Select(ctx context.Context, providerId, excludeConnectionId string, refresh RefreshFunc, persist PersistFunc, log glog.Logger) (*Connection, error) {
	var excluded map[string]bool
	if excludeConnectionId != "" {
		excluded = map[string]bool{excludeConnectionId: true}
	}
	return s.SelectExcluding(ctx, providerId, excluded, refresh, persist, log)
}

// SelectExcluding is Select generalized to a whole set of already-tried
// connection ids, for the Chat Handler's multi-account fallback loop
// (spec.md §4.7): each failed account is added to the set so the next
// Select call skips every account tried so far, not just the most recent
// one.
func (s *Store) SelectExcluding(ctx context.Context, providerId string, excluded map[string]bool, refresh RefreshFunc, persist PersistFunc, log glog.Logger) (*Connection, error) {
	candidates := eligible(s.byProvider[providerId], excluded)
	if len(candidates) == 0 {
		return nil, nil
	}

	best := candidates[0]
	if best.AccessToken == "" {
		return best, nil
	}
	expiresAt := best.ExpiresAt
	if expiresAt.IsZero() && best.IdToken != "" {
		if peeked, ok := peekIdTokenExpiry(best.IdToken); ok {
			expiresAt = peeked
		}
	}
	if expiresAt.IsZero() {
		return best, nil
	}
	if time.Until(expiresAt) >= config.CredentialRefreshBuffer {
		return best, nil
	}
	if refresh == nil {
		return best, nil
	}

	resultAny, err, _ := s.group.Do(best.Id, func() (any, error) {
		return refresh(ctx, best)
	})
	if err != nil {
		log.Warn("proactive credential refresh failed, returning unchanged", zap.String("connection", best.Id), zap.Error(err))
		return best, nil
	}
	result, ok := resultAny.(*RefreshResult)
	if !ok || result == nil {
		return best, nil
	}

	best.AccessToken = result.AccessToken
	if result.RefreshToken != "" {
		best.RefreshToken = result.RefreshToken
	}
	best.ExpiresAt = time.Now().Add(result.ExpiresIn)
	for k, v := range result.ProviderData {
		if best.ProviderData == nil {
			best.ProviderData = map[string]string{}
		}
		best.ProviderData[k] = v
	}

	if persist != nil {
		if err := persist(best); err != nil {
			return nil, errors.Wrap(err, "persist refreshed credentials")
		}
	}
	return best, nil
}

func eligible(conns []*Connection, excluded map[string]bool) []*Connection {
	now := time.Now()
	var out []*Connection
	for _, c := range conns {
		if !c.IsActive {
			continue
		}
		if excluded[c.Id] {
			continue
		}
		if c.CooldownUntil.After(now) {
			continue
		}
		out = append(out, c)
	}
	sortByPriority(out)
	return out
}

func sortByPriority(conns []*Connection) {
	// Stable insertion sort: the slice already reflects creation order,
	// which is the tiebreaker, so a stable sort preserves it.
	for i := 1; i < len(conns); i++ {
		j := i
		for j > 0 && less(conns[j], conns[j-1]) {
			conns[j], conns[j-1] = conns[j-1], conns[j]
			j--
		}
	}
}

func less(a, b *Connection) bool {
	ag, bg := a.GlobalPriority, b.GlobalPriority
	if ag != nil || bg != nil {
		av, bv := maxInt(), maxInt()
		if ag != nil {
			av = *ag
		}
		if bg != nil {
			bv = *bg
		}
		if av != bv {
			return av < bv
		}
	}
	return a.Priority < b.Priority
}

func maxInt() int { return int(^uint(0) >> 1) }
