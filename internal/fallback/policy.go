// Package fallback classifies an upstream call's outcome into a retry /
// try-next-account / fatal decision with an associated cooldown duration,
// per spec.md §4.5.
//
// Grounded on monitor/channel.go's status-driven "should disable this
// channel" idiom from the teacher, adapted from a DB channel-disable
// side effect into a pure decision function the credential selector and
// chat core consult.
package fallback

import (
	"math"
	"strconv"
	"time"

	"github.com/1-api-gateway/relaygw/internal/config"
)

// Decision is the {shouldFallback, cooldownMs} pair spec.md §4.5 returns.
type Decision struct {
	ShouldFallback bool
	Cooldown       time.Duration
}

// Classify implements spec.md §4.5's rule table. status is the upstream
// HTTP status (0 for a network/abort error); retryAfter is the parsed
// `retry-after` header value if present (nil otherwise); refreshFailed
// indicates a 401/403 occurred after a refresh attempt already failed;
// consecutiveFailures feeds the exponential 429 backoff.
func Classify(status int, retryAfter *time.Duration, refreshFailed bool, consecutiveFailures int) Decision {
	switch {
	case status == 0:
		return Decision{true, config.FallbackCooldownNetwork}
	case status == 429:
		if retryAfter != nil {
			return Decision{true, *retryAfter}
		}
		return Decision{true, exponentialBackoff(consecutiveFailures)}
	case status == 401 || status == 403:
		if refreshFailed {
			return Decision{true, config.FallbackCooldownAuth}
		}
		return Decision{false, 0}
	case status == 402 || status == 451:
		return Decision{true, config.FallbackCooldownQuota}
	case status >= 500 && status < 600:
		return Decision{true, config.FallbackCooldown5xx}
	case status >= 400 && status < 500:
		return Decision{false, 0}
	default:
		return Decision{false, 0}
	}
}

func exponentialBackoff(consecutiveFailures int) time.Duration {
	ms := math.Pow(2, float64(consecutiveFailures))
	max := float64(config.FallbackCooldown429Max / time.Millisecond)
	if ms > max {
		ms = max
	}
	return time.Duration(ms) * time.Millisecond
}

// ParseRetryAfter parses a `Retry-After` header value, which per HTTP may
// be either an integer count of seconds or an HTTP-date; the HTTP-date
// form is not produced by the providers this gateway targets, so only the
// integer-seconds form is handled (falls back to nil otherwise).
func ParseRetryAfter(header string) *time.Duration {
	if header == "" {
		return nil
	}
	secs, err := strconv.Atoi(header)
	if err != nil {
		return nil
	}
	d := time.Duration(secs) * time.Second
	return &d
}
