// Package config centralizes gateway-wide tunables, following one-api's
// common/config convention of a flat set of package-level vars, each
// resolved from the environment at init time.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/1-api-gateway/relaygw/internal/env"
)

var (
	// DebugEnabled raises the logger to debug level and enables verbose
	// per-chunk streaming logs.
	DebugEnabled = env.Bool("DEBUG", false)

	// EnableRequestLogs toggles the five-snapshot per-request debug log
	// described in spec.md §4.8 step 3. Off by default: snapshots include
	// raw client bodies and are meant for local troubleshooting only.
	EnableRequestLogs = env.Bool("ENABLE_REQUEST_LOGS", false)

	// CloudURL is the optional external config-sync endpoint. The gateway
	// core never calls it directly; it is surfaced for the (out-of-scope)
	// cloud-sync collaborator to read.
	CloudURL = env.String("CLOUD_URL", "")

	// AppName names the on-disk state directory, $HOME/.<AppName>/.
	AppName = env.String("APP_NAME", "relaygw")

	// Port is the HTTP listen port.
	Port = env.String("PORT", "3000")

	// AdminToken gates the config-CRUD and /metrics endpoints (§6). Empty
	// disables the gate, matching one-api's "no password set yet" mode.
	AdminToken = env.String("ADMIN_TOKEN", "")

	// RequestTimeout is read from REQUEST_TIMEOUT_SECONDS (default 120 s).
	// No executor or request path applies it: upstream calls share
	// executor.HTTPClient, which sets no overall timeout.
	RequestTimeout = time.Duration(env.Int("REQUEST_TIMEOUT_SECONDS", 120)) * time.Second

	// CredentialRefreshBuffer is how far ahead of expiry the selector
	// proactively refreshes an access token (§4.4).
	CredentialRefreshBuffer = time.Duration(env.Int("CREDENTIAL_REFRESH_BUFFER_SECONDS", 300)) * time.Second

	// LogLineLimit is the number of lines log.txt is trimmed to after each
	// append (§6).
	LogLineLimit = env.Int("LOG_LINE_LIMIT", 200)

	// FallbackCooldown429Max is the ceiling for the exponential 429
	// backoff (§4.5).
	FallbackCooldown429Max = time.Duration(env.Int("FALLBACK_COOLDOWN_429_MAX_MS", 120_000)) * time.Millisecond
	// FallbackCooldownAuth is the cooldown after an unrecoverable 401/403.
	FallbackCooldownAuth = time.Duration(env.Int("FALLBACK_COOLDOWN_AUTH_MINUTES", 30)) * time.Minute
	// FallbackCooldownQuota is the cooldown for 402/451 quota-exhausted errors.
	FallbackCooldownQuota = time.Duration(env.Int("FALLBACK_COOLDOWN_QUOTA_HOURS", 24)) * time.Hour
	// FallbackCooldown5xx is the cooldown for upstream 5xx errors.
	FallbackCooldown5xx = time.Duration(env.Int("FALLBACK_COOLDOWN_5XX_SECONDS", 60)) * time.Second
	// FallbackCooldownNetwork is the cooldown for network/abort errors.
	FallbackCooldownNetwork = time.Duration(env.Int("FALLBACK_COOLDOWN_NETWORK_SECONDS", 10)) * time.Second
)

// Home returns $HOME/.<AppName>, creating it if necessary.
func Home() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, "."+AppName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}
