package reqlog

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/1-api-gateway/relaygw/internal/config"
)

func TestLedger_AppendWritesFormattedLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.txt")
	l := NewLedger(path)

	when := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, l.Append(Line{
		When: when, Model: "gpt-5", Provider: "openai", Account: "acct-1",
		SentTokens: 10, RecvTokens: 20, Status: "200",
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "02-01-2026 03:04:05 | gpt-5 | openai | acct-1 | 10 | 20 | 200\n", string(data))
}

func TestLedger_TrimsToConfiguredLineLimit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.txt")
	l := NewLedger(path)

	original := config.LogLineLimit
	config.LogLineLimit = 3
	defer func() { config.LogLineLimit = original }()

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Append(Line{Model: "m", Provider: "p", Account: "a", Status: "200"}))
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 3)
}

func TestSnapshot_EmitIsNoopWhenRequestLogsDisabled(t *testing.T) {
	original := config.EnableRequestLogs
	config.EnableRequestLogs = false
	defer func() { config.EnableRequestLogs = original }()

	s := &Snapshot{RequestId: "req-1"}
	s.Emit(nil) // must not touch the nil logger when disabled
}

func TestRedactHeaders_StripsSecretValues(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer secret")
	h.Set("Content-Type", "application/json")

	redacted := redactHeaders(h)
	require.Equal(t, "***", redacted.Get("Authorization"))
	require.Equal(t, "application/json", redacted.Get("Content-Type"))
}

func TestTruncate_LeavesShortBodyUnchanged(t *testing.T) {
	body := []byte("short")
	require.Equal(t, body, truncate(body, previewLimit))
}
