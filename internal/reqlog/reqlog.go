// Package reqlog implements spec.md §4.8 step 3's five canonical
// per-request debug snapshots (raw client body, detected formats,
// translated upstream body, upstream URL/headers, final response or
// error) plus the plain-text `log.txt` one-line-per-request ledger
// described in spec.md §6.
//
// Grounded on relay/controller/debug_logging.go's DebugResponseWriter /
// loggingReadCloser body-preview-capture idiom and its
// zap.ByteString("body_preview", ...)-style structured debug log calls.
package reqlog

import (
	"bufio"
	"bytes"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Laisky/errors/v2"
	glog "github.com/Laisky/go-utils/v5/log"
	"github.com/Laisky/zap"

	"github.com/1-api-gateway/relaygw/internal/config"
	"github.com/1-api-gateway/relaygw/internal/wireformat"
)

const previewLimit = 4096

// Snapshot accumulates the five canonical debug-log fields for one
// request. A zero Snapshot is ready to use; fields are filled in as the
// request progresses through Chat Core and flushed with Emit.
type Snapshot struct {
	RequestId       string
	ClientBody      []byte
	SourceFormat    wireformat.Format
	TargetFormat    wireformat.Format
	TranslatedBody  []byte
	UpstreamURL     string
	UpstreamHeaders http.Header
	ResponseBody    []byte
	ResponseErr     error
	ResponseStatus  int
}

// Emit writes the snapshot as a single structured DEBUG log entry when
// config.EnableRequestLogs is set; otherwise it is a no-op, matching
// spec.md §4.8's "written to disk for debugging when enabled."
func (s *Snapshot) Emit(log glog.Logger) {
	if !config.EnableRequestLogs {
		return
	}
	fields := []zap.Field{
		zap.String("request_id", s.RequestId),
		zap.String("source_format", string(s.SourceFormat)),
		zap.String("target_format", string(s.TargetFormat)),
		zap.String("upstream_url", s.UpstreamURL),
		zap.Int("response_status", s.ResponseStatus),
		zap.ByteString("client_body_preview", truncate(s.ClientBody, previewLimit)),
		zap.ByteString("translated_body_preview", truncate(s.TranslatedBody, previewLimit)),
		zap.ByteString("response_body_preview", truncate(s.ResponseBody, previewLimit)),
	}
	if s.UpstreamHeaders != nil {
		fields = append(fields, zap.Any("upstream_headers", redactHeaders(s.UpstreamHeaders)))
	}
	if s.ResponseErr != nil {
		log.Debug("request failed", append(fields, zap.Error(s.ResponseErr))...)
		return
	}
	log.Debug("request completed", fields...)
}

func truncate(body []byte, limit int) []byte {
	if len(body) <= limit {
		return body
	}
	return body[:limit]
}

// redactHeaders strips Authorization/x-api-key/x-goog-api-key values
// before they reach a log line, per spec.md's "secrets never leave the
// boundary" invariant for connections.
func redactHeaders(h http.Header) http.Header {
	redacted := h.Clone()
	for _, key := range []string{"Authorization", "x-api-key", "x-goog-api-key"} {
		if redacted.Get(key) != "" {
			redacted.Set(key, "***")
		}
	}
	return redacted
}

// Line is one row of log.txt: spec.md §6's
// `dd-mm-yyyy HH:MM:SS | model | PROVIDER | account | sentTokens | recvTokens | status`.
type Line struct {
	When       time.Time
	Model      string
	Provider   string
	Account    string
	SentTokens int
	RecvTokens int
	Status     string
}

// Ledger appends Lines to a plain-text file, trimming it to the most
// recent config.LogLineLimit lines after every append.
type Ledger struct {
	mu   sync.Mutex
	path string
}

// NewLedger returns a Ledger backed by path (usually
// $HOME/.relaygw/log.txt).
func NewLedger(path string) *Ledger {
	return &Ledger{path: path}
}

// Append formats line and appends it to the ledger file, then trims the
// file to config.LogLineLimit lines.
func (l *Ledger) Append(line Line) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return errors.Wrap(err, "create log dir")
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "open log.txt")
	}
	text := formatLine(line)
	if _, err := f.WriteString(text + "\n"); err != nil {
		f.Close()
		return errors.Wrap(err, "write log.txt line")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "close log.txt")
	}

	return l.trim()
}

func formatLine(l Line) string {
	return fmt.Sprintf("%s | %s | %s | %s | %d | %d | %s",
		l.When.Format("02-01-2006 15:04:05"), l.Model, l.Provider, l.Account, l.SentTokens, l.RecvTokens, l.Status)
}

func (l *Ledger) trim() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "read log.txt for trim")
	}

	lines := splitLines(data)
	if len(lines) <= config.LogLineLimit {
		return nil
	}
	trimmed := lines[len(lines)-config.LogLineLimit:]

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	for _, line := range trimmed {
		if _, err := w.WriteString(line + "\n"); err != nil {
			return errors.Wrap(err, "buffer trimmed log.txt")
		}
	}
	if err := w.Flush(); err != nil {
		return errors.Wrap(err, "flush trimmed log.txt buffer")
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return errors.Wrap(err, "write trimmed log.txt tmp file")
	}
	return errors.Wrap(os.Rename(tmp, l.path), "rename trimmed log.txt tmp file")
}

func splitLines(data []byte) []string {
	text := string(bytes.TrimRight(data, "\n"))
	if text == "" {
		return nil
	}
	var lines []string
	start := 0
	for i, b := range text {
		if b == '\n' {
			lines = append(lines, text[start:i])
			start = i + 1
		}
	}
	lines = append(lines, text[start:])
	return lines
}
