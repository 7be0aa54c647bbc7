package httpserver

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/Laisky/errors/v2"
)

// sseWriter adapts gin's http.ResponseWriter into streampipe.Writer
// (spec.md §4.9). The SSE response headers are only committed on the
// first frame, not at construction: the Chat Handler decides a request
// is "streaming" (and builds this writer) before it knows whether
// resolution or the upstream call will even succeed, and once a 200
// status line is sent there is no way to later report a 400/404/503
// instead. Deferring WriteHeader keeps the gin handler free to render a
// normal JSON error for anything that fails before the first chunk.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher

	headerOnce sync.Once
	headerSent atomic.Bool
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support flushing")
	}
	return &sseWriter{w: w, flusher: flusher}, nil
}

func (s *sseWriter) sendHeader() {
	s.headerOnce.Do(func() {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("Connection", "keep-alive")
		s.w.WriteHeader(http.StatusOK)
		s.headerSent.Store(true)
	})
}

// committed reports whether the 200 status line has already gone out,
// so the caller knows whether a failure must be reported as an in-stream
// error frame instead of a normal JSON response.
func (s *sseWriter) committed() bool { return s.headerSent.Load() }

func (s *sseWriter) WriteFrame(payload []byte) error {
	s.sendHeader()
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return errors.Wrap(err, "write sse frame")
	}
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) Flush() { s.flusher.Flush() }

// writeErrorFrame emits spec.md §7's "in-stream SSE error frame" for a
// request that has already committed its 200 status line before failing
// (e.g. the upstream connection dropped mid-stream).
func (s *sseWriter) writeErrorFrame(message string) {
	_ = s.WriteFrame([]byte(fmt.Sprintf(`{"error":%q}`, message)))
}
