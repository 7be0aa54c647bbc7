// Package streampipe implements the single-threaded cooperative SSE
// transform pipeline described in spec.md §4.9: scan upstream `data:`
// frames, translate each to the target format, and write downstream one
// chunk at a time, with disconnect detection and a final usage persist.
//
// Grounded on relay/adaptor/openai_compatible/unified_streaming.go's
// scanner-based SSE loop (bufio.Scanner over bufio.ScanLines, a
// `data:`-prefix check, and a StreamingContext accumulating cross-chunk
// state) — the richest streaming-loop grounding file in the pack.
package streampipe

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/Laisky/errors/v2"
	glog "github.com/Laisky/go-utils/v5/log"
	"github.com/Laisky/zap"

	"github.com/1-api-gateway/relaygw/internal/translate"
	"github.com/1-api-gateway/relaygw/internal/wireformat"
	"github.com/1-api-gateway/relaygw/internal/wiremodel"
)

const dataPrefix = "data:"

// Writer is the downstream sink: one SSE `data: ...\n\n` frame per call.
// Passed in so the HTTP layer (gin) owns the actual response writer and
// flush semantics; this package never imports gin.
type Writer interface {
	WriteFrame(payload []byte) error
	Flush()
}

// Result is returned after the pipe drains, for the caller (Chat Core) to
// persist a usage entry and append a request-log snapshot.
type Result struct {
	Usage        translate.StreamState
	Disconnected bool
	ChunkCount   int
}

// Pipe reads SSE frames from upstream, translates src->tgt chunk by
// chunk, and writes each to w. If ctx is canceled (the downstream
// consumer disconnected), reading stops immediately and Result.Disconnected
// is set — spec.md §4.9's "aborted via its signal ... 499 status is
// logged" is the caller's responsibility once it sees this flag. mutate,
// when non-nil, is applied to each hub chunk before it is rendered into
// tgt's shape (spec.md §3's tool-name map reversal); pass nil when no
// such rewrite applies.
func Pipe(ctx context.Context, upstream io.Reader, w Writer, src, tgt wireformat.Format, reg *translate.StreamRegistry, log glog.Logger, mutate func(*wiremodel.ChatStreamChunk)) (*Result, error) {
	state := translate.NewStreamState()
	result := &Result{}

	scanner := bufio.NewScanner(upstream)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(bufio.ScanLines)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			result.Disconnected = true
			return result, nil
		default:
		}

		line := scanner.Text()
		payload, ok := dataPayload(line)
		if !ok {
			continue
		}
		if payload == "[DONE]" {
			break
		}
		if !json.Valid([]byte(payload)) {
			log.Warn("malformed stream chunk, skipping")
			continue
		}

		chunks, err := reg.Translate(src, tgt, []byte(payload), state, mutate)
		if err != nil {
			log.Warn("failed to translate stream chunk, skipping", zap.Error(err))
			continue
		}
		for _, c := range chunks {
			if err := w.WriteFrame(c); err != nil {
				return result, errors.Wrap(err, "write downstream frame")
			}
			result.ChunkCount++
		}
		w.Flush()
	}

	if err := scanner.Err(); err != nil {
		return result, errors.Wrap(err, "read upstream stream")
	}

	for _, term := range reg.Terminator(tgt, state) {
		if err := w.WriteFrame(term); err != nil {
			return result, errors.Wrap(err, "write stream terminator")
		}
	}
	w.Flush()

	result.Usage = *state
	return result, nil
}

func dataPayload(line string) (string, bool) {
	if !strings.HasPrefix(line, dataPrefix) {
		return "", false
	}
	payload := strings.TrimSpace(line[len(dataPrefix):])
	if payload == "" {
		return "", false
	}
	return payload, true
}

// Passthrough copies upstream frames to w verbatim (src == tgt, or the
// caller chose not to translate), still honoring the one-chunk-at-a-time
// backpressure rule and disconnect detection.
func Passthrough(ctx context.Context, upstream io.Reader, w Writer) (*Result, error) {
	result := &Result{}
	scanner := bufio.NewScanner(upstream)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(bufio.ScanLines)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			result.Disconnected = true
			return result, nil
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := w.WriteFrame(append(append([]byte{}, line...), '\n')); err != nil {
			return result, errors.Wrap(err, "write downstream frame")
		}
		result.ChunkCount++
		w.Flush()
	}
	if err := scanner.Err(); err != nil {
		return result, errors.Wrap(err, "read upstream stream")
	}
	return result, nil
}
