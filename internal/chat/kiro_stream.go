package chat

import (
	"context"
	"io"

	"github.com/Laisky/errors/v2"

	"github.com/1-api-gateway/relaygw/internal/executor/kiro"
	"github.com/1-api-gateway/relaygw/internal/streampipe"
	"github.com/1-api-gateway/relaygw/internal/translate"
	"github.com/1-api-gateway/relaygw/internal/wireformat"
	"github.com/1-api-gateway/relaygw/internal/wiremodel"
)

// errKiroStreamDisconnected unwinds kiro.DecodeStream's emit loop as soon
// as the downstream client disconnects, the same way streampipe.Pipe's
// bufio.Scanner loop notices ctx.Done() between lines.
var errKiroStreamDisconnected = errors.New("kiro stream disconnected")

// pipeKiro decodes Kiro's AWS EventStream body directly into hub chunks
// (kiro.DecodeStream) and renders each into tgt's wire shape through the
// same StreamRegistry every other provider's response uses — Kiro just
// never has a registered StreamRegistry source, since its wire framing
// isn't SSE text at all (spec.md §4.3). mutate, when non-nil, rewrites
// tool-call names on each hub chunk before it is rendered (spec.md §3's
// tool-name map reversal for an Anthropic OAuth connection is not
// applicable to Kiro itself, but the hook is threaded through for
// consistency with streampipe.Pipe's signature).
func pipeKiro(ctx context.Context, upstream io.Reader, w streampipe.Writer, tgt wireformat.Format, reg *translate.StreamRegistry, mutate func(*wiremodel.ChatStreamChunk)) (*streampipe.Result, error) {
	state := translate.NewStreamState()
	result := &streampipe.Result{}

	err := kiro.DecodeStream(upstream, func(chunk *wiremodel.ChatStreamChunk) error {
		select {
		case <-ctx.Done():
			result.Disconnected = true
			return errKiroStreamDisconnected
		default:
		}

		if mutate != nil {
			mutate(chunk)
		}
		frames, err := reg.FromHub(tgt, chunk, state)
		if err != nil {
			return errors.Wrapf(err, "render kiro chunk to %s", tgt)
		}
		for _, frame := range frames {
			if err := w.WriteFrame(frame); err != nil {
				return errors.Wrap(err, "write downstream frame")
			}
			result.ChunkCount++
		}
		w.Flush()
		return nil
	})
	if err != nil && err != errKiroStreamDisconnected {
		return result, errors.Wrap(err, "decode kiro stream")
	}

	if !result.Disconnected {
		for _, term := range reg.Terminator(tgt, state) {
			if err := w.WriteFrame(term); err != nil {
				return result, errors.Wrap(err, "write stream terminator")
			}
		}
		w.Flush()
	}

	result.Usage = *state
	return result, nil
}
