// Package combo implements the ordered-model fallback orchestrator of
// spec.md §4.6: given a combo's model list, try each in turn, delegating
// the full single-model account loop to a caller-supplied attempt
// function, and fall through to the next model only when the attempt
// reports its failure as retryable.
//
// There is no direct teacher analogue — one-api has no notion of chaining
// several distinct models as a fallback list for one logical request, only
// per-channel ability retry within a single model. This package is built
// fresh, in the teacher's error-propagation and logging idiom (relay/
// controller/relay.go's retry loop: log a warning per exhausted attempt,
// preserve the last error, and turn exhaustion into a single terminal
// status for the caller).
package combo

import (
	"context"

	"github.com/Laisky/errors/v2"
	glog "github.com/Laisky/go-utils/v5/log"
	"github.com/Laisky/zap"
	"github.com/tidwall/sjson"
)

// SubstituteModel rewrites the top-level "model" field of a wire-format
// request body, spec.md §4.6's "invoke the callable with the model
// substituted into the body". A targeted sjson.SetBytes rewrite is used
// instead of a full unmarshal/remarshal round-trip so fields the gateway
// doesn't model are preserved byte-for-byte.
func SubstituteModel(body []byte, model string) ([]byte, error) {
	out, err := sjson.SetBytes(body, "model", model)
	if err != nil {
		return nil, errors.Wrap(err, "substitute combo model")
	}
	return out, nil
}

// Attempt runs the full single-model account loop (Chat Handler's job, per
// spec.md §4.7) for one model of the combo and is responsible for piping
// any successful response to the caller itself. A nil return means the
// attempt succeeded and the orchestrator should stop. A *RetryableError
// means every account for this model was exhausted and the orchestrator
// should try the next model. Any other error is fatal and is surfaced to
// the caller immediately, without trying later models.
type Attempt func(ctx context.Context, model string) error

// RetryableError marks an attempt failure as "try the next model" rather
// than fatal.
type RetryableError struct {
	Model string
	Err   error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// ExhaustedError is returned when every model in the combo has been tried
// and none succeeded. spec.md §4.6: "surface the last error as 503."
type ExhaustedError struct {
	Models []string
	Last   error
}

func (e *ExhaustedError) Error() string {
	return "combo exhausted all models: " + e.Last.Error()
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// StatusCode reports the HTTP status the Chat Handler should surface for
// an exhausted combo.
func (e *ExhaustedError) StatusCode() int { return 503 }

// Run implements spec.md §4.6. models must be non-empty; attempt is
// invoked once per model, in order, until one succeeds, one fails fatally,
// or the list is exhausted.
func Run(ctx context.Context, models []string, attempt Attempt, log glog.Logger) error {
	if len(models) == 0 {
		return errors.New("combo: empty model list")
	}

	var lastErr error
	for i, model := range models {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := attempt(ctx, model)
		if err == nil {
			return nil
		}

		var retryable *RetryableError
		if !errors.As(err, &retryable) {
			return err
		}

		lastErr = retryable.Err
		remaining := len(models) - i - 1
		log.Warn("combo model exhausted, trying next",
			zap.String("model", model),
			zap.Int("remaining", remaining),
			zap.Error(retryable.Err))
	}

	return &ExhaustedError{Models: models, Last: lastErr}
}
