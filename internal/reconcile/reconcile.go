// Package reconcile merges the terminal backend outcome with text that
// already arrived on the push channel. Its one rule: observed text is
// never lost just because the final acknowledgement was empty or
// failed.
package reconcile

import (
	"strings"

	"github.com/swipswaps/paddle-ocr/internal/models"
	"github.com/swipswaps/paddle-ocr/pkg/logger"
)

// Sink receives the narrative line recording a substitution.
type Sink func(msg string)

type Reconciler struct {
	log logger.Logger
}

func New(log logger.Logger) *Reconciler {
	if log == nil {
		log = logger.Nop()
	}
	return &Reconciler{log: log}
}

// Reconcile applies, in order:
//  1. successful result with text: returned unchanged;
//  2. successful result without text but streamed text exists: the
//     streamed text is substituted in and the substitution logged;
//  3. terminal error with streamed text: an unsuccessful result carrying
//     the streamed text is synthesized, marked recovered;
//  4. terminal error without streamed text: the error propagates.
func (r *Reconciler) Reconcile(result *models.OcrResult, terminalErr error, streamed string, sink Sink) (*models.OcrResult, error) {
	if sink == nil {
		sink = func(string) {}
	}
	hasStreamed := strings.TrimSpace(streamed) != ""

	if terminalErr == nil && result != nil {
		if result.Success && result.HasText() {
			return result, nil
		}
		if hasStreamed {
			out := *result
			out.RawText = streamed
			out.Recovered = true
			sink("Final response carried no text, substituted text captured from the log stream")
			r.log.Warn("substituted streamed text into empty result",
				logger.Int("chars", len(streamed)),
				logger.Bool("backendSuccess", result.Success),
			)
			return &out, nil
		}
		return result, nil
	}

	if hasStreamed {
		sink("Request failed, recovered partial text captured from the log stream")
		r.log.Warn("terminal call failed, recovering streamed text",
			logger.Error(terminalErr),
			logger.Int("chars", len(streamed)),
		)
		return &models.OcrResult{
			Success:   false,
			RawText:   streamed,
			Blocks:    []models.Block{},
			Recovered: true,
		}, nil
	}

	return nil, terminalErr
}
