// Package resilience turns single upstream attempts into one logical
// completion: empty attempts are retried and truncated ones are continued.
package resilience

import (
	"context"
	"fmt"
	"iter"

	"github.com/dvcrn/cursor-web-proxy/internal/chat"
	"github.com/rs/zerolog"
)

// EmptyCompletionError is returned when every attempt ended without content.
type EmptyCompletionError struct {
	Attempts int
}

func (e *EmptyCompletionError) Error() string {
	return fmt.Sprintf("upstream returned an empty completion on all %d attempts", e.Attempts)
}

// WithEmptyRetry wraps exchange so that every call goes through RetryEmpty.
func WithEmptyRetry(exchange chat.ExchangeFunc, maxRetries int, logger zerolog.Logger) chat.ExchangeFunc {
	return func(ctx context.Context, req *chat.Request) iter.Seq2[chat.Event, error] {
		return RetryEmpty(ctx, exchange, req, maxRetries, logger)
	}
}

// RetryEmpty runs up to maxRetries+1 attempts of exchange until one of them
// produces content or a tool call.
//
// Content and tool calls are forwarded as they arrive. A usage event is held
// back until the attempt has shown content and is dropped together with an
// empty attempt, so nothing from a discarded attempt reaches the caller.
// Errors before any content consume the same attempt budget; an error after
// content has been forwarded ends the sequence immediately.
func RetryEmpty(ctx context.Context, exchange chat.ExchangeFunc, req *chat.Request, maxRetries int, logger zerolog.Logger) iter.Seq2[chat.Event, error] {
	return func(yield func(chat.Event, error) bool) {
		attempts := max(maxRetries, 0) + 1
		var lastErr error

		for attempt := 1; attempt <= attempts; attempt++ {
			if err := ctx.Err(); err != nil {
				yield(chat.Event{}, err)
				return
			}
			if attempt > 1 {
				logger.Warn().
					Int("attempt", attempt).
					Int("max_attempts", attempts).
					AnErr("last_error", lastErr).
					Msg("Retrying empty upstream attempt")
			}

			var (
				hasContent bool
				held       *chat.Usage
				attemptErr error
			)
			for ev, err := range exchange(ctx, req) {
				if err != nil {
					attemptErr = err
					break
				}
				switch ev.Kind {
				case chat.EventContent:
					if ev.Delta == "" {
						continue
					}
					hasContent = true
					if !yield(ev, nil) {
						return
					}
				case chat.EventToolCall:
					yield(ev, nil)
					return
				case chat.EventUsage:
					u := *ev.Usage
					held = &u
				}
			}

			if attemptErr != nil {
				if hasContent || ctx.Err() != nil {
					yield(chat.Event{}, attemptErr)
					return
				}
				lastErr = attemptErr
				logger.Warn().Err(attemptErr).Int("attempt", attempt).Msg("Upstream attempt failed before any content")
				continue
			}

			if hasContent {
				if held != nil {
					yield(chat.UsageEvent(*held), nil)
				}
				return
			}
			logger.Warn().Int("attempt", attempt).Msg("Upstream attempt produced no content")
		}

		if lastErr != nil {
			yield(chat.Event{}, lastErr)
			return
		}
		yield(chat.Event{}, &EmptyCompletionError{Attempts: attempts})
	}
}
