package resilience

import (
	"context"
	"iter"
	"strings"

	"github.com/dvcrn/cursor-web-proxy/internal/chat"
	"github.com/rs/zerolog"
)

const (
	// DefaultTokenCeiling is the completion token count at which the web
	// backend cuts a reply off.
	DefaultTokenCeiling = 4096
	DefaultAnchorLength = 10
	DefaultSlackLength  = 20
)

// Continuation stitches replies that were cut off at the token ceiling.
type Continuation struct {
	TokenCeiling int
	AnchorLength int
	SlackLength  int
	Logger       zerolog.Logger
}

func NewContinuation(logger zerolog.Logger) *Continuation {
	return &Continuation{
		TokenCeiling: DefaultTokenCeiling,
		AnchorLength: DefaultAnchorLength,
		SlackLength:  DefaultSlackLength,
		Logger:       logger,
	}
}

type roundOutcome int

const (
	roundStreaming roundOutcome = iota
	roundToolCall
	roundFinished
	roundTruncated
	roundNoUsage
)

func (o roundOutcome) String() string {
	switch o {
	case roundStreaming:
		return "streaming"
	case roundToolCall:
		return "tool_call"
	case roundFinished:
		return "finished"
	case roundTruncated:
		return "truncated"
	case roundNoUsage:
		return "no_usage"
	default:
		return "unknown"
	}
}

// accumulator is the state carried across the rounds of one call.
type accumulator struct {
	output   strings.Builder
	total    chat.Usage
	sawUsage bool
}

func (a *accumulator) addUsage(u chat.Usage) {
	a.total = a.total.Add(u)
	a.sawUsage = true
}

// RetryTruncated runs up to maxRetries+1 rounds of exchange. The first round
// streams live. Each later round asks the upstream to resume where the
// previous output stopped and strips the repeated tail from the reply.
//
// Usage totals summed over all rounds are forwarded once, last. Running out
// of rounds while still truncated is not an error.
func (c *Continuation) RetryTruncated(ctx context.Context, exchange chat.ExchangeFunc, req *chat.Request, maxRetries int) iter.Seq2[chat.Event, error] {
	return func(yield func(chat.Event, error) bool) {
		var acc accumulator
		current := req

		for round := 0; ; round++ {
			outcome, ok := c.runRound(ctx, exchange, current, round, &acc, yield)
			if !ok || outcome == roundToolCall {
				return
			}

			c.Logger.Info().
				Int("round", round).
				Str("outcome", outcome.String()).
				Int("prompt_tokens", acc.total.PromptTokens).
				Int("completion_tokens", acc.total.CompletionTokens).
				Int("output_length", acc.output.Len()).
				Msg("Completion round finished")

			if outcome != roundTruncated {
				break
			}
			if round >= maxRetries {
				c.Logger.Warn().
					Int("rounds", round+1).
					Msg("Continuation rounds exhausted while output is still truncated")
				break
			}

			output := acc.output.String()
			anchor := tailRunes(output, c.AnchorLength)
			c.Logger.Info().
				Int("round", round+1).
				Str("anchor", anchor).
				Msg("Continuing truncated completion")
			current = continuationRequest(req, output, anchor)
		}

		if acc.sawUsage {
			yield(chat.UsageEvent(acc.total), nil)
		}
	}
}

// runRound consumes one attempt. ok is false when the sequence must end
// because the consumer stopped or an error was forwarded.
func (c *Continuation) runRound(ctx context.Context, exchange chat.ExchangeFunc, req *chat.Request, round int, acc *accumulator, yield func(chat.Event, error) bool) (outcome roundOutcome, ok bool) {
	var merger *overlapMerger
	if round > 0 {
		merger = newOverlapMerger(tailRunes(acc.output.String(), c.AnchorLength), c.SlackLength)
	}
	emit := func(text string) bool {
		if text == "" {
			return true
		}
		acc.output.WriteString(text)
		return yield(chat.ContentEvent(text), nil)
	}
	flush := func() bool {
		if merger == nil {
			return true
		}
		return emit(merger.Flush())
	}

	outcome = roundStreaming
	for ev, err := range exchange(ctx, req) {
		if err != nil {
			if flush() {
				yield(chat.Event{}, err)
			}
			return outcome, false
		}

		switch ev.Kind {
		case chat.EventContent:
			text := ev.Delta
			if merger != nil {
				text = merger.Push(text)
			}
			if !emit(text) {
				return outcome, false
			}
		case chat.EventToolCall:
			if !flush() || !yield(ev, nil) {
				return roundToolCall, false
			}
			return roundToolCall, true
		case chat.EventUsage:
			acc.addUsage(*ev.Usage)
			if ev.Usage.CompletionTokens == c.TokenCeiling {
				outcome = roundTruncated
			} else {
				outcome = roundFinished
			}
		}

		if outcome != roundStreaming {
			break
		}
	}

	if !flush() {
		return outcome, false
	}
	if outcome == roundStreaming {
		outcome = roundNoUsage
	}
	return outcome, true
}
