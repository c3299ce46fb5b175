package resilience

import (
	"context"
	"iter"

	"github.com/dvcrn/cursor-web-proxy/internal/chat"
	"github.com/rs/zerolog"
)

// Pipeline resolves one request into one logical event stream: every round
// of the continuation loop is itself retried while it comes back empty.
type Pipeline struct {
	Exchange        chat.ExchangeFunc
	EmptyRetries    int
	ContinueRetries int
	Continuation    *Continuation
	Logger          zerolog.Logger
}

func (p *Pipeline) Complete(ctx context.Context, req *chat.Request) iter.Seq2[chat.Event, error] {
	cont := p.Continuation
	if cont == nil {
		cont = NewContinuation(p.Logger)
	}
	exchange := WithEmptyRetry(p.Exchange, p.EmptyRetries, p.Logger)
	return cont.RetryTruncated(ctx, exchange, req, p.ContinueRetries)
}
