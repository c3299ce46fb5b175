package resilience

import (
	"context"
	"iter"
	"strings"
	"sync"
	"testing"

	"github.com/dvcrn/cursor-web-proxy/internal/chat"
)

type step struct {
	ev  chat.Event
	err error
}

func text(s string) step { return step{ev: chat.ContentEvent(s)} }

func usage(prompt, completion int) step {
	return step{ev: chat.UsageEvent(chat.Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion})}
}

func tool(id, name, input string) step {
	return step{ev: chat.ToolCallEvent(chat.ToolCall{ID: id, Name: name, Input: []byte(input)})}
}

func fail(err error) step { return step{err: err} }

// scriptedExchange plays back one scripted attempt per call and records what
// it was asked and how far each attempt was consumed.
type scriptedExchange struct {
	mu       sync.Mutex
	attempts [][]step
	requests []*chat.Request
	consumed []int
}

func newScripted(attempts ...[]step) *scriptedExchange {
	return &scriptedExchange{attempts: attempts}
}

func (s *scriptedExchange) Exchange(ctx context.Context, req *chat.Request) iter.Seq2[chat.Event, error] {
	return func(yield func(chat.Event, error) bool) {
		s.mu.Lock()
		idx := len(s.requests)
		s.requests = append(s.requests, req)
		s.consumed = append(s.consumed, 0)
		s.mu.Unlock()

		if idx >= len(s.attempts) {
			return
		}
		for _, st := range s.attempts[idx] {
			s.mu.Lock()
			s.consumed[idx]++
			s.mu.Unlock()
			if !yield(st.ev, st.err) || st.err != nil {
				return
			}
		}
	}
}

func (s *scriptedExchange) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

type result struct {
	text   string
	events []chat.Event
	tools  []chat.ToolCall
	usage  []chat.Usage
	err    error
}

func run(t *testing.T, seq iter.Seq2[chat.Event, error]) result {
	t.Helper()
	var r result
	var sb strings.Builder
	for ev, err := range seq {
		if err != nil {
			r.err = err
			break
		}
		r.events = append(r.events, ev)
		switch ev.Kind {
		case chat.EventContent:
			sb.WriteString(ev.Delta)
		case chat.EventToolCall:
			r.tools = append(r.tools, *ev.ToolCall)
		case chat.EventUsage:
			r.usage = append(r.usage, *ev.Usage)
		}
	}
	r.text = sb.String()
	return r
}

func userRequest(content string) *chat.Request {
	return &chat.Request{
		Model:    "gpt-4o",
		Stream:   true,
		Messages: []chat.Message{{Role: chat.RoleUser, Content: chat.TextContent(content)}},
		Tools:    []chat.Tool{{Type: "function", Function: chat.ToolFunction{Name: "lookup"}}},
	}
}
