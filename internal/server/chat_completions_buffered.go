package server

import (
	"iter"
	"strings"

	"github.com/dvcrn/cursor-web-proxy/internal/chat"
)

// bufferChatCompletion drains a logical event stream into a single
// non-streaming chat.completion object. Usage is the last one observed, or
// zeros when none arrived.
func bufferChatCompletion(events iter.Seq2[chat.Event, error], id, model string, created int64) (*ChatCompletionResponse, error) {
	var (
		content   strings.Builder
		toolCalls []ToolCallRecord
		usage     chat.Usage
	)

	for ev, err := range events {
		if err != nil {
			return nil, err
		}
		switch ev.Kind {
		case chat.EventContent:
			content.WriteString(ev.Delta)
		case chat.EventToolCall:
			toolCalls = append(toolCalls, toolCallRecord(*ev.ToolCall))
		case chat.EventUsage:
			usage = *ev.Usage
		}
	}

	return &ChatCompletionResponse{
		ID:      id,
		Object:  objectCompletion,
		Created: created,
		Model:   model,
		Choices: []ChatCompletionChoice{{
			Index: 0,
			Message: ResponseMessage{
				Role:      string(chat.RoleAssistant),
				Content:   content.String(),
				ToolCalls: toolCalls,
			},
			FinishReason: finishStop,
		}},
		Usage: usage,
	}, nil
}
