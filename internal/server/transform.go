package server

import (
	"encoding/json"
	"fmt"

	"github.com/dvcrn/cursor-web-proxy/internal/chat"
)

const (
	objectChunk      = "chat.completion.chunk"
	objectCompletion = "chat.completion"
	finishStop       = "stop"
	doneFrame        = "[DONE]"
)

// StreamTransformer renders a logical event stream as chat.completion.chunk
// payloads. All frames of one transformer share its id and created time.
type StreamTransformer struct {
	id      string
	model   string
	created int64

	sentRole  bool
	toolIndex int
	usage     *chat.Usage
}

func NewStreamTransformer(id, model string, created int64) *StreamTransformer {
	return &StreamTransformer{id: id, model: model, created: created}
}

// Transform returns the payloads for ev. The first call also yields the
// assistant role announcement. Usage is remembered for Finish and produces
// no frame of its own.
func (t *StreamTransformer) Transform(ev chat.Event) ([][]byte, error) {
	frames, err := t.roleFrame()
	if err != nil {
		return nil, err
	}

	switch ev.Kind {
	case chat.EventContent:
		delta := ev.Delta
		frame, err := t.chunk(streamingDelta{Content: &delta}, nil)
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	case chat.EventToolCall:
		idx := t.toolIndex
		t.toolIndex++
		rec := toolCallRecord(*ev.ToolCall)
		rec.Index = &idx
		frame, err := t.chunk(streamingDelta{ToolCalls: []ToolCallRecord{rec}}, nil)
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	case chat.EventUsage:
		u := *ev.Usage
		t.usage = &u
	default:
		return nil, fmt.Errorf("unknown event kind %d", ev.Kind)
	}
	return frames, nil
}

// Finish returns the stop frame, the usage trailer when usage was seen, and
// the [DONE] sentinel, in that order. A stream that saw no event still gets
// its role announcement first.
func (t *StreamTransformer) Finish() ([][]byte, error) {
	frames, err := t.roleFrame()
	if err != nil {
		return nil, err
	}
	stop := finishStop
	frame, err := t.chunk(streamingDelta{}, &stop)
	if err != nil {
		return nil, err
	}
	frames = append(frames, frame)

	if t.usage != nil {
		usageFrame, err := json.Marshal(streamingChunk{
			ID:      t.id,
			Object:  objectChunk,
			Created: t.created,
			Model:   t.model,
			Choices: []streamingChoice{},
			Usage:   t.usage,
		})
		if err != nil {
			return nil, err
		}
		frames = append(frames, usageFrame)
	}

	return append(frames, []byte(doneFrame)), nil
}

// roleFrame returns the assistant role announcement the first time it is
// called and nothing afterwards.
func (t *StreamTransformer) roleFrame() ([][]byte, error) {
	if t.sentRole {
		return nil, nil
	}
	t.sentRole = true
	empty := ""
	frame, err := t.chunk(streamingDelta{Role: string(chat.RoleAssistant), Content: &empty}, nil)
	if err != nil {
		return nil, err
	}
	return [][]byte{frame}, nil
}

func (t *StreamTransformer) chunk(delta streamingDelta, finishReason *string) ([]byte, error) {
	return json.Marshal(streamingChunk{
		ID:      t.id,
		Object:  objectChunk,
		Created: t.created,
		Model:   t.model,
		Choices: []streamingChoice{{
			Index:        0,
			Delta:        delta,
			FinishReason: finishReason,
		}},
	})
}

func toolCallRecord(tc chat.ToolCall) ToolCallRecord {
	args := string(tc.Input)
	if args == "" {
		args = "{}"
	}
	return ToolCallRecord{
		ID:   tc.ID,
		Type: "function",
		Function: chat.FunctionCall{
			Name:      tc.Name,
			Arguments: args,
		},
	}
}
