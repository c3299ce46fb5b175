package cursor

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"iter"
	"strings"

	"github.com/dvcrn/cursor-web-proxy/internal/chat"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

const (
	emptyContentPhrase = "The content field in the Message object at"
	emptyContentNote   = "The message is empty. It most likely contains only images, which are not supported.\n"
)

var dataPrefix = []byte("data:")

// ParseEvents turns an upstream SSE body into typed events. statusCode is the
// status the body was served with and is attached to upstream error events.
//
// The sequence ends after a usage event, after the first error, or when the
// body is exhausted.
func ParseEvents(body io.Reader, statusCode int) iter.Seq2[chat.Event, error] {
	return func(yield func(chat.Event, error) bool) {
		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if !bytes.HasPrefix(line, dataPrefix) {
				continue
			}
			payload := bytes.TrimSpace(line[len(dataPrefix):])
			if len(payload) == 0 || !gjson.ValidBytes(payload) {
				continue
			}
			data := gjson.ParseBytes(payload)
			if !data.IsObject() {
				continue
			}

			switch data.Get("type").String() {
			case "error":
				msg := data.Get("errorText").String()
				if msg == "" {
					msg = "upstream reported an error without errorText"
				}
				if strings.Contains(msg, emptyContentPhrase) {
					msg = emptyContentNote + msg
				}
				yield(chat.Event{}, &UpstreamError{StatusCode: statusCode, Message: msg})
				return

			case "finish":
				usage := data.Get("messageMetadata.usage")
				if !usage.IsObject() || len(usage.Map()) == 0 {
					continue
				}
				yield(chat.UsageEvent(chat.Usage{
					PromptTokens:     int(usage.Get("inputTokens").Int()),
					CompletionTokens: int(usage.Get("outputTokens").Int()),
					TotalTokens:      int(usage.Get("totalTokens").Int()),
				}), nil)
				return

			case "tool-input-available":
				name := data.Get("toolName").String()
				if name == "" {
					continue
				}
				input := json.RawMessage("{}")
				if raw := data.Get("input"); raw.Exists() {
					input = json.RawMessage(raw.Raw)
				}
				id := data.Get("toolCallId").String()
				if id == "" {
					id = "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
				}
				tc := chat.ToolCall{
					ID:    id,
					Name:  name,
					Input: input,
				}
				if !yield(chat.ToolCallEvent(tc), nil) {
					return
				}

			default:
				delta := data.Get("delta")
				if delta.Type != gjson.String || delta.Str == "" {
					continue
				}
				if !yield(chat.ContentEvent(delta.Str), nil) {
					return
				}
			}
		}

		if err := scanner.Err(); err != nil {
			yield(chat.Event{}, &TransportError{StatusCode: statusCode, Message: "failed to read event stream", Err: err})
		}
	}
}
