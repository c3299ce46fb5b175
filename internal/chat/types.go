// Package chat holds the request and event types shared by the upstream
// driver, the resilience layer and the HTTP edge.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleDeveloper Role = "developer"
	RoleTool      Role = "tool"
)

// ContentPart is one typed element of a structured message content list.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type contentKind int

const (
	contentNull contentKind = iota
	contentText
	contentParts
)

// Content is either a plain string or an ordered list of typed parts. The
// representation is fixed when the value is decoded or constructed.
type Content struct {
	kind  contentKind
	text  string
	parts []ContentPart
}

// TextContent returns plain string content.
func TextContent(s string) Content {
	return Content{kind: contentText, text: s}
}

// PartsContent returns structured content. The slice is copied.
func PartsContent(parts []ContentPart) Content {
	cp := make([]ContentPart, len(parts))
	copy(cp, parts)
	return Content{kind: contentParts, parts: cp}
}

func (c Content) IsNull() bool  { return c.kind == contentNull }
func (c Content) IsText() bool  { return c.kind == contentText }
func (c Content) IsParts() bool { return c.kind == contentParts }

// Text returns the plain string form. It is empty for structured content.
func (c Content) Text() string { return c.text }

// Parts returns a copy of the structured parts.
func (c Content) Parts() []ContentPart {
	if c.kind != contentParts {
		return nil
	}
	cp := make([]ContentPart, len(c.parts))
	copy(cp, c.parts)
	return cp
}

// JoinText flattens the content to text. Structured content contributes its
// non-empty text parts joined with sep.
func (c Content) JoinText(sep string) string {
	switch c.kind {
	case contentText:
		return c.text
	case contentParts:
		var texts []string
		for _, p := range c.parts {
			if p.Text != "" {
				texts = append(texts, p.Text)
			}
		}
		return strings.Join(texts, sep)
	default:
		return ""
	}
}

func (c Content) MarshalJSON() ([]byte, error) {
	switch c.kind {
	case contentText:
		return json.Marshal(c.text)
	case contentParts:
		if c.parts == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(c.parts)
	default:
		return []byte("null"), nil
	}
}

func (c *Content) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*c = Content{}
		return nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*c = TextContent(s)
		return nil
	case '[':
		var parts []ContentPart
		if err := json.Unmarshal(trimmed, &parts); err != nil {
			return err
		}
		*c = Content{kind: contentParts, parts: parts}
		return nil
	default:
		return fmt.Errorf("message content must be a string, an array of parts or null")
	}
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// MessageToolCall is a tool call already present in the conversation history.
type MessageToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type Message struct {
	Role       Role              `json:"role"`
	Content    Content           `json:"content"`
	Name       string            `json:"name,omitempty"`
	ToolCalls  []MessageToolCall `json:"tool_calls,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
}

type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Tool is a tool declaration offered to the model.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// Request is one chat completion request. A value is treated as immutable
// once an exchange has started; use WithMessages to derive a new one.
type Request struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream,omitempty"`
	Tools    []Tool    `json:"tools,omitempty"`
}

// WithMessages returns a copy of r whose message list is r's followed by
// extra. Model, stream flag and tools carry over.
func (r *Request) WithMessages(extra ...Message) *Request {
	msgs := make([]Message, 0, len(r.Messages)+len(extra))
	msgs = append(msgs, r.Messages...)
	msgs = append(msgs, extra...)
	return &Request{
		Model:    r.Model,
		Messages: msgs,
		Stream:   r.Stream,
		Tools:    r.Tools,
	}
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add returns the field-wise sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		TotalTokens:      u.TotalTokens + o.TotalTokens,
	}
}

// ToolCall is a complete tool invocation observed in one attempt.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

type EventKind int

const (
	EventContent EventKind = iota + 1
	EventToolCall
	EventUsage
)

func (k EventKind) String() string {
	switch k {
	case EventContent:
		return "content"
	case EventToolCall:
		return "tool_call"
	case EventUsage:
		return "usage"
	default:
		return "unknown"
	}
}

// Event is one element of an attempt's stream or of the resolved logical
// stream. Exactly one of Delta, ToolCall or Usage is meaningful, per Kind.
type Event struct {
	Kind     EventKind
	Delta    string
	ToolCall *ToolCall
	Usage    *Usage
}

func ContentEvent(delta string) Event {
	return Event{Kind: EventContent, Delta: delta}
}

func ToolCallEvent(tc ToolCall) Event {
	return Event{Kind: EventToolCall, ToolCall: &tc}
}

func UsageEvent(u Usage) Event {
	return Event{Kind: EventUsage, Usage: &u}
}

// ExchangeFunc performs one upstream attempt for req. The sequence ends after
// the first non-nil error. Stopping iteration early releases the attempt's
// resources.
type ExchangeFunc func(ctx context.Context, req *Request) iter.Seq2[Event, error]
