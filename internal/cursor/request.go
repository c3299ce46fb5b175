package cursor

import (
	"strings"

	"github.com/dvcrn/cursor-web-proxy/internal/chat"
	"github.com/google/uuid"
)

type requestPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type requestMessage struct {
	Role  chat.Role     `json:"role"`
	Parts []requestPart `json:"parts"`
}

// requestBody is the JSON document posted to the web chat endpoint.
type requestBody struct {
	Context  []any            `json:"context"`
	Model    string           `json:"model"`
	ID       string           `json:"id"`
	Messages []requestMessage `json:"messages"`
	Trigger  string           `json:"trigger"`
}

func newRequestBody(req *chat.Request) requestBody {
	return requestBody{
		Context:  []any{},
		Model:    req.Model,
		ID:       newChatID(),
		Messages: flattenMessages(req.Messages),
		Trigger:  "submit-message",
	}
}

// flattenMessages converts each message into a single text part. Structured
// content is concatenated without a separator. A leading system message with
// no text is dropped.
func flattenMessages(msgs []chat.Message) []requestMessage {
	out := make([]requestMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, requestMessage{
			Role:  m.Role,
			Parts: []requestPart{{Type: "text", Text: m.Content.JoinText("")}},
		})
	}
	if len(out) > 0 && out[0].Role == chat.RoleSystem && out[0].Parts[0].Text == "" {
		out = out[1:]
	}
	return out
}

// newChatID returns a random 16 character alphanumeric id.
func newChatID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}
