package server

import (
	"strings"

	"github.com/dvcrn/cursor-web-proxy/internal/chat"
)

// prepareMessages folds developer messages into the system prompt and applies
// the configured prompt injections. The input slice and its messages are left
// untouched.
func prepareMessages(msgs []chat.Message, systemInject, userInject string) []chat.Message {
	out := make([]chat.Message, 0, len(msgs)+2)
	var developer []string
	for _, m := range msgs {
		if m.Role == chat.RoleDeveloper {
			developer = append(developer, m.Content.JoinText(" "))
			continue
		}
		out = append(out, m)
	}

	if devText := strings.Join(developer, "\n"); devText != "" {
		out = injectSystemPrompt(out, devText)
	}
	if systemInject != "" {
		out = injectSystemPrompt(out, systemInject)
	}
	if userInject != "" {
		out = append(out, chat.Message{Role: chat.RoleUser, Content: chat.TextContent(userInject)})
	}
	return out
}

// injectSystemPrompt appends prompt to the first system message, or inserts a
// new leading system message when there is none.
func injectSystemPrompt(msgs []chat.Message, prompt string) []chat.Message {
	for i, m := range msgs {
		if m.Role != chat.RoleSystem {
			continue
		}
		switch {
		case m.Content.IsText():
			m.Content = chat.TextContent(m.Content.Text() + "\n" + prompt)
		case m.Content.IsParts():
			parts := m.Content.Parts()
			appended := false
			for j := range parts {
				if parts[j].Type == "text" && parts[j].Text != "" {
					parts[j].Text += "\n" + prompt
					appended = true
					break
				}
			}
			if !appended {
				parts = append(parts, chat.ContentPart{Type: "text", Text: prompt})
			}
			m.Content = chat.PartsContent(parts)
		default:
			m.Content = chat.TextContent(prompt)
		}
		msgs[i] = m
		return msgs
	}

	system := chat.Message{Role: chat.RoleSystem, Content: chat.TextContent(prompt)}
	return append([]chat.Message{system}, msgs...)
}
