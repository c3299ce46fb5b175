package resilience

import (
	"fmt"

	"github.com/dvcrn/cursor-web-proxy/internal/chat"
)

const continueTemplate = `Your previous reply was cut off because it hit the output length limit. It stopped right after this exact text:

<<<%s>>>

Continue from exactly that point. Start with the characters that would come immediately after it.
- Do not repeat any text you already wrote, including the text above.
- Do not reopen code fences, quotes, lists or headings that are already open.
- Do not add greetings, summaries or remarks about the continuation.

Example. If the reply stopped after "const el = document." then
correct: createElement("div");
wrong: const el = document.createElement("div");
wrong: ` + "```js" + `
createElement("div");`

func continuePrompt(anchor string) string {
	return fmt.Sprintf(continueTemplate, anchor)
}

// continuationRequest builds the request for the next round: the caller's
// original messages, the output produced so far as an assistant turn, and
// the instruction to resume at anchor.
func continuationRequest(orig *chat.Request, output, anchor string) *chat.Request {
	return orig.WithMessages(
		chat.Message{Role: chat.RoleAssistant, Content: chat.TextContent(output)},
		chat.Message{Role: chat.RoleUser, Content: chat.TextContent(continuePrompt(anchor))},
	)
}
