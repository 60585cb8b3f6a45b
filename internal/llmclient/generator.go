// File: internal/llmclient/generator.go
package llmclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/xkilldash9x/replykit/internal/sites"
)

// ReplyRequest carries everything the generator needs to draft a reply.
type ReplyRequest struct {
	// Site names the adapter that scraped the conversation.
	Site string
	// Messages is recent conversation, most-recent-last.
	Messages []sites.Message
	// Language and Tone are user preferences ("ja", "polite", ...).
	Language string
	Tone     string
}

// Generator drafts a reply to the scraped conversation.
type Generator interface {
	GenerateReply(ctx context.Context, req ReplyRequest) (string, error)
}

// buildSystemPrompt states the role and the output constraints. The reply
// must come back bare: it is injected into the compose field verbatim.
func buildSystemPrompt(req ReplyRequest) string {
	lang := req.Language
	if lang == "" {
		lang = "ja"
	}
	tone := req.Tone
	if tone == "" {
		tone = "polite"
	}
	return fmt.Sprintf(
		"You are drafting a reply on behalf of the user in an ongoing %s conversation. "+
			"Write the reply in language %q with a %s tone. "+
			"Reply to the most recent message, taking the earlier ones as context. "+
			"Output only the reply text itself: no greetings to the operator, no quoting, no markdown fences.",
		req.Site, lang, tone)
}

// buildUserPrompt serializes the conversation, most-recent-last.
func buildUserPrompt(req ReplyRequest) string {
	var sb strings.Builder
	sb.WriteString("Conversation so far (oldest first):\n")
	for _, m := range req.Messages {
		author := m.Author
		if author == "" {
			author = "(unknown)"
		}
		fmt.Fprintf(&sb, "%s: %s\n", author, m.Text)
	}
	sb.WriteString("\nDraft the reply now.")
	return sb.String()
}
