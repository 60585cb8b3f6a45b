// File: internal/sites/slack.go
package sites

import (
	"context"
	"time"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/replykit/internal/engine"
)

// Slack selector tables, keyed on Slack's data-qa test attributes, which
// have been far more stable than its generated class names.
const (
	slackMarkerXPath = `//button[@data-qa='texty_send_button'] | //div[@data-qa='message_input']`

	slackMessageRowXPath    = `//div[@data-qa='virtual-list-item']`
	slackMessageAuthorXPath = `.//button[@data-qa='message_sender_name']`
	slackMessageTextXPath   = `.//div[@data-qa='message-text']`
)

var slackSelectors = engine.SelectorSet{
	SendButton: engine.SelectorGroup{
		`//button[@data-qa='texty_send_button']`,
		`//button[contains(@aria-label,'送信')]`,
		`//button[contains(@aria-label,'Send')]`,
	},
	Input: engine.SelectorGroup{
		`//div[@data-qa='message_input']//div[@contenteditable='true']`,
		`//div[contains(@class,'ql-editor')]`,
	},
	Compose: engine.SelectorGroup{
		`//div[@data-qa='message_input']`,
	},
}

type slackAdapter struct{}

func (*slackAdapter) Name() string { return "slack" }

func (*slackAdapter) Matches(pageURL string, root *html.Node) bool {
	return hostMatches(pageURL, "app.slack.com", ".slack.com") || probe(root, slackMarkerXPath)
}

func (*slackAdapter) Selectors() engine.SelectorSet { return slackSelectors }

func (*slackAdapter) ExtractMessages(root *html.Node) []Message {
	return collectMessages(root, slackMessageRowXPath, slackMessageAuthorXPath, slackMessageTextXPath)
}

func (*slackAdapter) InsertReply(ctx context.Context, bridge engine.PageBridge, text string, await time.Duration) error {
	return insertReply(ctx, bridge, slackSelectors.Input, text, await)
}
