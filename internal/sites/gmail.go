// File: internal/sites/gmail.go
package sites

import (
	"context"
	"time"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/replykit/internal/engine"
)

// Gmail selector tables. The compose surface is a role=dialog overlay; the
// send control is a div with a localized tooltip, not a real button.
const (
	gmailMarkerXPath = `//div[@role='button' and contains(@data-tooltip,'送信')] | //div[@role='button' and contains(@data-tooltip,'Send')]`

	gmailMessageRowXPath    = `//div[@role='listitem']`
	gmailMessageAuthorXPath = `.//span[@email]`
	gmailMessageTextXPath   = `.//div[@dir='ltr' or @dir='auto']`
)

var gmailSelectors = engine.SelectorSet{
	SendButton: engine.SelectorGroup{
		`//div[@role='button' and contains(@data-tooltip,'送信')]`,
		`//div[@role='button' and contains(@data-tooltip,'Send')]`,
		`//div[@role='button' and (normalize-space(text())='送信' or normalize-space(text())='Send')]`,
	},
	Input: engine.SelectorGroup{
		`//div[@role='textbox' and contains(@aria-label,'メッセージ本文')]`,
		`//div[@role='textbox' and contains(@aria-label,'Message Body')]`,
		`//div[@role='dialog']//div[@contenteditable='true']`,
	},
	Compose: engine.SelectorGroup{
		`//div[@role='dialog']//div[@contenteditable='true']/ancestor::div[@role='dialog']`,
		`//div[@role='dialog']`,
	},
}

type gmailAdapter struct{}

func (*gmailAdapter) Name() string { return "gmail" }

func (*gmailAdapter) Matches(pageURL string, root *html.Node) bool {
	return hostMatches(pageURL, "mail.google.com") || probe(root, gmailMarkerXPath)
}

func (*gmailAdapter) Selectors() engine.SelectorSet { return gmailSelectors }

func (*gmailAdapter) ExtractMessages(root *html.Node) []Message {
	return collectMessages(root, gmailMessageRowXPath, gmailMessageAuthorXPath, gmailMessageTextXPath)
}

func (*gmailAdapter) InsertReply(ctx context.Context, bridge engine.PageBridge, text string, await time.Duration) error {
	return insertReply(ctx, bridge, gmailSelectors.Input, text, await)
}
