// File: internal/sites/chatwork.go
package sites

import (
	"context"
	"time"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/replykit/internal/engine"
)

// Chatwork selector tables. Chatwork still carries stable underscore IDs on
// its chat surface, so those anchor everything.
const (
	chatworkMarkerXPath = `//*[@id='_chatText'] | //*[@id='_chatSendArea']`

	chatworkMessageRowXPath    = `//div[@data-testid='timeline_message-box'] | //div[contains(@class,'timelineMessage')]`
	chatworkMessageAuthorXPath = `.//p[@data-testid='timeline_user-name'] | .//p[contains(@class,'userName')]`
	chatworkMessageTextXPath   = `.//pre`
)

var chatworkSelectors = engine.SelectorSet{
	SendButton: engine.SelectorGroup{
		`//button[@data-testid='timeline_send-message-button']`,
		`//*[@id='_sendButton']`,
		`//div[@id='_chatSendArea']//button[contains(.,'送信')]`,
	},
	Input: engine.SelectorGroup{
		`//textarea[@id='_chatText']`,
	},
	Compose: engine.SelectorGroup{
		`//div[@id='_chatSendArea']`,
	},
}

type chatworkAdapter struct{}

func (*chatworkAdapter) Name() string { return "chatwork" }

func (*chatworkAdapter) Matches(pageURL string, root *html.Node) bool {
	return hostMatches(pageURL, "chatwork.com") || probe(root, chatworkMarkerXPath)
}

func (*chatworkAdapter) Selectors() engine.SelectorSet { return chatworkSelectors }

func (*chatworkAdapter) ExtractMessages(root *html.Node) []Message {
	return collectMessages(root, chatworkMessageRowXPath, chatworkMessageAuthorXPath, chatworkMessageTextXPath)
}

func (*chatworkAdapter) InsertReply(ctx context.Context, bridge engine.PageBridge, text string, await time.Duration) error {
	return insertReply(ctx, bridge, chatworkSelectors.Input, text, await)
}
