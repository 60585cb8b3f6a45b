// File: internal/sites/adapter.go
// Per-site adapters. Each supported host page gets one Adapter value holding
// its selector knowledge; the send engine itself never learns which site it
// is operating against.
package sites

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/replykit/internal/engine"
)

// MessageLimit caps how much recent conversation is extracted for prompt
// context.
const MessageLimit = 5

// ErrClipboardFallback reports that direct insertion failed and the reply
// was copied to the clipboard instead; the user pastes and sends manually.
var ErrClipboardFallback = errors.New("reply copied to clipboard, paste it manually")

// Message is one extracted conversation entry.
type Message struct {
	Author string
	Text   string
}

// Adapter is the per-site contract. Implementations are stateless values;
// all page knowledge is selector tables.
type Adapter interface {
	// Name identifies the site in logs and history rows.
	Name() string
	// Matches reports whether this adapter handles the page, from its URL
	// and a parsed snapshot. Either input may be empty/nil.
	Matches(pageURL string, root *html.Node) bool
	// Selectors returns the site's selector groups for the send engine.
	Selectors() engine.SelectorSet
	// ExtractMessages returns recent conversation, most-recent-last,
	// deduplicated, capped at MessageLimit.
	ExtractMessages(root *html.Node) []Message
	// InsertReply places the reply text into the site's compose input,
	// waiting up to await for the input to mount when it is not present yet.
	// Returns ErrClipboardFallback when only the clipboard path worked.
	InsertReply(ctx context.Context, bridge engine.PageBridge, text string, await time.Duration) error
}

// registry holds all supported sites, in detection order.
var registry = []Adapter{
	&gmailAdapter{},
	&slackAdapter{},
	&chatworkAdapter{},
	&lineOAAdapter{},
}

// All returns every registered adapter.
func All() []Adapter { return registry }

// Detect returns the first adapter matching the page, or nil.
func Detect(pageURL string, root *html.Node) Adapter {
	for _, a := range registry {
		if a.Matches(pageURL, root) {
			return a
		}
	}
	return nil
}

// hostMatches reports whether the page URL's host portion contains any of
// the given fragments.
func hostMatches(pageURL string, hosts ...string) bool {
	if pageURL == "" {
		return false
	}
	lower := strings.ToLower(pageURL)
	for _, h := range hosts {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}

// probe reports whether the site-specific marker XPath matches the snapshot.
func probe(root *html.Node, marker string) bool {
	if root == nil {
		return false
	}
	n, err := htmlquery.Query(root, marker)
	return err == nil && n != nil
}

// collectMessages runs the row/author/text XPath triple over the snapshot.
// Rows are assumed chronological in document order; duplicates (virtualized
// lists re-render rows) are dropped and the tail MessageLimit entries kept.
func collectMessages(root *html.Node, rowXPath, authorXPath, textXPath string) []Message {
	if root == nil {
		return nil
	}
	rows, err := htmlquery.QueryAll(root, rowXPath)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool, len(rows))
	var out []Message
	for _, row := range rows {
		m := Message{
			Author: nodeText(row, authorXPath),
			Text:   nodeText(row, textXPath),
		}
		if m.Text == "" {
			continue
		}
		key := m.Author + "\x00" + m.Text
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, m)
	}

	if len(out) > MessageLimit {
		out = out[len(out)-MessageLimit:]
	}
	return out
}

func nodeText(row *html.Node, xp string) string {
	n, err := htmlquery.Query(row, xp)
	if err != nil || n == nil {
		return ""
	}
	return strings.TrimSpace(htmlquery.InnerText(n))
}

// insertReply resolves the input group and injects the text directly; when
// that fails the reply goes to the clipboard so nothing typed is lost.
// Compose inputs routinely mount a beat after the reply action opens them,
// so a miss waits up to await for the input to appear.
func insertReply(ctx context.Context, bridge engine.PageBridge, group engine.SelectorGroup, text string, await time.Duration) error {
	r := engine.NewResolver(bridge, zap.NewNop())
	c, err := r.ResolveAwait(ctx, group, await)
	if err != nil {
		return fmt.Errorf("resolving compose input: %w", err)
	}
	if c == nil {
		if cerr := bridge.WriteClipboard(ctx, text); cerr != nil {
			return fmt.Errorf("compose input not found and clipboard write failed: %w", cerr)
		}
		return ErrClipboardFallback
	}
	if err := bridge.SetText(ctx, c.XPath, text); err != nil {
		if cerr := bridge.WriteClipboard(ctx, text); cerr != nil {
			return fmt.Errorf("insertion failed (%v) and clipboard write failed: %w", err, cerr)
		}
		return ErrClipboardFallback
	}
	return nil
}
