// File: internal/dombridge/bridge.go
// An in-memory PageBridge over a mutable x/net/html tree.
//
// Used by the engine's tests and by the CLI's dry-run mode, where the
// pipeline runs against a saved HTML file instead of a live page. Time is
// simulated: Sleep returns immediately and records the duration, so the
// engine's bounded waits can be asserted without wall-clock delays.
package dombridge

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/replykit/internal/engine"
)

// Dispatch records one simulated interaction against the page.
type Dispatch struct {
	Kind  string // "pointer", "mouse", "invoke", "submit", "focus", "settext"
	XPath string
	Text  string // settext only
}

// Bridge implements engine.PageBridge over an in-memory document.
type Bridge struct {
	mu         sync.Mutex
	doc        *html.Node
	subs       map[int]chan struct{}
	nextSub    int
	slept      time.Duration
	dispatches []Dispatch
	clipboard  string

	// onDispatch, when set, runs for pointer/mouse/invoke/submit dispatches
	// and may mutate the document the way a host page handler would. Its
	// error is returned from the dispatch.
	onDispatch func(kind, xpath string) error
	// onSleep observes every simulated sleep.
	onSleep func(d time.Duration)
}

// New parses the HTML source into a fresh bridge.
func New(src string) (*Bridge, error) {
	doc, err := htmlquery.Parse(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parsing bridge document: %w", err)
	}
	return &Bridge{doc: doc, subs: make(map[int]chan struct{})}, nil
}

// OnDispatch installs the host-page reaction hook.
func (b *Bridge) OnDispatch(fn func(kind, xpath string) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onDispatch = fn
}

// OnSleep installs a simulated-time observer.
func (b *Bridge) OnSleep(fn func(d time.Duration)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onSleep = fn
}

// Apply mutates the document under the lock and notifies mutation
// subscribers, mimicking a MutationObserver batch.
func (b *Bridge) Apply(mutate func(doc *html.Node)) {
	b.mu.Lock()
	mutate(b.doc)
	b.mu.Unlock()
	b.notify()
}

// SetHTML replaces the whole document and notifies subscribers.
func (b *Bridge) SetHTML(src string) error {
	doc, err := htmlquery.Parse(strings.NewReader(src))
	if err != nil {
		return fmt.Errorf("parsing replacement document: %w", err)
	}
	b.mu.Lock()
	b.doc = doc
	b.mu.Unlock()
	b.notify()
	return nil
}

// Slept returns the total simulated time slept.
func (b *Bridge) Slept() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.slept
}

// DispatchLog returns a copy of all recorded dispatches in order.
func (b *Bridge) DispatchLog() []Dispatch {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Dispatch, len(b.dispatches))
	copy(out, b.dispatches)
	return out
}

// Clipboard returns the last text written to the simulated clipboard.
func (b *Bridge) Clipboard() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clipboard
}

// -- engine.PageBridge implementation --

// Snapshot serializes and re-parses the current document, so callers get a
// genuinely stale view the way they would from a live page.
func (b *Bridge) Snapshot(ctx context.Context) (*html.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	var sb strings.Builder
	err := html.Render(&sb, b.doc)
	b.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("rendering snapshot: %w", err)
	}
	return htmlquery.Parse(strings.NewReader(sb.String()))
}

// Mutations subscribes to Apply/SetHTML notifications.
func (b *Bridge) Mutations(ctx context.Context) (<-chan struct{}, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	ch := make(chan struct{}, 1)
	b.subs[id] = ch
	b.mu.Unlock()

	stop := func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
	return ch, stop, nil
}

func (b *Bridge) notify() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default: // batch already pending
		}
	}
}

func (b *Bridge) Focus(ctx context.Context, xpath string) error {
	return b.record(ctx, "focus", xpath, false)
}

func (b *Bridge) DispatchPointerClick(ctx context.Context, xpath string) error {
	return b.record(ctx, "pointer", xpath, true)
}

func (b *Bridge) DispatchMouseClick(ctx context.Context, xpath string) error {
	return b.record(ctx, "mouse", xpath, true)
}

func (b *Bridge) Invoke(ctx context.Context, xpath string) error {
	return b.record(ctx, "invoke", xpath, true)
}

func (b *Bridge) SubmitForm(ctx context.Context, xpath string) error {
	return b.record(ctx, "submit", xpath, true)
}

func (b *Bridge) record(ctx context.Context, kind, xpath string, hook bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	b.dispatches = append(b.dispatches, Dispatch{Kind: kind, XPath: xpath})
	fn := b.onDispatch
	b.mu.Unlock()
	if hook && fn != nil {
		return fn(kind, xpath)
	}
	return nil
}

// SetText updates the addressed element's value annotation the way the
// production bridge's injected script would after typing.
func (b *Bridge) SetText(ctx context.Context, xpath, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	b.dispatches = append(b.dispatches, Dispatch{Kind: "settext", XPath: xpath, Text: text})
	node, err := htmlquery.Query(b.doc, xpath)
	if err == nil && node != nil {
		setAttr(node, engine.AttrValue, text)
	}
	b.mu.Unlock()
	if err != nil {
		return fmt.Errorf("settext query %q: %w", xpath, err)
	}
	if node == nil {
		return fmt.Errorf("settext: no element at %q", xpath)
	}
	b.notify()
	return nil
}

func (b *Bridge) WriteClipboard(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	b.clipboard = text
	b.mu.Unlock()
	return nil
}

// Sleep advances simulated time only.
func (b *Bridge) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	b.slept += d
	fn := b.onSleep
	b.mu.Unlock()
	if fn != nil {
		fn(d)
	}
	return nil
}

// setAttr sets or replaces an attribute on a node.
func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if strings.EqualFold(n.Attr[i].Key, key) {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

var _ engine.PageBridge = (*Bridge)(nil)
