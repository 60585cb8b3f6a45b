// File: internal/engine/page.go
// Core contracts between the send engine and whatever renders the page.
//
// The engine never touches a live browser directly. It reads parsed HTML
// snapshots and addresses elements on the live page by generated XPath,
// through the PageBridge interface. The production bridge speaks CDP via
// chromedp; tests use an in-memory DOM bridge.
package engine

import (
	"context"
	"strings"
	"time"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Annotation attributes written onto every element by the bridge before a
// snapshot is serialized. They carry live-page facts (rendered geometry,
// current input value) that a static HTML serialization would lose.
const (
	// AttrVisible is "1" when the element had a positive rendered box and
	// was not hidden by computed style, "0" otherwise.
	AttrVisible = "data-rk-vis"
	// AttrValue mirrors the current .value of inputs and textareas.
	AttrValue = "data-rk-value"
)

// SelectorGroup is a priority-ordered list of XPath selectors for locating
// one logical element. Earlier entries are more specific and more trusted.
type SelectorGroup []string

// SelectorSet bundles the selector groups a site adapter supplies to the
// engine: the send control, the message input, and the compose surface.
type SelectorSet struct {
	SendButton SelectorGroup
	Input      SelectorGroup
	Compose    SelectorGroup
}

// PageBridge is the minimal surface the engine needs from a page. Snapshot
// and Mutations are the read side; the dispatch methods are the only
// permitted writes to host-page state.
type PageBridge interface {
	// Snapshot returns a freshly parsed, annotated DOM snapshot. The tree is
	// a stale view the instant the host page re-renders; callers re-snapshot
	// rather than hold on to nodes.
	Snapshot(ctx context.Context) (*html.Node, error)

	// Mutations subscribes to DOM mutation batches. The returned stop
	// function must always be called to dispose the subscription.
	Mutations(ctx context.Context) (<-chan struct{}, func(), error)

	// Focus moves input focus to the element addressed by the XPath.
	Focus(ctx context.Context, xpath string) error

	// DispatchPointerClick performs a low-level pointer press/release plus
	// click at the element's center.
	DispatchPointerClick(ctx context.Context, xpath string) error

	// DispatchMouseClick synthesizes mousedown/mouseup/click events at the
	// element's geometric center.
	DispatchMouseClick(ctx context.Context, xpath string) error

	// Invoke triggers the element's platform-level activation (el.click()).
	Invoke(ctx context.Context, xpath string) error

	// SubmitForm submits the form the element belongs to.
	SubmitForm(ctx context.Context, xpath string) error

	// SetText replaces the value of a text-like input or contenteditable
	// element and fires the input/change events frameworks listen for.
	SetText(ctx context.Context, xpath, text string) error

	// WriteClipboard places text on the page's clipboard for the manual
	// paste fallback.
	WriteClipboard(ctx context.Context, text string) error

	// Sleep pauses respecting context cancellation. All engine waiting goes
	// through the bridge so tests can account for simulated time.
	Sleep(ctx context.Context, d time.Duration) error
}

// Candidate is a transient, read-only view over one snapshot node: the node
// itself plus the derived facts scoring and dispatch need. It may be stale
// the instant the host page re-renders; nothing holds a Candidate across
// invocations.
type Candidate struct {
	Node     *html.Node
	XPath    string
	Tag      string
	Text     string
	Attrs    map[string]string
	DocOrder int
	Score    int
}

// NewCandidate derives a Candidate from a snapshot node. The order argument
// is the node's position in document order within the enumeration that
// produced it, used only as a tie-break.
func NewCandidate(n *html.Node, order int) *Candidate {
	attrs := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		attrs[strings.ToLower(a.Key)] = a.Val
	}
	return &Candidate{
		Node:     n,
		XPath:    UniqueXPath(n),
		Tag:      strings.ToLower(n.Data),
		Text:     strings.TrimSpace(htmlquery.InnerText(n)),
		Attrs:    attrs,
		DocOrder: order,
	}
}

// Attr returns the named attribute, lowercased key, empty when absent.
func (c *Candidate) Attr(name string) string { return c.Attrs[name] }

// HasAttr reports whether the attribute is present at all.
func (c *Candidate) HasAttr(name string) bool {
	_, ok := c.Attrs[name]
	return ok
}

// Disabled reports the disabled state as the host page exposes it.
func (c *Candidate) Disabled() bool {
	return c.HasAttr("disabled") || strings.EqualFold(c.Attr("aria-disabled"), "true")
}

// InForm reports whether the node sits inside a <form> element.
func (c *Candidate) InForm() bool {
	for n := c.Node.Parent; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && strings.EqualFold(n.Data, "form") {
			return true
		}
	}
	return false
}
