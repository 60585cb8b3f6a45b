// File: internal/engine/verify.go
package engine

import (
	"context"
	"strings"
	"time"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Verifier decides whether a send actually happened, from indirect evidence
// only: the input field emptied, the send button flipped to disabled, or
// (end-to-end) the compose surface vanished. Any one signal is sufficient.
// The OR-combination is deliberately permissive — a false "sent" is less
// harmful here than a false "failed", because the user sees the outcome and
// can check the host page directly. Verified success is probabilistic, not
// certain.
type Verifier struct {
	bridge   PageBridge
	resolver *Resolver
	logger   *zap.Logger

	inputs  SelectorGroup
	compose SelectorGroup
	// buttonXPath addresses the send control that was clicked, for the
	// now-disabled check.
	buttonXPath string
	// composeWasOpen records whether the compose surface was detectable
	// before the click; only then does its disappearance count as evidence.
	composeWasOpen bool

	poll time.Duration
}

// NewVerifier builds a verifier bound to one send attempt.
func NewVerifier(bridge PageBridge, resolver *Resolver, sel SelectorSet, buttonXPath string, composeWasOpen bool, poll time.Duration, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{
		bridge:         bridge,
		resolver:       resolver,
		logger:         logger.Named("verifier"),
		inputs:         sel.Input,
		compose:        sel.Compose,
		buttonXPath:    buttonXPath,
		composeWasOpen: composeWasOpen,
		poll:           poll,
	}
}

// QuickCheck polls for local click evidence (input emptied or button
// disabled) within the window. Used per click strategy.
func (v *Verifier) QuickCheck(ctx context.Context, window time.Duration) (bool, error) {
	return v.pollEvidence(ctx, window, false)
}

// Confirm polls for end-to-end send confirmation within the window. In
// addition to the quick signals, a compose surface that was open and is no
// longer detectable counts as implicit success.
func (v *Verifier) Confirm(ctx context.Context, window time.Duration) (bool, error) {
	return v.pollEvidence(ctx, window, true)
}

// pollEvidence returns true on the first positive signal. It returns false
// only once the whole window has elapsed without one — never earlier.
func (v *Verifier) pollEvidence(ctx context.Context, window time.Duration, composeGone bool) (bool, error) {
	attempts := int(window / v.poll)
	if attempts < 1 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		ok, err := v.checkOnce(ctx, composeGone)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			// Transient DOM read failure: this pass failed, the next polls.
			v.logger.Debug("Evidence check failed", zap.Error(err))
		} else if ok {
			return true, nil
		}
		if err := v.bridge.Sleep(ctx, v.poll); err != nil {
			return false, err
		}
	}
	return false, nil
}

// checkOnce evaluates all evidence against one fresh snapshot.
func (v *Verifier) checkOnce(ctx context.Context, composeGone bool) (bool, error) {
	root, err := v.bridge.Snapshot(ctx)
	if err != nil {
		return false, err
	}

	if v.inputEmptied(root) {
		v.logger.Debug("Evidence: message input is empty")
		return true, nil
	}

	if v.buttonDisabled(root) {
		v.logger.Debug("Evidence: send button is now disabled")
		return true, nil
	}

	if composeGone && v.composeWasOpen && len(v.compose) > 0 {
		if v.resolver.Resolve(root, v.compose) == nil {
			// Heuristic assumption: a compose surface closing is consistent
			// with successful submission.
			v.logger.Debug("Evidence: compose surface no longer detectable")
			return true, nil
		}
	}

	return false, nil
}

// inputEmptied reports whether the message input, located via the site's
// known input selectors, now holds no text.
func (v *Verifier) inputEmptied(root *html.Node) bool {
	c := v.resolver.Resolve(root, v.inputs)
	if c == nil {
		return false
	}
	return strings.TrimSpace(inputText(c)) == ""
}

// inputText reads the current text of a text-like or rich-text input from
// the annotated snapshot.
func inputText(c *Candidate) string {
	// The bridge mirrors live .value into the annotation; serialized HTML
	// would not otherwise carry it.
	if c.HasAttr(AttrValue) {
		return c.Attr(AttrValue)
	}
	switch c.Tag {
	case "input":
		return c.Attr("value")
	case "textarea":
		return c.Text
	}
	// contenteditable and other rich-text surfaces.
	return c.Text
}

// buttonDisabled reports whether the previously-enabled send control is now
// observed disabled.
func (v *Verifier) buttonDisabled(root *html.Node) bool {
	if v.buttonXPath == "" {
		return false
	}
	nodes, err := htmlquery.QueryAll(root, v.buttonXPath)
	if err != nil || len(nodes) == 0 {
		return false
	}
	c := NewCandidate(nodes[0], 0)
	return c.Disabled()
}
