// File: internal/engine/discovery.go
package engine

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// formSubmitXPath finds submit-like controls within a form scope.
const formSubmitXPath = `.//input[@type='submit'] | .//button[not(@type) or @type='submit']`

// Discoverer locates the send control through three escalating phases:
// known selectors immediately, known selectors again after a grace period
// for late-mounted UI, then a heuristic full-page scan. Phases run strictly
// in order; each is attempted only when the previous produced nothing.
type Discoverer struct {
	bridge   PageBridge
	resolver *Resolver
	logger   *zap.Logger
	grace    time.Duration
}

// NewDiscoverer wires a discoverer over the bridge and resolver.
func NewDiscoverer(bridge PageBridge, resolver *Resolver, grace time.Duration, logger *zap.Logger) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{
		bridge:   bridge,
		resolver: resolver,
		logger:   logger.Named("discovery"),
		grace:    grace,
	}
}

// FindSendControl runs the phases and returns the winning candidate, or nil
// when every phase is exhausted. Exhaustion is terminal for this attempt:
// more retries would not plausibly change the outcome without a new user
// action.
func (d *Discoverer) FindSendControl(ctx context.Context, group SelectorGroup) (*Candidate, error) {
	// Phase 1: known selectors, immediate.
	c, err := d.resolver.ResolveLive(ctx, group)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		d.logger.Debug("Phase 1 snapshot failed", zap.Error(err))
	}
	if c != nil {
		d.logger.Debug("Send control found in phase 1", zap.String("xpath", c.XPath))
		return c, nil
	}

	// Phase 2: same selectors after a grace period, covering UI that mounts
	// shortly after a compose/reply action opens.
	d.logger.Debug("Phase 1 exhausted, waiting grace period", zap.Duration("grace", d.grace))
	if err := d.bridge.Sleep(ctx, d.grace); err != nil {
		return nil, err
	}
	c, err = d.resolver.ResolveLive(ctx, group)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		d.logger.Debug("Phase 2 snapshot failed", zap.Error(err))
	}
	if c != nil {
		d.logger.Debug("Send control found in phase 2", zap.String("xpath", c.XPath))
		return c, nil
	}

	// Phase 3: heuristic full-page scan.
	d.logger.Debug("Phase 2 exhausted, scanning whole page")
	root, err := d.bridge.Snapshot(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		d.logger.Warn("Phase 3 snapshot failed", zap.Error(err))
		return nil, nil
	}

	if c := d.scanInteractive(root); c != nil {
		d.logger.Info("Send control found by heuristic scan",
			zap.String("xpath", c.XPath), zap.Int("score", c.Score))
		return c, nil
	}

	if c := d.lastFormFallback(root); c != nil {
		d.logger.Info("Send control assumed from last form's final submit control",
			zap.String("xpath", c.XPath))
		return c, nil
	}

	d.logger.Warn("All discovery phases exhausted, no send control")
	return nil, nil
}

// interactive reports whether the element looks clickable: buttons,
// submit-ish inputs, ARIA buttons, elements with inline click handlers, and
// button-like class names.
func interactive(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch strings.ToLower(n.Data) {
	case "button":
		return true
	case "input":
		switch strings.ToLower(htmlquery.SelectAttr(n, "type")) {
		case "submit", "button", "image":
			return true
		}
	}
	if strings.EqualFold(htmlquery.SelectAttr(n, "role"), "button") {
		return true
	}
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, "onclick") {
			return true
		}
	}
	class := strings.ToLower(htmlquery.SelectAttr(n, "class"))
	return strings.Contains(class, "btn") || strings.Contains(class, "button")
}

// scanInteractive scores every visible interactive-looking element and
// returns the best positive scorer. Candidates are enumerated by a single
// pre-order walk so DocOrder is true document position: ties between equal
// scores go to the element appearing first in the document.
func (d *Discoverer) scanInteractive(root *html.Node) *Candidate {
	var candidates []*Candidate
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if interactive(n) && Visible(n) {
			c := NewCandidate(n, len(candidates))
			c.Score = ScoreSendCandidate(c)
			candidates = append(candidates, c)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	if len(candidates) > 0 && candidates[0].Score > 0 {
		return candidates[0]
	}
	return nil
}

// lastFormFallback returns the last visible submit-like control of the last
// form on the page. Reply/send controls are conventionally the final
// actionable element in a composition form.
func (d *Discoverer) lastFormFallback(root *html.Node) *Candidate {
	forms := htmlquery.Find(root, "//form")
	if len(forms) == 0 {
		return nil
	}
	last := forms[len(forms)-1]

	submits := htmlquery.Find(last, formSubmitXPath)
	for i := len(submits) - 1; i >= 0; i-- {
		if Visible(submits[i]) {
			c := NewCandidate(submits[i], i)
			c.Score = ScoreSendCandidate(c)
			if c.Score <= FileVetoScore {
				// A vetoed control is never a send candidate, even here.
				continue
			}
			return c
		}
	}
	return nil
}
