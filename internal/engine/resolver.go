// File: internal/engine/resolver.go
package engine

import (
	"context"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Resolver locates elements from priority-ordered selector groups.
//
// Immediate mode walks the group in order and returns the first visible
// match; within a single selector, document order wins. Deferred mode
// re-runs immediate mode on every mutation batch until the element appears
// or the timeout elapses.
type Resolver struct {
	bridge PageBridge
	logger *zap.Logger
}

// NewResolver builds a resolver over the given bridge.
func NewResolver(bridge PageBridge, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{bridge: bridge, logger: logger.Named("resolver")}
}

// Resolve runs immediate mode against an already-captured snapshot.
// A malformed selector is logged and skipped, never fatal. Returns nil when
// nothing in the group matches a visible element.
func (r *Resolver) Resolve(root *html.Node, group SelectorGroup) *Candidate {
	if root == nil {
		return nil
	}
	for _, sel := range group {
		expr, err := xpath.Compile(sel)
		if err != nil {
			r.logger.Warn("Skipping malformed selector", zap.String("selector", sel), zap.Error(err))
			continue
		}
		nodes := htmlquery.QuerySelectorAll(root, expr)
		for i, n := range nodes {
			if Visible(n) {
				return NewCandidate(n, i)
			}
		}
	}
	return nil
}

// ResolveLive snapshots the page and runs immediate mode.
func (r *Resolver) ResolveLive(ctx context.Context, group SelectorGroup) (*Candidate, error) {
	root, err := r.bridge.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return r.Resolve(root, group), nil
}

// ResolveAwait runs immediate mode once and, on a miss, waits for the
// element to be inserted dynamically. Every mutation batch triggers a
// re-resolution. The timeout is a hard ceiling: the page may simply never
// produce the element, and the engine must not wait forever on it. The
// mutation subscription is disposed on every outcome.
//
// A (nil, nil) return means the timeout elapsed with no match.
func (r *Resolver) ResolveAwait(ctx context.Context, group SelectorGroup, timeout time.Duration) (*Candidate, error) {
	c, err := r.ResolveLive(ctx, group)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Debug("Initial resolution failed, falling through to mutation wait", zap.Error(err))
	}
	if c != nil {
		return c, nil
	}

	ch, stop, err := r.bridge.Mutations(ctx)
	if err != nil {
		return nil, err
	}
	defer stop()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			r.logger.Debug("Deferred resolution timed out", zap.Duration("timeout", timeout))
			return nil, nil
		case _, ok := <-ch:
			if !ok {
				return nil, nil
			}
			c, err := r.ResolveLive(ctx, group)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				// Transient DOM read failure; the next batch retries.
				r.logger.Debug("Resolution attempt failed on mutation batch", zap.Error(err))
				continue
			}
			if c != nil {
				return c, nil
			}
		}
	}
}
