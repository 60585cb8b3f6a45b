// File: internal/browser/session/bridge.go
// The production page bridge: a chromedp session attached to a running
// Chrome (or a locally launched headless one) exposing the page operations
// the send engine needs. Elements are addressed by XPath; page facts the
// serialized DOM cannot carry (layout visibility, input values) are stamped
// onto the page as annotation attributes right before every snapshot.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/replykit/internal/config"
	"github.com/xkilldash9x/replykit/internal/engine"
)

// mutationBinding is the CDP binding name the injected observer reports
// through.
const mutationBinding = "__replykitMutation"

// Bridge implements engine.PageBridge over a live CDP session.
type Bridge struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	// ctx is the chromedp target context; it carries the CDP connection and
	// outlives any single operation.
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc

	mu      sync.Mutex
	subs    map[int]chan struct{}
	nextSub int

	// observerReady flips once the mutation observer is installed. A failed
	// install is not cached: the next subscriber retries it.
	observerMu    sync.Mutex
	observerReady bool
	installFn     func(ctx context.Context) error
}

// NewBridge attaches to the DevTools endpoint from the configuration, or
// launches a local Chrome when none is configured. The returned bridge owns
// the browser contexts; Close releases them.
func NewBridge(parent context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Bridge, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("bridge")

	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if cfg.AttachURL != "" {
		logger.Info("Attaching to running browser", zap.String("attachUrl", cfg.AttachURL))
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(parent, cfg.AttachURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", cfg.Headless),
		)
		logger.Info("Launching local browser", zap.Bool("headless", cfg.Headless))
		allocCtx, allocCancel = chromedp.NewExecAllocator(parent, opts...)
	}

	ctx, cancel := chromedp.NewContext(allocCtx)

	b := &Bridge{
		cfg:         cfg,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		allocCancel: allocCancel,
		subs:        make(map[int]chan struct{}),
	}
	b.installFn = b.installObserver

	// The binding listener lives for the whole session, independent of when
	// (or how often) the observer install itself runs.
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		if e, ok := ev.(*runtime.EventBindingCalled); ok && e.Name == mutationBinding {
			b.notify()
		}
	})

	// Establish the connection now so configuration problems surface at
	// startup, not mid-pipeline.
	if err := chromedp.Run(ctx); err != nil {
		b.Close()
		return nil, fmt.Errorf("establishing browser session: %w", err)
	}
	return b, nil
}

// Close tears down the browser contexts.
func (b *Bridge) Close() {
	if b.cancel != nil {
		b.cancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
}

// Navigate loads the URL and waits for the document to become ready.
func (b *Bridge) Navigate(ctx context.Context, url string) error {
	b.logger.Info("Navigating", zap.String("url", url))
	err := b.run(ctx, b.cfg.NavigationTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// PageURL reports the page's current location.
func (b *Bridge) PageURL(ctx context.Context) (string, error) {
	var url string
	if err := b.run(ctx, b.cfg.SnapshotTimeout, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("reading page location: %w", err)
	}
	return url, nil
}

// run executes chromedp actions on the target context, bounded by the
// caller's context and an optional timeout. Context errors win over
// chromedp's own, matching how callers branch on them.
func (b *Bridge) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	opCtx, cancel := combineContext(b.ctx, ctx)
	defer cancel()
	if timeout > 0 {
		var tcancel context.CancelFunc
		opCtx, tcancel = context.WithTimeout(opCtx, timeout)
		defer tcancel()
	}

	if err := chromedp.Run(opCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// evaluate runs a script expected to yield true.
func (b *Bridge) evaluate(ctx context.Context, script string) error {
	var ok bool
	return b.run(ctx, b.cfg.SnapshotTimeout, chromedp.Evaluate(script, &ok))
}

// -- engine.PageBridge implementation --

// Snapshot annotates the live page and returns the parsed serialized DOM.
func (b *Bridge) Snapshot(ctx context.Context) (*html.Node, error) {
	var outer string
	err := b.run(ctx, b.cfg.SnapshotTimeout,
		chromedp.Evaluate(annotateScript, nil),
		chromedp.OuterHTML("html", &outer, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("capturing page snapshot: %w", err)
	}

	root, err := htmlquery.Parse(strings.NewReader(outer))
	if err != nil {
		return nil, fmt.Errorf("parsing page snapshot: %w", err)
	}
	return root, nil
}

// Mutations subscribes to debounced MutationObserver batches from the page.
// The observer is installed on the first successful subscription and
// re-installed on navigation via an on-new-document script. A transient
// install failure only fails this subscription; later ones retry.
func (b *Bridge) Mutations(ctx context.Context) (<-chan struct{}, func(), error) {
	b.observerMu.Lock()
	if !b.observerReady {
		if err := b.installFn(ctx); err != nil {
			b.observerMu.Unlock()
			return nil, nil, fmt.Errorf("installing mutation observer: %w", err)
		}
		b.observerReady = true
	}
	b.observerMu.Unlock()

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

func (b *Bridge) installObserver(ctx context.Context) error {
	script := mutationObserverScript(mutationBinding, b.cfg.MutationDebounce.Milliseconds())

	return b.run(ctx, b.cfg.SnapshotTimeout,
		chromedp.ActionFunc(func(ctx context.Context) error {
			if err := runtime.AddBinding(mutationBinding).Do(ctx); err != nil {
				return err
			}
			// Survive reloads and SPA navigations.
			_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
			return err
		}),
		chromedp.Evaluate(script, nil),
	)
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

// Focus moves page focus to the element.
func (b *Bridge) Focus(ctx context.Context, xpath string) error {
	return b.run(ctx, b.cfg.SnapshotTimeout, chromedp.Focus(xpath, chromedp.BySearch))
}

// DispatchPointerClick clicks through CDP input events at the element's
// center: the events arrive trusted (isTrusted=true), indistinguishable
// from hardware input.
func (b *Bridge) DispatchPointerClick(ctx context.Context, xpath string) error {
	var nodes []*cdp.Node
	err := b.run(ctx, b.cfg.SnapshotTimeout,
		chromedp.Nodes(xpath, &nodes, chromedp.BySearch),
	)
	if err != nil {
		return fmt.Errorf("resolving click target %q: %w", xpath, err)
	}
	if len(nodes) == 0 {
		return fmt.Errorf("no node on live page for %q", xpath)
	}

	if err := b.run(ctx, b.cfg.SnapshotTimeout, chromedp.MouseClickNode(nodes[0])); err != nil {
		return fmt.Errorf("dispatching pointer click: %w", err)
	}
	return nil
}

// DispatchMouseClick fires the synthetic MouseEvent sequence in the page.
func (b *Bridge) DispatchMouseClick(ctx context.Context, xpath string) error {
	if err := b.evaluate(ctx, mouseEventScript(xpath)); err != nil {
		return fmt.Errorf("dispatching mouse events: %w", err)
	}
	return nil
}

// Invoke calls the element's native click() activation.
func (b *Bridge) Invoke(ctx context.Context, xpath string) error {
	if err := b.evaluate(ctx, invokeScript(xpath)); err != nil {
		return fmt.Errorf("invoking element activation: %w", err)
	}
	return nil
}

// SubmitForm submits the element's owning form.
func (b *Bridge) SubmitForm(ctx context.Context, xpath string) error {
	if err := b.evaluate(ctx, submitScript(xpath)); err != nil {
		return fmt.Errorf("submitting form: %w", err)
	}
	return nil
}

// SetText writes the text into the element and fires input/change events.
func (b *Bridge) SetText(ctx context.Context, xpath, text string) error {
	if err := b.evaluate(ctx, setTextScript(xpath, text)); err != nil {
		return fmt.Errorf("setting text on %q: %w", xpath, err)
	}
	return nil
}

// WriteClipboard puts the text on the page's clipboard.
func (b *Bridge) WriteClipboard(ctx context.Context, text string) error {
	var ok bool
	err := b.run(ctx, b.cfg.SnapshotTimeout,
		chromedp.Evaluate(clipboardScript(text), &ok,
			func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
				return p.WithAwaitPromise(true).WithUserGesture(true)
			}),
	)
	if err != nil {
		return fmt.Errorf("writing clipboard: %w", err)
	}
	return nil
}

// Sleep waits in real time, honoring the context.
func (b *Bridge) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ engine.PageBridge = (*Bridge)(nil)
