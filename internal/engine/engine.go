// File: internal/engine/engine.go
// The send pipeline: discovery -> click strategies -> outcome verification.
//
// Everything here is recovered locally at the smallest unit possible (one
// selector, one strategy) and escalates only once every avenue is
// exhausted. Worst case is a reported failure requiring the user to send
// manually, which is always possible.
package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrNotFound means no candidate element was located after all
	// discovery phases. The caller should suggest manual send.
	ErrNotFound = errors.New("send control not found")
	// ErrInteractionFailed means a candidate was found but no click
	// strategy produced a verified state change.
	ErrInteractionFailed = errors.New("no click strategy produced a verified state change")
	// ErrVerificationTimeout means the click ran but no positive evidence
	// appeared before the confirmation window elapsed.
	ErrVerificationTimeout = errors.New("send not confirmed before verification window elapsed")
	// ErrBusy rejects a second AttemptSend while one is already in flight.
	ErrBusy = errors.New("a send attempt is already in flight")
)

// Config carries the engine's timing knobs.
type Config struct {
	// GracePeriod before the second discovery phase retries.
	GracePeriod time.Duration
	// StepDelay between click-strategy sub-steps.
	StepDelay time.Duration
	// SettleDelay between dispatch and the strategy's local verification.
	SettleDelay time.Duration
	// QuickWindow bounds a single strategy's verification.
	QuickWindow time.Duration
	// ConfirmWindow bounds end-to-end confirmation.
	ConfirmWindow time.Duration
	// PollInterval is the verifier's polling cadence.
	PollInterval time.Duration
}

func (c *Config) setDefaults() {
	if c.GracePeriod <= 0 {
		c.GracePeriod = time.Second
	}
	if c.StepDelay <= 0 {
		c.StepDelay = 30 * time.Millisecond
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 1500 * time.Millisecond
	}
	if c.QuickWindow <= 0 {
		c.QuickWindow = 1500 * time.Millisecond
	}
	if c.ConfirmWindow <= 0 {
		c.ConfirmWindow = 10 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
}

// SendEngine locates the host page's send control, activates it, and
// verifies the outcome. One engine per attached page; all state is
// re-derived from the live DOM on every attempt because the host page's
// structure cannot be assumed stable between invocations.
type SendEngine struct {
	bridge   PageBridge
	sel      SelectorSet
	cfg      Config
	logger   *zap.Logger
	resolver *Resolver
	metrics  *Metrics

	inFlight atomic.Bool
}

// New builds a send engine for one page. A nil metrics gets a private one;
// pass a shared instance to feed the resource monitor.
func New(bridge PageBridge, sel SelectorSet, cfg Config, metrics *Metrics, logger *zap.Logger) *SendEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = &Metrics{}
	}
	cfg.setDefaults()
	return &SendEngine{
		bridge:   bridge,
		sel:      sel,
		cfg:      cfg,
		logger:   logger.Named("engine"),
		resolver: NewResolver(bridge, logger),
		metrics:  metrics,
	}
}

// Metrics exposes the engine's counters.
func (e *SendEngine) Metrics() *Metrics { return e.metrics }

// Resolver exposes the engine's selector resolver for adapters that need
// deferred resolution (e.g. waiting for a compose surface to open).
func (e *SendEngine) Resolver() *Resolver { return e.resolver }

// AttemptSend runs the full pipeline. targetHint, when non-empty, is an
// XPath the adapter already trusts; it is tried before discovery. The bool
// result is the SendOutcome: true confirmed, false failed. Duplicate
// concurrent invocations (e.g. a double-click upstream) are rejected with
// ErrBusy rather than racing the same page.
func (e *SendEngine) AttemptSend(ctx context.Context, targetHint string) (bool, error) {
	if !e.inFlight.CompareAndSwap(false, true) {
		e.metrics.Rejected.Add(1)
		return false, ErrBusy
	}
	defer e.inFlight.Store(false)

	e.metrics.Attempts.Add(1)
	log := e.logger.With(zap.String("attemptID", uuid.NewString()))
	log.Info("Send attempt starting")

	target, err := e.locate(ctx, targetHint, log)
	if err != nil {
		return false, err
	}
	if target == nil {
		e.metrics.NotFound.Add(1)
		log.Warn("Send attempt failed: control not found")
		return false, ErrNotFound
	}
	log.Info("Send control resolved",
		zap.String("xpath", target.XPath), zap.String("tag", target.Tag))

	composeOpen := e.composeDetected(ctx)

	verifier := NewVerifier(e.bridge, e.resolver, e.sel, target.XPath, composeOpen, e.cfg.PollInterval, log)
	clicker := NewClicker(e.bridge, e.cfg.StepDelay, e.cfg.SettleDelay, log)

	strategy, err := clicker.Click(ctx, target, func(vctx context.Context) (bool, error) {
		return verifier.QuickCheck(vctx, e.cfg.QuickWindow)
	})
	if err != nil {
		if errors.Is(err, ErrInteractionFailed) {
			e.metrics.InteractionFailed.Add(1)
			log.Warn("Send attempt failed: all click strategies exhausted")
		}
		return false, err
	}

	confirmed, err := verifier.Confirm(ctx, e.cfg.ConfirmWindow)
	if err != nil {
		return false, err
	}
	if !confirmed {
		e.metrics.Unconfirmed.Add(1)
		log.Warn("Click ran but send was never confirmed",
			zap.String("strategy", string(strategy)))
		return false, ErrVerificationTimeout
	}

	e.metrics.Confirmed.Add(1)
	log.Info("Send confirmed", zap.String("strategy", string(strategy)))
	return true, nil
}

// locate resolves the hint if one was given, then falls back to phased
// discovery.
func (e *SendEngine) locate(ctx context.Context, hint string, log *zap.Logger) (*Candidate, error) {
	if hint != "" {
		c, err := e.resolver.ResolveLive(ctx, SelectorGroup{hint})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Debug("Hint resolution failed", zap.Error(err))
		}
		if c != nil {
			log.Debug("Using adapter-supplied target hint", zap.String("hint", hint))
			return c, nil
		}
		log.Debug("Target hint did not resolve, falling back to discovery")
	}

	d := NewDiscoverer(e.bridge, e.resolver, e.cfg.GracePeriod, log)
	return d.FindSendControl(ctx, e.sel.SendButton)
}

// composeDetected records whether the compose surface is present before the
// click, so its later disappearance can count as evidence.
func (e *SendEngine) composeDetected(ctx context.Context) bool {
	if len(e.sel.Compose) == 0 {
		return false
	}
	c, err := e.resolver.ResolveLive(ctx, e.sel.Compose)
	return err == nil && c != nil
}
