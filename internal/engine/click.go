// File: internal/engine/click.go
package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Strategy identifies one simulated-interaction technique. Strategies are
// independent and stateless; exactly one is current during execution.
type Strategy string

const (
	StrategyPointer Strategy = "pointer-events"
	StrategyMouse   Strategy = "mouse-events"
	StrategyInvoke  Strategy = "direct-invocation"
	StrategySubmit  Strategy = "form-submission"
)

// strategyOrder is fixed. Execution stops at the first strategy whose
// post-attempt verification succeeds.
var strategyOrder = []Strategy{StrategyPointer, StrategyMouse, StrategyInvoke, StrategySubmit}

// VerifyFunc is the post-attempt check a strategy must pass. It owns its own
// polling window.
type VerifyFunc func(ctx context.Context) (bool, error)

// Clicker attempts interaction strategies against a resolved target until
// one produces a verified state change.
type Clicker struct {
	bridge      PageBridge
	logger      *zap.Logger
	stepDelay   time.Duration // between sub-steps, mimics human timing
	settleDelay time.Duration // before verification, lets page handlers react
}

// NewClicker builds a strategy executor.
func NewClicker(bridge PageBridge, stepDelay, settleDelay time.Duration, logger *zap.Logger) *Clicker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Clicker{
		bridge:      bridge,
		logger:      logger.Named("clicker"),
		stepDelay:   stepDelay,
		settleDelay: settleDelay,
	}
}

// Click walks the strategy order. A strategy that throws is logged and the
// next one tried; a strategy that runs but fails verification is treated the
// same way, since the click may have silently succeeded via a signal the
// verifier doesn't check. Returns the verified strategy, or
// ErrInteractionFailed when all are exhausted.
func (c *Clicker) Click(ctx context.Context, target *Candidate, verify VerifyFunc) (Strategy, error) {
	if target == nil {
		return "", ErrNotFound
	}

	for _, s := range strategyOrder {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if s == StrategySubmit && !target.InForm() {
			c.logger.Debug("Skipping form submission, target not in a form")
			continue
		}

		c.logger.Debug("Attempting click strategy",
			zap.String("strategy", string(s)), zap.String("xpath", target.XPath))

		if err := c.attempt(ctx, s, target); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			c.logger.Warn("Click strategy failed, trying next",
				zap.String("strategy", string(s)), zap.Error(err))
			continue
		}

		// Let the host page react before checking evidence.
		if err := c.bridge.Sleep(ctx, c.settleDelay); err != nil {
			return "", err
		}

		ok, err := verify(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			c.logger.Warn("Verification errored after strategy, trying next",
				zap.String("strategy", string(s)), zap.Error(err))
			continue
		}
		if ok {
			c.logger.Info("Click strategy verified", zap.String("strategy", string(s)))
			return s, nil
		}
		c.logger.Debug("No send evidence after strategy, trying next",
			zap.String("strategy", string(s)))
	}

	return "", ErrInteractionFailed
}

// attempt runs one strategy: focus, a small human-ish pause, then the
// strategy's dispatch.
func (c *Clicker) attempt(ctx context.Context, s Strategy, target *Candidate) error {
	if err := c.bridge.Focus(ctx, target.XPath); err != nil {
		// Focus failures are not fatal; some hosts steal focus constantly.
		c.logger.Debug("Focus failed before dispatch", zap.Error(err))
	}
	if err := c.bridge.Sleep(ctx, c.stepDelay); err != nil {
		return err
	}

	switch s {
	case StrategyPointer:
		return c.bridge.DispatchPointerClick(ctx, target.XPath)
	case StrategyMouse:
		return c.bridge.DispatchMouseClick(ctx, target.XPath)
	case StrategyInvoke:
		return c.bridge.Invoke(ctx, target.XPath)
	case StrategySubmit:
		return c.bridge.SubmitForm(ctx, target.XPath)
	}
	return nil
}
