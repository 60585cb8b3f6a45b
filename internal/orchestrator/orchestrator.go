// File: internal/orchestrator/orchestrator.go
// The reply pipeline: detect the site, scrape the conversation, generate a
// reply, insert it, and drive the send engine. The orchestrator owns the
// composition; each stage stays ignorant of the others.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/replykit/internal/config"
	"github.com/xkilldash9x/replykit/internal/engine"
	"github.com/xkilldash9x/replykit/internal/history"
	"github.com/xkilldash9x/replykit/internal/llmclient"
	"github.com/xkilldash9x/replykit/internal/retry"
	"github.com/xkilldash9x/replykit/internal/sites"
)

var (
	// ErrUnsupportedPage means no site adapter claimed the page.
	ErrUnsupportedPage = errors.New("no site adapter matches this page")
	// ErrNoConversation means the adapter extracted nothing to reply to.
	ErrNoConversation = errors.New("no conversation messages extracted")
)

// Recorder persists attempt outcomes. Satisfied by *history.Store; nil
// disables recording.
type Recorder interface {
	RecordAttempt(ctx context.Context, a history.Attempt) error
}

// Result reports one pipeline run.
type Result struct {
	Site  string
	Reply string
	// Sent is the verified send outcome. False with a nil insertion means
	// the reply is on the page (or clipboard) awaiting a manual send.
	Sent bool
}

// Orchestrator wires one page bridge to the reply pipeline.
type Orchestrator struct {
	bridge    engine.PageBridge
	generator llmclient.Generator
	recorder  Recorder
	metrics   *engine.Metrics
	cfg       config.Interface
	logger    *zap.Logger
}

// New composes the pipeline. metrics may be shared with a resource monitor;
// nil gets a private instance.
func New(bridge engine.PageBridge, generator llmclient.Generator, recorder Recorder, metrics *engine.Metrics, cfg config.Interface, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = &engine.Metrics{}
	}
	return &Orchestrator{
		bridge:    bridge,
		generator: generator,
		recorder:  recorder,
		metrics:   metrics,
		cfg:       cfg,
		logger:    logger.Named("orchestrator"),
	}
}

// Metrics exposes the shared engine counters.
func (o *Orchestrator) Metrics() *engine.Metrics { return o.metrics }

// RunOnce executes the full pipeline against the current page. The returned
// Result is valid whenever a reply was generated, even when the send itself
// failed.
func (o *Orchestrator) RunOnce(ctx context.Context, pageURL string) (*Result, error) {
	root, err := o.bridge.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("taking page snapshot: %w", err)
	}

	adapter := sites.Detect(pageURL, root)
	if adapter == nil {
		return nil, ErrUnsupportedPage
	}
	log := o.logger.With(zap.String("site", adapter.Name()))
	log.Info("Site adapter matched", zap.String("url", pageURL))

	messages := adapter.ExtractMessages(root)
	if max := o.cfg.Reply().MaxContextMessages; max > 0 && len(messages) > max {
		messages = messages[len(messages)-max:]
	}
	if len(messages) == 0 {
		return nil, ErrNoConversation
	}
	log.Info("Conversation extracted", zap.Int("messages", len(messages)))

	reply, err := o.generator.GenerateReply(ctx, llmclient.ReplyRequest{
		Site:     adapter.Name(),
		Messages: messages,
		Language: o.cfg.Reply().Language,
		Tone:     o.cfg.Reply().Tone,
	})
	if err != nil {
		return nil, fmt.Errorf("generating reply: %w", err)
	}
	result := &Result{Site: adapter.Name(), Reply: reply}

	// Insertion retries transient failures; the clipboard fallback is final
	// because re-running it cannot put the text into the page either.
	err = retry.Do(ctx, retry.DefaultPolicy(), func(ctx context.Context) error {
		ierr := adapter.InsertReply(ctx, o.bridge, reply, o.cfg.Engine().AwaitTimeout)
		if errors.Is(ierr, sites.ErrClipboardFallback) {
			return retry.Permanent(ierr)
		}
		return ierr
	})
	if err != nil {
		if errors.Is(err, sites.ErrClipboardFallback) {
			log.Warn("Reply not injected, left on clipboard")
			o.record(adapter.Name(), "clipboard-fallback", 0)
			return result, err
		}
		return result, fmt.Errorf("inserting reply: %w", err)
	}
	log.Info("Reply inserted into compose field")

	eng := engine.New(o.bridge, adapter.Selectors(), engineConfig(o.cfg.Engine()), o.metrics, o.logger)

	start := time.Now()
	sent, sendErr := eng.AttemptSend(ctx, "")
	result.Sent = sent
	o.record(adapter.Name(), outcomeOf(sent, sendErr), time.Since(start))

	if sendErr != nil {
		return result, fmt.Errorf("send attempt: %w", sendErr)
	}
	log.Info("Send confirmed")
	return result, nil
}

// record persists the outcome when a recorder is configured. History is
// telemetry: failures are logged and swallowed.
func (o *Orchestrator) record(site, outcome string, d time.Duration) {
	if o.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := o.recorder.RecordAttempt(ctx, history.Attempt{
		ID:         uuid.NewString(),
		Site:       site,
		Outcome:    outcome,
		Duration:   d,
		OccurredAt: time.Now(),
	})
	if err != nil {
		o.logger.Warn("Failed to record attempt history", zap.Error(err))
	}
}

func outcomeOf(sent bool, err error) string {
	switch {
	case sent:
		return "confirmed"
	case errors.Is(err, engine.ErrNotFound):
		return "not-found"
	case errors.Is(err, engine.ErrInteractionFailed):
		return "interaction-failed"
	case errors.Is(err, engine.ErrVerificationTimeout):
		return "unconfirmed"
	case errors.Is(err, engine.ErrBusy):
		return "rejected"
	default:
		return "error"
	}
}

// engineConfig maps the loaded configuration onto the engine's knobs.
func engineConfig(cfg config.EngineConfig) engine.Config {
	return engine.Config{
		GracePeriod:   cfg.GracePeriod,
		StepDelay:     cfg.StepDelay,
		SettleDelay:   cfg.SettleDelay,
		QuickWindow:   cfg.QuickWindow,
		ConfirmWindow: cfg.ConfirmWindow,
		PollInterval:  cfg.PollInterval,
	}
}
