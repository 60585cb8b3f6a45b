// File: cmd/watch.go
package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/replykit/internal/browser/session"
	"github.com/xkilldash9x/replykit/internal/engine"
	"github.com/xkilldash9x/replykit/internal/llmclient"
	"github.com/xkilldash9x/replykit/internal/monitor"
	"github.com/xkilldash9x/replykit/internal/orchestrator"
	"github.com/xkilldash9x/replykit/internal/sites"
)

func newWatchCommand(a *app) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the open page and reply whenever new messages arrive",
		Long: `Attaches to the running browser and polls the open conversation. When the
newest message changes, the pipeline generates and sends one reply. Runs
until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWatch(cmd.Context(), interval)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 15*time.Second, "how often to poll the conversation")
	return cmd
}

func (a *app) runWatch(ctx context.Context, interval time.Duration) error {
	bridge, err := session.NewBridge(ctx, a.cfg.Browser(), a.logger)
	if err != nil {
		return err
	}
	defer bridge.Close()

	generator, err := llmclient.NewGenerator(a.cfg.LLM(), a.logger)
	if err != nil {
		return err
	}

	recorder, closeRecorder, err := a.openRecorder(ctx)
	if err != nil {
		return err
	}
	defer closeRecorder()

	metrics := &engine.Metrics{}
	o := orchestrator.New(bridge, generator, recorder, metrics, a.cfg, a.logger)

	g, gctx := errgroup.WithContext(ctx)

	if a.cfg.Monitor().Enabled {
		mon := monitor.New(a.cfg.Monitor(), metrics, a.logger)
		mon.Start(gctx)
		defer mon.Stop()
	}

	g.Go(func() error {
		return a.watchLoop(gctx, o, bridge, interval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// watchLoop polls the page and replies when the newest message changes.
// Per-iteration failures are logged and the loop continues; only context
// cancellation ends it.
func (a *app) watchLoop(ctx context.Context, o *orchestrator.Orchestrator, bridge *session.Bridge, interval time.Duration) error {
	log := a.logger.Named("watch")
	log.Info("Watching page", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastSeen string
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		key, err := a.newestMessageKey(ctx, bridge)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("Could not read page state", zap.Error(err))
			continue
		}
		if key == "" || key == lastSeen {
			continue
		}

		url, err := bridge.PageURL(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("Could not read page URL", zap.Error(err))
			continue
		}

		res, err := o.RunOnce(ctx, url)
		switch {
		case err == nil:
			log.Info("Reply sent", zap.String("site", res.Site))
			lastSeen = key
		case errors.Is(err, orchestrator.ErrUnsupportedPage),
			errors.Is(err, orchestrator.ErrNoConversation):
			log.Debug("Nothing to reply to on this page", zap.Error(err))
		case errors.Is(err, engine.ErrBusy):
			log.Debug("Previous attempt still in flight")
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			// One failed attempt must not kill the watch session; the next
			// message change retries.
			log.Warn("Reply attempt failed", zap.Error(err))
			lastSeen = key
		}
	}
}

// newestMessageKey identifies the latest conversation message so the loop
// replies once per message, not once per tick.
func (a *app) newestMessageKey(ctx context.Context, bridge *session.Bridge) (string, error) {
	root, err := bridge.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	url, err := bridge.PageURL(ctx)
	if err != nil {
		return "", err
	}

	adapter := sites.Detect(url, root)
	if adapter == nil {
		return "", nil
	}
	messages := adapter.ExtractMessages(root)
	if len(messages) == 0 {
		return "", nil
	}
	last := messages[len(messages)-1]
	return last.Author + "\x00" + last.Text, nil
}
