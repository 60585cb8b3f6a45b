// File: cmd/reply.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/replykit/internal/browser/session"
	"github.com/xkilldash9x/replykit/internal/dombridge"
	"github.com/xkilldash9x/replykit/internal/engine"
	"github.com/xkilldash9x/replykit/internal/history"
	"github.com/xkilldash9x/replykit/internal/llmclient"
	"github.com/xkilldash9x/replykit/internal/orchestrator"
	"github.com/xkilldash9x/replykit/internal/sites"
)

func newReplyCommand(a *app) *cobra.Command {
	var pageURL string
	var htmlFile string

	cmd := &cobra.Command{
		Use:   "reply",
		Short: "Generate and send one reply on the current page",
		Long: `Runs the pipeline once: detect the site, read the conversation, generate
a reply, insert it into the compose field, and activate the send control.

With --html the pipeline runs against a saved page snapshot instead of a
live browser: the reply is generated and inserted in memory and the send
control is located, but nothing is clicked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if htmlFile != "" {
				return a.runDryRun(cmd, htmlFile, pageURL)
			}
			return a.runReply(cmd.Context(), cmd, pageURL)
		},
	}

	cmd.Flags().StringVar(&pageURL, "url", "", "navigate to this URL before replying (default: the page already open)")
	cmd.Flags().StringVar(&htmlFile, "html", "", "dry run against a saved HTML file instead of a live page")
	return cmd
}

// runReply executes the pipeline against a live browser page.
func (a *app) runReply(ctx context.Context, cmd *cobra.Command, pageURL string) error {
	bridge, err := session.NewBridge(ctx, a.cfg.Browser(), a.logger)
	if err != nil {
		return err
	}
	defer bridge.Close()

	if pageURL != "" {
		if err := bridge.Navigate(ctx, pageURL); err != nil {
			return err
		}
	}
	currentURL, err := bridge.PageURL(ctx)
	if err != nil {
		return err
	}

	generator, err := llmclient.NewGenerator(a.cfg.LLM(), a.logger)
	if err != nil {
		return err
	}

	recorder, closeRecorder, err := a.openRecorder(ctx)
	if err != nil {
		return err
	}
	defer closeRecorder()

	o := orchestrator.New(bridge, generator, recorder, nil, a.cfg, a.logger)
	res, err := o.RunOnce(ctx, currentURL)
	return reportResult(cmd, res, err)
}

// runDryRun exercises detection, extraction, generation, insertion, and
// send-control discovery against a saved snapshot. No click is dispatched.
func (a *app) runDryRun(cmd *cobra.Command, htmlFile, pageURL string) error {
	ctx := cmd.Context()

	raw, err := os.ReadFile(htmlFile)
	if err != nil {
		return fmt.Errorf("reading snapshot file: %w", err)
	}
	bridge, err := dombridge.New(string(raw))
	if err != nil {
		return fmt.Errorf("parsing snapshot file: %w", err)
	}

	root, err := bridge.Snapshot(ctx)
	if err != nil {
		return err
	}
	adapter := sites.Detect(pageURL, root)
	if adapter == nil {
		return orchestrator.ErrUnsupportedPage
	}
	fmt.Fprintf(cmd.OutOrStdout(), "site: %s\n", adapter.Name())

	messages := adapter.ExtractMessages(root)
	if len(messages) == 0 {
		return orchestrator.ErrNoConversation
	}
	fmt.Fprintf(cmd.OutOrStdout(), "conversation: %d message(s), latest from %q\n",
		len(messages), messages[len(messages)-1].Author)

	reply, err := (&llmclient.TemplateGenerator{}).GenerateReply(ctx, llmclient.ReplyRequest{
		Site:     adapter.Name(),
		Messages: messages,
		Language: a.cfg.Reply().Language,
		Tone:     a.cfg.Reply().Tone,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "reply: %s\n", reply)

	// A static snapshot never mounts anything late, so don't wait on it.
	if err := adapter.InsertReply(ctx, bridge, reply, 0); err != nil {
		return err
	}

	resolver := engine.NewResolver(bridge, a.logger)
	d := engine.NewDiscoverer(bridge, resolver, a.cfg.Engine().GracePeriod, a.logger)
	target, err := d.FindSendControl(ctx, adapter.Selectors().SendButton)
	if err != nil {
		return err
	}
	if target == nil {
		return engine.ErrNotFound
	}
	fmt.Fprintf(cmd.OutOrStdout(), "send control: <%s> %q at %s\n", target.Tag, target.Text, target.XPath)
	return nil
}

// openRecorder connects the optional history store. The no-op close keeps
// call sites uniform.
func (a *app) openRecorder(ctx context.Context) (orchestrator.Recorder, func(), error) {
	if !a.cfg.History().Enabled {
		return nil, func() {}, nil
	}
	pool, err := pgxpool.New(ctx, a.cfg.History().DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting history database: %w", err)
	}
	store, err := history.New(ctx, pool, a.logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool.Close, nil
}

// reportResult turns a pipeline outcome into user-facing output and the
// process exit status.
func reportResult(cmd *cobra.Command, res *orchestrator.Result, err error) error {
	if res != nil && res.Reply != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "site: %s\nreply: %s\n", res.Site, res.Reply)
	}
	switch {
	case err == nil:
		fmt.Fprintln(cmd.OutOrStdout(), "sent: confirmed")
		return nil
	case errors.Is(err, sites.ErrClipboardFallback):
		fmt.Fprintln(cmd.OutOrStdout(), "sent: no (reply is on the clipboard, paste and send manually)")
		return err
	case errors.Is(err, engine.ErrVerificationTimeout):
		fmt.Fprintln(cmd.OutOrStdout(), "sent: unconfirmed (check the page before retrying)")
		return err
	case errors.Is(err, engine.ErrNotFound):
		fmt.Fprintln(cmd.OutOrStdout(), "sent: no (send control not found, send manually)")
		return err
	default:
		return err
	}
}
