// File: cmd/root.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/replykit/internal/config"
	"github.com/xkilldash9x/replykit/internal/observability"
)

// app carries the state PersistentPreRunE builds for the subcommands.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewRootCommand builds the command tree. A fresh tree per invocation keeps
// flag state from leaking between runs.
func NewRootCommand() *cobra.Command {
	a := &app{}
	var cfgFile string

	root := &cobra.Command{
		Use:     "replykit",
		Short:   "ReplyKit drafts and sends chat replies through a live browser page.",
		Long: `ReplyKit attaches to a running browser over the DevTools protocol,
reads the open conversation (Gmail, Slack, Chatwork, LINE Official Account
Manager), generates a reply, inserts it into the page's compose field, and
activates the page's own send control.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path := cfgFile
			if path == "" {
				path = defaultConfigFile()
			}
			cfg, err := config.Load(path)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "replykit"})
				return fmt.Errorf("loading configuration: %w", err)
			}

			observability.InitializeLogger(cfg.Logger())
			a.cfg = cfg
			a.logger = observability.GetLogger()
			a.logger.Info("Starting ReplyKit", zap.String("version", Version))
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./replykit.yaml or ~/.config/replykit/replykit.yaml)")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(newReplyCommand(a))
	root.AddCommand(newWatchCommand(a))
	return root
}

// Execute runs the CLI under the given context.
func Execute(ctx context.Context) error {
	root := NewRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("Command execution failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		return err
	}
	return nil
}

// defaultConfigFile prefers a config in the working directory, then the
// user's config directory. Empty means "defaults and env vars only".
func defaultConfigFile() string {
	if _, err := os.Stat("replykit.yaml"); err == nil {
		return "replykit.yaml"
	}
	home, err := homedir.Dir()
	if err != nil {
		return ""
	}
	path := filepath.Join(home, ".config", "replykit", "replykit.yaml")
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}
