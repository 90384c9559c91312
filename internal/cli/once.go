package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/castlebot/internal/chat"
	"github.com/roach88/castlebot/internal/config"
	"github.com/roach88/castlebot/internal/fetch"
	"github.com/roach88/castlebot/internal/store"
	"github.com/roach88/castlebot/internal/syncer"
)

// OnceOptions holds flags for the once command.
type OnceOptions struct {
	*RootOptions
	Database string
}

// NewOnceCommand creates the once command.
func NewOnceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OnceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "once",
		Short: "Run a single sync cycle and exit",
		Long: `Fetch the campaign once, record any new donations, announce them,
and exit. Useful for cron-style scheduling instead of the long-running
"castlebot run" loop.

Example:
  castlebot once --config castlebot.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")

	return cmd
}

func runOnce(opts *OnceOptions, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.DBPath = opts.Database
	}
	if err := cfg.ValidateForRun(); err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	slack, err := chat.NewSlack(cfg.Token)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create chat client", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := slack.AuthTest(ctx); err != nil {
		return WrapExitError(ExitFailure, "chat authentication failed", err)
	}
	channelID, err := slack.ResolveChannel(ctx, cfg.Channel)
	if err != nil {
		return WrapExitError(ExitFailure, "channel resolution failed", err)
	}

	s := syncer.New(
		fetch.NewClient(),
		st,
		slack,
		channelID,
		cfg.Campaign,
		cfg.RefreshInterval(),
		syncer.WithFetchTimeout(cfg.FetchTimeout()),
	)

	if err := s.SyncOnce(ctx); err != nil {
		return WrapExitError(ExitFailure, "sync cycle failed", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Sync complete.")
	return nil
}
