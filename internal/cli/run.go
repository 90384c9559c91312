package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cenkalti/backoff/v5"
	"github.com/spf13/cobra"

	"github.com/roach88/castlebot/internal/chat"
	"github.com/roach88/castlebot/internal/config"
	"github.com/roach88/castlebot/internal/fetch"
	"github.com/roach88/castlebot/internal/health"
	"github.com/roach88/castlebot/internal/router"
	"github.com/roach88/castlebot/internal/store"
	"github.com/roach88/castlebot/internal/syncer"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the donation watcher",
		Long: `Start the castlebot sync loop and command listener.

The bot fetches the campaign immediately, then once per refresh interval.
New donations are recorded in the SQLite database and announced in the
configured channel. The database file must already exist (see "castlebot init").

Example:
  castlebot run --config castlebot.yaml
  CASTLEBOT_API_KEY=xoxb-... castlebot run --db ./data/castlebot.db --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")

	return cmd
}

func runBot(opts *RunOptions, cmd *cobra.Command) error {
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

	// The store is the only fatal startup dependency: a missing or
	// unreadable database file ends the process with a non-zero status.
	slog.Info("opening database", "path", cfg.DBPath)
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	slack, err := chat.NewSlack(cfg.Token)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create chat client", err)
	}

	// Setup signal handling for graceful shutdown
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	// Chat connect failures are not fatal: keep retrying with backoff until
	// the platform answers or the process is stopped.
	identity, err := backoff.Retry(ctx, func() (chat.Identity, error) {
		id, err := slack.AuthTest(ctx)
		if err != nil {
			slog.Warn("auth test failed, retrying", "error", err)
		}
		return id, err
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()))
	if err != nil {
		return WrapExitError(ExitFailure, "chat authentication abandoned", err)
	}
	slog.Info("authenticated", "bot", identity.Name, "user_id", identity.UserID)

	channelID, err := backoff.Retry(ctx, func() (string, error) {
		return slack.ResolveChannel(ctx, cfg.Channel)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()))
	if err != nil {
		return WrapExitError(ExitFailure, "channel resolution abandoned", err)
	}
	slog.Info("channel resolved", "channel", cfg.Channel, "id", channelID)

	s := syncer.New(
		fetch.NewClient(),
		st,
		slack,
		channelID,
		cfg.Campaign,
		cfg.RefreshInterval(),
		syncer.WithFetchTimeout(cfg.FetchTimeout()),
	)

	if cfg.HealthAddr != "" {
		go health.Serve(ctx, cfg.HealthAddr, s)
	}

	r := router.New(st, slack, cfg.Campaign, identity.UserID)
	go r.Run(ctx, slack.Poll(ctx, channelID))

	fmt.Fprintln(cmd.OutOrStdout(), "Castlebot started. Watching", cfg.Campaign)
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	if err := s.Run(ctx); err != nil && err != context.Canceled && err != context.DeadlineExceeded {
		return WrapExitError(ExitFailure, "syncer error", err)
	}

	slog.Info("castlebot stopped gracefully")
	return nil
}
