package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/castlebot/internal/config"
	"github.com/roach88/castlebot/internal/fetch"
	"github.com/roach88/castlebot/internal/store"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Database string
	Seed     bool
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the castlebot database",
		Long: `Create the SQLite database file with the castlebot schema. The command
is idempotent: running it against an existing database applies any pending
schema migrations and leaves the data alone.

With --seed, the campaign is fetched once and the current donor list is
recorded without announcing anything. Seeding before the first "castlebot run"
means the bot only announces donations made after setup, instead of the whole
campaign history.

Example:
  castlebot init --db ./data/castlebot.db
  castlebot init --config castlebot.yaml --seed`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().BoolVar(&opts.Seed, "seed", false, "record the campaign's current donors without announcing them")

	return cmd
}

func runInit(opts *InitOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return fail(formatter, ExitCommandError, "config", "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.DBPath = opts.Database
	}
	if opts.Seed && cfg.Campaign == "" {
		return fail(formatter, ExitCommandError, "config", "invalid config",
			fmt.Errorf("--seed requires a campaign (set CASTLEBOT_GO_FUND_ME or the config file)"))
	}

	st, err := store.Create(cfg.DBPath)
	if err != nil {
		return fail(formatter, ExitCommandError, "database", "failed to create database", err)
	}
	defer st.Close()

	if !opts.Seed {
		return formatter.Success(fmt.Sprintf("Database ready at %s", cfg.DBPath))
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	fetchCtx, cancel := context.WithTimeout(ctx, cfg.FetchTimeout())
	defer cancel()

	snap, err := fetch.NewClient().Fetch(fetchCtx, cfg.Campaign)
	if err != nil {
		return fail(formatter, ExitFailure, "fetch", "failed to fetch campaign", err)
	}

	updatedAt := time.Now().UTC().Format(time.RFC3339)
	if err := st.SaveAggregate(ctx, snap.Aggregate(cfg.Campaign), updatedAt); err != nil {
		return fail(formatter, ExitFailure, "database", "failed to save campaign totals", err)
	}

	var seeded int
	for _, d := range snap.Donors {
		inserted, err := st.InsertDonor(ctx, d)
		if err != nil {
			return fail(formatter, ExitFailure, "database", fmt.Sprintf("failed to record donation %d", d.DonationID), err)
		}
		if inserted {
			seeded++
		}
	}
	slog.Info("database seeded", "path", cfg.DBPath, "donors", seeded, "total", len(snap.Donors))

	return formatter.Success(fmt.Sprintf("Database ready at %s (%d donors recorded)", cfg.DBPath, seeded))
}
