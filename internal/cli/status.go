package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/castlebot/internal/config"
	"github.com/roach88/castlebot/internal/notify"
	"github.com/roach88/castlebot/internal/store"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Database string
	Limit    int
}

// statusPayload is the JSON shape for "castlebot status --format json".
type statusPayload struct {
	Campaign      string         `json:"campaign"`
	Currency      string         `json:"currency"`
	Goal          int64          `json:"goal"`
	TotalAmount   int64          `json:"total_amount"`
	DonationCount int64          `json:"donation_count"`
	Recent        []donorPayload `json:"recent"`
}

type donorPayload struct {
	DonationID int64  `json:"donation_id"`
	Name       string `json:"name"`
	Amount     int64  `json:"amount"`
	Message    string `json:"message,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show campaign totals and recent donations",
		Long: `Read the local database and print the campaign totals plus the most
recent donations. No network calls are made; the output reflects the last
completed sync.

Example:
  castlebot status --db ./data/castlebot.db
  castlebot status --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 5, "number of recent donations to show")

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return fail(formatter, ExitCommandError, "config", "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.DBPath = opts.Database
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fail(formatter, ExitCommandError, "database", "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	agg, ok, err := st.Aggregate(ctx, cfg.Campaign)
	if err != nil {
		return fail(formatter, ExitFailure, "read", "failed to read campaign totals", err)
	}
	if !ok {
		return formatter.Success("No campaign data recorded yet. Run \"castlebot once\" or \"castlebot run\" first.")
	}

	donors, err := st.ListDonors(ctx)
	if err != nil {
		return fail(formatter, ExitFailure, "read", "failed to read donations", err)
	}

	if opts.Format == "json" {
		recent := donors
		if len(recent) > opts.Limit {
			recent = recent[len(recent)-opts.Limit:]
		}
		payload := statusPayload{
			Campaign:      agg.Ref,
			Currency:      agg.Currency,
			Goal:          agg.Goal,
			TotalAmount:   agg.TotalAmount,
			DonationCount: agg.DonationCount,
			Recent:        make([]donorPayload, 0, len(recent)),
		}
		for _, d := range recent {
			payload.Recent = append(payload.Recent, donorPayload{
				DonationID: d.DonationID,
				Name:       d.Name,
				Amount:     d.Amount,
				Message:    d.Message,
			})
		}
		return formatter.Success(payload)
	}

	return formatter.Success(strings.TrimRight(notify.FormatRecentList(donors, agg, opts.Limit), "\n"))
}
