package store

import (
	"context"
	"fmt"

	"github.com/roach88/castlebot/internal/campaign"
)

// SetSetting upserts a scalar setting in the info table.
func (s *Store) SetSetting(ctx context.Context, name, val string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO info (name, val)
		VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET val = excluded.val
	`, name, val)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", name, err)
	}
	return nil
}

// SaveAggregate overwrites the campaign aggregate row wholesale.
// Last-write-wins: every successful fetch replaces goal, donation_count and
// total_amount with the snapshot's values, never merging with prior state.
func (s *Store) SaveAggregate(ctx context.Context, agg campaign.Aggregate, updatedAt string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO campaign (ref, currency, goal, donation_count, total_amount, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(ref) DO UPDATE SET
			currency       = excluded.currency,
			goal           = excluded.goal,
			donation_count = excluded.donation_count,
			total_amount   = excluded.total_amount,
			updated_at     = excluded.updated_at
	`,
		agg.Ref,
		agg.Currency,
		agg.Goal,
		agg.DonationCount,
		agg.TotalAmount,
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("save aggregate %q: %w", agg.Ref, err)
	}
	return nil
}

// InsertDonor inserts a donation record.
// Uses ON CONFLICT(donation_id) DO NOTHING for idempotency - a donor observed
// by many cycles is stored at most once, and re-inserting after a partially
// failed cycle is safe. Returns whether a new row was inserted.
//
// Other constraint violations (e.g., NOT NULL) will still return errors.
func (s *Store) InsertDonor(ctx context.Context, d campaign.Donor) (inserted bool, err error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO donors (donation_id, name, amount, message)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(donation_id) DO NOTHING
	`,
		d.DonationID,
		d.Name,
		d.Amount,
		d.Message,
	)
	if err != nil {
		return false, fmt.Errorf("insert donor %d: %w", d.DonationID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert donor %d: rows affected: %w", d.DonationID, err)
	}
	return n > 0, nil
}
