package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/castlebot/internal/campaign"
)

// Setting returns a scalar setting from the info table.
// The boolean reports whether the setting exists.
func (s *Store) Setting(ctx context.Context, name string) (string, bool, error) {
	var val sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT val FROM info WHERE name = ? LIMIT 1
	`, name).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %q: %w", name, err)
	}
	return val.String, true, nil
}

// Aggregate returns the stored aggregate for a campaign reference.
// The boolean reports whether the campaign has been observed yet.
func (s *Store) Aggregate(ctx context.Context, ref string) (campaign.Aggregate, bool, error) {
	var agg campaign.Aggregate
	err := s.db.QueryRowContext(ctx, `
		SELECT ref, currency, goal, donation_count, total_amount
		FROM campaign
		WHERE ref = ?
	`, ref).Scan(&agg.Ref, &agg.Currency, &agg.Goal, &agg.DonationCount, &agg.TotalAmount)
	if errors.Is(err, sql.ErrNoRows) {
		return campaign.Aggregate{}, false, nil
	}
	if err != nil {
		return campaign.Aggregate{}, false, fmt.Errorf("get aggregate %q: %w", ref, err)
	}
	return agg, true, nil
}

// ListDonors returns all donor records ordered by donation_id ascending.
//
// Returns an empty slice (not nil) if no records exist.
func (s *Store) ListDonors(ctx context.Context) ([]campaign.Donor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT donation_id, name, amount, message
		FROM donors
		ORDER BY donation_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query donors: %w", err)
	}
	defer rows.Close()

	donors := []campaign.Donor{}
	for rows.Next() {
		var d campaign.Donor
		if err := rows.Scan(&d.DonationID, &d.Name, &d.Amount, &d.Message); err != nil {
			return nil, fmt.Errorf("scan donor: %w", err)
		}
		donors = append(donors, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate donors: %w", err)
	}

	return donors, nil
}

// DonorIDs returns the set of known donation ids.
// The diff engine uses this for O(1) membership tests per snapshot record.
func (s *Store) DonorIDs(ctx context.Context) (map[int64]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT donation_id FROM donors`)
	if err != nil {
		return nil, fmt.Errorf("query donor ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan donor id: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate donor ids: %w", err)
	}

	return ids, nil
}

// MaxDonationID returns the largest known donation id, or 0 when the donors
// table is empty.
func (s *Store) MaxDonationID(ctx context.Context) (int64, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(donation_id) FROM donors`).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max donation id: %w", err)
	}
	return max.Int64, nil
}
