package campaign

// Donor represents a single donation record.
//
// Stored donors are append-only: a donor row is never mutated or deleted
// once inserted.
type Donor struct {
	// DonationID is the stable identifier assigned by the campaign source.
	DonationID int64 `json:"donation_id"`

	// Name is the donor's display name. Empty for anonymous donations.
	Name string `json:"name"`

	// Amount is the donation amount in whole currency units.
	Amount int64 `json:"amount"`

	// Message is the optional free-text message left with the donation.
	Message string `json:"message,omitempty"`
}

// Aggregate represents the campaign-level totals as last observed.
//
// Goal, DonationCount and TotalAmount are overwritten wholesale on every
// successful fetch (last-write-wins, no merge). Currency is fixed after the
// first observation.
type Aggregate struct {
	// Ref identifies the campaign (URL or slug).
	Ref string `json:"ref"`

	// Currency is the display symbol or code, e.g. "$".
	Currency string `json:"currency"`

	Goal          int64 `json:"goal"`
	DonationCount int64 `json:"donation_count"`
	TotalAmount   int64 `json:"total_amount"`
}

// Snapshot is one fetch's complete view of a campaign: the aggregate totals
// plus the donor list in the source's natural order.
//
// Donors ascend by DonationID. The diff engine documents this as a
// precondition; it is not enforced here.
type Snapshot struct {
	Currency      string  `json:"currency"`
	Goal          int64   `json:"goal"`
	DonationCount int64   `json:"donation_count"`
	TotalAmount   int64   `json:"total_amount"`
	Donors        []Donor `json:"donors"`
}

// Aggregate converts the snapshot's totals into an Aggregate for the given
// campaign reference.
func (s Snapshot) Aggregate(ref string) Aggregate {
	return Aggregate{
		Ref:           ref,
		Currency:      s.Currency,
		Goal:          s.Goal,
		DonationCount: s.DonationCount,
		TotalAmount:   s.TotalAmount,
	}
}
