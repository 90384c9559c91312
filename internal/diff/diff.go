// Package diff computes the donor delta between a fresh campaign snapshot
// and the persisted baseline.
package diff

import "github.com/roach88/castlebot/internal/campaign"

// Delta is the result of comparing one snapshot against the stored donors.
type Delta struct {
	// New holds the snapshot donors absent from the store, in snapshot order.
	New []campaign.Donor

	// FirstObservation is true only the very first time the bot has ever
	// looked at this campaign: no stored donors AND no recorded prior run.
	// An empty donor set on a campaign the bot has already polled is not a
	// first observation.
	FirstObservation bool
}

// ComputeDelta returns the donors present in snap but not in known, plus
// whether this is the bot's first ever observation of the campaign.
//
// Precondition: snap.Donors ascend by DonationID (the fetch source's natural
// order). The delta preserves that order so callers can persist oldest-first
// and render newest-first.
//
// Runs in O(len(snap.Donors) + len(known)); the known set makes each
// membership test O(1), which matters once a campaign has accumulated
// thousands of records and the comparison runs every cycle.
//
// Callers must not substitute an empty known set when the store is
// unreachable - that turns the entire snapshot into "new" donors and
// re-notifies the whole history. A store read failure aborts the cycle
// before ComputeDelta is called.
func ComputeDelta(snap campaign.Snapshot, known map[int64]struct{}, hasPriorRun bool) Delta {
	delta := Delta{
		FirstObservation: len(known) == 0 && !hasPriorRun,
	}

	for _, d := range snap.Donors {
		if _, ok := known[d.DonationID]; ok {
			continue
		}
		delta.New = append(delta.New, d)
	}

	return delta
}
