// Package notify renders campaign state into channel messages.
//
// Every function here is pure and deterministic: the same inputs always
// produce byte-identical output. No timestamps, no randomness - any emoji or
// flourish a caller wants goes around these strings, not inside them.
package notify

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/roach88/castlebot/internal/campaign"
)

// printer renders amounts with English digit grouping ("1,250").
// message.Printer is safe for concurrent use.
var printer = message.NewPrinter(language.English)

// anonymousName substitutes for donors with an empty display name.
const anonymousName = "Anonymous"

// FormatDelta renders one cycle's newly observed donors as a single
// aggregated message.
//
// The donors slice must be newest-first: the most recent donor appears at the
// top of the message. Each donor gets one line, followed by a ">" quote line
// when a donation message is present. A summary line with the campaign total
// closes the message.
func FormatDelta(donors []campaign.Donor, agg campaign.Aggregate) string {
	var b strings.Builder
	for _, d := range donors {
		fmt.Fprintf(&b, "%s donated %s%s\n", displayName(d), agg.Currency, amount(d.Amount))
		if d.Message != "" {
			fmt.Fprintf(&b, ">%s\n", d.Message)
		}
	}
	fmt.Fprintf(&b, "\nNew Total: %s%s\n", agg.Currency, amount(agg.TotalAmount))
	return b.String()
}

// FormatStatus renders the on-demand "what's the total" reply.
func FormatStatus(agg campaign.Aggregate) string {
	return fmt.Sprintf("We've raised %s%s thanks to %s donations!",
		agg.Currency, amount(agg.TotalAmount), amount(agg.DonationCount))
}

// FormatRecentList renders the most recent limit donors from the full
// ascending history, oldest of the window first.
//
// Entries keep their 1-based position in the full history, so the numbering
// is stable as the window slides. The window start is clamped to the list
// head; campaigns with fewer than limit donors render everything.
func FormatRecentList(records []campaign.Donor, agg campaign.Aggregate, limit int) string {
	var b strings.Builder
	b.WriteString("Recent donors:\n")

	start := len(records) - limit
	if start < 0 {
		start = 0
	}
	for i, d := range records[start:] {
		fmt.Fprintf(&b, "%d. %s - %s%s\n", start+i+1, displayName(d), agg.Currency, amount(d.Amount))
		if d.Message != "" {
			fmt.Fprintf(&b, ">%s\n", d.Message)
		}
	}
	if len(records) == 0 {
		b.WriteString("(none yet)\n")
	}

	fmt.Fprintf(&b, "\n%s\n", FormatStatus(agg))
	return b.String()
}

// Welcome renders the one-time message posted the first time the bot ever
// observes the campaign.
func Welcome(ref string) string {
	return fmt.Sprintf("Hi! I'm now watching %s for new donations.\n"+
		"Say `castle update` for the running total or `castle donors` for recent donors.", ref)
}

func displayName(d campaign.Donor) string {
	if d.Name == "" {
		return anonymousName
	}
	return d.Name
}

func amount(n int64) string {
	return printer.Sprintf("%d", n)
}
