package notify

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"

	"github.com/roach88/castlebot/internal/campaign"
)

func TestFormatDelta_PinnedLiteral(t *testing.T) {
	got := FormatDelta(
		[]campaign.Donor{{Name: "Ann", Amount: 10, Message: "go!"}},
		campaign.Aggregate{Currency: "$", TotalAmount: 100},
	)

	assert.Equal(t, "Ann donated $10\n>go!\n\nNew Total: $100\n", got)
}

func TestFormatDelta_Deterministic(t *testing.T) {
	donors := []campaign.Donor{
		{DonationID: 7, Name: "Cara", Amount: 50, Message: "For the castle!"},
		{DonationID: 6, Amount: 25},
	}
	agg := campaign.Aggregate{Currency: "$", TotalAmount: 6325}

	first := FormatDelta(donors, agg)
	second := FormatDelta(donors, agg)

	assert.Equal(t, first, second)
}

func TestFormatDelta_Golden(t *testing.T) {
	// Newest-first rendering: donor 7 before 6 before 5.
	donors := []campaign.Donor{
		{DonationID: 7, Name: "Cara", Amount: 50, Message: "For the castle!"},
		{DonationID: 6, Amount: 25},
		{DonationID: 5, Name: "Bob", Amount: 1250, Message: "onward"},
	}
	agg := campaign.Aggregate{Currency: "$", TotalAmount: 6325, DonationCount: 3}

	got := FormatDelta(donors, agg)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "delta_multi", []byte(got))
}

func TestFormatStatus(t *testing.T) {
	got := FormatStatus(campaign.Aggregate{Currency: "$", TotalAmount: 155, DonationCount: 6})
	assert.Equal(t, "We've raised $155 thanks to 6 donations!", got)
}

func TestFormatStatus_GroupsThousands(t *testing.T) {
	got := FormatStatus(campaign.Aggregate{Currency: "£", TotalAmount: 1234567, DonationCount: 1024})
	assert.Equal(t, "We've raised £1,234,567 thanks to 1,024 donations!", got)
}

func TestFormatRecentList_Golden(t *testing.T) {
	records := []campaign.Donor{
		{DonationID: 1, Name: "Ann", Amount: 10, Message: "go!"},
		{DonationID: 2, Name: "Bob", Amount: 20},
		{DonationID: 3, Name: "Cara", Amount: 5},
		{DonationID: 4, Name: "Dan", Amount: 100, Message: "For Flint"},
		{DonationID: 5, Amount: 15},
		{DonationID: 6, Name: "Eve", Amount: 5},
	}
	agg := campaign.Aggregate{Currency: "$", TotalAmount: 155, DonationCount: 6}

	got := FormatRecentList(records, agg, 5)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "recent_list", []byte(got))
}

func TestFormatRecentList_ClampsShortHistories(t *testing.T) {
	// Fewer records than the window: the start index clamps to zero instead
	// of underflowing.
	records := []campaign.Donor{
		{DonationID: 1, Name: "Ann", Amount: 10},
		{DonationID: 2, Name: "Bob", Amount: 20},
	}
	agg := campaign.Aggregate{Currency: "$", TotalAmount: 30, DonationCount: 2}

	got := FormatRecentList(records, agg, 5)

	assert.Equal(t,
		"Recent donors:\n"+
			"1. Ann - $10\n"+
			"2. Bob - $20\n"+
			"\nWe've raised $30 thanks to 2 donations!\n",
		got)
}

func TestFormatRecentList_Empty(t *testing.T) {
	got := FormatRecentList(nil, campaign.Aggregate{Currency: "$"}, 5)

	assert.Equal(t,
		"Recent donors:\n(none yet)\n\nWe've raised $0 thanks to 0 donations!\n",
		got)
}

func TestFormatRecentList_WindowNumberingIsAbsolute(t *testing.T) {
	records := []campaign.Donor{
		{DonationID: 10, Name: "Ann", Amount: 1},
		{DonationID: 20, Name: "Bob", Amount: 2},
		{DonationID: 30, Name: "Cara", Amount: 3},
	}
	agg := campaign.Aggregate{Currency: "$", TotalAmount: 6, DonationCount: 3}

	got := FormatRecentList(records, agg, 2)

	assert.Equal(t,
		"Recent donors:\n"+
			"2. Bob - $2\n"+
			"3. Cara - $3\n"+
			"\nWe've raised $6 thanks to 3 donations!\n",
		got)
}

func TestWelcome_NamesCampaign(t *testing.T) {
	got := Welcome("https://www.gofundme.com/39t6wr3c")
	assert.Contains(t, got, "https://www.gofundme.com/39t6wr3c")
	assert.Contains(t, got, "castle update")
	assert.Contains(t, got, "castle donors")
}
