// Package fetch retrieves point-in-time snapshots of a GoFundMe campaign.
//
// The client talks to the GoFundMe web gateway: one request for the campaign
// summary, then paged requests for the donation feed. The feed arrives
// newest-first; Fetch assembles it into a Snapshot whose donors ascend by
// donation id, the order the rest of the bot assumes.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/roach88/castlebot/internal/campaign"
)

// ErrCampaignNotFound indicates the campaign reference does not resolve to a
// live campaign page.
var ErrCampaignNotFound = errors.New("campaign not found")

const (
	defaultBaseURL = "https://gateway.gofundme.com/web-gateway/v1"

	// donationPageSize is the feed page size the gateway accepts.
	donationPageSize = 100

	// maxDonationPages bounds a single fetch so a malformed paging response
	// cannot loop forever.
	maxDonationPages = 500
)

// Fetcher is the capability the sync orchestrator depends on.
// Implemented by *Client (production) and by fakes in tests.
type Fetcher interface {
	// Fetch returns a snapshot of the campaign identified by ref, which may
	// be a full GoFundMe URL or a bare campaign slug. Any error means the
	// caller should skip the current cycle; the next tick retries naturally.
	Fetch(ctx context.Context, ref string) (campaign.Snapshot, error)
}

type clientOption struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures the Client.
type ClientOption func(*clientOption)

// WithBaseURL overrides the gateway base URL. Used in tests.
func WithBaseURL(u string) ClientOption {
	return func(opt *clientOption) {
		opt.baseURL = u
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(opt *clientOption) {
		opt.httpClient = c
	}
}

// Client fetches campaign snapshots from the GoFundMe web gateway.
type Client struct {
	opts clientOption
}

// NewClient creates a gateway client with the provided options.
func NewClient(options ...ClientOption) *Client {
	opts := clientOption{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{},
	}
	for _, option := range options {
		option(&opts)
	}
	return &Client{opts: opts}
}

// feedResponse is the campaign summary envelope.
type feedResponse struct {
	Campaign struct {
		CurrencyCode  string  `json:"currencycode"`
		GoalAmount    float64 `json:"goal_amount"`
		CurrentAmount float64 `json:"current_amount"`
		DonationCount int64   `json:"donation_count"`
	} `json:"campaign"`
}

// donationsResponse is one page of the donation feed, newest-first.
type donationsResponse struct {
	Donations []struct {
		DonationID  int64   `json:"donation_id"`
		Name        string  `json:"name"`
		Amount      float64 `json:"amount"`
		Comment     string  `json:"comment"`
		IsAnonymous bool    `json:"is_anonymous"`
	} `json:"donations"`
	Meta struct {
		HasNext bool `json:"has_next"`
	} `json:"meta"`
}

// Fetch implements Fetcher.
func (c *Client) Fetch(ctx context.Context, ref string) (campaign.Snapshot, error) {
	slug, err := Slug(ref)
	if err != nil {
		return campaign.Snapshot{}, err
	}

	var feed feedResponse
	if err := c.get(ctx, "/feed/"+url.PathEscape(slug), &feed); err != nil {
		return campaign.Snapshot{}, fmt.Errorf("fetch campaign %q: %w", slug, err)
	}

	snap := campaign.Snapshot{
		Currency:      currencySymbol(feed.Campaign.CurrencyCode),
		Goal:          wholeUnits(feed.Campaign.GoalAmount),
		DonationCount: feed.Campaign.DonationCount,
		TotalAmount:   wholeUnits(feed.Campaign.CurrentAmount),
	}

	donors, err := c.fetchDonations(ctx, slug)
	if err != nil {
		return campaign.Snapshot{}, fmt.Errorf("fetch donations %q: %w", slug, err)
	}
	snap.Donors = donors

	return snap, nil
}

// fetchDonations pages through the donation feed and returns donors ascending
// by donation id.
func (c *Client) fetchDonations(ctx context.Context, slug string) ([]campaign.Donor, error) {
	var donors []campaign.Donor

	for page := 0; page < maxDonationPages; page++ {
		endpoint := fmt.Sprintf("/feed/%s/donations?limit=%d&offset=%d",
			url.PathEscape(slug), donationPageSize, page*donationPageSize)

		var resp donationsResponse
		if err := c.get(ctx, endpoint, &resp); err != nil {
			return nil, err
		}

		for _, d := range resp.Donations {
			name := d.Name
			if d.IsAnonymous {
				name = ""
			}
			donors = append(donors, campaign.Donor{
				DonationID: d.DonationID,
				Name:       name,
				Amount:     wholeUnits(d.Amount),
				Message:    d.Comment,
			})
		}

		if !resp.Meta.HasNext || len(resp.Donations) == 0 {
			break
		}
	}

	// Legacy feeds omit donation ids. Number from the chronological
	// position: the feed is newest-first, so the last entry is the oldest
	// and gets id 1. New donations prepend, so every earlier donor keeps
	// the same id on the next fetch.
	n := int64(len(donors))
	for i := range donors {
		if donors[i].DonationID == 0 {
			donors[i].DonationID = n - int64(i)
		}
	}

	// Feed arrives newest-first; the rest of the bot wants ascending ids.
	sort.SliceStable(donors, func(i, j int) bool {
		return donors[i].DonationID < donors[j].DonationID
	})

	return donors, nil
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.opts.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrCampaignNotFound
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

// Slug extracts the campaign slug from a reference, which may be a full
// GoFundMe URL ("https://www.gofundme.com/39t6wr3c", with or without the /f/
// prefix) or a bare slug.
func Slug(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errors.New("empty campaign reference")
	}

	if !strings.Contains(ref, "/") {
		return ref, nil
	}

	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid campaign reference %q: %w", ref, err)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	// Modern URLs nest the slug under /f/; older ones put it at the root.
	if len(parts) >= 2 && parts[0] == "f" {
		return parts[1], nil
	}
	if len(parts) >= 1 && parts[0] != "" {
		return parts[len(parts)-1], nil
	}

	return "", fmt.Errorf("no campaign slug in %q", ref)
}

// currencySymbol maps common ISO currency codes to their display symbol.
// Unknown codes pass through unchanged.
func currencySymbol(code string) string {
	switch strings.ToUpper(code) {
	case "USD", "CAD", "AUD":
		return "$"
	case "GBP":
		return "£"
	case "EUR":
		return "€"
	default:
		return code
	}
}

// wholeUnits converts a gateway float amount to whole currency units.
func wholeUnits(f float64) int64 {
	return int64(math.Round(f))
}
