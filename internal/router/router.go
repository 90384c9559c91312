// Package router matches inbound channel messages against the bot's keyword
// commands and answers them from the store.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/castlebot/internal/campaign"
	"github.com/roach88/castlebot/internal/chat"
	"github.com/roach88/castlebot/internal/notify"
)

// recentLimit is the window size for the recent-donors command.
const recentLimit = 5

// acknowledgment is the static reply to the campaign-tag keyword.
const acknowledgment = "castle37 forever! Say `castle update` for the running total."

// Store is the read-only slice of the donation store the router needs.
// Implemented by *store.Store.
type Store interface {
	Aggregate(ctx context.Context, ref string) (campaign.Aggregate, bool, error)
	ListDonors(ctx context.Context) ([]campaign.Donor, error)
}

// Router answers keyword queries from channel messages.
//
// Queries read the store fresh on every message so replies always reflect the
// latest completed sync cycle. The router never writes.
type Router struct {
	store       Store
	client      chat.Client
	campaignRef string

	// botUserID is the bot's own platform user id; its messages are ignored
	// so the bot never answers itself.
	botUserID string
}

// New creates a Router.
func New(st Store, client chat.Client, campaignRef, botUserID string) *Router {
	return &Router{
		store:       st,
		client:      client,
		campaignRef: campaignRef,
		botUserID:   botUserID,
	}
}

// Run consumes message events until the channel closes or ctx is cancelled,
// posting a reply for every recognized keyword.
func (r *Router) Run(ctx context.Context, events <-chan chat.MessageEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			reply, matched, err := r.Respond(ctx, ev)
			if err != nil {
				slog.Error("query failed", "user", ev.User, "error", err)
				continue
			}
			if !matched {
				continue
			}
			if err := r.client.PostMessage(ctx, ev.Channel, reply); err != nil {
				slog.Error("reply post failed", "channel", ev.Channel, "error", err)
			}
		}
	}
}

// Respond matches one message against the keyword commands.
// Returns the reply text and whether any keyword matched.
func (r *Router) Respond(ctx context.Context, ev chat.MessageEvent) (string, bool, error) {
	if !isChannelMessage(ev) || ev.User == r.botUserID {
		return "", false, nil
	}

	text := strings.ToLower(ev.Text)

	switch {
	case strings.Contains(text, "castle update"), strings.Contains(text, "castle total"):
		agg, ok, err := r.aggregate(ctx)
		if err != nil {
			return "", false, err
		}
		if !ok {
			return "No campaign data yet - first sync pending.", true, nil
		}
		return notify.FormatStatus(agg), true, nil

	case strings.Contains(text, "castle donor"), strings.Contains(text, "castle donations"):
		agg, _, err := r.aggregate(ctx)
		if err != nil {
			return "", false, err
		}
		donors, err := r.store.ListDonors(ctx)
		if err != nil {
			return "", false, fmt.Errorf("list donors: %w", err)
		}
		return notify.FormatRecentList(donors, agg, recentLimit), true, nil

	case strings.Contains(text, "castle37"):
		return acknowledgment, true, nil
	}

	return "", false, nil
}

func (r *Router) aggregate(ctx context.Context) (campaign.Aggregate, bool, error) {
	agg, ok, err := r.store.Aggregate(ctx, r.campaignRef)
	if err != nil {
		return campaign.Aggregate{}, false, fmt.Errorf("read aggregate: %w", err)
	}
	return agg, ok, nil
}

// isChannelMessage reports whether the event is an ordinary channel
// conversation (Slack channel ids start with 'C'; DMs and groups don't).
func isChannelMessage(ev chat.MessageEvent) bool {
	return ev.Text != "" && strings.HasPrefix(ev.Channel, "C")
}
