// Package chat provides the chat-platform capability surface the bot
// depends on, plus the Slack implementation.
//
// The core packages depend only on the narrow Client interface - composition
// over a framework base class, so tests can substitute a recorder and the
// platform can change without touching the sync logic.
package chat

import "context"

// Client is the outbound capability the bot core uses.
// Posting is fire-and-forget from the core's perspective: a delivery failure
// is logged by the caller, never retried, and never rolls back persisted
// state.
type Client interface {
	PostMessage(ctx context.Context, channelID, text string) error
}

// MessageEvent is one inbound channel message, as delivered by the platform
// event stream.
type MessageEvent struct {
	// Channel is the platform channel identifier the message was posted in.
	Channel string

	// User is the platform identifier of the author.
	User string

	// Text is the raw message text.
	Text string

	// Timestamp is the platform's message timestamp, used for event-stream
	// cursors. Opaque to the core.
	Timestamp string
}
