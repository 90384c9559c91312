package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	defaultSlackBaseURL = "https://slack.com/api"

	// defaultPollInterval paces the history poller between successful reads.
	defaultPollInterval = 3 * time.Second
)

type slackOption struct {
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
}

// SlackOption configures the Slack client.
type SlackOption func(*slackOption)

// WithSlackBaseURL overrides the Slack API base URL. Used in tests.
func WithSlackBaseURL(u string) SlackOption {
	return func(opt *slackOption) {
		opt.baseURL = u
	}
}

// WithSlackHTTPClient overrides the underlying HTTP client.
func WithSlackHTTPClient(c *http.Client) SlackOption {
	return func(opt *slackOption) {
		opt.httpClient = c
	}
}

// WithPollInterval overrides the history poll cadence.
func WithPollInterval(d time.Duration) SlackOption {
	return func(opt *slackOption) {
		opt.pollInterval = d
	}
}

// Slack is a Slack Web API client implementing Client.
type Slack struct {
	token string
	opts  slackOption
}

// NewSlack creates a Slack client for the given bot token.
func NewSlack(token string, options ...SlackOption) (*Slack, error) {
	if token == "" {
		return nil, errors.New("missing Slack token")
	}

	opts := slackOption{
		baseURL:      defaultSlackBaseURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		pollInterval: defaultPollInterval,
	}
	for _, option := range options {
		option(&opts)
	}

	return &Slack{token: token, opts: opts}, nil
}

// apiEnvelope is the common Slack Web API response wrapper.
type apiEnvelope struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// Identity describes the authenticated bot user.
type Identity struct {
	UserID string `json:"user_id"`
	Name   string `json:"user"`
}

// AuthTest verifies the token and returns the bot's own identity.
// The router uses the user id to ignore the bot's own messages.
func (s *Slack) AuthTest(ctx context.Context) (Identity, error) {
	var resp struct {
		apiEnvelope
		Identity
	}
	if err := s.call(ctx, "auth.test", nil, &resp); err != nil {
		return Identity{}, err
	}
	return resp.Identity, nil
}

// ResolveChannel resolves a channel name (without '#') to its channel id.
func (s *Slack) ResolveChannel(ctx context.Context, name string) (string, error) {
	cursor := ""
	for {
		params := url.Values{"limit": {"1000"}}
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		var resp struct {
			apiEnvelope
			Channels []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"channels"`
			ResponseMetadata struct {
				NextCursor string `json:"next_cursor"`
			} `json:"response_metadata"`
		}
		if err := s.call(ctx, "conversations.list", params, &resp); err != nil {
			return "", err
		}

		for _, ch := range resp.Channels {
			if ch.Name == name {
				return ch.ID, nil
			}
		}

		cursor = resp.ResponseMetadata.NextCursor
		if cursor == "" {
			return "", fmt.Errorf("channel %q not found", name)
		}
	}
}

// PostMessage implements Client.
func (s *Slack) PostMessage(ctx context.Context, channelID, text string) error {
	params := url.Values{
		"channel": {channelID},
		"text":    {text},
		"as_user": {"true"},
	}
	var resp apiEnvelope
	return s.call(ctx, "chat.postMessage", params, &resp)
}

// Poll streams new channel messages by reading conversations.history
// incrementally. The returned channel closes when ctx is cancelled.
//
// Transport or API failures back off exponentially and reset after the next
// successful read; messages are emitted in chronological order.
func (s *Slack) Poll(ctx context.Context, channelID string) <-chan MessageEvent {
	events := make(chan MessageEvent)

	go func() {
		defer close(events)

		bo := backoff.NewExponentialBackOff()
		cursor := ""

		for {
			batch, latest, err := s.history(ctx, channelID, cursor)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				wait := bo.NextBackOff()
				slog.Warn("chat poll failed, backing off",
					"channel", channelID,
					"wait", wait,
					"error", err)
				if !sleep(ctx, wait) {
					return
				}
				continue
			}
			bo.Reset()

			// The very first read only establishes the cursor; replaying
			// the channel's backlog as fresh events would be noise.
			if cursor != "" {
				for _, ev := range batch {
					select {
					case events <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
			if latest != "" {
				cursor = latest
			}
			if cursor == "" {
				// Empty channel: mark the stream position so the next poll
				// emits anything that arrives from here on.
				cursor = "0"
			}

			if !sleep(ctx, s.opts.pollInterval) {
				return
			}
		}
	}()

	return events
}

// history returns messages newer than the oldest cursor in chronological
// order, plus the newest timestamp seen.
func (s *Slack) history(ctx context.Context, channelID, oldest string) ([]MessageEvent, string, error) {
	params := url.Values{
		"channel": {channelID},
		"limit":   {"200"},
	}
	if oldest != "" {
		params.Set("oldest", oldest)
	} else {
		params.Set("limit", "1")
	}

	var resp struct {
		apiEnvelope
		Messages []struct {
			Type string `json:"type"`
			User string `json:"user"`
			Text string `json:"text"`
			TS   string `json:"ts"`
		} `json:"messages"`
	}
	if err := s.call(ctx, "conversations.history", params, &resp); err != nil {
		return nil, "", err
	}

	// Slack returns newest-first.
	var batch []MessageEvent
	latest := ""
	for i := len(resp.Messages) - 1; i >= 0; i-- {
		m := resp.Messages[i]
		if m.TS > latest {
			latest = m.TS
		}
		if m.Type != "message" || m.Text == "" || m.TS == oldest {
			continue
		}
		batch = append(batch, MessageEvent{
			Channel:   channelID,
			User:      m.User,
			Text:      m.Text,
			Timestamp: m.TS,
		})
	}

	return batch, latest, nil
}

// call issues one Web API request and decodes the envelope.
func (s *Slack) call(ctx context.Context, method string, params url.Values, out interface{ envelope() apiEnvelope }) error {
	if params == nil {
		params = url.Values{}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.opts.baseURL+"/"+method, strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.opts.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: failed to make request: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: failed to read response body: %w", method, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: failed to unmarshal response: %w", method, err)
	}

	if env := out.envelope(); !env.OK {
		return fmt.Errorf("%s: API error: %s", method, env.Error)
	}

	return nil
}

func (e apiEnvelope) envelope() apiEnvelope { return e }

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
