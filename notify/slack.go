package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const slackPostMessageURL = "https://slack.com/api/chat.postMessage"

// Slack posts to one channel with a bot token.
type Slack struct {
	token    string
	channel  string
	endpoint string
	client   *http.Client
}

var _ Sender = (*Slack)(nil)

// NewSlack registers the bot token and channel.
func NewSlack(token, channel string) *Slack {
	return &Slack{
		token:    token,
		channel:  channel,
		endpoint: slackPostMessageURL,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// NewSlackSenders pairs tokens and channels by position.
func NewSlackSenders(tokens, channels []string) Multi {
	var out Multi
	for i := range tokens {
		if i < len(channels) {
			out = append(out, NewSlack(tokens[i], channels[i]))
		}
	}
	return out
}

// Send posts text via chat.postMessage.
func (s *Slack) Send(ctx context.Context, text string) error {
	if s.token == "" || s.channel == "" {
		return fmt.Errorf("slack sender misconfigured")
	}
	form := url.Values{}
	form.Set("token", s.token)
	form.Set("channel", s.channel)
	form.Set("text", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack error: %s", resp.Status)
	}
	var body struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && !body.OK {
		return fmt.Errorf("slack error: %s", body.Error)
	}
	return nil
}
