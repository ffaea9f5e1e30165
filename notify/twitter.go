package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dghubble/oauth1"
)

const twitterCreateTweetURL = "https://api.twitter.com/2/tweets"

// TwitterCredentials are the OAuth 1.0a user-context keys.
type TwitterCredentials struct {
	Token          string
	TokenSecret    string
	ConsumerKey    string
	ConsumerSecret string
}

// Twitter posts status updates for one account.
type Twitter struct {
	endpoint string
	client   *http.Client
}

var _ Sender = (*Twitter)(nil)

// NewTwitter builds an OAuth1-signing HTTP client.
func NewTwitter(creds TwitterCredentials) *Twitter {
	cfg := oauth1.NewConfig(creds.ConsumerKey, creds.ConsumerSecret)
	token := oauth1.NewToken(creds.Token, creds.TokenSecret)
	client := cfg.Client(context.Background(), token)
	client.Timeout = 10 * time.Second
	return &Twitter{endpoint: twitterCreateTweetURL, client: client}
}

// Send posts text as a new tweet.
func (t *Twitter) Send(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("encode tweet: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("twitter error: %s", resp.Status)
	}
	return nil
}
