package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/dghubble/oauth1"
)

const defaultTwitterBaseURL = "https://api.twitter.com"

type TwitterConfig struct {
	APIKey            string
	APISecret         string
	AccessToken       string
	AccessTokenSecret string

	// BaseURL overrides the API host (tests).
	BaseURL string
	HTTP    *http.Client
}

func (c TwitterConfig) Configured() bool {
	return strings.TrimSpace(c.APIKey) != "" &&
		strings.TrimSpace(c.APISecret) != "" &&
		strings.TrimSpace(c.AccessToken) != "" &&
		strings.TrimSpace(c.AccessTokenSecret) != ""
}

// TwitterPublisher posts to X through the v2 "create post" endpoint using
// OAuth 1.0a user context.
type TwitterPublisher struct {
	endpoint string
	http     *http.Client
}

func NewTwitter(cfg TwitterConfig) (*TwitterPublisher, error) {
	if !cfg.Configured() {
		return nil, fmt.Errorf("%w: twitter credentials missing", ErrNotConfigured)
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultTwitterBaseURL
	}

	// The signing client wraps the transport of the base client.
	hc := defaultClient(cfg.HTTP)
	ctx := context.WithValue(context.Background(), oauth1.HTTPClient, hc)
	client := oauth1.NewConfig(cfg.APIKey, cfg.APISecret).
		Client(ctx, oauth1.NewToken(cfg.AccessToken, cfg.AccessTokenSecret))
	client.Timeout = hc.Timeout

	return &TwitterPublisher{endpoint: base + "/2/tweets", http: client}, nil
}

func (t *TwitterPublisher) Platform() string { return Twitter }

func (t *TwitterPublisher) Publish(ctx context.Context, text string) error {
	body, err := json.Marshal(struct {
		Text string `json:"text"`
	}{Text: text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: twitter request: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	return checkResponse(Twitter, resp)
}
