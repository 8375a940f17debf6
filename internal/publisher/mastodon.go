package publisher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-mastodon"
)

type MastodonConfig struct {
	// Instance is the server base URL, e.g. https://mastodon.social.
	Instance    string
	AccessToken string
	// Visibility is passed through when set (public, unlisted, private, direct).
	Visibility string

	HTTP *http.Client
}

func (c MastodonConfig) Configured() bool {
	return strings.TrimSpace(c.Instance) != "" && strings.TrimSpace(c.AccessToken) != ""
}

// MastodonPublisher posts statuses through the Mastodon REST API.
type MastodonPublisher struct {
	client     *mastodon.Client
	visibility string
}

func NewMastodon(cfg MastodonConfig) (*MastodonPublisher, error) {
	if !cfg.Configured() {
		return nil, fmt.Errorf("%w: mastodon instance or token missing", ErrNotConfigured)
	}
	instance := strings.TrimRight(strings.TrimSpace(cfg.Instance), "/")
	if !strings.Contains(instance, "://") {
		instance = "https://" + instance
	}
	if _, err := url.Parse(instance); err != nil {
		return nil, fmt.Errorf("%w: mastodon instance %q: %w", ErrNotConfigured, cfg.Instance, err)
	}

	c := mastodon.NewClient(&mastodon.Config{
		Server:      instance,
		AccessToken: strings.TrimSpace(cfg.AccessToken),
	})
	base := defaultClient(cfg.HTTP)
	c.Timeout = base.Timeout
	c.Transport = idempotencyTransport{base: base.Transport}

	return &MastodonPublisher{client: c, visibility: strings.TrimSpace(cfg.Visibility)}, nil
}

func (m *MastodonPublisher) Platform() string { return Mastodon }

func (m *MastodonPublisher) Publish(ctx context.Context, text string) error {
	_, err := m.client.PostStatus(ctx, &mastodon.Toot{Status: text, Visibility: m.visibility})
	if err != nil {
		return fmt.Errorf("%w: mastodon: %w", ErrUnavailable, err)
	}
	return nil
}

// idempotencyTransport tags each status POST with a fresh Idempotency-Key
// so the server drops a replay of the same request.
type idempotencyTransport struct {
	base http.RoundTripper
}

func (t idempotencyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	if req.Method != http.MethodPost || req.Header.Get("Idempotency-Key") != "" {
		return base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("Idempotency-Key", uuid.NewString())
	return base.RoundTrip(req)
}
