// Package publisher delivers post text to external platforms.
//
// Each platform is a Publisher. A Set maps platform names (and aliases) to
// publishers and converts every failure into a boolean result, so a broken
// platform never aborts work on the others.
package publisher

import (
	"context"
	"errors"
)

var (
	ErrUnavailable   = errors.New("platform unavailable")
	ErrNotConfigured = errors.New("platform not configured")
	ErrNotSupported  = errors.New("platform integration not available")
	ErrUnknown       = errors.New("unknown platform")
)

// Publisher attempts to publish text to a single platform.
type Publisher interface {
	Platform() string
	Publish(ctx context.Context, text string) error
}

// Canonical platform names.
const (
	Twitter  = "twitter"
	Mastodon = "mastodon"
	LinkedIn = "linkedin"
	Telegram = "telegram"
)
