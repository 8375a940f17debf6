package publisher

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

type TelegramConfig struct {
	Token string
	// ChatID is a numeric chat id or a public "@channel" username.
	ChatID string
	// URL overrides the Bot API endpoint (tests, local bot API servers).
	URL     string
	Timeout time.Duration
}

func (c TelegramConfig) Configured() bool {
	return strings.TrimSpace(c.Token) != "" && strings.TrimSpace(c.ChatID) != ""
}

// chatRecipient passes the configured chat id or @username to the Bot API as-is.
type chatRecipient string

func (r chatRecipient) Recipient() string { return string(r) }

// TelegramPublisher posts the text as a message to one chat or channel.
type TelegramPublisher struct {
	bot *tele.Bot
	to  chatRecipient
}

func NewTelegram(cfg TelegramConfig) (*TelegramPublisher, error) {
	if !cfg.Configured() {
		return nil, fmt.Errorf("%w: telegram token or chat id missing", ErrNotConfigured)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   strings.TrimSpace(cfg.Token),
		URL:     strings.TrimSpace(cfg.URL),
		Client:  &http.Client{Timeout: timeout},
		Offline: true, // skip getMe; publishing never polls updates
	})
	if err != nil {
		return nil, fmt.Errorf("%w: telegram bot: %w", ErrNotConfigured, err)
	}
	return &TelegramPublisher{bot: b, to: chatRecipient(strings.TrimSpace(cfg.ChatID))}, nil
}

func (t *TelegramPublisher) Platform() string { return Telegram }

// Publish sends the message. telebot has no context support, so cancellation
// is only checked before the call; the client timeout bounds the request.
func (t *TelegramPublisher) Publish(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.bot.Send(t.to, text); err != nil {
		return fmt.Errorf("%w: telegram send: %w", ErrUnavailable, err)
	}
	return nil
}
