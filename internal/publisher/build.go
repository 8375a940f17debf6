package publisher

import (
	"errors"
	"time"

	logx "postsched/pkg/logx"
)

// Config carries credentials for every supported platform plus the shared
// call limits. Missing credentials leave that platform registered but
// unconfigured.
type Config struct {
	Twitter  TwitterConfig
	Mastodon MastodonConfig
	Telegram TelegramConfig

	RatePerSec int
	Timeout    time.Duration
}

// FromConfig builds the platform set. It never fails: a platform that can't
// be initialized is logged and left unconfigured.
func FromConfig(cfg Config, log logx.Logger) *Set {
	if log.IsZero() {
		log = logx.Nop()
	}
	set := NewSet(log)

	register := func(name string, p Publisher, err error, aliases ...string) {
		switch {
		case err == nil:
			set.Register(name, Limit(p, cfg.RatePerSec, cfg.Timeout), aliases...)
			log.Debug("platform configured", logx.String("platform", name))
		case errors.Is(err, ErrNotConfigured):
			set.Register(name, nil, aliases...)
			log.Debug("platform disabled", logx.String("platform", name), logx.Err(err))
		default:
			set.Register(name, nil, aliases...)
			log.Warn("platform client init failed", logx.String("platform", name), logx.Err(err))
		}
	}

	tw, err := NewTwitter(cfg.Twitter)
	register(Twitter, publisherOrNil(tw, err), err, "x")

	md, err := NewMastodon(cfg.Mastodon)
	register(Mastodon, publisherOrNil(md, err), err)

	register(LinkedIn, NewLinkedIn(), nil)

	tg, err := NewTelegram(cfg.Telegram)
	register(Telegram, publisherOrNil(tg, err), err)

	return set
}

// publisherOrNil avoids storing a typed nil pointer in the Publisher interface.
func publisherOrNil[T Publisher](p T, err error) Publisher {
	if err != nil {
		return nil
	}
	return p
}
