// Package app builds the store, publishers and scheduler from configuration
// and runs watch mode.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"postsched/internal/config"
	"postsched/internal/eventbus"
	"postsched/internal/publisher"
	"postsched/internal/scheduler"
	"postsched/internal/storage"
	logx "postsched/pkg/logx"
)

// Options come from the command line and take precedence over the config file.
type Options struct {
	ConfigPath string
	// ConfigOptional lets a missing config file fall back to defaults.
	ConfigOptional bool
	StorePath      string
	LogLevel       string
	EnvFiles       []string
}

type App struct {
	opts Options

	cfgm *config.ConfigManager
	log  logx.Logger
	logs *logx.Service
	bus  *eventbus.MemBus
	loc  *time.Location

	store *storage.FileStore
	pubs  *publisher.Set
	sched *scheduler.Service
}

// New loads env files and config, then opens the post store. A corrupt
// store fails here so no command runs against it.
func New(ctx context.Context, opts Options) (*App, error) {
	if strings.TrimSpace(opts.ConfigPath) == "" {
		opts.ConfigPath = config.DefaultPath
		opts.ConfigOptional = true
	}
	if opts.LogLevel != "" && !logx.ValidLevel(opts.LogLevel) {
		return nil, fmt.Errorf("unknown log level %q", opts.LogLevel)
	}
	boot := logx.NewConsole(firstNonEmpty(opts.LogLevel, "info")).With(logx.String("comp", "boot"))
	config.LoadEnv(boot, opts.EnvFiles...)

	cfgm := config.NewConfigManager(opts.ConfigPath, opts.ConfigOptional)
	cfg, err := cfgm.Parse()
	if err != nil {
		return nil, err
	}
	cfg = applyOverrides(cfg, opts)
	cfgm.Commit(cfg)

	logs, log := logx.New(cfg.LogConfig())
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	pubCfg, err := publisherConfig(cfg, config.CredentialsFromEnv())
	if err != nil {
		return nil, err
	}

	a := &App{
		opts: opts,
		cfgm: cfgm,
		log:  log.With(logx.String("comp", "app")),
		logs: logs,
		bus:  eventbus.New(),
		loc:  loc,
	}
	a.store = storage.NewFileStore(cfg.Store.Path, loc, log.With(logx.String("comp", "storage")))
	a.pubs = publisher.FromConfig(pubCfg, log.With(logx.String("comp", "publisher")))
	a.sched = scheduler.New(scheduler.Deps{
		Store:      a.store,
		Publishers: a.pubs,
		Log:        log,
		Bus:        a.bus,
	})
	if err := a.sched.Open(ctx); err != nil {
		_ = logs.Close()
		return nil, err
	}
	a.log.Debug("app ready",
		logx.String("config", opts.ConfigPath),
		logx.String("store", a.store.Path()),
		logx.String("tz", loc.String()),
		logx.Strings("platforms", a.pubs.Platforms()),
	)
	return a, nil
}

// applyOverrides copies command-line overrides onto a parsed config.
func applyOverrides(cfg *config.Config, opts Options) *config.Config {
	cp := *cfg
	if s := strings.TrimSpace(opts.StorePath); s != "" {
		cp.Store.Path = s
	}
	if s := strings.TrimSpace(opts.LogLevel); s != "" {
		cp.Logging.Level = s
	}
	return &cp
}

func publisherConfig(cfg *config.Config, creds config.Credentials) (publisher.Config, error) {
	timeout, err := cfg.CallTimeout()
	if err != nil {
		return publisher.Config{}, err
	}
	return publisher.Config{
		Twitter: publisher.TwitterConfig{
			APIKey:            creds.TwitterAPIKey,
			APISecret:         creds.TwitterAPISecret,
			AccessToken:       creds.TwitterAccessToken,
			AccessTokenSecret: creds.TwitterAccessTokenSecret,
		},
		Mastodon: publisher.MastodonConfig{
			Instance:    creds.MastodonInstance,
			AccessToken: creds.MastodonAccessToken,
			Visibility:  cfg.Platforms.Mastodon.Visibility,
		},
		Telegram: publisher.TelegramConfig{
			Token:   creds.TelegramBotToken,
			ChatID:  firstNonEmpty(creds.TelegramChatID, cfg.Platforms.Telegram.ChatID),
			URL:     cfg.Platforms.Telegram.APIURL,
			Timeout: timeout,
		},
		RatePerSec: cfg.Platforms.RatePerSec,
		Timeout:    timeout,
	}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func (a *App) Scheduler() *scheduler.Service { return a.sched }
func (a *App) Publishers() *publisher.Set    { return a.pubs }
func (a *App) Bus() eventbus.Bus             { return a.bus }
func (a *App) Logger() logx.Logger           { return a.log }

// Location is the zone used for --at input and naive stored timestamps.
func (a *App) Location() *time.Location { return a.loc }

func (a *App) Config() *config.Config { return a.cfgm.Get() }

func (a *App) StorePath() string { return a.store.Path() }

func (a *App) Close() error {
	if a.logs == nil {
		return nil
	}
	return a.logs.Close()
}
