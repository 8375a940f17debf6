package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"

	logx "postsched/pkg/logx"
)

// Environment variables holding platform credentials.
const (
	EnvTwitterAPIKey            = "TWITTER_API_KEY"
	EnvTwitterAPISecret         = "TWITTER_API_SECRET"
	EnvTwitterAccessToken       = "TWITTER_ACCESS_TOKEN"
	EnvTwitterAccessTokenSecret = "TWITTER_ACCESS_TOKEN_SECRET"
	EnvMastodonInstance         = "MASTODON_INSTANCE"
	EnvMastodonAccessToken      = "MASTODON_ACCESS_TOKEN"
	EnvTelegramBotToken         = "TELEGRAM_BOT_TOKEN"
	EnvTelegramChatID           = "TELEGRAM_CHAT_ID"
)

// LoadEnv seeds the process environment from env files. Variables that are
// already set win over file values. Missing files are skipped.
func LoadEnv(log logx.Logger, files ...string) []string {
	if len(files) == 0 {
		files = []string{".env"}
	}
	loaded := make([]string, 0, len(files))
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				log.Warn("env file not loaded", logx.String("file", f), logx.Err(err))
			}
			continue
		}
		loaded = append(loaded, f)
	}
	if len(loaded) == 0 {
		log.Debug("no env files loaded; using process environment")
	} else {
		log.Debug("env files loaded", logx.Strings("files", loaded))
	}
	return loaded
}

func GetEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// Credentials are platform secrets read from the environment. A platform
// whose values are incomplete stays disabled.
type Credentials struct {
	TwitterAPIKey            string
	TwitterAPISecret         string
	TwitterAccessToken       string
	TwitterAccessTokenSecret string

	MastodonInstance    string
	MastodonAccessToken string

	TelegramBotToken string
	TelegramChatID   string
}

func CredentialsFromEnv() Credentials {
	return Credentials{
		TwitterAPIKey:            GetEnv(EnvTwitterAPIKey, ""),
		TwitterAPISecret:         GetEnv(EnvTwitterAPISecret, ""),
		TwitterAccessToken:       GetEnv(EnvTwitterAccessToken, ""),
		TwitterAccessTokenSecret: GetEnv(EnvTwitterAccessTokenSecret, ""),
		MastodonInstance:         GetEnv(EnvMastodonInstance, ""),
		MastodonAccessToken:      GetEnv(EnvMastodonAccessToken, ""),
		TelegramBotToken:         GetEnv(EnvTelegramBotToken, ""),
		TelegramChatID:           GetEnv(EnvTelegramChatID, ""),
	}
}
