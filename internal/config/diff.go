package config

import (
	logx "postsched/pkg/logx"
)

// SummarizeChange lists the sections that differ between two configs plus
// log fields describing the new values. Secrets are never part of Config,
// so everything here is safe to log.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		fields  []logx.Field
	)
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		fields = append(fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Store != newCfg.Store {
		changed = append(changed, "store")
		fields = append(fields, logx.String("store.path", newCfg.Store.Path))
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		fields = append(fields,
			logx.String("scheduler.poll_interval", newCfg.Scheduler.PollInterval),
			logx.String("scheduler.timezone", newCfg.Scheduler.Timezone),
		)
	}
	if oldCfg.Platforms != newCfg.Platforms {
		changed = append(changed, "platforms")
		fields = append(fields,
			logx.Int("platforms.rate_per_sec", newCfg.Platforms.RatePerSec),
			logx.String("platforms.timeout", newCfg.Platforms.Timeout),
		)
	}
	return changed, fields
}

// RequiresRestart reports changes that watch mode can't apply live: the
// store location and platform clients are built once at startup.
func RequiresRestart(changed []string) bool {
	for _, c := range changed {
		if c == "store" || c == "platforms" {
			return true
		}
	}
	return false
}
