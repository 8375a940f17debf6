package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// legacyFlags is the flag-only interface of earlier releases:
//
//	postsched --post "Hi" --platforms twitter,mastodon --now
//	postsched --post "Hi" --platforms twitter --schedule "2025-06-01 09:30"
//	postsched --list | --cancel <id> | --watch
type legacyFlags struct {
	post      string
	platforms []string
	schedule  string
	now       bool
	list      bool
	cancel    string
	watch     bool
}

func (l *legacyFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&l.post, "post", "", "post text")
	f.StringSliceVar(&l.platforms, "platforms", nil, "comma-separated platforms")
	f.StringVar(&l.schedule, "schedule", "", `schedule time "YYYY-MM-DD HH:MM"`)
	f.BoolVar(&l.now, "now", false, "publish immediately")
	f.BoolVar(&l.list, "list", false, "list posts")
	f.StringVar(&l.cancel, "cancel", "", "cancel the post with this id")
	f.BoolVar(&l.watch, "watch", false, "watch for due posts")
	cmd.MarkFlagsMutuallyExclusive("now", "schedule")
}

func (l *legacyFlags) any() bool {
	return l.post != "" || len(l.platforms) > 0 || l.schedule != "" || l.now || l.list || l.cancel != "" || l.watch
}

func (l *legacyFlags) run(cmd *cobra.Command, opts *rootOptions) error {
	switch {
	case l.list:
		return runList(cmd, opts, false)
	case l.cancel != "":
		return runCancel(cmd, opts, l.cancel)
	case l.watch:
		return runWatch(cmd, opts)
	case l.post != "" && len(l.platforms) > 0:
		if l.now {
			return runNow(cmd, opts, l.post, l.platforms)
		}
		if l.schedule != "" {
			return runSchedule(cmd, opts, l.post, l.platforms, l.schedule)
		}
		return fmt.Errorf("--post needs --now or --schedule")
	default:
		return fmt.Errorf("--post and --platforms must be given together")
	}
}
