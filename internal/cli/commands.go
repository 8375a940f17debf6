package cli

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"postsched/internal/app"
	"postsched/internal/eventbus"
	"postsched/internal/post"
	"postsched/internal/scheduler"
	"postsched/pkg/systemd"
)

const (
	// AtLayout is the --at input format, read in the scheduler time zone.
	AtLayout      = "2006-01-02 15:04"
	displayLayout = "2006-01-02 15:04 MST"
	previewRunes  = 50
)

func newNowCmd(opts *rootOptions) *cobra.Command {
	var (
		text      string
		platforms []string
	)
	cmd := &cobra.Command{
		Use:   "now",
		Short: "Publish a post immediately",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNow(cmd, opts, text, platforms)
		},
	}
	cmd.Flags().StringVarP(&text, "text", "t", "", "post text")
	cmd.Flags().StringSliceVarP(&platforms, "platforms", "p", nil, "comma-separated platforms (twitter|x, mastodon, telegram, linkedin)")
	return cmd
}

func runNow(cmd *cobra.Command, opts *rootOptions, text string, platforms []string) error {
	text, platforms, err := scheduler.NormalizeRequest(text, platforms)
	if err != nil {
		return err
	}
	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	results := a.Scheduler().PublishNow(cmd.Context(), text, platforms)
	p := newPrinter(cmd.OutOrStdout())
	for _, key := range resultOrder(a, platforms) {
		if results[key] {
			p.ok("Posted to %s", key)
		} else {
			p.fail("Failed to post to %s", key)
		}
	}
	return nil
}

// resultOrder lists result keys in request order without repeats.
func resultOrder(a *app.App, platforms []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(platforms))
	for _, name := range platforms {
		key, _ := a.Publishers().Resolve(name)
		if !seen[key] {
			seen[key] = true
			out = append(out, key)
		}
	}
	return out
}

func newScheduleCmd(opts *rootOptions) *cobra.Command {
	var (
		text      string
		platforms []string
		at        string
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Schedule a post for later",
		Example: `  postsched schedule -t "Launch day" -p twitter,mastodon --at "2025-06-01 09:30"
  postsched watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(cmd, opts, text, platforms, at)
		},
	}
	cmd.Flags().StringVarP(&text, "text", "t", "", "post text")
	cmd.Flags().StringSliceVarP(&platforms, "platforms", "p", nil, "comma-separated platforms")
	cmd.Flags().StringVar(&at, "at", "", `publish time "YYYY-MM-DD HH:MM" in the configured time zone`)
	return cmd
}

func runSchedule(cmd *cobra.Command, opts *rootOptions, text string, platforms []string, at string) error {
	if err := requireFlag("at", strings.TrimSpace(at)); err != nil {
		return post.Invalid("%v", err)
	}
	if _, _, err := scheduler.NormalizeRequest(text, platforms); err != nil {
		return err
	}
	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	when, err := ParseAt(at, a.Location())
	if err != nil {
		return err
	}
	id, err := a.Scheduler().Create(cmd.Context(), text, platforms, when)
	if err != nil {
		return err
	}
	p := newPrinter(cmd.OutOrStdout())
	p.ok("Post scheduled for %s (ID: %s)", when.Format(displayLayout), id)
	if !when.After(time.Now()) {
		p.warn("Scheduled time is in the past; it will be published on the next check")
	}
	return nil
}

// ParseAt reads a "YYYY-MM-DD HH:MM" time in loc.
func ParseAt(raw string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(AtLayout, strings.TrimSpace(raw), loc)
	if err != nil {
		return time.Time{}, post.Invalid("time %q must look like %q", raw, "YYYY-MM-DD HH:MM")
	}
	return t, nil
}

type listedPost struct {
	ID            string          `json:"id"`
	Status        post.Status     `json:"status"`
	Text          string          `json:"text"`
	Platforms     []string        `json:"platforms"`
	ScheduledTime time.Time       `json:"scheduled_time"`
	PostedAt      *time.Time      `json:"posted_at,omitempty"`
	Results       map[string]bool `json:"results,omitempty"`
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List scheduled and posted posts",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, opts, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print posts as JSON")
	return cmd
}

func runList(cmd *cobra.Command, opts *rootOptions, asJSON bool) error {
	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer a.Close()
	posts := a.Scheduler().List(cmd.Context())

	if asJSON {
		out := make([]listedPost, 0, len(posts))
		for _, p := range posts {
			lp := listedPost{ID: p.ID, Status: p.Status(), Text: p.Text, Platforms: p.Platforms, ScheduledTime: p.ScheduledTime, Results: p.Results}
			if p.Posted {
				t := p.PostedAt
				lp.PostedAt = &t
			}
			out = append(out, lp)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	pr := newPrinter(cmd.OutOrStdout())
	if len(posts) == 0 {
		pr.line("No scheduled posts")
		return nil
	}
	loc := a.Location()
	pr.line("Scheduled posts:")
	for _, p := range posts {
		pr.line("")
		pr.line("ID: %s", p.ID)
		if p.Posted {
			pr.line("Status: %s", pr.green.Sprint("✅ Posted"))
		} else {
			pr.line("Status: %s", pr.yellow.Sprint("⏳ Pending"))
		}
		pr.line("Text: %s", Preview(p.Text))
		pr.line("Platforms: %s", strings.Join(p.Platforms, ", "))
		pr.line("Scheduled: %s", p.ScheduledTime.In(loc).Format(displayLayout))
		if p.Posted {
			pr.line("Posted: %s", p.PostedAt.In(loc).Format(displayLayout))
			pr.line("Results: %s", formatResults(pr, p.Results))
		}
	}
	return nil
}

// Preview shortens text to its first 50 characters.
func Preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	return string([]rune(text)[:previewRunes]) + "..."
}

func formatResults(pr *printer, results map[string]bool) string {
	keys := make([]string, 0, len(results))
	for k := range results {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+pr.mark(results[k]))
	}
	return strings.Join(parts, "  ")
}

func newCancelCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCancel(cmd, opts, args[0])
		},
	}
}

func runCancel(cmd *cobra.Command, opts *rootOptions, id string) error {
	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	p := newPrinter(cmd.OutOrStdout())
	err = a.Scheduler().Cancel(cmd.Context(), strings.TrimSpace(id))
	switch {
	case err == nil:
		p.ok("Post %s cancelled", id)
		return nil
	case errors.Is(err, post.ErrAlreadyPosted):
		p.warn("Post %s was already posted; nothing to cancel", id)
		return nil
	default:
		return err
	}
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Publish scheduled posts when they come due (runs until interrupted)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts)
		},
	}
}

func runWatch(cmd *cobra.Command, opts *rootOptions) error {
	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	p := newPrinter(cmd.OutOrStdout())
	return a.Watch(cmd.Context(), app.WatchHooks{
		Ready: func() {
			_, _ = systemd.Ready()
			p.line("👀 Watching %s for due posts (Ctrl+C to stop)", a.StorePath())
			if next, ok := a.Scheduler().NextDue(); ok {
				p.line("%s", p.faint.Sprintf("next post due %s", next.In(a.Location()).Format(displayLayout)))
			}
		},
		Event: func(e eventbus.Event) {
			if e.Type != eventbus.PostPublished {
				return
			}
			if e.Succeeded() == len(e.Results) {
				p.ok("Published %s (%s)", e.PostID, formatResults(p, e.Results))
			} else {
				p.warn("Published %s with failures (%s)", e.PostID, formatResults(p, e.Results))
			}
		},
	})
}
