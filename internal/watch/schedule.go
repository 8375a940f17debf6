package watch

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Spec is a parsed poll schedule: either a cron expression or a fixed interval.
//
// Accepted forms:
//   - interval as a Go duration: "1m", "30s", "1h30m"
//   - interval as HH:MM: "00:01" (one minute), "01:30"
//   - cron: "*/5 * * * *", "0 */2 * * * *" (seconds optional), "@hourly", "@every 45s"
//
// A "cron:" or "every:" prefix forces the kind.
type Spec struct {
	Raw   string
	Cron  string
	Every time.Duration
}

func (s Spec) IsCron() bool { return s.Cron != "" }

func (s Spec) String() string {
	if s.IsCron() {
		return "cron " + s.Cron
	}
	return "every " + s.Every.String()
}

var (
	reHHMM     = regexp.MustCompile(`^(\d{1,3}):([0-5]\d)$`)
	cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
)

// ParseSchedule validates raw and returns its Spec.
func ParseSchedule(raw string) (Spec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Spec{}, fmt.Errorf("poll schedule is empty")
	}
	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		return parseCron(raw, strings.TrimSpace(s[len("cron:"):]))
	case strings.HasPrefix(low, "every:"):
		return parseEvery(raw, strings.TrimSpace(s[len("every:"):]))
	case strings.HasPrefix(s, "@") || strings.ContainsAny(s, " \t"):
		return parseCron(raw, s)
	default:
		return parseEvery(raw, s)
	}
}

func parseCron(raw, expr string) (Spec, error) {
	if expr == "" {
		return Spec{}, fmt.Errorf("cron expression is empty")
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return Spec{}, fmt.Errorf("invalid cron schedule %q: %w", expr, err)
	}
	return Spec{Raw: raw, Cron: expr}, nil
}

func parseEvery(raw, v string) (Spec, error) {
	var d time.Duration
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		d = time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	} else {
		var err error
		if d, err = time.ParseDuration(v); err != nil {
			return Spec{}, fmt.Errorf("invalid poll schedule %q (use a duration like 1m, HH:MM like 00:01, or a cron expression)", raw)
		}
	}
	if d < time.Second {
		return Spec{}, fmt.Errorf("poll interval %s is below one second", d)
	}
	return Spec{Raw: raw, Every: d}, nil
}

func (s Spec) schedule() (cron.Schedule, error) {
	if s.IsCron() {
		return cronParser.Parse(s.Cron)
	}
	return cron.Every(s.Every), nil
}
