package config

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "postsched/pkg/logx"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestParseYAMLKeepsDefaults(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "postsched.yaml", `
scheduler:
  poll_interval: "30s"
  timezone: "Asia/Jakarta"
platforms:
  mastodon:
    visibility: unlisted
`)
	cfg, err := NewConfigManager(p, false).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Scheduler.PollInterval != "30s" || cfg.Platforms.Mastodon.Visibility != "unlisted" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Store.Path != DefaultStorePath || !cfg.Logging.Console || cfg.Platforms.RatePerSec != DefaultRatePerSec {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "Asia/Jakarta" {
		t.Fatalf("Location = %v, %v", loc, err)
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "postsched.json", `{"store":{"path":"/tmp/posts.json"},"platforms":{"rate_per_sec":0,"timeout":"5s"}}`)
	cfg, err := NewConfigManager(p, false).Parse()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.Path != "/tmp/posts.json" || cfg.Platforms.RatePerSec != 0 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if d, _ := cfg.CallTimeout(); d != 5*time.Second {
		t.Fatalf("CallTimeout = %v", d)
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cases := map[string]string{
		"unknown.yaml":  "schedulr:\n  poll_interval: 1m\n",
		"trailing.json": `{"store":{"path":"a"}} {}`,
		"level.yaml":    "logging:\n  level: loud\n",
		"tz.yaml":       "scheduler:\n  timezone: Mars/Olympus\n",
		"timeout.yaml":  "platforms:\n  timeout: soon\n",
		"vis.yaml":      "platforms:\n  mastodon:\n    visibility: everyone\n",
		"broken.yaml":   "scheduler: [\n",
	}
	for name, body := range cases {
		p := writeFile(t, dir, name, body)
		if _, err := NewConfigManager(p, false).Parse(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestMissingFile(t *testing.T) {
	t.Parallel()
	p := filepath.Join(t.TempDir(), "absent.yaml")

	cfg, err := NewConfigManager(p, true).Load()
	if err != nil {
		t.Fatalf("optional Load: %v", err)
	}
	if cfg.Scheduler.PollInterval != DefaultPollInterval {
		t.Fatalf("expected defaults, got %+v", cfg)
	}

	if _, err := NewConfigManager(p, false).Load(); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("required Load = %v, want ErrNotExist", err)
	}
}

func TestEmptyFileIsDefaults(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "postsched.yaml", "")
	cfg, err := NewConfigManager(p, false).Parse()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.Path != DefaultStorePath {
		t.Fatalf("got %+v", cfg)
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	a, b := Default(), Default()
	b.Logging.Level = "debug"
	b.Scheduler.PollInterval = "5m"
	changed, fields := SummarizeChange(a, b)
	if strings.Join(changed, ",") != "logging,scheduler" || len(fields) == 0 {
		t.Fatalf("changed = %v", changed)
	}
	if RequiresRestart(changed) {
		t.Fatal("logging and scheduler changes apply live")
	}
	b.Store.Path = "elsewhere.json"
	changed, _ = SummarizeChange(a, b)
	if !RequiresRestart(changed) {
		t.Fatal("store change needs a restart")
	}
}

func TestWatchPublishesReload(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := writeFile(t, dir, "postsched.yaml", "scheduler:\n  poll_interval: 1m\n")
	m := NewConfigManager(p, false)
	m.SetLogger(logx.Nop())
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	sub := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()

	// Give the watcher time to register before writing.
	time.Sleep(200 * time.Millisecond)
	writeFile(t, dir, "postsched.yaml", "scheduler:\n  poll_interval: 5m\n")

	select {
	case cfg := <-sub:
		if cfg.Scheduler.PollInterval != "5m" {
			t.Fatalf("reloaded poll_interval = %q", cfg.Scheduler.PollInterval)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload published")
	}
	if got := m.Get().Scheduler.PollInterval; got != "5m" {
		t.Fatalf("Get() after reload = %q", got)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestReloadKeepsPreviousOnError(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := writeFile(t, dir, "postsched.yaml", "scheduler:\n  poll_interval: 1m\n")
	m := NewConfigManager(p, false)
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	m.SetValidator(func(ctx context.Context, cfg *Config) error {
		if cfg.Scheduler.PollInterval == "never" {
			return errors.New("bad schedule")
		}
		return nil
	})

	writeFile(t, dir, "postsched.yaml", "scheduler:\n  poll_interval: never\n")
	if m.reload(context.Background()) {
		t.Fatal("validator should reject")
	}
	writeFile(t, dir, "postsched.yaml", "bogus: true\n")
	if m.reload(context.Background()) {
		t.Fatal("unknown key should reject")
	}
	if got := m.Get().Scheduler.PollInterval; got != "1m" {
		t.Fatalf("config changed to %q", got)
	}
	writeFile(t, dir, "postsched.yaml", "scheduler:\n  poll_interval: 1m\n")
	if m.reload(context.Background()) {
		t.Fatal("unchanged content should not publish")
	}
}
