// Package watch runs the periodic due-post check.
package watch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "postsched/pkg/logx"
)

const (
	DefaultSchedule    = "1m"
	defaultTickTimeout = 10 * time.Minute
)

// Checker is the part of the scheduler the loop drives.
type Checker interface {
	Refresh(ctx context.Context) error
	CheckDue(ctx context.Context, now time.Time) (int, error)
}

type Config struct {
	Schedule string
	Location *time.Location
	// TickTimeout bounds one tick (refresh plus publishing every due post).
	TickTimeout time.Duration
}

type Loop struct {
	checker Checker
	log     logx.Logger
	now     func() time.Time

	mu   sync.Mutex
	cfg  Config
	spec Spec
	c    *cron.Cron
	base context.Context

	running  atomic.Bool
	ticks    atomic.Uint64
	lastTick atomic.Int64
}

func New(cfg Config, checker Checker, log logx.Logger) (*Loop, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = withDefaults(cfg)
	spec, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	return &Loop{
		checker: checker,
		log:     log.With(logx.String("comp", "watch")),
		now:     time.Now,
		cfg:     cfg,
		spec:    spec,
	}, nil
}

func withDefaults(cfg Config) Config {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.TickTimeout <= 0 {
		cfg.TickTimeout = defaultTickTimeout
	}
	return cfg
}

// Start runs one check immediately, then keeps checking on the schedule
// until Stop or until ctx is done. Ticks never overlap.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.c != nil {
		l.mu.Unlock()
		return nil
	}
	l.base = ctx
	if err := l.startLocked(); err != nil {
		l.mu.Unlock()
		return err
	}
	spec := l.spec
	l.mu.Unlock()

	l.log.Info("watching for due posts", logx.String("schedule", spec.String()))
	l.Tick(ctx)
	return nil
}

func (l *Loop) startLocked() error {
	sched, err := l.spec.schedule()
	if err != nil {
		return err
	}
	c := cron.New(
		cron.WithLocation(l.cfg.Location),
		cron.WithChain(cron.Recover(cronLogger{l.log}), cron.SkipIfStillRunning(cronLogger{l.log})),
	)
	c.Schedule(sched, cron.FuncJob(func() { l.Tick(l.base) }))
	c.Start()
	l.c = c
	return nil
}

// Stop halts the schedule and waits for a running tick, bounded by ctx.
func (l *Loop) Stop(ctx context.Context) {
	l.mu.Lock()
	c := l.c
	l.c = nil
	l.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
		l.log.Info("watch loop stopped", logx.Uint64("ticks", l.ticks.Load()))
	case <-ctx.Done():
		l.log.Warn("watch loop stop timed out; a tick is still running")
	}
}

// Apply swaps the schedule, location and timeout. A running loop is
// restarted on the new schedule without an extra immediate tick, once any
// tick started by the old schedule has finished.
func (l *Loop) Apply(cfg Config) error {
	cfg = withDefaults(cfg)
	spec, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return err
	}

	l.mu.Lock()
	changed := spec.String() != l.spec.String() || cfg.Location.String() != l.cfg.Location.String()
	l.cfg = cfg
	l.spec = spec
	old := l.c
	l.mu.Unlock()
	if old == nil || !changed {
		return nil
	}

	<-old.Stop().Done()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.c != old {
		// Stopped or restarted meanwhile.
		return nil
	}
	if err := l.startLocked(); err != nil {
		l.c = nil
		return err
	}
	l.log.Info("poll schedule changed", logx.String("schedule", l.spec.String()))
	return nil
}

// Tick refreshes the store and executes due posts once. Errors are logged,
// never returned to the schedule. A call made while another tick is still
// running returns 0 without doing anything.
func (l *Loop) Tick(ctx context.Context) (executed int) {
	if !l.running.CompareAndSwap(false, true) {
		l.log.Debug("previous tick still running; skipping")
		return 0
	}
	defer l.running.Store(false)

	start := l.now()
	l.ticks.Add(1)
	l.lastTick.Store(start.UnixNano())

	defer func() {
		if r := recover(); r != nil {
			l.log.Error("tick panicked", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			executed = 0
		}
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return 0
	}
	l.mu.Lock()
	timeout := l.cfg.TickTimeout
	l.mu.Unlock()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := l.checker.Refresh(ctx); err != nil {
		l.log.Error("store reload failed; skipping tick", logx.Err(err))
		return 0
	}
	n, err := l.checker.CheckDue(ctx, start)
	if err != nil {
		l.log.Error("due check failed", logx.Int("executed", n), logx.Err(err))
	}
	if n > 0 {
		l.log.Info("due posts executed", logx.Int("count", n), logx.Duration("took", l.now().Sub(start)))
	} else {
		l.log.Debug("no posts due")
	}
	return n
}

// Ticks reports how many ticks have run.
func (l *Loop) Ticks() uint64 { return l.ticks.Load() }

// LastTick returns the start time of the most recent tick.
func (l *Loop) LastTick() (time.Time, bool) {
	ns := l.lastTick.Load()
	if ns == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, ns), true
}

// cronLogger routes robfig/cron's internal logging into logx.
type cronLogger struct{ log logx.Logger }

func (c cronLogger) Info(msg string, kv ...interface{}) {
	c.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
