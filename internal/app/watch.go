package app

import (
	"context"
	"strings"
	"time"

	"postsched/internal/config"
	"postsched/internal/eventbus"
	"postsched/internal/runtime/supervisor"
	"postsched/internal/watch"
	logx "postsched/pkg/logx"
	"postsched/pkg/systemd"
)

const shutdownTimeout = 30 * time.Second

// WatchHooks lets the caller observe watch mode. Every field is optional.
type WatchHooks struct {
	// Ready runs once the first due check has finished.
	Ready func()
	// Event receives post lifecycle events while watching.
	Event func(eventbus.Event)
}

// Watch runs the polling loop until ctx is cancelled. The config file is
// watched too: logging and poll schedule changes apply live.
func (a *App) Watch(ctx context.Context, hooks WatchHooks) error {
	cfg := a.cfgm.Get()
	loop, err := watch.New(a.watchConfig(cfg), a.sched, a.log)
	if err != nil {
		return err
	}
	a.cfgm.SetValidator(func(_ context.Context, c *config.Config) error {
		_, err := watch.ParseSchedule(c.Scheduler.PollInterval)
		return err
	})

	sup := supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// Subscribe before the first tick so its events are delivered too.
	events, unsub := a.bus.Subscribe(64)
	sup.Go("events", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", string(e.Type)), logx.String("id", e.PostID))
				if hooks.Event != nil {
					hooks.Event(e)
				}
			}
		}
	})

	if err := loop.Start(sup.Context()); err != nil {
		_ = sup.Stop(context.Background())
		return err
	}
	_, _ = systemd.Status("watching " + a.store.Path())
	if hooks.Ready != nil {
		hooks.Ready()
	}

	sup.GoRestart("config.watch", a.cfgm.Watch, 500*time.Millisecond, 10*time.Second)
	sup.Go("config.apply", func(c context.Context) error {
		a.applyReloads(c, loop)
		return nil
	})
	sup.Go("systemd.watchdog", func(c context.Context) error {
		return systemd.RunWatchdog(c, a.log, func() bool { return a.loopHealthy(loop, cfg) })
	})

	<-sup.Context().Done()
	a.log.Info("shutting down")
	_, _ = systemd.Stopping()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	loop.Stop(stopCtx)
	return sup.Stop(stopCtx)
}

func (a *App) watchConfig(cfg *config.Config) watch.Config {
	timeout, _ := cfg.TickTimeout()
	loc, err := cfg.Location()
	if err != nil {
		loc = a.loc
	}
	return watch.Config{Schedule: cfg.Scheduler.PollInterval, Location: loc, TickTimeout: timeout}
}

// loopHealthy treats the loop as stuck when no tick started for several
// poll periods plus the tick timeout.
func (a *App) loopHealthy(loop *watch.Loop, cfg *config.Config) bool {
	last, ok := loop.LastTick()
	if !ok {
		return true
	}
	spec, err := watch.ParseSchedule(a.cfgm.Get().Scheduler.PollInterval)
	if err != nil || spec.IsCron() {
		return true
	}
	timeout, _ := cfg.TickTimeout()
	return time.Since(last) < 3*spec.Every+timeout
}

func (a *App) applyReloads(ctx context.Context, loop *watch.Loop) {
	sub := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(sub)
	applied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			next = applyOverrides(next, a.opts)
			changed, fields := config.SummarizeChange(applied, next)
			if len(changed) == 0 {
				continue
			}
			a.log.Info("config change", append([]logx.Field{logx.String("changed", strings.Join(changed, ","))}, fields...)...)
			if config.RequiresRestart(changed) {
				a.log.Warn("store or platform settings changed; restart to apply them")
			}
			a.logs.Apply(next.LogConfig())
			if err := loop.Apply(a.watchConfig(next)); err != nil {
				a.log.Warn("poll schedule not applied", logx.Err(err))
			}
			applied = next
		}
	}
}
